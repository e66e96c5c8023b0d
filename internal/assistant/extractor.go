package assistant

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/example/citaplan/pkg/logging"
)

// DateKeywords holds the structured temporal signal extracted from free
// text. All fields are optional; a zero value means "no usable signal".
type DateKeywords struct {
	Weekday     string // weekday name as spoken, e.g. "martes", "friday"
	RelativeDay string // "hoy"/"today" or "mañana"/"tomorrow"
	DayOfMonth  int    // 1-31, 0 when absent
	TimeText    string // free-text time, e.g. "5pm", "a las 5", "17:00"
}

// Empty reports whether no temporal signal was found at all.
func (k DateKeywords) Empty() bool {
	return k.Weekday == "" && k.RelativeDay == "" && k.DayOfMonth == 0 && k.TimeText == ""
}

const extractorPrompt = `Extrae las referencias de fecha y hora del mensaje del usuario.
Responde UNICAMENTE con un objeto JSON con exactamente estos campos
(usa null cuando el campo no aplique):
{"weekday": <nombre del día de la semana o null>,
 "relative_day": <"hoy" o "mañana" o null>,
 "day_of_month": <número de día del mes o null>,
 "time": <hora mencionada, tal como fue escrita, o null>}
Si el mensaje no contiene ninguna referencia de fecha u hora, responde
exactamente: null
No agregues texto fuera del JSON.

Mensaje del usuario: `

// Extractor turns free-text date phrases into DateKeywords by delegating
// semantic interpretation to the text-generation capability. Every failure
// mode (timeout, network, malformed output, the literal "null") degrades to
// a nil result; callers re-prompt the user instead of erroring.
type Extractor struct {
	llm     LLMClient
	timeout time.Duration
	logger  *logging.Logger
}

// NewExtractor constructs an extractor over the given LLM capability.
func NewExtractor(llm LLMClient, timeout time.Duration, logger *logging.Logger) *Extractor {
	if llm == nil {
		panic("assistant: llm client required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{llm: llm, timeout: timeout, logger: logger}
}

// Extract returns the date keywords found in text, or nil when the text has
// no temporal signal or the upstream call failed.
func (e *Extractor) Extract(ctx context.Context, text string) *DateKeywords {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.llm.Complete(ctx, LLMRequest{
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: extractorPrompt + text}},
		MaxTokens:   256,
		Temperature: 0,
	})
	if err != nil {
		e.logger.Warn("date extraction failed, degrading to re-prompt", "error", err)
		return nil
	}

	keywords := parseKeywordsResponse(resp.Text)
	if keywords == nil || keywords.Empty() {
		return nil
	}
	return keywords
}

// parseKeywordsResponse pulls the first JSON-object-shaped substring out of
// the completion and coerces its fields. Returns nil on any parse failure.
func parseKeywordsResponse(raw string) *DateKeywords {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return nil
	}

	start := strings.Index(raw, "{")
	if start < 0 {
		return nil
	}
	end := strings.LastIndex(raw, "}")
	if end <= start {
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil {
		return nil
	}

	kw := DateKeywords{
		Weekday:     stringField(fields, "weekday"),
		RelativeDay: stringField(fields, "relative_day"),
		DayOfMonth:  intField(fields, "day_of_month"),
		TimeText:    stringField(fields, "time"),
	}
	return &kw
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

// intField coerces a numeric or numeric-string field; models are not
// consistent about which they emit.
func intField(fields map[string]any, key string) int {
	v, ok := fields[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		n = strings.TrimSpace(n)
		total := 0
		for _, c := range n {
			if c < '0' || c > '9' {
				return 0
			}
			total = total*10 + int(c-'0')
		}
		return total
	}
	return 0
}
