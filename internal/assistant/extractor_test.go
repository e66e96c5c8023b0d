package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/citaplan/pkg/logging"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if len(req.Messages) > 0 {
		f.prompts = append(f.prompts, req.Messages[len(req.Messages)-1].Content)
	}
	if f.err != nil {
		return LLMResponse{}, f.err
	}
	return LLMResponse{Text: f.response}, nil
}

func newTestExtractor(llm LLMClient) *Extractor {
	return NewExtractor(llm, time.Second, logging.New("error"))
}

func TestExtractParsesKeywords(t *testing.T) {
	llm := &fakeLLM{response: `{"weekday": "martes", "relative_day": null, "day_of_month": null, "time": "5pm"}`}
	kw := newTestExtractor(llm).Extract(context.Background(), "nos vemos el martes a las 5pm")
	if kw == nil {
		t.Fatal("expected keywords")
	}
	if kw.Weekday != "martes" || kw.TimeText != "5pm" || kw.RelativeDay != "" || kw.DayOfMonth != 0 {
		t.Fatalf("keywords = %+v", kw)
	}
}

func TestExtractSurroundingProse(t *testing.T) {
	llm := &fakeLLM{response: "Claro, aquí está el JSON:\n```json\n{\"weekday\": null, \"relative_day\": \"mañana\", \"day_of_month\": null, \"time\": \"10:00\"}\n```"}
	kw := newTestExtractor(llm).Extract(context.Background(), "mañana a las 10")
	if kw == nil || kw.RelativeDay != "mañana" || kw.TimeText != "10:00" {
		t.Fatalf("keywords = %+v", kw)
	}
}

func TestExtractDayOfMonthAsString(t *testing.T) {
	llm := &fakeLLM{response: `{"weekday": null, "relative_day": null, "day_of_month": "15", "time": null}`}
	kw := newTestExtractor(llm).Extract(context.Background(), "el 15 me queda bien")
	if kw == nil || kw.DayOfMonth != 15 {
		t.Fatalf("keywords = %+v", kw)
	}
}

func TestExtractLiteralNull(t *testing.T) {
	llm := &fakeLLM{response: "null"}
	if kw := newTestExtractor(llm).Extract(context.Background(), "no mencioné ninguna fecha"); kw != nil {
		t.Fatalf("expected nil, got %+v", kw)
	}
}

func TestExtractAllFieldsNull(t *testing.T) {
	llm := &fakeLLM{response: `{"weekday": null, "relative_day": null, "day_of_month": null, "time": null}`}
	if kw := newTestExtractor(llm).Extract(context.Background(), "gracias"); kw != nil {
		t.Fatalf("expected nil for empty keyword set, got %+v", kw)
	}
}

func TestExtractUpstreamFailureDegradesToNil(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection reset")}
	if kw := newTestExtractor(llm).Extract(context.Background(), "el viernes"); kw != nil {
		t.Fatalf("upstream failure must yield nil, got %+v", kw)
	}
}

func TestExtractTimeoutDegradesToNil(t *testing.T) {
	llm := &fakeLLM{err: context.DeadlineExceeded}
	if kw := newTestExtractor(llm).Extract(context.Background(), "el viernes"); kw != nil {
		t.Fatalf("timeout must yield nil, got %+v", kw)
	}
}

func TestExtractMalformedJSON(t *testing.T) {
	llm := &fakeLLM{response: `{"weekday": "martes"`}
	if kw := newTestExtractor(llm).Extract(context.Background(), "el martes"); kw != nil {
		t.Fatalf("malformed JSON must yield nil, got %+v", kw)
	}
}

func TestExtractEmptyInputSkipsLLM(t *testing.T) {
	llm := &fakeLLM{response: "null"}
	if kw := newTestExtractor(llm).Extract(context.Background(), "   "); kw != nil {
		t.Fatal("expected nil for blank input")
	}
	if len(llm.prompts) != 0 {
		t.Fatal("blank input must not reach the LLM")
	}
}
