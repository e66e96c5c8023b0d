package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/example/citaplan/internal/booking"
	"github.com/example/citaplan/internal/leads"
	"github.com/example/citaplan/internal/observability/metrics"
	"github.com/example/citaplan/pkg/logging"
)

// Sender is the outbound side of the channel, satisfied by *Client and
// mocked in tests.
type Sender interface {
	SendTextMessage(ctx context.Context, to, text string) (*SendResponse, error)
}

// AdapterConfig binds the adapter to one business phone number.
type AdapterConfig struct {
	VerifyToken   string
	AppSecret     string
	AccessToken   string
	PhoneNumberID string
	// BusinessID is the tenant behind the phone number.
	BusinessID string
	// DefaultTypeID is the appointment type used when a customer asks about
	// availability over chat.
	DefaultTypeID string
}

// handleTimeout bounds one inbound message's processing, LLM call included.
const handleTimeout = 30 * time.Second

// Adapter is the WhatsApp channel adapter. It verifies and parses inbound
// webhooks, dedups redeliveries, and routes each message either into an
// ongoing reschedule dialogue or the availability flow.
type Adapter struct {
	cfg          AdapterConfig
	client       Sender
	webhook      *WebhookHandler
	processed    *ProcessedStore
	convs        booking.ConversationStore
	rescheduler  *booking.Rescheduler
	orchestrator *booking.Orchestrator
	leads        leads.Repository
	metrics      *metrics.WebhookMetrics
	logger       *logging.Logger
}

// NewAdapter creates the WhatsApp adapter. processed and m may be nil.
func NewAdapter(
	cfg AdapterConfig,
	client Sender,
	processed *ProcessedStore,
	convs booking.ConversationStore,
	rescheduler *booking.Rescheduler,
	orchestrator *booking.Orchestrator,
	leadRepo leads.Repository,
	m *metrics.WebhookMetrics,
	logger *logging.Logger,
) *Adapter {
	if logger == nil {
		logger = logging.Default()
	}
	if client == nil {
		client = NewClient(cfg.AccessToken, cfg.PhoneNumberID)
	}
	a := &Adapter{
		cfg:          cfg,
		client:       client,
		processed:    processed,
		convs:        convs,
		rescheduler:  rescheduler,
		orchestrator: orchestrator,
		leads:        leadRepo,
		metrics:      m,
		logger:       logger,
	}
	a.webhook = NewWebhookHandler(cfg.VerifyToken, cfg.AppSecret, func(msg ParsedInboundMessage) {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		a.ProcessMessage(ctx, msg)
	})
	return a
}

// HandleVerification handles GET /webhooks/whatsapp (Meta challenge).
func (a *Adapter) HandleVerification(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleVerification(w, r)
}

// HandleWebhook handles POST /webhooks/whatsapp (inbound messages).
func (a *Adapter) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleInbound(w, r)
}

// ProcessMessage routes one inbound message and sends the reply.
func (a *Adapter) ProcessMessage(ctx context.Context, msg ParsedInboundMessage) {
	start := time.Now()

	if !a.processed.MarkProcessed(ctx, msg.MessageID) {
		a.metrics.ObserveInbound("message", "duplicate")
		return
	}

	reply := a.replyFor(ctx, msg)
	if reply == "" {
		a.metrics.ObserveInbound("message", "ignored")
		return
	}

	if _, err := a.client.SendTextMessage(ctx, msg.From, reply); err != nil {
		a.logger.Error("whatsapp reply failed", "error", err, "to", msg.From)
		a.metrics.ObserveInbound("message", "send_failed")
		return
	}

	a.metrics.ObserveInbound("message", "processed")
	a.metrics.ObserveWebhookLatency("message", time.Since(start).Seconds())
}

func (a *Adapter) replyFor(ctx context.Context, msg ParsedInboundMessage) string {
	businessID := a.cfg.BusinessID

	// An ongoing reschedule dialogue takes priority over everything else.
	if a.rescheduler != nil {
		reply, err := a.rescheduler.Advance(ctx, businessID, msg.From, msg.Text)
		if err == nil {
			return reply.Text
		}
		if !errors.Is(err, booking.ErrConversationNotFound) {
			a.logger.Error("reschedule advance failed", "error", err, "from", msg.From)
			return msgSomethingBroke
		}
	}

	if wantsReschedule(msg.Text) {
		return a.startReschedule(ctx, msg)
	}

	if a.orchestrator != nil {
		reply, err := a.orchestrator.CheckNaturalLanguage(ctx, businessID, a.cfg.DefaultTypeID, msg.Text)
		if err != nil {
			a.logger.Error("availability reply failed", "error", err, "from", msg.From)
			return msgSomethingBroke
		}
		return reply.Message
	}

	return ""
}

func (a *Adapter) startReschedule(ctx context.Context, msg ParsedInboundMessage) string {
	if a.rescheduler == nil || a.leads == nil {
		return msgSomethingBroke
	}

	lead, err := a.leads.GetByPhone(ctx, a.cfg.BusinessID, msg.From)
	if errors.Is(err, leads.ErrLeadNotFound) {
		// wa_id arrives without the plus sign most stored numbers carry.
		lead, err = a.leads.GetByPhone(ctx, a.cfg.BusinessID, "+"+msg.From)
	}
	if errors.Is(err, leads.ErrLeadNotFound) {
		return "No encontré citas asociadas a este número. ¿Me compartes el correo con el que agendaste?"
	}
	if err != nil {
		a.logger.Error("lead lookup failed", "error", err, "from", msg.From)
		return msgSomethingBroke
	}

	reply, err := a.rescheduler.Start(ctx, a.cfg.BusinessID, lead.ID, msg.From)
	if err != nil {
		a.logger.Error("reschedule start failed", "error", err, "from", msg.From)
		return msgSomethingBroke
	}
	return reply.Text
}

var rescheduleTriggers = []string{
	"reagendar", "reagenda", "reprogramar", "cambiar mi cita",
	"mover mi cita", "cambiar la cita", "mover la cita",
}

func wantsReschedule(text string) bool {
	lowered := strings.ToLower(text)
	for _, trigger := range rescheduleTriggers {
		if strings.Contains(lowered, trigger) {
			return true
		}
	}
	return false
}

const msgSomethingBroke = "Lo siento, algo salió mal de nuestro lado. Inténtalo de nuevo en un momento."
