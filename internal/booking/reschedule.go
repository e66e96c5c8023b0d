package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/citaplan/internal/assistant"
	"github.com/example/citaplan/internal/leads"
	"github.com/example/citaplan/internal/notify"
	"github.com/example/citaplan/internal/schedule"
	"github.com/example/citaplan/pkg/logging"
)

// Reply is what the rescheduler tells the customer after each message.
type Reply struct {
	Text string
	// Done is true when the dialogue ended, either committed or abandoned.
	Done bool
}

// Rescheduler drives the multi-turn reschedule dialogue. It identifies the
// appointment to move, collects and verifies the new slot, and only writes
// to the ledger at the final confirmation: reserve the new slot excluding
// the original, then retire the original.
type Rescheduler struct {
	store     schedule.Store
	ledger    schedule.Ledger
	checker   *schedule.Checker
	convs     ConversationStore
	leads     leads.Repository
	extractor *assistant.Extractor
	confirmer *notify.Confirmer
	logger    *logging.Logger

	Now func() time.Time
}

// NewRescheduler wires the reschedule dialogue.
func NewRescheduler(
	store schedule.Store,
	ledger schedule.Ledger,
	checker *schedule.Checker,
	convs ConversationStore,
	leadRepo leads.Repository,
	extractor *assistant.Extractor,
	confirmer *notify.Confirmer,
	logger *logging.Logger,
) *Rescheduler {
	if store == nil || ledger == nil || checker == nil || convs == nil {
		panic("booking: store, ledger, checker and conversation store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Rescheduler{
		store:     store,
		ledger:    ledger,
		checker:   checker,
		convs:     convs,
		leads:     leadRepo,
		extractor: extractor,
		confirmer: confirmer,
		logger:    logger,
		Now:       time.Now,
	}
}

// Start opens a reschedule dialogue for a lead. With one open appointment
// it jumps straight to confirming which; with several it asks the customer
// to pick.
func (r *Rescheduler) Start(ctx context.Context, businessID, leadID, contact string) (Reply, error) {
	business, err := r.store.GetBusiness(ctx, businessID)
	if err != nil {
		return Reply{}, err
	}

	open, err := r.ledger.ListOpenForLead(ctx, businessID, leadID)
	if err != nil {
		return Reply{}, fmt.Errorf("booking: list open appointments: %w", err)
	}
	if len(open) == 0 {
		return Reply{Text: "No encontré citas próximas a tu nombre. ¿Quieres agendar una nueva?", Done: true}, nil
	}

	loc := business.Location()
	conv := &Conversation{
		BusinessID: businessID,
		LeadID:     leadID,
		Contact:    contact,
	}

	if len(open) == 1 {
		conv.State = StateConfirmingOriginal
		conv.OriginalID = open[0].ID
		if err := r.convs.Save(ctx, conv); err != nil {
			return Reply{}, err
		}
		return Reply{Text: fmt.Sprintf("Tienes una cita el %s. ¿Es la que quieres mover? (sí/no)",
			describeInstant(open[0].StartAt.In(loc)))}, nil
	}

	conv.State = StateIdentifyingOriginal
	var b strings.Builder
	b.WriteString("Tienes varias citas próximas. ¿Cuál quieres mover? Responde con el número:\n")
	for i, appt := range open {
		conv.Candidates = append(conv.Candidates, appt.ID)
		fmt.Fprintf(&b, "%d. %s\n", i+1, describeInstant(appt.StartAt.In(loc)))
	}
	if err := r.convs.Save(ctx, conv); err != nil {
		return Reply{}, err
	}
	return Reply{Text: strings.TrimRight(b.String(), "\n")}, nil
}

// Advance feeds the customer's next message into the dialogue.
func (r *Rescheduler) Advance(ctx context.Context, businessID, contact, message string) (Reply, error) {
	conv, err := r.convs.Get(ctx, businessID, contact)
	if err != nil {
		return Reply{}, err
	}

	switch conv.State {
	case StateIdentifyingOriginal:
		return r.pickOriginal(ctx, conv, message)
	case StateConfirmingOriginal:
		return r.confirmOriginal(ctx, conv, message)
	case StateAwaitingNewSlot:
		return r.collectNewSlot(ctx, conv, message)
	case StateConfirmingNewSlot:
		return r.confirmNewSlot(ctx, conv, message)
	}
	return Reply{}, fmt.Errorf("booking: conversation in unknown state %q", conv.State)
}

func (r *Rescheduler) pickOriginal(ctx context.Context, conv *Conversation, message string) (Reply, error) {
	n, err := strconv.Atoi(strings.TrimSpace(message))
	if err != nil || n < 1 || n > len(conv.Candidates) {
		return Reply{Text: fmt.Sprintf("No entendí. Responde con un número del 1 al %d.", len(conv.Candidates))}, nil
	}
	conv.OriginalID = conv.Candidates[n-1]
	conv.Candidates = nil
	conv.State = StateAwaitingNewSlot
	if err := r.convs.Save(ctx, conv); err != nil {
		return Reply{}, err
	}
	return Reply{Text: msgAskNewSlot}, nil
}

func (r *Rescheduler) confirmOriginal(ctx context.Context, conv *Conversation, message string) (Reply, error) {
	switch parseYesNo(message) {
	case answerYes:
		conv.State = StateAwaitingNewSlot
		if err := r.convs.Save(ctx, conv); err != nil {
			return Reply{}, err
		}
		return Reply{Text: msgAskNewSlot}, nil
	case answerNo:
		if err := r.convs.Delete(ctx, conv.BusinessID, conv.Contact); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "De acuerdo, tu cita queda como está.", Done: true}, nil
	}
	return Reply{Text: "¿Me confirmas con sí o no?"}, nil
}

func (r *Rescheduler) collectNewSlot(ctx context.Context, conv *Conversation, message string) (Reply, error) {
	business, err := r.store.GetBusiness(ctx, conv.BusinessID)
	if err != nil {
		return Reply{}, err
	}
	loc := business.Location()

	var kw *assistant.DateKeywords
	if r.extractor != nil {
		kw = r.extractor.Extract(ctx, message)
	}
	if kw == nil {
		return Reply{Text: msgNeedDate}, nil
	}
	res := assistant.Resolve(*kw, r.Now().In(loc))
	if res.Date == nil {
		return Reply{Text: msgNeedDate}, nil
	}
	if res.Time == nil {
		return Reply{Text: msgNeedTime}, nil
	}

	original, err := r.ledger.GetByID(ctx, conv.BusinessID, conv.OriginalID)
	if err != nil {
		return Reply{}, err
	}

	desired := res.Date.At(*res.Time, loc)
	decision, err := r.checker.Check(ctx, conv.BusinessID, original.TypeID, desired, conv.OriginalID)
	if err != nil {
		return Reply{}, fmt.Errorf("booking: availability check: %w", err)
	}
	if !decision.Available {
		return Reply{Text: reasonMessage(decision.Reason, desired)}, nil
	}

	conv.NewStart = desired.UTC()
	conv.State = StateConfirmingNewSlot
	if err := r.convs.Save(ctx, conv); err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("¿Confirmo el cambio para el %s? (sí/no)", describeInstant(desired))}, nil
}

func (r *Rescheduler) confirmNewSlot(ctx context.Context, conv *Conversation, message string) (Reply, error) {
	switch parseYesNo(message) {
	case answerYes:
		return r.commit(ctx, conv)
	case answerNo:
		conv.NewStart = time.Time{}
		conv.State = StateAwaitingNewSlot
		if err := r.convs.Save(ctx, conv); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "De acuerdo. ¿Para cuándo te gustaría entonces?"}, nil
	}
	return Reply{Text: "¿Me confirmas con sí o no?"}, nil
}

// commit performs the only destructive writes of the dialogue: reserve the
// new slot ignoring the original, then retire the original.
func (r *Rescheduler) commit(ctx context.Context, conv *Conversation) (Reply, error) {
	business, err := r.store.GetBusiness(ctx, conv.BusinessID)
	if err != nil {
		return Reply{}, err
	}
	original, err := r.ledger.GetByID(ctx, conv.BusinessID, conv.OriginalID)
	if err != nil {
		return Reply{}, err
	}
	apptType, err := r.store.GetAppointmentType(ctx, conv.BusinessID, original.TypeID)
	if err != nil {
		return Reply{}, err
	}

	moved, err := r.ledger.Reserve(ctx, schedule.ReserveParams{
		Appointment: &schedule.Appointment{
			BusinessID:      conv.BusinessID,
			LeadID:          original.LeadID,
			TypeID:          original.TypeID,
			StartAt:         conv.NewStart,
			DurationMinutes: apptType.DurationMinutes,
			BufferMinutes:   apptType.BufferMinutes,
			Status:          schedule.StatusConfirmed,
		},
		Exclusive:      apptType.Exclusive,
		MaxConcurrency: apptType.Concurrency(),
		ExcludeID:      original.ID,
	})
	if errors.Is(err, schedule.ErrSlotTaken) {
		conv.NewStart = time.Time{}
		conv.State = StateAwaitingNewSlot
		if saveErr := r.convs.Save(ctx, conv); saveErr != nil {
			return Reply{}, saveErr
		}
		return Reply{Text: "Ese horario se acaba de ocupar. ¿Te gustaría otro?"}, nil
	}
	if err != nil {
		return Reply{}, fmt.Errorf("booking: reserve new slot: %w", err)
	}

	if err := r.ledger.UpdateStatus(ctx, conv.BusinessID, original.ID, schedule.StatusRescheduled); err != nil {
		// Compensate so the customer does not end up double-booked.
		if cancelErr := r.ledger.UpdateStatus(ctx, conv.BusinessID, moved.ID, schedule.StatusCancelled); cancelErr != nil {
			r.logger.Error("reschedule compensation failed",
				"error", cancelErr, "moved_id", moved.ID, "original_id", original.ID)
		}
		return Reply{}, fmt.Errorf("booking: retire original appointment: %w", err)
	}

	if err := r.convs.Delete(ctx, conv.BusinessID, conv.Contact); err != nil {
		r.logger.Warn("conversation cleanup failed", "error", err, "contact", conv.Contact)
	}

	r.logger.Info("appointment rescheduled",
		"business_id", conv.BusinessID, "original_id", original.ID,
		"new_id", moved.ID, "start_at", moved.StartAt)

	r.notifyMoved(ctx, business, apptType, original.LeadID, moved)

	return Reply{
		Text: fmt.Sprintf("¡Listo! Tu cita quedó reagendada para el %s.",
			describeInstant(moved.StartAt.In(business.Location()))),
		Done: true,
	}, nil
}

func (r *Rescheduler) notifyMoved(ctx context.Context, business *schedule.Business, apptType *schedule.AppointmentType, leadID string, moved *schedule.Appointment) {
	if r.confirmer == nil || r.leads == nil {
		return
	}
	lead, err := r.leads.GetByID(ctx, business.ID, leadID)
	if err != nil || lead.Email == "" {
		return
	}
	err = r.confirmer.SendConfirmation(ctx, notify.ConfirmationDetails{
		CustomerName:    lead.Name,
		CustomerEmail:   lead.Email,
		BusinessName:    business.Name,
		AppointmentType: apptType.Name,
		StartAt:         moved.StartAt,
		Location:        business.Location(),
		Rescheduled:     true,
	})
	if err != nil {
		r.logger.Warn("reschedule email skipped", "error", err, "appointment_id", moved.ID)
	}
}

type yesNo int

const (
	answerUnclear yesNo = iota
	answerYes
	answerNo
)

func parseYesNo(message string) yesNo {
	normalized := strings.ToLower(strings.TrimSpace(message))
	normalized = strings.Trim(normalized, "!¡.?¿ ")
	switch normalized {
	case "si", "sí", "s", "yes", "claro", "ok", "dale", "confirmo", "por supuesto":
		return answerYes
	case "no", "n", "nel", "cancelar", "cancel", "mejor no":
		return answerNo
	}
	return answerUnclear
}

const msgAskNewSlot = "Perfecto. ¿Para cuándo te gustaría moverla? Por ejemplo: \"el viernes a las 5pm\"."
