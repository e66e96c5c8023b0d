package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/citaplan/internal/assistant"
	"github.com/example/citaplan/internal/leads"
	"github.com/example/citaplan/internal/notify"
	"github.com/example/citaplan/internal/schedule"
	"github.com/example/citaplan/pkg/logging"
)

// BookRequest carries everything needed to book an appointment directly,
// with an already-resolved start instant.
type BookRequest struct {
	BusinessID string
	TypeID     string
	CRMID      string
	Name       string
	Email      string
	Phone      string
	StartAt    time.Time
	Source     string
}

// BookResult is the outcome of a booking attempt.
type BookResult struct {
	Appointment *schedule.Appointment
	Lead        *leads.Lead
}

// AvailabilityReply is the answer to a natural-language availability
// question, phrased for the customer.
type AvailabilityReply struct {
	Available bool
	Message   string
	// DateISO is the resolved instant in RFC 3339, set whenever a concrete
	// date and time could be resolved, available or not.
	DateISO string
}

// Orchestrator glues the extractor, resolver, availability checker, lead
// repository, ledger and notifier into the booking flows.
type Orchestrator struct {
	store     schedule.Store
	ledger    schedule.Ledger
	checker   *schedule.Checker
	leads     leads.Repository
	extractor *assistant.Extractor
	confirmer *notify.Confirmer
	logger    *logging.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewOrchestrator wires the booking flows. extractor and confirmer may be
// nil: natural-language checks then report no signal, and no email is sent.
func NewOrchestrator(
	store schedule.Store,
	ledger schedule.Ledger,
	checker *schedule.Checker,
	leadRepo leads.Repository,
	extractor *assistant.Extractor,
	confirmer *notify.Confirmer,
	logger *logging.Logger,
) *Orchestrator {
	if store == nil || ledger == nil || checker == nil || leadRepo == nil {
		panic("booking: store, ledger, checker and leads repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		store:     store,
		ledger:    ledger,
		checker:   checker,
		leads:     leadRepo,
		extractor: extractor,
		confirmer: confirmer,
		logger:    logger,
		Now:       time.Now,
	}
}

// Book verifies availability, upserts the lead, reserves the slot and fires
// the confirmation email. A failed email never fails the booking.
func (o *Orchestrator) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	business, err := o.store.GetBusiness(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	apptType, err := o.store.GetAppointmentType(ctx, req.BusinessID, req.TypeID)
	if err != nil {
		return nil, err
	}

	decision, err := o.checker.Check(ctx, req.BusinessID, req.TypeID, req.StartAt, "")
	if err != nil {
		return nil, fmt.Errorf("booking: availability check: %w", err)
	}
	if !decision.Available {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, decision.Reason)
	}

	source := req.Source
	if source == "" {
		source = "api"
	}
	lead, err := o.leads.UpsertByEmail(ctx, &leads.UpsertLeadRequest{
		BusinessID: req.BusinessID,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Source:     source,
	})
	if err != nil {
		return nil, fmt.Errorf("booking: upsert lead: %w", err)
	}

	appt, err := o.ledger.Reserve(ctx, schedule.ReserveParams{
		Appointment: &schedule.Appointment{
			BusinessID:      req.BusinessID,
			LeadID:          lead.ID,
			TypeID:          req.TypeID,
			StartAt:         req.StartAt.UTC(),
			DurationMinutes: apptType.DurationMinutes,
			BufferMinutes:   apptType.BufferMinutes,
			Status:          schedule.StatusPending,
		},
		Exclusive:      apptType.Exclusive,
		MaxConcurrency: apptType.Concurrency(),
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("appointment booked",
		"business_id", req.BusinessID, "appointment_id", appt.ID,
		"lead_id", lead.ID, "start_at", appt.StartAt)

	o.sendConfirmation(ctx, business, apptType, lead, appt, false)

	return &BookResult{Appointment: appt, Lead: lead}, nil
}

func (o *Orchestrator) sendConfirmation(ctx context.Context, business *schedule.Business, apptType *schedule.AppointmentType, lead *leads.Lead, appt *schedule.Appointment, rescheduled bool) {
	if o.confirmer == nil || lead.Email == "" {
		return
	}
	err := o.confirmer.SendConfirmation(ctx, notify.ConfirmationDetails{
		CustomerName:    lead.Name,
		CustomerEmail:   lead.Email,
		BusinessName:    business.Name,
		AppointmentType: apptType.Name,
		StartAt:         appt.StartAt,
		Location:        business.Location(),
		Rescheduled:     rescheduled,
	})
	if err != nil {
		o.logger.Warn("confirmation email skipped", "error", err, "appointment_id", appt.ID)
	}
}

// CheckNaturalLanguage answers "¿tienen lugar el viernes a las 5?" style
// questions: extract, resolve against the business clock, then check.
func (o *Orchestrator) CheckNaturalLanguage(ctx context.Context, businessID, typeID, text string) (AvailabilityReply, error) {
	business, err := o.store.GetBusiness(ctx, businessID)
	if err != nil {
		return AvailabilityReply{}, err
	}
	if _, err := o.store.GetAppointmentType(ctx, businessID, typeID); err != nil {
		return AvailabilityReply{}, err
	}

	loc := business.Location()
	now := o.Now().In(loc)

	var kw *assistant.DateKeywords
	if o.extractor != nil {
		kw = o.extractor.Extract(ctx, text)
	}
	if kw == nil {
		return AvailabilityReply{Message: msgNeedDate}, nil
	}

	res := assistant.Resolve(*kw, now)
	if res.Date == nil {
		return AvailabilityReply{Message: msgNeedDate}, nil
	}
	if res.Time == nil {
		return AvailabilityReply{Message: msgNeedTime}, nil
	}

	desired := res.Date.At(*res.Time, loc)
	decision, err := o.checker.Check(ctx, businessID, typeID, desired, "")
	if err != nil {
		return AvailabilityReply{}, fmt.Errorf("booking: availability check: %w", err)
	}

	reply := AvailabilityReply{
		Available: decision.Available,
		DateISO:   desired.UTC().Format(time.RFC3339),
	}
	if decision.Available {
		reply.Message = fmt.Sprintf(msgSlotOpen, describeInstant(desired))
	} else {
		reply.Message = reasonMessage(decision.Reason, desired)
	}
	return reply, nil
}

// Customer-facing Spanish copy for each availability outcome.
const (
	msgNeedDate = "No logré identificar la fecha. ¿Me puedes decir para qué día te gustaría la cita?"
	msgNeedTime = "Entendí el día, pero no la hora. ¿A qué hora te gustaría la cita?"
	msgSlotOpen = "¡Sí tenemos disponible el %s! ¿Te lo agendo?"
)

func reasonMessage(reason string, desired time.Time) string {
	when := describeInstant(desired)
	switch reason {
	case schedule.ReasonInPast:
		return fmt.Sprintf("El %s ya pasó. ¿Te gustaría otra fecha?", when)
	case schedule.ReasonNonBusinessDay:
		return fmt.Sprintf("El %s no abrimos. ¿Te sirve otro día?", when)
	case schedule.ReasonOutsideHours:
		return fmt.Sprintf("El %s está fuera de nuestro horario de atención. ¿Te sirve otra hora?", when)
	case schedule.ReasonSlotTaken:
		return fmt.Sprintf("El %s ya está ocupado. ¿Te gustaría otro horario?", when)
	}
	return fmt.Sprintf("No pudimos apartar el %s. ¿Te gustaría otro horario?", when)
}

var dayNames = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

// describeInstant renders "viernes 6 de marzo a las 17:00" using the
// instant's own location, which callers keep in business-local time.
func describeInstant(t time.Time) string {
	months := [...]string{
		"enero", "febrero", "marzo", "abril", "mayo", "junio",
		"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
	}
	return fmt.Sprintf("%s %d de %s a las %02d:%02d",
		dayNames[t.Weekday()], t.Day(), months[t.Month()-1], t.Hour(), t.Minute())
}

// IsNotFound reports whether the error maps to a 404 for API callers.
func IsNotFound(err error) bool {
	return errors.Is(err, schedule.ErrBusinessNotFound) ||
		errors.Is(err, schedule.ErrTypeNotFound) ||
		errors.Is(err, schedule.ErrAppointmentNotFound)
}

// UnavailableReason extracts the human reason from an ErrUnavailable, or ""
// when the error is something else.
func UnavailableReason(err error) string {
	if !errors.Is(err, ErrUnavailable) {
		return ""
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
