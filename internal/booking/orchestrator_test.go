package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/citaplan/internal/assistant"
	"github.com/example/citaplan/internal/leads"
	"github.com/example/citaplan/internal/notify"
	"github.com/example/citaplan/internal/schedule"
	"github.com/example/citaplan/pkg/logging"
)

// scriptedLLM returns a canned completion, standing in for Gemini.
type scriptedLLM struct {
	out string
	err error
}

func (s *scriptedLLM) Complete(_ context.Context, _ assistant.LLMRequest) (assistant.LLMResponse, error) {
	if s.err != nil {
		return assistant.LLMResponse{}, s.err
	}
	return assistant.LLMResponse{Text: s.out}, nil
}

type sentEmail struct {
	To      string
	Subject string
}

type recordingSender struct {
	sent []sentEmail
}

func (r *recordingSender) Send(_ context.Context, msg notify.EmailMessage) error {
	r.sent = append(r.sent, sentEmail{To: msg.To, Subject: msg.Subject})
	return nil
}

// fixtureNow is a Monday morning; the test business opens weekdays at 09:00.
var fixtureNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store  *schedule.InMemoryStore
	ledger *schedule.InMemoryLedger
	leads  *leads.InMemoryRepository
	emails *recordingSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := schedule.NewInMemoryStore()
	store.PutBusiness(&schedule.Business{ID: "biz-1", Name: "Clínica Luna"})
	for wd := time.Monday; wd <= time.Friday; wd++ {
		require.NoError(t, store.PutHours(&schedule.BusinessHours{
			BusinessID: "biz-1", Weekday: wd, Open: "09:00", Close: "18:00",
		}))
	}
	store.PutAppointmentType(&schedule.AppointmentType{
		ID: "consult", BusinessID: "biz-1", Name: "Consulta general",
		DurationMinutes: 30, BufferMinutes: 10,
	})
	return &fixture{
		store:  store,
		ledger: schedule.NewInMemoryLedger(),
		leads:  leads.NewInMemoryRepository(),
		emails: &recordingSender{},
	}
}

func (f *fixture) orchestrator(llmOut string) *Orchestrator {
	logger := logging.Default()
	checker := schedule.NewChecker(f.store, f.ledger, logger)
	checker.Now = func() time.Time { return fixtureNow }

	var extractor *assistant.Extractor
	if llmOut != "" {
		extractor = assistant.NewExtractor(&scriptedLLM{out: llmOut}, time.Second, logger)
	}

	o := NewOrchestrator(
		f.store, f.ledger, checker, f.leads,
		extractor, notify.NewConfirmer(f.emails, logger), logger,
	)
	o.Now = func() time.Time { return fixtureNow }
	return o
}

func TestBook_Success(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator("")

	result, err := o.Book(context.Background(), BookRequest{
		BusinessID: "biz-1",
		TypeID:     "consult",
		Name:       "Ana García",
		Email:      "ana@example.com",
		Phone:      "+5215512345678",
		StartAt:    time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.Appointment.ID)
	assert.Equal(t, schedule.StatusPending, result.Appointment.Status)
	assert.Equal(t, result.Lead.ID, result.Appointment.LeadID)
	assert.Equal(t, "ana@example.com", result.Lead.Email)

	require.Len(t, f.emails.sent, 1)
	assert.Equal(t, "ana@example.com", f.emails.sent[0].To)
	assert.Contains(t, f.emails.sent[0].Subject, "Clínica Luna")
}

func TestBook_ReusesLeadByEmail(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator("")

	first, err := o.Book(context.Background(), BookRequest{
		BusinessID: "biz-1", TypeID: "consult",
		Name: "Ana", Email: "ana@example.com",
		StartAt: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	second, err := o.Book(context.Background(), BookRequest{
		BusinessID: "biz-1", TypeID: "consult",
		Name: "Ana García", Email: "ANA@example.com",
		StartAt: time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, first.Lead.ID, second.Lead.ID)
	assert.Equal(t, "Ana García", second.Lead.Name)
}

func TestBook_OutsideHours(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator("")

	_, err := o.Book(context.Background(), BookRequest{
		BusinessID: "biz-1", TypeID: "consult",
		Name: "Ana", Email: "ana@example.com",
		StartAt: time.Date(2026, 3, 3, 20, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, schedule.ReasonOutsideHours, UnavailableReason(err))
	assert.Empty(t, f.emails.sent)
}

func TestBook_Conflict(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator("")

	slot := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	_, err := o.Book(context.Background(), BookRequest{
		BusinessID: "biz-1", TypeID: "consult",
		Name: "Ana", Email: "ana@example.com", StartAt: slot,
	})
	require.NoError(t, err)

	_, err = o.Book(context.Background(), BookRequest{
		BusinessID: "biz-1", TypeID: "consult",
		Name: "Beto", Email: "beto@example.com", StartAt: slot.Add(15 * time.Minute),
	})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, schedule.ReasonSlotTaken, UnavailableReason(err))
}

func TestBook_UnknownBusinessAndType(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator("")

	_, err := o.Book(context.Background(), BookRequest{
		BusinessID: "nope", TypeID: "consult",
		Name: "Ana", Email: "ana@example.com",
		StartAt: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, schedule.ErrBusinessNotFound)
	assert.True(t, IsNotFound(err))

	_, err = o.Book(context.Background(), BookRequest{
		BusinessID: "biz-1", TypeID: "nope",
		Name: "Ana", Email: "ana@example.com",
		StartAt: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, schedule.ErrTypeNotFound)
}

func TestCheckNaturalLanguage_Available(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(`{"weekday": "viernes", "relative_day": null, "day_of_month": null, "time": "5pm"}`)

	reply, err := o.CheckNaturalLanguage(context.Background(), "biz-1", "consult", "¿Tienen lugar el viernes a las 5?")
	require.NoError(t, err)

	assert.True(t, reply.Available)
	assert.Equal(t, "2026-03-06T17:00:00Z", reply.DateISO)
	assert.Contains(t, reply.Message, "viernes 6 de marzo a las 17:00")
}

func TestCheckNaturalLanguage_SlotTaken(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(`{"weekday": "viernes", "relative_day": null, "day_of_month": null, "time": "5pm"}`)

	_, err := o.Book(context.Background(), BookRequest{
		BusinessID: "biz-1", TypeID: "consult",
		Name: "Ana", Email: "ana@example.com",
		StartAt: time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	reply, err := o.CheckNaturalLanguage(context.Background(), "biz-1", "consult", "¿el viernes a las 5?")
	require.NoError(t, err)

	assert.False(t, reply.Available)
	assert.Equal(t, "2026-03-06T17:00:00Z", reply.DateISO)
	assert.Contains(t, reply.Message, "ocupado")
}

func TestCheckNaturalLanguage_MissingTime(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(`{"weekday": "viernes", "relative_day": null, "day_of_month": null, "time": null}`)

	reply, err := o.CheckNaturalLanguage(context.Background(), "biz-1", "consult", "¿tienen lugar el viernes?")
	require.NoError(t, err)

	assert.False(t, reply.Available)
	assert.Empty(t, reply.DateISO)
	assert.Equal(t, msgNeedTime, reply.Message)
}

func TestCheckNaturalLanguage_NoSignal(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(`null`)

	reply, err := o.CheckNaturalLanguage(context.Background(), "biz-1", "consult", "hola, ¿cuánto cuesta?")
	require.NoError(t, err)

	assert.False(t, reply.Available)
	assert.Empty(t, reply.DateISO)
	assert.Equal(t, msgNeedDate, reply.Message)
}

func TestCheckNaturalLanguage_NoExtractor(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator("")

	reply, err := o.CheckNaturalLanguage(context.Background(), "biz-1", "consult", "el viernes a las 5")
	require.NoError(t, err)
	assert.Equal(t, msgNeedDate, reply.Message)
}
