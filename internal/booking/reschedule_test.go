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

const testContact = "+5215512345678"

func (f *fixture) rescheduler(t *testing.T, llmOut string) (*Rescheduler, ConversationStore) {
	t.Helper()
	logger := logging.Default()
	checker := schedule.NewChecker(f.store, f.ledger, logger)
	checker.Now = func() time.Time { return fixtureNow }

	var extractor *assistant.Extractor
	if llmOut != "" {
		extractor = assistant.NewExtractor(&scriptedLLM{out: llmOut}, time.Second, logger)
	}

	convs := NewInMemoryConversationStore()
	r := NewRescheduler(
		f.store, f.ledger, checker, convs, f.leads,
		extractor, notify.NewConfirmer(f.emails, logger), logger,
	)
	r.Now = func() time.Time { return fixtureNow }
	return r, convs
}

func (f *fixture) seedAppointment(t *testing.T, leadID string, startAt time.Time) *schedule.Appointment {
	t.Helper()
	appt, err := f.ledger.Reserve(context.Background(), schedule.ReserveParams{
		Appointment: &schedule.Appointment{
			BusinessID:      "biz-1",
			LeadID:          leadID,
			TypeID:          "consult",
			StartAt:         startAt,
			DurationMinutes: 30,
			BufferMinutes:   10,
			Status:          schedule.StatusConfirmed,
		},
	})
	require.NoError(t, err)
	return appt
}

func (f *fixture) seedLead(t *testing.T) *leads.Lead {
	t.Helper()
	lead, err := f.leads.UpsertByEmail(context.Background(), &leads.UpsertLeadRequest{
		BusinessID: "biz-1", Name: "Ana García", Email: "ana@example.com", Source: "whatsapp",
	})
	require.NoError(t, err)
	return lead
}

func TestReschedule_HappyPath(t *testing.T) {
	f := newFixture(t)
	r, convs := f.rescheduler(t, `{"weekday": "viernes", "relative_day": null, "day_of_month": null, "time": "5pm"}`)
	ctx := context.Background()

	lead := f.seedLead(t)
	original := f.seedAppointment(t, lead.ID, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))

	reply, err := r.Start(ctx, "biz-1", lead.ID, testContact)
	require.NoError(t, err)
	assert.False(t, reply.Done)
	assert.Contains(t, reply.Text, "martes 3 de marzo a las 10:00")

	reply, err = r.Advance(ctx, "biz-1", testContact, "sí")
	require.NoError(t, err)
	assert.Equal(t, msgAskNewSlot, reply.Text)

	reply, err = r.Advance(ctx, "biz-1", testContact, "el viernes a las 5pm")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "viernes 6 de marzo a las 17:00")
	assert.False(t, reply.Done)

	reply, err = r.Advance(ctx, "biz-1", testContact, "sí")
	require.NoError(t, err)
	assert.True(t, reply.Done)
	assert.Contains(t, reply.Text, "reagendada")

	// The original is retired and exactly one open appointment remains, at
	// the new slot.
	retired, err := f.ledger.GetByID(ctx, "biz-1", original.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusRescheduled, retired.Status)

	open, err := f.ledger.ListOpenForLead(ctx, "biz-1", lead.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC), open[0].StartAt)

	_, err = convs.Get(ctx, "biz-1", testContact)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	// Reschedule confirmation email went out to the lead.
	require.Len(t, f.emails.sent, 1)
	assert.Equal(t, "ana@example.com", f.emails.sent[0].To)
	assert.Contains(t, f.emails.sent[0].Subject, "reagendada")
}

func TestReschedule_NoOpenAppointments(t *testing.T) {
	f := newFixture(t)
	r, _ := f.rescheduler(t, "")

	lead := f.seedLead(t)
	reply, err := r.Start(context.Background(), "biz-1", lead.ID, testContact)
	require.NoError(t, err)
	assert.True(t, reply.Done)
	assert.Contains(t, reply.Text, "No encontré citas")
}

func TestReschedule_PickAmongSeveral(t *testing.T) {
	f := newFixture(t)
	r, convs := f.rescheduler(t, "")
	ctx := context.Background()

	lead := f.seedLead(t)
	f.seedAppointment(t, lead.ID, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))
	f.seedAppointment(t, lead.ID, time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))

	reply, err := r.Start(ctx, "biz-1", lead.ID, testContact)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "1. martes 3 de marzo a las 10:00")
	assert.Contains(t, reply.Text, "2. miércoles 4 de marzo a las 12:00")

	// Garbage keeps asking.
	reply, err = r.Advance(ctx, "biz-1", testContact, "la de la tarde")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "número del 1 al 2")

	reply, err = r.Advance(ctx, "biz-1", testContact, "2")
	require.NoError(t, err)
	assert.Equal(t, msgAskNewSlot, reply.Text)

	conv, err := convs.Get(ctx, "biz-1", testContact)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingNewSlot, conv.State)
	assert.NotEmpty(t, conv.OriginalID)
}

func TestReschedule_DeclineKeepsAppointment(t *testing.T) {
	f := newFixture(t)
	r, convs := f.rescheduler(t, "")
	ctx := context.Background()

	lead := f.seedLead(t)
	original := f.seedAppointment(t, lead.ID, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))

	_, err := r.Start(ctx, "biz-1", lead.ID, testContact)
	require.NoError(t, err)

	reply, err := r.Advance(ctx, "biz-1", testContact, "no")
	require.NoError(t, err)
	assert.True(t, reply.Done)
	assert.Contains(t, reply.Text, "queda como está")

	kept, err := f.ledger.GetByID(ctx, "biz-1", original.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusConfirmed, kept.Status)

	_, err = convs.Get(ctx, "biz-1", testContact)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestReschedule_UnavailableSlotKeepsAsking(t *testing.T) {
	f := newFixture(t)
	// Saturday: the business has no weekend hours.
	r, convs := f.rescheduler(t, `{"weekday": "sábado", "relative_day": null, "day_of_month": null, "time": "5pm"}`)
	ctx := context.Background()

	lead := f.seedLead(t)
	original := f.seedAppointment(t, lead.ID, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))

	_, err := r.Start(ctx, "biz-1", lead.ID, testContact)
	require.NoError(t, err)
	_, err = r.Advance(ctx, "biz-1", testContact, "sí")
	require.NoError(t, err)

	reply, err := r.Advance(ctx, "biz-1", testContact, "el sábado a las 5pm")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "no abrimos")

	conv, err := convs.Get(ctx, "biz-1", testContact)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingNewSlot, conv.State)

	// Nothing moved.
	kept, err := f.ledger.GetByID(ctx, "biz-1", original.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusConfirmed, kept.Status)
}

func TestReschedule_OwnSlotDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	// Same day and hour the original already occupies.
	r, _ := f.rescheduler(t, `{"weekday": "martes", "relative_day": null, "day_of_month": null, "time": "10am"}`)
	ctx := context.Background()

	lead := f.seedLead(t)
	f.seedAppointment(t, lead.ID, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))

	_, err := r.Start(ctx, "biz-1", lead.ID, testContact)
	require.NoError(t, err)
	_, err = r.Advance(ctx, "biz-1", testContact, "sí")
	require.NoError(t, err)

	reply, err := r.Advance(ctx, "biz-1", testContact, "el martes a las 10am")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "¿Confirmo el cambio")
}

func TestReschedule_RejectNewSlotAsksAgain(t *testing.T) {
	f := newFixture(t)
	r, convs := f.rescheduler(t, `{"weekday": "viernes", "relative_day": null, "day_of_month": null, "time": "5pm"}`)
	ctx := context.Background()

	lead := f.seedLead(t)
	f.seedAppointment(t, lead.ID, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))

	_, err := r.Start(ctx, "biz-1", lead.ID, testContact)
	require.NoError(t, err)
	_, err = r.Advance(ctx, "biz-1", testContact, "sí")
	require.NoError(t, err)
	_, err = r.Advance(ctx, "biz-1", testContact, "el viernes a las 5pm")
	require.NoError(t, err)

	reply, err := r.Advance(ctx, "biz-1", testContact, "no")
	require.NoError(t, err)
	assert.False(t, reply.Done)
	assert.Contains(t, reply.Text, "¿Para cuándo")

	conv, err := convs.Get(ctx, "biz-1", testContact)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingNewSlot, conv.State)
	assert.True(t, conv.NewStart.IsZero())
}

func TestReschedule_UnknownConversation(t *testing.T) {
	f := newFixture(t)
	r, _ := f.rescheduler(t, "")

	_, err := r.Advance(context.Background(), "biz-1", "stranger", "hola")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
