package schedule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSlotTaken is returned by Reserve when the slot filled up between the
// advisory check and the write.
var ErrSlotTaken = errors.New("schedule: slot taken")

// Store provides read access to the scheduling configuration: businesses,
// weekly hours, date exceptions and appointment types.
type Store interface {
	GetBusiness(ctx context.Context, businessID string) (*Business, error)
	// GetHours returns the weekly window for the weekday, or nil when the
	// business is closed that day.
	GetHours(ctx context.Context, businessID string, weekday time.Weekday) (*BusinessHours, error)
	// GetException returns the override for a business-local calendar date
	// ("2006-01-02"), or nil when none exists.
	GetException(ctx context.Context, businessID, date string) (*ScheduleException, error)
	GetAppointmentType(ctx context.Context, businessID, typeID string) (*AppointmentType, error)
}

// ReserveParams carries everything the ledger needs to re-run the conflict
// scan atomically with the insert.
type ReserveParams struct {
	Appointment    *Appointment
	Exclusive      bool
	MaxConcurrency int
	// ExcludeID is ignored by the conflict count so a reschedule is not
	// blocked by the appointment it replaces.
	ExcludeID string
}

// Ledger is the appointment ledger: the booked source of truth.
type Ledger interface {
	// Reserve inserts a pending appointment, re-checking the conflict count
	// under a per-business lock. Returns ErrSlotTaken when the slot filled.
	Reserve(ctx context.Context, p ReserveParams) (*Appointment, error)
	GetByID(ctx context.Context, businessID, id string) (*Appointment, error)
	// ListActiveBetween returns calendar-blocking appointments whose start
	// falls in [from, to).
	ListActiveBetween(ctx context.Context, businessID string, from, to time.Time) ([]*Appointment, error)
	// ListOpenForLead returns the lead's pending/confirmed appointments,
	// soonest first.
	ListOpenForLead(ctx context.Context, businessID, leadID string) ([]*Appointment, error)
	// UpdateStatus applies a lifecycle transition, enforcing the allowed
	// transition table.
	UpdateStatus(ctx context.Context, businessID, id string, next Status) error
}

// InMemoryStore is a Store backed by maps, used in tests and local runs.
type InMemoryStore struct {
	mu         sync.RWMutex
	businesses map[string]*Business
	hours      map[string]map[time.Weekday]*BusinessHours
	exceptions map[string]map[string]*ScheduleException
	types      map[string]*AppointmentType
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		businesses: make(map[string]*Business),
		hours:      make(map[string]map[time.Weekday]*BusinessHours),
		exceptions: make(map[string]map[string]*ScheduleException),
		types:      make(map[string]*AppointmentType),
	}
}

// PutBusiness registers a business.
func (s *InMemoryStore) PutBusiness(b *Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = b
}

// PutHours registers a weekly window.
func (s *InMemoryStore) PutHours(h *BusinessHours) error {
	if err := h.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hours[h.BusinessID] == nil {
		s.hours[h.BusinessID] = make(map[time.Weekday]*BusinessHours)
	}
	s.hours[h.BusinessID][h.Weekday] = h
	return nil
}

// PutException registers a date exception.
func (s *InMemoryStore) PutException(e *ScheduleException) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exceptions[e.BusinessID] == nil {
		s.exceptions[e.BusinessID] = make(map[string]*ScheduleException)
	}
	s.exceptions[e.BusinessID][e.Date] = e
	return nil
}

// PutAppointmentType registers a service type.
func (s *InMemoryStore) PutAppointmentType(t *AppointmentType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[t.ID] = t
}

func (s *InMemoryStore) GetBusiness(ctx context.Context, businessID string) (*Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.businesses[businessID]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return b, nil
}

func (s *InMemoryStore) GetHours(ctx context.Context, businessID string, weekday time.Weekday) (*BusinessHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hours[businessID][weekday], nil
}

func (s *InMemoryStore) GetException(ctx context.Context, businessID, date string) (*ScheduleException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exceptions[businessID][date], nil
}

func (s *InMemoryStore) GetAppointmentType(ctx context.Context, businessID, typeID string) (*AppointmentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.types[typeID]
	if !ok || t.BusinessID != businessID {
		return nil, ErrTypeNotFound
	}
	return t, nil
}

// InMemoryLedger is a Ledger backed by a map, used in tests and local runs.
// Reserve serializes on the ledger mutex, which closes the check-then-act
// race within a single process.
type InMemoryLedger struct {
	mu    sync.Mutex
	appts map[string]*Appointment
}

// NewInMemoryLedger creates an empty in-memory ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{appts: make(map[string]*Appointment)}
}

func (l *InMemoryLedger) Reserve(ctx context.Context, p ReserveParams) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	appt := *p.Appointment
	candidate := appt.Occupied()
	count := 0
	for _, other := range l.appts {
		if other.BusinessID != appt.BusinessID || !other.Status.BlocksCalendar() {
			continue
		}
		if other.ID == p.ExcludeID {
			continue
		}
		if p.Exclusive && other.TypeID != appt.TypeID {
			continue
		}
		if candidate.Overlaps(other.Occupied()) {
			count++
		}
	}
	max := p.MaxConcurrency
	if max < 1 {
		max = 1
	}
	if count >= max {
		return nil, ErrSlotTaken
	}

	now := time.Now().UTC()
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = StatusPending
	}
	appt.StartAt = appt.StartAt.UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	l.appts[appt.ID] = &appt
	stored := appt
	return &stored, nil
}

func (l *InMemoryLedger) GetByID(ctx context.Context, businessID, id string) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.appts[id]
	if !ok || a.BusinessID != businessID {
		return nil, ErrAppointmentNotFound
	}
	copied := *a
	return &copied, nil
}

func (l *InMemoryLedger) ListActiveBetween(ctx context.Context, businessID string, from, to time.Time) ([]*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Appointment
	for _, a := range l.appts {
		if a.BusinessID != businessID || !a.Status.BlocksCalendar() {
			continue
		}
		if a.StartAt.Before(from) || !a.StartAt.Before(to) {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (l *InMemoryLedger) ListOpenForLead(ctx context.Context, businessID, leadID string) ([]*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Appointment
	for _, a := range l.appts {
		if a.BusinessID != businessID || a.LeadID != leadID || !a.Status.BlocksCalendar() {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (l *InMemoryLedger) UpdateStatus(ctx context.Context, businessID, id string, next Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.appts[id]
	if !ok || a.BusinessID != businessID {
		return ErrAppointmentNotFound
	}
	if !a.Status.CanTransition(next) {
		return ErrInvalidTransition
	}
	a.Status = next
	a.UpdatedAt = time.Now().UTC()
	return nil
}
