package schedule

import (
	"fmt"
	"time"
)

// Status tracks the lifecycle of an appointment. Appointments are never
// physically deleted; cancellation and rescheduling are status flips.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusRescheduled Status = "rescheduled"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusRescheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether a transition from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusConfirmed:
		return s == StatusPending
	case StatusRescheduled, StatusCancelled, StatusCompleted:
		return s == StatusPending || s == StatusConfirmed
	}
	return false
}

// BlocksCalendar reports whether the appointment still occupies its slot for
// concurrency counting. Rescheduled rows are superseded by a replacement row,
// so they free their original slot.
func (s Status) BlocksCalendar() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Business is the tenant that owns a calendar.
type Business struct {
	ID       string
	Name     string
	Timezone string
}

// Location returns the business's *time.Location, falling back to UTC when
// the configured timezone is empty or invalid.
func (b *Business) Location() *time.Location {
	if b == nil || b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BusinessHours is one weekly open/close window, local wall clock.
type BusinessHours struct {
	BusinessID string
	Weekday    time.Weekday
	Open       string // "HH:MM"
	Close      string // "HH:MM"
}

// Validate enforces open < close.
func (h *BusinessHours) Validate() error {
	open, err := ClockMinutes(h.Open)
	if err != nil {
		return fmt.Errorf("schedule: parse open %q: %w", h.Open, err)
	}
	closeMin, err := ClockMinutes(h.Close)
	if err != nil {
		return fmt.Errorf("schedule: parse close %q: %w", h.Close, err)
	}
	if open >= closeMin {
		return ErrInvalidWindow
	}
	return nil
}

// ScheduleException overrides the weekly hours for one calendar date: either
// a full-day closure or a special open/close window.
type ScheduleException struct {
	BusinessID string
	Date       string // "2006-01-02", business-local
	Closed     bool
	Open       string // "HH:MM", only when !Closed
	Close      string
	Reason     string
}

// Validate enforces open < close for override windows.
func (e *ScheduleException) Validate() error {
	if e.Closed {
		return nil
	}
	h := BusinessHours{Open: e.Open, Close: e.Close}
	return h.Validate()
}

// AppointmentType is a bookable service type. Immutable during a check.
type AppointmentType struct {
	ID              string
	BusinessID      string
	Name            string
	DurationMinutes int
	BufferMinutes   int
	InPerson        bool
	Virtual         bool
	MaxConcurrency  int  // simultaneous bookings allowed, default 1
	Exclusive       bool // conflict scan only counts same-type appointments
}

// Duration returns the service duration.
func (t *AppointmentType) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// Concurrency returns MaxConcurrency, defaulting to 1.
func (t *AppointmentType) Concurrency() int {
	if t.MaxConcurrency < 1 {
		return 1
	}
	return t.MaxConcurrency
}

// Appointment is one row in the ledger. Start is stored in UTC; duration and
// buffer are denormalized from the type at load time so the conflict scan
// does not re-fetch types per row.
type Appointment struct {
	ID              string
	BusinessID      string
	LeadID          string
	TypeID          string
	StartAt         time.Time
	DurationMinutes int
	BufferMinutes   int
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Occupied returns the half-open interval this appointment blocks,
// including the trailing buffer.
func (a *Appointment) Occupied() Interval {
	end := a.StartAt.Add(time.Duration(a.DurationMinutes+a.BufferMinutes) * time.Minute)
	return Interval{Start: a.StartAt.UTC(), End: end.UTC()}
}

// Interval is a half-open [Start, End) span of absolute instants.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps implements the standard half-open interval overlap test.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// ClockMinutes parses an "HH:MM" wall-clock string into minutes after
// midnight.
func ClockMinutes(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
