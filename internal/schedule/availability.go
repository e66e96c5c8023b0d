package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/example/citaplan/pkg/logging"
)

// Unavailability reasons, in the order the checks run.
const (
	ReasonInPast         = "in the past"
	ReasonNonBusinessDay = "non-business day"
	ReasonOutsideHours   = "outside business hours"
	ReasonSlotTaken      = "slot taken"
)

// conflictLookback bounds how far back the conflict scan fetches existing
// appointments. No appointment plus buffer runs longer than this.
const conflictLookback = 24 * time.Hour

// Decision is the outcome of an availability check.
type Decision struct {
	Available bool
	Reason    string
}

// Checker decides whether a desired instant is bookable for a business and
// appointment type. Interval math runs in UTC; only the business-hours
// comparison converts to the business's wall clock.
type Checker struct {
	store  Store
	ledger Ledger
	logger *logging.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewChecker constructs an availability checker.
func NewChecker(store Store, ledger Ledger, logger *logging.Logger) *Checker {
	if store == nil || ledger == nil {
		panic("schedule: store and ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Checker{store: store, ledger: ledger, logger: logger, Now: time.Now}
}

// Check runs the availability decision procedure, short-circuiting on the
// first failing step. excludeID lets a reschedule ignore the appointment it
// is about to move.
func (c *Checker) Check(ctx context.Context, businessID, typeID string, desired time.Time, excludeID string) (Decision, error) {
	now := c.Now().UTC()
	desired = desired.UTC()

	if !desired.After(now) {
		return Decision{Reason: ReasonInPast}, nil
	}

	business, err := c.store.GetBusiness(ctx, businessID)
	if err != nil {
		return Decision{}, err
	}
	apptType, err := c.store.GetAppointmentType(ctx, businessID, typeID)
	if err != nil {
		return Decision{}, err
	}

	loc := business.Location()
	local := desired.In(loc)
	date := local.Format("2006-01-02")

	exception, err := c.store.GetException(ctx, businessID, date)
	if err != nil {
		return Decision{}, fmt.Errorf("schedule: load exception: %w", err)
	}
	if exception != nil && exception.Closed {
		return Decision{Reason: ReasonNonBusinessDay}, nil
	}

	open, close, ok, err := c.effectiveWindow(ctx, businessID, local.Weekday(), exception)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{Reason: ReasonNonBusinessDay}, nil
	}

	startMin := local.Hour()*60 + local.Minute()
	endMin := startMin + apptType.DurationMinutes
	if startMin < open || startMin >= close || endMin > close {
		return Decision{Reason: ReasonOutsideHours}, nil
	}

	taken, err := c.slotTaken(ctx, businessID, apptType, desired, excludeID)
	if err != nil {
		return Decision{}, err
	}
	if taken {
		return Decision{Reason: ReasonSlotTaken}, nil
	}

	return Decision{Available: true}, nil
}

// effectiveWindow resolves the open/close minutes for the date: the
// exception's override when present, else the weekly hours row.
func (c *Checker) effectiveWindow(ctx context.Context, businessID string, weekday time.Weekday, exception *ScheduleException) (open, close int, ok bool, err error) {
	if exception != nil && !exception.Closed {
		open, err = ClockMinutes(exception.Open)
		if err != nil {
			return 0, 0, false, fmt.Errorf("schedule: exception open: %w", err)
		}
		close, err = ClockMinutes(exception.Close)
		if err != nil {
			return 0, 0, false, fmt.Errorf("schedule: exception close: %w", err)
		}
		return open, close, true, nil
	}

	hours, err := c.store.GetHours(ctx, businessID, weekday)
	if err != nil {
		return 0, 0, false, fmt.Errorf("schedule: load hours: %w", err)
	}
	if hours == nil {
		return 0, 0, false, nil
	}
	open, err = ClockMinutes(hours.Open)
	if err != nil {
		return 0, 0, false, fmt.Errorf("schedule: hours open: %w", err)
	}
	close, err = ClockMinutes(hours.Close)
	if err != nil {
		return 0, 0, false, fmt.Errorf("schedule: hours close: %w", err)
	}
	return open, close, true, nil
}

// slotTaken counts overlapping calendar-blocking appointments against the
// type's concurrency limit.
func (c *Checker) slotTaken(ctx context.Context, businessID string, apptType *AppointmentType, desired time.Time, excludeID string) (bool, error) {
	occupied := time.Duration(apptType.DurationMinutes+apptType.BufferMinutes) * time.Minute
	candidate := Interval{Start: desired, End: desired.Add(occupied)}

	existing, err := c.ledger.ListActiveBetween(ctx, businessID, candidate.Start.Add(-conflictLookback), candidate.End)
	if err != nil {
		return false, fmt.Errorf("schedule: conflict scan: %w", err)
	}

	count := 0
	for _, other := range existing {
		if other.ID == excludeID {
			continue
		}
		if apptType.Exclusive && other.TypeID != apptType.ID {
			continue
		}
		if candidate.Overlaps(other.Occupied()) {
			count++
		}
	}
	return count >= apptType.Concurrency(), nil
}
