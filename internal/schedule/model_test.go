package schedule

import (
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusRescheduled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusRescheduled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusRescheduled, StatusCancelled, false},
		{StatusCompleted, StatusCompleted, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusBlocksCalendar(t *testing.T) {
	blocking := map[Status]bool{
		StatusPending:     true,
		StatusConfirmed:   true,
		StatusRescheduled: false,
		StatusCancelled:   false,
		StatusCompleted:   false,
	}
	for status, want := range blocking {
		if got := status.BlocksCalendar(); got != want {
			t.Errorf("BlocksCalendar(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestIntervalOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mk := func(startMin, endMin int) Interval {
		return Interval{
			Start: base.Add(time.Duration(startMin) * time.Minute),
			End:   base.Add(time.Duration(endMin) * time.Minute),
		}
	}
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"identical", mk(0, 30), mk(0, 30), true},
		{"contained", mk(0, 60), mk(15, 30), true},
		{"partial", mk(0, 30), mk(20, 50), true},
		{"touching half-open", mk(0, 30), mk(30, 60), false},
		{"disjoint", mk(0, 30), mk(45, 60), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.b); got != tc.want {
				t.Fatalf("Overlaps = %v, want %v", got, tc.want)
			}
			if got := tc.b.Overlaps(tc.a); got != tc.want {
				t.Fatalf("Overlaps (reversed) = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAppointmentOccupiedIncludesBuffer(t *testing.T) {
	appt := Appointment{
		StartAt:         time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		BufferMinutes:   10,
	}
	occ := appt.Occupied()
	wantEnd := time.Date(2026, 3, 2, 10, 40, 0, 0, time.UTC)
	if !occ.End.Equal(wantEnd) {
		t.Fatalf("Occupied().End = %v, want %v", occ.End, wantEnd)
	}
}

func TestBusinessHoursValidate(t *testing.T) {
	good := BusinessHours{Open: "09:00", Close: "18:00"}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	inverted := BusinessHours{Open: "18:00", Close: "09:00"}
	if err := inverted.Validate(); err != ErrInvalidWindow {
		t.Fatalf("Validate inverted = %v, want ErrInvalidWindow", err)
	}
	malformed := BusinessHours{Open: "nine", Close: "18:00"}
	if err := malformed.Validate(); err == nil {
		t.Fatal("expected error for malformed open time")
	}
}

func TestScheduleExceptionValidate(t *testing.T) {
	closure := ScheduleException{Closed: true}
	if err := closure.Validate(); err != nil {
		t.Fatalf("full closure should not need a window: %v", err)
	}
	override := ScheduleException{Open: "10:00", Close: "14:00"}
	if err := override.Validate(); err != nil {
		t.Fatalf("Validate override: %v", err)
	}
	bad := ScheduleException{Open: "14:00", Close: "10:00"}
	if err := bad.Validate(); err != ErrInvalidWindow {
		t.Fatalf("Validate inverted override = %v, want ErrInvalidWindow", err)
	}
}

func TestBusinessLocationFallback(t *testing.T) {
	b := Business{Timezone: "Not/AZone"}
	if loc := b.Location(); loc != time.UTC {
		t.Fatalf("invalid timezone should fall back to UTC, got %v", loc)
	}
	b = Business{Timezone: "America/Mexico_City"}
	if loc := b.Location(); loc.String() != "America/Mexico_City" {
		t.Fatalf("Location = %v", loc)
	}
}

func TestClockMinutes(t *testing.T) {
	if m, err := ClockMinutes("09:30"); err != nil || m != 570 {
		t.Fatalf("ClockMinutes(09:30) = %d, %v", m, err)
	}
	if _, err := ClockMinutes(""); err == nil {
		t.Fatal("expected error for empty clock")
	}
	if _, err := ClockMinutes("25:00"); err == nil {
		t.Fatal("expected error for out-of-range hour")
	}
}
