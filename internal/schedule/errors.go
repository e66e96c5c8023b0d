package schedule

import "errors"

var (
	// ErrInvalidWindow is returned when an open/close window is not open < close.
	ErrInvalidWindow = errors.New("schedule: open must be before close")

	// ErrBusinessNotFound is returned when the business does not exist.
	ErrBusinessNotFound = errors.New("schedule: business not found")

	// ErrTypeNotFound is returned when the appointment type does not exist.
	ErrTypeNotFound = errors.New("schedule: appointment type not found")

	// ErrAppointmentNotFound is returned when an appointment does not exist.
	ErrAppointmentNotFound = errors.New("schedule: appointment not found")

	// ErrInvalidTransition is returned for disallowed status transitions.
	ErrInvalidTransition = errors.New("schedule: invalid status transition")
)
