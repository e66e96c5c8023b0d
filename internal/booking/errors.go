package booking

import "errors"

var (
	// ErrUnavailable wraps an availability rejection; Result.Reason carries
	// which check failed.
	ErrUnavailable = errors.New("booking: slot unavailable")

	// ErrNoDateSignal means the customer's message contained no usable date
	// or time and the conversation should re-prompt.
	ErrNoDateSignal = errors.New("booking: no date signal")

	// ErrConversationNotFound means no reschedule conversation exists for
	// the contact.
	ErrConversationNotFound = errors.New("booking: conversation not found")
)
