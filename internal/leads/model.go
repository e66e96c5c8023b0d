package leads

import (
	"strings"
	"time"
)

// Lead is a CRM contact for a business. Bookings upsert leads by email so a
// returning contact keeps a single row.
type Lead struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// UpsertLeadRequest carries the contact info arriving with a booking.
type UpsertLeadRequest struct {
	BusinessID string `json:"-"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Source     string `json:"source"`
}

// Validate validates the upsert request.
func (r *UpsertLeadRequest) Validate() error {
	if strings.TrimSpace(r.BusinessID) == "" {
		return ErrMissingBusinessID
	}
	if r.Name == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(r.Email) == "" {
		return ErrMissingEmail
	}
	return nil
}

// ListLeadsFilter controls pagination of the CRM lead listing.
type ListLeadsFilter struct {
	Limit  int
	Offset int
}
