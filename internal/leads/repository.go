package leads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	// UpsertByEmail creates the lead or refreshes name/phone on the
	// existing row keyed by (business, email).
	UpsertByEmail(ctx context.Context, req *UpsertLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, businessID, id string) (*Lead, error)
	// GetByPhone finds the most recent lead with the given phone, used to
	// identify WhatsApp senders.
	GetByPhone(ctx context.Context, businessID, phone string) (*Lead, error)
	ListByBusiness(ctx context.Context, businessID string, filter ListLeadsFilter) ([]*Lead, error)
}

// InMemoryRepository is a Repository backed by a map, for tests and local runs.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
	}
}

func (r *InMemoryRepository) UpsertByEmail(ctx context.Context, req *UpsertLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, lead := range r.leads {
		if lead.BusinessID == req.BusinessID && lead.Email == email {
			lead.Name = req.Name
			if req.Phone != "" {
				lead.Phone = req.Phone
			}
			copied := *lead
			return &copied, nil
		}
	}

	lead := &Lead{
		ID:         uuid.NewString(),
		BusinessID: req.BusinessID,
		Name:       req.Name,
		Email:      email,
		Phone:      req.Phone,
		Source:     req.Source,
		CreatedAt:  time.Now().UTC(),
	}
	r.leads[lead.ID] = lead
	copied := *lead
	return &copied, nil
}

// GetByID retrieves a lead scoped to the business.
func (r *InMemoryRepository) GetByID(ctx context.Context, businessID, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok || lead.BusinessID != businessID {
		return nil, ErrLeadNotFound
	}
	copied := *lead
	return &copied, nil
}

// GetByPhone finds the newest lead carrying the phone number.
func (r *InMemoryRepository) GetByPhone(ctx context.Context, businessID, phone string) (*Lead, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrLeadNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *Lead
	for _, lead := range r.leads {
		if lead.BusinessID != businessID || lead.Phone != phone {
			continue
		}
		if newest == nil || lead.CreatedAt.After(newest.CreatedAt) {
			newest = lead
		}
	}
	if newest == nil {
		return nil, ErrLeadNotFound
	}
	copied := *newest
	return &copied, nil
}

func (r *InMemoryRepository) ListByBusiness(ctx context.Context, businessID string, filter ListLeadsFilter) ([]*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Lead
	for _, lead := range r.leads {
		if lead.BusinessID == businessID {
			copied := *lead
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}
