package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConversationState tracks progress through the reschedule dialogue.
type ConversationState string

const (
	StateIdentifyingOriginal ConversationState = "identifying_original"
	StateConfirmingOriginal  ConversationState = "confirming_original"
	StateAwaitingNewSlot     ConversationState = "awaiting_new_slot"
	StateConfirmingNewSlot   ConversationState = "confirming_new_slot"
	StateDone                ConversationState = "done"
)

// Conversation is the persisted context of one reschedule dialogue, keyed
// by (business, contact). Nothing in it is destructive: the ledger is only
// touched when the dialogue reaches its final confirmation.
type Conversation struct {
	BusinessID string            `json:"business_id"`
	LeadID     string            `json:"lead_id"`
	Contact    string            `json:"contact"`
	State      ConversationState `json:"state"`
	OriginalID string            `json:"original_id,omitempty"`
	Candidates []string          `json:"candidates,omitempty"`
	NewStart   time.Time         `json:"new_start,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ConversationStore persists reschedule conversations between messages.
type ConversationStore interface {
	Get(ctx context.Context, businessID, contact string) (*Conversation, error)
	Save(ctx context.Context, conv *Conversation) error
	Delete(ctx context.Context, businessID, contact string) error
}

// conversationTTL bounds how long an abandoned dialogue lingers.
const conversationTTL = 30 * time.Minute

// RedisConversationStore keeps conversations in Redis with a sliding TTL so
// any API instance can continue a dialogue.
type RedisConversationStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisConversationStore creates a conversation store on the given client.
func NewRedisConversationStore(client *redis.Client) *RedisConversationStore {
	return &RedisConversationStore{client: client, ttl: conversationTTL}
}

func conversationKey(businessID, contact string) string {
	return fmt.Sprintf("citaplan:resched:%s:%s", businessID, contact)
}

func (s *RedisConversationStore) Get(ctx context.Context, businessID, contact string) (*Conversation, error) {
	raw, err := s.client.Get(ctx, conversationKey(businessID, contact)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("booking: load conversation: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("booking: decode conversation: %w", err)
	}
	return &conv, nil
}

func (s *RedisConversationStore) Save(ctx context.Context, conv *Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("booking: encode conversation: %w", err)
	}
	if err := s.client.Set(ctx, conversationKey(conv.BusinessID, conv.Contact), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("booking: save conversation: %w", err)
	}
	return nil
}

func (s *RedisConversationStore) Delete(ctx context.Context, businessID, contact string) error {
	if err := s.client.Del(ctx, conversationKey(businessID, contact)).Err(); err != nil {
		return fmt.Errorf("booking: delete conversation: %w", err)
	}
	return nil
}

// InMemoryConversationStore backs tests and local runs without Redis.
type InMemoryConversationStore struct {
	mu    sync.Mutex
	convs map[string]*Conversation
}

func NewInMemoryConversationStore() *InMemoryConversationStore {
	return &InMemoryConversationStore{convs: make(map[string]*Conversation)}
}

func (s *InMemoryConversationStore) Get(ctx context.Context, businessID, contact string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationKey(businessID, contact)]
	if !ok {
		return nil, ErrConversationNotFound
	}
	copied := *conv
	return &copied, nil
}

func (s *InMemoryConversationStore) Save(ctx context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv.UpdatedAt = time.Now().UTC()
	copied := *conv
	s.convs[conversationKey(conv.BusinessID, conv.Contact)] = &copied
	return nil
}

func (s *InMemoryConversationStore) Delete(ctx context.Context, businessID, contact string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, conversationKey(businessID, contact))
	return nil
}
