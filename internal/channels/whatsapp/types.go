package whatsapp

import "time"

// WebhookEvent is the top-level structure received from Meta's WhatsApp
// Cloud API webhook.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents a single entry in the webhook payload.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries one field update; messages arrive under field "messages".
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value holds the message batch and its metadata.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
	Statuses         []Status  `json:"statuses"`
}

// Metadata identifies which business phone number received the batch.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender's WhatsApp profile.
type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

// Profile carries the sender's display name.
type Profile struct {
	Name string `json:"name"`
}

// Message is a single inbound message.
type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *Text  `json:"text,omitempty"`
}

// Text is the body of a text message.
type Text struct {
	Body string `json:"body"`
}

// Status is a delivery receipt; the webhook acknowledges and ignores these.
type Status struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// SendRequest is the payload for outbound Cloud API messages.
type SendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             SendText `json:"text"`
}

// SendText is the outbound text body.
type SendText struct {
	Body string `json:"body"`
}

// SendResponse is the Cloud API response after sending a message.
type SendResponse struct {
	Messages []SentMessage `json:"messages"`
	Error    *SendError    `json:"error,omitempty"`
}

// SentMessage identifies a queued outbound message.
type SentMessage struct {
	ID string `json:"id"`
}

// SendError represents an error returned by the Cloud API.
type SendError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

// ParsedInboundMessage is the normalized result of parsing a webhook event.
type ParsedInboundMessage struct {
	MessageID     string
	From          string
	SenderName    string
	PhoneNumberID string
	Text          string
	Timestamp     time.Time
}
