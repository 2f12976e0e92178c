package models

import "time"

type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

type MessageStatus string

const (
	MessageQueued    MessageStatus = "QUEUED"
	MessageSent      MessageStatus = "SENT"
	MessageDelivered MessageStatus = "DELIVERED"
	MessageRead      MessageStatus = "READ"
	MessageFailed    MessageStatus = "FAILED"
)

// Message is one persisted message row. Immutable once written except for
// status and delivery timestamps, which polling updates.
type Message struct {
	ID              int64             `json:"id"`
	VendorMessageID string            `json:"vendor_message_id"`
	ConversationID  string            `json:"conversation_id"`
	Direction       MessageDirection  `json:"direction"`
	Channel         Channel           `json:"channel"`
	Body            string            `json:"body"`
	MediaURL        *string           `json:"media_url,omitempty"`
	Status          MessageStatus     `json:"status"`
	TemplateKey     *string           `json:"template_key,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	SentAt          *time.Time        `json:"sent_at,omitempty"`
	DeliveredAt     *time.Time        `json:"delivered_at,omitempty"`
	ReadAt          *time.Time        `json:"read_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
