package models

import "time"

type ConversationStatus string

const (
	ConversationActive ConversationStatus = "ACTIVE"
	ConversationClosed ConversationStatus = "CLOSED"
)

// Conversation is a vendor-tracked thread between the clinic and one
// contact. Created lazily on first send; at most one active conversation
// per (contact, patient).
type Conversation struct {
	ID string `json:"id"`
	// VendorConversationID is learned from the vendor after the first
	// send and is empty until then. Polling needs it.
	VendorConversationID string             `json:"vendor_conversation_id,omitempty"`
	VendorContactID      string             `json:"vendor_contact_id"`
	PatientID            int64              `json:"patient_id"`
	Channel              Channel            `json:"channel"`
	Status               ConversationStatus `json:"status"`
	LastPolledAt         *time.Time         `json:"last_polled_at,omitempty"`
	LastMessageAt        *time.Time         `json:"last_message_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}
