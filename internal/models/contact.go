package models

import "time"

// Channel is a messaging transport supported by the Conversation API.
type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelRCS      Channel = "RCS"
)

// Valid reports whether the channel is one this module can send on.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelWhatsApp, ChannelRCS:
		return true
	}
	return false
}

// Contact links one patient to one vendor-side addressable identity on a
// channel. There is at most one contact per (patient, channel); the vendor
// id is immutable once assigned.
type Contact struct {
	ID              int64     `json:"id"`
	VendorContactID string    `json:"vendor_contact_id"`
	PatientID       int64     `json:"patient_id"`
	Channel         Channel   `json:"channel"`
	ChannelIdentity string    `json:"channel_identity"` // phone number or handle
	DisplayName     string    `json:"display_name"`
	OptedIn         bool      `json:"opted_in"`
	OptedOut        bool      `json:"opted_out"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
