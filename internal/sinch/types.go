package sinch

import (
	"fmt"
	"time"
)

// APIError is a non-2xx final response from the vendor, or an OAuth/
// transport failure after retries. StatusCode is zero when no response
// was obtained.
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("sinch api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("sinch api error: %s", e.Message)
}

// apiErrorFromResult extracts the vendor's {"error":{"message":...}} body.
func apiErrorFromResult(res *Result) *APIError {
	message := "request failed"
	if errObj, ok := res.Body["error"].(map[string]interface{}); ok {
		if msg, ok := errObj["message"].(string); ok && msg != "" {
			message = msg
		}
	}
	return &APIError{Message: message, StatusCode: res.StatusCode}
}

// Message directions on the wire.
const (
	DirectionToApp     = "TO_APP"     // inbound, from the patient
	DirectionToContact = "TO_CONTACT" // outbound, from the clinic
)

type ChannelIdentity struct {
	Channel  string `json:"channel"`
	Identity string `json:"identity"`
}

type TextMessage struct {
	Text string `json:"text"`
}

type MessageContent struct {
	TextMessage *TextMessage `json:"text_message,omitempty"`
}

// MessageRecord is one message as the vendor reports it.
type MessageRecord struct {
	ID              string          `json:"id"`
	ConversationID  string          `json:"conversation_id"`
	ContactID       string          `json:"contact_id"`
	Direction       string          `json:"direction"`
	AcceptTime      time.Time       `json:"accept_time"`
	ChannelIdentity ChannelIdentity `json:"channel_identity"`
	ContactMessage  *MessageContent `json:"contact_message,omitempty"`
	AppMessage      *MessageContent `json:"app_message,omitempty"`
	Metadata        string          `json:"metadata,omitempty"`
}

// Text returns the text body regardless of direction, or "".
func (m *MessageRecord) Text() string {
	if m.ContactMessage != nil && m.ContactMessage.TextMessage != nil {
		return m.ContactMessage.TextMessage.Text
	}
	if m.AppMessage != nil && m.AppMessage.TextMessage != nil {
		return m.AppMessage.TextMessage.Text
	}
	return ""
}

// Inbound reports whether the message came from the patient side.
func (m *MessageRecord) Inbound() bool {
	return m.Direction == DirectionToApp
}

// ContactRecord is a vendor-side contact.
type ContactRecord struct {
	ID                string            `json:"id"`
	DisplayName       string            `json:"display_name,omitempty"`
	ChannelIdentities []ChannelIdentity `json:"channel_identities"`
	Metadata          string            `json:"metadata,omitempty"`
}

// SendMessageResponse is the decoded response of messages:send.
type SendMessageResponse struct {
	MessageID    string    `json:"message_id"`
	AcceptedTime time.Time `json:"accepted_time"`
}

// AppConfig is the channel/app configuration, used by inspection tooling.
type AppConfig struct {
	ID                             string                   `json:"id"`
	DisplayName                    string                   `json:"display_name"`
	ConversationMetadataReportView string                   `json:"conversation_metadata_report_view,omitempty"`
	DispatchRetentionPolicy        *DispatchRetentionPolicy `json:"dispatch_retention_policy,omitempty"`
	ChannelCredentials             []ChannelCredential      `json:"channel_credentials"`
}

type DispatchRetentionPolicy struct {
	RetentionType string `json:"retention_type"`
}

type ChannelCredential struct {
	Channel      string        `json:"channel"`
	State        *ChannelState `json:"state,omitempty"`
	StaticBearer *StaticBearer `json:"static_bearer,omitempty"`
	StaticToken  *StaticToken  `json:"static_token,omitempty"`
}

type ChannelState struct {
	Status string `json:"status"`
}

type StaticBearer struct {
	ClaimedIdentity string `json:"claimed_identity"`
}

type StaticToken struct {
	Token string `json:"token"`
}

// Template API shapes (the v2 template endpoint lives on its own host).

type TemplateVariable struct {
	Key          string `json:"key"`
	PreviewValue string `json:"preview_value"`
}

type TemplateTranslation struct {
	LanguageCode string             `json:"language_code"`
	Version      string             `json:"version"`
	Variables    []TemplateVariable `json:"variables,omitempty"`
	Message      *MessageContent    `json:"message,omitempty"`
}

type TemplateRecord struct {
	ID                 string                `json:"id,omitempty"`
	Description        string                `json:"description"`
	DefaultTranslation string                `json:"default_translation"`
	Translations       []TemplateTranslation `json:"translations"`
}

// WebhookRecord is one registered webhook subscription.
type WebhookRecord struct {
	ID       string   `json:"id,omitempty"`
	AppID    string   `json:"app_id"`
	Target   string   `json:"target"`
	Triggers []string `json:"triggers"`
	Secret   string   `json:"secret,omitempty"`
}

// WebhookEvent is the envelope the vendor posts to our webhook endpoint.
type WebhookEvent struct {
	ProjectID string         `json:"project_id"`
	AppID     string         `json:"app_id"`
	Message   *MessageRecord `json:"message,omitempty"`
}

// Request payloads.

type recipient struct {
	ContactID    string        `json:"contact_id,omitempty"`
	IdentifiedBy *identifiedBy `json:"identified_by,omitempty"`
}

type identifiedBy struct {
	ChannelIdentities []ChannelIdentity `json:"channel_identities"`
}

type sendMessageRequest struct {
	AppID                string         `json:"app_id"`
	Recipient            recipient      `json:"recipient"`
	Message              MessageContent `json:"message"`
	ChannelPriorityOrder []string       `json:"channel_priority_order,omitempty"`
	Metadata             string         `json:"metadata,omitempty"`
}

type createContactRequest struct {
	ChannelIdentities []ChannelIdentity `json:"channel_identities"`
	DisplayName       string            `json:"display_name,omitempty"`
	Metadata          string            `json:"metadata,omitempty"`
}
