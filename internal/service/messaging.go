package service

import (
	"context"
	"fmt"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/metrics"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/sinch"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContactStore defines the contact persistence the sender needs.
type ContactStore interface {
	SaveContact(ctx context.Context, contact *models.Contact) error
	GetContactByPatient(ctx context.Context, patientID int64, channel models.Channel) (*models.Contact, error)
}

// ConversationStore defines the conversation persistence the sender needs.
type ConversationStore interface {
	SaveConversation(ctx context.Context, conv *models.Conversation) error
	GetActiveConversation(ctx context.Context, patientID int64, channel models.Channel) (*models.Conversation, error)
	UpdateConversationVendorID(ctx context.Context, id, vendorConversationID string) error
	UpdateConversationLastMessageAt(ctx context.Context, id string, messageAt time.Time) error
}

// MessageStore defines the message persistence the sender needs.
type MessageStore interface {
	InsertMessageIfNew(ctx context.Context, msg *models.Message) (bool, error)
}

// SinchAPI is the slice of the vendor client the sender needs.
type SinchAPI interface {
	SendMessage(ctx context.Context, contactID, text string, opts sinch.SendOptions) (*sinch.SendMessageResponse, error)
	SendMessageToIdentity(ctx context.Context, channel, identity, text string, opts sinch.SendOptions) (*sinch.SendMessageResponse, error)
	CreateContact(ctx context.Context, channel, identity string, opts sinch.ContactOptions) (*sinch.ContactRecord, error)
	GetMessage(ctx context.Context, messageID string) (*sinch.MessageRecord, error)
}

// PatientDirectory resolves patient demographics from the medical record.
// The EMR side of that lookup lives outside this module. Lookups return
// "" when nothing is on file; only infrastructure failures are errors.
type PatientDirectory interface {
	PrimaryPhone(ctx context.Context, patientID int64) (string, error)
	DisplayName(ctx context.Context, patientID int64) (string, error)
}

// SendRequest is one message to one patient. The body comes either from
// a stored template (TemplateKey plus Variables) or directly from Body;
// exactly one of the two must be set. An empty PhoneNumber targets the
// patient's number on file.
type SendRequest struct {
	PatientID   int64
	PhoneNumber string
	Channel     models.Channel
	TemplateKey string
	Variables   map[string]string
	Body        string
	Metadata    map[string]string
}

// BatchRequest is one message to many patients.
type BatchRequest struct {
	PatientIDs  []int64
	Channel     models.Channel
	TemplateKey string
	Variables   map[string]string
	Body        string
}

// BatchResult summarizes a best-effort batch send.
type BatchResult struct {
	Sent   int
	Failed int
	Errors map[int64]error
}

// messageCategoryDirect labels sends whose body was supplied directly
// rather than rendered from a stored template.
const messageCategoryDirect = "direct"

// MessageService owns the outbound send workflow: consent gate, template
// render, contact and conversation provisioning, vendor send, persistence.
type MessageService struct {
	contacts      ContactStore
	conversations ConversationStore
	messages      MessageStore
	consent       *ConsentService
	templates     *TemplateService
	api           SinchAPI
	directory     PatientDirectory
	logger        *logrus.Logger
}

func NewMessageService(
	contacts ContactStore,
	conversations ConversationStore,
	messages MessageStore,
	consent *ConsentService,
	templates *TemplateService,
	api SinchAPI,
	directory PatientDirectory,
	logger *logrus.Logger,
) *MessageService {
	return &MessageService{
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		consent:       consent,
		templates:     templates,
		api:           api,
		directory:     directory,
		logger:        logger,
	}
}

// SendToPatient sends one message to one patient. Transactional
// templates skip the consent gate; everything else, direct bodies
// included, requires a current opt-in for the target phone number.
func (s *MessageService) SendToPatient(ctx context.Context, req SendRequest) (*models.Message, error) {
	start := time.Now()

	if !req.Channel.Valid() {
		return nil, models.ValidationError{Message: fmt.Sprintf("unsupported channel: %s", req.Channel)}
	}
	if req.TemplateKey == "" && req.Body == "" {
		return nil, models.ValidationError{Message: "either a template key or a message body is required"}
	}
	if req.TemplateKey != "" && req.Body != "" {
		return nil, models.ValidationError{Message: "template key and message body are mutually exclusive"}
	}

	phone := req.PhoneNumber
	if phone == "" {
		resolved, err := s.directory.PrimaryPhone(ctx, req.PatientID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve patient phone: %w", err)
		}
		phone = resolved
	}
	if phone == "" {
		return nil, models.ValidationError{Message: fmt.Sprintf("patient %d has no phone number on file", req.PatientID)}
	}
	if err := validation.ValidatePhoneNumber(phone); err != nil {
		return nil, err
	}

	category := messageCategoryDirect
	var tmpl *models.MessageTemplate
	if req.TemplateKey != "" {
		var err error
		tmpl, err = s.templates.store.GetTemplate(ctx, req.TemplateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load template: %w", err)
		}
		if tmpl == nil {
			return nil, models.ValidationError{Message: fmt.Sprintf("unknown template: %s", req.TemplateKey)}
		}
		category = tmpl.Category
	}

	if category != models.TemplateCategoryTransactional {
		allowed, err := s.consent.HasConsent(ctx, req.PatientID, phone)
		if err != nil {
			return nil, fmt.Errorf("failed to check consent: %w", err)
		}
		if !allowed {
			metrics.IncrementCounter("messages_blocked_total",
				map[string]string{"reason": "no_consent"},
				"Messages blocked before send")
			return nil, models.ValidationError{
				Message: fmt.Sprintf("patient %d has not consented to %s messages", req.PatientID, category),
			}
		}
	}

	body := req.Body
	if req.TemplateKey != "" {
		rendered, err := s.templates.Render(ctx, req.TemplateKey, req.Variables)
		if err != nil {
			return nil, err
		}
		body = rendered
	}
	if err := validation.ValidateMessageBody(body); err != nil {
		return nil, err
	}

	contact, err := s.ensureContact(ctx, req.PatientID, req.Channel, phone)
	if err != nil {
		return nil, err
	}

	conv, err := s.ensureConversation(ctx, contact)
	if err != nil {
		return nil, err
	}

	resp, err := s.api.SendMessage(ctx, contact.VendorContactID, body, sinch.SendOptions{
		ChannelPriorityOrder: []string{string(req.Channel)},
	})
	if err != nil {
		metrics.IncrementCounter("messages_send_failures_total",
			map[string]string{"channel": string(req.Channel)},
			"Vendor send failures")
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	sentAt := resp.AcceptedTime
	var templateKey *string
	if req.TemplateKey != "" {
		key := req.TemplateKey
		templateKey = &key
	}
	msg := &models.Message{
		VendorMessageID: resp.MessageID,
		ConversationID:  conv.ID,
		Direction:       models.DirectionOutbound,
		Channel:         req.Channel,
		Body:            body,
		Status:          models.MessageSent,
		TemplateKey:     templateKey,
		Metadata:        req.Metadata,
		SentAt:          &sentAt,
	}
	if _, err := s.messages.InsertMessageIfNew(ctx, msg); err != nil {
		// The message is already on the wire; a persistence failure is
		// logged loudly but does not fail the send.
		s.logger.WithError(err).WithField("vendorMessageId", resp.MessageID).
			Error("Sent message could not be persisted")
	}

	if err := s.conversations.UpdateConversationLastMessageAt(ctx, conv.ID, sentAt); err != nil {
		s.logger.WithError(err).Warn("Failed to update conversation activity")
	}

	s.captureVendorConversationID(ctx, conv, resp.MessageID)

	metrics.IncrementCounter("messages_sent_total",
		map[string]string{"channel": string(req.Channel), "category": category},
		"Messages accepted by vendor")
	metrics.RecordTimer("message_send_duration", time.Since(start), nil, "End-to-end send latency")

	s.logger.WithFields(logrus.Fields{
		"patientId":       req.PatientID,
		"channel":         req.Channel,
		"template":        req.TemplateKey,
		"vendorMessageId": resp.MessageID,
	}).Info("Message sent")

	return msg, nil
}

// SendBatch sends one template to many patients, best effort. A failure
// for one patient never stops the rest of the batch.
func (s *MessageService) SendBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if req.TemplateKey == "" && req.Body == "" {
		return nil, models.ValidationError{Message: "either a template key or a message body is required"}
	}
	if req.TemplateKey != "" {
		tmpl, err := s.templates.store.GetTemplate(ctx, req.TemplateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load template: %w", err)
		}
		if tmpl == nil {
			return nil, models.ValidationError{Message: fmt.Sprintf("unknown template: %s", req.TemplateKey)}
		}
		if tmpl.Applicability == models.TemplateApplicabilityIndividual {
			return nil, models.ValidationError{
				Message: fmt.Sprintf("template %s is not approved for batch sends", req.TemplateKey),
			}
		}
	}

	result := &BatchResult{Errors: make(map[int64]error)}
	for _, patientID := range req.PatientIDs {
		variables := make(map[string]string, len(req.Variables)+1)
		for k, v := range req.Variables {
			variables[k] = v
		}
		if name, err := s.directory.DisplayName(ctx, patientID); err == nil && name != "" {
			variables["patient_name"] = name
		}

		_, err := s.SendToPatient(ctx, SendRequest{
			PatientID:   patientID,
			Channel:     req.Channel,
			TemplateKey: req.TemplateKey,
			Variables:   variables,
			Body:        req.Body,
		})
		if err != nil {
			result.Failed++
			result.Errors[patientID] = err
			s.logger.WithError(err).WithField("patientId", patientID).
				Warn("Batch send failed for patient")
			continue
		}
		result.Sent++
	}

	return result, nil
}

// SendConsentConfirmation delivers a consent receipt by raw identity in
// dispatch mode. Transactional by definition, so no consent gate.
func (s *MessageService) SendConsentConfirmation(ctx context.Context, channel models.Channel, phoneNumber, body string) error {
	return s.sendTransactional(ctx, channel, phoneNumber, body)
}

// SendKeywordReply delivers a keyword response (HELP and friends).
func (s *MessageService) SendKeywordReply(ctx context.Context, channel models.Channel, identity, body string) error {
	return s.sendTransactional(ctx, channel, identity, body)
}

func (s *MessageService) sendTransactional(ctx context.Context, channel models.Channel, identity, body string) error {
	if !channel.Valid() {
		return models.ValidationError{Message: fmt.Sprintf("unsupported channel: %s", channel)}
	}

	_, err := s.api.SendMessageToIdentity(ctx, string(channel), identity, body, sinch.SendOptions{})
	if err != nil {
		return fmt.Errorf("failed to send transactional message: %w", err)
	}

	metrics.IncrementCounter("messages_sent_total",
		map[string]string{"channel": string(channel), "category": models.TemplateCategoryTransactional},
		"Messages accepted by vendor")
	return nil
}

func (s *MessageService) ensureContact(ctx context.Context, patientID int64, channel models.Channel, phone string) (*models.Contact, error) {
	contact, err := s.contacts.GetContactByPatient(ctx, patientID, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}
	if contact != nil && contact.VendorContactID != "" {
		return contact, nil
	}

	displayName, err := s.directory.DisplayName(ctx, patientID)
	if err != nil {
		s.logger.WithError(err).WithField("patientId", patientID).
			Debug("Patient display name unavailable")
		displayName = ""
	}

	record, err := s.api.CreateContact(ctx, string(channel), phone, sinch.ContactOptions{
		DisplayName: displayName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vendor contact: %w", err)
	}

	contact = &models.Contact{
		VendorContactID: record.ID,
		PatientID:       patientID,
		Channel:         channel,
		ChannelIdentity: phone,
		DisplayName:     displayName,
		OptedIn:         true,
	}
	if err := s.contacts.SaveContact(ctx, contact); err != nil {
		return nil, fmt.Errorf("failed to save contact: %w", err)
	}

	return contact, nil
}

func (s *MessageService) ensureConversation(ctx context.Context, contact *models.Contact) (*models.Conversation, error) {
	conv, err := s.conversations.GetActiveConversation(ctx, contact.PatientID, contact.Channel)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv != nil {
		return conv, nil
	}

	conv = &models.Conversation{
		ID:              uuid.NewString(),
		VendorContactID: contact.VendorContactID,
		PatientID:       contact.PatientID,
		Channel:         contact.Channel,
		Status:          models.ConversationActive,
	}
	if err := s.conversations.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}

	return conv, nil
}

// captureVendorConversationID learns the vendor-side conversation id from
// the first sent message so the poller has something to poll. Best effort.
func (s *MessageService) captureVendorConversationID(ctx context.Context, conv *models.Conversation, vendorMessageID string) {
	if conv.VendorConversationID != "" {
		return
	}

	record, err := s.api.GetMessage(ctx, vendorMessageID)
	if err != nil {
		s.logger.WithError(err).Debug("Could not resolve vendor conversation id yet")
		return
	}
	if record == nil || record.ConversationID == "" {
		return
	}

	if err := s.conversations.UpdateConversationVendorID(ctx, conv.ID, record.ConversationID); err != nil {
		s.logger.WithError(err).Warn("Failed to record vendor conversation id")
		return
	}
	conv.VendorConversationID = record.ConversationID
}
