package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/sinch"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// In-memory consent store

type mockConsentStore struct {
	records map[string]*models.ConsentRecord
	saveErr error
	getErr  error
}

func newMockConsentStore() *mockConsentStore {
	return &mockConsentStore{records: make(map[string]*models.ConsentRecord)}
}

func consentKey(patientID int64, phone string) string {
	return fmt.Sprintf("%d|%s", patientID, phone)
}

func (m *mockConsentStore) SaveConsent(ctx context.Context, record *models.ConsentRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	saved := *record
	m.records[consentKey(record.PatientID, record.PhoneNumber)] = &saved
	return nil
}

func (m *mockConsentStore) GetConsent(ctx context.Context, patientID int64, phone string) (*models.ConsentRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	record, ok := m.records[consentKey(patientID, phone)]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (m *mockConsentStore) GetConsentByPhone(ctx context.Context, phone string) (*models.ConsentRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, record := range m.records {
		if record.PhoneNumber == phone {
			copied := *record
			return &copied, nil
		}
	}
	return nil, nil
}

type confirmationCall struct {
	channel models.Channel
	phone   string
	body    string
}

type mockConfirmationSender struct {
	calls []confirmationCall
	err   error
}

func (m *mockConfirmationSender) SendConsentConfirmation(ctx context.Context, channel models.Channel, phone, body string) error {
	m.calls = append(m.calls, confirmationCall{channel: channel, phone: phone, body: body})
	return m.err
}

// Contact resolution

type mockContactResolver struct {
	contacts map[string]*models.Contact
	err      error
}

func newMockContactResolver() *mockContactResolver {
	return &mockContactResolver{contacts: make(map[string]*models.Contact)}
}

func (m *mockContactResolver) GetContactByIdentity(ctx context.Context, identity string) (*models.Contact, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.contacts[identity], nil
}

type replyCall struct {
	channel  models.Channel
	identity string
	body     string
}

type mockReplySender struct {
	calls []replyCall
	err   error
}

func (m *mockReplySender) SendKeywordReply(ctx context.Context, channel models.Channel, identity, body string) error {
	m.calls = append(m.calls, replyCall{channel: channel, identity: identity, body: body})
	return m.err
}

// Template store and vendor API

type mockTemplateStore struct {
	templates map[string]*models.MessageTemplate
	vendorIDs map[string]string
	getErr    error
}

func newMockTemplateStore(templates ...*models.MessageTemplate) *mockTemplateStore {
	store := &mockTemplateStore{
		templates: make(map[string]*models.MessageTemplate),
		vendorIDs: make(map[string]string),
	}
	for _, tmpl := range templates {
		store.templates[tmpl.Key] = tmpl
	}
	return store
}

func (m *mockTemplateStore) SaveTemplate(ctx context.Context, tmpl *models.MessageTemplate) error {
	m.templates[tmpl.Key] = tmpl
	return nil
}

func (m *mockTemplateStore) GetTemplate(ctx context.Context, key string) (*models.MessageTemplate, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.templates[key], nil
}

func (m *mockTemplateStore) ListTemplates(ctx context.Context, activeOnly bool) ([]models.MessageTemplate, error) {
	var out []models.MessageTemplate
	for _, tmpl := range m.templates {
		if activeOnly && !tmpl.Active {
			continue
		}
		out = append(out, *tmpl)
	}
	return out, nil
}

func (m *mockTemplateStore) SetVendorTemplateID(ctx context.Context, key, vendorTemplateID string) error {
	m.vendorIDs[key] = vendorTemplateID
	return nil
}

type mockVendorTemplateAPI struct {
	remote    []sinch.TemplateRecord
	created   []models.MessageTemplate
	createErr error
	listErr   error
}

func (m *mockVendorTemplateAPI) CreateTemplate(ctx context.Context, def models.MessageTemplate) (*sinch.TemplateRecord, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, def)
	return &sinch.TemplateRecord{ID: "vendor-" + def.Key, Description: def.DisplayName}, nil
}

func (m *mockVendorTemplateAPI) ListTemplates(ctx context.Context) ([]sinch.TemplateRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.remote, nil
}

// Messaging stores

type mockContactStore struct {
	contacts map[string]*models.Contact
	saveErr  error
}

func newMockContactStore() *mockContactStore {
	return &mockContactStore{contacts: make(map[string]*models.Contact)}
}

func contactKey(patientID int64, channel models.Channel) string {
	return fmt.Sprintf("%d|%s", patientID, channel)
}

func (m *mockContactStore) SaveContact(ctx context.Context, contact *models.Contact) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	saved := *contact
	m.contacts[contactKey(contact.PatientID, contact.Channel)] = &saved
	return nil
}

func (m *mockContactStore) GetContactByPatient(ctx context.Context, patientID int64, channel models.Channel) (*models.Contact, error) {
	contact, ok := m.contacts[contactKey(patientID, channel)]
	if !ok {
		return nil, nil
	}
	copied := *contact
	return &copied, nil
}

type mockConversationStore struct {
	conversations map[string]*models.Conversation
	saveErr       error
}

func newMockConversationStore() *mockConversationStore {
	return &mockConversationStore{conversations: make(map[string]*models.Conversation)}
}

func (m *mockConversationStore) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	saved := *conv
	m.conversations[conv.ID] = &saved
	return nil
}

func (m *mockConversationStore) GetActiveConversation(ctx context.Context, patientID int64, channel models.Channel) (*models.Conversation, error) {
	for _, conv := range m.conversations {
		if conv.PatientID == patientID && conv.Channel == channel && conv.Status == models.ConversationActive {
			copied := *conv
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockConversationStore) UpdateConversationVendorID(ctx context.Context, id, vendorConversationID string) error {
	conv, ok := m.conversations[id]
	if !ok {
		return fmt.Errorf("no conversation found with ID: %s", id)
	}
	conv.VendorConversationID = vendorConversationID
	return nil
}

func (m *mockConversationStore) UpdateConversationLastMessageAt(ctx context.Context, id string, messageAt time.Time) error {
	conv, ok := m.conversations[id]
	if !ok {
		return fmt.Errorf("no conversation found with ID: %s", id)
	}
	conv.LastMessageAt = &messageAt
	return nil
}

type mockMessageStore struct {
	messages  []*models.Message
	seen      map[string]bool
	insertErr error
}

func newMockMessageStore() *mockMessageStore {
	return &mockMessageStore{seen: make(map[string]bool)}
}

func (m *mockMessageStore) InsertMessageIfNew(ctx context.Context, msg *models.Message) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if m.seen[msg.VendorMessageID] {
		return false, nil
	}
	m.seen[msg.VendorMessageID] = true
	saved := *msg
	m.messages = append(m.messages, &saved)
	return true, nil
}

// Vendor client

type sentMessage struct {
	contactID string
	channel   string
	identity  string
	body      string
}

type mockSinchAPI struct {
	sent          []sentMessage
	sendResp      *sinch.SendMessageResponse
	sendErr       error
	createdResp   *sinch.ContactRecord
	createErr     error
	messageRecord *sinch.MessageRecord
	getMessageErr error
}

func (m *mockSinchAPI) SendMessage(ctx context.Context, contactID, text string, opts sinch.SendOptions) (*sinch.SendMessageResponse, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, sentMessage{contactID: contactID, body: text})
	return m.sendResp, nil
}

func (m *mockSinchAPI) SendMessageToIdentity(ctx context.Context, channel, identity, text string, opts sinch.SendOptions) (*sinch.SendMessageResponse, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, sentMessage{channel: channel, identity: identity, body: text})
	return m.sendResp, nil
}

func (m *mockSinchAPI) CreateContact(ctx context.Context, channel, identity string, opts sinch.ContactOptions) (*sinch.ContactRecord, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createdResp, nil
}

func (m *mockSinchAPI) GetMessage(ctx context.Context, messageID string) (*sinch.MessageRecord, error) {
	if m.getMessageErr != nil {
		return nil, m.getMessageErr
	}
	return m.messageRecord, nil
}

// Patient directory

type mockDirectory struct {
	phones   map[int64]string
	names    map[int64]string
	phoneErr error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{phones: make(map[int64]string), names: make(map[int64]string)}
}

func (m *mockDirectory) PrimaryPhone(ctx context.Context, patientID int64) (string, error) {
	if m.phoneErr != nil {
		return "", m.phoneErr
	}
	return m.phones[patientID], nil
}

func (m *mockDirectory) DisplayName(ctx context.Context, patientID int64) (string, error) {
	return m.names[patientID], nil
}

// Poller dependencies

type mockPollerStore struct {
	*mockMessageStore
	conversations []models.Conversation
	listErr       error
	polledAt      map[string]time.Time
	activityAt    map[string]time.Time
	watermarkErr  error
}

func newMockPollerStore() *mockPollerStore {
	return &mockPollerStore{
		mockMessageStore: newMockMessageStore(),
		polledAt:         make(map[string]time.Time),
		activityAt:       make(map[string]time.Time),
	}
}

func (m *mockPollerStore) ListActiveConversations(ctx context.Context) ([]models.Conversation, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.conversations, nil
}

func (m *mockPollerStore) UpdateMessageStatus(ctx context.Context, vendorMessageID string, status models.MessageStatus, deliveredAt, readAt sql.NullTime) error {
	return nil
}

func (m *mockPollerStore) UpdateConversationLastPolledAt(ctx context.Context, id string, polledAt time.Time) error {
	if m.watermarkErr != nil {
		return m.watermarkErr
	}
	m.polledAt[id] = polledAt
	return nil
}

func (m *mockPollerStore) UpdateConversationLastMessageAt(ctx context.Context, id string, messageAt time.Time) error {
	m.activityAt[id] = messageAt
	return nil
}

type mockPollerAPI struct {
	records   []sinch.MessageRecord
	err       error
	lastStart *time.Time
	calls     int
}

func (m *mockPollerAPI) GetConversationMessages(ctx context.Context, conversationID string, filter sinch.MessagesFilter) ([]sinch.MessageRecord, error) {
	m.calls++
	m.lastStart = filter.StartTime
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

type inboundCall struct {
	channel  models.Channel
	identity string
	body     string
}

type mockInboundHandler struct {
	calls  []inboundCall
	action KeywordAction
	err    error
}

func (m *mockInboundHandler) HandleInbound(ctx context.Context, channel models.Channel, senderIdentity, body string) (KeywordAction, error) {
	m.calls = append(m.calls, inboundCall{channel: channel, identity: senderIdentity, body: body})
	return m.action, m.err
}
