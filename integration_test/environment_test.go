package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/database"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/retry"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/service"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/sinch"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	testProjectID      = "proj-1"
	testAppID          = "app-1"
	vendorConvID       = "vconv-1"
	vendorContactID    = "vcontact-1"
	testAccessToken    = "integration-token"
	testAPIKey         = "key-1"
	testAPISecret      = "secret-1"
	reminderTemplate   = "appointment_reminder"
	testPatientPhone   = "+15550001111"
	testPatientID      = int64(7)
	testPatientChannel = models.ChannelSMS
)

type sentMessage struct {
	Text      string
	ContactID string
	Identity  string
}

// fakeVendor is an in-process stand-in for the Conversation API. It
// serves the OAuth grant, message sends, contact creation, message
// lookups and per-conversation message lists from one httptest server.
type fakeVendor struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	tokenRequests int
	sent          []sentMessage
	inbound       map[string][]sinch.MessageRecord
	templates     []sinch.TemplateRecord
	nextMessage   int
	nextTemplate  int
}

func newFakeVendor(t *testing.T) *fakeVendor {
	t.Helper()

	v := &fakeVendor{
		t:       t,
		inbound: make(map[string][]sinch.MessageRecord),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", v.handleToken)
	mux.HandleFunc("POST /v1/projects/"+testProjectID+"/messages:send", v.handleSend)
	mux.HandleFunc("GET /v1/projects/"+testProjectID+"/messages/{id}", v.handleGetMessage)
	mux.HandleFunc("POST /v1/projects/"+testProjectID+"/contacts", v.handleCreateContact)
	mux.HandleFunc("GET /v1/projects/"+testProjectID+"/conversations/{id}/messages", v.handleConversationMessages)
	mux.HandleFunc("GET /v2/projects/"+testProjectID+"/templates", v.handleListTemplates)
	mux.HandleFunc("POST /v2/projects/"+testProjectID+"/templates", v.handleCreateTemplate)

	v.srv = httptest.NewServer(mux)
	t.Cleanup(v.srv.Close)
	return v
}

func (v *fakeVendor) handleToken(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != testAPIKey || pass != testAPISecret {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad credentials"}}`))
		return
	}

	v.mu.Lock()
	v.tokenRequests++
	v.mu.Unlock()

	writeVendorJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": testAccessToken,
		"expires_in":   3600,
	})
}

func (v *fakeVendor) requireBearer(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+testAccessToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"missing bearer token"}}`))
		return false
	}
	return true
}

func (v *fakeVendor) handleSend(w http.ResponseWriter, r *http.Request) {
	if !v.requireBearer(w, r) {
		return
	}

	var payload struct {
		AppID     string `json:"app_id"`
		Recipient struct {
			ContactID    string `json:"contact_id"`
			IdentifiedBy *struct {
				ChannelIdentities []sinch.ChannelIdentity `json:"channel_identities"`
			} `json:"identified_by"`
		} `json:"recipient"`
		Message struct {
			TextMessage *struct {
				Text string `json:"text"`
			} `json:"text_message"`
		} `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Message.TextMessage == nil {
		writeVendorJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]string{"message": "malformed send"},
		})
		return
	}

	record := sentMessage{
		Text:      payload.Message.TextMessage.Text,
		ContactID: payload.Recipient.ContactID,
	}
	if payload.Recipient.IdentifiedBy != nil && len(payload.Recipient.IdentifiedBy.ChannelIdentities) > 0 {
		record.Identity = payload.Recipient.IdentifiedBy.ChannelIdentities[0].Identity
	}

	v.mu.Lock()
	v.nextMessage++
	messageID := fmt.Sprintf("vmsg-%d", v.nextMessage)
	v.sent = append(v.sent, record)
	v.mu.Unlock()

	writeVendorJSON(w, http.StatusOK, map[string]interface{}{
		"message_id":    messageID,
		"accepted_time": time.Now().UTC().Format(time.RFC3339),
	})
}

func (v *fakeVendor) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	if !v.requireBearer(w, r) {
		return
	}
	writeVendorJSON(w, http.StatusOK, sinch.MessageRecord{
		ID:             r.PathValue("id"),
		ConversationID: vendorConvID,
		ContactID:      vendorContactID,
		Direction:      sinch.DirectionToContact,
		AcceptTime:     time.Now().UTC(),
	})
}

func (v *fakeVendor) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	if !v.requireBearer(w, r) {
		return
	}

	var payload struct {
		ChannelIdentities []sinch.ChannelIdentity `json:"channel_identities"`
		DisplayName       string                  `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload.ChannelIdentities) == 0 {
		writeVendorJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]string{"message": "malformed contact"},
		})
		return
	}

	writeVendorJSON(w, http.StatusCreated, sinch.ContactRecord{
		ID:                vendorContactID,
		DisplayName:       payload.DisplayName,
		ChannelIdentities: payload.ChannelIdentities,
	})
}

func (v *fakeVendor) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	if !v.requireBearer(w, r) {
		return
	}

	v.mu.Lock()
	records := append([]sinch.MessageRecord(nil), v.inbound[r.PathValue("id")]...)
	v.mu.Unlock()

	writeVendorJSON(w, http.StatusOK, map[string]interface{}{
		"messages": records,
	})
}

func (v *fakeVendor) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	if !v.requireBearer(w, r) {
		return
	}

	v.mu.Lock()
	templates := append([]sinch.TemplateRecord(nil), v.templates...)
	v.mu.Unlock()

	writeVendorJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
	})
}

func (v *fakeVendor) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	if !v.requireBearer(w, r) {
		return
	}

	var record sinch.TemplateRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeVendorJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]string{"message": "malformed template"},
		})
		return
	}

	v.mu.Lock()
	v.nextTemplate++
	record.ID = fmt.Sprintf("vtmpl-%d", v.nextTemplate)
	v.templates = append(v.templates, record)
	v.mu.Unlock()

	writeVendorJSON(w, http.StatusCreated, record)
}

// queueInbound makes the vendor report an inbound patient message on the
// next poll of the given conversation.
func (v *fakeVendor) queueInbound(conversationID, identity, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.nextMessage++
	v.inbound[conversationID] = append(v.inbound[conversationID], sinch.MessageRecord{
		ID:             fmt.Sprintf("vmsg-%d", v.nextMessage),
		ConversationID: conversationID,
		ContactID:      vendorContactID,
		Direction:      sinch.DirectionToApp,
		AcceptTime:     time.Now().UTC(),
		ChannelIdentity: sinch.ChannelIdentity{
			Channel:  string(testPatientChannel),
			Identity: identity,
		},
		ContactMessage: &sinch.MessageContent{
			TextMessage: &sinch.TextMessage{Text: text},
		},
	})
}

func (v *fakeVendor) sentMessages() []sentMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]sentMessage(nil), v.sent...)
}

func (v *fakeVendor) tokenRequestCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tokenRequests
}

func writeVendorJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// testEnvironment wires the full service stack against a temp database
// and the fake vendor, the same way the daemon does at startup.
type testEnvironment struct {
	db        *database.Database
	client    *sinch.Client
	consent   *service.ConsentService
	templates *service.TemplateService
	messages  *service.MessageService
	router    *service.KeywordRouter
	poller    *service.ConversationPoller
}

func newTestEnvironment(t *testing.T, vendor *fakeVendor) *testEnvironment {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	db, err := database.New(filepath.Join(t.TempDir(), "integration.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := models.SinchConfig{
		ProjectID: testProjectID,
		AppID:     testAppID,
		APIKey:    testAPIKey,
		APISecret: testAPISecret,
		Region:    "us",
	}
	client := sinch.NewClientWithURLs(cfg, retry.DefaultConfig(), logger,
		vendor.srv.URL, vendor.srv.URL+"/oauth2/token", vendor.srv.URL)

	consentService := service.NewConsentService(db, logger)
	templateService := service.NewTemplateService(db, client, logger)
	messageService := service.NewMessageService(db, db, db, consentService, templateService, client, db, logger)
	consentService.SetConfirmationSender(messageService)
	keywordRouter := service.NewKeywordRouter(db, consentService, messageService, logger)
	poller := service.NewConversationPoller(db, client, keywordRouter, models.PollingConfig{
		Enabled:     true,
		IntervalSec: 60,
	}, logger)

	return &testEnvironment{
		db:        db,
		client:    client,
		consent:   consentService,
		templates: templateService,
		messages:  messageService,
		router:    keywordRouter,
		poller:    poller,
	}
}

func (env *testEnvironment) seedReminderTemplate(t *testing.T) {
	t.Helper()
	require.NoError(t, env.db.SaveTemplate(t.Context(), &models.MessageTemplate{
		Key:               reminderTemplate,
		DisplayName:       "Appointment reminder",
		Category:          models.TemplateCategoryReminder,
		Applicability:     models.TemplateApplicabilityBoth,
		Body:              "Your appointment is {{ when }}. Reply STOP to opt out.",
		RequiredVariables: []string{"when"},
		Approved:          true,
		Active:            true,
	}))
}
