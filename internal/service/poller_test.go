package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/sinch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inboundRecord(id, identity, text string, at time.Time) sinch.MessageRecord {
	return sinch.MessageRecord{
		ID:              id,
		Direction:       sinch.DirectionToApp,
		AcceptTime:      at,
		ChannelIdentity: sinch.ChannelIdentity{Channel: "SMS", Identity: identity},
		ContactMessage:  &sinch.MessageContent{TextMessage: &sinch.TextMessage{Text: text}},
	}
}

func outboundRecord(id, text string, at time.Time) sinch.MessageRecord {
	return sinch.MessageRecord{
		ID:         id,
		Direction:  sinch.DirectionToContact,
		AcceptTime: at,
		AppMessage: &sinch.MessageContent{TextMessage: &sinch.TextMessage{Text: text}},
	}
}

func activeConversation() *models.Conversation {
	return &models.Conversation{
		ID:                   "conv-1",
		VendorConversationID: "vendor-conv-1",
		VendorContactID:      "vendor-contact-1",
		PatientID:            42,
		Channel:              models.ChannelSMS,
		Status:               models.ConversationActive,
	}
}

func TestPollConversation_StoresNewMessages(t *testing.T) {
	store := newMockPollerStore()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	api := &mockPollerAPI{records: []sinch.MessageRecord{
		inboundRecord("msg-in", "+15551234567", "Running late", at),
		outboundRecord("msg-out", "See you soon", at.Add(time.Minute)),
	}}
	handler := &mockInboundHandler{}
	poller := NewConversationPoller(store, api, handler, models.PollingConfig{}, testLogger())

	conv := activeConversation()
	stored, err := poller.PollConversation(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	require.Len(t, store.messages, 2)
	assert.Equal(t, models.DirectionInbound, store.messages[0].Direction)
	assert.Equal(t, "Running late", store.messages[0].Body)
	assert.Equal(t, models.DirectionOutbound, store.messages[1].Direction)

	// Only the inbound message goes through the keyword handler.
	require.Len(t, handler.calls, 1)
	assert.Equal(t, "+15551234567", handler.calls[0].identity)
	assert.Equal(t, "Running late", handler.calls[0].body)

	// The watermark advanced and is reflected on the conversation.
	_, ok := store.polledAt["conv-1"]
	assert.True(t, ok)
	assert.NotNil(t, conv.LastPolledAt)
}

func TestPollConversation_DeduplicatesAcrossWindows(t *testing.T) {
	store := newMockPollerStore()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	api := &mockPollerAPI{records: []sinch.MessageRecord{
		inboundRecord("msg-1", "+15551234567", "hello", at),
	}}
	handler := &mockInboundHandler{}
	poller := NewConversationPoller(store, api, handler, models.PollingConfig{}, testLogger())

	conv := activeConversation()
	stored, err := poller.PollConversation(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	// The same record in the next overlapping window is not re-stored
	// and not re-routed.
	stored, err = poller.PollConversation(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	assert.Len(t, store.messages, 1)
	assert.Len(t, handler.calls, 1)
}

func TestPollConversation_EmptyWindowAdvancesWatermark(t *testing.T) {
	store := newMockPollerStore()
	api := &mockPollerAPI{}
	poller := NewConversationPoller(store, api, nil, models.PollingConfig{}, testLogger())

	conv := activeConversation()
	earlier := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	conv.LastPolledAt = &earlier

	stored, err := poller.PollConversation(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, 0, stored)

	// The previous watermark bounded the read window.
	require.NotNil(t, api.lastStart)
	assert.True(t, api.lastStart.Equal(earlier))

	// And the watermark still advanced.
	polledAt, ok := store.polledAt["conv-1"]
	require.True(t, ok)
	assert.True(t, polledAt.After(earlier))
}

func TestPollConversation_SkipsWithoutVendorID(t *testing.T) {
	store := newMockPollerStore()
	api := &mockPollerAPI{}
	poller := NewConversationPoller(store, api, nil, models.PollingConfig{}, testLogger())

	conv := activeConversation()
	conv.VendorConversationID = ""

	stored, err := poller.PollConversation(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	assert.Zero(t, api.calls)
}

func TestPollConversation_FetchError(t *testing.T) {
	store := newMockPollerStore()
	api := &mockPollerAPI{err: errors.New("connection refused")}
	poller := NewConversationPoller(store, api, nil, models.PollingConfig{}, testLogger())

	_, err := poller.PollConversation(context.Background(), activeConversation())
	require.Error(t, err)
	// No watermark update on a failed fetch; the window will be retried.
	assert.Empty(t, store.polledAt)
}

func TestPollAll_ContinuesPastFailures(t *testing.T) {
	store := newMockPollerStore()
	store.conversations = []models.Conversation{
		*activeConversation(),
		{ID: "conv-2", VendorConversationID: "vendor-conv-2", PatientID: 43, Channel: models.ChannelSMS, Status: models.ConversationActive},
	}
	store.watermarkErr = errors.New("database is locked")
	api := &mockPollerAPI{}
	poller := NewConversationPoller(store, api, nil, models.PollingConfig{}, testLogger())

	err := poller.PollAll(context.Background())
	require.Error(t, err)
	// Both conversations were still attempted.
	assert.Equal(t, 2, api.calls)
}

func TestPollerStartStop(t *testing.T) {
	store := newMockPollerStore()
	poller := NewConversationPoller(store, &mockPollerAPI{}, nil, models.PollingConfig{Enabled: true, IntervalSec: 60}, testLogger())

	require.NoError(t, poller.Start(context.Background()))
	assert.True(t, poller.IsRunning())

	err := poller.Start(context.Background())
	require.Error(t, err)

	poller.Stop()
	assert.False(t, poller.IsRunning())
}

func TestPollerStart_DisabledIsNoop(t *testing.T) {
	poller := NewConversationPoller(newMockPollerStore(), &mockPollerAPI{}, nil, models.PollingConfig{Enabled: false}, testLogger())

	require.NoError(t, poller.Start(context.Background()))
	assert.False(t, poller.IsRunning())
}
