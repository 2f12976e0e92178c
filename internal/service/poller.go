package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/metrics"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/sinch"

	"github.com/sirupsen/logrus"
)

// PollerStore defines the persistence the poller needs.
type PollerStore interface {
	ListActiveConversations(ctx context.Context) ([]models.Conversation, error)
	InsertMessageIfNew(ctx context.Context, msg *models.Message) (bool, error)
	UpdateMessageStatus(ctx context.Context, vendorMessageID string, status models.MessageStatus, deliveredAt, readAt sql.NullTime) error
	UpdateConversationLastPolledAt(ctx context.Context, id string, polledAt time.Time) error
	UpdateConversationLastMessageAt(ctx context.Context, id string, messageAt time.Time) error
}

// PollerAPI is the slice of the vendor client the poller needs.
type PollerAPI interface {
	GetConversationMessages(ctx context.Context, conversationID string, filter sinch.MessagesFilter) ([]sinch.MessageRecord, error)
}

// InboundHandler reacts to newly discovered inbound messages. The keyword
// router implements it.
type InboundHandler interface {
	HandleInbound(ctx context.Context, channel models.Channel, senderIdentity, body string) (KeywordAction, error)
}

// ConversationPoller periodically pulls new messages for every active
// conversation. Polling is the only inbound path when no webhook is
// configured.
type ConversationPoller struct {
	store   PollerStore
	api     PollerAPI
	inbound InboundHandler
	config  models.PollingConfig
	logger  *logrus.Logger
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

func NewConversationPoller(store PollerStore, api PollerAPI, inbound InboundHandler, config models.PollingConfig, logger *logrus.Logger) *ConversationPoller {
	return &ConversationPoller{
		store:   store,
		api:     api,
		inbound: inbound,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Start begins the background polling process
func (p *ConversationPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("conversation poller is already running")
	}

	if !p.config.Enabled {
		p.logger.Info("Conversation polling is disabled in configuration")
		return nil
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.wg.Add(1)
	go p.pollLoop()

	p.logger.WithFields(logrus.Fields{
		"intervalSec": p.config.IntervalSec,
	}).Info("Conversation poller started")

	return nil
}

// Stop gracefully stops the polling process
func (p *ConversationPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.cancel()
	p.wg.Wait()
	p.running = false
	p.logger.Info("Conversation poller stopped")
}

// IsRunning returns whether the poller is currently active
func (p *ConversationPoller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *ConversationPoller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Duration(p.config.IntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
			if err := p.PollAll(ctx); err != nil {
				p.logger.WithError(err).Warn("Poll cycle failed")
			}
			cancel()
		}
	}
}

// PollAll runs one poll cycle over every active conversation. One broken
// conversation does not stop the cycle.
func (p *ConversationPoller) PollAll(ctx context.Context) error {
	conversations, err := p.store.ListActiveConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	var firstErr error
	for i := range conversations {
		if _, err := p.PollConversation(ctx, &conversations[i]); err != nil {
			p.logger.WithError(err).WithField("conversationId", conversations[i].ID).
				Warn("Failed to poll conversation")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// PollConversation fetches messages newer than the conversation's poll
// watermark, stores the ones not seen before, and routes inbound bodies
// through the keyword handler. The watermark advances even when the
// window was empty, so an idle conversation does not re-read history
// forever.
func (p *ConversationPoller) PollConversation(ctx context.Context, conv *models.Conversation) (int, error) {
	if conv.VendorConversationID == "" {
		// Nothing has been sent yet, so the vendor has no thread to read.
		p.logger.WithField("conversationId", conv.ID).Debug("Skipping conversation without vendor id")
		return 0, nil
	}

	polledAt := p.now()
	records, err := p.api.GetConversationMessages(ctx, conv.VendorConversationID, sinch.MessagesFilter{
		StartTime: conv.LastPolledAt,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch messages: %w", err)
	}

	stored := 0
	for i := range records {
		record := &records[i]
		if p.ingestRecord(ctx, conv, record) {
			stored++
		}
	}

	if err := p.store.UpdateConversationLastPolledAt(ctx, conv.ID, polledAt); err != nil {
		return stored, fmt.Errorf("failed to advance poll watermark: %w", err)
	}
	conv.LastPolledAt = &polledAt

	if stored > 0 {
		metrics.AddToCounter("messages_polled_total", float64(stored), nil,
			"New messages discovered by polling")
	}

	return stored, nil
}

func (p *ConversationPoller) ingestRecord(ctx context.Context, conv *models.Conversation, record *sinch.MessageRecord) bool {
	direction := models.DirectionOutbound
	status := models.MessageSent
	if record.Inbound() {
		direction = models.DirectionInbound
		status = models.MessageDelivered
	}

	acceptTime := record.AcceptTime
	msg := &models.Message{
		VendorMessageID: record.ID,
		ConversationID:  conv.ID,
		Direction:       direction,
		Channel:         conv.Channel,
		Body:            record.Text(),
		Status:          status,
		SentAt:          &acceptTime,
	}

	inserted, err := p.store.InsertMessageIfNew(ctx, msg)
	if err != nil {
		p.logger.WithError(err).WithField("vendorMessageId", record.ID).
			Warn("Failed to store polled message")
		return false
	}
	if !inserted {
		// Seen in an earlier, overlapping window.
		return false
	}

	if err := p.store.UpdateConversationLastMessageAt(ctx, conv.ID, record.AcceptTime); err != nil {
		p.logger.WithError(err).Warn("Failed to update conversation activity")
	}

	if direction == models.DirectionInbound && p.inbound != nil {
		identity := record.ChannelIdentity.Identity
		if _, err := p.inbound.HandleInbound(ctx, conv.Channel, identity, record.Text()); err != nil {
			p.logger.WithError(err).WithField("vendorMessageId", record.ID).
				Warn("Inbound keyword handling failed")
		}
	}

	return true
}
