package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/privacy"

	"github.com/sirupsen/logrus"
)

// KeywordAction is the consent action an inbound message body maps to.
type KeywordAction int

const (
	KeywordNone KeywordAction = iota
	KeywordOptOut
	KeywordOptIn
	KeywordHelp
)

// Carrier-mandated consent keywords. Matching is exact on the trimmed,
// uppercased body; "please STOP" is a normal message, not an opt-out.
var (
	optOutKeywords = []string{"STOP", "STOPALL", "UNSUBSCRIBE", "CANCEL", "END", "QUIT"}
	optInKeywords  = []string{"START", "UNSTOP", "SUBSCRIBE"}
	helpKeywords   = []string{"HELP", "INFO"}
)

const (
	optOutConfirmationBody = "You have been unsubscribed and will receive no further messages from this clinic. Reply START to resubscribe."
	optInConfirmationBody  = "You are subscribed to messages from this clinic. Reply STOP to unsubscribe or HELP for help."
	helpResponseBody       = "This number sends appointment and care messages from your clinic. Reply STOP to unsubscribe or START to subscribe. For medical concerns, call your clinic directly."
)

// DetectKeyword classifies a message body. Only a body that is exactly a
// keyword (ignoring surrounding whitespace and case) triggers an action.
func DetectKeyword(body string) KeywordAction {
	normalized := strings.ToUpper(strings.TrimSpace(body))
	for _, kw := range optOutKeywords {
		if normalized == kw {
			return KeywordOptOut
		}
	}
	for _, kw := range optInKeywords {
		if normalized == kw {
			return KeywordOptIn
		}
	}
	for _, kw := range helpKeywords {
		if normalized == kw {
			return KeywordHelp
		}
	}
	return KeywordNone
}

// ContactResolver maps an inbound sender identity back to a known contact.
type ContactResolver interface {
	GetContactByIdentity(ctx context.Context, identity string) (*models.Contact, error)
}

// ReplySender delivers the transactional keyword responses. Keyword
// replies bypass the consent gate: the opt-out receipt must go out to a
// patient who just opted out.
type ReplySender interface {
	SendKeywordReply(ctx context.Context, channel models.Channel, identity, body string) error
}

// KeywordRouter applies consent keywords found in inbound messages.
type KeywordRouter struct {
	contacts ContactResolver
	consent  *ConsentService
	replies  ReplySender
	logger   *logrus.Logger
}

func NewKeywordRouter(contacts ContactResolver, consent *ConsentService, replies ReplySender, logger *logrus.Logger) *KeywordRouter {
	return &KeywordRouter{
		contacts: contacts,
		consent:  consent,
		replies:  replies,
		logger:   logger,
	}
}

// HandleInbound inspects one inbound message and applies any consent
// keyword it carries. Returns the detected action; KeywordNone means the
// message is ordinary patient correspondence.
func (r *KeywordRouter) HandleInbound(ctx context.Context, channel models.Channel, senderIdentity, body string) (KeywordAction, error) {
	action := DetectKeyword(body)
	if action == KeywordNone {
		return KeywordNone, nil
	}

	contact, err := r.contacts.GetContactByIdentity(ctx, senderIdentity)
	if err != nil {
		return action, fmt.Errorf("failed to resolve sender: %w", err)
	}
	if contact == nil {
		// A keyword from a number we never messaged. Nothing to update,
		// but it is worth a trace in the logs.
		r.logger.WithFields(logrus.Fields{
			"channel": channel,
			"action":  action,
			"sender":  privacy.MaskIdentity(senderIdentity),
		}).Warn("Consent keyword from unknown sender ignored")
		return action, nil
	}

	switch action {
	case KeywordOptOut:
		_, err = r.consent.OptOut(ctx, OptOutRequest{
			PatientID:   contact.PatientID,
			PhoneNumber: senderIdentity,
			Method:      models.ConsentMethodSMSKeyword,
			Channel:     channel,
		})
		if err != nil {
			return action, fmt.Errorf("failed to apply keyword opt-out: %w", err)
		}

	case KeywordOptIn:
		_, err = r.consent.OptIn(ctx, OptInRequest{
			PatientID:   contact.PatientID,
			PhoneNumber: senderIdentity,
			Method:      models.ConsentMethodSMSKeyword,
			Channel:     channel,
		})
		if err != nil {
			return action, fmt.Errorf("failed to apply keyword opt-in: %w", err)
		}

	case KeywordHelp:
		if r.replies != nil {
			if err := r.replies.SendKeywordReply(ctx, channel, senderIdentity, helpResponseBody); err != nil {
				r.logger.WithError(err).Warn("Failed to send help response")
			}
		}
	}

	r.logger.WithFields(logrus.Fields{
		"patientId": contact.PatientID,
		"channel":   channel,
		"action":    action,
	}).Info("Consent keyword handled")

	return action, nil
}
