package service

import (
	"context"
	"fmt"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/validation"

	"github.com/sirupsen/logrus"
)

// ConsentStore defines the database operations needed by ConsentService
type ConsentStore interface {
	SaveConsent(ctx context.Context, record *models.ConsentRecord) error
	GetConsent(ctx context.Context, patientID int64, phoneNumber string) (*models.ConsentRecord, error)
	GetConsentByPhone(ctx context.Context, phoneNumber string) (*models.ConsentRecord, error)
}

// ConfirmationSender sends the transactional confirmation message after a
// consent change. Wired in after construction to break the cycle with the
// message sender, which itself needs the consent service.
type ConfirmationSender interface {
	SendConsentConfirmation(ctx context.Context, channel models.Channel, phoneNumber, body string) error
}

// OptInRequest captures who consented and how, for the audit trail.
type OptInRequest struct {
	PatientID   int64
	PhoneNumber string
	Method      string
	IPAddress   string
	ConsentText string
	Channel     models.Channel
}

// OptOutRequest captures a consent revocation.
type OptOutRequest struct {
	PatientID   int64
	PhoneNumber string
	Method      string
	Channel     models.Channel
}

// ConsentService owns the opt-in/opt-out state machine.
type ConsentService struct {
	store  ConsentStore
	sender ConfirmationSender
	logger *logrus.Logger
	now    func() time.Time
}

func NewConsentService(store ConsentStore, logger *logrus.Logger) *ConsentService {
	return &ConsentService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// SetConfirmationSender wires the outbound confirmation path. Optional; a
// nil sender means consent changes are recorded without a confirmation
// message.
func (s *ConsentService) SetConfirmationSender(sender ConfirmationSender) {
	s.sender = sender
}

// OptIn records consent for a (patient, phone) pair. A re-opt-in after an
// earlier opt-out clears the opt-out flag so eligibility is restored; the
// prior opt-out's method and date are kept for the audit trail. The
// confirmation message is best effort; a send failure never rolls back
// the recorded consent.
func (s *ConsentService) OptIn(ctx context.Context, req OptInRequest) (*models.ConsentRecord, error) {
	if err := validation.ValidatePhoneNumber(req.PhoneNumber); err != nil {
		return nil, err
	}
	if req.Method == "" {
		return nil, models.ValidationError{Message: "consent method is required for opt-in"}
	}

	record, err := s.store.GetConsent(ctx, req.PatientID, req.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load consent record: %w", err)
	}
	if record == nil {
		record = &models.ConsentRecord{
			PatientID:   req.PatientID,
			PhoneNumber: req.PhoneNumber,
		}
	}

	optInDate := s.now()
	record.OptedIn = true
	record.OptInMethod = req.Method
	record.OptInDate = &optInDate
	record.OptInIP = req.IPAddress
	if req.ConsentText != "" {
		record.ConsentText = req.ConsentText
	}
	// Only the flag is cleared; the last opt-out's method and date stay
	// on the record as part of the audit trail.
	record.OptedOut = false

	if err := s.store.SaveConsent(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save consent record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"patientId": req.PatientID,
		"method":    req.Method,
	}).Info("Patient opted in to messaging")

	s.sendConfirmation(ctx, req.Channel, req.PhoneNumber, optInConfirmationBody)

	return record, nil
}

// OptOut revokes consent for a (patient, phone) pair. Idempotent: opting
// out twice is not an error. The opt-in audit fields are preserved.
func (s *ConsentService) OptOut(ctx context.Context, req OptOutRequest) (*models.ConsentRecord, error) {
	if err := validation.ValidatePhoneNumber(req.PhoneNumber); err != nil {
		return nil, err
	}
	if req.Method == "" {
		return nil, models.ValidationError{Message: "consent method is required for opt-out"}
	}

	record, err := s.store.GetConsent(ctx, req.PatientID, req.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load consent record: %w", err)
	}
	if record == nil {
		// An opt-out is honored even when no opt-in was ever recorded.
		record = &models.ConsentRecord{
			PatientID:   req.PatientID,
			PhoneNumber: req.PhoneNumber,
		}
	}

	optOutDate := s.now()
	record.OptedOut = true
	record.OptOutMethod = req.Method
	record.OptOutDate = &optOutDate

	if err := s.store.SaveConsent(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save consent record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"patientId": req.PatientID,
		"method":    req.Method,
	}).Info("Patient opted out of messaging")

	s.sendConfirmation(ctx, req.Channel, req.PhoneNumber, optOutConfirmationBody)

	return record, nil
}

// HasConsent reports whether the (patient, phone) pair is currently
// eligible for non-transactional messaging. No record means no consent.
func (s *ConsentService) HasConsent(ctx context.Context, patientID int64, phoneNumber string) (bool, error) {
	record, err := s.store.GetConsent(ctx, patientID, phoneNumber)
	if err != nil {
		return false, fmt.Errorf("failed to load consent record: %w", err)
	}
	if record == nil {
		return false, nil
	}
	return record.HasConsent(), nil
}

// GetConsent exposes the raw record for staff-facing views.
func (s *ConsentService) GetConsent(ctx context.Context, patientID int64, phoneNumber string) (*models.ConsentRecord, error) {
	return s.store.GetConsent(ctx, patientID, phoneNumber)
}

func (s *ConsentService) sendConfirmation(ctx context.Context, channel models.Channel, phoneNumber, body string) {
	if s.sender == nil {
		return
	}
	if channel == "" {
		channel = models.ChannelSMS
	}
	if err := s.sender.SendConsentConfirmation(ctx, channel, phoneNumber, body); err != nil {
		s.logger.WithError(err).Warn("Failed to send consent confirmation message")
	}
}
