package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
)

// SaveConsent inserts or updates the consent record for a (patient, phone)
// pair. Concurrent writers for the same pair resolve through the upsert
// instead of racing on a read-then-insert.
func (d *Database) SaveConsent(ctx context.Context, record *models.ConsentRecord) error {
	encryptedPhone, err := d.encryptor.EncryptForLookupIfEnabled(record.PhoneNumber)
	if err != nil {
		return fmt.Errorf("failed to encrypt phone number: %w", err)
	}

	encryptedText, err := d.encryptor.EncryptIfEnabled(record.ConsentText)
	if err != nil {
		return fmt.Errorf("failed to encrypt consent text: %w", err)
	}

	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, upsertConsentQuery,
			record.PatientID,
			encryptedPhone,
			record.OptedIn,
			record.OptInMethod,
			record.OptInDate,
			record.OptInIP,
			record.OptedOut,
			record.OptOutMethod,
			record.OptOutDate,
			encryptedText,
		)
		if err != nil {
			return fmt.Errorf("failed to save consent record: %w", err)
		}
		return nil
	}, "save consent")
}

// GetConsent returns the consent record for a (patient, phone) pair, or
// nil when none has ever been recorded.
func (d *Database) GetConsent(ctx context.Context, patientID int64, phoneNumber string) (*models.ConsentRecord, error) {
	encryptedPhone, err := d.encryptor.EncryptForLookupIfEnabled(phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone number: %w", err)
	}

	row := d.db.QueryRowContext(ctx, selectConsentQuery, patientID, encryptedPhone)
	return d.scanConsent(row)
}

// GetConsentByPhone returns the most recently updated consent record for a
// phone number regardless of patient. Inbound keyword handling uses this
// when only the sender identity is known.
func (d *Database) GetConsentByPhone(ctx context.Context, phoneNumber string) (*models.ConsentRecord, error) {
	encryptedPhone, err := d.encryptor.EncryptForLookupIfEnabled(phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone number: %w", err)
	}

	row := d.db.QueryRowContext(ctx, selectConsentByPhoneQuery, encryptedPhone)
	return d.scanConsent(row)
}

func (d *Database) scanConsent(row *sql.Row) (*models.ConsentRecord, error) {
	var record models.ConsentRecord
	var encryptedPhone, encryptedText string

	err := row.Scan(
		&record.ID,
		&record.PatientID,
		&encryptedPhone,
		&record.OptedIn,
		&record.OptInMethod,
		&record.OptInDate,
		&record.OptInIP,
		&record.OptedOut,
		&record.OptOutMethod,
		&record.OptOutDate,
		&encryptedText,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan consent record: %w", err)
	}

	record.PhoneNumber, err = d.encryptor.DecryptIfEnabled(encryptedPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone number: %w", err)
	}

	record.ConsentText, err = d.encryptor.DecryptIfEnabled(encryptedText)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt consent text: %w", err)
	}

	return &record, nil
}
