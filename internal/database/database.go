package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/migrations"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	// Validate database path to prevent directory traversal
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to read schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Contact operations

// SaveContact inserts or updates the contact for a (patient, channel) pair.
// A vendor contact id already on file is never overwritten.
func (d *Database) SaveContact(ctx context.Context, contact *models.Contact) error {
	encryptedIdentity, err := d.encryptor.EncryptForLookupIfEnabled(contact.ChannelIdentity)
	if err != nil {
		return fmt.Errorf("failed to encrypt channel identity: %w", err)
	}

	encryptedName, err := d.encryptor.EncryptIfEnabled(contact.DisplayName)
	if err != nil {
		return fmt.Errorf("failed to encrypt display name: %w", err)
	}

	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, upsertContactQuery,
			contact.VendorContactID,
			contact.PatientID,
			contact.Channel,
			encryptedIdentity,
			encryptedName,
			contact.OptedIn,
			contact.OptedOut,
		)
		if err != nil {
			return fmt.Errorf("failed to save contact: %w", err)
		}
		return nil
	}, "save contact")
}

// GetContactByPatient returns the contact for a (patient, channel) pair, or
// nil if none exists.
func (d *Database) GetContactByPatient(ctx context.Context, patientID int64, channel models.Channel) (*models.Contact, error) {
	row := d.db.QueryRowContext(ctx, selectContactByPatientQuery, patientID, channel)
	return d.scanContact(row)
}

// GetContactByIdentity resolves a channel identity (phone number or
// channel handle) back to a contact. Used for inbound message routing.
func (d *Database) GetContactByIdentity(ctx context.Context, identity string) (*models.Contact, error) {
	encryptedIdentity, err := d.encryptor.EncryptForLookupIfEnabled(identity)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt channel identity: %w", err)
	}

	row := d.db.QueryRowContext(ctx, selectContactByIdentityQuery, encryptedIdentity)
	return d.scanContact(row)
}

func (d *Database) scanContact(row *sql.Row) (*models.Contact, error) {
	var contact models.Contact
	var encryptedIdentity, encryptedName string

	err := row.Scan(
		&contact.ID,
		&contact.VendorContactID,
		&contact.PatientID,
		&contact.Channel,
		&encryptedIdentity,
		&encryptedName,
		&contact.OptedIn,
		&contact.OptedOut,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	contact.ChannelIdentity, err = d.encryptor.DecryptIfEnabled(encryptedIdentity)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt channel identity: %w", err)
	}

	contact.DisplayName, err = d.encryptor.DecryptIfEnabled(encryptedName)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt display name: %w", err)
	}

	return &contact, nil
}
