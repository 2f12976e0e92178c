package database

import (
	"context"
	"database/sql"
	"fmt"
)

// PrimaryPhone resolves the messaging phone number for a patient from
// their most recent consent record, or "" when the patient has no
// consent record on file. Absence is not an error; callers decide how
// to surface an unreachable patient.
func (d *Database) PrimaryPhone(ctx context.Context, patientID int64) (string, error) {
	row := d.db.QueryRowContext(ctx, selectConsentByPatientQuery, patientID)
	record, err := d.scanConsent(row)
	if err != nil {
		return "", fmt.Errorf("failed to query consent record: %w", err)
	}
	if record == nil {
		return "", nil
	}
	return record.PhoneNumber, nil
}

// DisplayName returns the display name from the patient's most recent
// contact row, or "" when the patient has no contact yet.
func (d *Database) DisplayName(ctx context.Context, patientID int64) (string, error) {
	var encryptedName string
	err := d.db.QueryRowContext(ctx, selectDisplayNameByPatientQuery, patientID).Scan(&encryptedName)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query display name: %w", err)
	}

	name, err := d.encryptor.DecryptIfEnabled(encryptedName)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt display name: %w", err)
	}
	return name, nil
}
