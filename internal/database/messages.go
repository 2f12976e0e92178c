package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
)

// InsertMessageIfNew persists a message keyed by its vendor message id.
// Returns false when a row with the same vendor id already exists, which
// is how the poller deduplicates overlapping poll windows.
func (d *Database) InsertMessageIfNew(ctx context.Context, msg *models.Message) (bool, error) {
	encryptedBody, err := d.encryptor.EncryptIfEnabled(msg.Body)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt message body: %w", err)
	}

	var encryptedMediaURL *string
	if msg.MediaURL != nil {
		encrypted, err := d.encryptor.EncryptIfEnabled(*msg.MediaURL)
		if err != nil {
			return false, fmt.Errorf("failed to encrypt media URL: %w", err)
		}
		encryptedMediaURL = &encrypted
	}

	metadata, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return false, err
	}

	var inserted bool
	err = retryableDBOperationNoReturn(ctx, func() error {
		result, err := d.db.ExecContext(ctx, insertMessageIfNewQuery,
			msg.VendorMessageID,
			msg.ConversationID,
			msg.Direction,
			msg.Channel,
			encryptedBody,
			encryptedMediaURL,
			msg.Status,
			msg.TemplateKey,
			metadata,
			msg.SentAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		inserted = rows > 0
		return nil
	}, "insert message")
	if err != nil {
		return false, err
	}

	return inserted, nil
}

// GetMessageByVendorID returns the message with the given vendor id, or nil.
func (d *Database) GetMessageByVendorID(ctx context.Context, vendorMessageID string) (*models.Message, error) {
	row := d.db.QueryRowContext(ctx, selectMessageByVendorIDQuery, vendorMessageID)

	msg, err := d.scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetConversationMessages returns every stored message in a conversation,
// oldest first.
func (d *Database) GetConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, selectMessagesByConversationQuery, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []models.Message
	for rows.Next() {
		msg, err := d.scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// UpdateMessageStatus updates the delivery status for a vendor message id.
// Delivery and read timestamps are set once and never moved backwards.
func (d *Database) UpdateMessageStatus(ctx context.Context, vendorMessageID string, status models.MessageStatus, deliveredAt, readAt sql.NullTime) error {
	result, err := d.db.ExecContext(ctx, updateMessageStatusQuery, status, deliveredAt, readAt, vendorMessageID)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return requireRowAffected(result, "message", vendorMessageID)
}

// CleanupOldMessages removes messages older than the retention window.
func (d *Database) CleanupOldMessages(retentionDays int) error {
	_, err := d.db.Exec(deleteOldMessagesQuery, retentionDays)
	if err != nil {
		return fmt.Errorf("failed to cleanup old messages: %w", err)
	}
	return nil
}

func (d *Database) scanMessage(scan func(dest ...interface{}) error) (*models.Message, error) {
	var msg models.Message
	var encryptedBody string
	var encryptedMediaURL, metadata *string

	err := scan(
		&msg.ID,
		&msg.VendorMessageID,
		&msg.ConversationID,
		&msg.Direction,
		&msg.Channel,
		&encryptedBody,
		&encryptedMediaURL,
		&msg.Status,
		&msg.TemplateKey,
		&metadata,
		&msg.SentAt,
		&msg.DeliveredAt,
		&msg.ReadAt,
		&msg.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.Body, err = d.encryptor.DecryptIfEnabled(encryptedBody)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt message body: %w", err)
	}

	if encryptedMediaURL != nil {
		decrypted, err := d.encryptor.DecryptIfEnabled(*encryptedMediaURL)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt media URL: %w", err)
		}
		msg.MediaURL = &decrypted
	}

	if metadata != nil && *metadata != "" {
		if err := json.Unmarshal([]byte(*metadata), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode message metadata: %w", err)
		}
	}

	return &msg, nil
}

func marshalMetadata(metadata map[string]string) (*string, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message metadata: %w", err)
	}
	encoded := string(raw)
	return &encoded, nil
}
