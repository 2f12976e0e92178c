package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
)

// SaveConversation inserts a new conversation row.
func (d *Database) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertConversationQuery,
			conv.ID,
			conv.VendorConversationID,
			conv.VendorContactID,
			conv.PatientID,
			conv.Channel,
			conv.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}
		return nil
	}, "save conversation")
}

// GetConversation returns the conversation with the given id, or nil.
func (d *Database) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := d.db.QueryRowContext(ctx, selectConversationByIDQuery, id)
	return scanConversation(row)
}

// GetActiveConversation returns the most recent active conversation for a
// (patient, channel) pair, or nil if there is none.
func (d *Database) GetActiveConversation(ctx context.Context, patientID int64, channel models.Channel) (*models.Conversation, error) {
	row := d.db.QueryRowContext(ctx, selectActiveConversationQuery, patientID, channel)
	return scanConversation(row)
}

// ListActiveConversations returns every active conversation, oldest first.
// The poller walks this list on each cycle.
func (d *Database) ListActiveConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, selectActiveConversationsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conversations []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(
			&conv.ID,
			&conv.VendorConversationID,
			&conv.VendorContactID,
			&conv.PatientID,
			&conv.Channel,
			&conv.Status,
			&conv.LastPolledAt,
			&conv.LastMessageAt,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return conversations, nil
}

// UpdateConversationVendorID records the vendor-side conversation id once
// it becomes known after the first send.
func (d *Database) UpdateConversationVendorID(ctx context.Context, id, vendorConversationID string) error {
	result, err := d.db.ExecContext(ctx, updateConversationVendorQuery, vendorConversationID, id)
	if err != nil {
		return fmt.Errorf("failed to update vendor conversation id: %w", err)
	}
	return requireRowAffected(result, "conversation", id)
}

// UpdateConversationStatus sets the conversation status.
func (d *Database) UpdateConversationStatus(ctx context.Context, id string, status models.ConversationStatus) error {
	result, err := d.db.ExecContext(ctx, updateConversationStatusQuery, status, id)
	if err != nil {
		return fmt.Errorf("failed to update conversation status: %w", err)
	}
	return requireRowAffected(result, "conversation", id)
}

// UpdateConversationLastPolledAt records the poll watermark. Called after
// every poll cycle, successful or empty, so the window always advances.
func (d *Database) UpdateConversationLastPolledAt(ctx context.Context, id string, polledAt time.Time) error {
	result, err := d.db.ExecContext(ctx, updateConversationPolledQuery, polledAt, id)
	if err != nil {
		return fmt.Errorf("failed to update last polled at: %w", err)
	}
	return requireRowAffected(result, "conversation", id)
}

// UpdateConversationLastMessageAt records the latest message activity.
func (d *Database) UpdateConversationLastMessageAt(ctx context.Context, id string, messageAt time.Time) error {
	result, err := d.db.ExecContext(ctx, updateConversationActivityQuery, messageAt, id)
	if err != nil {
		return fmt.Errorf("failed to update last message at: %w", err)
	}
	return requireRowAffected(result, "conversation", id)
}

func scanConversation(row *sql.Row) (*models.Conversation, error) {
	var conv models.Conversation
	err := row.Scan(
		&conv.ID,
		&conv.VendorConversationID,
		&conv.VendorContactID,
		&conv.PatientID,
		&conv.Channel,
		&conv.Status,
		&conv.LastPolledAt,
		&conv.LastMessageAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	return &conv, nil
}

func requireRowAffected(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no %s found with ID: %s", kind, id)
	}
	return nil
}
