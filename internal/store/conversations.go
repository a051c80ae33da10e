package store

import (
	"context"
	"fmt"
)

const conversationSelect = `
	SELECT id, org_id, conversation_key, participant_a, participant_b, created_at
	FROM conversations
`

func scanConversation(row interface{ Scan(...any) error }) (Conversation, error) {
	var item Conversation
	err := row.Scan(&item.ID, &item.OrgID, &item.Key, &item.ParticipantA, &item.ParticipantB, &item.CreatedAt)
	return item, err
}

func (s *PostgresStore) GetConversationByKey(ctx context.Context, key string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, conversationSelect+` WHERE conversation_key=$1`, key)
	return scanConversation(row)
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, conversationSelect+` WHERE id=$1`, conversationID)
	return scanConversation(row)
}

// InsertConversation relies on the unique constraint over
// conversation_key for race safety: callers catch IsUniqueViolation and
// re-fetch the winner instead of surfacing an error.
func (s *PostgresStore) InsertConversation(ctx context.Context, item Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, org_id, conversation_key, participant_a, participant_b)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.OrgID, item.Key, item.ParticipantA, item.ParticipantB)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, orgID, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, conversationSelect+`
		WHERE org_id=$1 AND (participant_a=$2 OR participant_b=$2)
		ORDER BY created_at DESC
	`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	items := make([]Conversation, 0)
	for rows.Next() {
		item, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, item Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.ConversationID, item.SenderID, item.Content)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, is_read, created_at
		FROM messages
		WHERE conversation_id=$1
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(&item.ID, &item.ConversationID, &item.SenderID, &item.Content, &item.IsRead, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

// MarkMessagesRead marks every message the reader did not send as read.
func (s *PostgresStore) MarkMessagesRead(ctx context.Context, conversationID, readerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read=TRUE
		WHERE conversation_id=$1 AND sender_id <> $2 AND is_read=FALSE
	`, conversationID, readerID)
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}
