package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"

	"reflecto/api/internal/store"
	"reflecto/api/internal/util"
)

// resolveConversationKey derives the deterministic, order-independent
// key for a participant pair within an organization.
func resolveConversationKey(userA, userB, orgID string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1] + ":" + orgID
}

// GetOrCreateConversation returns the single conversation between the
// caller and the recipient, creating it on first contact. The unique
// key constraint resolves concurrent creation races: the loser of the
// insert re-fetches the winner's record.
func (s *Service) GetOrCreateConversation(ctx context.Context, session Session, recipientID string) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "recipientId is required", nil)
	}
	if recipientID == session.UserID {
		return nil, domainError(http.StatusBadRequest, "SELF_CONVERSATION", "You cannot message yourself", nil)
	}
	recipient, err := s.store.GetUserByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if recipient.OrgID != orgID {
		return nil, domainError(http.StatusForbidden, "CROSS_TENANT_PARTICIPANT", "Forbidden", nil)
	}

	conversation, err := s.getOrCreateConversation(ctx, session.UserID, recipientID, orgID)
	if err != nil {
		return nil, err
	}
	return presentConversation(conversation), nil
}

func (s *Service) getOrCreateConversation(ctx context.Context, userA, userB, orgID string) (store.Conversation, error) {
	key := resolveConversationKey(userA, userB, orgID)

	existing, err := s.store.GetConversationByKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.Conversation{}, err
	}

	pair := []string{userA, userB}
	sort.Strings(pair)
	conversation := store.Conversation{
		ID:           util.NewID("conv"),
		OrgID:        orgID,
		Key:          key,
		ParticipantA: pair[0],
		ParticipantB: pair[1],
	}
	if err := s.store.InsertConversation(ctx, conversation); err != nil {
		if store.IsUniqueViolation(err) {
			return s.store.GetConversationByKey(ctx, key)
		}
		return store.Conversation{}, err
	}
	return conversation, nil
}

func (s *Service) ListConversations(ctx context.Context, session Session) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	conversations, err := s.store.ListConversations(ctx, orgID, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(conversations))
	for _, conversation := range conversations {
		items = append(items, presentConversation(conversation))
	}
	return map[string]any{"conversations": items}, nil
}

type SendMessageInput struct {
	ConversationID string `json:"conversationId"`
	RecipientID    string `json:"recipientId"`
	Content        string `json:"content"`
}

func (s *Service) SendMessage(ctx context.Context, session Session, input SendMessageInput) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "content is required", nil)
	}

	var conversation store.Conversation
	switch {
	case strings.TrimSpace(input.ConversationID) != "":
		conversation, err = s.store.GetConversation(ctx, strings.TrimSpace(input.ConversationID))
		if err != nil {
			return nil, err
		}
		if err := guardTenant(orgID, conversation.OrgID); err != nil {
			return nil, err
		}
		if conversation.ParticipantA != session.UserID && conversation.ParticipantB != session.UserID {
			return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		}
	case strings.TrimSpace(input.RecipientID) != "":
		recipientID := strings.TrimSpace(input.RecipientID)
		if recipientID == session.UserID {
			return nil, domainError(http.StatusBadRequest, "SELF_CONVERSATION", "You cannot message yourself", nil)
		}
		recipient, err := s.store.GetUserByID(ctx, recipientID)
		if err != nil {
			return nil, err
		}
		if recipient.OrgID != orgID {
			return nil, domainError(http.StatusForbidden, "CROSS_TENANT_PARTICIPANT", "Forbidden", nil)
		}
		conversation, err = s.getOrCreateConversation(ctx, session.UserID, recipientID, orgID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "conversationId or recipientId is required", nil)
	}

	message := store.Message{
		ID:             util.NewID("msg"),
		ConversationID: conversation.ID,
		SenderID:       session.UserID,
		Content:        content,
	}
	if err := s.store.InsertMessage(ctx, message); err != nil {
		return nil, err
	}

	recipientID := conversation.ParticipantA
	if recipientID == session.UserID {
		recipientID = conversation.ParticipantB
	}
	if err := s.store.IncrementUnread(ctx, recipientID); err != nil {
		log.Printf("activity: increment for %s: %v", recipientID, err)
	}
	s.notifyRecipient(ctx, recipientID, session.UserName)

	return map[string]any{
		"id":             message.ID,
		"conversationId": conversation.ID,
		"senderId":       message.SenderID,
		"content":        message.Content,
	}, nil
}

// notifyRecipient sends a best-effort email nudge about the new message.
func (s *Service) notifyRecipient(ctx context.Context, recipientID, senderName string) {
	if !s.SMTPConfigured() {
		return
	}
	recipient, err := s.store.GetUserByID(ctx, recipientID)
	if err != nil {
		return
	}
	go func() {
		if err := s.email.SendMessageNotification(recipient.Email, recipient.DisplayName, senderName, "/inbox"); err != nil {
			log.Printf("email: message notification to %s: %v", recipient.ID, err)
		}
	}()
}

// ListMessages returns a conversation's messages and marks the other
// participant's messages as read.
func (s *Service) ListMessages(ctx context.Context, session Session, conversationID string) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := guardTenant(orgID, conversation.OrgID); err != nil {
		return nil, err
	}
	if conversation.ParticipantA != session.UserID && conversation.ParticipantB != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkMessagesRead(ctx, conversationID, session.UserID); err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		items = append(items, map[string]any{
			"id":        message.ID,
			"senderId":  message.SenderID,
			"content":   message.Content,
			"isRead":    message.IsRead,
			"createdAt": message.CreatedAt,
		})
	}
	return map[string]any{"messages": items}, nil
}

func presentConversation(conversation store.Conversation) map[string]any {
	return map[string]any{
		"id":           conversation.ID,
		"participants": []string{conversation.ParticipantA, conversation.ParticipantB},
		"createdAt":    conversation.CreatedAt,
	}
}

// Activity returns the caller's unread counter.
func (s *Service) Activity(ctx context.Context, session Session) (map[string]any, error) {
	count, err := s.store.UnreadCount(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"unreadCount": count}, nil
}

// ResetActivity zeroes the caller's unread counter. Idempotent.
func (s *Service) ResetActivity(ctx context.Context, session Session) (map[string]any, error) {
	if err := s.store.ResetUnread(ctx, session.UserID); err != nil {
		return nil, err
	}
	return map[string]any{"unreadCount": 0}, nil
}
