package app

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"reflecto/api/internal/store"
)

func TestResolveConversationKeyIsOrderIndependent(t *testing.T) {
	a := resolveConversationKey("usr-alpha", "usr-beta", "org-1")
	b := resolveConversationKey("usr-beta", "usr-alpha", "org-1")
	if a != b {
		t.Fatalf("key depends on argument order: %q vs %q", a, b)
	}
	if a != "usr-alpha:usr-beta:org-1" {
		t.Fatalf("unexpected key %q", a)
	}

	other := resolveConversationKey("usr-alpha", "usr-beta", "org-2")
	if other == a {
		t.Fatal("keys must differ across organizations")
	}
}

func TestGetOrCreateConversationRejectsSelf(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.GetOrCreateConversation(context.Background(), memberSession("usr-a", "org-1"), "usr-a")
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Code != "SELF_CONVERSATION" {
		t.Fatalf("expected SELF_CONVERSATION, got %v", err)
	}
}

func TestGetOrCreateConversationRejectsOtherOrgRecipient(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, OrgID: "org-other"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.GetOrCreateConversation(context.Background(), memberSession("usr-a", "org-1"), "usr-b")
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestGetOrCreateConversationSurvivesInsertRace(t *testing.T) {
	winner := store.Conversation{
		ID:           "conv-winner",
		OrgID:        "org-1",
		Key:          resolveConversationKey("usr-a", "usr-b", "org-1"),
		ParticipantA: "usr-a",
		ParticipantB: "usr-b",
	}
	lookups := 0
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, OrgID: "org-1"}, nil
		},
		getConversationByKeyFn: func(_ context.Context, key string) (store.Conversation, error) {
			lookups++
			if lookups == 1 {
				return store.Conversation{}, sql.ErrNoRows
			}
			return winner, nil
		},
		insertConversationFn: func(context.Context, store.Conversation) error {
			return &pgconn.PgError{Code: "23505"}
		},
	}
	svc := newTestService(fs)

	payload, err := svc.GetOrCreateConversation(context.Background(), memberSession("usr-a", "org-1"), "usr-b")
	if err != nil {
		t.Fatalf("GetOrCreateConversation() error = %v", err)
	}
	if payload["id"] != "conv-winner" {
		t.Fatalf("expected the racing winner's conversation, got %v", payload["id"])
	}
	if lookups != 2 {
		t.Fatalf("expected a re-fetch after the unique violation, got %d lookups", lookups)
	}
}

func TestSendMessageIncrementsRecipientUnread(t *testing.T) {
	var bumped string
	fs := &fakeStore{
		getConversationFn: func(_ context.Context, id string) (store.Conversation, error) {
			return store.Conversation{ID: id, OrgID: "org-1", ParticipantA: "usr-a", ParticipantB: "usr-b"}, nil
		},
		incrementUnreadFn: func(_ context.Context, userID string) error {
			bumped = userID
			return nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.SendMessage(context.Background(), memberSession("usr-a", "org-1"), SendMessageInput{
		ConversationID: "conv-1",
		Content:        "hello there",
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if bumped != "usr-b" {
		t.Fatalf("expected unread bump for usr-b, got %q", bumped)
	}
	if payload["content"] != "hello there" {
		t.Fatalf("unexpected content %v", payload["content"])
	}
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	fs := &fakeStore{
		getConversationFn: func(_ context.Context, id string) (store.Conversation, error) {
			return store.Conversation{ID: id, OrgID: "org-1", ParticipantA: "usr-a", ParticipantB: "usr-b"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.SendMessage(context.Background(), memberSession("usr-c", "org-1"), SendMessageInput{
		ConversationID: "conv-1",
		Content:        "hi",
	})
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("expected 403 for non-participant, got %v", err)
	}
}

func TestSendMessageRequiresContent(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.SendMessage(context.Background(), memberSession("usr-a", "org-1"), SendMessageInput{
		ConversationID: "conv-1",
		Content:        "   ",
	})
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Status != 400 {
		t.Fatalf("expected 400 for blank content, got %v", err)
	}
}

func TestListMessagesMarksRead(t *testing.T) {
	var marked bool
	fs := &fakeStore{
		getConversationFn: func(_ context.Context, id string) (store.Conversation, error) {
			return store.Conversation{ID: id, OrgID: "org-1", ParticipantA: "usr-a", ParticipantB: "usr-b"}, nil
		},
		listMessagesFn: func(context.Context, string) ([]store.Message, error) {
			return []store.Message{{ID: "msg-1", SenderID: "usr-b", Content: "hey"}}, nil
		},
		markMessagesReadFn: func(_ context.Context, conversationID, userID string) error {
			if conversationID != "conv-1" || userID != "usr-a" {
				t.Fatalf("unexpected mark-read args %q %q", conversationID, userID)
			}
			marked = true
			return nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.ListMessages(context.Background(), memberSession("usr-a", "org-1"), "conv-1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if !marked {
		t.Fatal("expected messages to be marked read")
	}
	messages := payload["messages"].([]map[string]any)
	if len(messages) != 1 || messages[0]["id"] != "msg-1" {
		t.Fatalf("unexpected messages %v", messages)
	}
}

func TestActivityCounter(t *testing.T) {
	var resets int
	fs := &fakeStore{
		unreadCountFn: func(context.Context, string) (int, error) { return 3, nil },
		resetUnreadFn: func(context.Context, string) error {
			resets++
			return nil
		},
	}
	svc := newTestService(fs)
	session := memberSession("usr-a", "org-1")

	payload, err := svc.Activity(context.Background(), session)
	if err != nil {
		t.Fatalf("Activity() error = %v", err)
	}
	if payload["unreadCount"] != 3 {
		t.Fatalf("expected unreadCount 3, got %v", payload["unreadCount"])
	}

	for i := 0; i < 2; i++ {
		payload, err = svc.ResetActivity(context.Background(), session)
		if err != nil {
			t.Fatalf("ResetActivity() error = %v", err)
		}
		if payload["unreadCount"] != 0 {
			t.Fatalf("expected unreadCount 0 after reset, got %v", payload["unreadCount"])
		}
	}
	if resets != 2 {
		t.Fatalf("expected reset to run each time, got %d", resets)
	}
}
