package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"reflecto/api/internal/config"
	"reflecto/api/internal/store"
)

func asDomainError(err error, target **DomainError) bool {
	return errors.As(err, target)
}

type fakeStore struct {
	getUserByIDFn              func(context.Context, string) (store.User, error)
	listOrganizationMembersFn  func(context.Context, string) ([]store.User, error)
	insertPostFn               func(context.Context, store.Post) error
	getPostFn                  func(context.Context, string) (store.Post, error)
	searchPostsFn              func(context.Context, string, store.SearchFilter) ([]store.Post, error)
	insertCommentFn            func(context.Context, store.Comment) error
	getCommentFn               func(context.Context, string) (store.Comment, error)
	listCommentsFn             func(context.Context, string) ([]store.Comment, error)
	getPodcastFn               func(context.Context, string) (store.Podcast, error)
	getCommentReactionFn       func(context.Context, string, string) (*store.Reaction, error)
	applyCommentReactionFn     func(context.Context, string, string, string, int, int) error
	getVoteFn                  func(context.Context, string, string, string) (*store.Reaction, error)
	applyVoteFn                func(context.Context, string, string, string, string, int, int) error
	reconcileVoteCountersFn    func(context.Context, string, string) (int, int, error)
	reconcileCommentCountersFn func(context.Context, string) (int, int, error)
	togglePostLikeFn           func(context.Context, string, string) (bool, error)
	postLikeCountFn            func(context.Context, string) (int, error)
	hasPostLikeFn              func(context.Context, string, string) (bool, error)
	getConversationByKeyFn     func(context.Context, string) (store.Conversation, error)
	getConversationFn          func(context.Context, string) (store.Conversation, error)
	insertConversationFn       func(context.Context, store.Conversation) error
	listConversationsFn        func(context.Context, string, string) ([]store.Conversation, error)
	insertMessageFn            func(context.Context, store.Message) error
	listMessagesFn             func(context.Context, string) ([]store.Message, error)
	markMessagesReadFn         func(context.Context, string, string) error
	incrementUnreadFn          func(context.Context, string) error
	resetUnreadFn              func(context.Context, string) error
	unreadCountFn              func(context.Context, string) (int, error)
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{ID: id}, nil
}

func (f *fakeStore) GetUserByEmail(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetOrganization(ctx context.Context, id string) (store.Organization, error) {
	return store.Organization{ID: id}, nil
}

func (f *fakeStore) ListOrganizationMembers(ctx context.Context, orgID string) ([]store.User, error) {
	if f.listOrganizationMembersFn != nil {
		return f.listOrganizationMembersFn(ctx, orgID)
	}
	return nil, nil
}

func (f *fakeStore) InsertPost(ctx context.Context, item store.Post) error {
	if f.insertPostFn != nil {
		return f.insertPostFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) GetPost(ctx context.Context, id string) (store.Post, error) {
	if f.getPostFn != nil {
		return f.getPostFn(ctx, id)
	}
	return store.Post{}, sql.ErrNoRows
}

func (f *fakeStore) UpdatePostFeedback(context.Context, string, string, string, bool) error {
	return nil
}

func (f *fakeStore) SearchPosts(ctx context.Context, orgID string, filter store.SearchFilter) ([]store.Post, error) {
	if f.searchPostsFn != nil {
		return f.searchPostsFn(ctx, orgID, filter)
	}
	return nil, nil
}

func (f *fakeStore) InsertComment(ctx context.Context, item store.Comment) error {
	if f.insertCommentFn != nil {
		return f.insertCommentFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) GetComment(ctx context.Context, id string) (store.Comment, error) {
	if f.getCommentFn != nil {
		return f.getCommentFn(ctx, id)
	}
	return store.Comment{}, sql.ErrNoRows
}

func (f *fakeStore) ListComments(ctx context.Context, postID string) ([]store.Comment, error) {
	if f.listCommentsFn != nil {
		return f.listCommentsFn(ctx, postID)
	}
	return nil, nil
}

func (f *fakeStore) InsertPodcast(context.Context, store.Podcast) error { return nil }

func (f *fakeStore) GetPodcast(ctx context.Context, id string) (store.Podcast, error) {
	if f.getPodcastFn != nil {
		return f.getPodcastFn(ctx, id)
	}
	return store.Podcast{}, sql.ErrNoRows
}

func (f *fakeStore) UpdatePodcastTranscript(context.Context, string, string, float64, string, string, string) error {
	return nil
}

func (f *fakeStore) SearchPodcasts(context.Context, string, store.SearchFilter) ([]store.Podcast, error) {
	return nil, nil
}

func (f *fakeStore) GetCommentReaction(ctx context.Context, commentID, userID string) (*store.Reaction, error) {
	if f.getCommentReactionFn != nil {
		return f.getCommentReactionFn(ctx, commentID, userID)
	}
	return nil, nil
}

func (f *fakeStore) ApplyCommentReaction(ctx context.Context, commentID, userID, kind string, likeDelta, dislikeDelta int) error {
	if f.applyCommentReactionFn != nil {
		return f.applyCommentReactionFn(ctx, commentID, userID, kind, likeDelta, dislikeDelta)
	}
	return nil
}

func (f *fakeStore) ReconcileCommentCounters(ctx context.Context, commentID string) (int, int, error) {
	if f.reconcileCommentCountersFn != nil {
		return f.reconcileCommentCountersFn(ctx, commentID)
	}
	return 0, 0, nil
}

func (f *fakeStore) GetVote(ctx context.Context, targetKind, targetID, userID string) (*store.Reaction, error) {
	if f.getVoteFn != nil {
		return f.getVoteFn(ctx, targetKind, targetID, userID)
	}
	return nil, nil
}

func (f *fakeStore) ApplyVote(ctx context.Context, targetKind, targetID, userID, kind string, upDelta, downDelta int) error {
	if f.applyVoteFn != nil {
		return f.applyVoteFn(ctx, targetKind, targetID, userID, kind, upDelta, downDelta)
	}
	return nil
}

func (f *fakeStore) ReconcileVoteCounters(ctx context.Context, targetKind, targetID string) (int, int, error) {
	if f.reconcileVoteCountersFn != nil {
		return f.reconcileVoteCountersFn(ctx, targetKind, targetID)
	}
	return 0, 0, nil
}

func (f *fakeStore) TogglePostLike(ctx context.Context, postID, userID string) (bool, error) {
	if f.togglePostLikeFn != nil {
		return f.togglePostLikeFn(ctx, postID, userID)
	}
	return false, nil
}

func (f *fakeStore) PostLikeCount(ctx context.Context, postID string) (int, error) {
	if f.postLikeCountFn != nil {
		return f.postLikeCountFn(ctx, postID)
	}
	return 0, nil
}

func (f *fakeStore) HasPostLike(ctx context.Context, postID, userID string) (bool, error) {
	if f.hasPostLikeFn != nil {
		return f.hasPostLikeFn(ctx, postID, userID)
	}
	return false, nil
}

func (f *fakeStore) GetConversationByKey(ctx context.Context, key string) (store.Conversation, error) {
	if f.getConversationByKeyFn != nil {
		return f.getConversationByKeyFn(ctx, key)
	}
	return store.Conversation{}, sql.ErrNoRows
}

func (f *fakeStore) GetConversation(ctx context.Context, id string) (store.Conversation, error) {
	if f.getConversationFn != nil {
		return f.getConversationFn(ctx, id)
	}
	return store.Conversation{}, sql.ErrNoRows
}

func (f *fakeStore) InsertConversation(ctx context.Context, item store.Conversation) error {
	if f.insertConversationFn != nil {
		return f.insertConversationFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) ListConversations(ctx context.Context, orgID, userID string) ([]store.Conversation, error) {
	if f.listConversationsFn != nil {
		return f.listConversationsFn(ctx, orgID, userID)
	}
	return nil, nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, item store.Message) error {
	if f.insertMessageFn != nil {
		return f.insertMessageFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	if f.listMessagesFn != nil {
		return f.listMessagesFn(ctx, conversationID)
	}
	return nil, nil
}

func (f *fakeStore) MarkMessagesRead(ctx context.Context, conversationID, userID string) error {
	if f.markMessagesReadFn != nil {
		return f.markMessagesReadFn(ctx, conversationID, userID)
	}
	return nil
}

func (f *fakeStore) IncrementUnread(ctx context.Context, userID string) error {
	if f.incrementUnreadFn != nil {
		return f.incrementUnreadFn(ctx, userID)
	}
	return nil
}

func (f *fakeStore) ResetUnread(ctx context.Context, userID string) error {
	if f.resetUnreadFn != nil {
		return f.resetUnreadFn(ctx, userID)
	}
	return nil
}

func (f *fakeStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	if f.unreadCountFn != nil {
		return f.unreadCountFn(ctx, userID)
	}
	return 0, nil
}

func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }

func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) { return false, nil }

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) SaveRefreshSession(context.Context, string, string, time.Time) error { return nil }

func (f *fakeStore) LookupRefreshSession(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) RevokeRefreshSession(context.Context, string) error { return nil }

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:    fs,
		sessions: fs,
	}
}

func memberSession(userID, orgID string) Session {
	return Session{UserID: userID, UserName: "Member " + userID, OrgID: orgID}
}
