package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("REFLECTO_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("REFLECTO_TEST_DATABASE_URL is not set")
	}
	return dsn
}

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func seedPostFixture(t *testing.T, s *PostgresStore, suffix string) (orgID, authorID, reactorID, postID, commentID string) {
	t.Helper()
	ctx := context.Background()
	suffix = fmt.Sprintf("%s_%d", suffix, time.Now().UnixNano())

	org, err := s.GetOrCreateOrganizationByName(ctx, "org_rl"+suffix, "ledger-test-"+suffix, "")
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	orgID = org.ID

	authorID = "usr_author_" + suffix
	reactorID = "usr_reactor_" + suffix
	for _, user := range []User{
		{ID: authorID, Email: authorID + "@example.test", DisplayName: "Author", OrgID: orgID},
		{ID: reactorID, Email: reactorID + "@example.test", DisplayName: "Reactor", OrgID: orgID},
	} {
		if err := s.CreateUser(ctx, user); err != nil {
			t.Fatalf("create user %s: %v", user.ID, err)
		}
	}

	postID = "post_" + suffix
	if err := s.InsertPost(ctx, Post{
		ID:          postID,
		OrgID:       orgID,
		AuthorID:    authorID,
		Title:       "fixture",
		Body:        "fixture body",
		ContentType: "text",
		Anonymity:   AnonymityPublic,
	}); err != nil {
		t.Fatalf("insert post: %v", err)
	}

	commentID = "cmt_" + suffix
	if err := s.InsertComment(ctx, Comment{
		ID:        commentID,
		PostID:    postID,
		OrgID:     orgID,
		AuthorID:  authorID,
		Body:      "fixture comment",
		Anonymity: AnonymityPublic,
	}); err != nil {
		t.Fatalf("insert comment: %v", err)
	}
	return orgID, authorID, reactorID, postID, commentID
}

// The cached counters must stay equal to the live reaction-record counts
// after any sequence of apply calls, and reconciliation must agree.
func TestCommentReactionCounterConsistency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := openTestStore(t)
	ctx := context.Background()
	_, _, reactorID, _, commentID := seedPostFixture(t, s, "cc")

	steps := []struct {
		kind         string
		likeDelta    int
		dislikeDelta int
		wantLike     int
		wantDislike  int
	}{
		{KindLike, 1, 0, 1, 0},
		{KindDislike, -1, 1, 0, 1},
		{"", 0, -1, 0, 0},
		{KindLike, 1, 0, 1, 0},
	}

	for i, step := range steps {
		if err := s.ApplyCommentReaction(ctx, commentID, reactorID, step.kind, step.likeDelta, step.dislikeDelta); err != nil {
			t.Fatalf("step %d apply: %v", i, err)
		}
		comment, err := s.GetComment(ctx, commentID)
		if err != nil {
			t.Fatalf("step %d get comment: %v", i, err)
		}
		if comment.LikeCount != step.wantLike || comment.DislikeCount != step.wantDislike {
			t.Fatalf("step %d counters = (%d, %d), want (%d, %d)", i, comment.LikeCount, comment.DislikeCount, step.wantLike, step.wantDislike)
		}
	}

	likeCount, dislikeCount, err := s.ReconcileCommentCounters(ctx, commentID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if likeCount != 1 || dislikeCount != 0 {
		t.Fatalf("reconciled counters = (%d, %d), want (1, 0)", likeCount, dislikeCount)
	}
}

func TestApplyVoteUpsertSurvivesDuplicateInsert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := openTestStore(t)
	ctx := context.Background()
	_, _, reactorID, postID, _ := seedPostFixture(t, s, "dup")

	// A second insert for the same (user, target) must take the update
	// path through ON CONFLICT, not fail.
	if err := s.ApplyVote(ctx, TargetPost, postID, reactorID, KindUpvote, 1, 0); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if err := s.ApplyVote(ctx, TargetPost, postID, reactorID, KindUpvote, 0, 0); err != nil {
		t.Fatalf("duplicate vote insert: %v", err)
	}

	vote, err := s.GetVote(ctx, TargetPost, postID, reactorID)
	if err != nil {
		t.Fatalf("get vote: %v", err)
	}
	if vote == nil || vote.Kind != KindUpvote {
		t.Fatalf("vote = %+v, want upvote record", vote)
	}

	post, err := s.GetPost(ctx, postID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post.UpvoteCount != 1 {
		t.Fatalf("upvote count = %d, want 1", post.UpvoteCount)
	}
}

func TestTogglePostLikeIsSetMembership(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := openTestStore(t)
	ctx := context.Background()
	_, _, reactorID, postID, _ := seedPostFixture(t, s, "pl")

	liked, err := s.TogglePostLike(ctx, postID, reactorID)
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if !liked {
		t.Fatal("first toggle should add the like")
	}
	count, err := s.PostLikeCount(ctx, postID)
	if err != nil {
		t.Fatalf("count likes: %v", err)
	}
	if count != 1 {
		t.Fatalf("like count = %d, want 1", count)
	}

	liked, err = s.TogglePostLike(ctx, postID, reactorID)
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if liked {
		t.Fatal("second toggle should remove the like")
	}
	count, err = s.PostLikeCount(ctx, postID)
	if err != nil {
		t.Fatalf("count likes: %v", err)
	}
	if count != 0 {
		t.Fatalf("like count = %d, want 0", count)
	}
}

func TestConversationUniqueKeyViolation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := openTestStore(t)
	ctx := context.Background()
	orgID, authorID, reactorID, _, _ := seedPostFixture(t, s, "cv")

	key := authorID + ":" + reactorID + ":" + orgID
	first := Conversation{ID: "conv_first_cv", OrgID: orgID, Key: key, ParticipantA: authorID, ParticipantB: reactorID}
	if err := s.InsertConversation(ctx, first); err != nil {
		t.Fatalf("insert first conversation: %v", err)
	}

	second := first
	second.ID = "conv_second_cv"
	err := s.InsertConversation(ctx, second)
	if err == nil {
		t.Fatal("second insert with the same key should fail")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	existing, err := s.GetConversationByKey(ctx, key)
	if err != nil {
		t.Fatalf("refetch by key: %v", err)
	}
	if existing.ID != first.ID {
		t.Fatalf("refetch returned %s, want %s", existing.ID, first.ID)
	}
}
