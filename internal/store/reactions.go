package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Reaction kinds.
const (
	KindLike     = "like"
	KindDislike  = "dislike"
	KindUpvote   = "upvote"
	KindDownvote = "downvote"
)

func (s *PostgresStore) GetCommentReaction(ctx context.Context, commentID, userID string) (*Reaction, error) {
	var reaction Reaction
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, kind, updated_at
		FROM comment_reactions
		WHERE comment_id=$1 AND user_id=$2
	`, commentID, userID).Scan(&reaction.UserID, &reaction.Kind, &reaction.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comment reaction: %w", err)
	}
	return &reaction, nil
}

// ApplyCommentReaction commits a reaction-record mutation and its counter
// deltas as one transaction. kind == "" deletes the record. The counter
// update is a storage-side add, never a read-modify-write of the cached
// value, so concurrent reactions from different users cannot lose updates.
// A duplicate insert from the same user resolves through ON CONFLICT into
// the update path.
func (s *PostgresStore) ApplyCommentReaction(ctx context.Context, commentID, userID, kind string, likeDelta, dislikeDelta int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin comment reaction tx: %w", err)
	}
	defer tx.Rollback()

	if kind == "" {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM comment_reactions WHERE comment_id=$1 AND user_id=$2
		`, commentID, userID); err != nil {
			return fmt.Errorf("delete comment reaction: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO comment_reactions (comment_id, user_id, kind)
			VALUES ($1, $2, $3)
			ON CONFLICT (comment_id, user_id)
			DO UPDATE SET kind=EXCLUDED.kind, updated_at=NOW()
		`, commentID, userID, kind); err != nil {
			return fmt.Errorf("upsert comment reaction: %w", err)
		}
	}

	if likeDelta != 0 || dislikeDelta != 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE comments
			SET like_count = GREATEST(like_count + $2, 0),
				dislike_count = GREATEST(dislike_count + $3, 0),
				updated_at = NOW()
			WHERE id=$1
		`, commentID, likeDelta, dislikeDelta); err != nil {
			return fmt.Errorf("adjust comment counters: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit comment reaction: %w", err)
	}
	return nil
}

// ReconcileCommentCounters recomputes cached counters from the live
// reaction set. The counters are derived state; this is the repair path
// after a partial failure left them divergent.
func (s *PostgresStore) ReconcileCommentCounters(ctx context.Context, commentID string) (likeCount, dislikeCount int, err error) {
	err = s.db.QueryRowContext(ctx, `
		UPDATE comments SET
			like_count = (SELECT COUNT(*) FROM comment_reactions WHERE comment_id=$1 AND kind='like'),
			dislike_count = (SELECT COUNT(*) FROM comment_reactions WHERE comment_id=$1 AND kind='dislike'),
			updated_at = NOW()
		WHERE id=$1
		RETURNING like_count, dislike_count
	`, commentID).Scan(&likeCount, &dislikeCount)
	if err != nil {
		return 0, 0, fmt.Errorf("reconcile comment counters: %w", err)
	}
	return likeCount, dislikeCount, nil
}

func (s *PostgresStore) GetVote(ctx context.Context, targetKind, targetID, userID string) (*Reaction, error) {
	var reaction Reaction
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, kind, updated_at
		FROM votes
		WHERE target_kind=$1 AND target_id=$2 AND user_id=$3
	`, targetKind, targetID, userID).Scan(&reaction.UserID, &reaction.Kind, &reaction.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return &reaction, nil
}

func voteCounterTable(targetKind string) (string, error) {
	switch targetKind {
	case TargetPost:
		return "posts", nil
	case TargetPodcast:
		return "podcasts", nil
	}
	return "", fmt.Errorf("unknown vote target kind %q", targetKind)
}

// ApplyVote is the vote-record twin of ApplyCommentReaction: record
// mutation plus atomic counter adds on the target's table, one
// transaction per request.
func (s *PostgresStore) ApplyVote(ctx context.Context, targetKind, targetID, userID, kind string, upDelta, downDelta int) error {
	table, err := voteCounterTable(targetKind)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vote tx: %w", err)
	}
	defer tx.Rollback()

	if kind == "" {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM votes WHERE target_kind=$1 AND target_id=$2 AND user_id=$3
		`, targetKind, targetID, userID); err != nil {
			return fmt.Errorf("delete vote: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO votes (target_kind, target_id, user_id, kind)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (target_kind, target_id, user_id)
			DO UPDATE SET kind=EXCLUDED.kind, updated_at=NOW()
		`, targetKind, targetID, userID, kind); err != nil {
			return fmt.Errorf("upsert vote: %w", err)
		}
	}

	if upDelta != 0 || downDelta != 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE `+table+`
			SET upvote_count = GREATEST(upvote_count + $2, 0),
				downvote_count = GREATEST(downvote_count + $3, 0),
				updated_at = NOW()
			WHERE id=$1
		`, targetID, upDelta, downDelta); err != nil {
			return fmt.Errorf("adjust vote counters: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReconcileVoteCounters(ctx context.Context, targetKind, targetID string) (upvotes, downvotes int, err error) {
	table, err := voteCounterTable(targetKind)
	if err != nil {
		return 0, 0, err
	}
	err = s.db.QueryRowContext(ctx, `
		UPDATE `+table+` SET
			upvote_count = (SELECT COUNT(*) FROM votes WHERE target_kind=$2 AND target_id=$1 AND kind='upvote'),
			downvote_count = (SELECT COUNT(*) FROM votes WHERE target_kind=$2 AND target_id=$1 AND kind='downvote'),
			updated_at = NOW()
		WHERE id=$1
		RETURNING upvote_count, downvote_count
	`, targetID, targetKind).Scan(&upvotes, &downvotes)
	if err != nil {
		return 0, 0, fmt.Errorf("reconcile vote counters: %w", err)
	}
	return upvotes, downvotes, nil
}

// TogglePostLike flips the caller's membership in the post's like set.
// The set itself is the counter, so there is no cached integer to keep
// consistent.
func (s *PostgresStore) TogglePostLike(ctx context.Context, postID, userID string) (liked bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM post_likes WHERE post_id=$1 AND user_id=$2
	`, postID, userID)
	if err != nil {
		return false, fmt.Errorf("delete post like: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete post like rows: %w", err)
	}
	if affected > 0 {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO post_likes (post_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (post_id, user_id) DO NOTHING
	`, postID, userID); err != nil {
		return false, fmt.Errorf("insert post like: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) PostLikeCount(ctx context.Context, postID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM post_likes WHERE post_id=$1`, postID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count post likes: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) HasPostLike(ctx context.Context, postID, userID string) (bool, error) {
	var liked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM post_likes WHERE post_id=$1 AND user_id=$2)
	`, postID, userID).Scan(&liked)
	if err != nil {
		return false, fmt.Errorf("check post like: %w", err)
	}
	return liked, nil
}
