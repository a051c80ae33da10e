package app

import (
	"context"
	"net/http"
	"time"

	"reflecto/api/internal/store"
)

// reactionDebounce is the minimum interval between two mutations of the
// same (user, target) reaction record. Read from the persisted
// updated_at so the guard holds across process instances.
const reactionDebounce = 800 * time.Millisecond

const actionRemove = "remove"

type reactionTransition struct {
	newKind string // "" means delete the record
	deltaA  int    // first counter (like / upvote)
	deltaB  int    // second counter (dislike / downvote)
	noop    bool
}

// resolveTransition implements the ledger state machine. kindA/kindB
// name the two opposing kinds for the target ("like"/"dislike" or
// "upvote"/"downvote"); current is the existing record kind or "".
func resolveTransition(current, action, kindA, kindB string) (reactionTransition, error) {
	if action != kindA && action != kindB && action != actionRemove {
		return reactionTransition{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid reaction type", nil)
	}

	switch {
	case action == actionRemove:
		if current == "" {
			return reactionTransition{noop: true}, nil
		}
		return reactionTransition{newKind: "", deltaA: counterDelta(current, kindA, -1), deltaB: counterDelta(current, kindB, -1)}, nil
	case current == "":
		return reactionTransition{newKind: action, deltaA: counterDelta(action, kindA, 1), deltaB: counterDelta(action, kindB, 1)}, nil
	case current == action:
		// Same kind again toggles off.
		return reactionTransition{newKind: "", deltaA: counterDelta(current, kindA, -1), deltaB: counterDelta(current, kindB, -1)}, nil
	default:
		// Switch: decrement the old counter, increment the new one.
		t := reactionTransition{newKind: action}
		t.deltaA = counterDelta(current, kindA, -1) + counterDelta(action, kindA, 1)
		t.deltaB = counterDelta(current, kindB, -1) + counterDelta(action, kindB, 1)
		return t, nil
	}
}

func counterDelta(kind, counterKind string, delta int) int {
	if kind == counterKind {
		return delta
	}
	return 0
}

func checkDebounce(current *store.Reaction, now time.Time) error {
	if current == nil {
		return nil
	}
	if now.Sub(current.UpdatedAt) < reactionDebounce {
		return domainError(http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Reaction changed too recently", nil)
	}
	return nil
}

func currentKind(current *store.Reaction) string {
	if current == nil {
		return ""
	}
	return current.Kind
}

// ReactToComment applies a like/dislike/remove action to a comment and
// returns the viewer's resulting state plus fresh counters.
func (s *Service) ReactToComment(ctx context.Context, session Session, commentID, action string) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if err := guardTenant(orgID, comment.OrgID); err != nil {
		return nil, err
	}
	if comment.AuthorID == session.UserID {
		return nil, domainError(http.StatusBadRequest, "SELF_REACTION", "You cannot react to your own content", nil)
	}

	current, err := s.store.GetCommentReaction(ctx, commentID, session.UserID)
	if err != nil {
		return nil, err
	}
	if err := checkDebounce(current, time.Now()); err != nil {
		return nil, err
	}

	transition, err := resolveTransition(currentKind(current), action, store.KindLike, store.KindDislike)
	if err != nil {
		return nil, err
	}
	if !transition.noop {
		if err := s.store.ApplyCommentReaction(ctx, commentID, session.UserID, transition.newKind, transition.deltaA, transition.deltaB); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"likeCount":    updated.LikeCount,
		"dislikeCount": updated.DislikeCount,
	}
	if transition.noop {
		payload["userReaction"] = nullableKind(currentKind(current))
	} else {
		payload["userReaction"] = nullableKind(transition.newKind)
	}
	return payload, nil
}

// VoteOnTarget applies an upvote/downvote/remove action to a post or
// podcast.
func (s *Service) VoteOnTarget(ctx context.Context, session Session, targetKind, targetID, action string) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}

	itemOrg, authorID, err := s.voteTarget(ctx, targetKind, targetID)
	if err != nil {
		return nil, err
	}
	if err := guardTenant(orgID, itemOrg); err != nil {
		return nil, err
	}
	if authorID == session.UserID {
		return nil, domainError(http.StatusBadRequest, "SELF_REACTION", "You cannot vote on your own content", nil)
	}

	current, err := s.store.GetVote(ctx, targetKind, targetID, session.UserID)
	if err != nil {
		return nil, err
	}
	if err := checkDebounce(current, time.Now()); err != nil {
		return nil, err
	}

	transition, err := resolveTransition(currentKind(current), action, store.KindUpvote, store.KindDownvote)
	if err != nil {
		return nil, err
	}
	if !transition.noop {
		if err := s.store.ApplyVote(ctx, targetKind, targetID, session.UserID, transition.newKind, transition.deltaA, transition.deltaB); err != nil {
			return nil, err
		}
	}

	upvotes, downvotes, err := s.voteCounters(ctx, targetKind, targetID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"upvoteCount":   upvotes,
		"downvoteCount": downvotes,
	}
	if transition.noop {
		payload["userReaction"] = nullableKind(currentKind(current))
	} else {
		payload["userReaction"] = nullableKind(transition.newKind)
	}
	return payload, nil
}

func (s *Service) voteTarget(ctx context.Context, targetKind, targetID string) (orgID, authorID string, err error) {
	switch targetKind {
	case store.TargetPost:
		post, err := s.store.GetPost(ctx, targetID)
		if err != nil {
			return "", "", err
		}
		return post.OrgID, post.AuthorID, nil
	case store.TargetPodcast:
		podcast, err := s.store.GetPodcast(ctx, targetID)
		if err != nil {
			return "", "", err
		}
		return podcast.OrgID, podcast.AuthorID, nil
	}
	return "", "", domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid vote target", nil)
}

func (s *Service) voteCounters(ctx context.Context, targetKind, targetID string) (int, int, error) {
	switch targetKind {
	case store.TargetPost:
		post, err := s.store.GetPost(ctx, targetID)
		if err != nil {
			return 0, 0, err
		}
		return post.UpvoteCount, post.DownvoteCount, nil
	default:
		podcast, err := s.store.GetPodcast(ctx, targetID)
		if err != nil {
			return 0, 0, err
		}
		return podcast.UpvoteCount, podcast.DownvoteCount, nil
	}
}

// TogglePostLike flips set membership for the single-state post like.
// No cached counter exists to desync; the count is the set cardinality.
func (s *Service) TogglePostLike(ctx context.Context, session Session, postID string) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := guardTenant(orgID, post.OrgID); err != nil {
		return nil, err
	}
	if post.AuthorID == session.UserID {
		return nil, domainError(http.StatusBadRequest, "SELF_REACTION", "You cannot like your own content", nil)
	}

	liked, err := s.store.TogglePostLike(ctx, postID, session.UserID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.PostLikeCount(ctx, postID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"liked":     liked,
		"likeCount": count,
	}, nil
}

// ReconcileCounters recomputes a target's cached counters from its live
// reaction records. Exposed on an internal route for repair after
// partial failures.
func (s *Service) ReconcileCounters(ctx context.Context, targetKind, targetID string) (map[string]any, error) {
	switch targetKind {
	case "comment":
		likes, dislikes, err := s.store.ReconcileCommentCounters(ctx, targetID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"likeCount": likes, "dislikeCount": dislikes}, nil
	case store.TargetPost, store.TargetPodcast:
		upvotes, downvotes, err := s.store.ReconcileVoteCounters(ctx, targetKind, targetID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"upvoteCount": upvotes, "downvoteCount": downvotes}, nil
	}
	return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid reconcile target", nil)
}

func nullableKind(kind string) any {
	if kind == "" {
		return nil
	}
	return kind
}
