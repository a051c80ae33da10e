package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const postSelect = `
	SELECT p.id, p.org_id, p.author_id, p.title, p.body, p.content_type, COALESCE(p.tags::text, '[]'),
		p.anonymity, COALESCE(p.media_url, ''),
		COALESCE(p.feedback_persona, ''), COALESCE(p.feedback_body, ''), p.feedback_available,
		p.upvote_count, p.downvote_count,
		(SELECT COUNT(*) FROM post_likes pl WHERE pl.post_id = p.id) AS like_count,
		u.id, u.email, u.display_name, COALESCE(u.department, ''),
		p.created_at, p.updated_at
	FROM posts p
	JOIN users u ON u.id = p.author_id
`

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var item Post
	var tagsRaw string
	err := row.Scan(
		&item.ID,
		&item.OrgID,
		&item.AuthorID,
		&item.Title,
		&item.Body,
		&item.ContentType,
		&tagsRaw,
		&item.Anonymity,
		&item.MediaURL,
		&item.FeedbackPersona,
		&item.FeedbackBody,
		&item.FeedbackAvailable,
		&item.UpvoteCount,
		&item.DownvoteCount,
		&item.LikeCount,
		&item.Author.ID,
		&item.Author.Email,
		&item.Author.DisplayName,
		&item.Author.Department,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Post{}, err
	}
	_ = json.Unmarshal([]byte(tagsRaw), &item.Tags)
	return item, nil
}

// NormalizeTags lowercases and trims tags so matching is case-insensitive
// exact whole-tag comparison on both write and query paths.
func NormalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		normalized = append(normalized, tag)
	}
	return normalized
}

func (s *PostgresStore) InsertPost(ctx context.Context, item Post) error {
	tags, err := json.Marshal(NormalizeTags(item.Tags))
	if err != nil {
		return fmt.Errorf("marshal post tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (id, org_id, author_id, title, body, content_type, tags, anonymity, media_url, feedback_persona, feedback_body, feedback_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12)
	`, item.ID, item.OrgID, item.AuthorID, item.Title, item.Body, item.ContentType, string(tags), item.Anonymity, item.MediaURL, item.FeedbackPersona, item.FeedbackBody, item.FeedbackAvailable)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	row := s.db.QueryRowContext(ctx, postSelect+` WHERE p.id=$1`, postID)
	return scanPost(row)
}

func (s *PostgresStore) UpdatePostFeedback(ctx context.Context, postID, persona, body string, available bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET feedback_persona=NULLIF($2, ''), feedback_body=NULLIF($3, ''), feedback_available=$4, updated_at=NOW()
		WHERE id=$1
	`, postID, persona, body, available)
	if err != nil {
		return fmt.Errorf("update post feedback: %w", err)
	}
	return nil
}

// escapeLike escapes LIKE metacharacters in user input so free-text
// queries never act as patterns.
func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

// SearchPosts composes the tenant-scoped post query: free text against
// title and body, tags with AND semantics, optional content type, and
// vote-ranked ordering derived from the live vote set rather than the
// cached counters.
func (s *PostgresStore) SearchPosts(ctx context.Context, orgID string, filter SearchFilter) ([]Post, error) {
	where := []string{"p.org_id = $1"}
	args := []any{orgID}
	argN := 2

	if text := strings.TrimSpace(filter.Text); text != "" {
		where = append(where, fmt.Sprintf(`(p.title ILIKE '%%' || $%d || '%%' ESCAPE '\' OR p.body ILIKE '%%' || $%d || '%%' ESCAPE '\')`, argN, argN))
		args = append(args, escapeLike(text))
		argN++
	}
	if tags := NormalizeTags(filter.Tags); len(tags) > 0 {
		encoded, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tag filter: %w", err)
		}
		// jsonb containment is exact whole-tag matching; "urgent-ish"
		// never matches a filter for "urgent".
		where = append(where, fmt.Sprintf("p.tags @> $%d::jsonb", argN))
		args = append(args, string(encoded))
		argN++
	}
	if contentType := strings.TrimSpace(filter.ContentType); contentType != "" {
		where = append(where, fmt.Sprintf("p.content_type = $%d", argN))
		args = append(args, contentType)
		argN++
	}

	orderBy := "p.created_at DESC"
	joinVotes := ""
	switch filter.Sort {
	case SortOldest:
		orderBy = "p.created_at ASC"
	case SortMostUpvoted:
		joinVotes = `
			LEFT JOIN (
				SELECT target_id, COUNT(*) FILTER (WHERE kind='upvote') AS live_upvotes
				FROM votes WHERE target_kind='post'
				GROUP BY target_id
			) v ON v.target_id = p.id`
		orderBy = "COALESCE(v.live_upvotes, 0) DESC, p.created_at DESC"
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := postSelect + joinVotes + `
	WHERE ` + strings.Join(where, " AND ") + `
	ORDER BY ` + orderBy + fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		item, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return items, nil
}

const commentSelect = `
	SELECT c.id, c.post_id, c.org_id, c.author_id, c.body, c.anonymity, c.like_count, c.dislike_count,
		u.id, u.email, u.display_name, COALESCE(u.department, ''),
		c.created_at, c.updated_at
	FROM comments c
	JOIN users u ON u.id = c.author_id
`

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var item Comment
	err := row.Scan(
		&item.ID,
		&item.PostID,
		&item.OrgID,
		&item.AuthorID,
		&item.Body,
		&item.Anonymity,
		&item.LikeCount,
		&item.DislikeCount,
		&item.Author.ID,
		&item.Author.Email,
		&item.Author.DisplayName,
		&item.Author.Department,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, org_id, author_id, body, anonymity)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.PostID, item.OrgID, item.AuthorID, item.Body, item.Anonymity)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, commentSelect+` WHERE c.id=$1`, commentID)
	return scanComment(row)
}

func (s *PostgresStore) ListComments(ctx context.Context, postID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, commentSelect+` WHERE c.post_id=$1 ORDER BY c.created_at ASC`, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

const podcastSelect = `
	SELECT pc.id, pc.org_id, pc.author_id, pc.title, COALESCE(pc.description, ''), pc.audio_url,
		COALESCE(pc.tags::text, '[]'), pc.anonymity,
		COALESCE(pc.transcript, ''), COALESCE(pc.confidence, 0), COALESCE(pc.words::text, '[]'),
		COALESCE(pc.summary, ''), COALESCE(pc.heatmap::text, '[]'),
		pc.upvote_count, pc.downvote_count,
		u.id, u.email, u.display_name, COALESCE(u.department, ''),
		pc.created_at, pc.updated_at
	FROM podcasts pc
	JOIN users u ON u.id = pc.author_id
`

func scanPodcast(row interface{ Scan(...any) error }) (Podcast, error) {
	var item Podcast
	var tagsRaw string
	err := row.Scan(
		&item.ID,
		&item.OrgID,
		&item.AuthorID,
		&item.Title,
		&item.Description,
		&item.AudioURL,
		&tagsRaw,
		&item.Anonymity,
		&item.Transcript,
		&item.Confidence,
		&item.Words,
		&item.Summary,
		&item.Heatmap,
		&item.UpvoteCount,
		&item.DownvoteCount,
		&item.Author.ID,
		&item.Author.Email,
		&item.Author.DisplayName,
		&item.Author.Department,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Podcast{}, err
	}
	_ = json.Unmarshal([]byte(tagsRaw), &item.Tags)
	return item, nil
}

func (s *PostgresStore) InsertPodcast(ctx context.Context, item Podcast) error {
	tags, err := json.Marshal(NormalizeTags(item.Tags))
	if err != nil {
		return fmt.Errorf("marshal podcast tags: %w", err)
	}
	words := item.Words
	if words == "" {
		words = "[]"
	}
	heatmap := item.Heatmap
	if heatmap == "" {
		heatmap = "[]"
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO podcasts (id, org_id, author_id, title, description, audio_url, tags, anonymity, transcript, confidence, words, summary, heatmap)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7::jsonb, $8, NULLIF($9, ''), $10, $11::jsonb, NULLIF($12, ''), $13::jsonb)
	`, item.ID, item.OrgID, item.AuthorID, item.Title, item.Description, item.AudioURL, string(tags), item.Anonymity, item.Transcript, item.Confidence, words, item.Summary, heatmap)
	if err != nil {
		return fmt.Errorf("insert podcast: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPodcast(ctx context.Context, podcastID string) (Podcast, error) {
	row := s.db.QueryRowContext(ctx, podcastSelect+` WHERE pc.id=$1`, podcastID)
	return scanPodcast(row)
}

func (s *PostgresStore) UpdatePodcastTranscript(ctx context.Context, podcastID, transcript string, confidence float64, words, summary, heatmap string) error {
	if words == "" {
		words = "[]"
	}
	if heatmap == "" {
		heatmap = "[]"
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE podcasts
		SET transcript=NULLIF($2, ''), confidence=$3, words=$4::jsonb, summary=NULLIF($5, ''), heatmap=$6::jsonb, updated_at=NOW()
		WHERE id=$1
	`, podcastID, transcript, confidence, words, summary, heatmap)
	if err != nil {
		return fmt.Errorf("update podcast transcript: %w", err)
	}
	return nil
}

func (s *PostgresStore) SearchPodcasts(ctx context.Context, orgID string, filter SearchFilter) ([]Podcast, error) {
	where := []string{"pc.org_id = $1"}
	args := []any{orgID}
	argN := 2

	if text := strings.TrimSpace(filter.Text); text != "" {
		where = append(where, fmt.Sprintf(`(pc.title ILIKE '%%' || $%d || '%%' ESCAPE '\' OR COALESCE(pc.transcript, '') ILIKE '%%' || $%d || '%%' ESCAPE '\')`, argN, argN))
		args = append(args, escapeLike(text))
		argN++
	}
	if tags := NormalizeTags(filter.Tags); len(tags) > 0 {
		encoded, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tag filter: %w", err)
		}
		where = append(where, fmt.Sprintf("pc.tags @> $%d::jsonb", argN))
		args = append(args, string(encoded))
		argN++
	}

	orderBy := "pc.created_at DESC"
	joinVotes := ""
	switch filter.Sort {
	case SortOldest:
		orderBy = "pc.created_at ASC"
	case SortMostUpvoted:
		joinVotes = `
			LEFT JOIN (
				SELECT target_id, COUNT(*) FILTER (WHERE kind='upvote') AS live_upvotes
				FROM votes WHERE target_kind='podcast'
				GROUP BY target_id
			) v ON v.target_id = pc.id`
		orderBy = "COALESCE(v.live_upvotes, 0) DESC, pc.created_at DESC"
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := podcastSelect + joinVotes + `
	WHERE ` + strings.Join(where, " AND ") + `
	ORDER BY ` + orderBy + fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search podcasts: %w", err)
	}
	defer rows.Close()

	items := make([]Podcast, 0)
	for rows.Next() {
		item, err := scanPodcast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan podcast: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate podcasts: %w", err)
	}
	return items, nil
}
