package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across posts and podcasts using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if q.OrgID == "" {
		return nil, 0, fmt.Errorf("search query missing org scope")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.OrgID}
	argN := 3

	tagsFilter := ""
	if len(q.Tags) > 0 {
		lowered := make([]string, len(q.Tags))
		for i, tag := range q.Tags {
			lowered[i] = strings.ToLower(tag)
		}
		encoded, err := json.Marshal(lowered)
		if err != nil {
			return nil, 0, fmt.Errorf("encode tag filter: %w", err)
		}
		tagsFilter = fmt.Sprintf(" AND tags @> $%d::jsonb", argN)
		args = append(args, string(encoded))
		argN++
	}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultPost {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'post'::text AS type, p.id, p.title,
				ts_headline('english', coalesce(p.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.org_id,
				CASE WHEN p.anonymity = 3 THEN '' ELSE u.display_name END AS author_name,
				p.tags::text AS tags,
				ts_rank(p.fts, %s) AS rank
			FROM posts p
			JOIN users u ON u.id = p.author_id
			WHERE p.fts @@ %s AND p.org_id = $2%s`, tsQuery, tsQuery, tsQuery, tagsFilter))
	}

	if q.FilterType == "" || q.FilterType == ResultPodcast {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'podcast'::text AS type, p.id, p.title,
				ts_headline('english', coalesce(p.transcript, coalesce(p.description, '')), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.org_id,
				CASE WHEN p.anonymity = 3 THEN '' ELSE u.display_name END AS author_name,
				p.tags::text AS tags,
				ts_rank(p.fts, %s) AS rank
			FROM podcasts p
			JOIN users u ON u.id = p.author_id
			WHERE p.fts @@ %s AND p.org_id = $2%s`, tsQuery, tsQuery, tsQuery, tagsFilter))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, org_id, author_name, tags
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ, tags string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.OrgID, &r.AuthorName, &tags); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		if tags != "" {
			if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
				return nil, 0, fmt.Errorf("pgfts decode tags: %w", err)
			}
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
// Anonymous content comes back with author_name already blanked.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PostRecord, []PodcastRecord, error) {
	postRows, err := p.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.body, p.org_id,
			CASE WHEN p.anonymity = 3 THEN '' ELSE u.display_name END,
			p.content_type, p.tags::text
		FROM posts p
		JOIN users u ON u.id = p.author_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load posts: %w", err)
	}
	defer postRows.Close()

	posts := make([]PostRecord, 0)
	for postRows.Next() {
		var rec PostRecord
		var tags string
		if err := postRows.Scan(&rec.ID, &rec.Title, &rec.Body, &rec.OrgID, &rec.AuthorName, &rec.ContentType, &tags); err != nil {
			return nil, nil, fmt.Errorf("scan post: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
			return nil, nil, fmt.Errorf("decode post tags: %w", err)
		}
		posts = append(posts, rec)
	}
	if err := postRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate posts: %w", err)
	}

	podcastRows, err := p.db.QueryContext(ctx, `
		SELECT p.id, p.title, coalesce(p.description, ''), coalesce(p.transcript, ''), p.org_id,
			CASE WHEN p.anonymity = 3 THEN '' ELSE u.display_name END,
			p.tags::text
		FROM podcasts p
		JOIN users u ON u.id = p.author_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load podcasts: %w", err)
	}
	defer podcastRows.Close()

	podcasts := make([]PodcastRecord, 0)
	for podcastRows.Next() {
		var rec PodcastRecord
		var tags string
		if err := podcastRows.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.Transcript, &rec.OrgID, &rec.AuthorName, &tags); err != nil {
			return nil, nil, fmt.Errorf("scan podcast: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
			return nil, nil, fmt.Errorf("decode podcast tags: %w", err)
		}
		podcasts = append(podcasts, rec)
	}
	if err := podcastRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate podcasts: %w", err)
	}

	return posts, podcasts, nil
}
