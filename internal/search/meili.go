package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxPosts    = "reflecto_posts"
	idxPodcasts = "reflecto_podcasts"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// Returns nil if the initial connection fails (caller should proceed without it).
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	// Initial health check
	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxPosts,
			primaryKey: "id",
			filterable: []string{"orgId", "tags", "contentType"},
			searchable: []string{"title", "body"},
		},
		{
			uid:        idxPodcasts,
			primaryKey: "id",
			filterable: []string{"orgId", "tags"},
			searchable: []string{"title", "description", "transcript"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries both indexes (or a filtered subset) and merges results.
// Every sub-query carries the orgId filter, so results never cross
// organizations.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if q.OrgID == "" {
		return nil, 0, fmt.Errorf("search query missing org scope")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxPosts, ResultPost},
		{idxPodcasts, ResultPodcast},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}

		filters := []string{fmt.Sprintf("orgId = %q", q.OrgID)}
		for _, tag := range q.Tags {
			filters = append(filters, fmt.Sprintf("tags = %q", strings.ToLower(tag)))
		}
		sr.Filter = filters
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxPosts:
		return ResultPost
	case idxPodcasts:
		return ResultPodcast
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.OrgID = decodeString(hit, "orgId")
	r.AuthorName = decodeString(hit, "authorName")
	r.Tags = decodeStrings(hit, "tags")
	r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))

	switch rtyp {
	case ResultPost:
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "body"), decodeString(hit, "body"))
	case ResultPodcast:
		r.Snippet = firstNonBlank(
			decodeFormattedString(hit, "transcript"),
			decodeFormattedString(hit, "description"),
			decodeString(hit, "description"),
		)
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeStrings(hit meili.Hit, key string) []string {
	raw, ok := hit[key]
	if !ok {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err == nil {
		return values
	}
	return nil
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexPost adds or updates a post in the search index.
func (m *Meili) IndexPost(p PostRecord) error {
	_, err := m.client.Index(idxPosts).AddDocuments([]PostRecord{p}, nil)
	return err
}

// IndexPodcast adds or updates a podcast in the search index.
func (m *Meili) IndexPodcast(p PodcastRecord) error {
	_, err := m.client.Index(idxPodcasts).AddDocuments([]PodcastRecord{p}, nil)
	return err
}

// IndexPosts bulk-indexes posts.
func (m *Meili) IndexPosts(posts []PostRecord) error {
	if len(posts) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPosts).AddDocuments(posts, nil)
	return err
}

// IndexPodcasts bulk-indexes podcasts.
func (m *Meili) IndexPodcasts(podcasts []PodcastRecord) error {
	if len(podcasts) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPodcasts).AddDocuments(podcasts, nil)
	return err
}
