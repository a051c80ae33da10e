package app

import (
	"context"
	"net/http"
	"strings"

	"reflecto/api/internal/search"
	"reflecto/api/internal/store"
)

type SearchInput struct {
	Query  string
	Type   string
	Tags   []string
	Limit  int
	Offset int
}

// Search runs a tenant-scoped query over posts and podcasts.
func (s *Service) Search(ctx context.Context, session Session, input SearchInput) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(input.Query)
	if text == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "q is required", nil)
	}

	var filterType search.ResultType
	switch input.Type {
	case "":
	case string(search.ResultPost):
		filterType = search.ResultPost
	case string(search.ResultPodcast):
		filterType = search.ResultPodcast
	default:
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "type must be post or podcast", nil)
	}

	limit := input.Limit
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	resp := s.search.Search(search.Query{
		Text:       text,
		FilterType: filterType,
		OrgID:      orgID,
		Tags:       store.NormalizeTags(input.Tags),
		Limit:      limit,
		Offset:     offset,
	})

	items := make([]map[string]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		items = append(items, map[string]any{
			"type":       r.Type,
			"id":         r.ID,
			"title":      r.Title,
			"snippet":    r.Snippet,
			"authorName": r.AuthorName,
			"tags":       r.Tags,
		})
	}
	return map[string]any{
		"results": items,
		"total":   resp.Total,
		"query":   resp.Query,
	}, nil
}
