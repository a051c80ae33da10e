package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultPost    ResultType = "post"
	ResultPodcast ResultType = "podcast"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	OrgID      string     `json:"orgId"`
	AuthorName string     `json:"authorName,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
}

// Query describes a search request. OrgID is mandatory for callers:
// every query is scoped to the requesting user's organization.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	OrgID      string
	Tags       []string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexPost(p PostRecord) error
	IndexPodcast(p PodcastRecord) error
}

// PostRecord is the data we index for a post. Anonymous posts are
// indexed with AuthorName already blanked so the index never holds an
// identity the API would refuse to return.
type PostRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	OrgID       string   `json:"orgId"`
	AuthorName  string   `json:"authorName"`
	ContentType string   `json:"contentType"`
	Tags        []string `json:"tags"`
}

// PodcastRecord is the data we index for a podcast episode.
type PodcastRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Transcript  string   `json:"transcript"`
	OrgID       string   `json:"orgId"`
	AuthorName  string   `json:"authorName"`
	Tags        []string `json:"tags"`
}
