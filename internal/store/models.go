package store

import "time"

// Anonymity levels attached to content at creation time.
const (
	AnonymityPublic    = 1
	AnonymityTeam      = 2
	AnonymityAnonymous = 3
)

type Organization struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

type User struct {
	ID                    string
	Email                 string
	DisplayName           string
	Department            string
	PasswordHash          string
	OrgID                 string
	DefaultAnonymity      int
	VisibilityPref        string
	UnreadCount           int
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Post struct {
	ID          string
	OrgID       string
	AuthorID    string
	Title       string
	Body        string
	ContentType string
	Tags        []string
	Anonymity   int
	MediaURL    string

	// AI persona feedback, empty when the generator was unavailable.
	FeedbackPersona   string
	FeedbackBody      string
	FeedbackAvailable bool

	UpvoteCount   int
	DownvoteCount int
	LikeCount     int

	Author    User
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Comment struct {
	ID           string
	PostID       string
	OrgID        string
	AuthorID     string
	Body         string
	Anonymity    int
	LikeCount    int
	DislikeCount int
	Author       User
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Podcast struct {
	ID          string
	OrgID       string
	AuthorID    string
	Title       string
	Description string
	AudioURL    string
	Tags        []string
	Anonymity   int

	Transcript string
	Confidence float64
	Words      string
	Summary    string
	Heatmap    string

	UpvoteCount   int
	DownvoteCount int

	Author    User
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Reaction is one user's current reaction to a target. At most one row
// exists per (user, target); the row is mutated in place on switch and
// deleted on removal.
type Reaction struct {
	UserID    string
	Kind      string
	UpdatedAt time.Time
}

type Conversation struct {
	ID           string
	OrgID        string
	Key          string
	ParticipantA string
	ParticipantB string
	CreatedAt    time.Time
}

type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	IsRead         bool
	CreatedAt      time.Time
}

// SearchFilter is the tenant-scoped query composer input. Tags combine
// with AND semantics; Text matches title and body case-insensitively.
type SearchFilter struct {
	Text        string
	Tags        []string
	ContentType string
	Sort        string
	Limit       int
	Offset      int
}

const (
	SortNewest      = "newest"
	SortOldest      = "oldest"
	SortMostUpvoted = "mostUpvoted"
)

// Vote target kinds.
const (
	TargetPost    = "post"
	TargetPodcast = "podcast"
)
