package app

import (
	"context"
	"net/http"
	"time"

	"reflecto/api/internal/ai"
	"reflecto/api/internal/auth"
	"reflecto/api/internal/authpw"
	"reflecto/api/internal/config"
	"reflecto/api/internal/email"
	"reflecto/api/internal/media"
	"reflecto/api/internal/search"
	"reflecto/api/internal/store"
	"reflecto/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	OrgID        string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the storage surface the service layer depends on.
type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	GetOrganization(context.Context, string) (store.Organization, error)
	ListOrganizationMembers(context.Context, string) ([]store.User, error)

	InsertPost(context.Context, store.Post) error
	GetPost(context.Context, string) (store.Post, error)
	UpdatePostFeedback(context.Context, string, string, string, bool) error
	SearchPosts(context.Context, string, store.SearchFilter) ([]store.Post, error)
	InsertComment(context.Context, store.Comment) error
	GetComment(context.Context, string) (store.Comment, error)
	ListComments(context.Context, string) ([]store.Comment, error)
	InsertPodcast(context.Context, store.Podcast) error
	GetPodcast(context.Context, string) (store.Podcast, error)
	UpdatePodcastTranscript(context.Context, string, string, float64, string, string, string) error
	SearchPodcasts(context.Context, string, store.SearchFilter) ([]store.Podcast, error)

	GetCommentReaction(context.Context, string, string) (*store.Reaction, error)
	ApplyCommentReaction(context.Context, string, string, string, int, int) error
	ReconcileCommentCounters(context.Context, string) (int, int, error)
	GetVote(context.Context, string, string, string) (*store.Reaction, error)
	ApplyVote(context.Context, string, string, string, string, int, int) error
	ReconcileVoteCounters(context.Context, string, string) (int, int, error)
	TogglePostLike(context.Context, string, string) (bool, error)
	PostLikeCount(context.Context, string) (int, error)
	HasPostLike(context.Context, string, string) (bool, error)

	GetConversationByKey(context.Context, string) (store.Conversation, error)
	GetConversation(context.Context, string) (store.Conversation, error)
	InsertConversation(context.Context, store.Conversation) error
	ListConversations(context.Context, string, string) ([]store.Conversation, error)
	InsertMessage(context.Context, store.Message) error
	ListMessages(context.Context, string) ([]store.Message, error)
	MarkMessagesRead(context.Context, string, string) error
	IncrementUnread(context.Context, string) error
	ResetUnread(context.Context, string) error
	UnreadCount(context.Context, string) (int, error)

	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Ping(ctx context.Context) error
}

// refreshSessionStore holds refresh tokens; backed by Redis when
// configured, otherwise by Postgres.
type refreshSessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshSessionStore
	search   *search.Service

	authpw      *authpw.Service
	email       *email.Service
	media       *media.Store
	feedback    *ai.FeedbackClient
	transcriber *ai.TranscribeClient
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		search:   searchService,
	}
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions refreshSessionStore, searchService *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		search:   searchService,
	}
}

func (s *Service) SetAuthPassword(svc *authpw.Service) { s.authpw = svc }
func (s *Service) SetEmail(svc *email.Service)         { s.email = svc }
func (s *Service) SetMedia(m *media.Store)             { s.media = m }

func (s *Service) SetAI(feedback *ai.FeedbackClient, transcriber *ai.TranscribeClient) {
	s.feedback = feedback
	s.transcriber = transcriber
}

// AuthPasswordService exposes the email/password flow to the HTTP layer.
func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) ServiceToken() string {
	return s.cfg.ServiceToken
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CreateSession issues tokens for an already-authenticated user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	cached, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The session store only guarantees the user id; re-read the user so
	// rotated tokens always carry the current org membership.
	user, err := s.store.GetUserByID(ctx, cached.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Org:  user.OrgID,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		OrgID:        user.OrgID,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		OrgID:     user.OrgID,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// requireMember is the tenant boundary guard: every content operation
// starts here. Users without an organization cannot touch content.
func (s *Service) requireMember(session Session) (string, error) {
	if session.OrgID == "" {
		return "", domainError(http.StatusForbidden, "NOT_A_MEMBER", "You must belong to an organization", nil)
	}
	return session.OrgID, nil
}

// guardTenant rejects access to content owned by another organization.
// Always a 403, never a 404: existence of out-of-tenant resources is
// not concealed, but nothing about them is revealed either.
func guardTenant(callerOrg, itemOrg string) error {
	if itemOrg != callerOrg {
		return domainError(http.StatusForbidden, "CROSS_TENANT", "Forbidden", nil)
	}
	return nil
}

// presentAuthor is the visibility filter. Anonymity level 3 collapses
// the author to an id/email pair; display name and department must not
// leak on any path.
func presentAuthor(author store.User, anonymity int) map[string]any {
	if anonymity == store.AnonymityAnonymous {
		return map[string]any{
			"id":    author.ID,
			"email": author.Email,
		}
	}
	return map[string]any{
		"id":          author.ID,
		"email":       author.Email,
		"displayName": author.DisplayName,
		"department":  author.Department,
	}
}

func (s *Service) Members(ctx context.Context, session Session) ([]map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListOrganizationMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, member := range members {
		items = append(items, map[string]any{
			"id":          member.ID,
			"email":       member.Email,
			"displayName": member.DisplayName,
			"department":  member.Department,
		})
	}
	return items, nil
}
