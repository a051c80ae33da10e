package app

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"

	"reflecto/api/internal/ai"
	"reflecto/api/internal/search"
	"reflecto/api/internal/store"
	"reflecto/api/internal/util"
)

type CreatePostInput struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	ContentType string   `json:"contentType"`
	Tags        []string `json:"tags"`
	Anonymity   int      `json:"anonymity"`
	MediaURL    string   `json:"mediaUrl"`
}

type CreateCommentInput struct {
	Body      string `json:"body"`
	Anonymity int    `json:"anonymity"`
}

type CreatePodcastInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	AudioURL    string   `json:"audioUrl"`
	Tags        []string `json:"tags"`
	Anonymity   int      `json:"anonymity"`
}

func (s *Service) CreatePost(ctx context.Context, session Session, input CreatePostInput) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}

	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "body is required", nil)
	}
	contentType := strings.TrimSpace(input.ContentType)
	if contentType == "" {
		contentType = "text"
	}
	anonymity, err := s.resolveAnonymity(ctx, session.UserID, input.Anonymity)
	if err != nil {
		return nil, err
	}

	post := store.Post{
		ID:          util.NewID("post"),
		OrgID:       orgID,
		AuthorID:    session.UserID,
		Title:       strings.TrimSpace(input.Title),
		Body:        body,
		ContentType: contentType,
		Tags:        store.NormalizeTags(input.Tags),
		Anonymity:   anonymity,
		MediaURL:    strings.TrimSpace(input.MediaURL),
	}
	if err := s.store.InsertPost(ctx, post); err != nil {
		return nil, err
	}

	if s.feedback.Enabled() {
		s.generateFeedback(ctx, post.ID, post.Title, post.Body)
	}

	stored, err := s.store.GetPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}

	s.indexPost(stored)
	return s.presentPost(ctx, stored, session.UserID)
}

// generateFeedback asks the persona sidecar for a reaction and persists
// the result. An all-empty response means the generator produced
// nothing usable; the post stays marked unavailable so the client can
// fall back locally.
func (s *Service) generateFeedback(ctx context.Context, postID, title, body string) {
	fb, err := s.feedback.Generate(ctx, title, body)
	if err != nil {
		log.Printf("feedback: generate for %s: %v", postID, err)
		return
	}
	if fb.IsEmpty() {
		return
	}
	if err := s.store.UpdatePostFeedback(ctx, postID, fb.Persona, fb.Body, true); err != nil {
		log.Printf("feedback: persist for %s: %v", postID, err)
	}
}

func (s *Service) GetPost(ctx context.Context, session Session, postID string) (map[string]any, error) {
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
	return s.presentPost(ctx, post, session.UserID)
}

func (s *Service) ListPosts(ctx context.Context, session Session, filter store.SearchFilter) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	if err := validateSort(filter.Sort); err != nil {
		return nil, err
	}
	posts, err := s.store.SearchPosts(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(posts))
	for _, post := range posts {
		items = append(items, presentPostSummary(post))
	}
	return map[string]any{"posts": items}, nil
}

func validateSort(sort string) error {
	switch sort {
	case "", store.SortNewest, store.SortOldest, store.SortMostUpvoted:
		return nil
	}
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "sortBy must be newest, oldest, or mostUpvoted", nil)
}

func (s *Service) resolveAnonymity(ctx context.Context, userID string, requested int) (int, error) {
	if requested == 0 {
		user, err := s.store.GetUserByID(ctx, userID)
		if err != nil {
			return 0, err
		}
		if user.DefaultAnonymity == 0 {
			return store.AnonymityPublic, nil
		}
		return user.DefaultAnonymity, nil
	}
	if requested < store.AnonymityPublic || requested > store.AnonymityAnonymous {
		return 0, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "anonymity must be between 1 and 3", nil)
	}
	return requested, nil
}

func (s *Service) presentPost(ctx context.Context, post store.Post, viewerID string) (map[string]any, error) {
	item := presentPostSummary(post)

	vote, err := s.store.GetVote(ctx, store.TargetPost, post.ID, viewerID)
	if err != nil {
		return nil, err
	}
	if vote != nil {
		item["userReaction"] = vote.Kind
	} else {
		item["userReaction"] = nil
	}
	liked, err := s.store.HasPostLike(ctx, post.ID, viewerID)
	if err != nil {
		return nil, err
	}
	item["liked"] = liked
	return item, nil
}

func presentPostSummary(post store.Post) map[string]any {
	item := map[string]any{
		"id":            post.ID,
		"title":         post.Title,
		"body":          post.Body,
		"contentType":   post.ContentType,
		"tags":          post.Tags,
		"anonymity":     post.Anonymity,
		"author":        presentAuthor(post.Author, post.Anonymity),
		"upvoteCount":   post.UpvoteCount,
		"downvoteCount": post.DownvoteCount,
		"likeCount":     post.LikeCount,
		"createdAt":     post.CreatedAt,
	}
	if post.MediaURL != "" {
		item["mediaUrl"] = post.MediaURL
	}
	item["feedback"] = map[string]any{
		"available": post.FeedbackAvailable,
		"persona":   post.FeedbackPersona,
		"body":      post.FeedbackBody,
	}
	return item
}

func (s *Service) CreateComment(ctx context.Context, session Session, postID string, input CreateCommentInput) (map[string]any, error) {
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

	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "body is required", nil)
	}
	anonymity, err := s.resolveAnonymity(ctx, session.UserID, input.Anonymity)
	if err != nil {
		return nil, err
	}

	comment := store.Comment{
		ID:        util.NewID("cmt"),
		PostID:    postID,
		OrgID:     orgID,
		AuthorID:  session.UserID,
		Body:      body,
		Anonymity: anonymity,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}

	if post.AuthorID != session.UserID {
		if err := s.store.IncrementUnread(ctx, post.AuthorID); err != nil {
			log.Printf("activity: increment for %s: %v", post.AuthorID, err)
		}
	}

	stored, err := s.store.GetComment(ctx, comment.ID)
	if err != nil {
		return nil, err
	}
	return presentComment(stored), nil
}

func (s *Service) ListComments(ctx context.Context, session Session, postID string) (map[string]any, error) {
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
	comments, err := s.store.ListComments(ctx, postID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		items = append(items, presentComment(comment))
	}
	return map[string]any{"comments": items}, nil
}

func presentComment(comment store.Comment) map[string]any {
	return map[string]any{
		"id":           comment.ID,
		"postId":       comment.PostID,
		"body":         comment.Body,
		"anonymity":    comment.Anonymity,
		"author":       presentAuthor(comment.Author, comment.Anonymity),
		"likeCount":    comment.LikeCount,
		"dislikeCount": comment.DislikeCount,
		"createdAt":    comment.CreatedAt,
	}
}

func (s *Service) CreatePodcast(ctx context.Context, session Session, input CreatePodcastInput) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	audioURL := strings.TrimSpace(input.AudioURL)
	if title == "" || audioURL == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title and audioUrl are required", nil)
	}
	anonymity, err := s.resolveAnonymity(ctx, session.UserID, input.Anonymity)
	if err != nil {
		return nil, err
	}

	podcast := store.Podcast{
		ID:          util.NewID("pod"),
		OrgID:       orgID,
		AuthorID:    session.UserID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		AudioURL:    audioURL,
		Tags:        store.NormalizeTags(input.Tags),
		Anonymity:   anonymity,
	}
	if err := s.store.InsertPodcast(ctx, podcast); err != nil {
		return nil, err
	}

	if s.transcriber.Enabled() {
		s.transcribePodcast(ctx, podcast.ID, audioURL)
	}

	stored, err := s.store.GetPodcast(ctx, podcast.ID)
	if err != nil {
		return nil, err
	}
	s.indexPodcast(stored)
	return s.presentPodcast(ctx, stored, session.UserID)
}

// transcribePodcast runs the sidecar and persists either the transcript
// or the failure marker. The marker keeps re-transcription open.
func (s *Service) transcribePodcast(ctx context.Context, podcastID, audioURL string) {
	transcript, err := s.transcriber.Transcribe(ctx, audioURL)
	if err != nil {
		log.Printf("transcribe: %s: %v", podcastID, err)
		if err := s.store.UpdatePodcastTranscript(ctx, podcastID, ai.TranscriptFailed, 0, "[]", "", "[]"); err != nil {
			log.Printf("transcribe: persist marker for %s: %v", podcastID, err)
		}
		return
	}
	words := transcript.Words
	if strings.TrimSpace(words) == "" {
		words = "[]"
	}
	heatmap := transcript.Heatmap
	if strings.TrimSpace(heatmap) == "" {
		heatmap = "[]"
	}
	if err := s.store.UpdatePodcastTranscript(ctx, podcastID, transcript.Text, transcript.Confidence, words, transcript.Summary, heatmap); err != nil {
		log.Printf("transcribe: persist for %s: %v", podcastID, err)
	}
}

func (s *Service) GetPodcast(ctx context.Context, session Session, podcastID string) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	podcast, err := s.store.GetPodcast(ctx, podcastID)
	if err != nil {
		return nil, err
	}
	if err := guardTenant(orgID, podcast.OrgID); err != nil {
		return nil, err
	}
	return s.presentPodcast(ctx, podcast, session.UserID)
}

func (s *Service) ListPodcasts(ctx context.Context, session Session, filter store.SearchFilter) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	if err := validateSort(filter.Sort); err != nil {
		return nil, err
	}
	podcasts, err := s.store.SearchPodcasts(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(podcasts))
	for _, podcast := range podcasts {
		items = append(items, presentPodcastSummary(podcast))
	}
	return map[string]any{"podcasts": items}, nil
}

// RetranscribePodcast re-runs transcription for the author, but only
// when the stored transcript is absent or the failure marker.
func (s *Service) RetranscribePodcast(ctx context.Context, session Session, podcastID string) (map[string]any, error) {
	orgID, err := s.requireMember(session)
	if err != nil {
		return nil, err
	}
	podcast, err := s.store.GetPodcast(ctx, podcastID)
	if err != nil {
		return nil, err
	}
	if err := guardTenant(orgID, podcast.OrgID); err != nil {
		return nil, err
	}
	if podcast.AuthorID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only the author can request transcription", nil)
	}
	if !s.transcriber.Enabled() {
		return nil, domainError(http.StatusServiceUnavailable, "TRANSCRIBE_UNAVAILABLE", "Transcription service not configured", nil)
	}
	if !ai.CanRetranscribe(podcast.Transcript) {
		return nil, domainError(http.StatusBadRequest, "TRANSCRIPT_EXISTS", "Podcast already has a transcript", nil)
	}

	s.transcribePodcast(ctx, podcast.ID, podcast.AudioURL)

	stored, err := s.store.GetPodcast(ctx, podcast.ID)
	if err != nil {
		return nil, err
	}
	s.indexPodcast(stored)
	return s.presentPodcast(ctx, stored, session.UserID)
}

func (s *Service) presentPodcast(ctx context.Context, podcast store.Podcast, viewerID string) (map[string]any, error) {
	item := presentPodcastSummary(podcast)

	vote, err := s.store.GetVote(ctx, store.TargetPodcast, podcast.ID, viewerID)
	if err != nil {
		return nil, err
	}
	if vote != nil {
		item["userReaction"] = vote.Kind
	} else {
		item["userReaction"] = nil
	}
	return item, nil
}

func presentPodcastSummary(podcast store.Podcast) map[string]any {
	return map[string]any{
		"id":            podcast.ID,
		"title":         podcast.Title,
		"description":   podcast.Description,
		"audioUrl":      podcast.AudioURL,
		"tags":          podcast.Tags,
		"anonymity":     podcast.Anonymity,
		"author":        presentAuthor(podcast.Author, podcast.Anonymity),
		"transcript":    podcast.Transcript,
		"confidence":    podcast.Confidence,
		"summary":       podcast.Summary,
		"upvoteCount":   podcast.UpvoteCount,
		"downvoteCount": podcast.DownvoteCount,
		"createdAt":     podcast.CreatedAt,
	}
}

// UploadMedia streams a file into the blob store and returns the
// relative URL to attach to content.
func (s *Service) UploadMedia(ctx context.Context, session Session, filename, contentType string, size int64, body io.Reader) (map[string]any, error) {
	if _, err := s.requireMember(session); err != nil {
		return nil, err
	}
	if s.media == nil {
		return nil, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage not configured", nil)
	}
	url, err := s.media.Upload(ctx, filename, contentType, size, body)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url}, nil
}

// FetchMedia streams a stored object back to the client.
func (s *Service) FetchMedia(ctx context.Context, object string) (io.ReadCloser, error) {
	if s.media == nil {
		return nil, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage not configured", nil)
	}
	return s.media.Fetch(ctx, object)
}

func (s *Service) indexPost(post store.Post) {
	if s.search == nil {
		return
	}
	authorName := post.Author.DisplayName
	if post.Anonymity == store.AnonymityAnonymous {
		authorName = ""
	}
	s.search.IndexPost(search.PostRecord{
		ID:          post.ID,
		Title:       post.Title,
		Body:        post.Body,
		OrgID:       post.OrgID,
		AuthorName:  authorName,
		ContentType: post.ContentType,
		Tags:        post.Tags,
	})
}

func (s *Service) indexPodcast(podcast store.Podcast) {
	if s.search == nil {
		return
	}
	authorName := podcast.Author.DisplayName
	if podcast.Anonymity == store.AnonymityAnonymous {
		authorName = ""
	}
	transcript := podcast.Transcript
	if transcript == ai.TranscriptFailed {
		transcript = ""
	}
	s.search.IndexPodcast(search.PodcastRecord{
		ID:          podcast.ID,
		Title:       podcast.Title,
		Description: podcast.Description,
		Transcript:  transcript,
		OrgID:       podcast.OrgID,
		AuthorName:  authorName,
		Tags:        podcast.Tags,
	})
}
