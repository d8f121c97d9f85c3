package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/tbourn/go-post-scheduler/internal/config"
	"github.com/tbourn/go-post-scheduler/internal/domain"
)

const (
	ugcPostsPath    = "/v2/ugcPosts"
	restliVersion   = "2.0.0"
	maxErrorSnippet = 512
)

// StatusError is returned for non-2xx responses from the LinkedIn API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("linkedin: status %d", e.Code)
	}
	return fmt.Sprintf("linkedin: status %d: %s", e.Code, e.Body)
}

// ErrNoExternalID means LinkedIn accepted the post but did not return its id.
var ErrNoExternalID = errors.New("linkedin: response carried no post id")

// LinkedIn publishes posts through the UGC Posts API on behalf of a single
// author. Calls are paced client-side by a token bucket.
type LinkedIn struct {
	baseURL string
	token   string
	author  string

	http    *http.Client
	limiter *rate.Limiter
	preview *PreviewFetcher
}

// NewLinkedIn builds a client. A nil httpClient gets one with cfg.Timeout.
func NewLinkedIn(cfg config.LinkedInConfig, httpClient *http.Client) *LinkedIn {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	l := &LinkedIn{
		baseURL: strings.TrimRight(cfg.APIBase, "/"),
		token:   cfg.AccessToken,
		author:  cfg.AuthorURN,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), 1),
	}
	if cfg.LinkPreview {
		l.preview = NewPreviewFetcher(httpClient)
	}
	return l
}

type ugcText struct {
	Text string `json:"text"`
}

type ugcMedia struct {
	Status      string   `json:"status"`
	OriginalURL string   `json:"originalUrl"`
	Title       *ugcText `json:"title,omitempty"`
	Description *ugcText `json:"description,omitempty"`
}

type ugcShareContent struct {
	ShareCommentary    ugcText    `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
	Media              []ugcMedia `json:"media,omitempty"`
}

type ugcPost struct {
	Author          string                     `json:"author"`
	LifecycleState  string                     `json:"lifecycleState"`
	SpecificContent map[string]ugcShareContent `json:"specificContent"`
	Visibility      map[string]string          `json:"visibility"`
}

// Publish creates the post and returns LinkedIn's id for it.
func (l *LinkedIn) Publish(ctx context.Context, post domain.ScheduledPost) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(l.buildPayload(ctx, post))
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+ugcPostsPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+l.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)

	resp, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("linkedin: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(raw))
		if len(snippet) > maxErrorSnippet {
			snippet = snippet[:maxErrorSnippet]
		}
		return "", &StatusError{Code: resp.StatusCode, Body: snippet}
	}

	if id := strings.TrimSpace(resp.Header.Get("X-RestLi-Id")); id != "" {
		return id, nil
	}
	var out struct {
		ID string `json:"id"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &out) == nil && out.ID != "" {
		return out.ID, nil
	}
	return "", ErrNoExternalID
}

func (l *LinkedIn) buildPayload(ctx context.Context, post domain.ScheduledPost) ugcPost {
	share := ugcShareContent{
		ShareCommentary:    ugcText{Text: post.Content},
		ShareMediaCategory: "NONE",
	}
	if post.LinkURL != nil && *post.LinkURL != "" {
		media := ugcMedia{Status: "READY", OriginalURL: *post.LinkURL}
		// Preview metadata is best effort; LinkedIn scrapes the page itself otherwise.
		if l.preview != nil {
			if pv, err := l.preview.Fetch(ctx, *post.LinkURL); err == nil {
				if pv.Title != "" {
					media.Title = &ugcText{Text: pv.Title}
				}
				if pv.Description != "" {
					media.Description = &ugcText{Text: pv.Description}
				}
			}
		}
		share.ShareMediaCategory = "ARTICLE"
		share.Media = []ugcMedia{media}
	}

	vis := post.Visibility
	if vis == "" {
		vis = domain.VisibilityPublic
	}
	return ugcPost{
		Author:         l.author,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]ugcShareContent{
			"com.linkedin.ugc.ShareContent": share,
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": string(vis),
		},
	}
}
