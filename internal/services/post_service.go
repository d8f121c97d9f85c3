// Package services – PostService
//
// This file implements the tool-facing operations over the record store:
// schedule, list, get and cancel, plus reschedule, retry, delete and stats.
// Each operation validates its input, delegates to the store and maps the
// store's "no row matched" result to a named service error. The service
// holds no state of its own.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-post-scheduler/internal/config"
	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/repo"
	"github.com/tbourn/go-post-scheduler/internal/utils"
)

// PostStore is the persistence contract required by PostService.
type PostStore interface {
	Create(ctx context.Context, in repo.NewPost) (*domain.ScheduledPost, error)
	Get(ctx context.Context, id string) (*domain.ScheduledPost, error)
	List(ctx context.Context, status domain.PostStatus, limit int) ([]domain.ScheduledPost, error)
	Cancel(ctx context.Context, id string) (*domain.ScheduledPost, error)
	Reschedule(ctx context.Context, id string, at time.Time) (*domain.ScheduledPost, error)
	ResetCycle(ctx context.Context, id string) (*domain.ScheduledPost, error)
	Delete(ctx context.Context, id string) (bool, error)
	CountByStatus(ctx context.Context) (repo.StatusCounts, error)
	NextDue(ctx context.Context) (*domain.ScheduledPost, error)
}

// PostService implements the scheduled-post operations.
type PostService struct {
	Store PostStore

	// MaxContentRunes caps content length in runes after NFC normalization.
	MaxContentRunes int
	// ListDefaultLimit applies when a list request has no limit.
	ListDefaultLimit int
	// ListMaxLimit clamps list requests.
	ListMaxLimit int
	// MaxRetries is the daemon's retry ceiling, used in summaries.
	MaxRetries int

	// Now is the clock used for future-time validation and summaries.
	Now func() time.Time
}

// NewPostService constructs a PostService from configuration.
func NewPostService(store PostStore, posts config.PostsConfig, maxRetries int) *PostService {
	return &PostService{
		Store:            store,
		MaxContentRunes:  posts.MaxRunes,
		ListDefaultLimit: posts.ListDefaultLimit,
		ListMaxLimit:     posts.ListMaxLimit,
		MaxRetries:       maxRetries,
		Now:              time.Now,
	}
}

// ScheduleInput is the argument of Schedule.
type ScheduleInput struct {
	Content       string
	ScheduledTime time.Time
	LinkURL       string
	Visibility    string
}

// PostDetails is a record plus its human-readable status summary.
type PostDetails struct {
	Post    domain.ScheduledPost
	Summary string
}

// Stats aggregates the queue state.
type Stats struct {
	Counts  repo.StatusCounts
	NextDue *time.Time
}

func (s *PostService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Schedule validates in and creates a pending post.
func (s *PostService) Schedule(ctx context.Context, in ScheduleInput) (*domain.ScheduledPost, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Schedule",
		trace.WithAttributes(attribute.String("post.scheduled_time", in.ScheduledTime.UTC().Format(time.RFC3339))),
	)
	defer span.End()

	content, err := s.validateContent(in.Content)
	if err != nil {
		return nil, err
	}
	if err := s.validateFuture(in.ScheduledTime); err != nil {
		return nil, err
	}
	vis, ok := domain.ParseVisibility(in.Visibility)
	if !ok {
		return nil, &ValidationError{Field: "visibility", Err: ErrInvalidVisibility}
	}
	link, err := validateLinkURL(in.LinkURL)
	if err != nil {
		return nil, err
	}

	p, err := s.Store.Create(ctx, repo.NewPost{
		Content:       content,
		ScheduledTime: in.ScheduledTime,
		LinkURL:       link,
		Visibility:    vis,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("post.id", p.ID))
	return p, nil
}

// List returns posts filtered by status ("" for all), oldest scheduled first.
// limit <= 0 uses the default; larger limits are clamped.
func (s *PostService) List(ctx context.Context, status string, limit int) ([]domain.ScheduledPost, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(attribute.String("filter.status", status), attribute.Int("limit", limit)),
	)
	defer span.End()

	st, ok := domain.ParseStatus(status)
	if !ok {
		return nil, &ValidationError{Field: "status", Err: ErrInvalidStatus}
	}
	return s.Store.List(ctx, st, s.clampLimit(limit))
}

// Get returns a post and its status summary.
func (s *PostService) Get(ctx context.Context, id string) (*PostDetails, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("post.id", id)))
	defer span.End()

	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PostDetails{Post: *p, Summary: Summarize(*p, s.now(), s.MaxRetries)}, nil
}

// Cancel moves a pending post to cancelled.
func (s *PostService) Cancel(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Cancel", trace.WithAttributes(attribute.String("post.id", id)))
	defer span.End()

	p, err := s.Store.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	return nil, s.explain(ctx, id, ErrNotCancellable)
}

// Reschedule moves the due time of a pending post. The new time must be in
// the future.
func (s *PostService) Reschedule(ctx context.Context, id string, at time.Time) (*domain.ScheduledPost, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Reschedule", trace.WithAttributes(attribute.String("post.id", id)))
	defer span.End()

	if err := s.validateFuture(at); err != nil {
		return nil, err
	}
	p, err := s.Store.Reschedule(ctx, id, at)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	return nil, s.explain(ctx, id, ErrNotReschedulable)
}

// Retry starts a fresh retry cycle for a failed post: it becomes pending
// with a zero retry count and no recorded error.
func (s *PostService) Retry(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Retry", trace.WithAttributes(attribute.String("post.id", id)))
	defer span.End()

	p, err := s.Store.ResetCycle(ctx, id)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	return nil, s.explain(ctx, id, ErrNotRetryable)
}

// Delete removes a post. Unknown ids yield ErrPostNotFound.
func (s *PostService) Delete(ctx context.Context, id string) error {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("post.id", id)))
	defer span.End()

	ok, err := s.Store.Delete(ctx, id)
	if errors.Is(err, repo.ErrInFlight) {
		return ErrPublishInProgress
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrPostNotFound
	}
	return nil
}

// Stats returns per-status counts and the next due time, if any.
func (s *PostService) Stats(ctx context.Context) (*Stats, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Stats")
	defer span.End()

	counts, err := s.Store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := &Stats{Counts: counts}
	next, err := s.Store.NextDue(ctx)
	switch {
	case err == nil:
		t := next.ScheduledTime
		out.NextDue = &t
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}
	return out, nil
}

// ParseScheduledTime parses an RFC 3339 timestamp, with or without
// fractional seconds.
func ParseScheduledTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, &ValidationError{Field: "scheduled_time", Err: ErrInvalidTime, Reason: "is required"}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "scheduled_time", Err: ErrInvalidTime}
	}
	return t.UTC(), nil
}

func (s *PostService) get(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	p, err := s.Store.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	return p, err
}

// explain turns a refused conditional transition into a named error.
func (s *PostService) explain(ctx context.Context, id string, refused error) error {
	p, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == domain.StatusPending && !errors.Is(refused, ErrNotRetryable) {
		// Still pending but refused: the daemon holds it.
		return fmt.Errorf("%w: %w", refused, ErrPublishInProgress)
	}
	return fmt.Errorf("%w (status %s)", refused, p.Status)
}

func (s *PostService) validateContent(raw string) (string, error) {
	content := strings.TrimSpace(norm.NFC.String(raw))
	if err := validation.Validate(content, validation.Required); err != nil {
		return "", &ValidationError{Field: "content", Err: ErrEmptyContent}
	}
	if s.MaxContentRunes > 0 {
		if err := validation.Validate(content, validation.RuneLength(0, s.MaxContentRunes)); err != nil {
			return "", &ValidationError{
				Field:  "content",
				Err:    ErrContentTooLong,
				Reason: fmt.Sprintf("must be at most %d characters", s.MaxContentRunes),
			}
		}
	}
	return content, nil
}

func (s *PostService) validateFuture(at time.Time) error {
	if at.IsZero() {
		return &ValidationError{Field: "scheduled_time", Err: ErrInvalidTime, Reason: "is required"}
	}
	now := s.now()
	if err := validation.Validate(at.UTC(), validation.Min(now).Exclusive()); err != nil {
		return &ValidationError{
			Field:  "scheduled_time",
			Err:    ErrScheduleInPast,
			Reason: fmt.Sprintf("%s is not after %s", at.UTC().Format(time.RFC3339), now.Format(time.RFC3339)),
		}
	}
	return nil
}

func validateLinkURL(raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if err := validation.Validate(raw, is.RequestURL); err != nil {
		return nil, &ValidationError{Field: "link_url", Err: ErrInvalidLinkURL}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ValidationError{Field: "link_url", Err: ErrInvalidLinkURL}
	}
	return &raw, nil
}

func (s *PostService) clampLimit(limit int) int {
	return utils.ClampLimit(limit, s.ListDefaultLimit, s.ListMaxLimit)
}
