// Package repo implements the data persistence layer for scheduled posts,
// backed by GORM. This file provides PostStore, the durable record store
// shared by the tool-facing services and the publication daemon.
//
// Error semantics:
//   - Lookups of unknown ids return ErrNotFound (gorm.ErrRecordNotFound).
//   - Conditional transitions whose precondition does not hold return
//     (nil, nil). Callers translate that into a domain error.
//   - Other DB errors are propagated unchanged.
//
// Concurrency:
//
// All mutating operations are serialized by a single writer mutex. Each
// transition is a conditional UPDATE (WHERE id = ? AND status = ?) followed by
// a re-read inside the same critical section, so a status check and the write
// that depends on it can never interleave with another writer. Readers do not
// take the lock; every read is one query and observes a consistent snapshot.
//
// A record claimed by BeginPublish is in flight until MarkPublished or
// MarkFailed settles it. Cancel, Reschedule and Delete refuse in-flight
// records, so an outcome from the external network is never overwritten by a
// concurrent cancellation.
package repo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrInFlight is returned by Delete when the daemon is publishing the record.
var ErrInFlight = errors.New("publish in progress")

// NewPost carries the fields accepted at creation time.
type NewPost struct {
	Content       string
	ScheduledTime time.Time
	LinkURL       *string
	Visibility    domain.Visibility
}

// PostStore persists ScheduledPost records.
type PostStore struct {
	db *gorm.DB

	mu       sync.Mutex
	inflight map[string]struct{}

	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewPostStore returns a store over db. The schema must already be migrated.
func NewPostStore(db *gorm.DB) *PostStore {
	return &PostStore{
		db:       db,
		inflight: make(map[string]struct{}),
		Now:      time.Now,
	}
}

// DB exposes the underlying handle for collaborators sharing the connection.
func (s *PostStore) DB() *gorm.DB { return s.db }

func (s *PostStore) now() time.Time { return s.Now().UTC() }

// Create inserts a new pending record with a fresh UUID.
func (s *PostStore) Create(ctx context.Context, in NewPost) (*domain.ScheduledPost, error) {
	vis := in.Visibility
	if vis == "" {
		vis = domain.VisibilityPublic
	}
	now := s.now()
	p := &domain.ScheduledPost{
		ID:            uuid.NewString(),
		Content:       in.Content,
		LinkURL:       in.LinkURL,
		Visibility:    vis,
		ScheduledTime: in.ScheduledTime.UTC(),
		Status:        domain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// Get fetches a record by id, or ErrNotFound.
func (s *PostStore) Get(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	var p domain.ScheduledPost
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns records matching status (all when empty), ordered by
// scheduled time ascending and truncated to limit when limit > 0.
func (s *PostStore) List(ctx context.Context, status domain.PostStatus, limit int) ([]domain.ScheduledPost, error) {
	q := s.db.WithContext(ctx).Model(&domain.ScheduledPost{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	out := []domain.ScheduledPost{}
	err := q.Order("scheduled_time asc").Order("created_at asc").Order("id asc").Find(&out).Error
	return out, err
}

// ListDue returns every pending record with scheduled_time <= now, oldest
// first. It is a single query, so one call never yields a record twice.
func (s *PostStore) ListDue(ctx context.Context, now time.Time) ([]domain.ScheduledPost, error) {
	out := []domain.ScheduledPost{}
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_time <= ?", domain.StatusPending, now.UTC()).
		Order("scheduled_time asc").
		Order("created_at asc").
		Order("id asc").
		Find(&out).Error
	return out, err
}

// BeginPublish claims a pending record for publication. It returns (nil, nil)
// when the record is gone, no longer pending or already claimed.
func (s *PostStore) BeginPublish(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[id]; busy {
		return nil, nil
	}
	p, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// Deleted since the due snapshot.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Status != domain.StatusPending {
		return nil, nil
	}
	s.inflight[id] = struct{}{}
	return p, nil
}

// MarkPublished moves a pending record to published, setting PublishedAt and
// ExternalID together. Returns ErrNotFound for unknown ids and (nil, nil) when
// the record is not pending.
func (s *PostStore) MarkPublished(ctx context.Context, id, externalID string) (*domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)

	now := s.now()
	return s.transition(ctx, id, domain.StatusPending, map[string]any{
		"status":       domain.StatusPublished,
		"published_at": now,
		"external_id":  externalID,
		"updated_at":   now,
	})
}

// MarkFailed moves a pending record to failed, records the reason in both
// ErrorMessage and LastError and increments RetryCount.
func (s *PostStore) MarkFailed(ctx context.Context, id, reason string) (*domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)

	return s.transition(ctx, id, domain.StatusPending, map[string]any{
		"status":        domain.StatusFailed,
		"error_message": reason,
		"last_error":    reason,
		"retry_count":   gorm.Expr("retry_count + 1"),
		"updated_at":    s.now(),
	})
}

// ResetForRetry returns a failed record to pending and clears ErrorMessage.
// RetryCount and LastError are kept. (nil, nil) when not failed or unknown.
func (s *PostStore) ResetForRetry(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.transition(ctx, id, domain.StatusFailed, map[string]any{
		"status":        domain.StatusPending,
		"error_message": nil,
		"updated_at":    s.now(),
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// RecoverRetryable returns to pending every failed record whose RetryCount
// is still below maxRetries, clearing ErrorMessage and keeping LastError.
// Such records only exist when the process stopped, or storage failed,
// between MarkFailed and ResetForRetry. It reports how many were re-queued.
func (s *PostStore) RecoverRetryable(ctx context.Context, maxRetries int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).
		Model(&domain.ScheduledPost{}).
		Where("status = ? AND retry_count < ?", domain.StatusFailed, maxRetries).
		Updates(map[string]any{
			"status":        domain.StatusPending,
			"error_message": nil,
			"updated_at":    s.now(),
		})
	return res.RowsAffected, res.Error
}

// ResetCycle starts a fresh retry cycle for a failed record: pending,
// RetryCount 0, ErrorMessage and LastError cleared. (nil, nil) when not
// failed or unknown.
func (s *PostStore) ResetCycle(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.transition(ctx, id, domain.StatusFailed, map[string]any{
		"status":        domain.StatusPending,
		"retry_count":   0,
		"error_message": nil,
		"last_error":    nil,
		"updated_at":    s.now(),
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// Cancel moves a pending, unclaimed record to cancelled. (nil, nil) when the
// record is unknown, not pending, or being published.
func (s *PostStore) Cancel(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[id]; busy {
		return nil, nil
	}
	p, err := s.transition(ctx, id, domain.StatusPending, map[string]any{
		"status":     domain.StatusCancelled,
		"updated_at": s.now(),
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// Reschedule changes the due time of a pending, unclaimed record.
// (nil, nil) when the record is unknown, not pending, or being published.
func (s *PostStore) Reschedule(ctx context.Context, id string, at time.Time) (*domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[id]; busy {
		return nil, nil
	}
	p, err := s.transition(ctx, id, domain.StatusPending, map[string]any{
		"scheduled_time": at.UTC(),
		"updated_at":     s.now(),
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// Delete removes a record. It reports false for unknown ids and ErrInFlight
// while the daemon holds the record.
func (s *PostStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[id]; busy {
		return false, ErrInFlight
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.ScheduledPost{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// transition applies values to id only while its status equals from, then
// re-reads the row. The caller holds s.mu.
//
// Returns ErrNotFound when id does not exist and (nil, nil) when it exists in
// another status.
func (s *PostStore) transition(ctx context.Context, id string, from domain.PostStatus, values map[string]any) (*domain.ScheduledPost, error) {
	res := s.db.WithContext(ctx).
		Model(&domain.ScheduledPost{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return s.Get(ctx, id)
}
