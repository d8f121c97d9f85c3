// Package repo implements the data persistence layer for scheduled posts,
// backed by GORM. This file provides aggregate queries used by the status
// gauge, the health endpoint and the stats tool.
package repo

import (
	"context"

	"github.com/tbourn/go-post-scheduler/internal/domain"
)

// StatusCounts maps every known status to its number of records. Statuses
// without rows are present with a zero count.
type StatusCounts map[domain.PostStatus]int64

// Total sums all counts.
func (c StatusCounts) Total() int64 {
	var n int64
	for _, v := range c {
		n += v
	}
	return n
}

// CountByStatus groups scheduled posts by status.
func (s *PostStore) CountByStatus(ctx context.Context) (StatusCounts, error) {
	var rows []struct {
		Status domain.PostStatus
		N      int64
	}
	err := s.db.WithContext(ctx).
		Model(&domain.ScheduledPost{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := StatusCounts{
		domain.StatusPending:   0,
		domain.StatusPublished: 0,
		domain.StatusFailed:    0,
		domain.StatusCancelled: 0,
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// NextDue returns the earliest pending record, or ErrNotFound when the queue
// is empty.
func (s *PostStore) NextDue(ctx context.Context) (*domain.ScheduledPost, error) {
	var p domain.ScheduledPost
	err := s.db.WithContext(ctx).
		Where("status = ?", domain.StatusPending).
		Order("scheduled_time asc").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}
