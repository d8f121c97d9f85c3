package services

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tbourn/go-post-scheduler/internal/domain"
)

// Summarize renders a one-line status description of p as seen at now, for
// example "scheduled for 2025-06-01T13:00:00Z (1 hour from now)" or
// "failed: rate_limited (attempt 3 of 3)".
func Summarize(p domain.ScheduledPost, now time.Time, maxRetries int) string {
	switch p.Status {
	case domain.StatusPending:
		s := fmt.Sprintf("scheduled for %s (%s)", stamp(p.ScheduledTime), relative(p.ScheduledTime, now))
		if p.RetryCount > 0 {
			reason := "unknown error"
			if p.LastError != nil {
				reason = *p.LastError
			}
			s += fmt.Sprintf("; retrying after failure: %s (%s)", reason, attempts(p.RetryCount, maxRetries))
		}
		return s

	case domain.StatusPublished:
		if p.PublishedAt == nil {
			return "published"
		}
		s := fmt.Sprintf("published at %s (%s)", stamp(*p.PublishedAt), relative(*p.PublishedAt, now))
		if p.ExternalID != nil {
			s += " as " + *p.ExternalID
		}
		return s

	case domain.StatusFailed:
		reason := "unknown error"
		if p.ErrorMessage != nil {
			reason = *p.ErrorMessage
		} else if p.LastError != nil {
			reason = *p.LastError
		}
		return fmt.Sprintf("failed: %s (%s)", reason, attempts(p.RetryCount, maxRetries))

	case domain.StatusCancelled:
		return "cancelled"
	}
	return string(p.Status)
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func relative(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

func attempts(n, max int) string {
	if max > 0 {
		return fmt.Sprintf("attempt %d of %d", n, max)
	}
	if n == 1 {
		return "1 attempt"
	}
	return fmt.Sprintf("%d attempts", n)
}
