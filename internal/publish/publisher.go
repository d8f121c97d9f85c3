// Package publish delivers scheduled posts to the external social network.
//
// The daemon depends only on the Publisher interface. A call is one attempt:
// it either returns the external id of the live post or an error describing
// why delivery failed. Failures are not classified; the caller's retry policy
// treats them all alike.
package publish

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-post-scheduler/internal/config"
	"github.com/tbourn/go-post-scheduler/internal/domain"
)

// Publisher delivers a single post and returns its external identifier.
type Publisher interface {
	Publish(ctx context.Context, post domain.ScheduledPost) (externalID string, err error)
}

// Func adapts an ordinary function to Publisher.
type Func func(ctx context.Context, post domain.ScheduledPost) (string, error)

// Publish calls f.
func (f Func) Publish(ctx context.Context, post domain.ScheduledPost) (string, error) {
	return f(ctx, post)
}

// New builds the publisher selected by cfg.Publisher.
func New(cfg config.Config, log zerolog.Logger) (Publisher, error) {
	switch cfg.Publisher {
	case "linkedin":
		return NewLinkedIn(cfg.LinkedIn, nil), nil
	case "dryrun", "":
		return NewDryRun(log), nil
	default:
		return nil, fmt.Errorf("unknown publisher %q", cfg.Publisher)
	}
}
