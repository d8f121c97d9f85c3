package publish

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-post-scheduler/internal/domain"
)

// DryRun logs posts instead of delivering them. It never fails.
type DryRun struct {
	log zerolog.Logger
}

// NewDryRun returns a DryRun publisher writing to log.
func NewDryRun(log zerolog.Logger) *DryRun {
	return &DryRun{log: log}
}

// Publish logs the post and returns a synthetic "dryrun-<uuid>" id.
func (d *DryRun) Publish(ctx context.Context, post domain.ScheduledPost) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "dryrun-" + uuid.NewString()
	ev := d.log.Info().
		Str("post_id", post.ID).
		Str("external_id", id).
		Str("visibility", string(post.Visibility)).
		Int("content_len", len(post.Content))
	if post.LinkURL != nil {
		ev = ev.Str("link_url", *post.LinkURL)
	}
	ev.Msg("dry-run publish")
	return id, nil
}
