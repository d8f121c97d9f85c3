// Package scheduler runs the publication daemon.
//
// The daemon performs one tick immediately on Start and then one per
// interval. A tick reads the due set once, then publishes each record
// sequentially, oldest first. Ticks never overlap: the loop is a single
// goroutine, and Tick itself is serialized for callers outside the loop.
//
// Per record:
//
//	claim (BeginPublish) -> Publish
//	  ok   -> MarkPublished
//	  fail -> MarkFailed; if RetryCount < MaxRetries -> ResetForRetry
//
// Each tick starts by re-queuing failed records still below the ceiling, so
// a stop or storage error between MarkFailed and ResetForRetry only delays
// the retry by one tick.
//
// A failure never stops the batch and storage errors never stop the loop.
// Stop cancels the loop between records and waits for the record in hand to
// be settled, so no record is left half-transitioned.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/publish"
	"github.com/tbourn/go-post-scheduler/internal/repo"
)

// Defaults applied by New for zero Options fields.
const (
	DefaultInterval   = time.Minute
	DefaultMaxRetries = 3
)

// ErrAlreadyRunning is returned by Start on a running daemon.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Store is the subset of the record store the daemon writes through.
type Store interface {
	ListDue(ctx context.Context, now time.Time) ([]domain.ScheduledPost, error)
	BeginPublish(ctx context.Context, id string) (*domain.ScheduledPost, error)
	MarkPublished(ctx context.Context, id, externalID string) (*domain.ScheduledPost, error)
	MarkFailed(ctx context.Context, id, reason string) (*domain.ScheduledPost, error)
	ResetForRetry(ctx context.Context, id string) (*domain.ScheduledPost, error)
	RecoverRetryable(ctx context.Context, maxRetries int) (int64, error)
	CountByStatus(ctx context.Context) (repo.StatusCounts, error)
}

// Options configures a Daemon.
type Options struct {
	Interval   time.Duration
	MaxRetries int
	Now        func() time.Time
	Logger     *zerolog.Logger
}

// TickResult summarizes one tick.
type TickResult struct {
	Due       int
	Published int
	Retried   int
	Failed    int // left in failed at the retry ceiling
	Skipped   int // no longer pending when claimed
	Errors    int // storage errors
	Recovered int // failed posts with budget left, re-queued before the due read
}

// Daemon publishes due posts on a fixed interval.
type Daemon struct {
	store      Store
	pub        publish.Publisher
	interval   time.Duration
	maxRetries int
	now        func() time.Time
	log        zerolog.Logger

	tickMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Daemon. Zero Options fields take the package defaults.
func New(store Store, pub publish.Publisher, opts Options) *Daemon {
	d := &Daemon{
		store:      store,
		pub:        pub,
		interval:   opts.Interval,
		maxRetries: opts.MaxRetries,
		now:        opts.Now,
		log:        zerolog.Nop(),
	}
	if d.interval <= 0 {
		d.interval = DefaultInterval
	}
	if d.maxRetries <= 0 {
		d.maxRetries = DefaultMaxRetries
	}
	if d.now == nil {
		d.now = time.Now
	}
	if opts.Logger != nil {
		d.log = opts.Logger.With().Str("component", "scheduler").Logger()
	}
	return d
}

// Interval returns the tick interval.
func (d *Daemon) Interval() time.Duration { return d.interval }

// Running reports whether the loop is active.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done != nil
}

// Start runs one tick immediately and then one per interval until ctx is
// cancelled or Stop is called. The first tick runs on the loop goroutine.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done

	d.log.Info().Dur("interval", d.interval).Int("max_retries", d.maxRetries).Msg("scheduler started")
	go d.run(loopCtx, done)
	return nil
}

// Stop ends the loop and waits for the in-flight tick to settle its current
// record. It is safe to call at any time and more than once.
func (d *Daemon) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.log.Info().Msg("scheduler stopped")
}

func (d *Daemon) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	d.Tick(ctx)

	// A Ticker drops ticks a slow receiver misses, so a long tick is followed
	// by at most one immediate tick, never a burst.
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one due-check-and-publish cycle. Cancelling ctx stops the tick
// before the next record; the record in hand is always settled.
func (d *Daemon) Tick(ctx context.Context) TickResult {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	tr := otel.Tracer("scheduler/Daemon")
	ctx, span := tr.Start(ctx, "Tick")
	defer span.End()

	start := time.Now()
	ticksTotal.Inc()
	defer func() { tickDuration.Observe(time.Since(start).Seconds()) }()

	var res TickResult
	if n, err := d.store.RecoverRetryable(ctx, d.maxRetries); err != nil {
		res.Errors++
		d.log.Error().Err(err).Msg("recover retryable posts")
	} else if n > 0 {
		res.Recovered = int(n)
		d.log.Warn().Int64("count", n).Msg("re-queued failed posts left between retry steps")
	}

	now := d.now().UTC()
	due, err := d.store.ListDue(ctx, now)
	if err != nil {
		res.Errors++
		span.RecordError(err)
		span.SetStatus(codes.Error, "list due")
		d.log.Error().Err(err).Msg("list due posts")
		return res
	}
	res.Due = len(due)
	duePosts.Set(float64(len(due)))
	span.SetAttributes(attribute.Int("scheduler.due", len(due)))

	for i := range due {
		if ctx.Err() != nil {
			d.log.Info().Int("remaining", len(due)-i).Msg("tick interrupted by shutdown")
			break
		}
		d.process(ctx, due[i].ID, &res)
	}

	if counts, err := d.store.CountByStatus(context.WithoutCancel(ctx)); err == nil {
		RecordCounts(counts)
	} else {
		d.log.Warn().Err(err).Msg("count posts by status")
	}

	if res.Due > 0 || res.Errors > 0 || res.Recovered > 0 {
		d.log.Info().
			Int("due", res.Due).
			Int("published", res.Published).
			Int("retried", res.Retried).
			Int("failed", res.Failed).
			Int("skipped", res.Skipped).
			Int("errors", res.Errors).
			Int("recovered", res.Recovered).
			Dur("duration", time.Since(start)).
			Msg("tick complete")
	}
	return res
}

// process claims, publishes and settles one record. The work runs detached
// from ctx cancellation so shutdown cannot interrupt it halfway.
func (d *Daemon) process(ctx context.Context, id string, res *TickResult) {
	ctx = context.WithoutCancel(ctx)

	tr := otel.Tracer("scheduler/Daemon")
	ctx, span := tr.Start(ctx, "Publish", trace.WithAttributes(attribute.String("post.id", id)))
	defer span.End()

	log := d.log.With().Str("post_id", id).Logger()

	post, err := d.store.BeginPublish(ctx, id)
	if err != nil {
		res.Errors++
		log.Error().Err(err).Msg("claim post")
		return
	}
	if post == nil {
		// Cancelled, rescheduled or deleted since the due snapshot.
		res.Skipped++
		return
	}

	extID, perr := d.safePublish(ctx, *post)
	if perr == nil {
		p, err := d.store.MarkPublished(ctx, id, extID)
		switch {
		case err != nil:
			res.Errors++
			publishAttempts.WithLabelValues(outcomeStoreErr).Inc()
			log.Error().Err(err).Str("external_id", extID).Msg("mark published")
		case p == nil:
			res.Skipped++
			log.Warn().Str("external_id", extID).Msg("post left pending state during publish")
		default:
			res.Published++
			publishAttempts.WithLabelValues(outcomePublished).Inc()
			log.Info().Str("external_id", extID).Msg("post published")
		}
		return
	}

	span.RecordError(perr)
	span.SetStatus(codes.Error, "publish failed")

	failed, err := d.store.MarkFailed(ctx, id, perr.Error())
	if err != nil {
		res.Errors++
		publishAttempts.WithLabelValues(outcomeStoreErr).Inc()
		log.Error().Err(err).AnErr("publish_err", perr).Msg("mark failed")
		return
	}
	if failed == nil {
		res.Skipped++
		return
	}

	if failed.RetryCount >= d.maxRetries {
		res.Failed++
		publishAttempts.WithLabelValues(outcomeFailed).Inc()
		log.Warn().Err(perr).Int("retry_count", failed.RetryCount).Msg("post failed permanently")
		return
	}

	if _, err := d.store.ResetForRetry(ctx, id); err != nil {
		res.Errors++
		log.Error().Err(err).Msg("reset for retry")
		return
	}
	res.Retried++
	publishAttempts.WithLabelValues(outcomeRetry).Inc()
	log.Warn().Err(perr).Int("retry_count", failed.RetryCount).Msg("publish failed, will retry")
}

// safePublish turns a publisher panic into an ordinary failure.
func (d *Daemon) safePublish(ctx context.Context, post domain.ScheduledPost) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panic: %v", r)
		}
	}()
	id, err = d.pub.Publish(ctx, post)
	if err == nil && id == "" {
		err = errors.New("publisher returned an empty external id")
	}
	return id, err
}
