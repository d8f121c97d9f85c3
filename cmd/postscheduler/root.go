package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/config"
	"github.com/tbourn/go-post-scheduler/internal/observability"
	"github.com/tbourn/go-post-scheduler/internal/publish"
	"github.com/tbourn/go-post-scheduler/internal/repo"
	"github.com/tbourn/go-post-scheduler/internal/scheduler"
	"github.com/tbourn/go-post-scheduler/internal/services"
	"github.com/tbourn/go-post-scheduler/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = ""

var (
	envFile     string
	noScheduler bool
)

var rootCmd = &cobra.Command{
	Use:   "postscheduler",
	Short: "Schedule social posts and publish them when due",
	Long: `postscheduler keeps a durable queue of posts with a due time and
publishes each one once its time has passed. Posts are managed over an HTTP
API (serve) or as MCP tools for AI agents (mcp).`,
	SilenceUsage: true,
}

func init() {
	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVar(&noScheduler, "no-scheduler", false, "do not run the publication daemon in this process")
}

func appVersion() string {
	return sysutil.FirstNonEmpty(version, "dev")
}

// loadEnv reads the dotenv file when present. Real environment variables
// always win over file entries.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// app is the wiring shared by every subcommand.
type app struct {
	cfg    config.Config
	log    zerolog.Logger
	db     *gorm.DB
	store  *repo.PostStore
	svc    *services.PostService
	daemon *scheduler.Daemon // nil when disabled

	otelShutdown observability.ShutdownFunc
}

// bootstrap loads configuration and builds storage, the service and the
// daemon. Logs go to logOut.
func bootstrap(ctx context.Context, role string, logOut io.Writer) (*app, error) {
	if err := loadEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	log := sysutil.NewLogger(logOut, cfg.LogPretty, cfg.OTEL.ServiceName).With().Str("role", role).Logger()

	shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion(), role)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}

	db, err := repo.Open(cfg)
	if err != nil {
		observability.Shutdown(shutdown, 5*time.Second, log)
		return nil, fmt.Errorf("database: %w", err)
	}

	store := repo.NewPostStore(db)
	a := &app{
		cfg:          cfg,
		log:          log,
		db:           db,
		store:        store,
		svc:          services.NewPostService(store, cfg.Posts, cfg.Scheduler.MaxRetries),
		otelShutdown: shutdown,
	}

	if cfg.Scheduler.Enabled && !noScheduler {
		pub, err := publish.New(cfg, log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("publisher: %w", err)
		}
		a.daemon = scheduler.New(store, pub, scheduler.Options{
			Interval:   cfg.Scheduler.Interval,
			MaxRetries: cfg.Scheduler.MaxRetries,
			Logger:     &log,
		})
	}

	log.Info().
		Str("version", appVersion()).
		Str("db_driver", cfg.DBDriver).
		Str("publisher", cfg.Publisher).
		Bool("scheduler", a.daemon != nil).
		Msg("bootstrap complete")
	return a, nil
}

// startDaemon starts the publication loop when it is enabled.
func (a *app) startDaemon(ctx context.Context) error {
	if a.daemon == nil {
		a.log.Info().Msg("scheduler disabled")
		return nil
	}
	return a.daemon.Start(ctx)
}

// close stops the daemon, then releases storage and flushes traces.
func (a *app) close() {
	if a.daemon != nil {
		a.daemon.Stop()
	}
	if err := repo.Close(a.db); err != nil {
		a.log.Error().Err(err).Msg("close database")
	}
	observability.Shutdown(a.otelShutdown, 5*time.Second, a.log)
}

// runJanitor purges expired idempotency records every interval until ctx
// is cancelled.
func runJanitor(ctx context.Context, db *gorm.DB, every time.Duration, log zerolog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Msg("purge idempotency keys")
				}
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency keys removed")
			}
		}
	}
}
