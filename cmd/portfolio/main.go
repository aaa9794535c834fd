package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alshekh/portfolio/cmd/portfolio/cli"
	"github.com/alshekh/portfolio/internal/app"
	"github.com/alshekh/portfolio/internal/newsletter"
	"github.com/alshekh/portfolio/internal/observability"
	"github.com/alshekh/portfolio/internal/platform/cache"
	"github.com/alshekh/portfolio/internal/platform/db"
	"github.com/alshekh/portfolio/internal/shared"
	"github.com/alshekh/portfolio/internal/site"
	"github.com/alshekh/portfolio/internal/view"
	"github.com/alshekh/portfolio/jobs"
)

const usage = `usage: portfolio [command]

commands:
  serve                 run the HTTP server (default)
  migrate               apply the embedded schema and exit
  deactivate <email>    mark a subscriber inactive
  stats [-json]         print subscriber counts
  jobs trigger <name>   enqueue a job by name
  jobs queue            print default queue counters
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	var code int
	switch command {
	case "serve":
		code = serve(ctx, stop, cfg, logger)
	case "migrate":
		code = migrate(ctx, cfg, logger)
	case "deactivate":
		code = withSubscribers(ctx, cfg, logger, func(c *cli.SubscribersCLI) int {
			if len(args) != 1 {
				fmt.Fprint(os.Stderr, usage)
				return 1
			}
			return c.DeactivateCommand(ctx, cli.DeactivateOptions{Email: args[0]})
		})
	case "stats":
		fs := flag.NewFlagSet("stats", flag.ExitOnError)
		jsonOut := fs.Bool("json", false, "print JSON")
		_ = fs.Parse(args)
		code = withSubscribers(ctx, cfg, logger, func(c *cli.SubscribersCLI) int {
			return c.StatsCommand(ctx, cli.StatsOptions{JSONOutput: *jsonOut})
		})
	case "jobs":
		code = runJobs(ctx, cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		code = 1
	}
	if code != 0 {
		stop()
		os.Exit(code)
	}
}

func openPool(ctx context.Context, cfg *app.Config) (*pgxpool.Pool, error) {
	return db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	names, _ := db.MigrationNames()
	logger.Info("schema up to date", slog.Int("migrations", len(names)))
	return 0
}

func withSubscribers(ctx context.Context, cfg *app.Config, logger *slog.Logger, run func(*cli.SubscribersCLI) int) int {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	c, err := cli.NewSubscribersCLI(newsletter.NewRepository(pool))
	if err != nil {
		logger.Error("init subscribers cli", slog.Any("error", err))
		return 1
	}
	return run(c)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 1
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()

	switch {
	case args[0] == "trigger" && len(args) == 2:
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case args[0] == "queue":
		stats, err := jobsCLI.InspectQueue()
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs queue: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	default:
		fmt.Fprint(os.Stderr, usage)
		return 1
	}
	return 0
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) int {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Error("auto migrate", slog.Any("error", err))
			return 1
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "portfolio_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		return 1
	}
	profile, err := site.LoadProfile(cfg.SiteContentPath)
	if err != nil {
		logger.Error("load site content", slog.Any("error", err))
		return 1
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	manager := newsletter.NewManager(newsletter.NewRepository(pool), newsletter.ManagerConfig{
		Notifier: jobClient,
		Logger:   logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		SiteHandler:       site.NewHandler(logger, templates, csrfManager, profile),
		NewsletterHandler: newsletter.NewHandler(logger, manager, metrics),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}
