package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/alshekh/portfolio/internal/jobs"
	"github.com/alshekh/portfolio/internal/newsletter"
)

// StatsSource reports subscriber counts.
type StatsSource interface {
	Stats(ctx context.Context) (newsletter.Stats, error)
}

// StatsJob refreshes the subscriber gauges.
type StatsJob struct {
	Source  StatsSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStatsJob wires the stats handler.
func NewStatsJob(source StatsSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsJob {
	return &StatsJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle processes TaskNewsletterStats tasks.
func (j *StatsJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("stats: handler not configured")
	}
	tracker := j.Metrics.Track(TaskNewsletterStats)
	defer func() {
		err = tracker.End(err)
	}()

	stats, err := j.Source.Stats(ctx)
	if err != nil {
		return err
	}
	j.Metrics.SetSubscribers(stats.Active, stats.Inactive)

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("newsletter stats",
		slog.String("job", TaskNewsletterStats),
		slog.Int64("active", stats.Active),
		slog.Int64("inactive", stats.Inactive),
		slog.Int64("total", stats.Total()))
	return nil
}
