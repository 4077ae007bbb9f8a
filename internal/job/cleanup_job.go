package job

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"realtime-service/internal/metrics"
)

// TypingSweeper removes typing indicators that were never stopped.
type TypingSweeper interface {
	Sweep(olderThan time.Duration) int
}

// DeliverySweeper drops delivery records past retention.
type DeliverySweeper interface {
	SweepDeliveries(olderThan time.Duration) int
}

// DepartureSweeper forgets remembered last rooms of departed users.
type DepartureSweeper interface {
	PruneDepartures(olderThan time.Duration) int
}

// LimiterSweeper drops idle rate-limit windows.
type LimiterSweeper interface {
	Sweep(idle time.Duration) int
}

// RoomCounter reports the number of live rooms.
type RoomCounter interface {
	Count() int
}

type Options struct {
	TypingSweepEvery   time.Duration
	TypingStaleAfter   time.Duration
	DeliverySweepEvery time.Duration
	DeliveryRetention  time.Duration
	DepartureRetention time.Duration
	LimiterIdle        time.Duration
}

// CleanupJob periodically evicts expired coordinator state. It never touches
// room membership.
type CleanupJob struct {
	typing     TypingSweeper
	deliveries DeliverySweeper
	departures DepartureSweeper
	limiter    LimiterSweeper
	rooms      RoomCounter
	metrics    *metrics.Metrics
	logger     *zap.Logger
	opts       Options

	cron *cron.Cron
}

// NewCleanupJob creates a new CleanupJob instance
func NewCleanupJob(
	typing TypingSweeper,
	deliveries DeliverySweeper,
	departures DepartureSweeper,
	limiter LimiterSweeper,
	rooms RoomCounter,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts Options,
) *CleanupJob {
	return &CleanupJob{
		typing:     typing,
		deliveries: deliveries,
		departures: departures,
		limiter:    limiter,
		rooms:      rooms,
		metrics:    m,
		logger:     logger,
		opts:       opts,
	}
}

// Start schedules both sweeps and starts the scheduler in its own goroutine.
func (j *CleanupJob) Start() error {
	clog := cronLogger{j.logger.Sugar()}
	c := cron.New(cron.WithChain(
		cron.Recover(clog),
		cron.SkipIfStillRunning(clog),
	), cron.WithLogger(clog))

	if _, err := c.AddFunc(every(j.opts.TypingSweepEvery), j.RunTypingSweep); err != nil {
		return fmt.Errorf("failed to schedule typing sweep: %w", err)
	}
	if _, err := c.AddFunc(every(j.opts.DeliverySweepEvery), j.RunDeliverySweep); err != nil {
		return fmt.Errorf("failed to schedule delivery sweep: %w", err)
	}

	j.cron = c
	c.Start()
	j.logger.Info("Cleanup job started",
		zap.Duration("typingSweepEvery", j.opts.TypingSweepEvery),
		zap.Duration("deliverySweepEvery", j.opts.DeliverySweepEvery))
	return nil
}

// Stop halts scheduling and waits for a running sweep, bounded by ctx.
func (j *CleanupJob) Stop(ctx context.Context) {
	if j.cron == nil {
		return
	}
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
		j.logger.Warn("Cleanup job did not stop in time")
	}
}

// RunTypingSweep clears typing indicators older than TypingStaleAfter.
func (j *CleanupJob) RunTypingSweep() {
	removed := j.typing.Sweep(j.opts.TypingStaleAfter)
	j.metrics.RecordCleanup("typing", removed)
	if removed > 0 {
		j.logger.Debug("Typing sweep completed", zap.Int("removed", removed))
	}
}

// RunDeliverySweep drops old delivery records, forgotten departures and idle
// rate-limit windows, then refreshes the active rooms gauge.
func (j *CleanupJob) RunDeliverySweep() {
	deliveries := j.deliveries.SweepDeliveries(j.opts.DeliveryRetention)
	j.metrics.RecordCleanup("delivery", deliveries)

	var departures, windows int
	if j.departures != nil {
		departures = j.departures.PruneDepartures(j.opts.DepartureRetention)
		j.metrics.RecordCleanup("departure", departures)
	}
	if j.limiter != nil {
		windows = j.limiter.Sweep(j.opts.LimiterIdle)
		j.metrics.RecordCleanup("ratelimit", windows)
	}
	if j.rooms != nil {
		j.metrics.SetActiveRooms(j.rooms.Count())
	}

	j.logger.Info("Cleanup job completed",
		zap.Int("deliveries", deliveries),
		zap.Int("departures", departures),
		zap.Int("rateLimitWindows", windows))
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// cronLogger routes scheduler logs through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
