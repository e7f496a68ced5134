// Package scheduler runs the import driver passes on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sahana/importer/internal/importers"
	"github.com/sahana/importer/internal/logging"
)

const (
	PhaseProcess = "process"
	PhaseImport  = "import"
	PhaseCleanup = "cleanup"
)

// cleanupSchedule runs history retention once a night.
const cleanupSchedule = "30 3 * * *"

var ErrUnknownPhase = errors.New("unknown phase")

// Passes is the driver: one call walks every eligible job once.
type Passes interface {
	Process(ctx context.Context) (*importers.PassResult, error)
	Import(ctx context.Context) (*importers.PassResult, error)
}

// HistoryCleaner deletes job events older than the retention period.
type HistoryCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

type Config struct {
	ProcessSchedule string
	ImportSchedule  string
	RetentionDays   int // history cleanup is scheduled only when positive
}

// DriverScheduler fires the process and import passes. A pass that is still
// running when its next tick arrives is skipped rather than queued.
type DriverScheduler struct {
	passes  Passes
	cleaner HistoryCleaner
	config  Config
	logger  *logging.Logger

	cron       *cron.Cron
	entries    map[string]cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	ctx        context.Context
	cancelFunc context.CancelFunc
}

func NewDriverScheduler(passes Passes, cleaner HistoryCleaner, cfg Config, logger *logging.Logger) *DriverScheduler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DriverScheduler{
		passes:  passes,
		cleaner: cleaner,
		config:  cfg,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers the passes and starts the cron loop. It is a no-op when
// already running. The scheduler stops when ctx is cancelled.
func (s *DriverScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	schedules := map[string]string{
		PhaseProcess: s.config.ProcessSchedule,
		PhaseImport:  s.config.ImportSchedule,
	}
	if s.cleaner != nil && s.config.RetentionDays > 0 {
		schedules[PhaseCleanup] = cleanupSchedule
	}
	for phase, schedule := range schedules {
		if err := ValidateSchedule(schedule); err != nil {
			return fmt.Errorf("invalid %s schedule '%s': %w", phase, schedule, err)
		}
	}

	cronLog := cronLogger{log: s.logger.Sugar().With("component", "scheduler")}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	s.entries = make(map[string]cron.EntryID)
	s.ctx, s.cancelFunc = context.WithCancel(ctx)

	for phase, schedule := range schedules {
		id, err := s.cron.AddFunc(schedule, func() { s.run(s.ctx, phase) })
		if err != nil {
			s.cancelFunc()
			return fmt.Errorf("failed to schedule %s pass: %w", phase, err)
		}
		s.entries[phase] = id
		s.logger.Info("pass scheduled",
			zap.String("phase", phase),
			zap.String("schedule", schedule),
			zap.String("description", DescribeSchedule(schedule)))
	}

	s.cron.Start()
	s.isRunning = true

	go func(done <-chan struct{}) {
		<-done
		s.Stop()
	}(s.ctx.Done())

	return nil
}

// Stop waits for running passes to finish and stops the cron loop.
func (s *DriverScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	<-s.cron.Stop().Done()
	s.cancelFunc()
	s.isRunning = false
	s.logger.Info("scheduler stopped")
}

// RunNow starts one pass of phase in the background.
func (s *DriverScheduler) RunNow(phase string) error {
	switch phase {
	case PhaseProcess, PhaseImport, PhaseCleanup:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx, phase)
	return nil
}

func (s *DriverScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRunTimes returns the next firing time of each scheduled phase.
func (s *DriverScheduler) NextRunTimes() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	next := make(map[string]time.Time, len(s.entries))
	for phase, id := range s.entries {
		next[phase] = s.cron.Entry(id).Next
	}
	return next
}

func (s *DriverScheduler) run(ctx context.Context, phase string) {
	log := s.logger.With(zap.String("phase", phase))
	started := time.Now()

	var (
		result *importers.PassResult
		err    error
	)
	switch phase {
	case PhaseProcess:
		result, err = s.passes.Process(ctx)
	case PhaseImport:
		result, err = s.passes.Import(ctx)
	case PhaseCleanup:
		if s.cleaner == nil {
			return
		}
		days := s.config.RetentionDays
		if days <= 0 {
			days = 30
		}
		deleted, cleanErr := s.cleaner.DeleteOldEvents(time.Duration(days) * 24 * time.Hour)
		if cleanErr != nil {
			log.Error("history cleanup failed", zap.Error(cleanErr))
			return
		}
		log.Info("history cleanup finished", zap.Int64("deleted", deleted))
		return
	}

	jobs := 0
	if result != nil {
		jobs = len(result.Jobs)
	}
	if err != nil {
		log.Error("pass finished with errors", zap.Int("jobs", jobs), zap.Error(err))
		return
	}
	log.Info("pass finished", zap.Int("jobs", jobs), zap.Duration("took", time.Since(started)))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
