package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mergedesk/backend/internal/domain/job"
	"github.com/mergedesk/backend/internal/infrastructure/config"
)

// ActionDispatcher re-executes the work a retried action stands for
type ActionDispatcher interface {
	Dispatch(ctx context.Context, action *job.Action) error
}

// RetrySweep periodically scans for failed actions with retry budget
// left and re-dispatches them. One action's failure never stops the
// sweep from trying the rest.
type RetrySweep struct {
	cfg        config.SweepConfig
	actions    job.ActionRepository
	dispatcher ActionDispatcher
	logger     *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewRetrySweep creates a new retry sweep
func NewRetrySweep(cfg config.SweepConfig, actions job.ActionRepository, dispatcher ActionDispatcher, logger *zap.Logger) *RetrySweep {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrySweep{
		cfg:        cfg,
		actions:    actions,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Start starts the sweep loop
func (s *RetrySweep) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("retry sweep started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("batch_size", s.cfg.BatchSize))
}

// Stop stops the sweep and waits for the current pass to finish
func (s *RetrySweep) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("retry sweep stopped")
}

func (s *RetrySweep) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one sweep pass
func (s *RetrySweep) RunOnce(ctx context.Context) {
	actions, err := s.actions.FindRetryable(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("retry sweep scan failed", zap.Error(err))
		return
	}
	if len(actions) == 0 {
		return
	}

	s.logger.Info("retry sweep dispatching failed actions", zap.Int("count", len(actions)))

	for i := range actions {
		action := actions[i]
		if err := s.retryOne(ctx, &action); err != nil {
			s.logger.Warn("retry dispatch failed",
				zap.String("action_id", action.ID.String()),
				zap.String("dataset", action.DatasetKey),
				zap.Int("retry_count", action.RetryCount),
				zap.Error(err))
		}
	}
}

func (s *RetrySweep) retryOne(ctx context.Context, action *job.Action) error {
	if err := action.Retry(); err != nil {
		return err
	}
	if err := s.actions.Save(ctx, action); err != nil {
		return err
	}
	return s.dispatcher.Dispatch(ctx, action)
}
