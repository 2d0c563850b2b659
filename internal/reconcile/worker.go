package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

// Worker periodically reconciles every user with an active calendar connection.
type Worker struct {
	engine *Engine
	store  connections.Store
	logger *logging.Logger

	tick <-chan time.Time
	stop func()
}

type WorkerConfig struct {
	Engine *Engine
	Store  connections.Store
	Logger *logging.Logger

	Interval time.Duration

	Tick <-chan time.Time
	Stop func()
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Engine == nil {
		return nil, errors.New("reconcile: worker requires engine")
	}
	if cfg.Store == nil {
		return nil, errors.New("reconcile: worker requires connection store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	tick := cfg.Tick
	stop := cfg.Stop
	if tick == nil {
		interval := cfg.Interval
		if interval <= 0 {
			interval = 15 * time.Minute
		}
		ticker := time.NewTicker(interval)
		tick = ticker.C
		stop = ticker.Stop
	}

	return &Worker{
		engine: cfg.Engine,
		store:  cfg.Store,
		logger: logger,
		tick:   tick,
		stop:   stop,
	}, nil
}

// Start syncs once immediately and then on every tick until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	if w == nil {
		return
	}
	defer func() {
		if w.stop != nil {
			w.stop()
		}
	}()

	_ = w.SyncOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.tick:
			_ = w.SyncOnce(ctx)
		}
	}
}

// SyncOnce reconciles all users and returns the first error encountered.
func (w *Worker) SyncOnce(ctx context.Context) error {
	userIDs, err := w.store.ListActiveUserIDs(ctx)
	if err != nil {
		w.logger.Error("failed to list users with calendar connections", "error", err)
		return err
	}

	var firstErr error
	total := &Result{}
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := w.engine.SyncUser(ctx, userID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total.add(res)
	}
	w.logger.Info("calendar sync pass complete",
		"users", len(userIDs), "imported", total.Imported, "synced", total.Synced, "cancelled", total.Cancelled)
	return firstErr
}
