package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"winch/internal/admission"
	"winch/internal/callback"
	"winch/internal/cleanup"
	"winch/internal/config"
	"winch/internal/fetch"
	"winch/internal/logging"
	"winch/internal/notifications"
	"winch/internal/queue"
	"winch/internal/resourcecache"
	"winch/internal/retry"
	"winch/internal/worker"
)

// Daemon owns the background services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	admission *admission.Service
	worker    *worker.Worker
	cleanup   *cleanup.Scheduler
	notifier  notifications.Service
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with all services wired against the shared store.
func New(cfg *config.Config, store *queue.Store, engine fetch.Engine, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || engine == nil {
		return nil, errors.New("daemon requires config, store, and fetch engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	retention := time.Duration(cfg.Cleanup.RetentionDays) * 24 * time.Hour
	cache := resourcecache.New(store, retention, logger)
	notifier := notifications.NewService(cfg)
	dispatcher := callback.New(store, cfg, logger)
	admissionSvc := admission.New(store, cache, cfg, logger)

	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		admission: admissionSvc,
		worker:    worker.New(store, engine, cache, cfg, retry.New(), dispatcher, notifier, logger),
		cleanup:   cleanup.New(store, cfg, notifier, logger),
		notifier:  notifier,
		lockPath:  filepath.Join(cfg.Paths.LogDir, "winchd.lock"),
	}
	d.lock = flock.New(d.lockPath)
	d.api = newAPIServer(cfg, store, admissionSvc, logger)
	return d, nil
}

// Start acquires the instance lock, recovers interrupted tasks, and launches
// the worker, cleanup scheduler, and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another winch daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// In-memory in-flight state did not survive the restart; downloading rows
	// are interrupted work, not failures.
	recovered, err := d.store.ResetInterrupted(runCtx)
	if err != nil {
		d.release()
		return fmt.Errorf("recover interrupted tasks: %w", err)
	}
	if recovered > 0 {
		d.logger.Info("recovered interrupted tasks", logging.Int64("count", recovered))
	}

	if err := d.api.start(runCtx); err != nil {
		d.release()
		return err
	}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.worker.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.cleanup.Run(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("winch daemon started",
		logging.String("lock", d.lockPath),
		logging.String("db", d.store.Path()),
	)
	return nil
}

// Stop shuts down background services and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.release()
	d.api.stop()
	d.wg.Wait()
	d.running.Store(false)
	d.logger.Info("winch daemon stopped")
}

// Addr returns the API listen address, empty until Start succeeds.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

func (d *Daemon) release() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
}
