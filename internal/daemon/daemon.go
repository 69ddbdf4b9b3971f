// Package daemon keeps a list converged while its template file is edited.
//
// The daemon:
//  1. Runs once at startup
//  2. Watches the template file and re-runs after edits settle
//  3. Optionally re-runs on a fixed interval to repair remote drift
//  4. Stops when its context is cancelled
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aboutus/listsync/internal/schema"
)

// Triggers passed to the RunFunc.
const (
	TriggerStartup  = "startup"
	TriggerChange   = "change"
	TriggerInterval = "interval"
)

// RunFunc converges the list towards tmpl. Failures are the RunFunc's to
// report; the daemon keeps going regardless.
type RunFunc func(ctx context.Context, tmpl *schema.Template, trigger string)

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long the file must stay quiet before a run.
	DebounceInterval time.Duration

	// ResyncInterval re-runs with the current template periodically.
	// Zero disables it.
	ResyncInterval time.Duration

	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
		Logger:           zap.NewNop(),
	}
}

// Daemon re-runs reconciliation when its template changes.
type Daemon struct {
	path   string
	run    RunFunc
	config *Config
	logger *zap.Logger

	watcher *FileWatcher

	// changedAt is when the last unprocessed change arrived; zero if none.
	changedAt time.Time
	changeMu  sync.Mutex

	// runMu serializes runs from the change and resync loops.
	runMu   sync.Mutex
	current *schema.Template

	wg sync.WaitGroup
}

// New creates a daemon for the template at path.
func New(path string, run RunFunc, config *Config) (*Daemon, error) {
	if path == "" {
		return nil, fmt.Errorf("template path cannot be empty")
	}
	if run == nil {
		return nil, fmt.Errorf("run func cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	return &Daemon{
		path:    path,
		run:     run,
		config:  config,
		logger:  logger.With(zap.String("template", path)),
		watcher: watcher,
	}, nil
}

// Start loads the template, runs once, then watches until ctx is cancelled.
// It fails only if the initial template is invalid or cannot be watched.
func (d *Daemon) Start(ctx context.Context) error {
	tmpl, err := schema.Load(d.path)
	if err != nil {
		d.watcher.Stop()
		return fmt.Errorf("initial template load failed: %w", err)
	}

	if err := d.watcher.Start(d.path); err != nil {
		d.watcher.Stop()
		return err
	}
	d.logger.Info("watching template", zap.String("version", tmpl.Version))

	d.runWith(ctx, tmpl, TriggerStartup)

	d.wg.Add(2)
	go d.watchFileEvents(ctx)
	go d.processChanges(ctx)
	if d.config.ResyncInterval > 0 {
		d.wg.Add(1)
		go d.resync(ctx)
	}

	<-ctx.Done()
	d.logger.Info("stopping daemon")
	if err := d.watcher.Stop(); err != nil {
		d.logger.Warn("error closing watcher", zap.Error(err))
	}
	d.wg.Wait()
	return nil
}

// Template returns the template of the last run.
func (d *Daemon) Template() *schema.Template {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	return d.current
}

func (d *Daemon) runWith(ctx context.Context, tmpl *schema.Template, trigger string) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	d.current = tmpl
	d.logger.Debug("run", zap.String("trigger", trigger))
	d.run(ctx, tmpl, trigger)
}

func (d *Daemon) watchFileEvents(ctx context.Context) {
	defer d.wg.Done()

	events := d.watcher.Events()
	errs := d.watcher.Errors()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			d.logger.Debug("file event", zap.Stringer("op", event.Op))
			if event.Op == OpDelete {
				// Wait for the replacement a rename-on-save produces.
				continue
			}
			d.changeMu.Lock()
			d.changedAt = time.Now()
			d.changeMu.Unlock()

		case err, ok := <-errs:
			if !ok {
				return
			}
			d.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// processChanges runs once the file has been quiet for DebounceInterval.
func (d *Daemon) processChanges(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			d.changeMu.Lock()
			due := !d.changedAt.IsZero() && time.Since(d.changedAt) >= d.config.DebounceInterval
			if due {
				d.changedAt = time.Time{}
			}
			d.changeMu.Unlock()

			if due {
				d.reload(ctx)
			}
		}
	}
}

func (d *Daemon) reload(ctx context.Context) {
	tmpl, err := schema.Load(d.path)
	if err != nil {
		d.logger.Error("template rejected, keeping previous version", zap.Error(err))
		return
	}
	d.logger.Info("template changed", zap.String("version", tmpl.Version))
	d.runWith(ctx, tmpl, TriggerChange)
}

func (d *Daemon) resync(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if tmpl := d.Template(); tmpl != nil {
				d.runWith(ctx, tmpl, TriggerInterval)
			}
		}
	}
}
