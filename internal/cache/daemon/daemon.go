package daemon

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	cachesync "github.com/kanjideck/kanjideck/internal/cache/sync"
	"github.com/kanjideck/kanjideck/internal/settings"
)

// SettingsSource is the part of the settings store the daemon follows.
type SettingsSource interface {
	Get() settings.Settings
	Subscribe() (<-chan settings.Settings, func())
	Watch(ctx context.Context) error
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval is the time between periodic syncs.
	Interval time.Duration

	// OnSync is called after every sync with its results. It runs on the
	// sync goroutine and should return quickly.
	OnSync func(results []cachesync.Result, err error)

	// Logger for daemon activity.
	Logger logrus.FieldLogger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 15 * time.Minute,
	}
}

// Daemon orchestrates periodic and settings-triggered syncs.
type Daemon struct {
	syncer   cachesync.Syncer
	settings SettingsSource
	config   *Config
	log      logrus.FieldLogger

	scheduler *gocron.Scheduler
	syncMu    sync.Mutex // held while a sync runs
	pending   atomic.Bool
	syncs     atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon. settingsSrc may be nil, in which case only the
// periodic schedule triggers syncs.
func New(syncer cachesync.Syncer, settingsSrc SettingsSource, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive (got %s)", config.Interval)
	}

	logger := config.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		syncer:    syncer,
		settings:  settingsSrc,
		config:    config,
		log:       logger.WithField("component", "daemon"),
		scheduler: gocron.NewScheduler(time.UTC),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start runs an initial sync, schedules the periodic one and follows the
// settings. It blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.log.WithField("interval", d.config.Interval).Info("starting daemon")

	if _, err := d.scheduler.Every(d.config.Interval).WaitForSchedule().Do(d.trigger, "schedule"); err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}
	d.scheduler.StartAsync()

	if d.settings != nil {
		changes, unsubscribe := d.settings.Subscribe()
		d.wg.Add(2)
		go d.watchSettingsFile()
		go d.followSettings(changes, unsubscribe)
	}

	d.trigger("startup")

	select {
	case <-ctx.Done():
		d.log.Info("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for a running sync to finish.
// It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.log.Info("stopping daemon")
		d.cancel()
		d.scheduler.Stop()
		d.wg.Wait()
		// Let a running sync finish.
		d.syncMu.Lock()
		d.syncMu.Unlock()
		d.log.Info("daemon stopped")
	})
	return nil
}

// Syncs returns the number of syncs the daemon has run.
func (d *Daemon) Syncs() int64 {
	return d.syncs.Load()
}

// trigger runs SyncAll. A trigger that arrives while a sync is running is
// folded into one follow-up run by the goroutine holding syncMu.
func (d *Daemon) trigger(reason string) {
	d.pending.Store(true)
	for d.pending.Load() {
		if !d.syncMu.TryLock() {
			d.log.WithField("reason", reason).Debug("sync already running, queued")
			return
		}
		if !d.pending.CompareAndSwap(true, false) {
			d.syncMu.Unlock()
			return
		}
		d.runSync(reason)
		d.syncMu.Unlock()
		reason = "queued"
	}
}

func (d *Daemon) runSync(reason string) {
	if d.ctx.Err() != nil {
		return
	}

	log := d.log.WithField("reason", reason)
	log.Debug("sync started")

	// In-flight syncs are not cancelled by Stop.
	results, err := d.syncer.SyncAll(context.WithoutCancel(d.ctx))
	d.syncs.Add(1)

	records := 0
	for _, r := range results {
		records += r.Records
	}
	if err != nil {
		log.WithError(err).Warn("sync finished with errors")
	} else {
		log.WithField("records", records).Info("sync complete")
	}

	if d.config.OnSync != nil {
		d.config.OnSync(results, err)
	}
}

func (d *Daemon) watchSettingsFile() {
	defer d.wg.Done()
	if err := d.settings.Watch(d.ctx); err != nil {
		d.log.WithError(err).Warn("settings watcher stopped")
	}
}

// followSettings triggers a sync when the credential or level changes.
func (d *Daemon) followSettings(changes <-chan settings.Settings, unsubscribe func()) {
	defer d.wg.Done()
	defer unsubscribe()

	last := d.settings.Get()
	for {
		select {
		case <-d.ctx.Done():
			return
		case next, ok := <-changes:
			if !ok {
				return
			}
			if next.APIKey == last.APIKey && next.Level == last.Level {
				last = next
				continue
			}
			last = next
			// Run on its own goroutine so later changes keep being drained.
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.trigger("settings")
			}()
		}
	}
}
