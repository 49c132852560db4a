package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kanjideck/kanjideck/internal/cache/daemon"
	"github.com/kanjideck/kanjideck/internal/cache/db"
	"github.com/kanjideck/kanjideck/internal/cache/events"
	"github.com/kanjideck/kanjideck/internal/marks"
	"github.com/kanjideck/kanjideck/internal/settings"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Keep the cache in sync in the background",
	Long: `Run a sync now and then every daemon.interval (default 15m).

Changing the API key or level in settings triggers an immediate sync. With
--events the daemon also serves the WebSocket event stream (see kd events).

Example usage:
  kd daemon                        # Sync every 15 minutes
  kd daemon --interval 5m --events # Sync every 5 minutes and stream events`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		withEvents, _ := cmd.Flags().GetBool("events")
		portOverride(cmd)

		store, err := openCache(ctx)
		if err != nil {
			return err
		}
		prefs, err := openSettings()
		if err != nil {
			return err
		}
		if credential(prefs)() == "" {
			log.Warn("no API key configured, syncs are skipped until one is set")
		}

		config := &daemon.Config{
			Interval: cfg.Daemon.Interval,
			Logger:   log,
		}

		if withEvents {
			m, err := openMarks()
			if err != nil {
				return err
			}
			bridge, stop, err := startEvents(ctx, store, prefs, m)
			if err != nil {
				return err
			}
			defer stop()
			config.OnSync = bridge.OnSyncComplete
		}

		d, err := daemon.New(newSyncer(store, prefs), prefs, config)
		if err != nil {
			return err
		}
		log.WithField("interval", cfg.Daemon.Interval).Info("daemon started")
		fmt.Printf("Syncing every %s. Press Ctrl+C to stop...\n", cfg.Daemon.Interval)

		err = d.Start(ctx)
		if stopErr := d.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
		fmt.Printf("Daemon stopped after %d syncs\n", d.Syncs())
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

var eventsCmd = &cobra.Command{
	Use:     "events",
	GroupID: "advanced",
	Short:   "Serve cache and settings changes over WebSocket",
	Long: `Start a WebSocket server that broadcasts cache activity.

Messages are JSON objects {type, timestamp, data} with type one of:
- store_change: subjects or assignments were written or cleared
- sync_complete: a daemon sync finished (only with kd daemon --events)
- settings_change: settings were saved (the API key itself is never sent)
- marks_change: marks were added or removed
- stats: cache counts, sent on connect and after every store change

Example usage:
  kd events                # Listen on 127.0.0.1:8787
  kd events --port 9000    # Listen on a custom port

Connect with a WebSocket client:
  ws://127.0.0.1:8787/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		portOverride(cmd)

		store, err := openCache(ctx)
		if err != nil {
			return err
		}
		prefs, err := openSettings()
		if err != nil {
			return err
		}
		m, err := openMarks()
		if err != nil {
			return err
		}

		go func() {
			if err := prefs.Watch(ctx); err != nil {
				log.WithError(err).Warn("settings watcher stopped")
			}
		}()

		_, stop, err := startEvents(ctx, store, prefs, m)
		if err != nil {
			return err
		}
		fmt.Println("Press Ctrl+C to stop...")
		<-ctx.Done()

		fmt.Println("\nShutting down event server...")
		return stop()
	},
}

// portOverride applies --port, which two commands share and so cannot be
// bound to a single viper key.
func portOverride(cmd *cobra.Command) {
	if cmd.Flags().Changed("port") {
		cfg.Events.Port, _ = cmd.Flags().GetInt("port")
	}
}

// startEvents starts the event server and a bridge following store, prefs
// and m. The returned stop function shuts both down.
func startEvents(ctx context.Context, store *db.DB, prefs *settings.Store, m *marks.Store) (*events.Bridge, func() error, error) {
	server := events.NewServer(&events.Config{
		Host:   cfg.Events.Host,
		Port:   cfg.Events.Port,
		Logger: log,
	})
	if err := server.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start event server: %w", err)
	}

	bridge := events.NewBridge(server, store, m, log)

	storeChanges, unsubscribeStore := store.Subscribe()
	prefChanges, unsubscribePrefs := prefs.Subscribe()
	markChanges, unsubscribeMarks := m.Subscribe()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		bridge.Run(runCtx, events.Sources{
			Store:    storeChanges,
			Settings: prefChanges,
			Marks:    markChanges,
		})
	}()

	addr := server.Addr()
	fmt.Printf("Event server started on http://%s\n", addr)
	fmt.Printf("WebSocket endpoint: ws://%s/ws\n", addr)
	fmt.Printf("Health check: http://%s/health\n", addr)

	stop := func() error {
		cancel()
		unsubscribeStore()
		unsubscribePrefs()
		unsubscribeMarks()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
		return server.Stop()
	}
	return bridge, stop, nil
}

func init() {
	daemonCmd.Flags().Duration("interval", 15*time.Minute, "time between syncs")
	daemonCmd.Flags().Bool("events", false, "also serve the WebSocket event stream")
	for _, c := range []*cobra.Command{daemonCmd, eventsCmd} {
		c.Flags().IntP("port", "p", 8787, "event server port")
	}
	bindFlagToViper("daemon.interval", daemonCmd.Flags().Lookup("interval"))

	rootCmd.AddCommand(daemonCmd, eventsCmd)
}

var _ daemon.SettingsSource = (*settings.Store)(nil)
