// Package daemon keeps the local cache fresh in the background.
//
// The daemon runs a full sync when it starts, then repeats it on a fixed
// interval with gocron. It also follows the settings store: when the learner
// changes the API key or level, a sync is triggered straight away instead of
// waiting for the next tick.
//
//	d, err := daemon.New(syncer, settingsStore, &daemon.Config{
//	    Interval: 15 * time.Minute,
//	    Logger:   logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return d.Start(ctx) // blocks until ctx is cancelled
//
// A sync that is running when the daemon stops is allowed to finish; there is
// no cancellation of in-flight syncs. Triggers that arrive while a sync is
// running are coalesced into a single follow-up sync.
package daemon
