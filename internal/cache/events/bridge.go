package events

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kanjideck/kanjideck/internal/cache/db"
	cachesync "github.com/kanjideck/kanjideck/internal/cache/sync"
	"github.com/kanjideck/kanjideck/internal/settings"
	"github.com/kanjideck/kanjideck/internal/study"
)

// StoreChangeData describes a committed cache mutation.
type StoreChangeData struct {
	Collection db.Collection `json:"collection"`
	Op         db.Op         `json:"op"`
	Count      int           `json:"count"`
	IDs        []int64       `json:"ids,omitempty"`
}

// ChainData summarizes one sync chain.
type ChainData struct {
	Chain    cachesync.Chain `json:"chain"`
	Pages    int             `json:"pages"`
	Records  int             `json:"records"`
	Skipped  bool            `json:"skipped,omitempty"`
	Duration time.Duration   `json:"duration"`
	Error    string          `json:"error,omitempty"`
}

// SyncCompleteData contains sync completion information.
type SyncCompleteData struct {
	Chains  []ChainData `json:"chains"`
	Records int         `json:"records"`
	Error   string      `json:"error,omitempty"`
}

// SettingsChangeData mirrors the settings without the credential.
type SettingsChangeData struct {
	HasAPIKey      bool           `json:"has_api_key"`
	Level          int            `json:"level"`
	LimitToLearned bool           `json:"limit_to_learned"`
	Sort           study.SortMode `json:"sort"`
	MarkedSort     study.SortMode `json:"marked_sort"`
}

// StatsData contains record counts.
type StatsData struct {
	Kanji          int `json:"kanji"`
	Vocabulary     int `json:"vocabulary"`
	KanaVocabulary int `json:"kana_vocabulary"`
	Assignments    int `json:"assignments"`
	Started        int `json:"started"`
	Marked         int `json:"marked"`
}

// CountSource reports cache counts.
type CountSource interface {
	Counts(ctx context.Context) (db.Counts, error)
}

// MarkSource reports the bookmarked ids.
type MarkSource interface {
	IDs() ([]int64, error)
}

// Bridge turns cache, settings, bookmark and sync events into broadcast
// messages.
type Bridge struct {
	server *Server
	counts CountSource
	marks  MarkSource
	log    logrus.FieldLogger
}

// NewBridge creates a bridge publishing to server. marks may be nil.
// The bridge installs itself as the server's welcome message source.
func NewBridge(server *Server, counts CountSource, marks MarkSource, logger logrus.FieldLogger) *Bridge {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	b := &Bridge{
		server: server,
		counts: counts,
		marks:  marks,
		log:    logger.WithField("component", "events"),
	}
	server.SetWelcome(func() Message {
		msg, err := b.statsMessage(context.Background())
		if err != nil {
			b.log.WithError(err).Warn("failed to build welcome stats")
			return Message{Type: MessageTypeStats, Timestamp: time.Now().UTC()}
		}
		return msg
	})
	return b
}

// Sources are the event streams Run follows. Nil channels are ignored.
type Sources struct {
	Store    <-chan db.Change
	Settings <-chan settings.Settings
	Marks    <-chan struct{}
}

// Run forwards events until ctx is cancelled or every source is closed.
func (b *Bridge) Run(ctx context.Context, src Sources) {
	store, prefs, marks := src.Store, src.Settings, src.Marks
	for store != nil || prefs != nil || marks != nil {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-store:
			if !ok {
				store = nil
				continue
			}
			b.OnStoreChange(ctx, c)
		case s, ok := <-prefs:
			if !ok {
				prefs = nil
				continue
			}
			b.OnSettingsChange(s)
		case _, ok := <-marks:
			if !ok {
				marks = nil
				continue
			}
			b.OnMarksChange(ctx)
		}
	}
}

// OnStoreChange broadcasts a store change followed by fresh stats.
func (b *Bridge) OnStoreChange(ctx context.Context, c db.Change) {
	b.send(MessageTypeStoreChange, StoreChangeData{
		Collection: c.Collection,
		Op:         c.Op,
		Count:      len(c.IDs),
		IDs:        c.IDs,
	})
	b.broadcastStats(ctx)
}

// OnSyncComplete broadcasts the outcome of a sync. Its signature matches
// the daemon's OnSync hook.
func (b *Bridge) OnSyncComplete(results []cachesync.Result, err error) {
	data := SyncCompleteData{Chains: make([]ChainData, 0, len(results))}
	for _, r := range results {
		cd := ChainData{
			Chain:    r.Chain,
			Pages:    r.Pages,
			Records:  r.Records,
			Skipped:  r.Skipped,
			Duration: r.Duration,
		}
		if r.Err != nil {
			cd.Error = r.Err.Error()
		}
		data.Records += r.Records
		data.Chains = append(data.Chains, cd)
	}
	if err != nil {
		data.Error = err.Error()
	}
	b.send(MessageTypeSyncComplete, data)
}

// OnSettingsChange broadcasts the new settings. The API key is never sent.
func (b *Bridge) OnSettingsChange(s settings.Settings) {
	b.send(MessageTypeSettingsChange, SettingsChangeData{
		HasAPIKey:      s.APIKey != "",
		Level:          s.Level,
		LimitToLearned: s.LimitToLearned,
		Sort:           s.Sort,
		MarkedSort:     s.MarkedSort,
	})
}

// OnMarksChange broadcasts a bookmark change followed by fresh stats.
func (b *Bridge) OnMarksChange(ctx context.Context) {
	b.send(MessageTypeMarksChange, nil)
	b.broadcastStats(ctx)
}

// Stats returns the current counts.
func (b *Bridge) Stats(ctx context.Context) (StatsData, error) {
	c, err := b.counts.Counts(ctx)
	if err != nil {
		return StatsData{}, err
	}
	stats := StatsData{
		Kanji:          c.Kanji,
		Vocabulary:     c.Vocabulary,
		KanaVocabulary: c.KanaVocabulary,
		Assignments:    c.Assignments,
		Started:        c.Started,
	}
	if b.marks != nil {
		ids, err := b.marks.IDs()
		if err != nil {
			return StatsData{}, err
		}
		stats.Marked = len(ids)
	}
	return stats, nil
}

func (b *Bridge) statsMessage(ctx context.Context) (Message, error) {
	stats, err := b.Stats(ctx)
	if err != nil {
		return Message{}, err
	}
	return NewMessage(MessageTypeStats, stats)
}

func (b *Bridge) broadcastStats(ctx context.Context) {
	msg, err := b.statsMessage(ctx)
	if err != nil {
		b.log.WithError(err).Warn("failed to compute stats")
		return
	}
	b.server.Broadcast(msg)
}

func (b *Bridge) send(typ MessageType, data any) {
	msg, err := NewMessage(typ, data)
	if err != nil {
		b.log.WithError(err).Warn("dropping message")
		return
	}
	b.server.Broadcast(msg)
}
