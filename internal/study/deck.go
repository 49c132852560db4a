package study

import (
	"context"
	"slices"
	"sync"

	"github.com/kanjideck/kanjideck/internal/cache/db"
)

// Snapshot is a read-only copy of a deck's presentation state.
type Snapshot struct {
	Query   Query
	Items   []Item
	Loading bool
	Err     error
	Index   int
}

// Empty reports a finished load that found nothing. This is distinct from
// both Loading and an error.
func (s Snapshot) Empty() bool {
	return !s.Loading && s.Err == nil && len(s.Items) == 0
}

// Current returns the item under the cursor.
func (s Snapshot) Current() (Item, bool) {
	if s.Index < 0 || s.Index >= len(s.Items) {
		return Item{}, false
	}
	return s.Items[s.Index], true
}

// Deck holds the selected items and the cursor for one study view.
type Deck struct {
	sel     *Selector
	query   func() Query
	session *Session

	// reloadMu orders reloads so the last one started is the last applied.
	reloadMu sync.Mutex

	mu       sync.RWMutex
	snap     Snapshot
	onUpdate []func(Snapshot)
}

// NewDeck creates a deck in the loading state. query is called on every
// Reload so setting changes apply to the next load.
func NewDeck(sel *Selector, query func() Query, session *Session) *Deck {
	if session == nil {
		session = NewSession()
	}
	return &Deck{
		sel:     sel,
		query:   query,
		session: session,
		snap:    Snapshot{Loading: true},
	}
}

// Session returns the deck's answer session.
func (d *Deck) Session() *Session {
	return d.session
}

// OnUpdate registers fn to be called with a fresh snapshot after every
// reload or cursor move.
func (d *Deck) OnUpdate(fn func(Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUpdate = append(d.onUpdate, fn)
}

// Reload re-runs the query and resets the session.
//
// The cursor stays on the same subject when it is still in the deck, and
// returns to the first item otherwise. The error is also kept in the
// snapshot for display. Concurrent calls run one at a time, each reading
// the query when its turn comes.
func (d *Deck) Reload(ctx context.Context) error {
	d.reloadMu.Lock()
	q := d.query()
	items, err := d.sel.Select(ctx, q)

	d.mu.Lock()
	var currentID int64
	if cur, ok := d.snap.Current(); ok {
		currentID = cur.ID()
	}

	d.snap = Snapshot{Query: q, Items: items, Loading: false, Err: err}
	for i, it := range items {
		if it.ID() == currentID {
			d.snap.Index = i
			break
		}
	}
	d.session.Reset()
	d.mu.Unlock()
	d.reloadMu.Unlock()

	d.notify()
	return err
}

// Snapshot returns a copy of the current state.
func (d *Deck) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.copyLocked()
}

func (d *Deck) copyLocked() Snapshot {
	s := d.snap
	s.Items = slices.Clone(d.snap.Items)
	s.Query.MarkedIDs = slices.Clone(d.snap.Query.MarkedIDs)
	return s
}

// Next moves the cursor forward. It reports false at the end of the deck.
func (d *Deck) Next() bool {
	return d.move(1)
}

// Prev moves the cursor back. It reports false at the start of the deck.
func (d *Deck) Prev() bool {
	return d.move(-1)
}

// Jump moves the cursor to index i.
func (d *Deck) Jump(i int) bool {
	d.mu.Lock()
	if i < 0 || i >= len(d.snap.Items) {
		d.mu.Unlock()
		return false
	}
	d.snap.Index = i
	d.mu.Unlock()

	d.notify()
	return true
}

func (d *Deck) move(delta int) bool {
	d.mu.Lock()
	next := d.snap.Index + delta
	if next < 0 || next >= len(d.snap.Items) {
		d.mu.Unlock()
		return false
	}
	d.snap.Index = next
	d.mu.Unlock()

	d.notify()
	return true
}

func (d *Deck) notify() {
	d.mu.RLock()
	snap := d.copyLocked()
	fns := slices.Clone(d.onUpdate)
	d.mu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Follow reloads the deck whenever the cache reports a change, until ctx is
// done or changes is closed. Bursts of changes (one per synced page) are
// coalesced into a single reload.
func (d *Deck) Follow(ctx context.Context, changes <-chan db.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case _, ok := <-changes:
					if !ok {
						break drain
					}
				default:
					break drain
				}
			}
			_ = d.Reload(ctx)
		}
	}
}
