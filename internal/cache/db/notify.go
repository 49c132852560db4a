package db

import "sync"

// Collection names a cached record collection.
type Collection string

const (
	CollectionSubjects    Collection = "subjects"
	CollectionAssignments Collection = "assignments"
)

// Op is the kind of mutation that produced a Change.
type Op string

const (
	OpPut   Op = "put"
	OpClear Op = "clear"
)

// Change describes one committed mutation of the store.
// IDs is empty for OpClear.
type Change struct {
	Collection Collection `json:"collection"`
	Op         Op         `json:"op"`
	IDs        []int64    `json:"ids,omitempty"`
}

// subscriberBuffer bounds how far a subscriber may lag before events are dropped.
const subscriberBuffer = 32

type broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Change
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan Change)}
}

func (b *broker) subscribe() (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Change, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *broker) publish(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- c:
		default:
			// Subscriber is behind; it will catch up on the next change.
		}
	}
}

func (b *broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.closed = true
}

// Subscribe registers for change notifications. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
// The channel is also closed when the store is closed.
//
// Notifications are delivered without blocking writers: a subscriber that
// does not drain its channel misses events instead of stalling a sync.
func (db *DB) Subscribe() (<-chan Change, func()) {
	return db.broker.subscribe()
}
