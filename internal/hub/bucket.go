package hub

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

// ErrEvicted is returned to attachers waiting on a bucket whose hydration failed.
var ErrEvicted = errors.New("hub: bucket evicted")

// IDSet is a set of user ids.
type IDSet map[uint]struct{}

func newIDSet(ids []uint) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id uint)    { s[id] = struct{}{} }
func (s IDSet) Remove(id uint) { delete(s, id) }

func (s IDSet) Has(id uint) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the ids in ascending order.
func (s IDSet) Slice() []uint {
	out := make([]uint, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Sets are the cached relationship id-sets of one user.
type Sets struct {
	Friends  IDSet
	Incoming IDSet
	Outgoing IDSet
	Blocked  IDSet
}

func newSets(snap Snapshot) Sets {
	return Sets{
		Friends:  newIDSet(snap.Friends),
		Incoming: newIDSet(snap.Incoming),
		Outgoing: newIDSet(snap.Outgoing),
		Blocked:  newIDSet(snap.Blocked),
	}
}

// Bucket is the in-memory presence of one user: their live connections and a
// mirror of their relationship rows. It is never the system of record.
type Bucket struct {
	UserID uint

	mu       sync.RWMutex
	conns    map[string]Conn
	sets     Sets
	status   Status
	hydrated bool
	evicted  bool
	pending  []func(*Sets)
	err      error
	ready    chan struct{}
}

func newBucket(userID uint) *Bucket {
	return &Bucket{
		UserID: userID,
		conns:  make(map[string]Conn),
		sets:   newSets(Snapshot{}),
		status: StatusOnline,
		ready:  make(chan struct{}),
	}
}

// load installs the snapshot and replays updates that arrived while it was loading.
func (b *Bucket) load(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sets = newSets(snap)
	for _, fn := range b.pending {
		fn(&b.sets)
	}
	b.pending = nil
	b.hydrated = true
	close(b.ready)
}

func (b *Bucket) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.err = err
	b.evicted = true
	b.pending = nil
	close(b.ready)
}

func (b *Bucket) evict() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evicted = true
}

func (b *Bucket) wait(ctx context.Context) error {
	select {
	case <-b.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.err != nil {
		return b.err
	}
	if b.evicted {
		return ErrEvicted
	}
	return nil
}

// Hydrated reports whether the cached sets reflect the relationship store. Reads on
// a bucket that is still hydrating see empty sets.
func (b *Bucket) Hydrated() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hydrated && !b.evicted
}

// Update applies fn to the cached sets. While the bucket is hydrating, fn is queued
// and replayed on top of the snapshot; on an evicted bucket it is dropped.
func (b *Bucket) Update(fn func(*Sets)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.evicted:
	case !b.hydrated:
		b.pending = append(b.pending, fn)
	default:
		fn(&b.sets)
	}
}

func (b *Bucket) has(pick func(*Sets) IDSet, id uint) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return pick(&b.sets).Has(id)
}

func (b *Bucket) IsFriend(id uint) bool {
	return b.has(func(s *Sets) IDSet { return s.Friends }, id)
}

// HasIncoming reports a pending request from id.
func (b *Bucket) HasIncoming(id uint) bool {
	return b.has(func(s *Sets) IDSet { return s.Incoming }, id)
}

// HasOutgoing reports a pending request to id.
func (b *Bucket) HasOutgoing(id uint) bool {
	return b.has(func(s *Sets) IDSet { return s.Outgoing }, id)
}

// HasBlocked reports that this user blocked id.
func (b *Bucket) HasBlocked(id uint) bool {
	return b.has(func(s *Sets) IDSet { return s.Blocked }, id)
}

// Snapshot copies the cached sets.
func (b *Bucket) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		Friends:  b.sets.Friends.Slice(),
		Incoming: b.sets.Incoming.Slice(),
		Outgoing: b.sets.Outgoing.Slice(),
		Blocked:  b.sets.Blocked.Slice(),
	}
}

func (b *Bucket) Friends() []uint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sets.Friends.Slice()
}

func (b *Bucket) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *Bucket) setStatus(s Status) (changed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed = b.status != s
	b.status = s
	return changed
}

// Conns returns the live connections ordered by id.
func (b *Bucket) Conns() []Conn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Conn, 0, len(b.conns))
	for _, c := range b.conns {
		out = append(out, c)
	}
	slices.SortFunc(out, func(x, y Conn) int { return strings.Compare(x.ID(), y.ID()) })
	return out
}

func (b *Bucket) ConnCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

func (b *Bucket) addConn(c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[c.ID()] = c
}

func (b *Bucket) removeConn(id string) (removed bool, remaining int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.conns[id]; !ok {
		return false, len(b.conns)
	}
	delete(b.conns, id)
	return true, len(b.conns)
}
