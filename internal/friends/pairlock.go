package friends

import "sync"

type pairKey struct{ lo, hi uint }

func keyOf(a, b uint) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

// pairLocks serializes relationship changes per unordered pair of users. Entries
// are reference counted and dropped once no caller holds or waits on them.
type pairLocks struct {
	mu    sync.Mutex
	locks map[pairKey]*pairLock
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[pairKey]*pairLock)}
}

// Lock blocks until the caller owns the pair (a, b) and returns the release func.
func (p *pairLocks) Lock(a, b uint) (unlock func()) {
	k := keyOf(a, b)

	p.mu.Lock()
	l, ok := p.locks[k]
	if !ok {
		l = &pairLock{}
		p.locks[k] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, k)
		}
		p.mu.Unlock()
	}
}

func (p *pairLocks) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
