// Package reqid implements the Fast protocol's per-connection request id
// allocator.
//
// Ids are 31-bit and must be reused after release, so this package keeps a
// monotonic-modulo-2^31 counter that skips ids still marked live, guarded
// by a single mutex so concurrent callers never race over the same id.
package reqid

import (
	"sync"

	"github.com/fastproto/fast/fasterr"
)

// maxID is 2^31-1, the largest legal 31-bit id.
const maxID = 1<<31 - 1

// Allocator issues unique, reusable 31-bit non-zero ids for one connection.
// It is safe for concurrent use.
type Allocator struct {
	mu      sync.Mutex
	next    uint32
	live    map[uint32]uint64 // id -> generation
	nextGen uint64
}

// New returns an Allocator with its candidate counter starting at 1.
func New() *Allocator {
	return &Allocator{
		next: 1,
		live: make(map[uint32]uint64),
	}
}

// Alloc returns a fresh 31-bit non-zero id distinct from any id currently
// live on this allocator, and that id's generation number. Alloc fails
// only if every id in the space is currently live.
func (a *Allocator) Alloc() (uint32, uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.next
	for {
		id := a.next
		a.advance()
		if _, inUse := a.live[id]; !inUse {
			a.nextGen++
			gen := a.nextGen
			a.live[id] = gen
			return id, gen, nil
		}
		if a.next == start {
			return 0, 0, fasterr.New(fasterr.KindConnectionErr, "IDSpaceExhausted", "no request ids available")
		}
	}
}

// advance moves the candidate counter forward, wrapping from 2^31-1 back
// to 1 (id 0 is reserved as "none").
func (a *Allocator) advance() {
	if a.next >= maxID {
		a.next = 1
	} else {
		a.next++
	}
}

// Release returns id to the pool. It is a no-op if id is not currently
// live.
func (a *Allocator) Release(id uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.live, id)
}

// Generation returns id's current generation and whether it is live.
func (a *Allocator) Generation(id uint32) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	gen, ok := a.live[id]
	return gen, ok
}

// Live reports whether id is currently allocated.
func (a *Allocator) Live(id uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.live[id]
	return ok
}

// Count returns the number of currently live ids.
func (a *Allocator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// ClaimIfAbsent registers id (for callers that receive ids already chosen
// rather than allocated locally) and reports false if it was already
// live — a collision, which callers should treat as a fatal protocol
// violation.
func (a *Allocator) ClaimIfAbsent(id uint32) (gen uint64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, inUse := a.live[id]; inUse {
		return 0, false
	}
	a.nextGen++
	gen = a.nextGen
	a.live[id] = gen
	return gen, true
}
