package security

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

// NonceTable is the global nonce store (spec §3 "Nonce table", §4.B).
// It is guarded with a mutex because the security engine registers,
// looks up and clears nonces from HandleInbound, which may be called
// from more than one goroutine at once.
type NonceTable struct {
	mu        sync.Mutex
	entries   []domain.Nonce
	blacklist map[domain.NodeID][]domain.Nonce8 // keyed by source, ring buffer
}

// NewNonceTable constructs an empty table.
func NewNonceTable() *NonceTable {
	return &NonceTable{
		blacklist: make(map[domain.NodeID][]domain.Nonce8),
	}
}

// liveCountLocked counts non-expired nonces registered from src toward
// dst, not counting whether they are "mine".
func (t *NonceTable) liveCountLocked(src, dst domain.NodeID, now time.Time) int {
	n := 0
	for _, e := range t.entries {
		if e.Src == src && e.Dst == dst && !e.Expired(now) {
			n++
		}
	}
	return n
}

// RegisterNonce inserts a nonce from src to dst. It refuses to register
// (returning false) if three live nonces already exist for the pair
// (spec §3 invariant, §4.B "further NONCE_GETs ... are ignored").
func (t *NonceTable) RegisterNonce(src, dst domain.NodeID, mine bool, value domain.Nonce8, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gcLocked(now)
	if t.liveCountLocked(src, dst, now) >= domain.MaxOutstandingNonces {
		return false
	}
	t.entries = append(t.entries, domain.Nonce{
		Src: src, Dst: dst, Mine: mine, Value: value,
		Expiry: now.Add(domain.NonceTTL),
	})
	return true
}

// GetNonce returns the first live nonce matching (src,dst,ri), optionally
// restricted to mine==true. It does NOT clear the entry - callers call
// ClearNonce once the nonce has actually been consumed (spec §4.B).
func (t *NonceTable) GetNonce(src, dst domain.NodeID, ri byte, mineOnly bool, now time.Time) (domain.Nonce8, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.Src != src || e.Dst != dst || e.Expired(now) {
			continue
		}
		if mineOnly && !e.Mine {
			continue
		}
		if e.Value.RI() == ri {
			return e.Value, true
		}
	}
	return domain.Nonce8{}, false
}

// ClearNonce removes the entry for (src,dst) matching value's RI.
func (t *NonceTable) ClearNonce(src, dst domain.NodeID, value domain.Nonce8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e.Src == src && e.Dst == dst && e.Value.RI() == value.RI() {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

func (t *NonceTable) gcLocked(now time.Time) {
	live := t.entries[:0]
	for _, e := range t.entries {
		if !e.Expired(now) {
			live = append(live, e)
		}
	}
	t.entries = live
}

// GenerateFreshNonce returns 8 random bytes whose first byte (the RI)
// does not collide with any currently-live nonce's RI for the pair -
// spec §4.B step 4, "disjoint from any live nonce first-byte".
func (t *NonceTable) GenerateFreshNonce(src, dst domain.NodeID, now time.Time) (domain.Nonce8, error) {
	t.mu.Lock()
	used := make(map[byte]bool)
	for _, e := range t.entries {
		if e.Src == src && e.Dst == dst && !e.Expired(now) {
			used[e.Value.RI()] = true
		}
	}
	t.mu.Unlock()

	for attempt := 0; attempt < 64; attempt++ {
		var n domain.Nonce8
		if _, err := rand.Read(n[:]); err != nil {
			return domain.Nonce8{}, err
		}
		if !used[n.RI()] {
			return n, nil
		}
	}
	// Exhausted the retry budget (RI space collision storm); return one
	// more random value, without the collision check, rather than loop
	// forever.
	var n domain.Nonce8
	_, err := rand.Read(n[:])
	return n, err
}

// SeenBefore checks src's duplicate-nonce ring buffer and, if value is
// new, records it. Returns true if value was already present (the
// caller must silently drop the frame - spec §3 "Nonce blacklist").
func (t *NonceTable) SeenBefore(src domain.NodeID, value domain.Nonce8) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ring := t.blacklist[src]
	for _, v := range ring {
		if v == value {
			return true
		}
	}
	ring = append(ring, value)
	if len(ring) > domain.BlacklistSize {
		ring = ring[len(ring)-domain.BlacklistSize:]
	}
	t.blacklist[src] = ring
	return false
}
