package security

import (
	"sync"
	"time"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/zwerr"
)

// txPool is the fixed-size pool of outstanding S0 transmit sessions
// (spec §3/§5: domain.MaxTxSessions, at most one session per (src,dst)).
type txPool struct {
	mu    sync.Mutex
	slots map[domain.SessionKey]*domain.TxSession
}

func newTxPool() *txPool {
	return &txPool{slots: make(map[domain.SessionKey]*domain.TxSession)}
}

// Alloc reserves a session for key, or returns ErrBusy if one is already
// outstanding, or ErrPoolExhausted if all MaxTxSessions slots are taken.
func (p *txPool) Alloc(key domain.SessionKey, s *domain.TxSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.slots[key]; exists {
		return zwerr.ErrBusy
	}
	if len(p.slots) >= domain.MaxTxSessions {
		return zwerr.ErrPoolExhausted
	}
	p.slots[key] = s
	return nil
}

func (p *txPool) Get(key domain.SessionKey) (*domain.TxSession, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[key]
	return s, ok
}

func (p *txPool) Free(key domain.SessionKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.slots, key)
}

// rxPool holds at most domain.MaxRxSessions partially-reassembled
// two-segment messages, keyed by (src,dst). Stale entries are reclaimed
// lazily on the next allocation that needs the room (spec §4.B "session
// lifecycle").
type rxPool struct {
	mu    sync.Mutex
	slots map[domain.SessionKey]*domain.RxSession
}

func newRxPool() *rxPool {
	return &rxPool{slots: make(map[domain.SessionKey]*domain.RxSession)}
}

func (p *rxPool) Get(key domain.SessionKey) (*domain.RxSession, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[key]
	return s, ok
}

// Start creates (or overwrites) the RX session buffering the first
// fragment of a two-part message. If the pool is full it first evicts
// the oldest-expiring entry rather than refusing the new one - a stuck
// peer must not permanently deny reassembly to every other node.
func (p *rxPool) Start(key domain.SessionKey, s *domain.RxSession, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.slots[key]; !exists && len(p.slots) >= domain.MaxRxSessions {
		p.evictOldestLocked()
	}
	p.slots[key] = s
}

func (p *rxPool) Finish(key domain.SessionKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.slots, key)
}

func (p *rxPool) evictOldestLocked() {
	var oldestKey domain.SessionKey
	var oldest time.Time
	first := true
	for k, s := range p.slots {
		if first || s.ExpiresAt.Before(oldest) {
			oldestKey, oldest, first = k, s.ExpiresAt, false
		}
	}
	if !first {
		delete(p.slots, oldestKey)
	}
}

// GC drops every RX session that has outlived FragmentGapTimeout without
// its second fragment arriving.
func (p *rxPool) GC(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, s := range p.slots {
		if s.Expired(now) {
			delete(p.slots, k)
		}
	}
}
