// Package dispatch implements component H (spec §4.H): the static
// command-class handler table, minimum-scheme enforcement, the
// multicast handler allowlist, and the over-RF network-management
// rejection rule.
package dispatch

import (
	"log/slog"
	"sync"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
)

// Table implements ports.Dispatcher.
type Table struct {
	log *slog.Logger

	mu      sync.RWMutex
	byClass map[byte]ports.HandlerEntry
}

// New constructs an empty dispatch table.
func New(log *slog.Logger) *Table {
	return &Table{log: log, byClass: make(map[byte]ports.HandlerEntry)}
}

func (t *Table) Register(entry ports.HandlerEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byClass[entry.Class] = entry
}

// Dispatch implements ports.Dispatcher's rules (spec §4.H):
//  1. Network-management classes are rejected outright when they arrive
//     over the radio at endpoint 0 - the IP side is their only valid
//     transport.
//  2. A multicast/broadcast frame is only delivered to handlers that
//     opted into AllowMulticast.
//  3. A frame whose connection scheme is weaker than the handler's
//     MinimalScheme is rejected as NotSupported, never silently
//     downgraded.
func (t *Table) Dispatch(conn domain.ZWaveConnection, frame domain.Frame, origin ports.Origin, multicast bool) ports.HandlerResult {
	t.mu.RLock()
	entry, ok := t.byClass[frame.Class()]
	t.mu.RUnlock()
	if !ok {
		return ports.ClassNotSupported
	}

	if entry.NetworkMgmt && origin == ports.OriginRadio && conn.LEndpoint == 0 {
		t.log.Warn("rejected network-management class received over radio", "class", frame.Class())
		return ports.NotSupported
	}
	if multicast && !entry.AllowMulticast {
		return ports.NotSupported
	}
	if conn.Scheme < entry.MinimalScheme {
		return ports.NotSupported
	}

	return entry.Handler(conn, frame, origin)
}
