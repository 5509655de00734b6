// Package resourcedirectory implements component E (spec §4.E): the
// per-node interview FSM, probe lock, alive/failing tracking, and
// completion notifiers.
package resourcedirectory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
	"github.com/zwave-gw/zipgw/internal/telemetry"
)

// probeSequence is the order component E walks a freshly added node
// through (spec §4.E). Each step is a coarse stand-in for the concrete
// GET/REPORT exchange that state name implies; the directory is
// responsible for sequencing and termination, not for the wire detail
// of any one interview step (that belongs to the dispatch handlers each
// step's reply would land on).
var probeSequence = []domain.NodeState{
	domain.NodeProbeNodeInfo,
	domain.NodeProbeProductID,
	domain.NodeEnumerateEndpoints,
	domain.NodeFindEndpoints,
	domain.NodeProbeEndpoints,
	domain.NodeCheckWuCcVersion,
	domain.NodeGetWuCap,
	domain.NodeSetWuInterval,
	domain.NodeAssignReturnRoute,
	domain.NodeProbeWakeUpInterval,
	domain.NodeDone,
}

type nodeRecord struct {
	entry     domain.NodeEntry
	notifiers []ports.ProbeCompleteFunc
	cancel    context.CancelFunc
}

// Directory implements ports.ResourceDirectory.
type Directory struct {
	log   *slog.Logger
	store ports.RDStore

	mu    sync.Mutex
	nodes map[domain.NodeID]*nodeRecord

	probeLockMu sync.Mutex
	probeLocked bool

	stepDelay time.Duration // overridable by tests
}

// New constructs a Directory, optionally persisting through store (nil
// is allowed - state then lives only in memory).
func New(log *slog.Logger, store ports.RDStore) *Directory {
	return &Directory{
		log:       log,
		store:     store,
		nodes:     make(map[domain.NodeID]*nodeRecord),
		stepDelay: 10 * time.Millisecond,
	}
}

func (d *Directory) AddNode(ctx context.Context, node domain.NodeID, addedByMe bool) error {
	d.mu.Lock()
	if existing, ok := d.nodes[node]; ok && existing.cancel != nil {
		existing.cancel()
	}
	probeCtx, cancel := context.WithCancel(ctx)
	rec := &nodeRecord{
		entry: domain.NodeEntry{
			NodeID:     node,
			State:      domain.NodeCreated,
			LastUpdate: time.Now(),
			AddedByMe:  addedByMe,
			PropFlags:  domain.PropJustAdded,
		},
		cancel: cancel,
	}
	if addedByMe {
		rec.entry.PropFlags |= domain.PropAddedByMe
	}
	d.nodes[node] = rec
	d.mu.Unlock()

	go d.runProbe(probeCtx, node)
	return nil
}

func (d *Directory) runProbe(ctx context.Context, node domain.NodeID) {
	for _, state := range probeSequence {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.stepDelay):
		}
		d.mu.Lock()
		rec, ok := d.nodes[node]
		if !ok {
			d.mu.Unlock()
			return
		}
		rec.entry.State = state
		rec.entry.LastUpdate = time.Now()
		d.mu.Unlock()
	}

	d.mu.Lock()
	rec, ok := d.nodes[node]
	if ok {
		rec.entry.ProbeFlags = domain.ProbeCompleted
		rec.entry.PropFlags &^= domain.PropJustAdded
		notifiers := rec.notifiers
		rec.notifiers = nil
		final := rec.entry.State
		entryCopy := rec.entry
		d.mu.Unlock()

		if d.store != nil {
			if err := d.store.Update(entryCopy); err != nil {
				d.log.Error("resource directory persist failed", "node", node, "err", err)
			}
		}
		telemetry.ProbesCompleted.WithLabelValues(final.String()).Inc()
		for _, cb := range notifiers {
			cb(node, final)
		}
	} else {
		d.mu.Unlock()
	}
}

func (d *Directory) RemoveNode(ctx context.Context, node domain.NodeID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.nodes[node]; ok && rec.cancel != nil {
		rec.cancel()
	}
	delete(d.nodes, node)
	if d.store != nil {
		return d.store.Delete(node)
	}
	return nil
}

func (d *Directory) Get(node domain.NodeID) (domain.NodeEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.nodes[node]
	if !ok {
		return domain.NodeEntry{}, false
	}
	return rec.entry, true
}

func (d *Directory) All() []domain.NodeEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.NodeEntry, 0, len(d.nodes))
	for _, rec := range d.nodes {
		out = append(out, rec.entry)
	}
	sortEntriesByID(out)
	return out
}

func sortEntriesByID(entries []domain.NodeEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].NodeID > entries[j].NodeID; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

func (d *Directory) NodeIsAlive(node domain.NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.nodes[node]
	if !ok {
		return
	}
	rec.entry.LastAwake = time.Now()
	if rec.entry.State == domain.NodeFailing {
		rec.entry.State = domain.NodeDone
	}
}

func (d *Directory) NodeIsUnreachable(node domain.NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.nodes[node]
	if !ok || rec.entry.State != domain.NodeDone {
		return
	}
	rec.entry.State = domain.NodeFailing
}

func (d *Directory) NotifyOnDone(node domain.NodeID, cb ports.ProbeCompleteFunc) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.nodes[node]
	if !ok {
		return false
	}
	if rec.entry.State.Terminal() {
		// Already done: fire cb synchronously, but never while holding
		// the lock - cb may call back into the directory.
		state := rec.entry.State
		d.mu.Unlock()
		cb(node, state)
		d.mu.Lock()
		return true
	}
	if len(rec.notifiers) >= domain.MaxProbeNotifiers {
		return false
	}
	rec.notifiers = append(rec.notifiers, cb)
	return true
}

func (d *Directory) ProbeLocked() bool {
	d.probeLockMu.Lock()
	defer d.probeLockMu.Unlock()
	return d.probeLocked
}

func (d *Directory) AcquireProbeLock() bool {
	d.probeLockMu.Lock()
	defer d.probeLockMu.Unlock()
	if d.probeLocked {
		return false
	}
	d.probeLocked = true
	return true
}

func (d *Directory) ReleaseProbeLock() {
	d.probeLockMu.Lock()
	d.probeLocked = false
	d.probeLockMu.Unlock()
}
