package ports

import (
	"context"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

// ProbeCompleteFunc is invoked once when node reaches a terminal probe
// state (spec §4.E, "Completion notifier").
type ProbeCompleteFunc func(node domain.NodeID, final domain.NodeState)

// ResourceDirectory is component E (spec §4.E): the per-node interview
// FSM, probe lock, alive/failing tracking and completion notifiers.
type ResourceDirectory interface {
	// AddNode creates (or resets) a node's entry and kicks off the probe
	// FSM. It does not take the probe lock; callers that need it hold
	// it themselves via AcquireProbeLock.
	AddNode(ctx context.Context, node domain.NodeID, addedByMe bool) error

	// RemoveNode deletes a node's entry (and its refcounted resources).
	RemoveNode(ctx context.Context, node domain.NodeID) error

	// Get returns a copy of a node's current entry.
	Get(node domain.NodeID) (domain.NodeEntry, bool)

	// All returns copies of every node entry, ordered by node id.
	All() []domain.NodeEntry

	// NodeIsAlive clears Failing and refreshes LastAwake.
	NodeIsAlive(node domain.NodeID)

	// NodeIsUnreachable marks node Failing if it is currently Done; in
	// any other state it is left unchanged.
	NodeIsUnreachable(node domain.NodeID)

	// NotifyOnDone registers cb to fire once when node reaches a
	// terminal probe state; returns false if the notifier pool (spec
	// §5: 3 slots) is exhausted.
	NotifyOnDone(node domain.NodeID, cb ProbeCompleteFunc) bool

	// ProbeLocked reports whether the probe lock is currently held.
	ProbeLocked() bool

	// AcquireProbeLock acquires the single-writer probe lock, typically
	// held by the NMS across an inclusion/learn-mode operation.
	AcquireProbeLock() bool

	// ReleaseProbeLock releases the lock. It only clears the flag: probe
	// walks do not pause while the lock is held, so there is nothing for
	// the release to resume.
	ReleaseProbeLock()
}
