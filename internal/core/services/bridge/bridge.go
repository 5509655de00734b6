// Package bridge implements component F (spec §4.F): the virtual-node
// pool, IP/temporary associations, and IP-address<->node-id resolution.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
	"github.com/zwave-gw/zipgw/internal/zwerr"
)

// Bridge implements ports.Bridge.
type Bridge struct {
	log   *slog.Logger
	radio ports.RadioDriver
	store ports.AssociationStore

	mu           sync.RWMutex
	state        domain.BridgeState
	virtualNodes []domain.NodeID
	ipAssocs     map[domain.NodeID]domain.IPAssociation
	tempAssocs   map[domain.TempAssociationKey]*domain.TempAssociation
	resolveTable map[[16]byte]domain.NodeID
}

// New constructs a Bridge. Init must be called once before use.
func New(log *slog.Logger, radio ports.RadioDriver, store ports.AssociationStore) *Bridge {
	return &Bridge{
		log:          log,
		radio:        radio,
		store:        store,
		ipAssocs:     make(map[domain.NodeID]domain.IPAssociation),
		tempAssocs:   make(map[domain.TempAssociationKey]*domain.TempAssociation),
		resolveTable: make(map[[16]byte]domain.NodeID),
	}
}

// Init implements ports.Bridge: loads persisted state, then allocates
// virtual nodes up to the persisted count (spec §4.F, retry-bounded by
// domain.MaxVirtualNodeAllocRetries). Persisted entries that are not
// valid node ids are dropped and replaced by fresh allocations.
func (b *Bridge) Init(ctx context.Context) error {
	var wantVirtualNodes int
	if b.store != nil {
		assocs, err := b.store.LoadIPAssociations()
		if err != nil {
			b.setState(domain.BridgeInitFail)
			return err
		}
		nodes, err := b.store.LoadVirtualNodes()
		if err != nil {
			b.setState(domain.BridgeInitFail)
			return err
		}
		b.mu.Lock()
		for _, a := range assocs {
			b.ipAssocs[a.VirtualID] = a
			b.resolveTable[a.ResourceIP6] = a.HanNode
		}
		for _, node := range nodes {
			if node.Valid() {
				b.virtualNodes = append(b.virtualNodes, node)
			}
		}
		wantVirtualNodes = len(nodes)
		b.mu.Unlock()
	}

	for len(b.virtualNodes) < wantVirtualNodes {
		if err := b.allocateVirtualNode(ctx); err != nil {
			b.setState(domain.BridgeInitFail)
			return err
		}
	}

	b.setState(domain.BridgeInitialized)
	return nil
}

func (b *Bridge) allocateVirtualNode(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < domain.MaxVirtualNodeAllocRetries; attempt++ {
		node, err := b.radio.SetSlaveLearnMode(ctx)
		if err == nil {
			b.mu.Lock()
			b.virtualNodes = append(b.virtualNodes, node)
			b.mu.Unlock()
			if b.store != nil {
				if err := b.store.SaveVirtualNodes(b.virtualNodesCopy()); err != nil {
					b.log.Error("failed to persist virtual node allocation", "err", err)
				}
			}
			time.Sleep(domain.VirtualNodeAllocCooldown)
			return nil
		}
		lastErr = err
		b.log.Warn("virtual node allocation attempt failed", "attempt", attempt, "err", err)
	}
	return zwerr.Wrap(zwerr.KindPoolExhausted, lastErr)
}

func (b *Bridge) virtualNodesCopy() []domain.NodeID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.NodeID, len(b.virtualNodes))
	copy(out, b.virtualNodes)
	return out
}

func (b *Bridge) setState(s domain.BridgeState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *Bridge) State() domain.BridgeState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Bridge) ResolveDestination(addr [16]byte) (domain.NodeID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	node, ok := b.resolveTable[addr]
	return node, ok
}

func (b *Bridge) TempAssociationFor(key domain.TempAssociationKey) (domain.TempAssociation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.tempAssocs[key]; ok {
		existing.LastUsed = time.Now()
		return *existing, nil
	}

	if len(b.virtualNodes) == 0 {
		return domain.TempAssociation{}, zwerr.ErrPoolExhausted
	}
	// Round-robin over the virtual node pool by temp-association count,
	// matching the simple static-assignment the teacher's SSID manager
	// uses for its own bounded resource pool.
	virtual := b.virtualNodes[len(b.tempAssocs)%len(b.virtualNodes)]
	t := &domain.TempAssociation{
		VirtualIDStatic: virtual,
		VirtualIDActive: virtual,
		ResourceIP6:     key.PeerIP,
		ResourcePort:    key.PeerPort,
		ResourceEndpoint: key.RxEndpoint,
		LastUsed:        time.Now(),
	}
	b.tempAssocs[key] = t
	return *t, nil
}

func (b *Bridge) LockForFirmwareUpdate(key domain.TempAssociationKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tempAssocs[key]; ok {
		t.FWLockedAt = time.Now()
	}
}

func (b *Bridge) IPAssociations() []domain.IPAssociation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.IPAssociation, 0, len(b.ipAssocs))
	for _, a := range b.ipAssocs {
		out = append(out, a)
	}
	return out
}

func (b *Bridge) AddIPAssociation(a domain.IPAssociation) error {
	b.mu.Lock()
	if len(b.ipAssocs) >= domain.MaxIPAssociations {
		b.mu.Unlock()
		return zwerr.ErrPoolExhausted
	}
	b.ipAssocs[a.VirtualID] = a
	b.resolveTable[a.ResourceIP6] = a.HanNode
	snapshot := make([]domain.IPAssociation, 0, len(b.ipAssocs))
	for _, v := range b.ipAssocs {
		snapshot = append(snapshot, v)
	}
	b.mu.Unlock()

	if b.store != nil {
		return b.store.SaveIPAssociations(snapshot)
	}
	return nil
}

func (b *Bridge) RemoveIPAssociation(virtualID domain.NodeID) error {
	b.mu.Lock()
	a, ok := b.ipAssocs[virtualID]
	if !ok {
		b.mu.Unlock()
		return zwerr.ErrBadTLVLength
	}
	delete(b.ipAssocs, virtualID)
	delete(b.resolveTable, a.ResourceIP6)
	snapshot := make([]domain.IPAssociation, 0, len(b.ipAssocs))
	for _, v := range b.ipAssocs {
		snapshot = append(snapshot, v)
	}
	b.mu.Unlock()

	if b.store != nil {
		return b.store.SaveIPAssociations(snapshot)
	}
	return nil
}
