package bridge

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
)

type fakeRadioDriver struct {
	ports.RadioDriver // embed to satisfy the interface; only SetSlaveLearnMode is exercised here
	nextVirtual       domain.NodeID
}

func (f *fakeRadioDriver) SetSlaveLearnMode(ctx context.Context) (domain.NodeID, error) {
	f.nextVirtual++
	return f.nextVirtual, nil
}

type fakeAssociationStore struct {
	ipAssocs []domain.IPAssociation
	virtual  []domain.NodeID
}

func (f *fakeAssociationStore) SaveIPAssociations(a []domain.IPAssociation) error {
	f.ipAssocs = a
	return nil
}
func (f *fakeAssociationStore) LoadIPAssociations() ([]domain.IPAssociation, error) {
	return f.ipAssocs, nil
}
func (f *fakeAssociationStore) SaveVirtualNodes(n []domain.NodeID) error {
	f.virtual = n
	return nil
}
func (f *fakeAssociationStore) LoadVirtualNodes() ([]domain.NodeID, error) {
	return f.virtual, nil
}

func TestBridge_InitAllocatesVirtualNodes(t *testing.T) {
	store := &fakeAssociationStore{virtual: []domain.NodeID{0, 0}} // want 2 virtual nodes
	radio := &fakeRadioDriver{}
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)), radio, store)

	require.NoError(t, b.Init(context.Background()))
	assert.Equal(t, domain.BridgeInitialized, b.State())
	assert.Len(t, b.virtualNodesCopy(), 2)
}

func TestBridge_TempAssociationForIsStableForSameKey(t *testing.T) {
	store := &fakeAssociationStore{virtual: []domain.NodeID{1}}
	radio := &fakeRadioDriver{}
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)), radio, store)
	require.NoError(t, b.Init(context.Background()))

	key := domain.TempAssociationKey{PeerIP: [16]byte{1}, PeerPort: 4123, RxEndpoint: 0}
	first, err := b.TempAssociationFor(key)
	require.NoError(t, err)
	second, err := b.TempAssociationFor(key)
	require.NoError(t, err)
	assert.Equal(t, first.VirtualIDStatic, second.VirtualIDStatic)
}

func TestBridge_TempAssociationForFailsWithNoVirtualNodes(t *testing.T) {
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)), &fakeRadioDriver{}, nil)
	_, err := b.TempAssociationFor(domain.TempAssociationKey{})
	assert.Error(t, err)
}

func TestBridge_AddAndRemoveIPAssociation(t *testing.T) {
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)), &fakeRadioDriver{}, nil)
	assoc := domain.IPAssociation{VirtualID: 10, HanNode: 20, ResourceIP6: [16]byte{9}}
	require.NoError(t, b.AddIPAssociation(assoc))

	node, ok := b.ResolveDestination([16]byte{9})
	assert.True(t, ok)
	assert.Equal(t, domain.NodeID(20), node)

	require.NoError(t, b.RemoveIPAssociation(10))
	_, ok = b.ResolveDestination([16]byte{9})
	assert.False(t, ok)
}

func TestBridge_AddIPAssociationCapsAtMax(t *testing.T) {
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)), &fakeRadioDriver{}, nil)
	for i := 0; i < domain.MaxIPAssociations; i++ {
		assoc := domain.IPAssociation{VirtualID: domain.NodeID(i + 1)}
		require.NoError(t, b.AddIPAssociation(assoc))
	}
	err := b.AddIPAssociation(domain.IPAssociation{VirtualID: 999})
	assert.Error(t, err)
}

func TestBridge_LockForFirmwareUpdatePinsAssociation(t *testing.T) {
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)), &fakeRadioDriver{}, &fakeAssociationStore{virtual: []domain.NodeID{1}})
	require.NoError(t, b.Init(context.Background()))

	key := domain.TempAssociationKey{PeerIP: [16]byte{2}, PeerPort: 1, RxEndpoint: 0}
	_, err := b.TempAssociationFor(key)
	require.NoError(t, err)

	b.LockForFirmwareUpdate(key)
	t2, err := b.TempAssociationFor(key)
	require.NoError(t, err)
	assert.True(t, t2.FWLocked(t2.FWLockedAt))
}
