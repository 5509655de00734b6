package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

func setupInMemoryStore(t *testing.T) *Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&NodeModel{}, &IPAssociationModel{}, &VirtualNodeModel{}))
	return &Store{db: db}
}

func TestStore_UpdateAndImportNode(t *testing.T) {
	s := setupInMemoryStore(t)

	entry := domain.NodeEntry{
		NodeID:        7,
		State:         domain.NodeDone,
		Mode:          domain.ModeAlwaysListening,
		SecurityFlags: domain.FlagForScheme(domain.S0),
		AddedByMe:     true,
		LastUpdate:    time.Now().Truncate(time.Second),
		Endpoints: []domain.Endpoint{
			{EndpointID: 1, State: domain.EndpointDone, EndpointInfo: []byte{0x20, 0x25}},
		},
	}
	require.NoError(t, s.Update(entry))

	entries, err := s.Import()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.NodeID(7), entries[0].NodeID)
	assert.Equal(t, domain.NodeDone, entries[0].State)
	assert.True(t, entries[0].AddedByMe)
	require.Len(t, entries[0].Endpoints, 1)
	assert.Equal(t, domain.EndpointID(1), entries[0].Endpoints[0].EndpointID)
}

func TestStore_UpdateUpserts(t *testing.T) {
	s := setupInMemoryStore(t)

	require.NoError(t, s.Update(domain.NodeEntry{NodeID: 3, State: domain.NodeCreated}))
	require.NoError(t, s.Update(domain.NodeEntry{NodeID: 3, State: domain.NodeDone}))

	entries, err := s.Import()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.NodeDone, entries[0].State)
}

func TestStore_DeleteNode(t *testing.T) {
	s := setupInMemoryStore(t)
	require.NoError(t, s.Update(domain.NodeEntry{NodeID: 5}))
	require.NoError(t, s.Delete(5))

	entries, err := s.Import()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_IPAssociationsRoundTrip(t *testing.T) {
	s := setupInMemoryStore(t)

	assocs := []domain.IPAssociation{
		{VirtualID: 10, ResourcePort: 4123, HanNode: 7, Type: domain.AssocNormal},
		{VirtualID: 11, ResourcePort: 4124, HanNode: 8, Type: domain.AssocProxy},
	}
	require.NoError(t, s.SaveIPAssociations(assocs))

	loaded, err := s.LoadIPAssociations()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	require.NoError(t, s.SaveIPAssociations(assocs[:1]))
	loaded, err = s.LoadIPAssociations()
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestStore_VirtualNodesRoundTrip(t *testing.T) {
	s := setupInMemoryStore(t)

	require.NoError(t, s.SaveVirtualNodes([]domain.NodeID{1, 2, 3}))
	loaded, err := s.LoadVirtualNodes()
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.NodeID{1, 2, 3}, loaded)
}
