// Package storage implements the persistence ports (RDStore,
// AssociationStore) over GORM/SQLite, the way the teacher persists its
// device registry.
package storage

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
)

// NodeModel is the GORM model for one resource-directory entry. The
// endpoint list is stored as a JSON blob rather than a joined table -
// it is small, fixed-shape, and only ever read/written whole.
type NodeModel struct {
	NodeID         uint32 `gorm:"primaryKey"`
	State          int
	Mode           int
	SecurityFlags  uint8
	NodeType       uint8
	ManufacturerID uint16
	ProductType    uint16
	ProductID      uint16
	WakeupInterval uint32
	LastUpdate     time.Time
	LastAwake      time.Time
	ProbeFlags     uint8
	PropFlags      uint8
	AddedByMe      bool
	EndpointsJSON  string
}

// IPAssociationModel persists one domain.IPAssociation.
type IPAssociationModel struct {
	ID               uint `gorm:"primaryKey"`
	VirtualID        uint32
	ResourceIP6      string
	ResourcePort     uint16
	ResourceEndpoint uint8
	HanNode          uint32
	HanEndpoint      uint8
	Type             int
}

// VirtualNodeModel persists one reserved virtual node id.
type VirtualNodeModel struct {
	NodeID uint32 `gorm:"primaryKey"`
}

// Store implements ports.RDStore and ports.AssociationStore.
type Store struct {
	db *gorm.DB
}

// Open initializes the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&NodeModel{}, &IPAssociationModel{}, &VirtualNodeModel{}); err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Update implements ports.RDStore.
func (s *Store) Update(entry domain.NodeEntry) error {
	model, err := toNodeModel(entry)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&model).Error
}

// Import implements ports.RDStore.
func (s *Store) Import() ([]domain.NodeEntry, error) {
	var models []NodeModel
	if err := s.db.Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.NodeEntry, 0, len(models))
	for _, m := range models {
		entry, err := toNodeEntry(m)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete implements ports.RDStore.
func (s *Store) Delete(node domain.NodeID) error {
	return s.db.Delete(&NodeModel{}, "node_id = ?", uint32(node)).Error
}

// SaveIPAssociations implements ports.AssociationStore: replaces the
// full persisted set in one transaction, since associations are always
// reloaded as a whole at startup.
func (s *Store) SaveIPAssociations(assocs []domain.IPAssociation) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&IPAssociationModel{}).Error; err != nil {
			return err
		}
		if len(assocs) == 0 {
			return nil
		}
		models := make([]IPAssociationModel, len(assocs))
		for i, a := range assocs {
			models[i] = toIPAssociationModel(a)
		}
		return tx.Create(&models).Error
	})
}

// LoadIPAssociations implements ports.AssociationStore.
func (s *Store) LoadIPAssociations() ([]domain.IPAssociation, error) {
	var models []IPAssociationModel
	if err := s.db.Find(&models).Error; err != nil {
		return nil, err
	}
	assocs := make([]domain.IPAssociation, len(models))
	for i, m := range models {
		assocs[i] = toIPAssociation(m)
	}
	return assocs, nil
}

// SaveVirtualNodes implements ports.AssociationStore.
func (s *Store) SaveVirtualNodes(nodes []domain.NodeID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&VirtualNodeModel{}).Error; err != nil {
			return err
		}
		if len(nodes) == 0 {
			return nil
		}
		models := make([]VirtualNodeModel, len(nodes))
		for i, n := range nodes {
			models[i] = VirtualNodeModel{NodeID: uint32(n)}
		}
		return tx.Create(&models).Error
	})
}

// LoadVirtualNodes implements ports.AssociationStore.
func (s *Store) LoadVirtualNodes() ([]domain.NodeID, error) {
	var models []VirtualNodeModel
	if err := s.db.Find(&models).Error; err != nil {
		return nil, err
	}
	nodes := make([]domain.NodeID, len(models))
	for i, m := range models {
		nodes[i] = domain.NodeID(m.NodeID)
	}
	return nodes, nil
}

func toNodeModel(e domain.NodeEntry) (NodeModel, error) {
	epJSON, err := json.Marshal(e.Endpoints)
	if err != nil {
		return NodeModel{}, err
	}
	return NodeModel{
		NodeID:         uint32(e.NodeID),
		State:          int(e.State),
		Mode:           int(e.Mode),
		SecurityFlags:  uint8(e.SecurityFlags),
		NodeType:       e.NodeType,
		ManufacturerID: e.ManufacturerID,
		ProductType:    e.ProductType,
		ProductID:      e.ProductID,
		WakeupInterval: e.WakeupInterval,
		LastUpdate:     e.LastUpdate,
		LastAwake:      e.LastAwake,
		ProbeFlags:     uint8(e.ProbeFlags),
		PropFlags:      uint8(e.PropFlags),
		AddedByMe:      e.AddedByMe,
		EndpointsJSON:  string(epJSON),
	}, nil
}

func toNodeEntry(m NodeModel) (domain.NodeEntry, error) {
	var endpoints []domain.Endpoint
	if m.EndpointsJSON != "" {
		if err := json.Unmarshal([]byte(m.EndpointsJSON), &endpoints); err != nil {
			return domain.NodeEntry{}, err
		}
	}
	return domain.NodeEntry{
		NodeID:         domain.NodeID(m.NodeID),
		State:          domain.NodeState(m.State),
		Mode:           domain.NodeMode(m.Mode),
		SecurityFlags:  domain.SecurityFlags(m.SecurityFlags),
		NodeType:       m.NodeType,
		ManufacturerID: m.ManufacturerID,
		ProductType:    m.ProductType,
		ProductID:      m.ProductID,
		WakeupInterval: m.WakeupInterval,
		LastUpdate:     m.LastUpdate,
		LastAwake:      m.LastAwake,
		ProbeFlags:     domain.ProbeFlags(m.ProbeFlags),
		PropFlags:      domain.NodePropertiesFlags(m.PropFlags),
		AddedByMe:      m.AddedByMe,
		Endpoints:      endpoints,
	}, nil
}

func toIPAssociationModel(a domain.IPAssociation) IPAssociationModel {
	return IPAssociationModel{
		VirtualID:        uint32(a.VirtualID),
		ResourceIP6:      ip6ToString(a.ResourceIP6),
		ResourcePort:     a.ResourcePort,
		ResourceEndpoint: uint8(a.ResourceEndpoint),
		HanNode:          uint32(a.HanNode),
		HanEndpoint:      uint8(a.HanEndpoint),
		Type:             int(a.Type),
	}
}

func toIPAssociation(m IPAssociationModel) domain.IPAssociation {
	return domain.IPAssociation{
		VirtualID:        domain.NodeID(m.VirtualID),
		ResourceIP6:      stringToIP6(m.ResourceIP6),
		ResourcePort:     m.ResourcePort,
		ResourceEndpoint: domain.EndpointID(m.ResourceEndpoint),
		HanNode:          domain.NodeID(m.HanNode),
		HanEndpoint:      domain.EndpointID(m.HanEndpoint),
		Type:             domain.AssociationType(m.Type),
	}
}

func ip6ToString(ip [16]byte) string {
	return hex.EncodeToString(ip[:])
}

func stringToIP6(s string) [16]byte {
	var ip [16]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return ip
	}
	copy(ip[:], b)
	return ip
}

var _ ports.RDStore = (*Store)(nil)
var _ ports.AssociationStore = (*Store)(nil)
