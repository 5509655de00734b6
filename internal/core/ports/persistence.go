package ports

import "github.com/zwave-gw/zipgw/internal/core/domain"

// RDStore is the persistence boundary for the resource directory. Spec
// §1/§6 treat the on-flash blob schema as a black box owned by
// rd_data_store_*; this interface is that boundary translated into Go -
// callers pass/receive domain.NodeEntry values, never raw bytes.
type RDStore interface {
	Update(entry domain.NodeEntry) error
	Import() ([]domain.NodeEntry, error)
	Delete(node domain.NodeID) error
}

// AssociationStore is the persistence boundary for virtual nodes and IP
// associations (spec §6, rd_datastore_persist_*).
type AssociationStore interface {
	SaveIPAssociations(assocs []domain.IPAssociation) error
	LoadIPAssociations() ([]domain.IPAssociation, error)
	SaveVirtualNodes(nodes []domain.NodeID) error
	LoadVirtualNodes() ([]domain.NodeID, error)
}
