package ports

import (
	"context"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

// Bridge is component F (spec §4.F): the virtual-node pool, IP and
// temporary associations, and IP-address <-> node-id resolution.
type Bridge interface {
	// Init loads persisted associations/virtual nodes and, on SIS
	// networks, pre-allocates virtual nodes. Sets State to Initialized
	// or InitFail.
	Init(ctx context.Context) error

	State() domain.BridgeState

	// ResolveDestination maps a destination IPv6 (or IPv4-mapped)
	// address to a mesh node id, per spec §6's address scheme.
	ResolveDestination(addr [16]byte) (domain.NodeID, bool)

	// TempAssociationFor returns (creating if necessary) the temporary
	// association for a peer addressing the mesh through rxEndpoint.
	TempAssociationFor(key domain.TempAssociationKey) (domain.TempAssociation, error)

	// LockForFirmwareUpdate marks the association matching key as
	// pinned for FirmwareLockDuration.
	LockForFirmwareUpdate(key domain.TempAssociationKey)

	// IPAssociations returns the persistent IP association table.
	IPAssociations() []domain.IPAssociation
	AddIPAssociation(a domain.IPAssociation) error
	RemoveIPAssociation(virtualID domain.NodeID) error
}
