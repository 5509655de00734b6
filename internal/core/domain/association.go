package domain

import "time"

// AssociationType distinguishes the three persistent IP-association
// flavours (spec §4.F).
type AssociationType int

const (
	AssocNormal AssociationType = iota
	AssocProxy
	AssocCase2
)

// IPAssociation is a persistent, peer-configured association (spec §3).
type IPAssociation struct {
	VirtualID       NodeID
	ResourceIP6     [16]byte
	ResourcePort    uint16
	ResourceEndpoint EndpointID
	HanNode         NodeID
	HanEndpoint     EndpointID
	Type            AssociationType
}

// TempAssociationKey is the lookup key for a temporary association: the
// IP peer and the rx endpoint it addressed.
type TempAssociationKey struct {
	PeerIP   [16]byte
	PeerPort uint16
	RxEndpoint EndpointID
}

// FirmwareLockDuration is how long a temporary association stays pinned
// once it carries a firmware-update transfer (spec §4.F).
const FirmwareLockDuration = 60 * time.Second

// TempAssociation is an ephemeral association created the first time an
// IP peer addresses a mesh node (spec §3).
type TempAssociation struct {
	VirtualIDStatic NodeID
	VirtualIDActive NodeID
	ResourceIP6     [16]byte
	ResourcePort    uint16
	ResourceEndpoint EndpointID
	WasDTLS         bool
	IsLongRange     bool

	LastUsed   time.Time
	FWLockedAt time.Time // zero if not locked
}

// FWLocked reports whether the association is currently pinned against
// eviction by a live firmware-update transfer.
func (t TempAssociation) FWLocked(now time.Time) bool {
	if t.FWLockedAt.IsZero() {
		return false
	}
	return now.Before(t.FWLockedAt.Add(FirmwareLockDuration))
}

// BridgeState is the lifecycle state of the bridge/virtual-node layer
// (spec §4.F).
type BridgeState int

const (
	BridgeBooting BridgeState = iota
	BridgeInitialized
	BridgeInitFail
)

func (s BridgeState) String() string {
	switch s {
	case BridgeBooting:
		return "Booting"
	case BridgeInitialized:
		return "Initialized"
	case BridgeInitFail:
		return "InitFail"
	default:
		return "Unknown"
	}
}

// MaxVirtualNodeAllocRetries bounds SetSlaveLearnMode retries during
// bridge init (spec §4.F, §7 PoolExhausted retry budget).
const MaxVirtualNodeAllocRetries = 10

// VirtualNodeAllocCooldown is the pause between successful virtual-node
// adds during bridge init.
const VirtualNodeAllocCooldown = 2 * time.Second
