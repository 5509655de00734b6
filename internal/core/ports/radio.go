package ports

import (
	"context"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

// TxHandle identifies one outstanding radio submission.
type TxHandle uint64

// TxCompleteFunc is invoked exactly once per accepted Send, carrying the
// terminal status and an opaque transmit-status extension (network
// transmit ticks, route used, etc. - the serial-API black box owns its
// shape, so it is passed through as raw bytes).
type TxCompleteFunc func(status domain.TxStatus, txStatusExt []byte)

// RadioDriver is the external collaborator specified only at its
// interface (spec §1, §4.A): the serial-API driver talking to the
// Z-Wave radio chip. The gateway never implements this - it is
// satisfied by an adapter wrapping the real chip or, in tests, a
// simulator.
type RadioDriver interface {
	// SendData submits one frame for radio transmission. The driver is
	// single-in-flight: a second SendData before the prior TxCompleteFunc
	// fires is a programming error in the caller, not something the
	// driver needs to defend against.
	SendData(ctx context.Context, snode, dnode domain.NodeID, frame domain.Frame, txFlags domain.TxFlags, done TxCompleteFunc) (TxHandle, error)

	// Abort cancels the current transmission. The normal TxCompleteFunc
	// still fires, with a failure status.
	Abort(ctx context.Context, h TxHandle) error

	AddNodeToNetwork(ctx context.Context, mode AddNodeMode) error
	RemoveFailedNode(ctx context.Context, node domain.NodeID) error
	ReplaceFailedNode(ctx context.Context, node domain.NodeID) error
	GetSUCNodeID(ctx context.Context) (domain.NodeID, error)
	SetLearnMode(ctx context.Context, mode domain.LearnMode, enable bool) error
	MemoryGetID(ctx context.Context) (domain.HomeID, domain.NodeID, error)
	SetSlaveLearnMode(ctx context.Context) (domain.NodeID, error)
	GetNodeProtocolInfo(ctx context.Context, node domain.NodeID) (NodeProtocolInfo, error)

	// InitialNodeList returns the controller's classic+LR node bitmasks
	// as of power-up; the resource directory's liveness invariant is
	// defined against this list (spec §3 invariant).
	InitialNodeList(ctx context.Context) ([]domain.NodeID, error)

	// Unsolicited registers the callback for inbound radio frames not
	// already claimed by an in-flight SendData/learn/add operation.
	Unsolicited(ctx context.Context, cb UnsolicitedFunc)

	// Progress callbacks for long-running controller operations.
	OnAddNode(ctx context.Context, cb AddNodeProgressFunc)
	OnRemoveNode(ctx context.Context, cb RemoveNodeProgressFunc)
	OnLearnMode(ctx context.Context, cb LearnModeProgressFunc)
}

// UnsolicitedFunc delivers an inbound radio frame not otherwise claimed.
type UnsolicitedFunc func(rxStatus domain.RxFlags, dnode, snode domain.NodeID, frame domain.Frame)

// AddNodeMode selects the inclusion mode passed to AddNodeToNetwork.
type AddNodeMode int

const (
	AddNodeAny AddNodeMode = iota
	AddNodeController
	AddNodeSlave
	AddNodeSFLND
	AddNodeStop
)

// AddNodeStatus mirrors the controller's ADD_NODE_STATUS_* progress
// codes (spec §4.G).
type AddNodeStatus int

const (
	AddNodeStatusLearnReady AddNodeStatus = iota
	AddNodeStatusNodeFound
	AddNodeStatusAddingController
	AddNodeStatusAddingEndNode
	AddNodeStatusProtocolDone
	AddNodeStatusDone
	AddNodeStatusFailed
	AddNodeStatusSFLNDDone
	AddNodeStatusSecurityFailed
)

// AddNodeProgress is delivered by OnAddNode as the controller works
// through an AddNodeToNetwork call.
type AddNodeProgress struct {
	Status AddNodeStatus
	Source domain.NodeID
	NIF    []byte
}

type AddNodeProgressFunc func(p AddNodeProgress)

// RemoveNodeProgress mirrors ZW_FAILED_NODE_* / remove-node callbacks.
type RemoveNodeProgress struct {
	OK     bool
	NodeID domain.NodeID
}

type RemoveNodeProgressFunc func(p RemoveNodeProgress)

// LearnModeProgress mirrors SetLearnMode's asynchronous callback.
type LearnModeProgress struct {
	Done       bool
	NewNodeID  domain.NodeID
	CleanNetwork bool // true if the resulting node list contains only MyNodeID
}

type LearnModeProgressFunc func(p LearnModeProgress)

// NodeProtocolInfo is the subset of GetNodeProtocolInfo's result the
// gateway needs to populate NODE_ADD_STATUS-style replies.
type NodeProtocolInfo struct {
	Listening    bool
	FLiRS        bool
	NodeType     byte
	BasicDevice  byte
	GenericType  byte
	SpecificType byte
}

// RadioFacade is component A (spec §4.A): a thin, typed wrapper over
// RadioDriver that owns the one-in-flight invariant and the emergency
// timer.
type RadioFacade interface {
	Send(ctx context.Context, snode, dnode domain.NodeID, frame domain.Frame, txFlags domain.TxFlags, done TxCompleteFunc) (TxHandle, error)
	Abort(ctx context.Context, h TxHandle) error
	InFlight() bool
}
