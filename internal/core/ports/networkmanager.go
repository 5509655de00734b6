package ports

import (
	"context"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

// NMCommand is an inbound request to the network management FSM
// (inclusion, exclusion, learn mode, node-list queries, ...).
type NMCommand struct {
	Event     domain.NMEvent
	SeqNo     byte
	Flags     domain.NMFlags
	LearnMode domain.LearnMode
	TargetNode domain.NodeID
	Initiator [16]byte // IP of the peer that issued the command, for serialisation
}

// NMReply is the serialised reply the NMS hands back to the IP side once
// a command completes (or is rejected).
type NMReply struct {
	Command domain.NMEvent
	SeqNo   byte
	Status  byte
	NodeID  domain.NodeID
	Payload []byte
}

// NetworkManager is component G (spec §4.G): the strictly serial NMS.
type NetworkManager interface {
	// Submit enqueues cmd on the NMS mailbox; replyCh receives exactly
	// one NMReply once the command reaches a terminal state, or a
	// Busy-kind reply immediately if the FSM is not Idle. The initiator
	// is not compared: a command from the peer that started the running
	// command is refused the same way as one from any other peer.
	Submit(ctx context.Context, cmd NMCommand) (<-chan NMReply, error)

	// State returns the current FSM state and flags, for diagnostics.
	State() (domain.NMState, domain.NMFlags)

	// Deliver feeds an inbound radio/controller event into the FSM
	// mailbox (AddNodeProgress, SecurityDone, NodeProbeDone, etc. are
	// translated to NMEvent by the caller).
	Deliver(ev domain.NMEvent, payload any)
}
