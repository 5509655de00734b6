package ports

import (
	"context"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

// SecurityEngine is component B (spec §4.B): the S0 nonce/session engine.
type SecurityEngine interface {
	// EncapsulateAndSend starts (or joins) the S0 TX session for
	// param.SNode/param.DNode, sending plaintext under S0 encapsulation.
	// cb fires exactly once with the terminal status.
	EncapsulateAndSend(ctx context.Context, param domain.TSParam, plaintext []byte, cb domain.TxCallback) error

	// HandleInbound processes an inbound frame whose class is
	// CCSecurity. It returns the deframed plaintext and true if a
	// complete message was reassembled and authenticated; otherwise
	// false (buffered, awaiting a second fragment, or dropped).
	HandleInbound(ctx context.Context, param domain.TSParam, frame domain.Frame) (plaintext []byte, delivered bool, err error)

	// SecurityAddBegin drives the post-inclusion S0 bootstrap handshake
	// for a freshly added node (scheme-get/report, network-key-set,
	// network-key-verify, scheme-inherit). cb delivers the granted
	// SecurityFlags (0 on failure/non-participation).
	SecurityAddBegin(ctx context.Context, node domain.NodeID, isController bool, cb func(flags domain.SecurityFlags, ok bool)) error
}
