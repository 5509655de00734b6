package ports

import (
	"context"
	"time"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

// SendHandle identifies one entry submitted to the send pipeline.
type SendHandle uint64

// SendCallback delivers the terminal status of a send-pipeline
// submission, exactly once (spec §8 testable property 2).
type SendCallback func(status domain.TxStatus)

// SendPipeline is component C (spec §4.C): the two-level application/
// low-level queue that serialises radio transmissions.
type SendPipeline interface {
	// SendDataAppl submits an application-level frame. Composition
	// (multichannel, S0/CRC-16/plaintext) happens inside the pipeline
	// worker, not at the call site.
	SendDataAppl(ctx context.Context, param domain.TSParam, frame domain.Frame, discardTimeout time.Duration, cb SendCallback) (SendHandle, error)

	// Send submits a pre-composed low-level frame directly to the radio
	// queue, bypassing encapsulation. Used by components (security,
	// NMS) that have already built the exact bytes to put on the wire.
	Send(ctx context.Context, param domain.TSParam, frame domain.Frame, cb SendCallback) (SendHandle, error)

	// Abort removes a queued entry or aborts the in-flight one; exactly
	// one callback still fires for h.
	Abort(ctx context.Context, h SendHandle) error
}
