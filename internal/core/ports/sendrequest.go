package ports

import (
	"context"
	"time"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

// RequestHandle identifies one outstanding SendRequest entry.
type RequestHandle uint64

// ReplyAction tells the matcher what to do after delivering a reply.
type ReplyAction int

const (
	// ReplyDone frees the entry; no more replies are expected.
	ReplyDone ReplyAction = iota
	// ReplyMore restarts the reply timer; another reply is expected
	// (used by multi-report exchanges such as paged reports).
	ReplyMore
)

// ReplyFunc receives a matched reply frame and decides whether more
// replies are expected.
type ReplyFunc func(frame domain.Frame) ReplyAction

// SendRequestMatcher is component D (spec §4.D): couples an outbound
// command to its expected reply, with per-node cancellation.
type SendRequestMatcher interface {
	// SendRequest issues param/cmd through the send pipeline and awaits
	// expectedReplyCmd from the same node within timeout. onTxFail is
	// invoked on radio TX failure (status only); once TX succeeds the
	// reply timer starts and onReply receives the matching reply, or an
	// empty frame if the timer expires first.
	SendRequest(ctx context.Context, param domain.TSParam, cmd domain.Frame, expectedReplyClass, expectedReplyCmd byte, timeout time.Duration, onReply ReplyFunc, onTxFail SendCallback) (RequestHandle, error)

	// Dispatch is called by the command-dispatch layer (component H)
	// for every inbound application command; it returns true if the
	// frame matched and was delivered to a waiting entry.
	Dispatch(param domain.TSParam, frame domain.Frame) bool

	// AbortRequestsFor cancels all waiting entries whose reply source is
	// node, delivering Fail to each (spec §4.D, typically called on node
	// removal).
	AbortRequestsFor(node domain.NodeID)
}
