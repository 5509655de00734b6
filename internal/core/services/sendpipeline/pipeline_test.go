package sendpipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
)

type fakeRadio struct {
	sent []domain.Frame
}

func (r *fakeRadio) Send(ctx context.Context, snode, dnode domain.NodeID, frame domain.Frame, txFlags domain.TxFlags, done ports.TxCompleteFunc) (ports.TxHandle, error) {
	r.sent = append(r.sent, frame)
	go done(domain.TxOk, nil)
	return 0, nil
}
func (r *fakeRadio) Abort(ctx context.Context, h ports.TxHandle) error { return nil }
func (r *fakeRadio) InFlight() bool                                    { return false }

type fakeSecurity struct{}

func (fakeSecurity) EncapsulateAndSend(ctx context.Context, param domain.TSParam, plaintext []byte, cb domain.TxCallback) error {
	go cb(domain.TxOk)
	return nil
}
func (fakeSecurity) HandleInbound(ctx context.Context, param domain.TSParam, frame domain.Frame) ([]byte, bool, error) {
	return nil, false, nil
}
func (fakeSecurity) SecurityAddBegin(ctx context.Context, node domain.NodeID, isController bool, cb func(domain.SecurityFlags, bool)) error {
	return nil
}

func newTestPipeline() (*Pipeline, *fakeRadio) {
	radio := &fakeRadio{}
	p := New(slog.New(slog.NewTextHandler(io.Discard, nil)), fakeSecurity{}, radio)
	return p, radio
}

func TestPipeline_SendLowLevel(t *testing.T) {
	p, radio := newTestPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	status := make(chan domain.TxStatus, 1)
	frame := domain.NewFrame(domain.CCBasic, 0x01, nil)
	_, err := p.Send(ctx, domain.TSParam{SNode: 1, DNode: 2}, frame, func(s domain.TxStatus) { status <- s })
	require.NoError(t, err)

	select {
	case s := <-status:
		assert.Equal(t, domain.TxOk, s)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	assert.Len(t, radio.sent, 1)
}

func TestPipeline_SendApplGoesThroughSecurity(t *testing.T) {
	p, radio := newTestPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	status := make(chan domain.TxStatus, 1)
	frame := domain.NewFrame(domain.CCBasic, 0x01, []byte{0xAA})
	param := domain.TSParam{SNode: 1, DNode: 2, Scheme: domain.S0}
	_, err := p.SendDataAppl(ctx, param, frame, time.Second, func(s domain.TxStatus) { status <- s })
	require.NoError(t, err)

	select {
	case s := <-status:
		assert.Equal(t, domain.TxOk, s)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	assert.Empty(t, radio.sent, "S0 submissions bypass the radio façade directly, the security engine owns the send")
}

func TestPipeline_QueueBoundsAtMaxSendPipelineLen(t *testing.T) {
	pipeline := New(slog.New(slog.NewTextHandler(io.Discard, nil)), fakeSecurity{}, &blockingRadio{})
	// Do not run the worker, so entries pile up in the queue.
	for i := 0; i < domain.MaxSendPipelineLen; i++ {
		_, err := pipeline.Send(context.Background(), domain.TSParam{SNode: 1, DNode: 2}, domain.NewFrame(domain.CCBasic, 0x01, nil), nil)
		require.NoError(t, err)
	}
	_, err := pipeline.Send(context.Background(), domain.TSParam{SNode: 1, DNode: 2}, domain.NewFrame(domain.CCBasic, 0x01, nil), nil)
	assert.Error(t, err)
}

func TestPipeline_AbortQueuedEntry(t *testing.T) {
	pipeline := New(slog.New(slog.NewTextHandler(io.Discard, nil)), fakeSecurity{}, &blockingRadio{})
	status := make(chan domain.TxStatus, 1)
	h, err := pipeline.Send(context.Background(), domain.TSParam{SNode: 1, DNode: 2}, domain.NewFrame(domain.CCBasic, 0x01, nil), func(s domain.TxStatus) { status <- s })
	require.NoError(t, err)

	require.NoError(t, pipeline.Abort(context.Background(), h))
	select {
	case s := <-status:
		assert.Equal(t, domain.TxError, s)
	case <-time.After(time.Second):
		t.Fatal("abort never fired the callback")
	}
}

// blockingRadio never completes, used to keep entries parked in the
// queue for pool-exhaustion and abort tests.
type blockingRadio struct{}

func (blockingRadio) Send(ctx context.Context, snode, dnode domain.NodeID, frame domain.Frame, txFlags domain.TxFlags, done ports.TxCompleteFunc) (ports.TxHandle, error) {
	return 0, nil
}
func (blockingRadio) Abort(ctx context.Context, h ports.TxHandle) error { return nil }
func (blockingRadio) InFlight() bool                                    { return false }
