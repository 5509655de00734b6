// Package sendpipeline implements component C (spec §4.C): the two-level
// application/low-level send queue sitting between the dispatcher and
// the security engine/radio façade.
package sendpipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
	"github.com/zwave-gw/zipgw/internal/telemetry"
	"github.com/zwave-gw/zipgw/internal/zwerr"
)

// entry is one queued submission, either application-level (composed
// through the security engine) or already-composed low-level bytes.
type entry struct {
	handle         ports.SendHandle
	param          domain.TSParam
	frame          domain.Frame
	appl           bool
	discardTimeout time.Duration
	queuedAt       time.Time
	cb             ports.SendCallback
	aborted        bool
}

// Pipeline implements ports.SendPipeline with a bounded application
// queue feeding a single-in-flight low-level slot (spec §4.C, §5
// domain.MaxSendPipelineLen).
type Pipeline struct {
	log      *slog.Logger
	security ports.SecurityEngine
	radio    ports.RadioFacade

	mu      sync.Mutex
	nextID  ports.SendHandle
	applQ   []*entry
	inFlight *entry

	work chan struct{}
}

// New constructs a Pipeline. Run must be started in its own goroutine to
// drain the queue.
func New(log *slog.Logger, security ports.SecurityEngine, radio ports.RadioFacade) *Pipeline {
	return &Pipeline{
		log:      log,
		security: security,
		radio:    radio,
		work:     make(chan struct{}, 1),
	}
}

func (p *Pipeline) wake() {
	select {
	case p.work <- struct{}{}:
	default:
	}
}

func (p *Pipeline) SendDataAppl(ctx context.Context, param domain.TSParam, frame domain.Frame, discardTimeout time.Duration, cb ports.SendCallback) (ports.SendHandle, error) {
	return p.enqueue(param, frame, true, discardTimeout, cb)
}

func (p *Pipeline) Send(ctx context.Context, param domain.TSParam, frame domain.Frame, cb ports.SendCallback) (ports.SendHandle, error) {
	return p.enqueue(param, frame, false, 0, cb)
}

func (p *Pipeline) enqueue(param domain.TSParam, frame domain.Frame, appl bool, discardTimeout time.Duration, cb ports.SendCallback) (ports.SendHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.applQ) >= domain.MaxSendPipelineLen {
		return 0, zwerr.ErrPoolExhausted
	}
	p.nextID++
	e := &entry{
		handle:         p.nextID,
		param:          param,
		frame:          frame,
		appl:           appl,
		discardTimeout: discardTimeout,
		queuedAt:       time.Now(),
		cb:             cb,
	}
	p.applQ = append(p.applQ, e)
	telemetry.SendPipelineQueueDepth.WithLabelValues("appl").Set(float64(len(p.applQ)))
	p.wake()
	return e.handle, nil
}

// Abort removes a queued entry, or marks the in-flight one aborted so its
// callback reports TxError instead of the normal radio result (spec §8
// testable property 2: exactly one callback fires per handle).
func (p *Pipeline) Abort(ctx context.Context, h ports.SendHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, e := range p.applQ {
		if e.handle == h {
			p.applQ = append(p.applQ[:i], p.applQ[i+1:]...)
			go fireOnce(e.cb, domain.TxError)
			return nil
		}
	}
	if p.inFlight != nil && p.inFlight.handle == h {
		p.inFlight.aborted = true
		return nil
	}
	return zwerr.ErrBadTLVLength
}

func fireOnce(cb ports.SendCallback, status domain.TxStatus) {
	if cb != nil {
		cb(status)
	}
}

// Run drains the application queue into the low-level slot one entry at
// a time until ctx is cancelled. Grounded on the teacher's
// ticker-driven worker-loop idiom (NetworkService.StartCleanupLoop):
// here the "tick" is either new work or the discard sweep.
func (p *Pipeline) Run(ctx context.Context) {
	sweep := time.NewTicker(500 * time.Millisecond)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			p.sweepDiscards()
		case <-p.work:
			p.drainOne(ctx)
		}
	}
}

func (p *Pipeline) sweepDiscards() {
	p.mu.Lock()
	now := time.Now()
	var kept []*entry
	var expired []*entry
	for _, e := range p.applQ {
		if e.discardTimeout > 0 && now.Sub(e.queuedAt) > e.discardTimeout {
			expired = append(expired, e)
			continue
		}
		kept = append(kept, e)
	}
	p.applQ = kept
	p.mu.Unlock()

	for _, e := range expired {
		fireOnce(e.cb, domain.TxFailStatus)
	}
}

func (p *Pipeline) drainOne(ctx context.Context) {
	p.mu.Lock()
	if p.inFlight != nil || len(p.applQ) == 0 {
		p.mu.Unlock()
		return
	}
	e := p.applQ[0]
	p.applQ = p.applQ[1:]
	p.inFlight = e
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = nil
		p.mu.Unlock()
		p.wake()
	}()

	status := p.transmit(ctx, e)
	if e.aborted {
		status = domain.TxError
	}
	telemetry.SendPipelineTxTotal.WithLabelValues(status.String()).Inc()
	fireOnce(e.cb, status)
}

func (p *Pipeline) transmit(ctx context.Context, e *entry) domain.TxStatus {
	if !e.appl || e.param.Scheme == domain.NoScheme || !e.param.Scheme.Concrete() {
		return p.sendLowLevel(ctx, e.param, e.frame)
	}
	if e.param.Scheme != domain.S0 {
		p.log.Warn("unsupported scheme requested, sending in the clear", "scheme", e.param.Scheme.String())
		return p.sendLowLevel(ctx, e.param, e.frame)
	}

	done := make(chan domain.TxStatus, 1)
	err := p.security.EncapsulateAndSend(ctx, e.param, e.frame.Bytes(), func(status domain.TxStatus) {
		done <- status
	})
	if err != nil {
		p.log.Error("security encapsulation failed", "err", err, "dst", e.param.DNode)
		return domain.TxError
	}
	select {
	case status := <-done:
		return status
	case <-ctx.Done():
		return domain.TxError
	}
}

func (p *Pipeline) sendLowLevel(ctx context.Context, param domain.TSParam, frame domain.Frame) domain.TxStatus {
	done := make(chan domain.TxStatus, 1)
	_, err := p.radio.Send(ctx, param.SNode, param.DNode, frame, param.TxFlags, func(status domain.TxStatus, _ []byte) {
		done <- status
	})
	if err != nil {
		return domain.TxError
	}
	select {
	case status := <-done:
		return status
	case <-ctx.Done():
		return domain.TxError
	}
}
