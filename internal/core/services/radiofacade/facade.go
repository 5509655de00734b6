// Package radiofacade implements component A (spec §4.A): a thin
// wrapper over the serial-API driver that owns the one-in-flight
// invariant and the emergency recovery timer.
package radiofacade

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
	"github.com/zwave-gw/zipgw/internal/zwerr"
)

// EmergencyTimeout bounds how long a single radio submission may stay
// in flight before the façade force-completes it as a failure and frees
// the slot (spec §4.A: "65s emergency timer").
const EmergencyTimeout = 65 * time.Second

// Facade implements ports.RadioFacade.
type Facade struct {
	log   *slog.Logger
	radio ports.RadioDriver

	mu        sync.Mutex
	inFlight  bool
	timer     *time.Timer
	realDone  ports.TxCompleteFunc
	completed bool
}

// New wraps radio with the one-in-flight invariant.
func New(log *slog.Logger, radio ports.RadioDriver) *Facade {
	return &Facade{log: log, radio: radio}
}

func (f *Facade) Send(ctx context.Context, snode, dnode domain.NodeID, frame domain.Frame, txFlags domain.TxFlags, done ports.TxCompleteFunc) (ports.TxHandle, error) {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return 0, zwerr.ErrBusy
	}
	f.inFlight = true
	f.completed = false
	f.realDone = done
	f.timer = time.AfterFunc(EmergencyTimeout, f.onEmergencyTimeout)
	f.mu.Unlock()

	handle, err := f.radio.SendData(ctx, snode, dnode, frame, txFlags, f.wrapDone)
	if err != nil {
		f.clearInFlight()
		return 0, err
	}
	return handle, nil
}

func (f *Facade) wrapDone(status domain.TxStatus, ext []byte) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	f.completed = true
	if f.timer != nil {
		f.timer.Stop()
	}
	cb := f.realDone
	f.inFlight = false
	f.mu.Unlock()

	if cb != nil {
		cb(status, ext)
	}
}

func (f *Facade) onEmergencyTimeout() {
	f.log.Error("radio submission exceeded emergency timeout, force-failing")
	f.wrapDone(domain.TxError, nil)
}

func (f *Facade) clearInFlight() {
	f.mu.Lock()
	f.inFlight = false
	if f.timer != nil {
		f.timer.Stop()
	}
	f.mu.Unlock()
}

func (f *Facade) Abort(ctx context.Context, h ports.TxHandle) error {
	return f.radio.Abort(ctx, h)
}

func (f *Facade) InFlight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}
