package radiofacade

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

type fakeDriver struct {
	ports.RadioDriver
	holdDone ports.TxCompleteFunc
}

func (f *fakeDriver) SendData(ctx context.Context, snode, dnode domain.NodeID, frame domain.Frame, txFlags domain.TxFlags, done ports.TxCompleteFunc) (ports.TxHandle, error) {
	f.holdDone = done
	return 1, nil
}

func (f *fakeDriver) Abort(ctx context.Context, h ports.TxHandle) error { return nil }

func TestFacade_RejectsSecondSendWhileInFlight(t *testing.T) {
	driver := &fakeDriver{}
	f := New(slog.New(slog.NewTextHandler(io.Discard, nil)), driver)

	_, err := f.Send(context.Background(), 1, 2, domain.NewFrame(domain.CCBasic, 0x01, nil), 0, func(domain.TxStatus, []byte) {})
	require.NoError(t, err)
	assert.True(t, f.InFlight())

	_, err = f.Send(context.Background(), 1, 3, domain.NewFrame(domain.CCBasic, 0x01, nil), 0, func(domain.TxStatus, []byte) {})
	assert.Error(t, err)

	driver.holdDone(domain.TxOk, nil)
	assert.False(t, f.InFlight())
}

func TestFacade_FreesSlotAfterCompletion(t *testing.T) {
	driver := &fakeDriver{}
	f := New(slog.New(slog.NewTextHandler(io.Discard, nil)), driver)

	done := make(chan domain.TxStatus, 1)
	_, err := f.Send(context.Background(), 1, 2, domain.NewFrame(domain.CCBasic, 0x01, nil), 0, func(s domain.TxStatus, _ []byte) { done <- s })
	require.NoError(t, err)
	driver.holdDone(domain.TxOk, nil)

	select {
	case s := <-done:
		assert.Equal(t, domain.TxOk, s)
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
	assert.False(t, f.InFlight())

	_, err = f.Send(context.Background(), 1, 3, domain.NewFrame(domain.CCBasic, 0x01, nil), 0, func(domain.TxStatus, []byte) {})
	assert.NoError(t, err)
}

func TestFacade_EmergencyTimeoutForcesCompletion(t *testing.T) {
	driver := &fakeDriver{}
	f := New(slog.New(slog.NewTextHandler(io.Discard, nil)), driver)

	done := make(chan domain.TxStatus, 1)
	// Manually exercise the timeout path without waiting 65s: invoke the
	// callback registered as the emergency handler directly.
	_, err := f.Send(context.Background(), 1, 2, domain.NewFrame(domain.CCBasic, 0x01, nil), 0, func(s domain.TxStatus, _ []byte) { done <- s })
	require.NoError(t, err)
	f.onEmergencyTimeout()

	select {
	case s := <-done:
		assert.Equal(t, domain.TxError, s)
	case <-time.After(time.Second):
		t.Fatal("emergency timeout never force-completed")
	}

	// The driver's real callback firing afterwards must be a no-op.
	driver.holdDone(domain.TxOk, nil)
	assert.False(t, f.InFlight())
}
