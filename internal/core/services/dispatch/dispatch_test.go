package dispatch

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
)

func newTestTable() *Table {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatch_UnknownClassIsClassNotSupported(t *testing.T) {
	tbl := newTestTable()
	result := tbl.Dispatch(domain.ZWaveConnection{}, domain.NewFrame(domain.CCBasic, 0x01, nil), ports.OriginIP, false)
	assert.Equal(t, ports.ClassNotSupported, result)
}

func TestDispatch_RejectsNetworkManagementOverRadio(t *testing.T) {
	tbl := newTestTable()
	called := false
	tbl.Register(ports.HandlerEntry{
		Class:       domain.CCNetworkManagement,
		NetworkMgmt: true,
		Handler: func(domain.ZWaveConnection, domain.Frame, ports.Origin) ports.HandlerResult {
			called = true
			return ports.Handled
		},
	})

	result := tbl.Dispatch(domain.ZWaveConnection{LEndpoint: 0}, domain.NewFrame(domain.CCNetworkManagement, 0x01, nil), ports.OriginRadio, false)
	assert.Equal(t, ports.NotSupported, result)
	assert.False(t, called)

	result = tbl.Dispatch(domain.ZWaveConnection{LEndpoint: 0}, domain.NewFrame(domain.CCNetworkManagement, 0x01, nil), ports.OriginIP, false)
	assert.Equal(t, ports.Handled, result)
	assert.True(t, called)
}

func TestDispatch_RejectsMulticastUnlessAllowlisted(t *testing.T) {
	tbl := newTestTable()
	tbl.Register(ports.HandlerEntry{
		Class:          domain.CCSupervision,
		AllowMulticast: false,
		Handler:        func(domain.ZWaveConnection, domain.Frame, ports.Origin) ports.HandlerResult { return ports.Handled },
	})
	result := tbl.Dispatch(domain.ZWaveConnection{}, domain.NewFrame(domain.CCSupervision, 0x01, nil), ports.OriginIP, true)
	assert.Equal(t, ports.NotSupported, result)
}

func TestDispatch_RejectsWeakerThanMinimalScheme(t *testing.T) {
	tbl := newTestTable()
	tbl.Register(ports.HandlerEntry{
		Class:         domain.CCFirmwareUpdateMD,
		MinimalScheme: domain.S0,
		Handler:       func(domain.ZWaveConnection, domain.Frame, ports.Origin) ports.HandlerResult { return ports.Handled },
	})
	result := tbl.Dispatch(domain.ZWaveConnection{Scheme: domain.NoScheme}, domain.NewFrame(domain.CCFirmwareUpdateMD, 0x01, nil), ports.OriginIP, false)
	assert.Equal(t, ports.NotSupported, result)

	result = tbl.Dispatch(domain.ZWaveConnection{Scheme: domain.S0}, domain.NewFrame(domain.CCFirmwareUpdateMD, 0x01, nil), ports.OriginIP, false)
	assert.Equal(t, ports.Handled, result)
}
