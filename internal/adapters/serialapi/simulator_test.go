package serialapi

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

func newTestSim() *Simulator {
	return NewSimulator(slog.New(slog.NewTextHandler(io.Discard, nil)), 0x1234, 1)
}

func TestSimulator_SendDataCompletesOnDemand(t *testing.T) {
	sim := newTestSim()
	done := make(chan domain.TxStatus, 1)
	h, err := sim.SendData(context.Background(), 1, 2, domain.NewFrame(domain.CCBasic, 0x01, nil), 0, func(s domain.TxStatus, _ []byte) { done <- s })
	require.NoError(t, err)

	sim.Complete(h, domain.TxOk)
	select {
	case s := <-done:
		assert.Equal(t, domain.TxOk, s)
	case <-time.After(time.Second):
		t.Fatal("completion never delivered")
	}
}

func TestSimulator_AddNodeToNetworkReportsFullSequence(t *testing.T) {
	sim := newTestSim()
	statuses := make(chan ports.AddNodeStatus, 8)
	sim.OnAddNode(context.Background(), func(p ports.AddNodeProgress) { statuses <- p.Status })

	require.NoError(t, sim.AddNodeToNetwork(context.Background(), ports.AddNodeAny))

	want := []ports.AddNodeStatus{
		ports.AddNodeStatusLearnReady,
		ports.AddNodeStatusNodeFound,
		ports.AddNodeStatusAddingEndNode,
		ports.AddNodeStatusProtocolDone,
		ports.AddNodeStatusDone,
	}
	for _, w := range want {
		select {
		case got := <-statuses:
			assert.Equal(t, w, got)
		case <-time.After(time.Second):
			t.Fatalf("missing status %v", w)
		}
	}
}

func TestSimulator_InitialNodeListIncludesSelf(t *testing.T) {
	sim := newTestSim()
	list, err := sim.InitialNodeList(context.Background())
	require.NoError(t, err)
	assert.Contains(t, list, domain.NodeID(1))
}

func TestSimulator_InjectUnsolicitedDeliversToCallback(t *testing.T) {
	sim := newTestSim()
	received := make(chan domain.NodeID, 1)
	sim.Unsolicited(context.Background(), func(rxStatus domain.RxFlags, dnode, snode domain.NodeID, frame domain.Frame) {
		received <- snode
	})

	sim.InjectUnsolicited(0, 1, 9, domain.NewFrame(domain.CCBasic, 0x01, nil))

	select {
	case snode := <-received:
		assert.Equal(t, domain.NodeID(9), snode)
	case <-time.After(time.Second):
		t.Fatal("unsolicited frame never delivered")
	}
}
