package networkmanagement

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
	"github.com/zwave-gw/zipgw/internal/zwerr"
)

type fakeRadio struct {
	ports.RadioDriver
	addCalled          chan ports.AddNodeMode
	learnCalled        chan domain.LearnMode
	replaceCalled      chan domain.NodeID
	sendCalled         chan domain.NodeID
	removeFailedCalled chan domain.NodeID

	removeFailedErr error
	initialNodes    []domain.NodeID
	myNode          domain.NodeID
	sucNode         domain.NodeID
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{
		addCalled:          make(chan ports.AddNodeMode, 4),
		learnCalled:        make(chan domain.LearnMode, 4),
		replaceCalled:      make(chan domain.NodeID, 4),
		sendCalled:         make(chan domain.NodeID, 4),
		removeFailedCalled: make(chan domain.NodeID, 4),
		myNode:             1,
		initialNodes:       []domain.NodeID{1},
	}
}

func (f *fakeRadio) AddNodeToNetwork(ctx context.Context, mode ports.AddNodeMode) error {
	f.addCalled <- mode
	return nil
}

func (f *fakeRadio) SetLearnMode(ctx context.Context, mode domain.LearnMode, enable bool) error {
	if enable {
		f.learnCalled <- mode
	}
	return nil
}

func (f *fakeRadio) ReplaceFailedNode(ctx context.Context, node domain.NodeID) error {
	f.replaceCalled <- node
	return nil
}

func (f *fakeRadio) RemoveFailedNode(ctx context.Context, node domain.NodeID) error {
	f.removeFailedCalled <- node
	return f.removeFailedErr
}

func (f *fakeRadio) SendData(ctx context.Context, snode, dnode domain.NodeID, frame domain.Frame, txFlags domain.TxFlags, done ports.TxCompleteFunc) (ports.TxHandle, error) {
	f.sendCalled <- dnode
	go done(domain.TxOk, nil)
	return 1, nil
}

func (f *fakeRadio) GetNodeProtocolInfo(ctx context.Context, node domain.NodeID) (ports.NodeProtocolInfo, error) {
	return ports.NodeProtocolInfo{Listening: true}, nil
}

func (f *fakeRadio) GetSUCNodeID(ctx context.Context) (domain.NodeID, error) {
	return f.sucNode, nil
}

func (f *fakeRadio) MemoryGetID(ctx context.Context) (domain.HomeID, domain.NodeID, error) {
	return 0, f.myNode, nil
}

func (f *fakeRadio) InitialNodeList(ctx context.Context) ([]domain.NodeID, error) {
	return f.initialNodes, nil
}

type fakeRD struct {
	ports.ResourceDirectory
	added   chan domain.NodeID
	removed chan domain.NodeID
	entries []domain.NodeEntry
}

func newFakeRD() *fakeRD {
	return &fakeRD{added: make(chan domain.NodeID, 4), removed: make(chan domain.NodeID, 4)}
}

func (f *fakeRD) AddNode(ctx context.Context, node domain.NodeID, probe bool) error {
	f.added <- node
	return nil
}

func (f *fakeRD) RemoveNode(ctx context.Context, node domain.NodeID) error {
	f.removed <- node
	return nil
}

func (f *fakeRD) Get(node domain.NodeID) (domain.NodeEntry, bool) {
	return domain.NodeEntry{NodeID: node}, true
}

func (f *fakeRD) All() []domain.NodeEntry {
	return f.entries
}

func (f *fakeRD) NotifyOnDone(node domain.NodeID, cb ports.ProbeCompleteFunc) bool {
	cb(node, domain.NodeDone)
	return true
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNMS_InclusionHappyPath(t *testing.T) {
	radio := newFakeRadio()
	rd := newFakeRD()
	nms := New(newTestLogger(), radio, rd, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go nms.Run(ctx)

	replyCh, err := nms.Submit(ctx, ports.NMCommand{Event: domain.EvNodeAdd, SeqNo: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(radio.addCalled) == 1 }, time.Second, time.Millisecond)

	nms.Deliver(domain.EvAddNodeFound, nil)
	nms.Deliver(domain.EvAddEndNode, nil)
	nms.Deliver(domain.EvAddProtocolDone, domain.NodeID(7))

	select {
	case reply := <-replyCh:
		assert.Equal(t, StatusOK, reply.Status)
		assert.Equal(t, domain.NodeID(7), reply.NodeID)
		assert.NotEmpty(t, reply.Payload)
	case <-time.After(domain.DhcpWait + 2*time.Second):
		t.Fatal("inclusion never completed")
	}

	select {
	case node := <-rd.added:
		assert.Equal(t, domain.NodeID(7), node)
	default:
		t.Fatal("resource directory never notified of new node")
	}

	state, _ := nms.State()
	assert.Equal(t, domain.NMIdle, state)
}

func TestNMS_SubmitRejectsWhenBusy(t *testing.T) {
	radio := newFakeRadio()
	rd := newFakeRD()
	nms := New(newTestLogger(), radio, rd, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go nms.Run(ctx)

	_, err := nms.Submit(ctx, ports.NMCommand{Event: domain.EvNodeAdd, SeqNo: 1})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(radio.addCalled) == 1 }, time.Second, time.Millisecond)

	replyCh, err := nms.Submit(ctx, ports.NMCommand{Event: domain.EvNodeAdd, SeqNo: 2})
	require.NoError(t, err)
	select {
	case reply := <-replyCh:
		assert.Equal(t, StatusBusy, reply.Status)
	case <-time.After(time.Second):
		t.Fatal("second submit never replied")
	}

	nms.Deliver(domain.EvAddFailed, nil)
}

func TestNMS_InclusionTimesOutWithNoEvents(t *testing.T) {
	t.Skip("exercises the multi-minute inclusion timeout budget; not suited to a fast unit test")
}

func TestNMS_LearnModeHappyPath(t *testing.T) {
	radio := newFakeRadio()
	nms := New(newTestLogger(), radio, newFakeRD(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go nms.Run(ctx)

	replyCh, err := nms.Submit(ctx, ports.NMCommand{Event: domain.EvLearnSet, LearnMode: domain.LearnNWI})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(radio.learnCalled) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, domain.LearnNWI, <-radio.learnCalled)

	nms.Deliver(domain.EvSecurityDone, nil)

	select {
	case reply := <-replyCh:
		assert.Equal(t, StatusOK, reply.Status)
		assert.Equal(t, []byte{0}, reply.Payload, "payload should report a clean network")
	case <-time.After(2 * time.Second):
		t.Fatal("learn mode never completed")
	}
}

func TestNMS_LearnModeDetectsControllerReplication(t *testing.T) {
	radio := newFakeRadio()
	radio.initialNodes = []domain.NodeID{1, 4} // not a clean network: a foreign node survived
	nms := New(newTestLogger(), radio, newFakeRD(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go nms.Run(ctx)

	replyCh, err := nms.Submit(ctx, ports.NMCommand{Event: domain.EvLearnSet, LearnMode: domain.LearnClassic})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(radio.learnCalled) == 1 }, time.Second, time.Millisecond)

	nms.Deliver(domain.EvSecurityDone, nil)

	select {
	case reply := <-replyCh:
		assert.Equal(t, StatusOK, reply.Status)
		assert.Equal(t, []byte{1}, reply.Payload, "payload should flag the surviving foreign node as a controller replication")
	case <-time.After(2 * time.Second):
		t.Fatal("learn mode never completed")
	}
}

func TestNMS_ReplaceFailedNode(t *testing.T) {
	radio := newFakeRadio()
	rd := newFakeRD()
	nms := New(newTestLogger(), radio, rd, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go nms.Run(ctx)

	replyCh, err := nms.Submit(ctx, ports.NMCommand{Event: domain.EvReplaceFailedStart, TargetNode: 9})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(radio.replaceCalled) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, domain.NodeID(9), <-radio.replaceCalled)

	nms.Deliver(domain.EvReplaceFailedDone, nil)

	select {
	case reply := <-replyCh:
		assert.Equal(t, StatusOK, reply.Status)
		assert.Equal(t, domain.NodeID(9), reply.NodeID)
	case <-time.After(2 * time.Second):
		t.Fatal("replace-failed never completed")
	}
}

func TestNMS_FailedNodeRemove(t *testing.T) {
	radio := newFakeRadio()
	rd := newFakeRD()
	nms := New(newTestLogger(), radio, rd, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go nms.Run(ctx)

	replyCh, err := nms.Submit(ctx, ports.NMCommand{Event: domain.EvFailedNodeRemove, TargetNode: 5})
	require.NoError(t, err)

	select {
	case reply := <-replyCh:
		assert.Equal(t, StatusOK, reply.Status)
		assert.Equal(t, domain.NodeID(5), reply.NodeID)
		assert.Equal(t, []byte{failedNodeRemoveDone}, reply.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("failed-node-remove never completed")
	}
	assert.Equal(t, domain.NodeID(5), <-radio.removeFailedCalled)
	assert.Equal(t, domain.NodeID(5), <-rd.removed)
}

func TestNMS_FailedNodeRemoveNotFound(t *testing.T) {
	radio := newFakeRadio()
	radio.removeFailedErr = zwerr.ErrFailedNodeNotFound
	nms := New(newTestLogger(), radio, newFakeRD(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go nms.Run(ctx)

	replyCh, err := nms.Submit(ctx, ports.NMCommand{Event: domain.EvFailedNodeRemove, TargetNode: 6})
	require.NoError(t, err)

	select {
	case reply := <-replyCh:
		assert.Equal(t, StatusOK, reply.Status)
		assert.Equal(t, []byte{failedNodeNotFound}, reply.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("failed-node-remove never completed")
	}
}

func TestNMS_RequestNodeList(t *testing.T) {
	radio := newFakeRadio()
	radio.initialNodes = []domain.NodeID{1, 9, 300}
	nms := New(newTestLogger(), radio, newFakeRD(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go nms.Run(ctx)

	replyCh, err := nms.Submit(ctx, ports.NMCommand{Event: domain.EvRequestNodeList})
	require.NoError(t, err)

	select {
	case reply := <-replyCh:
		assert.Equal(t, StatusOK, reply.Status)
		first := buildNodeListFrame(radio.initialNodes)
		second := buildNodeListFrame(radio.initialNodes)
		assert.Equal(t, first, second, "the same node set must build identical bytes every time")
		assert.Equal(t, first, reply.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("request-node-list never completed")
	}
}

func TestNMS_RequestFailedNodeList(t *testing.T) {
	rd := newFakeRD()
	rd.entries = []domain.NodeEntry{
		{NodeID: 3, State: domain.NodeFailing},
		{NodeID: 4, State: domain.NodeDone},
	}
	nms := New(newTestLogger(), newFakeRadio(), rd, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go nms.Run(ctx)

	replyCh, err := nms.Submit(ctx, ports.NMCommand{Event: domain.EvRequestFailedNodeList})
	require.NoError(t, err)

	select {
	case reply := <-replyCh:
		assert.Equal(t, StatusOK, reply.Status)
		assert.Equal(t, buildNodeListFrame([]domain.NodeID{3}), reply.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("request-failed-node-list never completed")
	}
}

func TestNMS_DriveSelfDestruct(t *testing.T) {
	radio := newFakeRadio()
	rd := newFakeRD()
	nms := New(newTestLogger(), radio, rd, nil)

	status, payload := nms.DriveSelfDestruct(context.Background(), 3)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, nodeStatusPayload(byte(ports.AddNodeStatusFailed), 3), payload)

	select {
	case node := <-radio.sendCalled:
		assert.Equal(t, domain.NodeID(3), node)
	default:
		t.Fatal("self-destruct frame never sent")
	}
	select {
	case node := <-radio.removeFailedCalled:
		assert.Equal(t, domain.NodeID(3), node)
	default:
		t.Fatal("controller never asked to remove the failed node")
	}
	select {
	case node := <-rd.removed:
		assert.Equal(t, domain.NodeID(3), node)
	default:
		t.Fatal("resource directory never told to drop the node")
	}
}

func TestNMS_HandleInclusionControllerInitiate(t *testing.T) {
	radio := newFakeRadio()
	nms := New(newTestLogger(), radio, newFakeRD(), nil)

	nms.HandleInclusionControllerInitiate(context.Background(), 2, 11)

	select {
	case node := <-radio.sendCalled:
		assert.Equal(t, domain.NodeID(2), node, "the COMPLETE reply must go back to the SIS, not the joining node")
	default:
		t.Fatal("no INCLUSION_CONTROLLER_COMPLETE sent")
	}
}
