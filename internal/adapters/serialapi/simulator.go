// Package serialapi implements ports.RadioDriver. The real adapter
// would speak the Z-Wave serial API to a radio chip over a UART; this
// package instead ships a deterministic Simulator, grounded on the
// teacher's mock sniffer (internal/adapters/sniffer/testing.MockSniffer)
// of exercising a port's full surface without real hardware, wired in
// by cmd/ when run with simulated nodes for development and in tests.
package serialapi

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
	"github.com/zwave-gw/zipgw/internal/zwerr"
)

// Simulator satisfies ports.RadioDriver entirely in memory: SendData
// stays pending until a test/caller resolves it via Complete (with
// whatever status it passes) or Abort, and inclusion/learn-mode calls
// immediately report success
// through the registered progress callbacks.
type Simulator struct {
	log *slog.Logger

	mu          sync.Mutex
	homeID      domain.HomeID
	myNode      domain.NodeID
	nextVirtual domain.NodeID
	nodes       map[domain.NodeID]bool

	unsolicited   ports.UnsolicitedFunc
	onAddNode     ports.AddNodeProgressFunc
	onRemoveNode  ports.RemoveNodeProgressFunc
	onLearnMode   ports.LearnModeProgressFunc

	pending map[ports.TxHandle]ports.TxCompleteFunc
	nextTx  ports.TxHandle
}

// NewSimulator constructs a Simulator whose own node id is myNode.
func NewSimulator(log *slog.Logger, homeID domain.HomeID, myNode domain.NodeID) *Simulator {
	return &Simulator{
		log:         log,
		homeID:      homeID,
		myNode:      myNode,
		nextVirtual: myNode + 1,
		nodes:       map[domain.NodeID]bool{myNode: true},
		pending:     make(map[ports.TxHandle]ports.TxCompleteFunc),
	}
}

func (s *Simulator) SendData(ctx context.Context, snode, dnode domain.NodeID, frame domain.Frame, txFlags domain.TxFlags, done ports.TxCompleteFunc) (ports.TxHandle, error) {
	s.mu.Lock()
	s.nextTx++
	handle := s.nextTx
	s.pending[handle] = done
	s.mu.Unlock()
	return handle, nil
}

// Complete resolves a pending SendData from a test/driver harness.
func (s *Simulator) Complete(h ports.TxHandle, status domain.TxStatus) {
	s.mu.Lock()
	cb, ok := s.pending[h]
	delete(s.pending, h)
	s.mu.Unlock()
	if ok {
		cb(status, nil)
	}
}

func (s *Simulator) Abort(ctx context.Context, h ports.TxHandle) error {
	s.mu.Lock()
	cb, ok := s.pending[h]
	delete(s.pending, h)
	s.mu.Unlock()
	if ok {
		cb(domain.TxError, nil)
	}
	return nil
}

func (s *Simulator) AddNodeToNetwork(ctx context.Context, mode ports.AddNodeMode) error {
	if mode == ports.AddNodeStop {
		return nil
	}
	node := s.allocateNode()
	go func() {
		if s.onAddNode == nil {
			return
		}
		s.onAddNode(ports.AddNodeProgress{Status: ports.AddNodeStatusLearnReady})
		s.onAddNode(ports.AddNodeProgress{Status: ports.AddNodeStatusNodeFound, Source: node})
		s.onAddNode(ports.AddNodeProgress{Status: ports.AddNodeStatusAddingEndNode, Source: node})
		s.onAddNode(ports.AddNodeProgress{Status: ports.AddNodeStatusProtocolDone, Source: node})
		s.onAddNode(ports.AddNodeProgress{Status: ports.AddNodeStatusDone, Source: node})
	}()
	return nil
}

func (s *Simulator) RemoveFailedNode(ctx context.Context, node domain.NodeID) error {
	s.mu.Lock()
	_, present := s.nodes[node]
	if present {
		delete(s.nodes, node)
	}
	s.mu.Unlock()
	if !present {
		return zwerr.ErrFailedNodeNotFound
	}
	if s.onRemoveNode != nil {
		go s.onRemoveNode(ports.RemoveNodeProgress{OK: true, NodeID: node})
	}
	return nil
}

func (s *Simulator) ReplaceFailedNode(ctx context.Context, node domain.NodeID) error {
	s.mu.Lock()
	present := s.nodes[node]
	s.mu.Unlock()
	if !present {
		return fmt.Errorf("serialapi: node %d not present", node)
	}
	return nil
}

func (s *Simulator) GetSUCNodeID(ctx context.Context) (domain.NodeID, error) {
	return s.myNode, nil
}

func (s *Simulator) SetLearnMode(ctx context.Context, mode domain.LearnMode, enable bool) error {
	if !enable {
		return nil
	}
	if s.onLearnMode != nil {
		go s.onLearnMode(ports.LearnModeProgress{Done: true, NewNodeID: s.myNode})
	}
	return nil
}

func (s *Simulator) MemoryGetID(ctx context.Context) (domain.HomeID, domain.NodeID, error) {
	return s.homeID, s.myNode, nil
}

func (s *Simulator) SetSlaveLearnMode(ctx context.Context) (domain.NodeID, error) {
	return s.allocateNode(), nil
}

func (s *Simulator) GetNodeProtocolInfo(ctx context.Context, node domain.NodeID) (ports.NodeProtocolInfo, error) {
	return ports.NodeProtocolInfo{Listening: true}, nil
}

func (s *Simulator) InitialNodeList(ctx context.Context) ([]domain.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]domain.NodeID, 0, len(s.nodes))
	for n := range s.nodes {
		list = append(list, n)
	}
	return list, nil
}

func (s *Simulator) Unsolicited(ctx context.Context, cb ports.UnsolicitedFunc) {
	s.mu.Lock()
	s.unsolicited = cb
	s.mu.Unlock()
}

func (s *Simulator) OnAddNode(ctx context.Context, cb ports.AddNodeProgressFunc) {
	s.mu.Lock()
	s.onAddNode = cb
	s.mu.Unlock()
}

func (s *Simulator) OnRemoveNode(ctx context.Context, cb ports.RemoveNodeProgressFunc) {
	s.mu.Lock()
	s.onRemoveNode = cb
	s.mu.Unlock()
}

func (s *Simulator) OnLearnMode(ctx context.Context, cb ports.LearnModeProgressFunc) {
	s.mu.Lock()
	s.onLearnMode = cb
	s.mu.Unlock()
}

// InjectUnsolicited delivers a frame as if it arrived over the radio,
// for tests exercising the unsolicited-frame path end to end.
func (s *Simulator) InjectUnsolicited(rxFlags domain.RxFlags, dnode, snode domain.NodeID, frame domain.Frame) {
	s.mu.Lock()
	cb := s.unsolicited
	s.mu.Unlock()
	if cb != nil {
		cb(rxFlags, dnode, snode, frame)
	}
}

func (s *Simulator) allocateNode() domain.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	node := s.nextVirtual
	s.nextVirtual++
	s.nodes[node] = true
	return node
}

// randomHomeID generates a home id the way a freshly unboxed controller
// would, for callers that do not already have a persisted one.
func randomHomeID() domain.HomeID {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return domain.HomeID(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

var _ ports.RadioDriver = (*Simulator)(nil)
