// Package sendrequest implements component D (spec §4.D): the matcher
// that couples an outbound command to its expected reply.
package sendrequest

import (
	"context"
	"sync"
	"time"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
	"github.com/zwave-gw/zipgw/internal/zwerr"
)

type waiting struct {
	handle      ports.RequestHandle
	node        domain.NodeID
	replyClass  byte
	replyCmd    byte
	onReply     ports.ReplyFunc
	timer       *time.Timer
}

// Matcher implements ports.SendRequestMatcher. Fixed at
// domain.MaxSendRequests outstanding entries (spec §5).
type Matcher struct {
	pipeline ports.SendPipeline

	mu      sync.Mutex
	nextID  ports.RequestHandle
	entries map[ports.RequestHandle]*waiting
}

// New constructs a Matcher that submits commands through pipeline.
func New(pipeline ports.SendPipeline) *Matcher {
	return &Matcher{
		pipeline: pipeline,
		entries:  make(map[ports.RequestHandle]*waiting),
	}
}

func (m *Matcher) SendRequest(ctx context.Context, param domain.TSParam, cmd domain.Frame, expectedReplyClass, expectedReplyCmd byte, timeout time.Duration, onReply ports.ReplyFunc, onTxFail ports.SendCallback) (ports.RequestHandle, error) {
	m.mu.Lock()
	if len(m.entries) >= domain.MaxSendRequests {
		m.mu.Unlock()
		return 0, zwerr.ErrPoolExhausted
	}
	m.nextID++
	id := m.nextID
	w := &waiting{
		handle:     id,
		node:       param.DNode,
		replyClass: expectedReplyClass,
		replyCmd:   expectedReplyCmd,
		onReply:    onReply,
	}
	m.entries[id] = w
	m.mu.Unlock()

	_, err := m.pipeline.Send(ctx, param, cmd, func(status domain.TxStatus) {
		if status == domain.TxOk {
			m.armTimer(id, timeout)
			return
		}
		m.remove(id)
		if onTxFail != nil {
			onTxFail(status)
		}
	})
	if err != nil {
		m.remove(id)
		return 0, err
	}
	return id, nil
}

func (m *Matcher) armTimer(id ports.RequestHandle, timeout time.Duration) {
	m.mu.Lock()
	w, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	w.timer = time.AfterFunc(timeout, func() {
		m.mu.Lock()
		_, stillWaiting := m.entries[id]
		delete(m.entries, id)
		m.mu.Unlock()
		if stillWaiting && w.onReply != nil {
			w.onReply(domain.Frame{})
		}
	})
	m.mu.Unlock()
}

// Dispatch implements ports.SendRequestMatcher.
func (m *Matcher) Dispatch(param domain.TSParam, frame domain.Frame) bool {
	m.mu.Lock()
	var match *waiting
	for _, w := range m.entries {
		if w.node == param.SNode && w.replyClass == frame.Class() && w.replyCmd == frame.Command() {
			match = w
			break
		}
	}
	if match == nil {
		m.mu.Unlock()
		return false
	}
	if match.timer != nil {
		match.timer.Stop()
	}
	m.mu.Unlock()

	action := ports.ReplyDone
	if match.onReply != nil {
		action = match.onReply(frame)
	}

	m.mu.Lock()
	if action == ports.ReplyDone {
		delete(m.entries, match.handle)
	} else if w, ok := m.entries[match.handle]; ok {
		w.timer = time.AfterFunc(defaultRearmTimeout, func() {
			m.mu.Lock()
			delete(m.entries, match.handle)
			m.mu.Unlock()
		})
	}
	m.mu.Unlock()
	return true
}

// defaultRearmTimeout bounds a multi-report exchange's next page; the
// caller does not get to choose a different timeout per page.
const defaultRearmTimeout = 5 * time.Second

// AbortRequestsFor implements ports.SendRequestMatcher.
func (m *Matcher) AbortRequestsFor(node domain.NodeID) {
	m.mu.Lock()
	var victims []*waiting
	for id, w := range m.entries {
		if w.node == node {
			victims = append(victims, w)
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	for _, w := range victims {
		if w.timer != nil {
			w.timer.Stop()
		}
		if w.onReply != nil {
			w.onReply(domain.Frame{})
		}
	}
}

func (m *Matcher) remove(id ports.RequestHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}
