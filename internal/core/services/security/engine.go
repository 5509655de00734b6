// Package security implements component B (spec §4.B): the Security
// Scheme 0 nonce/session engine sitting directly on top of the radio
// façade (component A).
package security

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
	"github.com/zwave-gw/zipgw/internal/zwerr"
)

// Engine implements ports.SecurityEngine. One Engine instance serves the
// whole gateway; MyNodeID is fixed at construction.
type Engine struct {
	keys    Keys
	nonces  *NonceTable
	tx      *txPool
	rx      *rxPool
	radio   ports.RadioFacade
	myNode  domain.NodeID

	mu           sync.Mutex
	nonceWaiters map[domain.SessionKey]chan domain.Nonce8
	schemeWaiters map[domain.NodeID]chan domain.SecurityFlags
	verifyWaiters map[domain.NodeID]chan bool
}

// NewEngine constructs a security engine for myNode using keys derived
// from the network key already loaded by the caller.
func NewEngine(keys Keys, myNode domain.NodeID, radio ports.RadioFacade) *Engine {
	return &Engine{
		keys:          keys,
		nonces:        NewNonceTable(),
		tx:            newTxPool(),
		rx:            newRxPool(),
		radio:         radio,
		myNode:        myNode,
		nonceWaiters:  make(map[domain.SessionKey]chan domain.Nonce8),
		schemeWaiters: make(map[domain.NodeID]chan domain.SecurityFlags),
		verifyWaiters: make(map[domain.NodeID]chan bool),
	}
}

// sendRaw pushes frame through the radio façade and blocks until its
// terminal status arrives or ctx is cancelled.
func (e *Engine) sendRaw(ctx context.Context, param domain.TSParam, frame domain.Frame) error {
	done := make(chan domain.TxStatus, 1)
	_, err := e.radio.Send(ctx, param.SNode, param.DNode, frame, param.TxFlags, func(status domain.TxStatus, _ []byte) {
		done <- status
	})
	if err != nil {
		return zwerr.Wrap(zwerr.KindRadioFail, err)
	}
	select {
	case status := <-done:
		if status != domain.TxOk {
			return zwerr.Wrap(zwerr.KindRadioFail, fmt.Errorf("radio tx status %s", status))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randIV() ([8]byte, error) {
	var iv [8]byte
	_, err := rand.Read(iv[:])
	return iv, err
}

// EncapsulateAndSend implements ports.SecurityEngine.
func (e *Engine) EncapsulateAndSend(ctx context.Context, param domain.TSParam, plaintext []byte, cb domain.TxCallback) error {
	key := domain.SessionKey{Src: param.SNode, Dst: param.DNode}
	sess := &domain.TxSession{
		Param:     param,
		Data:      plaintext,
		State:     domain.TxNonceGet,
		Callback:  cb,
		ExpiresAt: time.Now().Add(domain.NonceReportTimeoutDefault + domain.FragmentGapTimeout),
	}
	if err := e.tx.Alloc(key, sess); err != nil {
		return err
	}

	waiter := make(chan domain.Nonce8, 1)
	e.mu.Lock()
	e.nonceWaiters[key] = waiter
	e.mu.Unlock()

	go e.runTxSession(ctx, key, sess, waiter)
	return nil
}

func (e *Engine) runTxSession(ctx context.Context, key domain.SessionKey, sess *domain.TxSession, waiter chan domain.Nonce8) {
	defer func() {
		e.tx.Free(key)
		e.mu.Lock()
		delete(e.nonceWaiters, key)
		e.mu.Unlock()
	}()

	finish := func(status domain.TxStatus) {
		if sess.Callback != nil {
			sess.Callback(status)
		}
	}

	sess.State = domain.TxNonceGetSent
	if err := e.sendRaw(ctx, sess.Param, domain.NewFrame(domain.CCSecurity, CmdNonceGet, nil)); err != nil {
		sess.State = domain.TxFail
		finish(domain.TxError)
		return
	}

	var nonce domain.Nonce8
	select {
	case nonce = <-waiter:
	case <-time.After(domain.NonceReportTimeoutDefault):
		sess.State = domain.TxFail
		finish(domain.TxFailStatus)
		return
	case <-ctx.Done():
		sess.State = domain.TxFail
		finish(domain.TxError)
		return
	}

	chunks := splitForFragmentation(sess.Data, MaxFrameDefault)
	sess.Seq = (sess.Seq + 1) & flagSeqNibbleMask

	base, err := randIV()
	if err != nil {
		sess.State = domain.TxFail
		finish(domain.TxError)
		return
	}

	for i, chunk := range chunks {
		sess.State = domain.TxEncMsg
		iv := base
		iv[7] += byte(i)

		var flags byte
		if len(chunks) > 1 {
			flags = FlagSequenced | (sess.Seq & flagSeqNibbleMask)
			if i == 1 {
				flags |= FlagSecondFrame
			}
		}

		full := append([]byte{flags}, chunk...)
		fullIV := buildIV(iv, nonce)
		ciphertext, err := ofbCrypt(e.keys.Enc, fullIV, full)
		if err != nil {
			sess.State = domain.TxFail
			finish(domain.TxError)
			return
		}
		tag, err := authTag(e.keys.Auth, CmdMessageEncapsulation, nodeByte(sess.Param.SNode), nodeByte(sess.Param.DNode), ciphertext)
		if err != nil {
			sess.State = domain.TxFail
			finish(domain.TxError)
			return
		}
		seg := segment{
			commandByte: CmdMessageEncapsulation,
			senderIV:    iv,
			ciphertext:  ciphertext,
			receiverIV0: nonce.RI(),
			mac:         tag,
		}
		sess.State = domain.TxEncMsgSent
		if err := e.sendRaw(ctx, sess.Param, encodeSegment(seg)); err != nil {
			sess.State = domain.TxFail
			finish(domain.TxError)
			return
		}
	}

	sess.State = domain.TxDone
	finish(domain.TxOk)
}

// splitForFragmentation breaks data into at most two chunks that fit the
// wire budget for maxFrame (spec §4.B step 3, §8 fragmentation scenario).
// A message that does not fit even split in two is a caller error; this
// engine does not support more than one S0 fragmentation boundary.
func splitForFragmentation(data []byte, maxFrame int) [][]byte {
	budget := fragmentThreshold(maxFrame)
	if len(data) <= budget {
		return [][]byte{data}
	}
	return [][]byte{data[:budget], data[budget:]}
}

// HandleInbound implements ports.SecurityEngine.
func (e *Engine) HandleInbound(ctx context.Context, param domain.TSParam, frame domain.Frame) ([]byte, bool, error) {
	if frame.Class() != domain.CCSecurity {
		return nil, false, zwerr.ErrUnknownClass
	}
	now := time.Now()

	switch frame.Command() {
	case CmdNonceGet:
		return nil, false, e.handleNonceGet(ctx, param, now)

	case CmdNonceReport:
		return nil, false, e.handleNonceReport(frame, param, now)

	case CmdMessageEncapsulation, CmdMessageEncapsulationNonceGet:
		return e.handleEncapsulated(frame, param, now)

	case CmdSchemeReport:
		return nil, false, e.handleSchemeReport(frame, param)

	default:
		return nil, false, zwerr.ErrUnimplementedCmd
	}
}

func (e *Engine) handleNonceGet(ctx context.Context, param domain.TSParam, now time.Time) error {
	nonce, err := e.nonces.GenerateFreshNonce(param.DNode, param.SNode, now)
	if err != nil {
		return err
	}
	if !e.nonces.RegisterNonce(param.DNode, param.SNode, true, nonce, now) {
		return zwerr.ErrPoolExhausted
	}
	reply := domain.NewFrame(domain.CCSecurity, CmdNonceReport, nonce[:])
	go func() {
		_ = e.sendRaw(context.Background(), param.Reply(), reply)
	}()
	return nil
}

func (e *Engine) handleNonceReport(frame domain.Frame, param domain.TSParam, now time.Time) error {
	p := frame.Payload()
	if len(p) < 8 {
		return zwerr.ErrBadTLVLength
	}
	var nonce domain.Nonce8
	copy(nonce[:], p[:8])
	e.nonces.RegisterNonce(param.SNode, param.DNode, false, nonce, now)

	key := domain.SessionKey{Src: param.DNode, Dst: param.SNode}
	e.mu.Lock()
	w, ok := e.nonceWaiters[key]
	e.mu.Unlock()
	if ok {
		select {
		case w <- nonce:
		default:
		}
	}
	return nil
}

func (e *Engine) handleEncapsulated(frame domain.Frame, param domain.TSParam, now time.Time) ([]byte, bool, error) {
	seg, err := decodeSegment(frame)
	if err != nil {
		return nil, false, err
	}
	nonce, ok := e.nonces.GetNonce(param.DNode, param.SNode, seg.receiverIV0, true, now)
	if !ok {
		return nil, false, zwerr.ErrNonceUnknown
	}
	valid, err := verifyTag(e.keys.Auth, seg.commandByte, nodeByte(param.SNode), nodeByte(param.DNode), seg.ciphertext, seg.mac)
	if err != nil {
		return nil, false, err
	}
	if !valid {
		return nil, false, zwerr.ErrMACMismatch
	}
	e.nonces.ClearNonce(param.DNode, param.SNode, nonce)

	iv := buildIV(seg.senderIV, nonce)
	plain, err := ofbCrypt(e.keys.Enc, iv, seg.ciphertext)
	if err != nil || len(plain) == 0 {
		return nil, false, zwerr.ErrDecryptStructural
	}
	flags, payload := plain[0], plain[1:]

	var full []byte
	key := domain.SessionKey{Src: param.SNode, Dst: param.DNode}
	switch {
	case flags&FlagSequenced == 0:
		full = payload

	case flags&FlagSecondFrame == 0:
		rs := &domain.RxSession{
			Src: param.SNode, Dst: param.DNode,
			State: domain.RxEnc1, SeqNr: flags & flagSeqNibbleMask,
			MsgLen:    len(payload),
			ExpiresAt: now.Add(domain.FragmentGapTimeout),
		}
		if len(payload) > domain.MaxRxMsg {
			return nil, false, zwerr.ErrBadTLVLength
		}
		copy(rs.MsgBuf[:], payload)
		e.rx.Start(key, rs, now)
		return nil, false, nil

	default:
		rs, ok := e.rx.Get(key)
		if !ok || rs.Expired(now) || rs.SeqNr != flags&flagSeqNibbleMask {
			return nil, false, zwerr.ErrBadTLVLength
		}
		if rs.MsgLen+len(payload) > domain.MaxRxMsg {
			e.rx.Finish(key)
			return nil, false, zwerr.ErrBadTLVLength
		}
		full = append(append([]byte(nil), rs.MsgBuf[:rs.MsgLen]...), payload...)
		e.rx.Finish(key)
	}

	inner, ok := domain.ParseFrame(full)
	if ok && inner.Class() == domain.CCSecurity && inner.Command() == CmdNetworkKeyVerify {
		e.mu.Lock()
		w, has := e.verifyWaiters[param.SNode]
		e.mu.Unlock()
		if has {
			select {
			case w <- true:
			default:
			}
		}
		return nil, false, nil
	}
	return full, true, nil
}

func (e *Engine) handleSchemeReport(frame domain.Frame, param domain.TSParam) error {
	p := frame.Payload()
	var flags domain.SecurityFlags
	if len(p) >= 1 && p[0]&0x01 != 0 {
		flags = flags.With(domain.FlagS0)
	}
	e.mu.Lock()
	w, ok := e.schemeWaiters[param.SNode]
	e.mu.Unlock()
	if ok {
		select {
		case w <- flags:
		default:
		}
	}
	return nil
}

// SecurityAddBegin implements ports.SecurityEngine: the post-inclusion S0
// bootstrap (spec §4.B, scheme get/report, key set/verify).
func (e *Engine) SecurityAddBegin(ctx context.Context, node domain.NodeID, isController bool, cb func(flags domain.SecurityFlags, ok bool)) error {
	go e.runBootstrap(ctx, node, cb)
	return nil
}

func (e *Engine) runBootstrap(ctx context.Context, node domain.NodeID, cb func(domain.SecurityFlags, bool)) {
	param := domain.TSParam{SNode: e.myNode, DNode: node}

	schemeWaiter := make(chan domain.SecurityFlags, 1)
	e.mu.Lock()
	e.schemeWaiters[node] = schemeWaiter
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.schemeWaiters, node)
		e.mu.Unlock()
	}()

	if err := e.sendRaw(ctx, param, domain.NewFrame(domain.CCSecurity, CmdSchemeGet, nil)); err != nil {
		cb(0, false)
		return
	}

	select {
	case <-schemeWaiter:
	case <-time.After(domain.NonceReportTimeoutDefault):
		cb(0, false)
		return
	case <-ctx.Done():
		cb(0, false)
		return
	}

	verifyWaiter := make(chan bool, 1)
	e.mu.Lock()
	e.verifyWaiters[node] = verifyWaiter
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.verifyWaiters, node)
		e.mu.Unlock()
	}()

	keySetFrame, ok, err := e.encapsulateWithZeroKey(ctx, param, []byte{byte(domain.CCSecurity), CmdNetworkKeySet}, node)
	if err != nil || !ok {
		cb(0, false)
		return
	}
	if err := e.sendRaw(ctx, param, keySetFrame); err != nil {
		cb(0, false)
		return
	}

	select {
	case <-verifyWaiter:
		cb(domain.SecurityFlags(0).With(domain.FlagS0), true)
	case <-time.After(domain.NonceReportTimeoutLearnMode):
		cb(0, false)
	case <-ctx.Done():
		cb(0, false)
	}
}

// encapsulateWithZeroKey builds one S0 segment for the bootstrap key-set
// frame, encrypted under the all-zero bootstrap keys rather than the
// engine's live network key (spec §4.B: NETWORK_KEY_SET is the one frame
// ever sent under the zero key).
func (e *Engine) encapsulateWithZeroKey(ctx context.Context, param domain.TSParam, inner []byte, node domain.NodeID) (domain.Frame, bool, error) {
	waiter := make(chan domain.Nonce8, 1)
	key := domain.SessionKey{Src: param.SNode, Dst: param.DNode}
	e.mu.Lock()
	e.nonceWaiters[key] = waiter
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.nonceWaiters, key)
		e.mu.Unlock()
	}()

	if err := e.sendRaw(ctx, param, domain.NewFrame(domain.CCSecurity, CmdNonceGet, nil)); err != nil {
		return domain.Frame{}, false, err
	}
	var nonce domain.Nonce8
	select {
	case nonce = <-waiter:
	case <-time.After(domain.NonceReportTimeoutDefault):
		return domain.Frame{}, false, zwerr.ErrBootstrapTimeout
	case <-ctx.Done():
		return domain.Frame{}, false, ctx.Err()
	}

	iv, err := randIV()
	if err != nil {
		return domain.Frame{}, false, err
	}
	full := append([]byte{0}, inner...)
	fullIV := buildIV(iv, nonce)
	ciphertext, err := ofbCrypt(e.keys.EncZero, fullIV, full)
	if err != nil {
		return domain.Frame{}, false, err
	}
	tag, err := authTag(e.keys.AuthZero, CmdMessageEncapsulation, nodeByte(param.SNode), nodeByte(param.DNode), ciphertext)
	if err != nil {
		return domain.Frame{}, false, err
	}
	seg := segment{
		commandByte: CmdMessageEncapsulation,
		senderIV:    iv,
		ciphertext:  ciphertext,
		receiverIV0: nonce.RI(),
		mac:         tag,
	}
	return encodeSegment(seg), true, nil
}
