// Package networkmanagement implements component G (spec §4.G): the
// strictly serial network management state machine driving inclusion,
// exclusion, learn mode and self-destruct.
package networkmanagement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zwave-gw/zipgw/internal/core/domain"
	"github.com/zwave-gw/zipgw/internal/core/ports"
	"github.com/zwave-gw/zipgw/internal/telemetry"
	"github.com/zwave-gw/zipgw/internal/zwerr"
)

// Status codes carried on NMReply.Status.
const (
	StatusOK byte = iota
	StatusFailed
	StatusBusy
	StatusTimeout
)

// Sub-status codes carried on the FAILED_NODE_REMOVE_STATUS payload
// (scenario S3), mirroring CC_NetworkManagement.c's
// NM_FAILED_NODE_NOT_FOUND/NM_FAILED_NODE_REMOVE_DONE/
// NM_FAILED_NODE_REMOVE_FAIL.
const (
	failedNodeNotFound byte = iota
	failedNodeRemoveDone
	failedNodeRemoveFail
)

// Inclusion-controller step ids carried on INCLUSION_CONTROLLER_INITIATE/
// COMPLETE (spec §4.G "Inclusion controller delegation").
const (
	icStepProxyInclusion byte = iota
	icStepProxyReplace
	icStepS0Inclusion
)

// Inclusion-controller command bytes under CCInclusionController.
const (
	icCmdInitiate byte = iota
	icCmdComplete
)

// classicNodemaskBytes is the controller's fixed classic nodemask
// length (node ids 1..232, bit index node-1); only the LR segment of a
// node-list report is length-trimmed (spec §4.G "Node list" / "failed
// node list").
const classicNodemaskBytes = (int(domain.NodeIDClassicMax-domain.NodeIDMin))/8 + 1

// lrNodemaskMaxBytes is the untrimmed size of the long-range nodemask
// (node ids 256..4000, bit index node-256).
const lrNodemaskMaxBytes = (int(domain.NodeIDLRMax-domain.NodeIDLRMin))/8 + 1

// NMS implements ports.NetworkManager. Commands are strictly serialized
// through a single mailbox goroutine - this is the one component in the
// gateway that the dependency order (spec §2) places last, since it is
// the only one allowed to drive every other component's public API.
type NMS struct {
	log   *slog.Logger
	radio ports.RadioDriver
	rd    ports.ResourceDirectory
	sec   ports.SecurityEngine

	mu     sync.Mutex
	state  domain.NMState
	flags  domain.NMFlags
	active *inFlightCmd

	mailbox chan mailboxMsg
}

type mailboxMsg struct {
	cmd     ports.NMCommand
	replyCh chan ports.NMReply
}

// nmsEvent bundles an event with whatever payload it carries so the two
// always travel together through the in-flight command's channel -
// posting them as separate non-blocking sends let a slow receiver see
// the event without its payload (or vice versa).
type nmsEvent struct {
	ev      domain.NMEvent
	payload any
}

type inFlightCmd struct {
	cmd     ports.NMCommand
	replyCh chan ports.NMReply
	events  chan nmsEvent
}

// New constructs an NMS. Run must be started in its own goroutine.
func New(log *slog.Logger, radio ports.RadioDriver, rd ports.ResourceDirectory, sec ports.SecurityEngine) *NMS {
	return &NMS{
		log:     log,
		radio:   radio,
		rd:      rd,
		sec:     sec,
		state:   domain.NMIdle,
		mailbox: make(chan mailboxMsg, 1),
	}
}

func (n *NMS) State() (domain.NMState, domain.NMFlags) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state, n.flags
}

// Submit implements ports.NetworkManager: rejects immediately with
// StatusBusy if the FSM is not idle (spec testable property 7),
// otherwise queues the command for the mailbox goroutine.
func (n *NMS) Submit(ctx context.Context, cmd ports.NMCommand) (<-chan ports.NMReply, error) {
	replyCh := make(chan ports.NMReply, 1)

	n.mu.Lock()
	if n.state != domain.NMIdle {
		n.mu.Unlock()
		replyCh <- ports.NMReply{Command: cmd.Event, SeqNo: cmd.SeqNo, Status: StatusBusy}
		close(replyCh)
		return replyCh, nil
	}
	n.mu.Unlock()

	select {
	case n.mailbox <- mailboxMsg{cmd: cmd, replyCh: replyCh}:
		return replyCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver implements ports.NetworkManager: routes an inbound event to
// whichever command is currently in flight, if any. The event and its
// payload are posted as a single value so a dropped send under
// backpressure never separates an event from the payload it needs.
func (n *NMS) Deliver(ev domain.NMEvent, payload any) {
	n.mu.Lock()
	active := n.active
	n.mu.Unlock()
	if active == nil {
		return
	}
	select {
	case active.events <- nmsEvent{ev: ev, payload: payload}:
	default:
	}
}

// Run drains the mailbox, one command at a time, until ctx is cancelled.
func (n *NMS) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.mailbox:
			n.runCommand(ctx, msg)
		}
	}
}

func (n *NMS) runCommand(ctx context.Context, msg mailboxMsg) {
	ic := &inFlightCmd{
		cmd:     msg.cmd,
		replyCh: msg.replyCh,
		events:  make(chan nmsEvent, 4),
	}
	n.mu.Lock()
	n.active = ic
	n.flags = msg.cmd.Flags
	n.mu.Unlock()

	status, nodeID, payload := n.drive(ctx, ic)

	n.mu.Lock()
	n.active = nil
	n.state = domain.NMIdle
	n.flags = 0
	n.mu.Unlock()

	ic.replyCh <- ports.NMReply{Command: msg.cmd.Event, SeqNo: msg.cmd.SeqNo, Status: status, NodeID: nodeID, Payload: payload}
	close(ic.replyCh)
}

func (n *NMS) drive(ctx context.Context, ic *inFlightCmd) (byte, domain.NodeID, []byte) {
	switch ic.cmd.Event {
	case domain.EvNodeAdd, domain.EvNodeAddS2, domain.EvNodeAddSmartStart:
		return n.driveInclusion(ctx, ic)
	case domain.EvStartProxyInclusion, domain.EvStartProxyReplace:
		return n.driveProxyInclusion(ctx, ic)
	case domain.EvLearnSet:
		return n.driveLearnMode(ctx, ic)
	case domain.EvReplaceFailedStart, domain.EvReplaceFailedStartS2:
		return n.driveReplaceFailed(ctx, ic)
	case domain.EvFailedNodeRemove:
		return n.driveFailedNodeRemove(ctx, ic)
	case domain.EvRequestNodeList:
		return n.driveRequestNodeList(ctx, false)
	case domain.EvRequestFailedNodeList:
		return n.driveRequestNodeList(ctx, true)
	default:
		return StatusFailed, 0, nil
	}
}

func (n *NMS) setState(s domain.NMState) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
	telemetry.NMStateTransitionsTotal.WithLabelValues(s.String()).Inc()
}

// driveInclusion walks WaitingForAdd -> NodeFound -> WaitForProtocol,
// then hands off to finishInclusion for the security/probe/reply tail
// shared with driveProxyInclusion (spec §4.G, scenario S2).
func (n *NMS) driveInclusion(ctx context.Context, ic *inFlightCmd) (byte, domain.NodeID, []byte) {
	n.setState(domain.NMWaitingForAdd)
	if err := n.radio.AddNodeToNetwork(ctx, ports.AddNodeAny); err != nil {
		return StatusFailed, 0, nil
	}

	var found domain.NodeID
	var nif []byte
	for {
		ev, payload, ok := n.awaitEvent(ctx, ic, domain.InclusionTimeout(nil))
		if !ok {
			return StatusTimeout, 0, nil
		}
		switch ev {
		case domain.EvAddNodeFound:
			n.setState(domain.NMNodeFound)
		case domain.EvAddEndNode, domain.EvAddController:
			if p, ok := payload.(ports.AddNodeProgress); ok {
				if p.Source != 0 {
					found = p.Source
				}
				nif = p.NIF
			}
			n.setState(domain.NMWaitForProtocol)
		case domain.EvAddProtocolDone:
			if id, ok := payload.(domain.NodeID); ok && id != 0 {
				found = id
			}
			return n.finishInclusion(ctx, ic, found, nif)
		case domain.EvAddFailed, domain.EvAddNotPrimary:
			return StatusFailed, 0, nil
		case domain.EvNodeAddStop:
			_ = n.radio.AddNodeToNetwork(ctx, ports.AddNodeStop)
			return StatusFailed, 0, nil
		}
	}
}

// driveProxyInclusion handles inclusion delegated to this gateway by an
// external inclusion controller (spec §4.G "Inclusion controller
// delegation"): the SIS has already run AddNodeToNetwork on our behalf
// and forwards the new node's id and NIF via EvNodeInfo; from there the
// security/probe/reply tail is identical to a locally-driven inclusion.
func (n *NMS) driveProxyInclusion(ctx context.Context, ic *inFlightCmd) (byte, domain.NodeID, []byte) {
	n.setState(domain.NMProxyInclusionWaitNif)
	ev, payload, ok := n.awaitEvent(ctx, ic, domain.InclusionTimeout(nil))
	if !ok || ev != domain.EvNodeInfo {
		return StatusFailed, 0, nil
	}
	p, ok := payload.(ports.AddNodeProgress)
	if !ok || p.Source == 0 {
		return StatusFailed, 0, nil
	}
	return n.finishInclusion(ctx, ic, p.Source, p.NIF)
}

// finishInclusion drives steps 4-9 of scenario S2 once the joining
// node's id is known: stop add mode, optionally hand the node off to
// the SIS as inclusion controller, bootstrap security, wait for the
// resource-directory probe, build the NODE_ADD_STATUS reply, and wait
// out WaitDhcp before returning it.
func (n *NMS) finishInclusion(ctx context.Context, ic *inFlightCmd, found domain.NodeID, nif []byte) (byte, domain.NodeID, []byte) {
	_ = n.radio.AddNodeToNetwork(ctx, ports.AddNodeStop)
	if found == 0 {
		return StatusFailed, 0, nil
	}

	addedByMe := true
	if ic.cmd.Flags.Has(domain.FlagProxyInclusion) {
		if suc, err := n.radio.GetSUCNodeID(ctx); err == nil && suc != 0 && suc != found {
			if n.driveInclusionControllerHandover(ctx, ic, suc, found, ic.cmd.Event == domain.EvStartProxyReplace) {
				addedByMe = false
			}
		}
	}

	n.setState(domain.NMWaitForSecureAdd)
	if n.sec != nil && addedByMe {
		done := make(chan domain.SecurityFlags, 1)
		if err := n.sec.SecurityAddBegin(ctx, found, ic.cmd.Event == domain.EvNodeAddS2, func(flags domain.SecurityFlags, _ bool) {
			done <- flags
		}); err == nil {
			select {
			case <-done:
			case <-time.After(domain.NonceReportTimeoutLearnMode):
			case <-ctx.Done():
				return StatusTimeout, found, nil
			}
		}
	}

	n.setState(domain.NMWaitForProbeAfterAdd)
	probeState := domain.NodeDone
	if n.rd != nil {
		if err := n.rd.AddNode(ctx, found, addedByMe); err != nil {
			return StatusFailed, found, nil
		}
		probeDone := make(chan domain.NodeState, 1)
		n.rd.NotifyOnDone(found, func(_ domain.NodeID, final domain.NodeState) {
			select {
			case probeDone <- final:
			default:
			}
		})
		select {
		case probeState = <-probeDone:
		case <-time.After(domain.InclusionTimeout(nil)):
		case <-ctx.Done():
			return StatusTimeout, found, nil
		}
	}

	status := byte(ports.AddNodeStatusDone)
	if probeState == domain.NodeProbeFail || probeState == domain.NodeFailing {
		status = byte(ports.AddNodeStatusFailed)
	}
	var dsk []byte
	if ic.cmd.Flags.Has(domain.FlagReportDsk) {
		dsk = make([]byte, 16)
	}
	reply := n.buildNodeAddStatusReply(ctx, found, status, nif, dsk)

	n.setState(domain.NMWaitDhcp)
	dhcpTimeout := time.After(domain.DhcpWait)
waitDhcp:
	for {
		select {
		case m := <-ic.events:
			if m.ev == domain.EvDhcpDone {
				break waitDhcp
			}
		case <-dhcpTimeout:
			break waitDhcp
		case <-ctx.Done():
			break waitDhcp
		}
	}

	return StatusOK, found, reply
}

// buildNodeAddStatusReply assembles the NODE_ADD_STATUS/
// EXTENDED_NODE_ADD_STATUS payload: status, node id, capability/device
// type fields, the joining NIF, the endpoint command-class list with
// COMMAND_CLASS_ASSOCIATION rewritten to COMMAND_CLASS_IP_ASSOCIATION,
// and a length-prefixed DSK field (spec §4.G step 8).
func (n *NMS) buildNodeAddStatusReply(ctx context.Context, node domain.NodeID, status byte, nif, dsk []byte) []byte {
	var info ports.NodeProtocolInfo
	if n.radio != nil {
		info, _ = n.radio.GetNodeProtocolInfo(ctx, node)
	}
	caps := byte(0)
	if info.Listening {
		caps |= 0x01
	}
	if info.FLiRS {
		caps |= 0x02
	}

	out := []byte{status, byte(node >> 8), byte(node), caps, info.BasicDevice, info.GenericType, info.SpecificType}
	out = append(out, byte(len(nif)))
	out = append(out, nif...)
	out = append(out, n.endpointCommandClasses(node)...)
	out = append(out, byte(len(dsk)))
	out = append(out, dsk...)
	return out
}

// endpointCommandClasses flattens node's probed endpoint command-class
// lists, rewriting CCAssociation to CCIPAssociation (spec §4.G step 8).
func (n *NMS) endpointCommandClasses(node domain.NodeID) []byte {
	if n.rd == nil {
		return nil
	}
	entry, ok := n.rd.Get(node)
	if !ok {
		return nil
	}
	var out []byte
	for _, ep := range entry.Endpoints {
		for _, cc := range ep.EndpointInfo {
			if cc == domain.CCAssociation {
				cc = domain.CCIPAssociation
			}
			out = append(out, cc)
		}
	}
	return out
}

// driveInclusionControllerHandover requests that sucNode (the SIS)
// finish including/replacing node on our behalf, waiting up to
// InclusionControllerHandoverTimeout for the matching
// INCLUSION_CONTROLLER_COMPLETE (spec §4.G "Inclusion controller
// delegation"). Its boolean result is folded into the caller's
// AddedByMe bookkeeping rather than surfaced as its own reply - a
// timed-out or rejected handover still leaves the node addable
// locally, it just keeps the AddedByMe flag.
func (n *NMS) driveInclusionControllerHandover(ctx context.Context, ic *inFlightCmd, sucNode, node domain.NodeID, isReplace bool) bool {
	n.setState(domain.NMPrepareSucInclusion)
	step := icStepProxyInclusion
	if isReplace {
		step = icStepProxyReplace
	}
	payload := []byte{step, byte(node >> 8), byte(node)}

	done := make(chan domain.TxStatus, 1)
	if _, err := n.radio.SendData(ctx, 0, sucNode, domain.NewFrame(domain.CCInclusionController, icCmdInitiate, payload), 0, func(s domain.TxStatus, _ []byte) {
		done <- s
	}); err != nil {
		return false
	}
	select {
	case status := <-done:
		if status != domain.TxOk {
			return false
		}
	case <-ctx.Done():
		return false
	}

	n.setState(domain.NMWaitForSucInclusion)
	ev, _, ok := n.awaitEvent(ctx, ic, domain.InclusionControllerHandoverTimeout)
	return ok && ev == domain.EvProxyComplete
}

// HandleInclusionControllerInitiate answers an SIS-initiated
// INCLUSION_CONTROLLER_INITIATE{step=S0Inclusion} handoff: run the S0
// bootstrap for node and report completion back to the SIS (spec §4.G
// "Inclusion controller delegation", the reverse handoff direction).
// The command-dispatch layer calls this when such a frame arrives.
func (n *NMS) HandleInclusionControllerInitiate(ctx context.Context, sucNode, node domain.NodeID) {
	status := byte(ports.AddNodeStatusDone)
	if n.sec != nil {
		done := make(chan domain.SecurityFlags, 1)
		if err := n.sec.SecurityAddBegin(ctx, node, false, func(flags domain.SecurityFlags, _ bool) {
			done <- flags
		}); err != nil {
			status = byte(ports.AddNodeStatusFailed)
		} else {
			select {
			case <-done:
			case <-time.After(domain.NonceReportTimeoutLearnMode):
				status = byte(ports.AddNodeStatusFailed)
			case <-ctx.Done():
				return
			}
		}
	}
	payload := []byte{icStepS0Inclusion, status}
	_, _ = n.radio.SendData(ctx, 0, sucNode, domain.NewFrame(domain.CCInclusionController, icCmdComplete, payload), 0, func(domain.TxStatus, []byte) {})
}

// driveLearnMode walks LearnMode -> LearnModeStarted -> WaitForSecureLearn,
// retrying NWI/NWE up to LearnModeRetryAttempts times, then runs the
// clean-network test that tells true exclusion apart from controller
// replication (spec §4.G "Exclusion / Learn mode").
func (n *NMS) driveLearnMode(ctx context.Context, ic *inFlightCmd) (byte, domain.NodeID, []byte) {
	attempts := 1
	if ic.cmd.LearnMode == domain.LearnNWI || ic.cmd.LearnMode == domain.LearnNWE {
		attempts = domain.LearnModeRetryAttempts
	}

	var lastEv domain.NMEvent
	ok := false
	for attempt := 0; attempt < attempts; attempt++ {
		n.setState(domain.NMLearnMode)
		if err := n.radio.SetLearnMode(ctx, ic.cmd.LearnMode, true); err != nil {
			return StatusFailed, 0, nil
		}
		n.setState(domain.NMLearnModeStarted)

		lastEv, _, ok = n.awaitEvent(ctx, ic, domain.LearnModeRetryInterval+learnModeJitter(attempt))
		if ok {
			break
		}
	}
	if !ok {
		_ = n.radio.SetLearnMode(ctx, ic.cmd.LearnMode, false)
		return StatusTimeout, 0, nil
	}
	if lastEv != domain.EvSecurityDone && lastEv != domain.EvNodeProbeDone {
		return StatusFailed, 0, nil
	}
	n.setState(domain.NMWaitForSecureLearn)

	clean := n.cleanNetwork(ctx)
	n.mu.Lock()
	if clean {
		n.flags &^= domain.FlagControllerReplication
	} else {
		n.flags |= domain.FlagControllerReplication
	}
	n.mu.Unlock()

	// The replication flag is reset with the rest of n.flags as soon as
	// this command completes, so the only way the caller learns whether
	// cleanNetwork found a SIS replica is this reply byte.
	if !clean {
		return StatusOK, 0, []byte{1}
	}
	return StatusOK, 0, []byte{0}
}

// learnModeJitter staggers successive learn-mode retry waits a little,
// the way repeated SetLearnMode attempts against a real radio would be
// spaced to avoid lockstepping with the excluding controller's own
// retry timing.
func learnModeJitter(attempt int) time.Duration {
	return time.Duration(attempt%3) * 250 * time.Millisecond
}

// cleanNetwork reports whether the controller's current node list
// contains only this gateway's own node id, distinguishing a true
// exclusion from the SIS silently replicating its network to us (spec
// §4.G "Exclusion / Learn mode"). Called without n.mu held.
func (n *NMS) cleanNetwork(ctx context.Context) bool {
	if n.radio == nil {
		return true
	}
	nodes, err := n.radio.InitialNodeList(ctx)
	if err != nil {
		return false
	}
	_, myNode, err := n.radio.MemoryGetID(ctx)
	if err != nil {
		return false
	}
	for _, node := range nodes {
		if node != myNode {
			return false
		}
	}
	return true
}

// driveReplaceFailed asks the controller to replace a failed node and
// waits for EvReplaceFailedDone; the resource directory entry is not
// touched.
func (n *NMS) driveReplaceFailed(ctx context.Context, ic *inFlightCmd) (byte, domain.NodeID, []byte) {
	n.setState(domain.NMReplaceFailedReq)
	if err := n.radio.ReplaceFailedNode(ctx, ic.cmd.TargetNode); err != nil {
		return StatusFailed, 0, nil
	}
	ev, _, ok := n.awaitEvent(ctx, ic, domain.InclusionTimeout(nil))
	if !ok {
		return StatusTimeout, 0, nil
	}
	if ev != domain.EvReplaceFailedDone {
		return StatusFailed, 0, nil
	}
	return StatusOK, ic.cmd.TargetNode, nil
}

// driveFailedNodeRemove drives named scenario S3: ask the controller to
// drop node from its failed-node table and reply with
// FAILED_NODE_REMOVE_STATUS. RemoveFailedNode resolves synchronously
// (found-and-removed, not-found, or a genuine removal failure), so the
// reply is built directly from its return rather than awaited as a
// separate event.
func (n *NMS) driveFailedNodeRemove(ctx context.Context, ic *inFlightCmd) (byte, domain.NodeID, []byte) {
	n.setState(domain.NMWaitingForFailNodeRemoval)
	node := ic.cmd.TargetNode

	switch err := n.radio.RemoveFailedNode(ctx, node); {
	case err == nil:
		if n.rd != nil {
			_ = n.rd.RemoveNode(ctx, node)
		}
		return StatusOK, node, []byte{failedNodeRemoveDone}
	case errors.Is(err, zwerr.ErrFailedNodeNotFound):
		return StatusOK, node, []byte{failedNodeNotFound}
	default:
		return StatusFailed, node, []byte{failedNodeRemoveFail}
	}
}

// driveRequestNodeList builds the classic+LR nodemask reply for
// RequestNodeList/RequestFailedNodeList (spec §4.G "Node list" /
// "failed node list").
func (n *NMS) driveRequestNodeList(ctx context.Context, failedOnly bool) (byte, domain.NodeID, []byte) {
	if n.radio == nil {
		return StatusFailed, 0, nil
	}
	if !failedOnly {
		nodes, err := n.radio.InitialNodeList(ctx)
		if err != nil {
			return StatusFailed, 0, nil
		}
		return StatusOK, 0, buildNodeListFrame(nodes)
	}

	var failed []domain.NodeID
	if n.rd != nil {
		for _, e := range n.rd.All() {
			if e.State == domain.NodeFailing {
				failed = append(failed, e.NodeID)
			}
		}
	}
	return StatusOK, 0, buildNodeListFrame(failed)
}

// buildNodeListFrame packs nodes into a fixed-length classic nodemask
// followed by a 2-byte length and a minimally-trimmed LR nodemask,
// grounded on CC_NetworkManagement.c's nm_build_node_list_frame (the
// classic segment is always MAX_CLASSIC_NODEMASK_LENGTH bytes; only the
// LR segment is trimmed to the byte covering its highest set bit). The
// result depends only on nodes, so building it twice from the same set
// with no controller events between produces identical bytes.
func buildNodeListFrame(nodes []domain.NodeID) []byte {
	classic := make([]byte, classicNodemaskBytes)
	lr := make([]byte, lrNodemaskMaxBytes)
	for _, node := range nodes {
		switch {
		case node.IsLR():
			setNodemaskBit(lr, int(node-domain.NodeIDLRMin))
		case node >= domain.NodeIDMin && node <= domain.NodeIDClassicMax:
			setNodemaskBit(classic, int(node-domain.NodeIDMin))
		}
	}
	lr = trimToHighestBit(lr)

	out := make([]byte, 0, len(classic)+2+len(lr))
	out = append(out, classic...)
	out = append(out, byte(len(lr)>>8), byte(len(lr)))
	out = append(out, lr...)
	return out
}

func setNodemaskBit(mask []byte, bit int) {
	mask[bit/8] |= 1 << uint(bit%8)
}

// trimToHighestBit returns the shortest prefix of mask that still
// covers its highest set bit (an all-zero mask trims to length 0).
func trimToHighestBit(mask []byte) []byte {
	last := -1
	for i, b := range mask {
		if b != 0 {
			last = i
		}
	}
	return mask[:last+1]
}

// awaitEvent blocks until either ic.events delivers the next NMS event,
// ctx is cancelled, or timeout elapses.
func (n *NMS) awaitEvent(ctx context.Context, ic *inFlightCmd, timeout time.Duration) (domain.NMEvent, any, bool) {
	select {
	case m := <-ic.events:
		return m.ev, m.payload, true
	case <-time.After(timeout):
		return 0, nil, false
	case <-ctx.Done():
		return 0, nil, false
	}
}

// DriveSelfDestruct runs the network-wide self-destruct teardown (spec
// §4.G scenario S6): wait, transmit the kill frame, then ask the
// controller to remove the node from its failed-node table, retrying
// once after SelfDestructRetryDelay before giving up. Returns the
// drive's own outcome plus the NODE_ADD_STATUS{FAILED|SECURITY_FAILED}
// reply payload to report upstream.
func (n *NMS) DriveSelfDestruct(ctx context.Context, node domain.NodeID) (byte, []byte) {
	n.setState(domain.NMWaitForSelfDestruct)
	select {
	case <-time.After(domain.SelfDestructWait):
	case <-ctx.Done():
		return StatusTimeout, nil
	}

	n.setState(domain.NMWaitForTxToSelfDestruct)
	done := make(chan domain.TxStatus, 1)
	if _, err := n.radio.SendData(ctx, 0, node, domain.NewFrame(domain.CCNoOperation, 0, nil), 0, func(s domain.TxStatus, _ []byte) {
		done <- s
	}); err != nil {
		return StatusFailed, nil
	}
	select {
	case status := <-done:
		if status != domain.TxOk {
			return StatusFailed, nil
		}
	case <-time.After(domain.SelfDestructRemovalWait):
		return StatusTimeout, nil
	case <-ctx.Done():
		return StatusTimeout, nil
	}

	n.setState(domain.NMWaitForSelfDestructRemoval)
	return n.selfDestructRemove(ctx, node, false)
}

// selfDestructRemove calls the controller's RemoveFailedNode to confirm
// the self-destruct, retrying once after SelfDestructRetryDelay on
// failure before reporting SECURITY_FAILED (spec §4.G scenario S6).
func (n *NMS) selfDestructRemove(ctx context.Context, node domain.NodeID, retried bool) (byte, []byte) {
	if err := n.radio.RemoveFailedNode(ctx, node); err == nil {
		if n.rd != nil {
			_ = n.rd.RemoveNode(ctx, node)
		}
		return StatusOK, nodeStatusPayload(byte(ports.AddNodeStatusFailed), node)
	}
	if retried {
		return StatusFailed, nodeStatusPayload(byte(ports.AddNodeStatusSecurityFailed), node)
	}
	select {
	case <-time.After(domain.SelfDestructRetryDelay):
	case <-ctx.Done():
		return StatusTimeout, nil
	}
	return n.selfDestructRemove(ctx, node, true)
}

func nodeStatusPayload(status byte, node domain.NodeID) []byte {
	return []byte{status, byte(node >> 8), byte(node)}
}
