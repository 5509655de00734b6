package domain

import "time"

// TxSessionState is the state of an in-flight S0 transmit session (spec
// §3, "S0 TX session").
type TxSessionState int

const (
	TxNonceGet TxSessionState = iota
	TxNonceGetSent
	TxEncMsg
	TxEncMsgSent
	TxEncMsg2
	TxEncMsg2Sent
	TxDone
	TxFail
)

func (s TxSessionState) String() string {
	names := [...]string{"NonceGet", "NonceGetSent", "EncMsg", "EncMsgSent", "EncMsg2", "EncMsg2Sent", "Done", "Fail"}
	if int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// TxCallback delivers the terminal status of an S0 TX session.
type TxCallback func(status TxStatus)

// TxStatus is the terminal outcome of a send-pipeline or S0 submission.
type TxStatus int

const (
	TxOk TxStatus = iota
	TxNoAck
	TxFailStatus
	TxError
	TxRoutingNotIdle
	TxRequeueQueued
	TxRequeue
)

func (s TxStatus) String() string {
	names := [...]string{"Ok", "NoAck", "Fail", "Error", "RoutingNotIdle", "RequeueQueued", "Requeue"}
	if int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// MaxCryptedBuf is the size of the per-session ciphertext scratch buffer
// (spec §3: crypted_buf[46]).
const MaxCryptedBuf = 46

// TxSession is one outstanding S0 transmit session. There is at most one
// per (SNode,DNode) pair (spec §3 invariant).
type TxSession struct {
	Param      TSParam
	Data       []byte
	State      TxSessionState
	Seq        uint8
	CryptedBuf [MaxCryptedBuf]byte
	CryptedLen int
	TxCode     TxStatus
	Callback   TxCallback
	ExpiresAt  time.Time

	// fragmentation bookkeeping
	Sequenced   bool
	SeqNibble   uint8
	SecondFrame bool
}

// Key identifies the (SNode,DNode) pair this session occupies.
func (s TxSession) Key() SessionKey {
	return SessionKey{Src: s.Param.SNode, Dst: s.Param.DNode}
}

// SessionKey is the (src,dst) pair that identifies a TX or RX session
// slot.
type SessionKey struct {
	Src NodeID
	Dst NodeID
}

// RxSessionState is the state of an in-flight S0 receive (reassembly)
// session.
type RxSessionState int

const (
	RxInit RxSessionState = iota
	RxEnc1
	RxEnc2
	RxDone
)

// MaxRxMsg is the maximum reassembled plaintext size (spec §3:
// msg_buf[<=128]).
const MaxRxMsg = 128

// RxSession buffers the first fragment of a two-segment S0 message while
// awaiting the second.
type RxSession struct {
	Src, Dst  NodeID
	State     RxSessionState
	SeqNr     uint8
	MsgBuf    [MaxRxMsg]byte
	MsgLen    int
	ExpiresAt time.Time
}

// Expired reports whether the session has outlived its deadline.
func (s RxSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Pool sizes (spec §5): fixed at compile time, never grown at runtime.
const (
	MaxTxSessions      = 4
	MaxRxSessions      = 4
	MaxSendPipelineLen = 8
	MaxSendRequests    = 4
	MaxProbeNotifiers  = 3
	MaxIPAssociations  = 10
)

// Session timers (spec §4.B).
const (
	NonceReportTimeoutLearnMode = 10 * time.Second
	NonceReportTimeoutDefault   = 2 * time.Second
	FragmentGapTimeout          = 1500 * time.Millisecond
)
