package domain

import "time"

// TxFlags and RxFlags are bitmasks carried alongside a send/receive; the
// concrete bit layout belongs to the serial-API black box (spec §1), so
// this type only needs to be an opaque, copyable value.
type TxFlags uint16
type RxFlags uint16

// TSParam is the transmission parameter bundle used throughout the send
// pipeline, security engine and NMS (spec §3, "ts_param").
type TSParam struct {
	SNode    NodeID
	DNode    NodeID
	SEndpoint EndpointID
	DEndpoint EndpointID
	Scheme   Scheme
	TxFlags  TxFlags
	RxFlags  RxFlags
	// NodeList is populated for multicast/broadcast sends; empty for
	// unicast.
	NodeList []NodeID

	DiscardTimeout       time.Duration
	ForceVerify          bool
	IsMcastWithFollowup  bool
	IsMultiCommand       bool
}

// Reply returns the ts_param for a reply to this send: source and
// destination (and their endpoints) are swapped and NodeList is cleared
// (a reply is unicast); everything else carries over unchanged.
func (p TSParam) Reply() TSParam {
	r := p
	r.SNode, r.DNode = p.DNode, p.SNode
	r.SEndpoint, r.DEndpoint = p.DEndpoint, p.SEndpoint
	r.NodeList = nil
	return r
}

// ZWaveConnection is the IP-side analogue of TSParam (spec §3,
// "zwave_connection").
type ZWaveConnection struct {
	LocalIP6   [16]byte
	RemoteIP6  [16]byte
	LocalPort  uint16
	RemotePort uint16
	LEndpoint  EndpointID
	REndpoint  EndpointID
	Seq        uint8
	Scheme     Scheme
	RxFlags    RxFlags
	TxFlags    TxFlags
}
