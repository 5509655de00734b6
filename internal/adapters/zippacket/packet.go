// Package zippacket implements the ZIP packet wire codec (spec §6): the
// UDP-carried framing wrapping a Z-Wave command between the gateway and
// an IP peer. The TLV walk is grounded on the teacher's IterateIEs
// (internal/adapters/sniffer/ie/ie_parser.go) - a length-prefixed,
// bounds-checked element walk - generalized from 802.11 information
// elements to ZIP header extension options.
package zippacket

import (
	"encoding/binary"
	"fmt"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

const (
	CCZip     = 0x23
	ZipPacket = 0x02
)

// Flags0 bits (ack/nack semantics).
const (
	Flag0AckReq   = 1 << 7
	Flag0AckRes   = 1 << 6
	Flag0NackRes  = 1 << 5
	Flag0NackWait = 1 << 4
	Flag0NackQF   = 1 << 3
	Flag0NackOErr = 1 << 2
)

// Flags1 bits.
const (
	Flag1HdrExtIncl   = 1 << 7
	Flag1ZWCmdIncl    = 1 << 6
	Flag1SecureOrigin = 1 << 4
)

// TLV option types (spec §6).
const (
	OptEncapsulationFormatInfo   = 0x84
	OptMulticastAddressing       = 0x05
	OptInstallationMaintenanceGet = 0x08
	OptExtHeaderLength           = 0x85 // critical bit set, as the spec requires for a length extension
)

// TLV is one header-extension option: (type, len, value).
type TLV struct {
	Type  byte
	Value []byte
}

// Critical reports whether the TLV's high bit marks it as one a
// receiver must not silently ignore.
func (t TLV) Critical() bool { return t.Type&0x80 != 0 }

// Packet is a decoded ZIP packet (spec §6's simplified framing).
type Packet struct {
	Flags0     byte
	Flags1     byte
	Seq        byte
	SEndpoint  domain.EndpointID
	DEndpoint  domain.EndpointID
	TLVs       []TLV
	ZWaveCmd   []byte
}

// AckRequested reports whether the sender wants an ACK_RES/NACK_RES.
func (p Packet) AckRequested() bool { return p.Flags0&Flag0AckReq != 0 }

// Encode serializes p into its wire form, including the CC_ZIP/ZIP_PACKET
// command header.
func Encode(p Packet) []byte {
	flags1 := p.Flags1
	if len(p.TLVs) > 0 {
		flags1 |= Flag1HdrExtIncl
	}
	if len(p.ZWaveCmd) > 0 {
		flags1 |= Flag1ZWCmdIncl
	}

	hdrExt := encodeTLVs(p.TLVs)

	buf := make([]byte, 0, 8+len(hdrExt)+len(p.ZWaveCmd))
	buf = append(buf, CCZip, ZipPacket, p.Flags0, flags1, p.Seq, byte(p.SEndpoint), byte(p.DEndpoint))
	buf = append(buf, byte(len(hdrExt)))
	buf = append(buf, hdrExt...)
	buf = append(buf, p.ZWaveCmd...)
	return buf
}

func encodeTLVs(tlvs []TLV) []byte {
	var buf []byte
	for _, t := range tlvs {
		buf = append(buf, t.Type, byte(len(t.Value)))
		buf = append(buf, t.Value...)
	}
	return buf
}

// Decode parses a wire-form ZIP packet. It returns an error for any
// structurally impossible framing (spec §7 edge case "ProtocolViolation"
// - a TLV whose length runs past the declared header-extension length,
// or a header-extension length that runs past the frame).
func Decode(data []byte) (Packet, error) {
	if len(data) < 8 {
		return Packet{}, fmt.Errorf("zippacket: frame too short (%d bytes)", len(data))
	}
	if data[0] != CCZip || data[1] != ZipPacket {
		return Packet{}, fmt.Errorf("zippacket: not a ZIP_PACKET frame (class=%#x command=%#x)", data[0], data[1])
	}

	p := Packet{
		Flags0:    data[2],
		Flags1:    data[3],
		Seq:       data[4],
		SEndpoint: domain.EndpointID(data[5]),
		DEndpoint: domain.EndpointID(data[6]),
	}

	hdrExtLen := int(data[7])
	offset := 8
	if offset+hdrExtLen > len(data) {
		return Packet{}, fmt.Errorf("zippacket: header extension length %d exceeds frame", hdrExtLen)
	}

	tlvs, err := decodeTLVs(data[offset : offset+hdrExtLen])
	if err != nil {
		return Packet{}, err
	}
	p.TLVs = tlvs
	offset += hdrExtLen

	if p.Flags1&Flag1ZWCmdIncl != 0 {
		p.ZWaveCmd = append([]byte(nil), data[offset:]...)
	}
	return p, nil
}

func decodeTLVs(data []byte) ([]TLV, error) {
	var tlvs []TLV
	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("zippacket: truncated TLV header at offset %d", offset)
		}
		typ := data[offset]
		length := int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return nil, fmt.Errorf("zippacket: TLV type %#x length %d exceeds header extension", typ, length)
		}
		tlvs = append(tlvs, TLV{Type: typ, Value: append([]byte(nil), data[offset:offset+length]...)})
		offset += length
	}
	return tlvs, nil
}

// FindTLV returns the first option of the given type, if present.
func FindTLV(tlvs []TLV, typ byte) (TLV, bool) {
	for _, t := range tlvs {
		if t.Type == typ {
			return t, true
		}
	}
	return TLV{}, false
}

// EncapsulationFormatInfo decodes the OptEncapsulationFormatInfo TLV
// into the (security level, CRC16) pair it advertises.
func EncapsulationFormatInfo(tlvs []TLV) (secLevel byte, crc16 bool, ok bool) {
	t, found := FindTLV(tlvs, OptEncapsulationFormatInfo)
	if !found || len(t.Value) < 1 {
		return 0, false, false
	}
	secLevel = t.Value[0] & 0x07
	crc16 = t.Value[0]&0x08 != 0
	return secLevel, crc16, true
}

// NodeIP derives the node's tunnel IPv6 address from a /112 PAN prefix
// (spec §6 "IPv6 address scheme"): the low 16 bits carry the node id,
// everything above it is the configured prefix.
func NodeIP(panPrefix [16]byte, node domain.NodeID) [16]byte {
	ip := panPrefix
	binary.BigEndian.PutUint16(ip[14:], uint16(node))
	return ip
}

// NodeIDFromIP is the inverse of NodeIP: it extracts the low 16 bits as
// a node id, ignoring the prefix (the caller is expected to have
// already verified the prefix matches its configured PAN).
func NodeIDFromIP(ip [16]byte) domain.NodeID {
	return domain.NodeID(binary.BigEndian.Uint16(ip[14:]))
}
