package zippacket

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	p := Packet{
		Flags0:    Flag0AckReq,
		Seq:       7,
		SEndpoint: 0,
		DEndpoint: 1,
		TLVs: []TLV{
			{Type: OptEncapsulationFormatInfo, Value: []byte{0x02}},
		},
		ZWaveCmd: []byte{0x20, 0x01, 0xFF},
	}

	wire := Encode(p)
	decoded, err := Decode(wire)
	require.NoError(t, err)

	assert.Equal(t, p.Flags0, decoded.Flags0)
	assert.Equal(t, p.Seq, decoded.Seq)
	assert.Equal(t, p.SEndpoint, decoded.SEndpoint)
	assert.Equal(t, p.DEndpoint, decoded.DEndpoint)
	assert.Equal(t, p.ZWaveCmd, decoded.ZWaveCmd)
	require.Len(t, decoded.TLVs, 1)
	assert.Equal(t, byte(OptEncapsulationFormatInfo), decoded.TLVs[0].Type)

	rewire := Encode(decoded)
	assert.Equal(t, wire, rewire)
}

func TestDecode_RejectsShortFrame(t *testing.T) {
	_, err := Decode([]byte{CCZip, ZipPacket, 0, 0})
	assert.Error(t, err)
}

func TestDecode_RejectsOversizedHeaderExtensionLength(t *testing.T) {
	data := []byte{CCZip, ZipPacket, 0, 0, 0, 0, 0, 0x10}
	_, err := Decode(data)
	assert.Error(t, err)
}

func TestDecode_RejectsTruncatedTLV(t *testing.T) {
	data := []byte{CCZip, ZipPacket, 0, 0, 0, 0, 0, 0x02, OptEncapsulationFormatInfo, 0x05}
	_, err := Decode(data)
	assert.Error(t, err)
}

func TestEncapsulationFormatInfo_DecodesSecurityLevel(t *testing.T) {
	tlvs := []TLV{{Type: OptEncapsulationFormatInfo, Value: []byte{0x01}}}
	level, crc16, ok := EncapsulationFormatInfo(tlvs)
	assert.True(t, ok)
	assert.Equal(t, byte(0x01), level)
	assert.False(t, crc16)
}

func TestLayer_SerializeAndDecodeRoundTrip(t *testing.T) {
	p := Packet{
		Flags0:    Flag0AckReq,
		Seq:       3,
		SEndpoint: 0,
		DEndpoint: 0,
		ZWaveCmd:  []byte{0x20, 0x01, 0x00},
	}

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, (&Layer{Packet: p}).SerializeTo(buf, gopacket.SerializeOptions{}))

	packet := gopacket.NewPacket(buf.Bytes(), LayerTypeZIPPacket, gopacket.Default)
	layer := packet.Layer(LayerTypeZIPPacket)
	require.NotNil(t, layer)

	decoded := layer.(*Layer)
	assert.Equal(t, p.Seq, decoded.Packet.Seq)
	assert.Equal(t, p.ZWaveCmd, decoded.Packet.ZWaveCmd)
}

func TestNodeIP_RoundTrip(t *testing.T) {
	var prefix [16]byte
	copy(prefix[:], []byte{0xfd, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})

	ip := NodeIP(prefix, domain.NodeID(42))
	assert.Equal(t, domain.NodeID(42), NodeIDFromIP(ip))
}
