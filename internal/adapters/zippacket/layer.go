package zippacket

import (
	"github.com/google/gopacket"
)

// LayerTypeZIPPacket registers the ZIP packet as a gopacket layer so the
// UDP-socket adapter can build/parse the outbound datagram with
// gopacket.SerializeLayers/gopacket.NewPacket the same way the teacher
// builds its 802.11 frames, instead of hand-splicing byte slices at the
// socket boundary.
var LayerTypeZIPPacket = gopacket.RegisterLayerType(
	2000,
	gopacket.LayerTypeMetadata{Name: "ZIPPacket", Decoder: gopacket.DecodeFunc(decodeZIPPacketLayer)},
)

// Layer adapts a Packet to gopacket.Layer/gopacket.SerializableLayer.
type Layer struct {
	Packet  Packet
	Contents []byte
}

func (l *Layer) LayerType() gopacket.LayerType { return LayerTypeZIPPacket }
func (l *Layer) LayerContents() []byte         { return l.Contents }
func (l *Layer) LayerPayload() []byte          { return nil }

// SerializeTo implements gopacket.SerializableLayer, prepending the
// encoded ZIP packet ahead of whatever layer comes after it in the
// call to gopacket.SerializeLayers (typically nothing - ZIP packet is
// the UDP payload, the outermost application-layer framing).
func (l *Layer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	wire := Encode(l.Packet)
	bytes, err := b.PrependBytes(len(wire))
	if err != nil {
		return err
	}
	copy(bytes, wire)
	return nil
}

func decodeZIPPacketLayer(data []byte, p gopacket.PacketBuilder) error {
	pkt, err := Decode(data)
	if err != nil {
		return err
	}
	p.AddLayer(&Layer{Packet: pkt, Contents: data})
	return nil
}
