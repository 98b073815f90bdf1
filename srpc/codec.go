package srpc

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// MaxMessageSize is the maximum encoded packet size, in bytes. This is a
// protocol constant: reducing it breaks wire compatibility.
const MaxMessageSize = 10_000_000

// sizePrefixLen is the length in bytes of the little-endian length prefix.
const sizePrefixLen = 4

// PacketCodec frames packets as a 4-byte little-endian length prefix
// followed by the protobuf-encoded body. Decode is resumable: a partially
// buffered frame does not lose state across calls.
type PacketCodec struct{}

// NewPacketCodec constructs a new PacketCodec.
func NewPacketCodec() *PacketCodec {
	return &PacketCodec{}
}

// EncodePacket encodes a packet with its length prefix, appending to dst.
func (c *PacketCodec) EncodePacket(dst []byte, pkt *Packet) ([]byte, error) {
	body, err := pkt.MarshalVT()
	if err != nil {
		return nil, err
	}
	if len(body) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	var prefix [sizePrefixLen]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(body)))
	dst = append(dst, prefix[:]...)
	dst = append(dst, body...)
	return dst, nil
}

// DecodePacket attempts to decode exactly one packet from the front of buf.
//
// Returns the decoded packet, the number of bytes consumed from buf, and an
// error. If buf does not yet contain a full frame, returns (nil, 0, nil) so
// the caller can buffer more data and retry -- this is what makes decoding
// resumable across partial reads.
func (c *PacketCodec) DecodePacket(buf []byte) (*Packet, int, error) {
	if len(buf) < sizePrefixLen {
		return nil, 0, nil
	}
	length := binary.LittleEndian.Uint32(buf[:sizePrefixLen])
	if length == 0 {
		return nil, 0, errors.Wrap(ErrMessageSizeZero, "packet codec")
	}
	if length > MaxMessageSize {
		return nil, 0, errors.Wrap(ErrMessageTooLarge, "packet codec")
	}
	total := sizePrefixLen + int(length)
	if len(buf) < total {
		return nil, 0, nil
	}
	pkt := &Packet{}
	if err := pkt.UnmarshalVT(buf[sizePrefixLen:total]); err != nil {
		return nil, 0, err
	}
	return pkt, total, nil
}
