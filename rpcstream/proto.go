package rpcstream

import (
	"github.com/aperturerobotics/starpc/srpc"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for the wire types below, matching the rpcstream.proto
// schema this package implements by hand (no protoc invocation).
const (
	rpcStreamPacketInitFieldNum = 1
	rpcStreamPacketAckFieldNum  = 2
	rpcStreamPacketDataFieldNum = 3

	rpcStreamInitComponentIDFieldNum = 1

	rpcAckErrorFieldNum = 1
)

// RpcStreamPacket is a packet encapsulating data for a nested RPC stream.
// Exactly one of Init, Ack, Data is set.
type RpcStreamPacket struct {
	Body isRpcStreamPacketBody
}

// isRpcStreamPacketBody is the oneof constraint for RpcStreamPacket.Body.
type isRpcStreamPacketBody interface {
	isRpcStreamPacketBody()
}

// RpcStreamPacket_Init wraps the initiator's handshake message.
type RpcStreamPacket_Init struct {
	Init *RpcStreamInit
}

func (*RpcStreamPacket_Init) isRpcStreamPacketBody() {}

// RpcStreamPacket_Ack wraps the acceptor's handshake response.
type RpcStreamPacket_Ack struct {
	Ack *RpcAck
}

func (*RpcStreamPacket_Ack) isRpcStreamPacketBody() {}

// RpcStreamPacket_Data wraps one chunk of tunneled byte-stream data.
type RpcStreamPacket_Data struct {
	Data []byte
}

func (*RpcStreamPacket_Data) isRpcStreamPacketBody() {}

// GetBody returns the packet's body, or nil if unset.
func (p *RpcStreamPacket) GetBody() isRpcStreamPacketBody {
	if p == nil {
		return nil
	}
	return p.Body
}

// GetInit returns the Init body, or nil if the packet holds something else.
func (p *RpcStreamPacket) GetInit() *RpcStreamInit {
	if p == nil {
		return nil
	}
	if b, ok := p.Body.(*RpcStreamPacket_Init); ok {
		return b.Init
	}
	return nil
}

// GetAck returns the Ack body, or nil if the packet holds something else.
func (p *RpcStreamPacket) GetAck() *RpcAck {
	if p == nil {
		return nil
	}
	if b, ok := p.Body.(*RpcStreamPacket_Ack); ok {
		return b.Ack
	}
	return nil
}

// GetData returns the Data body, or nil if the packet holds something else.
func (p *RpcStreamPacket) GetData() []byte {
	if p == nil {
		return nil
	}
	if b, ok := p.Body.(*RpcStreamPacket_Data); ok {
		return b.Data
	}
	return nil
}

// MarshalVT encodes p to wire bytes.
func (p *RpcStreamPacket) MarshalVT() ([]byte, error) {
	var buf []byte
	switch b := p.GetBody().(type) {
	case *RpcStreamPacket_Init:
		if b.Init != nil {
			inner, err := b.Init.MarshalVT()
			if err != nil {
				return nil, err
			}
			buf = protowire.AppendTag(buf, rpcStreamPacketInitFieldNum, protowire.BytesType)
			buf = protowire.AppendBytes(buf, inner)
		}
	case *RpcStreamPacket_Ack:
		if b.Ack != nil {
			inner, err := b.Ack.MarshalVT()
			if err != nil {
				return nil, err
			}
			buf = protowire.AppendTag(buf, rpcStreamPacketAckFieldNum, protowire.BytesType)
			buf = protowire.AppendBytes(buf, inner)
		}
	case *RpcStreamPacket_Data:
		buf = protowire.AppendTag(buf, rpcStreamPacketDataFieldNum, protowire.BytesType)
		buf = protowire.AppendBytes(buf, b.Data)
	}
	return buf, nil
}

// UnmarshalVT decodes buf into p.
func (p *RpcStreamPacket) UnmarshalVT(buf []byte) error {
	for len(buf) > 0 {
		fieldNum, wireType, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return srpc.ErrInvalidMessage
		}
		buf = buf[n:]

		switch fieldNum {
		case rpcStreamPacketInitFieldNum:
			inner, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return srpc.ErrInvalidMessage
			}
			init := &RpcStreamInit{}
			if err := init.UnmarshalVT(inner); err != nil {
				return err
			}
			p.Body = &RpcStreamPacket_Init{Init: init}
			buf = buf[n:]
		case rpcStreamPacketAckFieldNum:
			inner, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return srpc.ErrInvalidMessage
			}
			ack := &RpcAck{}
			if err := ack.UnmarshalVT(inner); err != nil {
				return err
			}
			p.Body = &RpcStreamPacket_Ack{Ack: ack}
			buf = buf[n:]
		case rpcStreamPacketDataFieldNum:
			data, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return srpc.ErrInvalidMessage
			}
			p.Body = &RpcStreamPacket_Data{Data: append([]byte(nil), data...)}
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(fieldNum, wireType, buf)
			if n < 0 {
				return srpc.ErrInvalidMessage
			}
			buf = buf[n:]
		}
	}
	return nil
}

// RpcStreamInit is the first message sent on a nested RPC stream, naming
// the component the initiator wants to reach.
type RpcStreamInit struct {
	ComponentId string
}

// GetComponentId returns the component id, or "" if i is nil.
func (i *RpcStreamInit) GetComponentId() string {
	if i == nil {
		return ""
	}
	return i.ComponentId
}

// MarshalVT encodes i to wire bytes.
func (i *RpcStreamInit) MarshalVT() ([]byte, error) {
	var buf []byte
	if i.ComponentId != "" {
		buf = protowire.AppendTag(buf, rpcStreamInitComponentIDFieldNum, protowire.BytesType)
		buf = protowire.AppendString(buf, i.ComponentId)
	}
	return buf, nil
}

// UnmarshalVT decodes buf into i.
func (i *RpcStreamInit) UnmarshalVT(buf []byte) error {
	for len(buf) > 0 {
		fieldNum, wireType, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return srpc.ErrInvalidMessage
		}
		buf = buf[n:]

		switch fieldNum {
		case rpcStreamInitComponentIDFieldNum:
			s, n := protowire.ConsumeString(buf)
			if n < 0 {
				return srpc.ErrInvalidMessage
			}
			i.ComponentId = s
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(fieldNum, wireType, buf)
			if n < 0 {
				return srpc.ErrInvalidMessage
			}
			buf = buf[n:]
		}
	}
	return nil
}

// RpcAck acknowledges an RpcStreamInit, optionally carrying a setup error.
type RpcAck struct {
	Error string
}

// GetError returns the error string, or "" if a is nil.
func (a *RpcAck) GetError() string {
	if a == nil {
		return ""
	}
	return a.Error
}

// MarshalVT encodes a to wire bytes.
func (a *RpcAck) MarshalVT() ([]byte, error) {
	var buf []byte
	if a.Error != "" {
		buf = protowire.AppendTag(buf, rpcAckErrorFieldNum, protowire.BytesType)
		buf = protowire.AppendString(buf, a.Error)
	}
	return buf, nil
}

// UnmarshalVT decodes buf into a.
func (a *RpcAck) UnmarshalVT(buf []byte) error {
	for len(buf) > 0 {
		fieldNum, wireType, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return srpc.ErrInvalidMessage
		}
		buf = buf[n:]

		switch fieldNum {
		case rpcAckErrorFieldNum:
			s, n := protowire.ConsumeString(buf)
			if n < 0 {
				return srpc.ErrInvalidMessage
			}
			a.Error = s
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(fieldNum, wireType, buf)
			if n < 0 {
				return srpc.ErrInvalidMessage
			}
			buf = buf[n:]
		}
	}
	return nil
}
