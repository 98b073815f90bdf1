// Package echo implements a small end-to-end exercise service for the srpc
// stack, covering all four call shapes: unary, server-streaming,
// client-streaming, and bidirectional streaming.
package echo

import (
	"time"

	"github.com/aperturerobotics/starpc/srpc"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

const echoMsgBodyFieldNum = 1

// EchoMsg is the single message type exchanged by the echo service.
type EchoMsg struct {
	Body string
}

// GetBody returns the message body, or "" if m is nil.
func (m *EchoMsg) GetBody() string {
	if m == nil {
		return ""
	}
	return m.Body
}

// MarshalVT encodes m to wire bytes.
func (m *EchoMsg) MarshalVT() ([]byte, error) {
	var buf []byte
	if m.Body != "" {
		buf = protowire.AppendTag(buf, echoMsgBodyFieldNum, protowire.BytesType)
		buf = protowire.AppendString(buf, m.Body)
	}
	return buf, nil
}

// UnmarshalVT decodes buf into m.
func (m *EchoMsg) UnmarshalVT(buf []byte) error {
	for len(buf) > 0 {
		fieldNum, wireType, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return srpc.ErrInvalidMessage
		}
		buf = buf[n:]

		switch fieldNum {
		case echoMsgBodyFieldNum:
			s, n := protowire.ConsumeString(buf)
			if n < 0 {
				return srpc.ErrInvalidMessage
			}
			m.Body = s
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

// _ is a type assertion
var _ srpc.Message = ((*EchoMsg)(nil))

// ServiceID is the echo service's registered identifier.
const ServiceID = "echo.Echoer"

// Method ids implemented by EchoServer.
const (
	MethodEcho             = "Echo"
	MethodEchoServerStream = "EchoServerStream"
	MethodEchoClientStream = "EchoClientStream"
	MethodEchoBidiStream   = "EchoBidiStream"
)

// ServerStreamCount is how many copies EchoServerStream sends.
const ServerStreamCount = 5

// ServerStreamDelay is the pause between each EchoServerStream send.
const ServerStreamDelay = 10 * time.Millisecond

// EchoServer implements the echo service: a Handler/Invoker over the four
// call shapes, used to exercise the srpc stack end-to-end in tests.
type EchoServer struct{}

// NewEchoServer constructs a new EchoServer.
func NewEchoServer() *EchoServer {
	return &EchoServer{}
}

// GetServiceID implements srpc.Handler.
func (s *EchoServer) GetServiceID() string {
	return ServiceID
}

// GetMethodIDs implements srpc.Handler.
func (s *EchoServer) GetMethodIDs() []string {
	return []string{MethodEcho, MethodEchoServerStream, MethodEchoClientStream, MethodEchoBidiStream}
}

// InvokeMethod implements srpc.Invoker.
func (s *EchoServer) InvokeMethod(serviceID, methodID string, strm srpc.Stream) (bool, error) {
	switch methodID {
	case MethodEcho:
		return true, s.echo(strm)
	case MethodEchoServerStream:
		return true, s.echoServerStream(strm)
	case MethodEchoClientStream:
		return true, s.echoClientStream(strm)
	case MethodEchoBidiStream:
		return true, s.echoBidiStream(strm)
	default:
		return false, srpc.ErrUnimplemented
	}
}

// echo reads one message and sends it back unchanged.
func (s *EchoServer) echo(strm srpc.Stream) error {
	var msg EchoMsg
	if err := strm.MsgRecv(&msg); err != nil {
		return err
	}
	return strm.MsgSend(&msg)
}

// echoServerStream reads one message and sends ServerStreamCount copies of
// it back, pausing briefly between each.
func (s *EchoServer) echoServerStream(strm srpc.Stream) error {
	var msg EchoMsg
	if err := strm.MsgRecv(&msg); err != nil {
		return err
	}

	for i := 0; i < ServerStreamCount; i++ {
		select {
		case <-strm.Context().Done():
			return srpc.ErrCancelled
		default:
		}
		if err := strm.MsgSend(&msg); err != nil {
			return err
		}
		time.Sleep(ServerStreamDelay)
	}
	return nil
}

// echoClientStream reads the first message from the client and echoes it
// back once; any further messages the client sends are ignored.
func (s *EchoServer) echoClientStream(strm srpc.Stream) error {
	var msg EchoMsg
	if err := strm.MsgRecv(&msg); err != nil {
		return err
	}
	return strm.MsgSend(&msg)
}

// echoBidiStream sends a greeting first, then echoes every message the
// client sends until the client half-closes.
func (s *EchoServer) echoBidiStream(strm srpc.Stream) error {
	if err := strm.MsgSend(&EchoMsg{Body: "hello from server"}); err != nil {
		return err
	}

	for {
		var msg EchoMsg
		err := strm.MsgRecv(&msg)
		if err != nil {
			if errors.Is(err, srpc.ErrStreamClosed) {
				return nil
			}
			return err
		}
		if msg.GetBody() == "" {
			return errors.New("got message with empty body")
		}
		if err := strm.MsgSend(&msg); err != nil {
			return err
		}
	}
}

// _ are type assertions
var (
	_ srpc.Handler = ((*EchoServer)(nil))
	_ srpc.Invoker = ((*EchoServer)(nil))
)
