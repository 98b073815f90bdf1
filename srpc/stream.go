package srpc

import "context"

// Stream is the application-facing handle for one live call, exposing
// typed-message send/receive over the underlying packet state machine.
type Stream interface {
	// Context is canceled when the Stream is no longer valid.
	Context() context.Context
	// MsgSend sends the message to the remote.
	MsgSend(msg Message) error
	// MsgRecv receives an incoming message from the remote.
	MsgRecv(msg Message) error
	// CloseSend signals to the remote that no more messages will be sent.
	CloseSend() error
	// Close closes the stream.
	Close() error
}

// PacketHandler processes one incoming packet for a live call.
type PacketHandler func(pkt *Packet) error

// CloseHandler is called when the packet-pump for a transport ends, either
// because the transport closed or a fatal codec error occurred. err is nil
// on a clean EOF.
type CloseHandler func(err error)

// OpenStreamFunc is the injected transport factory used by a Client: each
// invocation opens an independent transport and returns a Writer for it,
// after wiring msgHandler/closeHandler to the transport's read side.
type OpenStreamFunc func(ctx context.Context, msgHandler PacketHandler, closeHandler CloseHandler) (Writer, error)
