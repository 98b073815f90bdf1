package srpc

import (
	"context"
	"io"
	"sync"
)

// Client exposes the two call shapes generated service clients build on: a
// unary convenience (Invoke) and a raw streaming call (NewStream).
type Client interface {
	// Invoke performs a unary call: sends in (if non-nil) as the initial
	// payload, half-closes, and decodes the first response message into
	// out (if non-nil).
	Invoke(ctx context.Context, service, method string, in, out Message) error
	// NewStream opens a streaming call, optionally sending firstMsg as the
	// CallStart payload, and returns a Stream handle.
	NewStream(ctx context.Context, service, method string, firstMsg Message) (Stream, error)
}

// client is the default Client implementation.
type client struct {
	openStream OpenStreamFunc
}

// NewClient constructs a Client that opens transports via openStream.
func NewClient(openStream OpenStreamFunc) Client {
	return &client{openStream: openStream}
}

// clientRpcHolder hands a *ClientRpc to packet-handler closures that are
// registered with the transport before the ClientRpc itself can be
// constructed (the ClientRpc needs the opened Writer, and the transport may
// start delivering packets as soon as it is opened).
type clientRpcHolder struct {
	ready chan struct{}
	rpc   *ClientRpc
}

func newClientRpcHolder() *clientRpcHolder {
	return &clientRpcHolder{ready: make(chan struct{})}
}

func (h *clientRpcHolder) set(rpc *ClientRpc) {
	h.rpc = rpc
	close(h.ready)
}

func (h *clientRpcHolder) handlePacket(pkt *Packet) error {
	<-h.ready
	return h.rpc.HandlePacket(pkt)
}

func (h *clientRpcHolder) handleClose(err error) {
	<-h.ready
	h.rpc.HandleStreamClose(err)
}

// openCall opens a transport, starts a ClientRpc over it, and returns the
// started call.
func (c *client) openCall(ctx context.Context, service, method string, data []byte) (*ClientRpc, error) {
	holder := newClientRpcHolder()

	writer, err := c.openStream(ctx, holder.handlePacket, holder.handleClose)
	if err != nil {
		return nil, err
	}

	rpc := NewClientRpc(ctx, writer, service, method)
	holder.set(rpc)

	if err := rpc.Start(data); err != nil {
		return nil, err
	}
	return rpc, nil
}

// Invoke implements Client.
func (c *client) Invoke(ctx context.Context, service, method string, in, out Message) error {
	var data []byte
	if in != nil {
		d, err := in.MarshalVT()
		if err != nil {
			return err
		}
		data = d
	}

	rpc, err := c.openCall(ctx, service, method, data)
	if err != nil {
		return err
	}
	defer func() { _ = rpc.Close() }()

	if err := rpc.CloseSend(); err != nil {
		return err
	}

	if out != nil {
		resp, err := rpc.ReadOne()
		if err != nil {
			return err
		}
		if err := out.UnmarshalVT(resp); err != nil {
			return err
		}
	}

	return rpc.Wait(ctx)
}

// NewStream implements Client.
func (c *client) NewStream(ctx context.Context, service, method string, firstMsg Message) (Stream, error) {
	var data []byte
	if firstMsg != nil {
		d, err := firstMsg.MarshalVT()
		if err != nil {
			return nil, err
		}
		data = d
	}

	rpc, err := c.openCall(ctx, service, method, data)
	if err != nil {
		return nil, err
	}

	return NewMsgStream(rpc.Context(), rpc, func() { _ = rpc.Close() }), nil
}

// SingleStreamOpener adapts a single, already-established transport into an
// OpenStreamFunc that may be used exactly once; subsequent calls fail with
// ErrStreamClosed.
type SingleStreamOpener struct {
	mtx  sync.Mutex
	used bool
	rwc  io.ReadWriteCloser
}

// NewSingleStreamOpener constructs a SingleStreamOpener over rwc.
func NewSingleStreamOpener(rwc io.ReadWriteCloser) *SingleStreamOpener {
	return &SingleStreamOpener{rwc: rwc}
}

// OpenStream implements OpenStreamFunc's signature.
func (o *SingleStreamOpener) OpenStream(ctx context.Context, msgHandler PacketHandler, closeHandler CloseHandler) (Writer, error) {
	o.mtx.Lock()
	if o.used {
		o.mtx.Unlock()
		return nil, ErrStreamClosed
	}
	o.used = true
	o.mtx.Unlock()

	prw := NewPacketReadWriter(o.rwc)
	go prw.ReadPump(msgHandler, closeHandler)
	return prw, nil
}

// _ is a type assertion
var _ OpenStreamFunc = ((*SingleStreamOpener)(nil)).OpenStream
