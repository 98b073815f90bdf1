package srpc

import (
	"context"
	"sync/atomic"
)

// ClientRpc is the client-side per-call state machine: a CommonRpc plus a
// start_sent latch guarding the single CallStart write.
type ClientRpc struct {
	*CommonRpc

	service, method string
	startSent       atomic.Bool
}

// NewClientRpc constructs a new ClientRpc for the given service/method, with
// a context derived from parentCtx.
func NewClientRpc(parentCtx context.Context, writer Writer, service, method string) *ClientRpc {
	return &ClientRpc{
		CommonRpc: newCommonRpc(parentCtx, writer),
		service:   service,
		method:    method,
	}
}

// Start sends the CallStart packet. May be called exactly once; subsequent
// calls return ErrCompleted.
func (c *ClientRpc) Start(data []byte) error {
	if !c.startSent.CompareAndSwap(false, true) {
		return ErrCompleted
	}

	select {
	case <-c.ctx.Done():
		_ = c.writer.Close()
		return ErrCancelled
	default:
	}

	body, dataIsZero := encodeOptionalData(data)
	pkt := NewCallStartPacket(c.service, c.method, body, dataIsZero)
	if err := c.writer.MsgSend(pkt); err != nil {
		c.ctxCancel()
		_ = c.writer.Close()
		return err
	}
	return nil
}

// HandlePacket dispatches an incoming packet to the client-side state
// machine. Clients never accept CallStart.
func (c *ClientRpc) HandlePacket(pkt *Packet) error {
	if err := pkt.Validate(); err != nil {
		return err
	}

	switch b := pkt.GetBody().(type) {
	case *Packet_CallData:
		return c.HandleCallData(b.CallData)
	case *Packet_CallCancel:
		if b.CallCancel {
			return c.HandleCallCancel()
		}
		return nil
	case *Packet_CallStart:
		return ErrUnrecognizedPacket
	default:
		return ErrEmptyPacket
	}
}

// CloseSend signals to the remote that no more messages will be sent.
func (c *ClientRpc) CloseSend() error {
	return c.WriteCallData(nil, true, nil)
}

// Close terminates the call: sends a cancel (if the call ever started),
// marks it locally completed, and releases the writer and context.
func (c *ClientRpc) Close() error {
	if !c.startSent.Load() {
		return nil
	}

	_ = c.WriteCallCancel()

	c.mtx.Lock()
	c.dataClosed = true
	if c.remoteErr == nil {
		c.remoteErr = NewRemoteError(ErrStrRpcAbort)
	}
	c.mtx.Unlock()

	c.localCompleted.Store(true)
	_ = c.writer.Close()
	c.ctxCancel()
	c.notify.Notify()
	return nil
}

// _ is a type assertion
var _ MsgStreamRw = ((*ClientRpc)(nil))
