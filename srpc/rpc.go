package srpc

import (
	"context"
	"sync"
	"sync/atomic"
)

// Writer is the write side of a packet transport: it serializes and sends a
// single Packet, and can be closed. Implementations must be safe for
// concurrent use, since the owning call and the server's packet-pump may
// both write concurrently (e.g. a terminal response racing a cancel).
type Writer interface {
	// MsgSend sends a packet to the remote.
	MsgSend(pkt *Packet) error
	// Close closes the writer. Idempotent.
	Close() error
}

// CommonRpc is the per-call state machine shared by ClientRpc and ServerRpc:
// an inbound queue, a completion latch, half-close semantics, cancellation
// propagation, and remote-error surfacing. The inbound queue is unbounded:
// HandleCallData never blocks, and nothing limits how many payloads wait
// for ReadOne.
//
// localCompleted is an atomic flag; all other mutable state is guarded by
// mtx. No suspension point (writer I/O, channel send) is ever performed
// while mtx is held.
type CommonRpc struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	writer    Writer

	localCompleted atomic.Bool

	mtx        sync.Mutex
	dataQueue  [][]byte
	dataClosed bool
	remoteErr  error
	notify     *broadcaster
}

// newCommonRpc constructs a new CommonRpc with a context derived from
// parentCtx, so cancelling parentCtx cancels this call but not vice versa.
func newCommonRpc(parentCtx context.Context, writer Writer) *CommonRpc {
	c := &CommonRpc{writer: writer, notify: newBroadcaster()}
	c.ctx, c.ctxCancel = context.WithCancel(parentCtx)
	return c
}

// Context returns the call's context, cancelled when the call ends.
func (c *CommonRpc) Context() context.Context {
	return c.ctx
}

// WriteCallData implements the write_call_data operation.
func (c *CommonRpc) WriteCallData(data []byte, complete bool, err error) error {
	terminal := complete || err != nil
	if terminal {
		if !c.localCompleted.CompareAndSwap(false, true) {
			if len(data) == 0 && err == nil {
				// idempotent: "complete with no data and no error" twice
				// both succeed.
				return nil
			}
			return ErrCompleted
		}
	} else if c.localCompleted.Load() {
		return ErrCompleted
	}

	body, dataIsZero := encodeOptionalData(data)
	pkt := NewCallDataPacketFull(body, dataIsZero, complete || err != nil, errString(err))
	return c.writer.MsgSend(pkt)
}

// WriteCallCancel implements the write_call_cancel operation.
func (c *CommonRpc) WriteCallCancel() error {
	if !c.localCompleted.CompareAndSwap(false, true) {
		return ErrCompleted
	}
	return c.writer.MsgSend(NewCallCancelPacket(true))
}

// HandleCallData implements the handle_call_data operation.
func (c *CommonRpc) HandleCallData(cd *CallData) error {
	c.mtx.Lock()
	if c.dataClosed {
		complete := cd.GetComplete()
		c.mtx.Unlock()
		if complete {
			return nil
		}
		return ErrCompleted
	}

	if data := decodeOptionalData(cd.GetData(), cd.GetDataIsZero()); data != nil {
		c.dataQueue = append(c.dataQueue, data)
	}

	if errMsg := cd.GetError(); errMsg != "" {
		if c.remoteErr == nil {
			c.remoteErr = NewRemoteError(errMsg)
		}
		c.dataClosed = true
	} else if cd.GetComplete() {
		c.dataClosed = true
	}
	c.mtx.Unlock()

	c.notify.Notify()
	return nil
}

// HandleCallCancel implements the handle_call_cancel operation.
func (c *CommonRpc) HandleCallCancel() error {
	c.HandleStreamClose(ErrAborted)
	return nil
}

// HandleStreamClose implements the handle_stream_close operation: called
// when the packet-pump observes EOF or a fatal codec error, or when a
// cancel was received.
func (c *CommonRpc) HandleStreamClose(err error) {
	c.mtx.Lock()
	if c.remoteErr == nil && err != nil {
		c.remoteErr = err
	}
	c.dataClosed = true
	c.mtx.Unlock()

	_ = c.writer.Close()
	c.ctxCancel()
	c.notify.Notify()
}

// ReadOne implements the read_one operation: dequeues the next inbound
// payload, blocking until one arrives, the peer completes/errors, or the
// call's context is cancelled.
func (c *CommonRpc) ReadOne() ([]byte, error) {
	for {
		waitCh := c.notify.C()

		c.mtx.Lock()
		if len(c.dataQueue) != 0 {
			data := c.dataQueue[0]
			c.dataQueue = c.dataQueue[1:]
			c.mtx.Unlock()
			return data, nil
		}
		if c.dataClosed {
			remoteErr := c.remoteErr
			c.mtx.Unlock()
			if remoteErr != nil {
				return nil, remoteErr
			}
			return nil, ErrStreamClosed
		}
		c.mtx.Unlock()

		select {
		case <-c.ctx.Done():
			c.mtx.Lock()
			first := !c.dataClosed
			if first {
				c.dataClosed = true
				if c.remoteErr == nil {
					c.remoteErr = NewRemoteError(ErrStrContextCancelled)
				}
			}
			c.mtx.Unlock()
			if first {
				_ = c.writer.Close()
				c.notify.Notify()
			}
			return nil, ErrCancelled
		case <-waitCh:
		}
	}
}

// Wait implements the wait operation: blocks until the call has fully
// completed (remote error, cancellation, or clean data-closed).
func (c *CommonRpc) Wait(ctx context.Context) error {
	for {
		waitCh := c.notify.C()

		c.mtx.Lock()
		remoteErr := c.remoteErr
		closed := c.dataClosed
		c.mtx.Unlock()

		if remoteErr != nil {
			return remoteErr
		}
		select {
		case <-c.ctx.Done():
			return ErrCancelled
		default:
		}
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ErrCancelled
		case <-c.ctx.Done():
			return ErrCancelled
		case <-waitCh:
		}
	}
}

// errString returns err.Error(), or "" if err is nil.
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
