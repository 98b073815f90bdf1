package srpc

import (
	"context"
	"sync"
)

// ServerRpc is the server-side per-call state machine, constructed from a
// received CallStart. Its initialData slot holds the CallStart's payload
// (per the data/data_is_zero convention) and is delivered as the first read,
// ahead of the inbound queue.
type ServerRpc struct {
	*CommonRpc

	service, method string

	initialMtx     sync.Mutex
	initialData    []byte
	initialPending bool
}

// NewServerRpcFromCallStart constructs a ServerRpc from a received
// CallStart, with a fresh context derived from parentCtx.
func NewServerRpcFromCallStart(parentCtx context.Context, writer Writer, cs *CallStart) *ServerRpc {
	data := decodeOptionalData(cs.GetData(), cs.GetDataIsZero())
	return &ServerRpc{
		CommonRpc:      newCommonRpc(parentCtx, writer),
		service:        cs.GetRpcService(),
		method:         cs.GetRpcMethod(),
		initialData:    data,
		initialPending: data != nil,
	}
}

// Service returns the call's service id.
func (r *ServerRpc) Service() string { return r.service }

// Method returns the call's method id.
func (r *ServerRpc) Method() string { return r.method }

// ReadOne returns the CallStart's initial payload first (if any), then
// defers to CommonRpc.ReadOne for subsequent reads.
func (r *ServerRpc) ReadOne() ([]byte, error) {
	r.initialMtx.Lock()
	if r.initialPending {
		r.initialPending = false
		data := r.initialData
		r.initialMtx.Unlock()
		return data, nil
	}
	r.initialMtx.Unlock()
	return r.CommonRpc.ReadOne()
}

// HandlePacket dispatches an incoming packet to the server-side state
// machine. A second CallStart on the same call is a protocol error.
func (r *ServerRpc) HandlePacket(pkt *Packet) error {
	if err := pkt.Validate(); err != nil {
		return err
	}

	switch b := pkt.GetBody().(type) {
	case *Packet_CallData:
		return r.HandleCallData(b.CallData)
	case *Packet_CallCancel:
		if b.CallCancel {
			return r.HandleCallCancel()
		}
		return nil
	case *Packet_CallStart:
		return ErrDuplicateCallStart
	default:
		return ErrEmptyPacket
	}
}

// SendError writes a terminal CallData carrying the given error message.
func (r *ServerRpc) SendError(msg string) error {
	return r.WriteCallData(nil, true, NewRemoteError(msg))
}

// CloseSend signals to the remote that no more messages will be sent.
func (r *ServerRpc) CloseSend() error {
	return r.WriteCallData(nil, true, nil)
}

// Close releases the writer and cancels the call's context.
func (r *ServerRpc) Close() error {
	r.localCompleted.Store(true)
	_ = r.writer.Close()
	r.ctxCancel()
	return nil
}

// _ is a type assertion
var _ MsgStreamRw = ((*ServerRpc)(nil))
