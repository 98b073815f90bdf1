package rpcstream

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aperturerobotics/starpc/srpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RpcStream is a single bidirectional RPC call used to tunnel an entire
// nested srpc connection: each Send/Recv carries one RpcStreamPacket instead
// of raw bytes, so a RpcStream can itself be adapted into an
// io.ReadWriteCloser (see rpcStreamConn below) and handed to a Client or
// Server the same way a raw socket would be.
type RpcStream interface {
	srpc.Stream
	Send(*RpcStreamPacket) error
	Recv() (*RpcStreamPacket, error)
}

// RpcStreamGetter resolves the Invoker to dispatch calls for componentID to,
// given an incoming nested-stream request. Returns a release function to
// call once the caller is done with the Invoker (e.g. to drop a refcount on
// a sub-component); release is always non-nil when invoker is non-nil.
// Returns (nil, nil, nil) if componentID is not recognized.
type RpcStreamGetter func(ctx context.Context, componentID string) (srpc.Invoker, func(), error)

// RpcStreamCaller starts a new RpcStream call against the remote.
type RpcStreamCaller[T RpcStream] func(ctx context.Context) (T, error)

// OpenRpcStream opens a nested stream with the remote: calls rpcCaller to
// start the underlying RPC, sends the RpcStreamInit handshake naming
// componentID, and (if waitAck) blocks for the remote's RpcAck before
// returning. The returned io.ReadWriteCloser carries raw srpc packet bytes
// tunneled inside RpcStreamPacket_Data frames.
func OpenRpcStream[T RpcStream](ctx context.Context, rpcCaller RpcStreamCaller[T], componentID string, waitAck bool) (io.ReadWriteCloser, error) {
	strm, err := rpcCaller(ctx)
	if err != nil {
		return nil, err
	}

	initErr := strm.Send(&RpcStreamPacket{
		Body: &RpcStreamPacket_Init{
			Init: &RpcStreamInit{ComponentId: componentID},
		},
	})
	if initErr != nil {
		_ = strm.Close()
		return nil, initErr
	}

	if waitAck {
		if err := awaitAck(strm); err != nil {
			_ = strm.Close()
			return nil, err
		}
	}

	return newRpcStreamConn(strm), nil
}

// awaitAck blocks for the next packet and requires it to be a well-formed
// RpcAck, surfacing any error string the remote reported.
func awaitAck(strm RpcStream) error {
	pkt, err := strm.Recv()
	if err != nil {
		return err
	}
	ack, ok := pkt.GetBody().(*RpcStreamPacket_Ack)
	if !ok || ack.Ack == nil {
		return errors.New("expected ack packet")
	}
	if errStr := ack.Ack.GetError(); errStr != "" {
		return errors.Errorf("remote: %s", errStr)
	}
	return nil
}

// NewRpcStreamOpenStream builds a srpc.OpenStreamFunc that tunnels each
// opened stream through a freshly-started RpcStream call.
func NewRpcStreamOpenStream[T RpcStream](rpcCaller RpcStreamCaller[T], componentID string, waitAck bool) srpc.OpenStreamFunc {
	return func(ctx context.Context, msgHandler srpc.PacketHandler, closeHandler srpc.CloseHandler) (srpc.Writer, error) {
		rwc, err := OpenRpcStream(ctx, rpcCaller, componentID, waitAck)
		if err != nil {
			return nil, err
		}

		prw := srpc.NewPacketReadWriter(rwc)
		go func() {
			_ = prw.ReadPump(msgHandler, closeHandler)
		}()
		return prw, nil
	}
}

// NewRpcStreamClient constructs a srpc.Client whose calls are tunneled
// through RpcStream calls against componentID.
func NewRpcStreamClient[T RpcStream](rpcCaller RpcStreamCaller[T], componentID string, waitAck bool) srpc.Client {
	return srpc.NewClient(NewRpcStreamOpenStream(rpcCaller, componentID, waitAck))
}

// HandleRpcStream services one remote-initiated RpcStream: reads the
// handshake, resolves componentID via getter, acknowledges, then hands
// each CallStart tunneled over the stream to the resolved invoker through
// its own ServerRpc (see runTunneledConn for what is not routed).
func HandleRpcStream(stream RpcStream, getter RpcStreamGetter) error {
	initPkt, err := stream.Recv()
	if err != nil {
		return err
	}
	init, ok := initPkt.GetBody().(*RpcStreamPacket_Init)
	if !ok || init.Init == nil {
		return errors.New("expected init packet")
	}
	componentID := init.Init.GetComponentId()
	if componentID == "" {
		return errors.New("invalid init packet: empty component id")
	}

	ctx := stream.Context()
	invoker, release, lookupErr := getter(ctx, componentID)
	if lookupErr == nil && invoker == nil {
		lookupErr = errors.Errorf("no component registered for id %q", componentID)
	}
	if release != nil {
		defer release()
	}

	ackErr := stream.Send(&RpcStreamPacket{
		Body: &RpcStreamPacket_Ack{Ack: &RpcAck{Error: errString(lookupErr)}},
	})
	if lookupErr != nil {
		return lookupErr
	}
	if ackErr != nil {
		return ackErr
	}

	return runTunneledConn(ctx, stream, invoker)
}

// runTunneledConn drives the data-tunnel loop described in the rpcstream
// handshake contract: it reads outer-framework packets off the tunnel one
// at a time and, for each CallStart it sees, spawns a handler task bound to
// the resolved invoker. This lets one data-tunnel carry more than one
// sequential (or overlapping) inner RPC.
//
// Routing CallData/CallCancel for an already-started inner RPC back to its
// handler is not implemented here -- this mirrors the simplification the
// originating design documents for this handshake: a full inner dispatcher
// keyed by sub-stream id was left undone, and packets other than CallStart
// are simply dropped. An inner RPC handler sees only the payload carried in
// its own CallStart.
func runTunneledConn(ctx context.Context, stream RpcStream, invoker srpc.Invoker) error {
	conn := newRpcStreamConn(stream)
	prw := srpc.NewPacketReadWriter(conn)
	defer func() { _ = prw.Close() }()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		pkt, err := prw.ReadOnePacket()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := pkt.Validate(); err != nil {
			continue
		}
		cs := pkt.GetCallStart()
		if cs == nil {
			// CallData/CallCancel for an existing sub-RPC: not routed.
			continue
		}
		if err := cs.Validate(); err != nil {
			continue
		}

		wg.Add(1)
		go func(cs *srpc.CallStart) {
			defer wg.Done()
			runTunneledCall(ctx, sharedWriter{prw}, invoker, cs)
		}(cs)
	}
}

// sharedWriter adapts a Writer shared by multiple concurrently-running
// inner calls: MsgSend still goes straight through, but Close is a no-op,
// since closing it on behalf of one inner call would sever the tunnel out
// from under every other call sharing it. The tunnel itself is closed once,
// by runTunneledConn, when the outer loop exits.
type sharedWriter struct{ w srpc.Writer }

func (s sharedWriter) MsgSend(pkt *srpc.Packet) error { return s.w.MsgSend(pkt) }
func (s sharedWriter) Close() error                   { return nil }

// runTunneledCall invokes invoker for a single CallStart observed on the
// tunnel and sends its terminal response. There is no per-call packet-pump:
// the shared tunnel reader in runTunneledConn is the only reader, and
// further packets for this call are not routed to it (see runTunneledConn).
func runTunneledCall(ctx context.Context, writer srpc.Writer, invoker srpc.Invoker, cs *srpc.CallStart) {
	rpc := srpc.NewServerRpcFromCallStart(ctx, writer, cs)

	msgStream := srpc.NewMsgStream(rpc.Context(), rpc, nil)
	found, invokeErr := invoker.InvokeMethod(rpc.Service(), rpc.Method(), msgStream)
	if !found && invokeErr == nil {
		invokeErr = srpc.ErrUnimplemented
	}

	var sendErr error
	if invokeErr != nil {
		sendErr = rpc.SendError(invokeErr.Error())
	} else {
		sendErr = rpc.CloseSend()
	}
	_ = rpc.Close()

	if sendErr != nil {
		logrus.WithError(sendErr).Warn("rpcstream: failed to send terminal response")
	}
}

// errString returns err.Error(), or "" if err is nil.
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// rpcStreamConn adapts a RpcStream into an io.ReadWriteCloser, tunneling
// raw bytes through RpcStreamPacket_Data frames so a PacketReadWriter can
// run its own length-prefixed codec on top without knowing it is nested.
type rpcStreamConn struct {
	stream RpcStream
	inbuf  bytes.Buffer
}

// newRpcStreamConn wraps stream as an io.ReadWriteCloser.
func newRpcStreamConn(stream RpcStream) *rpcStreamConn {
	return &rpcStreamConn{stream: stream}
}

// Write implements io.Writer by sending p as a single Data packet.
func (c *rpcStreamConn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := c.stream.Send(&RpcStreamPacket{Body: &RpcStreamPacket_Data{Data: p}}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read implements io.Reader, draining buffered bytes before blocking for the
// next Data packet. Returns early (possibly with n < len(p)) once the
// internal buffer has been drained by one packet's worth of data, matching
// the teacher's non-greedy read contract.
func (c *rpcStreamConn) Read(p []byte) (int, error) {
	dst := p
	var n int
	for len(dst) != 0 {
		if c.inbuf.Len() != 0 {
			rn, _ := c.inbuf.Read(dst)
			n += rn
			dst = dst[rn:]
			continue
		}
		if n != 0 {
			// already satisfied part of the read from buffered data; return
			// now rather than blocking for more.
			break
		}

		pkt, err := c.stream.Recv()
		if err != nil {
			return n, err
		}
		if ack := pkt.GetAck(); ack != nil {
			if errStr := ack.GetError(); errStr != "" {
				return n, errors.New(errStr)
			}
			continue
		}
		data := pkt.GetData()
		if len(data) == 0 {
			continue
		}

		if len(data) > len(dst) {
			copied := copy(dst, data)
			_, _ = c.inbuf.Write(data[copied:])
			n += copied
			dst = dst[copied:]
		} else {
			copied := copy(dst, data)
			n += copied
			dst = dst[copied:]
		}
	}
	return n, nil
}

// Close implements io.Closer.
func (c *rpcStreamConn) Close() error {
	return c.stream.Close()
}

// _ is a type assertion
var _ io.ReadWriteCloser = ((*rpcStreamConn)(nil))
