package rpcstream

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aperturerobotics/starpc/srpc"
)

// fakeRpcStream is an in-memory RpcStream implementation: two fakeRpcStreams
// wired to each other's channels stand in for a real outer RPC call
// tunneling RpcStreamPacket bodies. Closing one side closes its outbound
// channel, so the peer's Recv observes a clean io.EOF, mirroring a real
// transport.
type fakeRpcStream struct {
	ctx       context.Context
	out       chan *RpcStreamPacket
	in        <-chan *RpcStreamPacket
	closeOnce sync.Once
}

func newFakeRpcStreamPair(ctx context.Context) (a, b *fakeRpcStream) {
	ab := make(chan *RpcStreamPacket, 16)
	ba := make(chan *RpcStreamPacket, 16)
	a = &fakeRpcStream{ctx: ctx, out: ab, in: ba}
	b = &fakeRpcStream{ctx: ctx, out: ba, in: ab}
	return a, b
}

func (f *fakeRpcStream) Context() context.Context  { return f.ctx }
func (f *fakeRpcStream) MsgSend(srpc.Message) error { return nil }
func (f *fakeRpcStream) MsgRecv(srpc.Message) error { return nil }
func (f *fakeRpcStream) CloseSend() error           { return nil }

func (f *fakeRpcStream) Close() error {
	f.closeOnce.Do(func() { close(f.out) })
	return nil
}

func (f *fakeRpcStream) Send(pkt *RpcStreamPacket) error {
	select {
	case f.out <- pkt:
		return nil
	case <-f.ctx.Done():
		return f.ctx.Err()
	}
}

func (f *fakeRpcStream) Recv() (*RpcStreamPacket, error) {
	select {
	case pkt, ok := <-f.in:
		if !ok {
			return nil, io.EOF
		}
		return pkt, nil
	case <-f.ctx.Done():
		return nil, f.ctx.Err()
	}
}

var _ RpcStream = ((*fakeRpcStream)(nil))

// echoInvoker answers any call by reading the initial payload and sending
// it straight back once.
type echoInvoker struct{}

func (echoInvoker) InvokeMethod(service, method string, strm srpc.Stream) (bool, error) {
	var msg srpc.RawMessage
	if err := strm.MsgRecv(&msg); err != nil {
		return true, err
	}
	return true, strm.MsgSend(srpc.NewRawMessage(msg.GetData(), false))
}

func TestRpcStream_HandshakeAndSingleTunnelledCall(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientSide, serverSide := newFakeRpcStreamPair(ctx)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- HandleRpcStream(serverSide, func(ctx context.Context, componentID string) (srpc.Invoker, func(), error) {
			if componentID != "echo-component" {
				return nil, nil, nil
			}
			return echoInvoker{}, func() {}, nil
		})
	}()

	conn, err := OpenRpcStream(ctx, func(ctx context.Context) (*fakeRpcStream, error) {
		return clientSide, nil
	}, "echo-component", true)
	if err != nil {
		t.Fatalf("OpenRpcStream: %v", err)
	}
	defer func() { _ = conn.Close() }()

	prw := srpc.NewPacketReadWriter(conn)
	cs := srpc.NewCallStartPacket("tunnel.Svc", "Echo", []byte("tunnelled hello"), false)
	if err := prw.MsgSend(cs); err != nil {
		t.Fatalf("MsgSend(CallStart): %v", err)
	}

	reply, err := prw.ReadOnePacket()
	if err != nil {
		t.Fatalf("ReadOnePacket: %v", err)
	}
	cd := reply.GetCallData()
	if cd == nil {
		t.Fatalf("expected a CallData reply, got %#v", reply.GetBody())
	}
	if string(cd.GetData()) != "tunnelled hello" {
		t.Fatalf("expected echoed data %q, got %q", "tunnelled hello", cd.GetData())
	}

	terminal, err := prw.ReadOnePacket()
	if err != nil {
		t.Fatalf("ReadOnePacket (terminal): %v", err)
	}
	if !terminal.GetCallData().GetComplete() {
		t.Fatalf("expected a terminal complete=true CallData, got %#v", terminal.GetBody())
	}

	_ = conn.Close()
	select {
	case err := <-serverDone:
		if err != nil {
			t.Fatalf("HandleRpcStream: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for HandleRpcStream to return")
	}
}

func TestRpcStream_UnknownComponentFailsAck(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientSide, serverSide := newFakeRpcStreamPair(ctx)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- HandleRpcStream(serverSide, func(ctx context.Context, componentID string) (srpc.Invoker, func(), error) {
			return nil, nil, nil
		})
	}()

	_, err := OpenRpcStream(ctx, func(ctx context.Context) (*fakeRpcStream, error) {
		return clientSide, nil
	}, "missing-component", true)
	if err == nil {
		t.Fatal("expected an error for an unrecognized component id")
	}

	select {
	case srvErr := <-serverDone:
		if srvErr == nil {
			t.Fatal("expected HandleRpcStream to report the lookup failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for HandleRpcStream to return")
	}
}

func TestRpcStream_TwoCallStartsOverOneTunnel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientSide, serverSide := newFakeRpcStreamPair(ctx)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- HandleRpcStream(serverSide, func(ctx context.Context, componentID string) (srpc.Invoker, func(), error) {
			return echoInvoker{}, func() {}, nil
		})
	}()

	conn, err := OpenRpcStream(ctx, func(ctx context.Context) (*fakeRpcStream, error) {
		return clientSide, nil
	}, "echo-component", true)
	if err != nil {
		t.Fatalf("OpenRpcStream: %v", err)
	}
	defer func() { _ = conn.Close() }()

	prw := srpc.NewPacketReadWriter(conn)

	for _, body := range []string{"first call", "second call"} {
		if err := prw.MsgSend(srpc.NewCallStartPacket("tunnel.Svc", "Echo", []byte(body), false)); err != nil {
			t.Fatalf("MsgSend(CallStart %q): %v", body, err)
		}
	}

	got := make(map[string]bool, 2)
	for i := 0; i < 4; i++ { // 2 calls x (echo reply + terminal)
		pkt, err := prw.ReadOnePacket()
		if err != nil {
			t.Fatalf("ReadOnePacket #%d: %v", i, err)
		}
		cd := pkt.GetCallData()
		if cd == nil {
			t.Fatalf("expected CallData, got %#v", pkt.GetBody())
		}
		if data := cd.GetData(); len(data) != 0 {
			got[string(data)] = true
		}
	}
	if !got["first call"] || !got["second call"] {
		t.Fatalf("expected both tunnelled calls to be answered, got %v", got)
	}

	_ = conn.Close()
	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for HandleRpcStream to return")
	}
}
