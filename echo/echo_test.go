package echo

import (
	"context"
	"testing"

	"github.com/aperturerobotics/starpc/srpc"
)

func newTestClient(t *testing.T) srpc.Client {
	t.Helper()
	mux := srpc.NewMux()
	if err := mux.Register(NewEchoServer()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	client, _ := srpc.NewTestPair(mux)
	return client
}

// TestEcho covers spec scenario 1: unary echo.
func TestEcho(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	body := "hello world via starpc e2e test"
	var resp EchoMsg
	if err := client.Invoke(ctx, ServiceID, MethodEcho, &EchoMsg{Body: body}, &resp); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.GetBody() != body {
		t.Fatalf("expected body %q, got %q", body, resp.GetBody())
	}
}

// TestEchoServerStream covers spec scenario 2: exactly 5 responses then
// StreamClosed.
func TestEchoServerStream(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	body := "server stream body"
	strm, err := client.NewStream(ctx, ServiceID, MethodEchoServerStream, &EchoMsg{Body: body})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer func() { _ = strm.Close() }()

	if err := strm.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}

	count := 0
	for {
		var msg EchoMsg
		err := strm.MsgRecv(&msg)
		if err != nil {
			if err == srpc.ErrStreamClosed {
				break
			}
			t.Fatalf("MsgRecv: %v", err)
		}
		if msg.GetBody() != body {
			t.Fatalf("expected body %q, got %q", body, msg.GetBody())
		}
		count++
	}
	if count != ServerStreamCount {
		t.Fatalf("expected %d responses, got %d", ServerStreamCount, count)
	}
}

// TestEchoClientStream covers spec scenario 3: client-stream, one response.
func TestEchoClientStream(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	strm, err := client.NewStream(ctx, ServiceID, MethodEchoClientStream, nil)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer func() { _ = strm.Close() }()

	body := "client stream body"
	if err := strm.MsgSend(&EchoMsg{Body: body}); err != nil {
		t.Fatalf("MsgSend: %v", err)
	}
	if err := strm.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}

	var resp EchoMsg
	if err := strm.MsgRecv(&resp); err != nil {
		t.Fatalf("MsgRecv: %v", err)
	}
	if resp.GetBody() != body {
		t.Fatalf("expected body %q, got %q", body, resp.GetBody())
	}
}

// TestEchoBidiStream covers spec scenario 4: server greets first, client
// sends, server echoes it back, client closes.
func TestEchoBidiStream(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	strm, err := client.NewStream(ctx, ServiceID, MethodEchoBidiStream, nil)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer func() { _ = strm.Close() }()

	var greeting EchoMsg
	if err := strm.MsgRecv(&greeting); err != nil {
		t.Fatalf("MsgRecv (greeting): %v", err)
	}
	if greeting.GetBody() != "hello from server" {
		t.Fatalf("expected greeting %q, got %q", "hello from server", greeting.GetBody())
	}

	if err := strm.MsgSend(&EchoMsg{Body: "hello from client"}); err != nil {
		t.Fatalf("MsgSend: %v", err)
	}

	var echoed EchoMsg
	if err := strm.MsgRecv(&echoed); err != nil {
		t.Fatalf("MsgRecv (echo): %v", err)
	}
	if echoed.GetBody() != "hello from client" {
		t.Fatalf("expected echo %q, got %q", "hello from client", echoed.GetBody())
	}

	if err := strm.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}
}

// TestUnimplementedMethod covers spec scenario 5.
func TestUnimplementedMethod(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	err := client.Invoke(ctx, ServiceID, "NonExistentMethod", &EchoMsg{Body: "x"}, &EchoMsg{})
	if err == nil {
		t.Fatal("expected an error for an unimplemented method")
	}
	if got := err.Error(); got != "method not implemented" {
		t.Fatalf("expected error %q, got %q", "method not implemented", got)
	}
}
