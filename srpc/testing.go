package srpc

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
)

// namedStream pairs an opened in-memory stream with a unique id, so test
// failures and diagnostics can refer to "which of the N concurrently-opened
// streams" without relying on slice position.
type namedStream struct {
	id  string
	prw *PacketReadWriter
}

// InMemoryOpener is a multi-use OpenStreamFunc backed by net.Pipe: every
// call opens a fresh in-memory duplex pair and runs the wrapped Server on
// one end. Grounded in the same pattern as NewServerPipe, kept as a distinct
// type so tests can hold a reference to it (e.g. to count opened streams).
type InMemoryOpener struct {
	server *Server

	mtx     sync.Mutex
	streams []namedStream
}

// NewInMemoryOpener constructs an InMemoryOpener wrapping server.
func NewInMemoryOpener(server *Server) *InMemoryOpener {
	return &InMemoryOpener{server: server}
}

// OpenStream implements OpenStreamFunc's signature.
func (o *InMemoryOpener) OpenStream(ctx context.Context, msgHandler PacketHandler, closeHandler CloseHandler) (Writer, error) {
	srvPipe, clientPipe := net.Pipe()
	go func() {
		_ = o.server.HandleConn(ctx, srvPipe)
	}()

	clientPrw := NewPacketReadWriter(clientPipe)
	go func() {
		_ = clientPrw.ReadPump(msgHandler, closeHandler)
	}()

	o.mtx.Lock()
	o.streams = append(o.streams, namedStream{id: uuid.NewString(), prw: clientPrw})
	o.mtx.Unlock()

	return clientPrw, nil
}

// Opened returns the number of streams opened so far.
func (o *InMemoryOpener) Opened() int {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return len(o.streams)
}

// OpenedIDs returns the unique id assigned to each stream opened so far, in
// open order, for diagnostics when a multi-stream test fails.
func (o *InMemoryOpener) OpenedIDs() []string {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	ids := make([]string, len(o.streams))
	for i, s := range o.streams {
		ids[i] = s.id
	}
	return ids
}

// CloseAll closes every stream opened so far, last-opened first (LIFO),
// mirroring how a stack of nested calls is typically unwound in tests.
func (o *InMemoryOpener) CloseAll() {
	o.mtx.Lock()
	streams := o.streams
	o.streams = nil
	o.mtx.Unlock()

	for i := len(streams) - 1; i >= 0; i-- {
		_ = streams[i].prw.Close()
	}
}

// SingleInMemoryOpener is an in-memory OpenStreamFunc that may be used
// exactly once; subsequent calls fail with ErrStreamClosed. Grounded in the
// Rust source's SingleInMemoryOpener / SingleStreamOpener "consumed once"
// contract.
type SingleInMemoryOpener struct {
	server *Server

	mtx  sync.Mutex
	used bool
}

// NewSingleInMemoryOpener constructs a SingleInMemoryOpener wrapping server.
func NewSingleInMemoryOpener(server *Server) *SingleInMemoryOpener {
	return &SingleInMemoryOpener{server: server}
}

// OpenStream implements OpenStreamFunc's signature.
func (o *SingleInMemoryOpener) OpenStream(ctx context.Context, msgHandler PacketHandler, closeHandler CloseHandler) (Writer, error) {
	o.mtx.Lock()
	if o.used {
		o.mtx.Unlock()
		return nil, ErrStreamClosed
	}
	o.used = true
	o.mtx.Unlock()

	srvPipe, clientPipe := net.Pipe()
	go func() {
		_ = o.server.HandleConn(ctx, srvPipe)
	}()

	clientPrw := NewPacketReadWriter(clientPipe)
	go func() {
		_ = clientPrw.ReadPump(msgHandler, closeHandler)
	}()
	return clientPrw, nil
}

// NewTestPair constructs a Server routing through mux and a Client wired to
// it over an in-memory pipe, for exercising the stack within one process.
func NewTestPair(mux Mux, opts ...ServerOption) (Client, *Server) {
	server := NewServer(mux, opts...)
	opener := NewInMemoryOpener(server)
	return NewClient(opener.OpenStream), server
}

// _ are type assertions
var (
	_ OpenStreamFunc = ((*InMemoryOpener)(nil)).OpenStream
	_ OpenStreamFunc = ((*SingleInMemoryOpener)(nil)).OpenStream
)
