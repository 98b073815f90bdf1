package srpc

import (
	"context"
	"net"
)

// NewServerPipe constructs an OpenStreamFunc which, on each call, creates a
// fresh in-memory net.Pipe and runs Server.HandleConn on one end in a
// separate goroutine, returning a Writer wired to the other end. Useful for
// wiring a Client directly to a Server within a single process (tests,
// embedding).
func NewServerPipe(server *Server) OpenStreamFunc {
	return func(ctx context.Context, msgHandler PacketHandler, closeHandler CloseHandler) (Writer, error) {
		srvPipe, clientPipe := net.Pipe()
		go func() {
			_ = server.HandleConn(ctx, srvPipe)
		}()

		clientPrw := NewPacketReadWriter(clientPipe)
		go func() {
			_ = clientPrw.ReadPump(msgHandler, closeHandler)
		}()
		return clientPrw, nil
	}
}
