package srpc

import (
	"context"
	"io"
	"time"
)

// DefaultShutdownTimeout is the default grace period the server loop waits
// for the packet-pump to observe the terminal response before aborting it.
const DefaultShutdownTimeout = 100 * time.Millisecond

// ServerConfig controls Server behavior.
type ServerConfig struct {
	// ShutdownTimeout is how long HandleConn waits for the packet-pump to
	// exit on its own after the handler completes, before giving up on it.
	ShutdownTimeout time.Duration
	// ErrorHandler, if set, is called with the error returned while writing
	// a call's terminal response, if any. Other errors are not passed to it.
	ErrorHandler func(err error)
}

// ServerOption configures a ServerConfig.
type ServerOption func(*ServerConfig)

// WithShutdownTimeout overrides the default packet-pump shutdown grace
// period.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(c *ServerConfig) { c.ShutdownTimeout = d }
}

// WithErrorHandler sets a callback invoked when writing a call's terminal
// response fails.
func WithErrorHandler(fn func(err error)) ServerOption {
	return func(c *ServerConfig) { c.ErrorHandler = fn }
}

// Server accepts fresh transports, reads the leading CallStart, and
// dispatches to a Mux.
type Server struct {
	mux Mux
	cfg ServerConfig
}

// NewServer constructs a new Server routing calls through mux.
func NewServer(mux Mux, opts ...ServerOption) *Server {
	cfg := ServerConfig{ShutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{mux: mux, cfg: cfg}
}

// HandleConn services one fresh transport: reads the CallStart, spawns the
// packet-pump, synchronously invokes the mux, writes the terminal response,
// and waits (bounded by ShutdownTimeout) for the pump to exit.
func (s *Server) HandleConn(ctx context.Context, rwc io.ReadWriteCloser) error {
	prw := NewPacketReadWriter(rwc)

	first, err := prw.ReadOnePacket()
	if err != nil {
		_ = prw.Close()
		if err == io.EOF {
			return ErrStreamClosed
		}
		return err
	}
	if err := first.Validate(); err != nil {
		_ = prw.Close()
		return err
	}

	cs := first.GetCallStart()
	if cs == nil {
		_ = prw.Close()
		return ErrExpectedCallStart
	}
	if err := cs.Validate(); err != nil {
		_ = prw.Close()
		return err
	}

	rpc := NewServerRpcFromCallStart(ctx, prw, cs)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		_ = prw.ReadPump(rpc.HandlePacket, func(err error) {
			rpc.HandleStreamClose(err)
		})
	}()

	strm := NewMsgStream(rpc.Context(), rpc, nil)
	found, invokeErr := s.mux.InvokeMethod(rpc.Service(), rpc.Method(), strm)
	if !found && invokeErr == nil {
		invokeErr = ErrUnimplemented
	}

	var sendErr error
	if invokeErr != nil {
		sendErr = rpc.SendError(invokeErr.Error())
	} else {
		sendErr = rpc.CloseSend()
	}
	_ = rpc.Close()

	select {
	case <-pumpDone:
	case <-time.After(s.cfg.ShutdownTimeout):
		_ = prw.Close()
		<-pumpDone
	}

	if sendErr != nil && s.cfg.ErrorHandler != nil {
		s.cfg.ErrorHandler(sendErr)
	}
	return invokeErr
}
