package srpc

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"

	"nhooyr.io/websocket"
)

// WebSocketConn multiplexes many logical byte streams (one per RPC
// connection) over a single nhooyr.io/websocket connection. Each websocket
// binary message is a small frame: a one-byte frame kind, a 4-byte
// little-endian stream id, and (for data frames) a payload.
//
// This is transport-level plumbing external to the core three subsystems
// (codec, state machine, dispatch fabric); it exists so a single WebSocket
// upgrade can carry more than one RPC connection, the way an HTTP/2 or
// yamux-style transport would.
type WebSocketConn struct {
	conn     *websocket.Conn
	ctx      context.Context
	ctxClose context.CancelFunc
	isServer bool

	mtx       sync.Mutex
	streams   map[uint32]*wsStream
	nextID    uint32
	acceptCh  chan *wsStream
	closed    bool
	closeOnce sync.Once
}

const (
	wsFrameOpen byte = iota
	wsFrameData
	wsFrameClose
)

const wsFrameHeaderLen = 1 + 4

// NewWebSocketConn wraps conn and starts its background read loop. isServer
// controls which side of the stream-id space this end allocates from, so
// concurrently opened streams from both sides never collide.
func NewWebSocketConn(ctx context.Context, conn *websocket.Conn, isServer bool) (*WebSocketConn, error) {
	cctx, cancel := context.WithCancel(ctx)
	c := &WebSocketConn{
		conn:     conn,
		ctx:      cctx,
		ctxClose: cancel,
		isServer: isServer,
		streams:  make(map[uint32]*wsStream),
		acceptCh: make(chan *wsStream, 8),
	}
	if isServer {
		c.nextID = 2
	} else {
		c.nextID = 1
	}
	go c.readLoop()
	return c, nil
}

// readLoop dispatches incoming frames to their logical stream, or to
// acceptCh for a newly opened one.
func (c *WebSocketConn) readLoop() {
	defer c.shutdown(nil)
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.shutdown(err)
			return
		}
		if typ != websocket.MessageBinary || len(data) < wsFrameHeaderLen {
			continue
		}
		kind := data[0]
		id := binary.LittleEndian.Uint32(data[1:5])
		payload := data[wsFrameHeaderLen:]

		switch kind {
		case wsFrameOpen:
			st := newWsStream(c, id)
			c.mtx.Lock()
			c.streams[id] = st
			c.mtx.Unlock()
			select {
			case c.acceptCh <- st:
			case <-c.ctx.Done():
				return
			}
		case wsFrameData:
			c.mtx.Lock()
			st := c.streams[id]
			c.mtx.Unlock()
			if st != nil {
				st.deliver(payload)
			}
		case wsFrameClose:
			c.mtx.Lock()
			st := c.streams[id]
			delete(c.streams, id)
			c.mtx.Unlock()
			if st != nil {
				st.deliverEOF()
			}
		}
	}
}

// shutdown tears down every open logical stream with err (nil for a clean
// close).
func (c *WebSocketConn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mtx.Lock()
		c.closed = true
		streams := c.streams
		c.streams = nil
		c.mtx.Unlock()

		for _, st := range streams {
			if err != nil {
				st.deliverErr(err)
			} else {
				st.deliverEOF()
			}
		}
		close(c.acceptCh)
		c.ctxClose()
	})
}

// AcceptStream blocks until a remote-initiated logical stream arrives.
func (c *WebSocketConn) AcceptStream() (io.ReadWriteCloser, error) {
	st, ok := <-c.acceptCh
	if !ok {
		return nil, io.EOF
	}
	return st, nil
}

// DialStream opens a new logical stream to the remote.
func (c *WebSocketConn) DialStream(ctx context.Context) (io.ReadWriteCloser, error) {
	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()
		return nil, ErrStreamClosed
	}
	id := c.nextID
	c.nextID += 2
	st := newWsStream(c, id)
	c.streams[id] = st
	c.mtx.Unlock()

	if err := c.writeFrame(ctx, wsFrameOpen, id, nil); err != nil {
		return nil, err
	}
	return st, nil
}

// writeFrame writes one frame to the shared websocket connection.
func (c *WebSocketConn) writeFrame(ctx context.Context, kind byte, id uint32, payload []byte) error {
	buf := make([]byte, wsFrameHeaderLen+len(payload))
	buf[0] = kind
	binary.LittleEndian.PutUint32(buf[1:5], id)
	copy(buf[wsFrameHeaderLen:], payload)
	return c.conn.Write(ctx, websocket.MessageBinary, buf)
}

// Close closes the underlying websocket connection and all logical streams.
func (c *WebSocketConn) Close() error {
	c.shutdown(nil)
	return c.conn.Close(websocket.StatusNormalClosure, "closed")
}

// wsStream is one logical byte stream multiplexed over a WebSocketConn.
type wsStream struct {
	parent *WebSocketConn
	id     uint32

	mtx    sync.Mutex
	buf    bytes.Buffer
	err    error
	notify chan struct{}
}

func newWsStream(parent *WebSocketConn, id uint32) *wsStream {
	return &wsStream{parent: parent, id: id, notify: make(chan struct{}, 1)}
}

func (s *wsStream) deliver(data []byte) {
	s.mtx.Lock()
	s.buf.Write(data)
	s.mtx.Unlock()
	s.wake()
}

func (s *wsStream) deliverEOF() {
	s.mtx.Lock()
	if s.err == nil {
		s.err = io.EOF
	}
	s.mtx.Unlock()
	s.wake()
}

func (s *wsStream) deliverErr(err error) {
	s.mtx.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mtx.Unlock()
	s.wake()
}

func (s *wsStream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Read implements io.Reader.
func (s *wsStream) Read(p []byte) (int, error) {
	for {
		s.mtx.Lock()
		if s.buf.Len() > 0 {
			n, _ := s.buf.Read(p)
			s.mtx.Unlock()
			return n, nil
		}
		err := s.err
		s.mtx.Unlock()
		if err != nil {
			return 0, err
		}
		<-s.notify
	}
}

// Write implements io.Writer.
func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.parent.writeFrame(s.parent.ctx, wsFrameData, s.id, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer.
func (s *wsStream) Close() error {
	s.parent.mtx.Lock()
	delete(s.parent.streams, s.id)
	s.parent.mtx.Unlock()
	s.deliverEOF()
	return s.parent.writeFrame(s.parent.ctx, wsFrameClose, s.id, nil)
}

// _ is a type assertion
var _ io.ReadWriteCloser = ((*wsStream)(nil))
