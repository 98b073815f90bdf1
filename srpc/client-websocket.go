package srpc

import (
	"context"

	"nhooyr.io/websocket"
)

// DialWebSocket dials a WebSocket server and returns an OpenStreamFunc that
// opens a fresh logical stream over the shared connection on each call,
// plus a closer for the underlying connection.
func DialWebSocket(ctx context.Context, url string, opts *websocket.DialOptions) (OpenStreamFunc, func() error, error) {
	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, nil, err
	}

	wsConn, err := NewWebSocketConn(ctx, conn, false)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, err.Error())
		return nil, nil, err
	}

	openStream := func(ctx context.Context, msgHandler PacketHandler, closeHandler CloseHandler) (Writer, error) {
		rwc, err := wsConn.DialStream(ctx)
		if err != nil {
			return nil, err
		}
		prw := NewPacketReadWriter(rwc)
		go func() {
			_ = prw.ReadPump(msgHandler, closeHandler)
		}()
		return prw, nil
	}

	return openStream, wsConn.Close, nil
}
