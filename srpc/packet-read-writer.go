package srpc

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// PacketReadWriter frames an io.ReadWriteCloser with PacketCodec: it is both
// a Writer (serializing outgoing packets with the length prefix) and a
// packet-pump source. ReadOnePacket and ReadPump share the same buffered
// read state, so a caller may read one packet synchronously (e.g. to
// inspect the leading CallStart) before handing the rest of the connection
// to ReadPump without losing any bytes already buffered.
type PacketReadWriter struct {
	rwc   io.ReadWriteCloser
	codec *PacketCodec

	writeMtx sync.Mutex
	closed   bool

	readMtx sync.Mutex
	readBuf []byte
}

// NewPacketReadWriter constructs a PacketReadWriter over rwc.
func NewPacketReadWriter(rwc io.ReadWriteCloser) *PacketReadWriter {
	return &PacketReadWriter{rwc: rwc, codec: NewPacketCodec()}
}

// MsgSend encodes and writes a single packet.
func (p *PacketReadWriter) MsgSend(pkt *Packet) error {
	p.writeMtx.Lock()
	defer p.writeMtx.Unlock()
	if p.closed {
		return ErrStreamClosed
	}

	buf, err := p.codec.EncodePacket(nil, pkt)
	if err != nil {
		return err
	}
	_, err = p.rwc.Write(buf)
	return err
}

// Close closes the underlying transport. Idempotent.
func (p *PacketReadWriter) Close() error {
	p.writeMtx.Lock()
	already := p.closed
	p.closed = true
	p.writeMtx.Unlock()
	if already {
		return nil
	}
	return p.rwc.Close()
}

// ReadOnePacket blocks until exactly one packet has been decoded, consuming
// it from the shared read buffer. Returns io.EOF if the transport closed
// before any full frame arrived.
//
// Not safe to call concurrently with ReadPump or another ReadOnePacket; it
// is meant to read the leading CallStart before a packet-pump goroutine
// takes over via ReadPump.
func (p *PacketReadWriter) ReadOnePacket() (*Packet, error) {
	var readBuf [32 * 1024]byte
	for {
		p.readMtx.Lock()
		pkt, n, err := p.codec.DecodePacket(p.readBuf)
		if err == nil && pkt != nil {
			p.readBuf = p.readBuf[n:]
		}
		p.readMtx.Unlock()
		if err != nil {
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}

		n2, rerr := p.rwc.Read(readBuf[:])
		if n2 > 0 {
			p.readMtx.Lock()
			p.readBuf = append(p.readBuf, readBuf[:n2]...)
			p.readMtx.Unlock()
		}
		if rerr != nil {
			return nil, rerr
		}
	}
}

// ReadPump reads packets from the transport until EOF or a fatal error,
// dispatching each to handler. Calls closeHandler exactly once when the pump
// exits, with nil for a clean EOF or the terminal error otherwise.
//
// Intended to run in its own goroutine, per spec.md's "spawn a packet-pump
// task" server-loop and client-loop steps.
func (p *PacketReadWriter) ReadPump(handler PacketHandler, closeHandler CloseHandler) error {
	var readBuf [32 * 1024]byte

	runErr := func() error {
		for {
			for {
				p.readMtx.Lock()
				pkt, n, err := p.codec.DecodePacket(p.readBuf)
				if err == nil && pkt != nil {
					p.readBuf = p.readBuf[n:]
				}
				p.readMtx.Unlock()
				if err != nil {
					return err
				}
				if pkt == nil {
					break
				}
				if err := handler(pkt); err != nil {
					return err
				}
			}

			n, err := p.rwc.Read(readBuf[:])
			if n > 0 {
				p.readMtx.Lock()
				p.readBuf = append(p.readBuf, readBuf[:n]...)
				p.readMtx.Unlock()
			}
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		}
	}()

	if closeHandler != nil {
		if runErr != nil && !errors.Is(runErr, io.EOF) {
			closeHandler(runErr)
		} else {
			closeHandler(nil)
		}
	}
	return runErr
}

// _ is a type assertion
var _ Writer = ((*PacketReadWriter)(nil))
