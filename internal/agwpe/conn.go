package agwpe

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/charmbracelet/log"
)

// byteOrder is little-endian on the wire, matching every AGWPE client
// and server implementation in practice (the protocol predates
// endian-neutral documentation and everyone just copied the original
// Windows DLL's layout).
var byteOrder = binary.LittleEndian

// Handler receives decoded AGWPE messages from a connected client.
type Handler interface {
	OnMessage(conn *Conn, msg Message)
}

// Conn is one AGW TCP client connection.
type Conn struct {
	nc  net.Conn
	log *log.Logger
	mu  sync.Mutex
}

// Serve reads messages from the connection until ctx is cancelled or the
// connection errs/EOFs, dispatching each to h.
func (c *Conn) Serve(ctx context.Context, h Handler) error {
	go func() {
		<-ctx.Done()
		c.nc.Close()
	}()

	for {
		msg, err := ReadMessage(c.nc, byteOrder)
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return nil
			}
			return err
		}
		h.OnMessage(c, msg)
	}
}

// Send writes msg to the client. Safe for concurrent use.
func (c *Conn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := msg.Write(c.nc, byteOrder)
	return err
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// Listener accepts AGWPE TCP clients (conventionally port 8000).
// Grounded on the teacher's lack of any dispatch loop around
// AGWPEMessage: this type supplies only the accept/frame/dispatch glue
// a real AGW server needs, leaving command semantics (KindConnect,
// KindUnprotoData, ...) to the caller's Handler.
type Listener struct {
	ln  net.Listener
	log *log.Logger

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func Listen(addr string, logger *log.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Listener{ln: ln, log: logger, conns: make(map[*Conn]struct{})}, nil
}

func (l *Listener) Serve(ctx context.Context, h Handler) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		conn := &Conn{nc: nc, log: l.log}
		l.mu.Lock()
		l.conns[conn] = struct{}{}
		l.mu.Unlock()

		go func() {
			if err := conn.Serve(ctx, h); err != nil {
				l.log.Debug("agwpe client disconnected", "err", err)
			}
			l.mu.Lock()
			delete(l.conns, conn)
			l.mu.Unlock()
		}()
	}
}

// Broadcast sends msg to every currently connected client, the AGW
// analogue of kiss.Listener.Broadcast for fanning out a received frame
// (KindRawTNC) to all attached monitors.
func (l *Listener) Broadcast(msg Message) {
	l.mu.Lock()
	conns := make([]*Conn, 0, len(l.conns))
	for c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	for _, c := range conns {
		if err := c.Send(msg); err != nil {
			l.log.Debug("agwpe broadcast write failed", "err", err)
		}
	}
}

func (l *Listener) Close() error { return l.ln.Close() }
