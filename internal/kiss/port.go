package kiss

import (
	"context"
	"io"
	"net"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
)

// Handler receives a decoded data frame from a connected client on the
// given channel; OnData is handed the AX.25 payload to transmit (wire
// bytes, not KISS-encoded). Non-data commands (TXDELAY, PERSISTENCE, ...) are
// parameter settings the core may ignore or apply; they are reported
// separately via OnParam.
type Handler interface {
	OnData(channel int, payload []byte)
	OnParam(channel int, cmd Command, value byte)
}

// Port is one attached KISS client transport: a byte stream in each
// direction, framed with Encode/Decoder. Grounded on kiss.go's pt_master
// reader loop and kissnet.go's per-connection client loop, generalized
// to a single abstraction both a pty and a TCP connection satisfy.
type Port struct {
	rw      io.ReadWriteCloser
	handler Handler
	log     *log.Logger

	mu sync.Mutex
}

func newPort(rw io.ReadWriteCloser, h Handler, logger *log.Logger) *Port {
	if logger == nil {
		logger = log.Default()
	}
	return &Port{rw: rw, handler: h, log: logger}
}

// Serve reads bytes from the port until ctx is cancelled or the
// underlying stream errs/EOFs, dispatching each decoded frame to the
// handler. It blocks; callers run it in its own goroutine per port.
func (p *Port) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		p.rw.Close()
	}()

	var dec Decoder
	buf := make([]byte, 4096)
	for {
		n, err := p.rw.Read(buf)
		if n > 0 {
			dec.FeedAll(buf[:n], func(f Frame) {
				switch f.Command {
				case CmdDataFrame:
					p.handler.OnData(f.Channel, f.Payload)
				default:
					var v byte
					if len(f.Payload) > 0 {
						v = f.Payload[0]
					}
					p.handler.OnParam(f.Channel, f.Command, v)
				}
			})
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Send frames payload as a data frame on channel and writes it to the
// client. Safe for concurrent use.
func (p *Port) Send(channel int, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.rw.Write(Encode(channel, CmdDataFrame, payload))
	return err
}

// OpenPTY creates a pseudo-terminal pair and symlinks the slave side at
// linkPath (e.g. "/tmp/kisstnc"), the way client applications expect to
// find a direwolf-style KISS TNC. Grounded on kiss.go's use of
// github.com/creack/pty plus its pt_slave symlink step; the returned
// Port wraps the master side, which is this process's end of the pipe.
func OpenPTY(linkPath string, h Handler, logger *log.Logger) (*Port, func() error, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, nil, err
	}

	if linkPath != "" {
		os.Remove(linkPath)
		if err := os.Symlink(slave.Name(), linkPath); err != nil {
			master.Close()
			slave.Close()
			return nil, nil, err
		}
	}

	port := newPort(master, h, logger)
	cleanup := func() error {
		slave.Close()
		if linkPath != "" {
			os.Remove(linkPath)
		}
		return master.Close()
	}
	return port, cleanup, nil
}

// Listener accepts TCP KISS clients (the kissnet.go style interface most
// APRS client apps actually use, in preference to a pty), serving each
// accepted connection as its own Port until the listener is closed.
type Listener struct {
	ln      net.Listener
	handler Handler
	log     *log.Logger

	mu    sync.Mutex
	ports map[*Port]struct{}
}

// Listen opens a TCP listener on addr (e.g. ":8001") for KISS clients.
func Listen(addr string, h Handler, logger *log.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Listener{ln: ln, handler: h, log: logger, ports: make(map[*Port]struct{})}, nil
}

// Serve accepts connections until ctx is cancelled, spawning a Port per
// client and registering it so Broadcast reaches every currently
// connected client.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		port := newPort(conn, l.handler, l.log)
		l.mu.Lock()
		l.ports[port] = struct{}{}
		l.mu.Unlock()

		go func() {
			if err := port.Serve(ctx); err != nil {
				l.log.Debug("kiss client disconnected", "err", err)
			}
			l.mu.Lock()
			delete(l.ports, port)
			l.mu.Unlock()
		}()
	}
}

// Broadcast sends a data frame to every currently connected client,
// matching kissnet.go's "send to all KISS TCP clients" fan-out.
func (l *Listener) Broadcast(channel int, payload []byte) {
	l.mu.Lock()
	ports := make([]*Port, 0, len(l.ports))
	for p := range l.ports {
		ports = append(ports, p)
	}
	l.mu.Unlock()

	for _, p := range ports {
		if err := p.Send(channel, payload); err != nil {
			l.log.Debug("kiss broadcast write failed", "err", err)
		}
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}
