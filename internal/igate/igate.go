// Package igate implements the APRS-IS gateway client: a TCP connection to
// a tier-2 server carrying RF traffic onto the internet (RX->IS) and
// selected internet traffic back onto RF (IS->RF), each with its own
// optional packet-filter expression, duplicate cache, and (for IS->RF)
// transmit rate limit. Grounded on src/igate.go.
package igate

import (
	"bufio"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/dedupe"
	"github.com/kf7qex/gotnc/internal/digipeater"
	"github.com/kf7qex/gotnc/internal/mheard"
	"github.com/kf7qex/gotnc/internal/pfilter"
)

const (
	defaultPort         = 14580
	defaultSoftwareName = "gotnc"
	defaultSoftwareVers = "0.1"
	defaultToCall       = "APZGTN"

	defaultHeartbeatInterval = 30 * time.Second
	defaultLoginWait         = 7 * time.Second
	defaultReconnectDelay    = 5 * time.Second

	rx2igCapacity = 30
	rx2igWindow   = 60 * time.Second
	ig2txCapacity = 50
	ig2txWindow   = 60 * time.Second

	defaultSatgateDelay = 10 * time.Second
	minSatgateDelay     = 5 * time.Second
	maxSatgateDelay     = 30 * time.Second
)

// Config carries one IGate connection's settings (spec §4.5).
type Config struct {
	Host     string
	Port     int // defaults to 14580
	Login    string
	Passcode string

	SoftwareName string // defaults to "gotnc"
	SoftwareVers string // defaults to "0.1"

	MyCall ax25.Address
	ToCall ax25.Address // destination field of the wrapped third-party packet; defaults to APZGTN
	TXChan int
	TXVia  []ax25.Address // via path added to the outer wrapped frame, e.g. WIDE1-1

	RFToISFilter string
	ISToRFFilter string

	SatgateEnabled bool
	SatgateDelay   time.Duration // clamped to [5s,30s], defaults to 10s

	TxLimit1 int // defaults to 6, hard capped at 20
	TxLimit5 int // defaults to 20, hard capped at 80
	IGMSP    int // courtesy-posit count granted to a station after gating one of its messages

	HeartbeatInterval time.Duration
	LoginWait         time.Duration
	ReconnectDelay    time.Duration

	// IG2TX, when non-nil, is the same ring a digipeater route transmitting
	// on TXChan uses, so a packet this IGate just digipeated is not
	// redundantly retransmitted from the server (spec §4.4's final step).
	// A nil value gets a private ring.
	IG2TX *dedupe.Ring

	// Dial resolves host:port to a connection, matching connect_thread's
	// multi-address shuffle-and-try. Defaults to dialTCP.
	Dial func(host string, port int) (net.Conn, error)
}

// Stats are the IGate's cumulative packet/message counters, direwolf's
// igate_get_pkt_cnt family.
type Stats struct {
	PacketsUplinked    int64 // RF -> IS
	PacketsDownlinked  int64 // IS -> RF
	MessagesUplinked   int64
	MessagesDownlinked int64
}

// Client is one IGate server connection plus both transmit directions'
// dedupe/rate-limit state.
type Client struct {
	cfg   Config
	tx    digipeater.Transmitter
	heard *mheard.Table
	eval  *pfilter.Evaluator
	log   *log.Logger

	rx2ig *dedupe.Ring
	ig2tx *dedupe.Ring
	rate  *rateLimiter
	sat   *satgateQueue

	mu       sync.Mutex
	w        *bufio.Writer
	okToSend atomic.Bool

	pktUp, pktDown, msgUp, msgDown atomic.Int64
}

// New builds a Client. tx is where IS->RF traffic and (via the caller
// wiring the same Transmitter the transmit-queue package provides) RF
// traffic are both ultimately sent; heard is shared with the rest of the
// station for the "message sender position" courtesy posit feature.
func New(cfg Config, tx digipeater.Transmitter, heard *mheard.Table, logger *log.Logger) *Client {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.SoftwareName == "" {
		cfg.SoftwareName = defaultSoftwareName
	}
	if cfg.SoftwareVers == "" {
		cfg.SoftwareVers = defaultSoftwareVers
	}
	if cfg.ToCall.Call == "" {
		cfg.ToCall = ax25.Address{Call: defaultToCall}
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.LoginWait == 0 {
		cfg.LoginWait = defaultLoginWait
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.Dial == nil {
		cfg.Dial = dialTCP
	}

	ig2tx := cfg.IG2TX
	if ig2tx == nil {
		ig2tx = dedupe.New(ig2txCapacity, ig2txWindow)
	}

	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		cfg:   cfg,
		tx:    tx,
		heard: heard,
		eval:  &pfilter.Evaluator{Heard: heard},
		log:   logger.With("component", "igate"),
		rx2ig: dedupe.New(rx2igCapacity, rx2igWindow),
		ig2tx: ig2tx,
		rate:  newRateLimiter(cfg.TxLimit1, cfg.TxLimit5),
		sat:   &satgateQueue{},
	}
}

// Stats returns a snapshot of the cumulative packet/message counters.
func (c *Client) Stats() Stats {
	return Stats{
		PacketsUplinked:    c.pktUp.Load(),
		PacketsDownlinked:  c.pktDown.Load(),
		MessagesUplinked:   c.msgUp.Load(),
		MessagesDownlinked: c.msgDown.Load(),
	}
}

// IsConnected reports whether login has completed and the connection is
// currently accepting traffic for transmission to the server.
func (c *Client) IsConnected() bool { return c.okToSend.Load() }

// Run drives the connection life cycle until stop is closed: dial,
// log in, wait, heartbeat, read until the connection drops, then retry
// after a constant back-off. Grounded on src/igate.go's connect_thread;
// the SATgate delay thread runs alongside it for this client's lifetime.
func (c *Client) Run(stop <-chan struct{}) {
	go c.runSatgate(stop)

	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, err := c.cfg.Dial(c.cfg.Host, c.cfg.Port)
		if err != nil {
			c.log.Warn("connect failed", "host", c.cfg.Host, "err", err)
			if !sleepOrStop(c.cfg.ReconnectDelay, stop) {
				return
			}
			continue
		}

		c.serve(conn, stop)

		if !sleepOrStop(c.cfg.ReconnectDelay, stop) {
			return
		}
	}
}

// serve logs in over one already-connected socket and runs its heartbeat
// and read loops until either drops or stop is closed.
func (c *Client) serve(conn net.Conn, stop <-chan struct{}) {
	c.mu.Lock()
	c.w = bufio.NewWriter(conn)
	c.mu.Unlock()

	defer func() {
		c.okToSend.Store(false)
		c.mu.Lock()
		c.w = nil
		c.mu.Unlock()
		conn.Close()
	}()

	login := fmt.Sprintf("user %s pass %s vers %s %s", c.cfg.Login, c.cfg.Passcode, c.cfg.SoftwareName, c.cfg.SoftwareVers)
	if c.cfg.RFToISFilter != "" {
		login += " filter " + c.cfg.RFToISFilter
	}
	login += "\n"

	if err := c.writeLine(login); err != nil {
		c.log.Warn("login write failed", "err", err)
		return
	}

	if !sleepOrStop(c.cfg.LoginWait, stop) {
		return
	}
	c.okToSend.Store(true)
	c.log.Info("logged in", "host", c.cfg.Host, "login", c.cfg.Login)

	connDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.heartbeatLoop(stop, connDone)
	}()

	c.readLoop(conn, stop)
	close(connDone)
	wg.Wait()
}

// heartbeatLoop sends "#\n" every HeartbeatInterval until stop is closed
// or connDone signals the read side has given up on this connection.
func (c *Client) heartbeatLoop(stop <-chan struct{}, connDone <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-connDone:
			return
		case <-ticker.C:
			if err := c.writeLine("#\n"); err != nil {
				return
			}
		}
	}
}

// readLoop delivers each line from conn to handleServerLine until EOF,
// a read error, or stop is closed.
func (c *Client) readLoop(conn net.Conn, stop <-chan struct{}) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-stop:
			conn.Close()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			c.handleServerLine(line)
		}
	}
}

func (c *Client) writeLine(s string) error {
	c.mu.Lock()
	w := c.w
	c.mu.Unlock()
	if w == nil {
		return fmt.Errorf("igate: not connected")
	}
	if _, err := w.WriteString(s); err != nil {
		return err
	}
	return w.Flush()
}

func sleepOrStop(d time.Duration, stop <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// dialTCP resolves host to every address DNS returns, tries them in
// Fisher-Yates shuffled order, and connects with TCP_NODELAY to the first
// one that accepts. Matching connect_thread, a single flaky address is not
// enough to fail the whole connection attempt.
func dialTCP(host string, port int) (net.Conn, error) {
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(addrs), func(i, j int) { addrs[i], addrs[j] = addrs[j], addrs[i] })

	var lastErr error
	for _, a := range addrs {
		d := net.Dialer{Timeout: 10 * time.Second}
		conn, err := d.Dial("tcp", net.JoinHostPort(a, strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			continue
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		return conn, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("igate: no addresses found for %q", host)
	}
	return nil, lastErr
}
