package igate

import (
	"bufio"
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/dedupe"
	"github.com/kf7qex/gotnc/internal/digipeater"
	"github.com/kf7qex/gotnc/internal/mheard"
)

func mustAddr(t *testing.T, s string) ax25.Address {
	t.Helper()
	a, err := ax25.ParseAddress(s)
	require.NoError(t, err)
	return a
}

type enqueueCall struct {
	toChan int
	prio   digipeater.Priority
	pkt    *ax25.Packet
}

type spyTransmitter struct {
	mu    sync.Mutex
	calls []enqueueCall
}

func (s *spyTransmitter) Enqueue(toChan int, prio digipeater.Priority, pkt *ax25.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, enqueueCall{toChan, prio, pkt})
}

func (s *spyTransmitter) last() (enqueueCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return enqueueCall{}, false
	}
	return s.calls[len(s.calls)-1], true
}

func (s *spyTransmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// newTestClient builds a Client that writes emitted lines to buf and is
// already marked connected, bypassing the network entirely for path-logic
// tests.
func newTestClient(t *testing.T, tx digipeater.Transmitter, heard *mheard.Table, buf *bytes.Buffer, configure func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		MyCall: mustAddr(t, "N0CALL"),
		ToCall: mustAddr(t, "APZGTN"),
		TXChan: 0,
	}
	if configure != nil {
		configure(&cfg)
	}
	c := New(cfg, tx, heard, nil)
	c.w = bufio.NewWriter(buf)
	c.okToSend.Store(true)
	return c
}

func TestReceiveRFEmitsTNC2Line(t *testing.T) {
	var buf bytes.Buffer
	heard := mheard.New()
	c := newTestClient(t, &spyTransmitter{}, heard, &buf, nil)

	pkt := &ax25.Packet{
		Source: mustAddr(t, "N1CALL"),
		Dest:   mustAddr(t, "APDW16"),
		Digis:  []ax25.Address{mustAddr(t, "WIDE1-1*")},
		Info:   []byte("test"),
	}
	c.ReceiveRF(0, pkt)

	assert.Equal(t, "N1CALL>APDW16,WIDE1-1*,qAR,N0CALL:test\r\n", buf.String())
	assert.EqualValues(t, 1, c.Stats().PacketsUplinked)
}

func TestReceiveRFRejectsWhenNotConnected(t *testing.T) {
	var buf bytes.Buffer
	c := newTestClient(t, &spyTransmitter{}, mheard.New(), &buf, nil)
	c.okToSend.Store(false)

	c.ReceiveRF(0, &ax25.Packet{Source: mustAddr(t, "N1CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte("test")})

	assert.Empty(t, buf.String())
}

func TestReceiveRFRejectsForbiddenVia(t *testing.T) {
	var buf bytes.Buffer
	c := newTestClient(t, &spyTransmitter{}, mheard.New(), &buf, nil)

	pkt := &ax25.Packet{
		Source: mustAddr(t, "N1CALL"),
		Dest:   mustAddr(t, "APDW16"),
		Digis:  []ax25.Address{mustAddr(t, "NOGATE*")},
		Info:   []byte("test"),
	}
	c.ReceiveRF(0, pkt)

	assert.Empty(t, buf.String())
}

func TestReceiveRFRejectsQuery(t *testing.T) {
	var buf bytes.Buffer
	c := newTestClient(t, &spyTransmitter{}, mheard.New(), &buf, nil)

	pkt := &ax25.Packet{Source: mustAddr(t, "N1CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte("?APRS")}
	c.ReceiveRF(0, pkt)

	assert.Empty(t, buf.String())
}

func TestReceiveRFTruncatesAtCRLFAndRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	c := newTestClient(t, &spyTransmitter{}, mheard.New(), &buf, nil)

	pkt := &ax25.Packet{Source: mustAddr(t, "N1CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte("\r\ngarbage")}
	c.ReceiveRF(0, pkt)

	assert.Empty(t, buf.String())
}

func TestReceiveRFUnwrapsThirdPartyRejectingForbiddenInnerVia(t *testing.T) {
	var buf bytes.Buffer
	c := newTestClient(t, &spyTransmitter{}, mheard.New(), &buf, nil)

	outer := &ax25.Packet{
		Source: mustAddr(t, "N2CALL"),
		Dest:   mustAddr(t, "APDW16"),
		Info:   []byte("}N1CALL>APDW16,NOGATE*:test"),
	}
	c.ReceiveRF(0, outer)

	assert.Empty(t, buf.String())
}

func TestReceiveRFAppliesDedupeGate(t *testing.T) {
	var buf bytes.Buffer
	c := newTestClient(t, &spyTransmitter{}, mheard.New(), &buf, nil)

	pkt := &ax25.Packet{Source: mustAddr(t, "N1CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte("test")}
	c.ReceiveRF(0, pkt)
	c.ReceiveRF(0, pkt)

	lines := bytes.Count(buf.Bytes(), []byte("\r\n"))
	assert.Equal(t, 1, lines)
}

func TestReceiveRFSatgateDefersDirectlyHeardPacket(t *testing.T) {
	var buf bytes.Buffer
	c := newTestClient(t, &spyTransmitter{}, mheard.New(), &buf, func(cfg *Config) {
		cfg.SatgateEnabled = true
	})

	pkt := &ax25.Packet{
		Source: mustAddr(t, "N1CALL"),
		Dest:   mustAddr(t, "APDW16"),
		Digis:  []ax25.Address{mustAddr(t, "WIDE2-1")}, // present, unused -> heard directly
		Info:   []byte("test"),
	}
	c.ReceiveRF(0, pkt)

	assert.Empty(t, buf.String())
	assert.Equal(t, 0, buf.Len())
	due := c.sat.due(time.Now().Add(time.Hour))
	require.Len(t, due, 1)
	assert.Equal(t, "N1CALL", due[0].pkt.Source.Call)
}

func TestReceiveRFSatgateSkipsAlreadyDigipeated(t *testing.T) {
	var buf bytes.Buffer
	c := newTestClient(t, &spyTransmitter{}, mheard.New(), &buf, func(cfg *Config) {
		cfg.SatgateEnabled = true
	})

	pkt := &ax25.Packet{
		Source: mustAddr(t, "N1CALL"),
		Dest:   mustAddr(t, "APDW16"),
		Digis:  []ax25.Address{mustAddr(t, "WIDE1-1*")}, // used -> not heard directly
		Info:   []byte("test"),
	}
	c.ReceiveRF(0, pkt)

	assert.Contains(t, buf.String(), "N1CALL>APDW16,WIDE1-1*,qAR,N0CALL:test")
}

func TestSatgateDelayClampsToConfiguredRange(t *testing.T) {
	c := &Client{}
	assert.Equal(t, defaultSatgateDelay, c.satgateDelay())

	c.cfg.SatgateDelay = time.Second
	assert.Equal(t, minSatgateDelay, c.satgateDelay())

	c.cfg.SatgateDelay = time.Minute
	assert.Equal(t, maxSatgateDelay, c.satgateDelay())

	c.cfg.SatgateDelay = 12 * time.Second
	assert.Equal(t, 12*time.Second, c.satgateDelay())
}

func TestSatgateQueueDueOnlyReturnsExpiredEntries(t *testing.T) {
	q := &satgateQueue{}
	now := time.Now()
	q.insert(&ax25.Packet{}, 0, now.Add(10*time.Millisecond))
	q.insert(&ax25.Packet{}, 1, now.Add(time.Hour))

	assert.Empty(t, q.due(now))

	due := q.due(now.Add(20 * time.Millisecond))
	require.Len(t, due, 1)
	assert.Equal(t, 0, due[0].channel)

	assert.Empty(t, q.due(now.Add(20*time.Millisecond)), "consumed entries must not be returned twice")
}

func TestHandleServerLineWrapsAndEnqueues(t *testing.T) {
	var buf bytes.Buffer
	tx := &spyTransmitter{}
	c := newTestClient(t, tx, mheard.New(), &buf, func(cfg *Config) {
		cfg.TXChan = 2
	})

	c.handleServerLine("N1CALL>APDW16,WIDE1-1,WIDE2-1,qAR,SOMEIGATE:!4903.50N/07201.75W-test")

	call, ok := tx.last()
	require.True(t, ok)
	assert.Equal(t, 2, call.toChan)
	assert.Equal(t, digipeater.PriorityLow, call.prio)
	assert.Equal(t, "N0CALL", call.pkt.Source.Call)
	assert.Equal(t, "APZGTN", call.pkt.Dest.Call)
	assert.Equal(t, byte('}'), call.pkt.Info[0])
	assert.Contains(t, string(call.pkt.Info), "N1CALL>APDW16,TCPIP,N0CALL*:!4903.50N/07201.75W-test")
}

func TestHandleServerLineRejectsForbiddenVia(t *testing.T) {
	var buf bytes.Buffer
	tx := &spyTransmitter{}
	c := newTestClient(t, tx, mheard.New(), &buf, nil)

	for _, via := range []string{"qAX", "TCPXX", "RFONLY", "NOGATE"} {
		c.handleServerLine("N1CALL>APDW16," + via + ",SOMEIGATE:test")
	}

	assert.Equal(t, 0, tx.count())
}

func TestHandleServerLineIgnoresHeartbeatsAndEmptyLines(t *testing.T) {
	var buf bytes.Buffer
	tx := &spyTransmitter{}
	c := newTestClient(t, tx, mheard.New(), &buf, nil)

	c.handleServerLine("")
	c.handleServerLine("# javAPRSSrvr 4.5")

	assert.Equal(t, 0, tx.count())
}

func TestHandleServerLineAppliesISToRFFilter(t *testing.T) {
	var buf bytes.Buffer
	tx := &spyTransmitter{}
	c := newTestClient(t, tx, mheard.New(), &buf, func(cfg *Config) {
		cfg.ISToRFFilter = "b/NOMATCH"
	})

	c.handleServerLine("N1CALL>APDW16,qAR,SOMEIGATE:test")

	assert.Equal(t, 0, tx.count())
}

func TestHandleServerLineMSPBypassesFilter(t *testing.T) {
	var buf bytes.Buffer
	tx := &spyTransmitter{}
	heard := mheard.New()
	heard.SaveRF(0, &ax25.Packet{Source: mustAddr(t, "N1CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte("x")})
	heard.SetMSP("N1CALL", 1)

	c := newTestClient(t, tx, heard, &buf, func(cfg *Config) {
		cfg.ISToRFFilter = "b/NOMATCH" // would otherwise reject everything
	})

	c.handleServerLine("N1CALL>APDW16,qAR,SOMEIGATE:!4903.50N/07201.75W-test")

	assert.Equal(t, 1, tx.count())
	assert.Equal(t, 0, heard.GetMSP("N1CALL"))
}

func TestHandleServerLineSetsMSPAfterGatingMessage(t *testing.T) {
	var buf bytes.Buffer
	tx := &spyTransmitter{}
	heard := mheard.New()
	c := newTestClient(t, tx, heard, &buf, func(cfg *Config) {
		cfg.IGMSP = 1
	})

	c.handleServerLine("N1CALL>APDW16,qAR,SOMEIGATE::N0CALL   :hello{001")

	assert.Equal(t, 1, tx.count())
	assert.Equal(t, 1, heard.GetMSP("N1CALL"))
	assert.EqualValues(t, 1, c.Stats().MessagesDownlinked)
}

func TestAllowIG2TXDedupeRejectsRepeatNonMessage(t *testing.T) {
	var buf bytes.Buffer
	c := newTestClient(t, &spyTransmitter{}, mheard.New(), &buf, nil)

	pkt := &ax25.Packet{Source: mustAddr(t, "N1CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte("test")}
	assert.True(t, c.allowIG2TX(pkt, false))
	assert.False(t, c.allowIG2TX(pkt, false))
}

func TestAllowIG2TXMessagesBypassDedupe(t *testing.T) {
	var buf bytes.Buffer
	c := newTestClient(t, &spyTransmitter{}, mheard.New(), &buf, nil)

	pkt := &ax25.Packet{Source: mustAddr(t, "N1CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte(":N0CALL   :hi")}
	assert.True(t, c.allowIG2TX(pkt, true))
	assert.True(t, c.allowIG2TX(pkt, true))
}

func TestAllowIG2TXSharedRingSeesDigipeaterEntries(t *testing.T) {
	shared := dedupe.New(50, 60*time.Second)
	var buf bytes.Buffer
	c := newTestClient(t, &spyTransmitter{}, mheard.New(), &buf, func(cfg *Config) {
		cfg.IG2TX = shared
		cfg.TXChan = 3
	})

	pkt := &ax25.Packet{Source: mustAddr(t, "N1CALL"), Dest: mustAddr(t, "APDW16"), Info: []byte("test")}
	shared.Remember(pkt.DedupeKey(), 3) // as if a digipeater route already sent this on channel 3

	assert.False(t, c.allowIG2TX(pkt, false))
}

func TestIsMessageMessage(t *testing.T) {
	cases := []struct {
		name string
		info string
		want bool
	}{
		{"plain message", ":N0CALL   :hello", true},
		{"ack", ":N0CALL   :ack001", true},
		{"not a message", "!4903.50N/07201.75W-test", false},
		{"too short", ":N0CALL", false},
		{"bulletin", ":BLN1     :announcement", false},
		{"nws", ":NWS-HNL  :warning", false},
		{"telemetry parm", ":N0CALL   :PARM.A,B,C", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isMessageMessage([]byte(tc.info)))
		})
	}
}

func TestRateLimiterEnforcesOneMinuteLimit(t *testing.T) {
	r := newRateLimiter(2, 80)
	assert.True(t, r.allow(0, 1))
	assert.True(t, r.allow(0, 1))
	assert.False(t, r.allow(0, 1))
	assert.True(t, r.allow(1, 1), "separate channel has its own budget")
}

func TestRateLimiterMessageMultiplierIsCappedAtHardLimit(t *testing.T) {
	r := newRateLimiter(20, 20)
	for i := 0; i < 20; i++ {
		require.True(t, r.allow(0, 3))
	}
	assert.False(t, r.allow(0, 3), "3x of limit1=20 must still cap at the hard limit of 20")
}

func TestRateLimiterDefaultsAndHardCaps(t *testing.T) {
	r := newRateLimiter(0, 0)
	assert.Equal(t, 6, r.limit1)
	assert.Equal(t, 20, r.limit5)

	r2 := newRateLimiter(999, 999)
	assert.Equal(t, 20, r2.limit1)
	assert.Equal(t, 80, r2.limit5)
}

// newPipeClient builds a Client wired to an in-memory net.Conn pair so the
// connection life cycle (login, heartbeat, reconnection) can be exercised
// without real networking.
func newPipeClient(t *testing.T, configure func(*Config)) (*Client, net.Conn) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	cfg := Config{
		Host:              "aprs.example.net",
		Login:             "N0CALL",
		Passcode:          "-1",
		MyCall:            mustAddr(t, "N0CALL"),
		HeartbeatInterval: 15 * time.Millisecond,
		LoginWait:         5 * time.Millisecond,
		ReconnectDelay:    10 * time.Millisecond,
		Dial: func(host string, port int) (net.Conn, error) {
			return clientConn, nil
		},
	}
	if configure != nil {
		configure(&cfg)
	}
	c := New(cfg, &spyTransmitter{}, mheard.New(), nil)
	t.Cleanup(func() { serverConn.Close() })
	return c, serverConn
}

func TestRunLogsInWaitsThenHeartbeats(t *testing.T) {
	c, serverConn := newPipeClient(t, nil)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		c.Run(stop)
		close(done)
	}()

	r := bufio.NewReader(serverConn)
	login, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "user N0CALL pass -1 vers gotnc 0.1\n", login)

	require.Eventually(t, func() bool { return c.IsConnected() }, time.Second, time.Millisecond)

	heartbeat, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "#\n", heartbeat)

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stop was closed")
	}
}

func TestRunSendsConfiguredFilterInLoginLine(t *testing.T) {
	c, serverConn := newPipeClient(t, func(cfg *Config) {
		cfg.RFToISFilter = "r/40/-105/50"
	})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		c.Run(stop)
		close(done)
	}()

	r := bufio.NewReader(serverConn)
	login, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, login, "filter r/40/-105/50")

	close(stop)
	<-done
}
