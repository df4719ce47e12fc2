package postgres

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famgate/famgate/pkg/audit"
	"github.com/famgate/famgate/pkg/proxy"
)

// captureRecorder collects audit records for assertions.
type captureRecorder struct {
	mu   sync.Mutex
	recs []audit.Record
}

func (c *captureRecorder) Emit(rec *audit.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, *rec)
}

func (c *captureRecorder) find(event audit.Event) *audit.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.recs {
		if c.recs[i].Event == event {
			return &c.recs[i]
		}
	}
	return nil
}

func (c *captureRecorder) waitFor(t *testing.T, event audit.Event) *audit.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rec := c.find(event); rec != nil {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("audit event %s not observed", event)
	return nil
}

// fakeBackend accepts one connection, consumes the startup packet, then
// answers every client frame with ReadyForQuery (idle).
func fakeBackend(t *testing.T) (addr *net.TCPAddr, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		if _, err := ReadStartupPacket(conn); err != nil {
			return
		}

		for {
			if _, err := ReadMessage(conn); err != nil {
				return
			}
			ready := &Message{Type: msgReadyForQuery, Payload: []byte{'I'}}
			if err := ready.WriteTo(conn); err != nil {
				return
			}
		}
	}()

	return ln.Addr().(*net.TCPAddr), func() { _ = ln.Close() }
}

// startProxy runs a proxy against the given backend and returns a dialed
// client connection.
func startProxy(t *testing.T, backendAddr *net.TCPAddr, rec audit.Recorder) net.Conn {
	t.Helper()
	p := New(Config{
		Listen:  proxy.ListenConfig{BindAddress: "127.0.0.1", Port: 0},
		Backend: proxy.BackendConfig{Host: "127.0.0.1", Port: backendAddr.Port},
	}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("proxy did not shut down")
		}
	})

	conn, err := net.DialTimeout("tcp", p.GetListenerAddr(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendStartup(t *testing.T, conn net.Conn, user, database string) {
	t.Helper()
	raw := buildStartup(t, map[string]string{"user": user, "database": database})
	_, err := conn.Write(raw)
	require.NoError(t, err)
}

func sendQuery(t *testing.T, conn net.Conn, sql string) {
	t.Helper()
	msg := &Message{Type: msgQuery, Payload: append([]byte(sql), 0)}
	require.NoError(t, msg.WriteTo(conn))
}

func TestBenignQueryForwarded(t *testing.T) {
	backendAddr, stop := fakeBackend(t)
	defer stop()
	rec := &captureRecorder{}

	conn := startProxy(t, backendAddr, rec)
	sendStartup(t, conn, "alice", "appdb")
	sendQuery(t, conn, "SELECT 1")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msg, err := ReadMessage(conn)
	require.NoError(t, err)
	assert.Equal(t, byte(msgReadyForQuery), msg.Type)

	op := rec.waitFor(t, audit.EventOperation)
	assert.Equal(t, "QUERY", op.Operation)
	assert.Equal(t, "SELECT 1", op.Statement)
	assert.Equal(t, "alice", op.User)
	assert.Equal(t, "appdb", op.Database)
	assert.Equal(t, audit.ResultOK, op.Result)
	assert.Greater(t, op.Duration, time.Duration(0))
}

func TestDeniedQueryBlocked(t *testing.T) {
	backendAddr, stop := fakeBackend(t)
	defer stop()
	rec := &captureRecorder{}

	conn := startProxy(t, backendAddr, rec)
	sendStartup(t, conn, "alice", "appdb")
	sendQuery(t, conn, "DROP DATABASE appdb")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msg, err := ReadMessage(conn)
	require.NoError(t, err)
	assert.Equal(t, byte(msgErrorResponse), msg.Type)
	assert.Contains(t, string(msg.Payload), "42501")

	// Connection is closed after the synthesized error.
	_, err = ReadMessage(conn)
	assert.Error(t, err)

	blocked := rec.waitFor(t, audit.EventDangerousOperationBlocked)
	assert.Equal(t, audit.RiskHigh, blocked.Risk)
	assert.Equal(t, "QUERY", blocked.Operation)
	assert.Equal(t, "DROP DATABASE", blocked.Target)
	assert.Equal(t, audit.ResultBlocked, blocked.Result)
	assert.Equal(t, "alice", blocked.User)
}

func TestSSLRequestRefusedInClear(t *testing.T) {
	backendAddr, stop := fakeBackend(t)
	defer stop()
	rec := &captureRecorder{}

	conn := startProxy(t, backendAddr, rec)

	// SSLRequest: len 8, code 80877103.
	sslReq := []byte{0, 0, 0, 8, 0x04, 0xd2, 0x16, 0x2f}
	_, err := conn.Write(sslReq)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	reply := make([]byte, 1)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	assert.Equal(t, byte('N'), reply[0])

	// Plain startup still works afterwards.
	sendStartup(t, conn, "alice", "appdb")
	sendQuery(t, conn, "SELECT 1")
	msg, err := ReadMessage(conn)
	require.NoError(t, err)
	assert.Equal(t, byte(msgReadyForQuery), msg.Type)
}

func TestBackendDownClosesClientWithError(t *testing.T) {
	// Grab a port that nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	rec := &captureRecorder{}
	conn := startProxy(t, deadAddr, rec)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	msg, err := ReadMessage(conn)
	require.NoError(t, err)
	assert.Equal(t, byte(msgErrorResponse), msg.Type)
	assert.Contains(t, string(msg.Payload), "08006")

	connErr := rec.waitFor(t, audit.EventConnectionError)
	assert.Equal(t, audit.RiskMedium, connErr.Risk)
}

func TestStartupParamsSurviveProxy(t *testing.T) {
	// The backend sees the startup message byte-identical to what the
	// client sent.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		pkt, err := ReadStartupPacket(conn)
		if err != nil {
			return
		}
		var buf bytes.Buffer
		_ = pkt.WriteTo(&buf)
		got <- buf.Bytes()
	}()

	rec := &captureRecorder{}
	conn := startProxy(t, ln.Addr().(*net.TCPAddr), rec)

	raw := buildStartup(t, map[string]string{"user": "bob", "database": "db2"})
	_, err = conn.Write(raw)
	require.NoError(t, err)

	select {
	case forwarded := <-got:
		assert.Equal(t, raw, forwarded)
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received startup")
	}
}
