package postgres

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/famgate/famgate/internal/logger"
	"github.com/famgate/famgate/pkg/audit"
	"github.com/famgate/famgate/pkg/proxy"
)

// Config configures the Postgres proxy.
type Config struct {
	Listen  proxy.ListenConfig  `mapstructure:"listen"`
	Backend proxy.BackendConfig `mapstructure:"backend"`

	// DenyPatterns overrides DefaultDenyPatterns when non-empty.
	DenyPatterns []string `mapstructure:"deny_patterns"`
}

// Proxy pairs each client connection with a fresh backend connection and
// interposes the SQL inspector on the client-to-backend stream.
type Proxy struct {
	*proxy.Base

	backend   proxy.BackendConfig
	inspector *Inspector
	recorder  audit.Recorder
}

// New creates a Postgres proxy. recorder must not be nil; pass
// audit.NopRecorder to disable the trail.
func New(cfg Config, recorder audit.Recorder) *Proxy {
	return &Proxy{
		Base:      proxy.NewBase(cfg.Listen, "postgres"),
		backend:   cfg.Backend,
		inspector: NewInspector(cfg.DenyPatterns),
		recorder:  recorder,
	}
}

// Serve runs the accept loop until ctx is cancelled.
func (p *Proxy) Serve(ctx context.Context) error {
	return p.Base.Serve(ctx, p)
}

// NewConnection implements proxy.ConnectionFactory.
func (p *Proxy) NewConnection(conn net.Conn) proxy.ConnectionHandler {
	return &connection{proxy: p, client: conn}
}

// connection is one paired client/backend session. Per-connection state is
// written by the client-side loop and read by the backend-side loop, guarded
// by mu where shared.
type connection struct {
	proxy   *Proxy
	client  net.Conn
	backend net.Conn

	clientIP string
	user     string
	database string

	mu            sync.Mutex
	inTransaction bool
	pending       *audit.Record
	opStart       time.Time
}

func (c *connection) Serve(ctx context.Context) {
	c.clientIP = remoteIP(c.client)
	opened := time.Now()

	defer func() { _ = c.client.Close() }()

	backend, err := net.DialTimeout("tcp", c.proxy.backend.Addr(), c.proxy.backend.DialTimeout())
	if err != nil {
		// Backend down at open time: protocol error to the client, then close.
		_, _ = c.client.Write(ErrorResponse(sqlstateConnFail, "backend unavailable"))
		c.audit(&audit.Record{
			Event:  audit.EventConnectionError,
			Risk:   audit.RiskMedium,
			Result: audit.ResultError,
			Detail: err.Error(),
		})
		return
	}
	c.backend = backend
	defer func() { _ = c.backend.Close() }()

	// Tear both sockets down if shutdown lands mid-session.
	stop := context.AfterFunc(ctx, func() {
		_ = c.client.Close()
		_ = backend.Close()
	})
	defer stop()

	if err := c.handleStartup(); err != nil {
		if !isClosedErr(err) {
			c.audit(&audit.Record{
				Event:  audit.EventConnectionError,
				Risk:   audit.RiskMedium,
				Result: audit.ResultError,
				Detail: "startup failed: " + err.Error(),
			})
		}
		return
	}

	c.audit(&audit.Record{
		Event:  audit.EventConnectionOpened,
		Risk:   audit.RiskLow,
		Result: audit.ResultOK,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- c.backendToClient() }()

	clientErr := c.clientToBackend()

	// Closing both ends unblocks whichever loop is still reading.
	_ = c.client.Close()
	_ = c.backend.Close()
	backendErr := <-errCh

	if streamErr := firstStreamError(clientErr, backendErr); streamErr != nil {
		c.audit(&audit.Record{
			Event:  audit.EventConnectionError,
			Risk:   audit.RiskMedium,
			Result: audit.ResultError,
			Detail: streamErr.Error(),
		})
	}

	c.audit(&audit.Record{
		Event:    audit.EventConnectionClosed,
		Risk:     audit.RiskLow,
		Result:   audit.ResultOK,
		Duration: time.Since(opened),
	})
}

// handleStartup drives the untyped pre-auth phase: refuse TLS with 'N' so
// the client retries in clear, forward cancel requests verbatim, and
// extract user/database from the v3 startup message before passing it on.
func (c *connection) handleStartup() error {
	for {
		pkt, err := ReadStartupPacket(c.client)
		if err != nil {
			return err
		}

		switch {
		case pkt.IsSSLRequest():
			// No TLS termination at the proxy.
			if _, err := c.client.Write([]byte{'N'}); err != nil {
				return err
			}

		case pkt.IsCancelRequest():
			return pkt.WriteTo(c.backend)

		default:
			params := pkt.Parameters()
			c.user = params["user"]
			c.database = params["database"]
			return pkt.WriteTo(c.backend)
		}
	}
}

// clientToBackend reads typed frames from the client, inspects recognized
// operations and forwards everything that is not denied.
func (c *connection) clientToBackend() error {
	for {
		msg, err := ReadMessage(c.client)
		if err != nil {
			return err
		}

		if kind, ok := operationKind(msg.Type); ok {
			if msg.Type == msgQuery {
				sql := QueryText(msg.Payload)
				if pattern, denied := c.proxy.inspector.Match(sql); denied {
					c.block(kind, pattern, sql)
					return nil
				}
				c.beginOperation(kind, sql)
			} else {
				c.beginOperation(kind, "")
			}

			if msg.Type == msgTerminate {
				c.completeOperation(audit.ResultOK)
			}
		}

		if err := msg.WriteTo(c.backend); err != nil {
			return err
		}
	}
}

// backendToClient forwards backend frames and watches ReadyForQuery to
// finish the in-flight operation record and track transaction state.
func (c *connection) backendToClient() error {
	for {
		msg, err := ReadMessage(c.backend)
		if err != nil {
			return err
		}

		if msg.Type == msgReadyForQuery && len(msg.Payload) > 0 {
			c.mu.Lock()
			c.inTransaction = msg.Payload[0] == 'T'
			c.mu.Unlock()
			c.completeOperation(audit.ResultOK)
		}

		if err := msg.WriteTo(c.client); err != nil {
			return err
		}
	}
}

// block refuses a denied statement: synthesized error to the client, audit
// at HIGH, no forwarding; the caller closes the connection.
func (c *connection) block(kind, pattern, sql string) {
	logger.Warn("blocked dangerous statement",
		"client_ip", c.clientIP,
		"user", c.user,
		"database", c.database,
		"pattern", pattern,
	)

	if _, err := c.client.Write(ErrorResponse(sqlstateDenied,
		"statement blocked by gateway policy: "+pattern)); err != nil {
		logger.Debug("failed writing deny response", "error", err)
	}

	c.audit(&audit.Record{
		Event:     audit.EventDangerousOperationBlocked,
		Risk:      audit.RiskHigh,
		Operation: kind,
		Target:    pattern,
		Statement: sql,
		Result:    audit.ResultBlocked,
	})
}

// beginOperation opens the audit record for a recognized client message.
// An operation already in flight (extended-protocol pipelining) is emitted
// as-is before the new one starts.
func (c *connection) beginOperation(kind, sql string) {
	c.mu.Lock()
	prev := c.pending
	prevStart := c.opStart
	c.pending = &audit.Record{
		Event:     audit.EventOperation,
		Risk:      audit.RiskLow,
		Operation: kind,
		Statement: sql,
	}
	c.opStart = time.Now()
	c.mu.Unlock()

	if prev != nil {
		prev.Duration = time.Since(prevStart)
		prev.Result = audit.ResultOK
		c.audit(prev)
	}
}

// completeOperation emits the in-flight record with its duration.
func (c *connection) completeOperation(result audit.Result) {
	c.mu.Lock()
	rec := c.pending
	start := c.opStart
	c.pending = nil
	c.mu.Unlock()

	if rec == nil {
		return
	}
	rec.Duration = time.Since(start)
	rec.Result = result
	c.audit(rec)
}

// audit stamps the connection identity onto the record and emits it.
func (c *connection) audit(rec *audit.Record) {
	rec.Protocol = "postgres"
	rec.ClientIP = c.clientIP
	rec.User = c.user
	rec.Database = c.database
	c.proxy.recorder.Emit(rec)
}

// remoteIP strips the port from a connection's remote address.
func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

// isClosedErr reports whether err is the expected end of a connection.
func isClosedErr(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

// firstStreamError picks the error worth auditing from the two pump loops,
// ignoring the expected close cascade.
func firstStreamError(clientErr, backendErr error) error {
	if !isClosedErr(clientErr) {
		return clientErr
	}
	if !isClosedErr(backendErr) {
		return backendErr
	}
	return nil
}
