// Package passthrough implements the bit-exact TCP proxy used for the
// MySQL and MongoDB surfaces: no protocol inspection, two copy loops per
// paired connection, connection-level audit only.
package passthrough

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/famgate/famgate/pkg/audit"
	"github.com/famgate/famgate/pkg/proxy"
)

// Config configures a passthrough proxy instance.
type Config struct {
	Listen  proxy.ListenConfig  `mapstructure:"listen"`
	Backend proxy.BackendConfig `mapstructure:"backend"`
}

// Proxy forwards traffic verbatim between each client and a fresh backend
// connection.
type Proxy struct {
	*proxy.Base

	backend  proxy.BackendConfig
	recorder audit.Recorder
	protocol string
}

// New creates a passthrough proxy for the named protocol ("mysql", "mongo").
func New(protocol string, cfg Config, recorder audit.Recorder) *Proxy {
	return &Proxy{
		Base:     proxy.NewBase(cfg.Listen, protocol),
		backend:  cfg.Backend,
		recorder: recorder,
		protocol: protocol,
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

type connection struct {
	proxy  *Proxy
	client net.Conn
}

func (c *connection) Serve(ctx context.Context) {
	clientIP := remoteIP(c.client)
	opened := time.Now()

	defer func() { _ = c.client.Close() }()

	backend, err := net.DialTimeout("tcp", c.proxy.backend.Addr(), c.proxy.backend.DialTimeout())
	if err != nil {
		// No protocol-native error synthesis without inspection; a plain
		// close tells the client the backend is unreachable.
		c.emit(&audit.Record{
			Event:    audit.EventConnectionError,
			Risk:     audit.RiskMedium,
			ClientIP: clientIP,
			Result:   audit.ResultError,
			Detail:   err.Error(),
		})
		return
	}
	defer func() { _ = backend.Close() }()

	stop := context.AfterFunc(ctx, func() {
		_ = c.client.Close()
		_ = backend.Close()
	})
	defer stop()

	c.emit(&audit.Record{
		Event:    audit.EventConnectionOpened,
		Risk:     audit.RiskLow,
		ClientIP: clientIP,
		Result:   audit.ResultOK,
	})

	var sent, received atomic.Int64

	errCh := make(chan error, 1)
	go func() {
		n, err := io.Copy(backend, c.client)
		sent.Store(n)
		// Half-close towards the backend once the client is done sending.
		if tcp, ok := backend.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		}
		errCh <- err
	}()

	n, downErr := io.Copy(c.client, backend)
	received.Store(n)

	_ = c.client.Close()
	_ = backend.Close()
	upErr := <-errCh

	if streamErr := firstStreamError(upErr, downErr); streamErr != nil {
		c.emit(&audit.Record{
			Event:    audit.EventConnectionError,
			Risk:     audit.RiskMedium,
			ClientIP: clientIP,
			Result:   audit.ResultError,
			Detail:   streamErr.Error(),
		})
	}

	c.emit(&audit.Record{
		Event:    audit.EventConnectionClosed,
		Risk:     audit.RiskLow,
		ClientIP: clientIP,
		Result:   audit.ResultOK,
		Duration: time.Since(opened),
		Detail: "sent=" + strconv.FormatInt(sent.Load(), 10) +
			" received=" + strconv.FormatInt(received.Load(), 10),
	})
}

func (c *connection) emit(rec *audit.Record) {
	rec.Protocol = c.proxy.protocol
	c.proxy.recorder.Emit(rec)
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func isClosedErr(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

func firstStreamError(upErr, downErr error) error {
	if !isClosedErr(upErr) {
		return upErr
	}
	if !isClosedErr(downErr) {
		return downErr
	}
	return nil
}
