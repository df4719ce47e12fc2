package redis

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/famgate/famgate/internal/logger"
	"github.com/famgate/famgate/pkg/audit"
	"github.com/famgate/famgate/pkg/proxy"
)

// Config configures the Redis proxy.
type Config struct {
	Listen  proxy.ListenConfig  `mapstructure:"listen"`
	Backend proxy.BackendConfig `mapstructure:"backend"`
}

// Proxy forwards traffic verbatim; the RESP scanner only lifts command
// names for the audit trail and never rewrites bytes.
type Proxy struct {
	*proxy.Base

	backend  proxy.BackendConfig
	recorder audit.Recorder
}

// New creates a Redis proxy.
func New(cfg Config, recorder audit.Recorder) *Proxy {
	return &Proxy{
		Base:     proxy.NewBase(cfg.Listen, "redis"),
		backend:  cfg.Backend,
		recorder: recorder,
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
	proxy    *Proxy
	client   net.Conn
	clientIP string
}

func (c *connection) Serve(ctx context.Context) {
	c.clientIP = remoteIP(c.client)
	opened := time.Now()

	defer func() { _ = c.client.Close() }()

	backend, err := net.DialTimeout("tcp", c.proxy.backend.Addr(), c.proxy.backend.DialTimeout())
	if err != nil {
		// Answer in RESP so redis clients surface a readable error.
		_, _ = c.client.Write([]byte("-ERR gateway: backend unavailable\r\n"))
		c.emit(&audit.Record{
			Event:  audit.EventConnectionError,
			Risk:   audit.RiskMedium,
			Result: audit.ResultError,
			Detail: err.Error(),
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
		Event:  audit.EventConnectionOpened,
		Risk:   audit.RiskLow,
		Result: audit.ResultOK,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- c.pumpCommands(backend) }()

	_, downErr := io.Copy(c.client, backend)

	_ = c.client.Close()
	_ = backend.Close()
	upErr := <-errCh

	if streamErr := firstStreamError(upErr, downErr); streamErr != nil {
		c.emit(&audit.Record{
			Event:  audit.EventConnectionError,
			Risk:   audit.RiskMedium,
			Result: audit.ResultError,
			Detail: streamErr.Error(),
		})
	}

	c.emit(&audit.Record{
		Event:    audit.EventConnectionClosed,
		Risk:     audit.RiskLow,
		Result:   audit.ResultOK,
		Duration: time.Since(opened),
	})
}

// pumpCommands forwards client bytes command by command, auditing each
// recognized command name. A stream the scanner cannot follow degrades to
// a plain copy for the rest of the session.
func (c *connection) pumpCommands(backend net.Conn) error {
	scanner := NewScanner(c.client)
	for {
		cmd, err := scanner.Next()
		if err != nil {
			if errors.Is(err, ErrUninspectable) {
				logger.Debug("redis stream degraded to plain copy",
					"client_ip", c.clientIP, "error", err)
				_, copyErr := io.Copy(backend, scanner.Buffered())
				return copyErr
			}
			return err
		}

		c.emit(&audit.Record{
			Event:     audit.EventOperation,
			Risk:      audit.RiskLow,
			Operation: cmd.Name,
			Target:    cmd.Arg,
			Result:    audit.ResultOK,
		})

		if _, err := backend.Write(cmd.Raw); err != nil {
			return err
		}
	}
}

func (c *connection) emit(rec *audit.Record) {
	rec.Protocol = "redis"
	rec.ClientIP = c.clientIP
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
