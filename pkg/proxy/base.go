// Package proxy provides shared TCP lifecycle management for the wire
// protocol proxies (postgres, mysql, mongo, redis). Each protocol package
// supplies a ConnectionFactory; Base owns the listener, connection
// tracking, limits and graceful shutdown.
package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/famgate/famgate/internal/logger"
)

// ConnectionHandler represents a protocol-specific paired connection. The
// Serve method blocks until the client disconnects or the context is
// cancelled.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory creates protocol-specific connection handlers for
// accepted TCP connections.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// ListenConfig holds configuration common to all protocol proxies.
type ListenConfig struct {
	// BindAddress is the IP address to bind to.
	// Empty string or "0.0.0.0" binds to all interfaces.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// MaxConnections limits the number of concurrent client connections.
	// 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections"`

	// ShutdownTimeout is the maximum duration to wait for active connections
	// to complete during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// BackendConfig locates the primary server a proxy forwards to.
type BackendConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ConnectTimeout bounds the backend dial. Default: 5s.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// Addr returns the host:port dial target.
func (c BackendConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// DialTimeout returns the configured connect timeout or the 5s default.
func (c BackendConfig) DialTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return 5 * time.Second
}

// Base provides the shared TCP accept loop for protocol proxies.
//
// All exported methods are safe for concurrent use. The shutdown mechanism
// uses sync.Once so Stop() is idempotent.
type Base struct {
	// Config holds the listen-side configuration.
	Config ListenConfig

	// protocolName is the human-readable protocol name for logging.
	protocolName string

	listener   net.Listener
	listenerMu sync.RWMutex

	// activeConns tracks in-flight connections for graceful shutdown.
	activeConns sync.WaitGroup

	shutdownOnce sync.Once

	// Shutdown signals that graceful shutdown has been initiated.
	Shutdown chan struct{}

	// ConnCount tracks the current number of active connections.
	ConnCount atomic.Int32

	// connSemaphore limits concurrency when MaxConnections > 0, nil otherwise.
	connSemaphore chan struct{}

	// ShutdownCtx is cancelled during shutdown to abort in-flight sessions.
	ShutdownCtx    context.Context
	CancelSessions context.CancelFunc

	// ActiveConnections maps remote address to net.Conn for forced closure.
	ActiveConnections sync.Map

	// ListenerReady is closed when the listener is accepting. Used by tests
	// to synchronize with startup.
	ListenerReady chan struct{}
}

// NewBase creates a Base in a stopped state. Call Serve() to start.
//
// Returns a pointer to avoid copying sync primitives.
func NewBase(config ListenConfig, protocol string) *Base {
	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	shutdownCtx, cancelSessions := context.WithCancel(context.Background())

	return &Base{
		Config:         config,
		protocolName:   protocol,
		Shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		ShutdownCtx:    shutdownCtx,
		CancelSessions: cancelSessions,
		ListenerReady:  make(chan struct{}),
	}
}

// Serve runs the accept loop, delegating to factory for protocol-specific
// session handling. It blocks until ctx is cancelled or the listener fails.
//
// Returns nil on graceful shutdown, an error if the listener cannot start
// or connections had to be force-closed.
func (b *Base) Serve(ctx context.Context, factory ConnectionFactory) error {
	listenAddr := fmt.Sprintf("%s:%d", b.Config.BindAddress, b.Config.Port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to create %s proxy listener on port %d: %w", b.protocolName, b.Config.Port, err)
	}

	b.listenerMu.Lock()
	b.listener = listener
	b.listenerMu.Unlock()
	close(b.ListenerReady)

	logger.Info(b.protocolName+" proxy listening", "port", b.Config.Port)

	go func() {
		<-ctx.Done()
		logger.Info(b.protocolName+" proxy shutdown signal received", "error", ctx.Err())
		b.initiateShutdown()
	}()

	for {
		if b.connSemaphore != nil {
			select {
			case b.connSemaphore <- struct{}{}:
			case <-b.Shutdown:
				return b.gracefulShutdown()
			}
		}

		tcpConn, err := b.listener.Accept()
		if err != nil {
			if b.connSemaphore != nil {
				<-b.connSemaphore
			}

			select {
			case <-b.Shutdown:
				// Expected error during shutdown (listener was closed)
				return b.gracefulShutdown()
			default:
				logger.Debug("Error accepting "+b.protocolName+" connection", "error", err)
				continue
			}
		}

		// Interactive wire protocols want small packets out immediately.
		if tcp, ok := tcpConn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("Failed to set TCP_NODELAY", "error", err)
			}
		}

		b.activeConns.Add(1)
		b.ConnCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		b.ActiveConnections.Store(connAddr, tcpConn)

		logger.Debug(b.protocolName+" connection accepted",
			"address", connAddr, "active", b.ConnCount.Load())

		handler := factory.NewConnection(tcpConn)

		go func(addr string) {
			defer func() {
				b.ActiveConnections.Delete(addr)
				b.activeConns.Done()
				b.ConnCount.Add(-1)
				if b.connSemaphore != nil {
					<-b.connSemaphore
				}
				logger.Debug(b.protocolName+" connection closed",
					"address", addr, "active", b.ConnCount.Load())
			}()

			handler.Serve(b.ShutdownCtx)
		}(connAddr)
	}
}

// initiateShutdown signals the accept loop to stop, closes the listener,
// interrupts blocking reads and cancels in-flight sessions. Safe to call
// multiple times.
func (b *Base) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		logger.Debug(b.protocolName + " proxy shutdown initiated")

		close(b.Shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				logger.Debug("Error closing "+b.protocolName+" listener", "error", err)
			}
		}
		b.listenerMu.Unlock()

		b.interruptBlockingReads()
		b.CancelSessions()
	})
}

// interruptBlockingReads sets a short deadline on all active connections to
// unblock pending reads during shutdown.
func (b *Base) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)

	b.ActiveConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetReadDeadline(deadline); err != nil {
				logger.Debug("Error setting shutdown deadline on connection",
					"address", key, "error", err)
			}
		}
		return true
	})
}

// gracefulShutdown waits for active connections to complete or timeout,
// force-closing stragglers.
func (b *Base) gracefulShutdown() error {
	activeCount := b.ConnCount.Load()
	logger.Info(b.protocolName+" proxy graceful shutdown: waiting for active connections",
		"active", activeCount, "timeout", b.Config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info(b.protocolName + " proxy graceful shutdown complete")
		return nil

	case <-time.After(b.Config.ShutdownTimeout):
		remaining := b.ConnCount.Load()
		logger.Warn(b.protocolName+" proxy shutdown timeout exceeded - forcing closure",
			"active", remaining, "timeout", b.Config.ShutdownTimeout)

		b.forceCloseConnections()

		return fmt.Errorf("%s proxy shutdown timeout: %d connections force-closed", b.protocolName, remaining)
	}
}

// forceCloseConnections closes all active TCP connections.
func (b *Base) forceCloseConnections() {
	b.ActiveConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection", "address", addr, "error", err)
		} else {
			logger.Debug("Force-closed connection", "address", addr)
		}

		return true
	})
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Serve(). A nil ctx falls back to the configured
// shutdown timeout.
func (b *Base) Stop(ctx context.Context) error {
	b.initiateShutdown()

	if ctx == nil {
		return b.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info(b.protocolName + " proxy graceful shutdown complete")
		return nil
	case <-ctx.Done():
		remaining := b.ConnCount.Load()
		logger.Warn(b.protocolName+" proxy shutdown context cancelled",
			"active", remaining, "error", ctx.Err())
		return ctx.Err()
	}
}

// GetActiveConnections returns the current number of active connections.
func (b *Base) GetActiveConnections() int32 {
	return b.ConnCount.Load()
}

// GetListenerAddr returns the address the proxy is listening on. It blocks
// until the listener is ready, making it safe for tests.
func (b *Base) GetListenerAddr() string {
	<-b.ListenerReady

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()

	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Protocol returns the human-readable protocol name.
func (b *Base) Protocol() string {
	return b.protocolName
}
