// Package transport carries SNMP datagrams over UDP.
//
// A UDP transport owns one socket. Sessions send through it and receive
// every datagram arriving on it:
//
//	udp, err := transport.New(transport.ConfigFromOptions(opts))
//	if err != nil {
//		return err
//	}
//	session, err := snmp.NewSession("192.0.2.1", "public", udp, opts)
//	if err != nil {
//		return err
//	}
//	if err := udp.Start(ctx, session); err != nil {
//		return err
//	}
//	defer udp.Stop(context.Background())
//
// NewSession does the same in one call.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geekxflood/netsnmp/logging"
	"github.com/geekxflood/netsnmp/snmp"
)

// Handler receives inbound datagrams. *snmp.Session implements it. The
// payload is only valid for the duration of the call.
type Handler interface {
	HandleMessage(payload []byte, remote net.Addr)
}

// ErrNotStarted is reported by Send before Start or after Stop.
var ErrNotStarted = errors.New("transport not started")

// Stats are cumulative datagram counters.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	SendErrors      uint64
	ReceiveErrors   uint64
}

// Option configures a UDP transport.
type Option func(*UDP)

// WithLogger sets the transport logger.
func WithLogger(logger logging.Logger) Option {
	return func(u *UDP) { u.logger = logger }
}

// UDP is an snmp.Transport over a single UDP socket.
type UDP struct {
	config  Config
	logger  logging.Logger
	buffers *BufferPool

	mu     sync.RWMutex
	conn   *net.UDPConn
	pool   *WorkerPool
	cancel context.CancelFunc

	listenWG sync.WaitGroup
	sendWG   sync.WaitGroup

	sent       atomic.Uint64
	received   atomic.Uint64
	sendErrors atomic.Uint64
	recvErrors atomic.Uint64
}

// New returns a stopped transport.
func New(config Config, opts ...Option) (*UDP, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport configuration: %w", err)
	}
	u := &UDP{
		config:  config,
		buffers: NewBufferPool(8192),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = logging.NewComponentLogger("udp", "transport")
	}
	return u, nil
}

// Start binds the socket and delivers received datagrams to handler until
// Stop is called or ctx ends.
func (u *UDP) Start(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != nil {
		return errors.New("transport already started")
	}

	addr := net.JoinHostPort(u.config.BindAddress, strconv.Itoa(u.config.BindPort))
	udpAddr, err := net.ResolveUDPAddr(u.config.Network, addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", addr, err)
	}
	conn, err := net.ListenUDP(u.config.Network, udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address %s: %w", addr, err)
	}

	var pool *WorkerPool
	if u.config.WorkerPoolEnabled {
		pool, err = NewWorkerPool(u.config.WorkerPoolSize, handler, u.buffers)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to create worker pool: %w", err)
		}
		pool.Start()
	}

	listenCtx, cancel := context.WithCancel(ctx)
	u.conn = conn
	u.pool = pool
	u.cancel = cancel

	u.listenWG.Add(1)
	go u.listen(listenCtx, conn, handler, pool)

	u.logger.Info("transport started", "local_address", conn.LocalAddr().String(), "network", u.config.Network)
	return nil
}

// Stop closes the socket and waits for the receive loop, workers and
// in-flight sends, or for ctx to end. Sends still in flight complete with
// an error.
func (u *UDP) Stop(ctx context.Context) error {
	u.mu.Lock()
	conn, pool, cancel := u.conn, u.pool, u.cancel
	u.conn, u.pool, u.cancel = nil, nil, nil
	u.mu.Unlock()

	if conn == nil {
		return nil
	}
	cancel()
	if err := conn.Close(); err != nil && !isConnectionClosedError(err) {
		u.logger.Warn("failed to close socket", "error", err)
	}

	done := make(chan struct{})
	go func() {
		u.listenWG.Wait()
		if pool != nil {
			pool.Stop()
		}
		u.sendWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		u.logger.Info("transport stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LocalAddr returns the bound address, or nil when stopped.
func (u *UDP) LocalAddr() net.Addr {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Stats returns the counters.
func (u *UDP) Stats() Stats {
	return Stats{
		PacketsSent:     u.sent.Load(),
		PacketsReceived: u.received.Load(),
		SendErrors:      u.sendErrors.Load(),
		ReceiveErrors:   u.recvErrors.Load(),
	}
}

// Send implements snmp.Transport. Name resolution and the write happen on a
// separate goroutine; done runs there once the datagram is handed to the
// kernel or has failed.
func (u *UDP) Send(payload []byte, port int, host string, done func(int, error)) {
	u.mu.RLock()
	conn := u.conn
	if conn != nil {
		u.sendWG.Add(1)
	}
	u.mu.RUnlock()

	if conn == nil {
		go done(0, ErrNotStarted)
		return
	}

	go func() {
		defer u.sendWG.Done()
		n, err := u.write(conn, payload, port, host)
		if err != nil {
			u.sendErrors.Add(1)
			u.logger.Debug("send failed", "host", host, "port", port, "error", err)
		} else {
			u.sent.Add(1)
		}
		done(n, err)
	}()
}

func (u *UDP) write(conn *net.UDPConn, payload []byte, port int, host string) (int, error) {
	addr, err := net.ResolveUDPAddr(u.config.Network, net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	return conn.WriteToUDP(payload, addr)
}

// listen is the receive loop.
func (u *UDP) listen(ctx context.Context, conn *net.UDPConn, handler Handler, pool *WorkerPool) {
	defer u.listenWG.Done()

	buffer := make([]byte, u.config.BufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(u.config.ReadTimeout)); err != nil {
			if isConnectionClosedError(err) {
				return
			}
			u.logger.Debug("failed to set read deadline", "error", err)
		}

		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if isConnectionClosedError(err) {
				return
			}
			if isTimeoutError(err) {
				continue
			}
			u.recvErrors.Add(1)
			u.logger.Debug("failed to read datagram", "error", err)
			continue
		}
		u.received.Add(1)

		if pool == nil {
			handler.HandleMessage(buffer[:n], addr)
			continue
		}
		if err := pool.Submit(ctx, u.buffers.Copy(buffer[:n]), addr); err != nil {
			u.logger.Debug("dropped datagram", "remote", addr.String(), "error", err)
		}
	}
}

func isConnectionClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NewSession opens a UDP transport configured from opts and returns a
// session receiving on it. Stopping the transport is the caller's job; it
// does not close the session.
func NewSession(ctx context.Context, target, community string, opts snmp.Options, transportOpts ...Option) (*snmp.Session, *UDP, error) {
	udp, err := New(ConfigFromOptions(opts), transportOpts...)
	if err != nil {
		return nil, nil, err
	}
	session, err := snmp.NewSession(target, community, udp, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := udp.Start(ctx, session); err != nil {
		return nil, nil, err
	}
	return session, udp, nil
}
