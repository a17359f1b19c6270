package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// TCP connects to a serial-device server bridging the controller's RS-485
// bus onto the network.
type TCP struct {
	address     string
	dialTimeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// NewTCP returns an unopened TCP transport for the given host:port.
func NewTCP(address string) *TCP {
	return &TCP{
		address:     address,
		dialTimeout: 10 * time.Second,
	}
}

func (t *TCP) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return ErrAlreadyOpen
	}
	t.mu.Unlock()

	dialer := net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.address)
	if err != nil {
		return fmt.Errorf("transport: dialing %s: %w", t.address, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		// Frames are small and latency-sensitive.
		tc.SetNoDelay(true)
		tc.SetKeepAlive(true)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		conn.Close()
		return ErrAlreadyOpen
	}
	t.conn = conn
	t.closed = false
	return nil
}

func (t *TCP) Send(p []byte) error {
	conn, err := t.current()
	if err != nil {
		return err
	}
	if _, err := conn.Write(p); err != nil {
		if t.isClosed() {
			return ErrClosed
		}
		return fmt.Errorf("transport: tcp write: %w", err)
	}
	return nil
}

// Receive reads available bytes. A short read deadline keeps read loops
// responsive to shutdown; deadline expiry surfaces as (0, nil).
func (t *TCP) Receive(p []byte) (int, error) {
	conn, err := t.current()
	if err != nil {
		return 0, err
	}
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return 0, fmt.Errorf("transport: setting read deadline: %w", err)
	}
	n, err := conn.Read(p)
	if err != nil {
		if os.IsTimeout(err) {
			return n, nil
		}
		if t.isClosed() {
			return n, ErrClosed
		}
		return n, fmt.Errorf("transport: tcp read: %w", err)
	}
	return n, nil
}

func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	t.closed = true
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return fmt.Errorf("transport: closing %s: %w", t.address, err)
	}
	return nil
}

func (t *TCP) current() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		if t.closed {
			return nil, ErrClosed
		}
		return nil, ErrNotOpen
	}
	return t.conn, nil
}

func (t *TCP) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
