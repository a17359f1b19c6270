package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecosync/core/internal/infrastructure/config"
)

var (
	ErrNotOpen     = errors.New("transport: not open")
	ErrAlreadyOpen = errors.New("transport: already open")
	ErrClosed      = errors.New("transport: closed")
)

// readTimeout bounds a single Receive call so read loops can notice
// shutdown without a byte arriving.
const readTimeout = 250 * time.Millisecond

// Transport is a byte-stream connection to the controller.
//
// Implementations are safe for one concurrent reader and one concurrent
// writer; Close may be called from any goroutine to unblock both.
type Transport interface {
	// Open establishes the connection. The context bounds connection
	// setup only, not the lifetime of the transport.
	Open(ctx context.Context) error

	// Send writes the whole buffer.
	Send(p []byte) error

	// Receive reads available bytes into p. It returns (0, nil) when the
	// read timeout elapses with no data.
	Receive(p []byte) (int, error)

	// Close tears down the connection. Blocked Send and Receive calls
	// return after Close.
	Close() error
}

// New builds the transport selected by the connection configuration.
func New(cfg config.ConnectionConfig) (Transport, error) {
	switch cfg.Type {
	case config.ConnectionSerial:
		return NewSerial(cfg.Device, cfg.Baudrate), nil
	case config.ConnectionTCP:
		return NewTCP(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)), nil
	default:
		return nil, fmt.Errorf("transport: unknown connection type %q", cfg.Type)
	}
}

// Reader adapts a Transport to io.Reader for the frame scanner. Timed-out
// receives surface as (0, nil), which the scanner tolerates.
type Reader struct {
	T Transport
}

func (r Reader) Read(p []byte) (int, error) {
	return r.T.Receive(p)
}
