package transport

import (
	"context"
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// Serial connects directly to an RS-485 adapter on a local serial port.
type Serial struct {
	device   string
	baudrate int

	mu     sync.Mutex
	port   serial.Port
	closed bool
}

// NewSerial returns an unopened serial transport for the given device
// path and baud rate.
func NewSerial(device string, baudrate int) *Serial {
	return &Serial{device: device, baudrate: baudrate}
}

// Open opens the serial port. The ecoMAX service bus runs 8N1 at the
// configured rate. The context is unused; opening a local device does not
// block on remote peers.
func (s *Serial) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return ErrAlreadyOpen
	}

	port, err := serial.Open(s.device, &serial.Mode{
		BaudRate: s.baudrate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("transport: opening %s: %w", s.device, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("transport: setting read timeout on %s: %w", s.device, err)
	}

	s.port = port
	s.closed = false
	return nil
}

func (s *Serial) Send(p []byte) error {
	port, err := s.current()
	if err != nil {
		return err
	}
	for len(p) > 0 {
		n, err := port.Write(p)
		if err != nil {
			return fmt.Errorf("transport: serial write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// Receive reads available bytes. The port's read timeout makes a silent
// bus return (0, nil) rather than blocking forever.
func (s *Serial) Receive(p []byte) (int, error) {
	port, err := s.current()
	if err != nil {
		return 0, err
	}
	n, err := port.Read(p)
	if err != nil {
		if s.isClosed() {
			return n, ErrClosed
		}
		return n, fmt.Errorf("transport: serial read: %w", err)
	}
	return n, nil
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	s.closed = true
	err := s.port.Close()
	s.port = nil
	if err != nil {
		return fmt.Errorf("transport: closing %s: %w", s.device, err)
	}
	return nil
}

func (s *Serial) current() (serial.Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		if s.closed {
			return nil, ErrClosed
		}
		return nil, ErrNotOpen
	}
	return s.port, nil
}

func (s *Serial) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
