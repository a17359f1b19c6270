package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ecosync/core/internal/infrastructure/config"
)

func testConnConfig(typ string) config.ConnectionConfig {
	return config.ConnectionConfig{
		Type:     typ,
		Device:   "/dev/ttyUSB0",
		Baudrate: 115200,
		Host:     "localhost",
		Port:     8899,
	}
}

// startEchoServer listens on a loopback port and echoes everything it
// receives back to the client.
func startEchoServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 256)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if _, err := c.Write(buf[:n]); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String()
}

func TestTCP_SendReceive(t *testing.T) {
	tr := NewTCP(startEchoServer(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tr.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer tr.Close()

	msg := []byte{0x68, 0x0A, 0x00, 0x45, 0x56}
	if err := tr.Send(msg); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	got := make([]byte, 0, len(msg))
	buf := make([]byte, 64)
	deadline := time.Now().Add(3 * time.Second)
	for len(got) < len(msg) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for echo, got %d of %d bytes", len(got), len(msg))
		}
		n, err := tr.Receive(buf)
		if err != nil {
			t.Fatalf("Receive() error: %v", err)
		}
		got = append(got, buf[:n]...)
	}

	if !bytes.Equal(got, msg) {
		t.Errorf("echoed %x, want %x", got, msg)
	}
}

func TestTCP_ReceiveTimeoutReturnsZero(t *testing.T) {
	tr := NewTCP(startEchoServer(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tr.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer tr.Close()

	n, err := tr.Receive(make([]byte, 16))
	if err != nil {
		t.Fatalf("Receive() on idle connection: %v", err)
	}
	if n != 0 {
		t.Errorf("Receive() on idle connection = %d bytes, want 0", n)
	}
}

func TestTCP_LifecycleErrors(t *testing.T) {
	tr := NewTCP(startEchoServer(t))

	if err := tr.Send([]byte{1}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send() before open = %v, want ErrNotOpen", err)
	}
	if _, err := tr.Receive(make([]byte, 1)); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Receive() before open = %v, want ErrNotOpen", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := tr.Open(ctx); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open() = %v, want ErrAlreadyOpen", err)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
	if err := tr.Send([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after close = %v, want ErrClosed", err)
	}
}

func TestTCP_OpenUnreachable(t *testing.T) {
	// Reserved TEST-NET-1 address, nothing listens there.
	tr := NewTCP("192.0.2.1:9999")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := tr.Open(ctx); err == nil {
		tr.Close()
		t.Fatal("Open() to unreachable address succeeded")
	}
}

func TestNew_SelectsTransport(t *testing.T) {
	tests := []struct {
		name    string
		cfgType string
		wantErr bool
	}{
		{name: "serial", cfgType: "serial"},
		{name: "tcp", cfgType: "tcp"},
		{name: "unknown", cfgType: "carrier_pigeon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConnConfig(tt.cfgType)
			tr, err := New(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			if tr == nil {
				t.Fatal("New() returned nil transport")
			}
		})
	}
}
