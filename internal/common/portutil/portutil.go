// Package portutil provides helpers for local TCP port bookkeeping.
package portutil

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// AllocatePort allocates an available port using OS assignment.
// The port is released before returning, so a caller racing with other
// processes may still lose it.
func AllocatePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate port: %w", err)
	}
	defer func() {
		_ = listener.Close()
	}()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.Port, nil
}

// CheckAvailable verifies nothing is bound to host:port.
func CheckAvailable(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}

// IsListening reports whether something accepts TCP connections on host:port.
func IsListening(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// WaitUntilClosed polls host:port until nothing accepts connections or ctx ends.
func WaitUntilClosed(ctx context.Context, host string, port int) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for IsListening(host, port) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("port %d still listening: %w", port, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}
