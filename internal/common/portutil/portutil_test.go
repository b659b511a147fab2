package portutil

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestAllocatePort(t *testing.T) {
	port, err := AllocatePort()
	if err != nil {
		t.Fatalf("AllocatePort() failed: %v", err)
	}

	if port <= 0 || port > 65535 {
		t.Errorf("AllocatePort() returned invalid port: %d", port)
	}

	t.Logf("Allocated port: %d", port)
}

func TestAllocatePortUniqueness(t *testing.T) {
	// Allocate multiple ports and ensure they're different
	ports := make(map[int]bool)
	for i := 0; i < 10; i++ {
		port, err := AllocatePort()
		if err != nil {
			t.Fatalf("AllocatePort() failed on iteration %d: %v", i, err)
		}
		if ports[port] {
			t.Errorf("AllocatePort() returned duplicate port: %d", port)
		}
		ports[port] = true
	}
}

func TestCheckAvailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	if err := CheckAvailable("127.0.0.1", port); err == nil {
		t.Errorf("CheckAvailable(%d) succeeded while port is bound", port)
	}
	if !IsListening("127.0.0.1", port) {
		t.Errorf("IsListening(%d) = false while port is bound", port)
	}

	_ = ln.Close()

	if err := CheckAvailable("127.0.0.1", port); err != nil {
		t.Errorf("CheckAvailable(%d) after close: %v", port, err)
	}
}

func TestWaitUntilClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	t.Run("times out while listening", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		if err := WaitUntilClosed(ctx, "127.0.0.1", port); err == nil {
			t.Error("expected timeout error")
		}
	})

	t.Run("returns once closed", func(t *testing.T) {
		go func() {
			time.Sleep(100 * time.Millisecond)
			_ = ln.Close()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := WaitUntilClosed(ctx, "127.0.0.1", port); err != nil {
			t.Errorf("WaitUntilClosed: %v", err)
		}
	})
}
