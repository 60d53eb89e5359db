package control

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestSSH_GetInstanceName(t *testing.T) {
	ssh := &SSH{
		host:         "test-host",
		user:         "root",
		instanceName: "test-1",
	}

	if got := ssh.GetInstanceName(); got != "test-1" {
		t.Errorf("Expected instance name 'test-1', got '%s'", got)
	}
}

func TestSSH_CloseWithoutConnection(t *testing.T) {
	ssh := &SSH{}
	if err := ssh.Close(); err != nil {
		t.Errorf("Close() on unconnected SSH returned %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{Host: "198.51.100.7"}.withDefaults()
	if c.Port != 22 || c.User != "root" {
		t.Errorf("unexpected defaults: port=%d user=%q", c.Port, c.User)
	}
	if c.Timeout != 5*time.Minute || c.SSHTimeout != 30*time.Second {
		t.Errorf("unexpected timeouts: %v %v", c.Timeout, c.SSHTimeout)
	}
}

func TestWaitForPortSucceeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := waitForPort(ctx, ln.Addr().String(), 10*time.Millisecond); err != nil {
		t.Errorf("waitForPort() error = %v", err)
	}
}

func TestWaitForPortHonoursContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = waitForPort(ctx, addr, 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waitForPort() error = %v, want deadline exceeded", err)
	}
}
