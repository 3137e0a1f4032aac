package redisconn_test

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/hazz-dev/uptimebot/internal/redisconn"
)

func TestConnect_RequiresAddr(t *testing.T) {
	if _, err := redisconn.Connect(context.Background(), redisconn.Options{}, nil); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestConnect_GivesUpAfterTimeout(t *testing.T) {
	// Reserve a port, then free it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	start := time.Now()
	_, err = redisconn.Connect(context.Background(), redisconn.Options{
		Addr:           addr,
		ConnectTimeout: 300 * time.Millisecond,
		RetryInterval:  20 * time.Millisecond,
		MaxWait:        50 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
	}, nil)
	if err == nil {
		t.Fatal("expected error when nothing is listening")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Connect took %v, expected to stop near the timeout", elapsed)
	}
}

func TestConnect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := redisconn.Connect(ctx, redisconn.Options{
		Addr:          "127.0.0.1:1",
		RetryInterval: 10 * time.Millisecond,
	}, nil)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestConnect_RealServer(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := redisconn.Connect(context.Background(), redisconn.Options{Addr: addr}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	client.Close()
}
