package email

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/carelinkhq/carelink/services/notification-service/internal/channel"
	"github.com/carelinkhq/carelink/services/notification-service/internal/dispatch"
)

// silentSMTPServer accepts connections and never sends the greeting,
// imitating a wedged relay.
func silentSMTPServer(t *testing.T) (host, port string) {
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
			defer conn.Close()
		}
	}()
	host, port, err = net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	return host, port
}

func testMessage() channel.Message {
	return channel.Message{
		Recipient: "pat@example.org",
		Subject:   "Appointment reminder",
		Content:   "See you at 9",
	}
}

func TestSendReturnsOnContextDeadline(t *testing.T) {
	host, port := silentSMTPServer(t)
	s := NewSender(host, port, "no-reply@example.org")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Send(ctx, testMessage()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Send succeeded against a server that never greeted")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after the context deadline")
	}
}

func TestSendReturnsOnCancel(t *testing.T) {
	host, port := silentSMTPServer(t)
	s := NewSender(host, port, "no-reply@example.org")

	// No deadline on the context: cancellation alone must unblock the read.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Send(ctx, testMessage()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Send succeeded against a server that never greeted")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after cancellation")
	}
}

func TestSendMultiReturnsWhileSMTPStalled(t *testing.T) {
	host, port := silentSMTPServer(t)

	reg := channel.NewRegistry()
	reg.Register(channel.Email, NewSender(host, port, "no-reply@example.org"))

	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	d := dispatch.New(reg, dispatch.RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Millisecond}, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	results := d.SendMulti(ctx, []string{channel.Email}, testMessage())
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("SendMulti took %v against a stalled server", elapsed)
	}
	if delivered, ok := results[channel.Email]; !ok || delivered {
		t.Fatalf("results = %v, want Email present and false", results)
	}
}
