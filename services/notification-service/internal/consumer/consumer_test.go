package consumer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeDedup struct {
	seen map[string]bool
	err  error
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: map[string]bool{}}
}

func (d *fakeDedup) Record(_ context.Context, messageID string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen[messageID] {
		return false, nil
	}
	d.seen[messageID] = true
	return true, nil
}

func testConsumer(t *testing.T, dedup Dedup, handler Handler) *Consumer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	c := New(logger, dedup, Config{
		Brokers: "localhost:9092",
		GroupID: "notification-service",
		Topic:   "notification.requested",
	}, handler)
	t.Cleanup(func() { c.reader.Close() })
	return c
}

func requestMessage(id string) kafka.Message {
	return kafka.Message{
		Topic: "notification.requested",
		Value: []byte(`{}`),
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(id)},
			{Key: "routing_key", Value: []byte("notification.requested")},
		},
	}
}

func TestProcessInvokesHandlerOnce(t *testing.T) {
	calls := 0
	c := testConsumer(t, newFakeDedup(), func(ctx context.Context, msg kafka.Message) error {
		calls++
		return nil
	})

	c.process(context.Background(), requestMessage("msg-1"))
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
}

func TestProcessDropsRedeliveredMessage(t *testing.T) {
	calls := 0
	c := testConsumer(t, newFakeDedup(), func(ctx context.Context, msg kafka.Message) error {
		calls++
		return nil
	})

	msg := requestMessage("msg-dup")
	c.process(context.Background(), msg)
	c.process(context.Background(), msg)
	if calls != 1 {
		t.Fatalf("handler calls after redelivery = %d, want 1", calls)
	}
}

func TestProcessDistinctMessageIDsBothHandled(t *testing.T) {
	var ids []string
	c := testConsumer(t, newFakeDedup(), func(ctx context.Context, msg kafka.Message) error {
		for _, h := range msg.Headers {
			if h.Key == "message_id" {
				ids = append(ids, string(h.Value))
			}
		}
		return nil
	})

	c.process(context.Background(), requestMessage("msg-a"))
	c.process(context.Background(), requestMessage("msg-b"))
	if len(ids) != 2 || ids[0] != "msg-a" || ids[1] != "msg-b" {
		t.Fatalf("handled ids = %v, want [msg-a msg-b]", ids)
	}
}

func TestProcessInboxErrorSkipsHandler(t *testing.T) {
	calls := 0
	dedup := newFakeDedup()
	dedup.err = errors.New("redis down")
	c := testConsumer(t, dedup, func(ctx context.Context, msg kafka.Message) error {
		calls++
		return nil
	})

	c.process(context.Background(), requestMessage("msg-err"))
	if calls != 0 {
		t.Fatalf("handler calls = %d, want 0 when inbox fails", calls)
	}
}

func TestProcessIDLessMessagesAllHandled(t *testing.T) {
	calls := 0
	dedup := newFakeDedup()
	c := testConsumer(t, dedup, func(ctx context.Context, msg kafka.Message) error {
		calls++
		return nil
	})

	// Neither a message_id header nor a key: dedup cannot distinguish these,
	// so both must reach the handler instead of colliding on one inbox entry.
	noID := kafka.Message{Topic: "notification.requested", Value: []byte(`{}`)}
	c.process(context.Background(), noID)
	c.process(context.Background(), noID)
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2 for id-less messages", calls)
	}
	if len(dedup.seen) != 0 {
		t.Fatalf("inbox recorded %d entries for id-less messages, want 0", len(dedup.seen))
	}
}

func TestPauseReturnsEarlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if pause(ctx, 5*time.Second) {
		t.Fatal("pause reported the backoff elapsed on a cancelled context")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("pause took %v on a cancelled context", elapsed)
	}
}

func TestPauseElapsesWhenNotCancelled(t *testing.T) {
	if !pause(context.Background(), time.Millisecond) {
		t.Fatal("pause reported cancellation without one")
	}
}

func TestProcessHandlerErrorDoesNotPanic(t *testing.T) {
	c := testConsumer(t, newFakeDedup(), func(ctx context.Context, msg kafka.Message) error {
		return errors.New("dispatch failed")
	})

	c.process(context.Background(), requestMessage("msg-bad"))
}
