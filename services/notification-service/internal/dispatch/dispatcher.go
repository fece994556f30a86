package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/carelinkhq/carelink/services/notification-service/internal/channel"
	"github.com/carelinkhq/carelink/services/notification-service/internal/storage"
)

// RetryPolicy is process-wide dispatch configuration, loaded once at startup.
type RetryPolicy struct {
	// MaxAttempts is the total number of send attempts per channel, >= 1.
	MaxAttempts int
	// Delay is the wait between consecutive attempts on the same channel.
	Delay time.Duration
}

// RecordStore persists the outcome of a dispatch. The dispatcher only writes;
// it never reads records to make dispatch decisions.
type RecordStore interface {
	Insert(ctx context.Context, rec storage.Record) (storage.Record, error)
}

// Dispatcher orchestrates single- and multi-channel delivery. Transport and
// availability failures surface as boolean outcomes: partial notification
// failure is a normal operating condition, not an error.
type Dispatcher struct {
	registry *channel.Registry
	policy   RetryPolicy
	records  RecordStore // nil disables outcome persistence
	logger   *slog.Logger

	// delay waits between attempts and returns early when ctx is done.
	// Tests substitute it to run retries without real time.
	delay func(ctx context.Context, d time.Duration) error
}

func New(registry *channel.Registry, policy RetryPolicy, records RecordStore, logger *slog.Logger) *Dispatcher {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Dispatcher{
		registry: registry,
		policy:   policy,
		records:  records,
		logger:   logger,
		delay:    sleepDelay,
	}
}

// SendSingle delivers one message over one channel, retrying per policy.
// An unregistered, disabled or unavailable channel is a false outcome with
// no transport attempt.
func (d *Dispatcher) SendSingle(ctx context.Context, channelType string, msg channel.Message) bool {
	ok, reason := d.deliver(ctx, channelType, msg)
	d.record(ctx, channelType, msg, ok, reason)
	return ok
}

// SendMulti fans one message out to every requested channel concurrently.
// Each channel runs its own retry sequence in isolation, so one channel's
// timing never delays another's. The result always holds exactly one entry
// per requested type (duplicates dispatch once) and the call returns only
// once every channel has a terminal outcome; on cancellation, channels that
// never resolved report false.
func (d *Dispatcher) SendMulti(ctx context.Context, channelTypes []string, msg channel.Message) map[string]bool {
	seen := make(map[string]struct{}, len(channelTypes))
	unique := make([]string, 0, len(channelTypes))
	for _, t := range channelTypes {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}

	results := make(map[string]bool, len(unique))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, t := range unique {
		wg.Add(1)
		go func(channelType string) {
			defer wg.Done()
			ok, reason := d.deliver(ctx, channelType, msg)
			d.record(ctx, channelType, msg, ok, reason)
			mu.Lock()
			results[channelType] = ok
			mu.Unlock()
		}(t)
	}
	wg.Wait()
	return results
}

// deliver runs one channel's attempt sequence to a terminal outcome and
// returns the outcome with a failure reason for the record log.
func (d *Dispatcher) deliver(ctx context.Context, channelType string, msg channel.Message) (bool, string) {
	if err := msg.Validate(); err != nil {
		d.logger.Error("rejected invalid notification", "channel", channelType, "err", err)
		return false, err.Error()
	}

	sender := d.registry.Resolve(channelType)
	if sender == nil {
		return false, "channel not registered or disabled"
	}
	if !sender.Available() {
		return false, "channel unavailable"
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, "cancelled before attempt"
		}

		err := sender.Send(ctx, msg)
		if err == nil {
			return true, ""
		}
		lastErr = err
		d.logger.Warn("send attempt failed",
			"channel", channelType,
			"recipient", msg.Recipient,
			"attempt", attempt,
			"err", err,
		)

		if attempt >= d.policy.MaxAttempts {
			return false, lastErr.Error()
		}
		if err := d.delay(ctx, d.policy.Delay); err != nil {
			return false, lastErr.Error()
		}
	}
}

func (d *Dispatcher) record(ctx context.Context, channelType string, msg channel.Message, ok bool, reason string) {
	if d.records == nil {
		return
	}
	// Outcomes are recorded even when the dispatch context was cancelled.
	ctx = context.WithoutCancel(ctx)
	status := "sent"
	if !ok {
		status = "failed"
	}
	_, err := d.records.Insert(ctx, storage.Record{
		AppointmentID: msg.AppointmentID(),
		Message:       msg.Content,
		Channel:       channelType,
		Recipient:     msg.Recipient,
		Status:        status,
		FailureReason: reason,
	})
	if err != nil {
		d.logger.Error("failed to persist notification record",
			"channel", channelType,
			"recipient", msg.Recipient,
			"err", err,
		)
	}
}

func sleepDelay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
