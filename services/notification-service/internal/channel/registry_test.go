package channel

import (
	"context"
	"testing"
)

type stubSender struct {
	available bool
}

func (s *stubSender) Send(context.Context, Message) error { return nil }
func (s *stubSender) Available() bool                     { return s.available }

func TestRegistry_ResolveIsCaseSensitive(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Email, &stubSender{available: true})

	if reg.Resolve(Email) == nil {
		t.Fatal("registered channel must resolve")
	}
	if reg.Resolve("email") != nil {
		t.Fatal("channel keys are case-sensitive")
	}
}

func TestRegistry_DisabledChannelDoesNotResolve(t *testing.T) {
	reg := NewRegistry()
	reg.Register(SMS, &stubSender{available: true})
	reg.SetEnabled(SMS, false)

	if reg.Resolve(SMS) != nil {
		t.Fatal("disabled channel must not resolve")
	}
	if reg.Available(SMS) {
		t.Fatal("disabled channel must not report available")
	}

	reg.SetEnabled(SMS, true)
	if !reg.Available(SMS) {
		t.Fatal("re-enabled channel must resolve again")
	}
}

func TestRegistry_AvailableDelegatesToSender(t *testing.T) {
	reg := NewRegistry()
	s := &stubSender{available: false}
	reg.Register(Push, s)

	if reg.Available(Push) {
		t.Fatal("availability must come from the sender")
	}
	s.available = true
	if !reg.Available(Push) {
		t.Fatal("availability must be re-checked on every call, not cached")
	}
}

func TestMessage_Validate(t *testing.T) {
	ok := Message{Recipient: "a@b.c", Subject: "s", Content: "c"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}
	for _, m := range []Message{
		{Subject: "s", Content: "c"},
		{Recipient: "a@b.c", Content: "c"},
		{Recipient: "a@b.c", Subject: "s"},
		{Recipient: " ", Subject: "s", Content: "c"},
	} {
		if err := m.Validate(); err == nil {
			t.Fatalf("message %+v should be invalid", m)
		}
	}
}
