package channel

import "sync"

// Registry maps channel-type names to senders. Registration and enable flags
// are set during startup or configuration reload; dispatch paths only read,
// so the lock is shared for them.
type Registry struct {
	mu      sync.RWMutex
	senders map[string]Sender
	enabled map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		senders: make(map[string]Sender),
		enabled: make(map[string]bool),
	}
}

// Register adds a sender under its channel-type name. Registered channels
// start enabled.
func (r *Registry) Register(channelType string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[channelType] = s
	r.enabled[channelType] = true
}

func (r *Registry) SetEnabled(channelType string, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.senders[channelType]; ok {
		r.enabled[channelType] = on
	}
}

// Resolve returns the sender for a channel type, or nil when the type is
// unregistered or disabled.
func (r *Registry) Resolve(channelType string) Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.enabled[channelType] {
		return nil
	}
	return r.senders[channelType]
}

// Available reports whether the channel resolves and its sender considers
// itself usable. The sender is asked every call; availability of an external
// dependency can change between calls, so it is never cached here.
func (r *Registry) Available(channelType string) bool {
	s := r.Resolve(channelType)
	return s != nil && s.Available()
}
