// Package channel defines the contract between the dispatcher and the
// outbound channel integrations.
package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/acme/lead-contact-engine/internal/domain"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
)

// Message is one rendered contact ready to be sent.
type Message struct {
	TaskID  string
	Lead    domain.Lead
	Channel domain.Channel
	Body    string
	Tone    domain.EmotionalTone
	Vars    map[string]string
}

// SendResult is what the channel reported. A non-nil error from Send is a
// transport problem and is recorded as failure type error.
type SendResult struct {
	Success     bool
	FailureType domain.FailureType
	Detail      string
	Duration    time.Duration
}

// Delivered builds a successful result.
func Delivered(d time.Duration) SendResult {
	return SendResult{Success: true, Duration: d}
}

// Failed builds an unsuccessful result.
func Failed(ft domain.FailureType, detail string, d time.Duration) SendResult {
	return SendResult{FailureType: ft, Detail: detail, Duration: d}
}

// Adapter sends messages over one channel.
type Adapter interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// AdapterFunc adapts a function to Adapter.
type AdapterFunc func(ctx context.Context, msg Message) (SendResult, error)

func (f AdapterFunc) Send(ctx context.Context, msg Message) (SendResult, error) { return f(ctx, msg) }

// Registry resolves the adapter for a channel.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.Channel]Adapter
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[domain.Channel]Adapter{}}
}

// Register installs a for ch, replacing any previous adapter.
func (r *Registry) Register(ch domain.Channel, a Adapter) {
	r.mu.Lock()
	r.adapters[ch] = a
	r.mu.Unlock()
}

// Lookup returns the adapter for ch.
func (r *Registry) Lookup(ch domain.Channel) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[ch]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for channel %s", apperrors.ErrUnavailable, ch)
	}
	return a, nil
}

// Channels lists the registered channels.
func (r *Registry) Channels() []domain.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Channel, 0, len(r.adapters))
	for ch := range r.adapters {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
