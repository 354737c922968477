package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// ErrAllBackendsFailed is returned when every backend fails or has an open
// breaker.
var ErrAllBackendsFailed = errors.New("resilience: all backends failed")

// backend pairs a provider with its dedicated breaker.
type backend struct {
	name     string
	provider llm.Provider
	breaker  *Breaker
}

// Failover implements [llm.Provider] with automatic failover across multiple
// backends. Backends are tried in registration order; ones with an open
// breaker are skipped. Only the initial stream connection participates in
// failover; once a stream is established, mid-stream errors belong to the
// caller.
type Failover struct {
	backends []backend
	opts     []BreakerOption
}

var _ llm.Provider = (*Failover)(nil)

// NewFailover creates a [Failover] with primary as the preferred backend.
// opts configure the breaker created for each backend.
func NewFailover(primaryName string, primary llm.Provider, opts ...BreakerOption) (*Failover, error) {
	if primary == nil {
		return nil, errors.New("resilience: primary provider must not be nil")
	}
	f := &Failover{opts: opts}
	f.add(primaryName, primary)
	return f, nil
}

// AddFallback registers an additional backend, tried after all earlier ones.
func (f *Failover) AddFallback(name string, provider llm.Provider) error {
	if provider == nil {
		return errors.New("resilience: fallback provider must not be nil")
	}
	f.add(name, provider)
	return nil
}

func (f *Failover) add(name string, provider llm.Provider) {
	f.backends = append(f.backends, backend{
		name:     name,
		provider: provider,
		breaker:  NewBreaker(name, f.opts...),
	})
}

// StreamCompletion opens a completion stream on the first healthy backend.
func (f *Failover) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	var lastErr error
	for i := range f.backends {
		be := &f.backends[i]
		var ch <-chan llm.Chunk
		err := be.breaker.Do(func() error {
			var inner error
			ch, inner = be.provider.StreamCompletion(ctx, req)
			return inner
		})
		if err == nil {
			return ch, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping backend, breaker open", "backend", be.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", be.name, "error", err.Error())
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
