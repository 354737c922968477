package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxgate/voxgate/pkg/provider/llm"
	"github.com/voxgate/voxgate/pkg/provider/llm/mock"
)

func collect(t *testing.T, ch <-chan llm.Chunk) []llm.Chunk {
	t.Helper()
	var out []llm.Chunk
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out draining chunks")
		}
	}
}

func TestFailoverUsesPrimary(t *testing.T) {
	primary := &mock.Provider{StreamChunks: []llm.Chunk{{FinishReason: llm.FinishStop}}}
	fallback := &mock.Provider{}
	f, err := NewFailover("primary", primary)
	if err != nil {
		t.Fatalf("NewFailover() error = %v", err)
	}
	if err := f.AddFallback("fallback", fallback); err != nil {
		t.Fatalf("AddFallback() error = %v", err)
	}

	ch, err := f.StreamCompletion(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}
	if got := collect(t, ch); len(got) != 1 || got[0].FinishReason != llm.FinishStop {
		t.Errorf("chunks = %+v", got)
	}
	if len(fallback.Calls()) != 0 {
		t.Error("fallback was consulted while primary is healthy")
	}
}

func TestFailoverFallsBackOnError(t *testing.T) {
	primary := &mock.Provider{StreamErr: errors.New("primary down")}
	fallback := &mock.Provider{StreamChunks: []llm.Chunk{{FinishReason: llm.FinishStop}}}
	f, err := NewFailover("primary", primary)
	if err != nil {
		t.Fatalf("NewFailover() error = %v", err)
	}
	f.AddFallback("fallback", fallback)

	ch, err := f.StreamCompletion(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}
	collect(t, ch)
	if len(primary.Calls()) != 1 || len(fallback.Calls()) != 1 {
		t.Errorf("calls: primary=%d fallback=%d, want 1 and 1",
			len(primary.Calls()), len(fallback.Calls()))
	}
}

func TestFailoverSkipsOpenBreaker(t *testing.T) {
	primary := &mock.Provider{StreamErr: errors.New("primary down")}
	fallback := &mock.Provider{}
	f, err := NewFailover("primary", primary, WithMaxFailures(2))
	if err != nil {
		t.Fatalf("NewFailover() error = %v", err)
	}
	f.AddFallback("fallback", fallback)

	for range 3 {
		ch, err := f.StreamCompletion(context.Background(), llm.CompletionRequest{})
		if err != nil {
			t.Fatalf("StreamCompletion() error = %v", err)
		}
		collect(t, ch)
	}
	// Primary tripped after two failures; the third cycle skipped it.
	if got := len(primary.Calls()); got != 2 {
		t.Errorf("primary calls = %d, want 2", got)
	}
	if got := len(fallback.Calls()); got != 3 {
		t.Errorf("fallback calls = %d, want 3", got)
	}
}

func TestFailoverAllBackendsFailed(t *testing.T) {
	primary := &mock.Provider{StreamErr: errors.New("down")}
	f, err := NewFailover("primary", primary)
	if err != nil {
		t.Fatalf("NewFailover() error = %v", err)
	}

	_, err = f.StreamCompletion(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Errorf("StreamCompletion() error = %v, want ErrAllBackendsFailed", err)
	}
}

func TestFailoverValidation(t *testing.T) {
	if _, err := NewFailover("p", nil); err == nil {
		t.Error("NewFailover(nil) expected error")
	}
	f, _ := NewFailover("p", &mock.Provider{})
	if err := f.AddFallback("f", nil); err == nil {
		t.Error("AddFallback(nil) expected error")
	}
}
