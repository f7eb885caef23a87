package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/hive/internal/provider"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout sentinel", ErrTimeout, true},
		{"cancelled", ErrCancelled, false},
		{"context cancel", context.Canceled, false},
		{"rate limit", provider.WrapError("openai", "", 429, errors.New("slow")), true},
		{"server error", provider.WrapError("openai", "", 503, errors.New("bad")), true},
		{"auth", provider.WrapError("openai", "", 401, errors.New("key")), false},
		{"bad request", provider.WrapError("openai", "", 400, errors.New("nope")), false},
		{"reset text", errors.New("read tcp: connection reset by peer"), true},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("%s: IsTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRetryTransientRetriesOnceThenSucceeds(t *testing.T) {
	calls := 0
	_, err := RetryTransient(context.Background(), func() (string, error) {
		calls++
		if calls == 1 {
			return "", provider.WrapError("openai", "", 500, errors.New("flaky"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetryTransientStopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := RetryTransient(context.Background(), func() (string, error) {
		calls++
		return "", provider.WrapError("openai", "", 401, errors.New("bad key"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", calls)
	}
}

func TestWithFirstTokenTimeoutPassesTokens(t *testing.T) {
	in := make(chan provider.StreamChunk, 3)
	in <- provider.StreamChunk{Text: "a"}
	in <- provider.StreamChunk{Text: "b"}
	close(in)

	out := WithFirstTokenTimeout(in, time.Second, func() {})
	var got string
	for chunk := range out {
		if chunk.Err != nil {
			t.Fatalf("unexpected error: %v", chunk.Err)
		}
		got += chunk.Text
	}
	if got != "ab" {
		t.Errorf("expected ab, got %q", got)
	}
}

func TestWithFirstTokenTimeoutFires(t *testing.T) {
	in := make(chan provider.StreamChunk)
	cancelled := make(chan struct{})

	start := time.Now()
	out := WithFirstTokenTimeout(in, 50*time.Millisecond, func() {
		close(cancelled)
		close(in)
	})

	chunk, ok := <-out
	if !ok {
		t.Fatal("expected a terminal chunk")
	}
	if !errors.Is(chunk.Err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", chunk.Err)
	}
	elapsed := time.Since(start)
	if elapsed < 45*time.Millisecond || elapsed > 150*time.Millisecond {
		t.Errorf("timeout fired at %v, want ~50ms", elapsed)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("underlying stream was not cancelled")
	}

	if _, ok := <-out; ok {
		t.Error("stream must end after timeout")
	}
}
