package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eleven-am/weft/internal/domain"
)

func TestRunWithTimeoutReturnsBeforeDeadline(t *testing.T) {
	outputs, err := runWithTimeout(context.Background(), "n1", time.Second, func(ctx context.Context) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["ok"] != true {
		t.Errorf("outputs = %v", outputs)
	}
}

func TestRunWithTimeoutExpiryYieldsTimeoutError(t *testing.T) {
	start := time.Now()
	_, err := runWithTimeout(context.Background(), "n1", 20*time.Millisecond, func(ctx context.Context) (map[string]interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return nil, nil
		}
	})

	if !domain.IsTimeoutError(err) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("attempt took %s, deadline should have cut it short", elapsed)
	}
}

func TestRunWithTimeoutCooperativeDeadlineYieldsTimeoutError(t *testing.T) {
	// The executor observes the attempt deadline itself and returns the
	// raw context error; the guard must still classify it as a timeout.
	_, err := runWithTimeout(context.Background(), "n1", 20*time.Millisecond, func(ctx context.Context) (map[string]interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	if !domain.IsTimeoutError(err) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("raw deadline error leaked through the guard: %v", err)
	}
}

func TestRunWithTimeoutParentCancellationIsNotANodeTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := runWithTimeout(ctx, "n1", time.Minute, func(ctx context.Context) (map[string]interface{}, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil, ctx.Err()
	})

	if domain.IsTimeoutError(err) {
		t.Fatalf("run cancellation must not masquerade as a node timeout: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRunWithTimeoutPropagatesAttemptError(t *testing.T) {
	boom := errors.New("boom")
	_, err := runWithTimeout(context.Background(), "n1", time.Second, func(ctx context.Context) (map[string]interface{}, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
