package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingReporter struct {
	ops      []string
	attempts []int
}

func (r *recordingReporter) Report(_ context.Context, op string, attempt int, _ error) {
	r.ops = append(r.ops, op)
	r.attempts = append(r.attempts, attempt)
}

func TestDo_AlwaysFailingInvokedExactlyMaxTries(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	rep := &recordingReporter{}

	err := Do(context.Background(), rep, Options{Op: "read price", Delay: time.Second, Sleep: func(time.Duration) {}}, func(context.Context) error {
		calls++
		return boom
	})

	if calls != DefaultMaxTries {
		t.Fatalf("expected %d invocations, got %d", DefaultMaxTries, calls)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected final error to propagate, got %v", err)
	}
	if len(rep.attempts) != DefaultMaxTries {
		t.Fatalf("expected %d reports, got %d", DefaultMaxTries, len(rep.attempts))
	}
	if rep.attempts[0] != 1 || rep.attempts[len(rep.attempts)-1] != DefaultMaxTries {
		t.Fatalf("unexpected attempt numbering: %v", rep.attempts)
	}
}

func TestDo_SucceedsMidway(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, Options{MaxTries: 3, Sleep: func(time.Duration) {}}, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 invocations, got %d", calls)
	}
}

func TestDo_CancelledContextStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, nil, Options{MaxTries: 5, Sleep: func(time.Duration) {}}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 invocation after cancel, got %d", calls)
	}
}

func TestDoValue(t *testing.T) {
	calls := 0
	got, err := DoValue(context.Background(), nil, Options{MaxTries: 4, Sleep: func(time.Duration) {}}, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("not yet")
		}
		return "450 000 €", nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got != "450 000 €" {
		t.Fatalf("unexpected value %q", got)
	}
}
