package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcher_RunsTasks(t *testing.T) {
	d := NewDispatcher(context.Background(), 2, 10)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if err := d.Submit("count", nil, func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if ran.Load() != 5 {
		t.Errorf("ran = %d, want 5", ran.Load())
	}
	if s := d.Stats(); s.Completed != 5 || s.Failed != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	d := NewDispatcher(context.Background(), 1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	blocker := func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}
	if err := d.Submit("block", nil, blocker); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := d.Submit("queued", nil, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	err := d.Submit("overflow", nil, func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("third Submit error = %v, want ErrQueueFull", err)
	}

	close(release)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Submit("late", nil, func(ctx context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after Shutdown = %v, want ErrStopped", err)
	}
}

func TestDispatcher_RecoversPanicsAndCountsFailures(t *testing.T) {
	d := NewDispatcher(context.Background(), 1, 4)

	_ = d.Submit("panic", nil, func(ctx context.Context) error { panic("boom") })
	_ = d.Submit("error", nil, func(ctx context.Context) error { return errors.New("nope") })
	_ = d.Submit("ok", nil, func(ctx context.Context) error { return nil })

	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s := d.Stats(); s.Failed != 2 || s.Completed != 1 {
		t.Errorf("stats = %+v, want 2 failed 1 completed", s)
	}
}

func TestDispatcher_ShutdownDeadlineCancelsTasks(t *testing.T) {
	d := NewDispatcher(context.Background(), 1, 2)
	started := make(chan struct{})
	cancelled := make(chan struct{})

	_ = d.Submit("slow", nil, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown error = %v, want deadline exceeded", err)
	}

	select {
	case <-cancelled:
	default:
		t.Error("running task was not cancelled")
	}
}
