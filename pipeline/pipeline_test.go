package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolSizeDefaultsAndFloor(t *testing.T) {
	p := NewPool(0)
	if p.sem == nil {
		t.Fatal("NewPool(0) produced a nil semaphore")
	}
	p2 := NewPool(1000)
	if p2.sem == nil {
		t.Fatal("NewPool(1000) produced a nil semaphore")
	}
}

func TestRunExecutesAllTasks(t *testing.T) {
	p := NewPool(2)
	var count int32
	tasks := make([]func(context.Context) error, 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			atomic.AddInt32(&count, 1)
			return nil
		}
	}
	if err := p.Run(context.Background(), tasks); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if count != 10 {
		t.Errorf("count = %d, want 10", count)
	}
}

func TestRunPropagatesFirstError(t *testing.T) {
	p := NewPool(2)
	wantErr := errors.New("boom")
	tasks := []func(context.Context) error{
		func(ctx context.Context) error { return wantErr },
		func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		},
	}
	err := p.Run(context.Background(), tasks)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want %v", err, wantErr)
	}
}

func TestRunCancelsRemainingTasksOnError(t *testing.T) {
	p := NewPool(1)
	wantErr := errors.New("boom")
	var ranAfterError int32
	tasks := []func(context.Context) error{
		func(ctx context.Context) error { return wantErr },
		func(ctx context.Context) error {
			atomic.AddInt32(&ranAfterError, 1)
			return nil
		},
	}
	if err := p.Run(context.Background(), tasks); !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want %v", err, wantErr)
	}
	if n := atomic.LoadInt32(&ranAfterError); n != 0 {
		t.Errorf("second task ran %d time(s) after the first failed; want it abandoned", n)
	}
}
