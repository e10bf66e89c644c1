package sesame

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDispatcherFIFO(t *testing.T) {
	d := NewDispatcher()
	var got []int
	for i := range 5 {
		d.Defer(func() { got = append(got, i) })
	}
	if d.Pending() != 5 {
		t.Fatalf("Pending() = %d, want 5", d.Pending())
	}
	if n := d.Drain(); n != 5 {
		t.Fatalf("Drain() = %d, want 5", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v, want ascending", got)
		}
	}
}

func TestDispatcherDeferDuringDrainRunsNextTick(t *testing.T) {
	d := NewDispatcher()
	var order []string
	d.Defer(func() {
		order = append(order, "first")
		d.Defer(func() { order = append(order, "nested") })
	})
	d.Defer(func() { order = append(order, "second") })

	d.Drain()
	if len(order) != 2 || order[1] != "second" {
		t.Fatalf("after first drain order = %v", order)
	}
	d.Drain()
	if len(order) != 3 || order[2] != "nested" {
		t.Fatalf("after second drain order = %v", order)
	}
}

func TestDispatcherRunAndCall(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	var polls int
	var mu sync.Mutex
	go d.Run(ctx, time.Millisecond, func() {
		mu.Lock()
		polls++
		mu.Unlock()
	})

	var ran bool
	if err := d.Call(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !ran {
		t.Fatal("Call() returned before fn ran")
	}

	cancel()
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	mu.Lock()
	if polls == 0 {
		t.Error("poll never ran")
	}
	mu.Unlock()

	if err := d.Call(context.Background(), func() {}); !errors.Is(err, ErrDispatcherStopped) {
		t.Errorf("Call() after stop error = %v, want ErrDispatcherStopped", err)
	}
}

func TestDispatcherRunsOnce(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx, time.Millisecond, nil)

	var polled bool
	d.Run(context.Background(), time.Millisecond, func() { polled = true })
	if polled {
		t.Error("second Run polled")
	}
	select {
	case <-d.Done():
	default:
		t.Error("Done() not closed after Run")
	}
}

func TestDispatcherCallContextCancelled(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// nothing drains the queue
	if err := d.Call(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Call() error = %v, want DeadlineExceeded", err)
	}
}
