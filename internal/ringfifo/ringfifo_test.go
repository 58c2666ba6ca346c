package ringfifo

import (
	"sync"
	"testing"
)

func TestPushPopOrderPreserved(t *testing.T) {
	f := New(4)
	for i := 0; i < 4; i++ {
		if !f.Push(float32(i)) {
			t.Fatalf("expected push %d to succeed", i)
		}
	}
	if f.Push(99) {
		t.Fatalf("expected push to fail once full")
	}
	for i := 0; i < 4; i++ {
		v, ok := f.Pop()
		if !ok || v != float32(i) {
			t.Fatalf("expected %d, got %v ok=%v", i, v, ok)
		}
	}
	if _, ok := f.Pop(); ok {
		t.Fatalf("expected pop to fail once empty")
	}
}

func TestAvailableAndFreeSpace(t *testing.T) {
	f := New(4)
	if f.Available() != 0 || f.FreeSpace() != 4 {
		t.Fatalf("expected empty fifo, got avail=%d free=%d", f.Available(), f.FreeSpace())
	}
	f.Push(1)
	f.Push(2)
	if f.Available() != 2 || f.FreeSpace() != 2 {
		t.Fatalf("expected avail=2 free=2, got avail=%d free=%d", f.Available(), f.FreeSpace())
	}
}

func TestConcurrentProducerConsumerPreservesOrder(t *testing.T) {
	const n = 1 << 16
	f := New(256)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !f.Push(float32(i)) {
				// spin: backpressure, consumer will catch up
			}
		}
	}()

	out := make([]float32, 0, n)
	go func() {
		defer wg.Done()
		for len(out) < n {
			if v, ok := f.Pop(); ok {
				out = append(out, v)
			}
		}
	}()

	wg.Wait()
	for i := 0; i < n; i++ {
		if out[i] != float32(i) {
			t.Fatalf("order violated at %d: got %v", i, out[i])
		}
	}
}

func TestResetClearsFill(t *testing.T) {
	f := New(4)
	f.Push(1)
	f.Push(2)
	f.Reset()
	if f.Available() != 0 {
		t.Fatalf("expected empty after reset, got %d", f.Available())
	}
}
