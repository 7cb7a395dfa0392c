package concurrency

import (
	"sync"
	"testing"
	"time"
)

func TestExecutorRunsSubmittedTasks(t *testing.T) {
	e := NewExecutor(4, -1)
	defer e.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ran := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		if err := e.Submit(func() {
			mu.Lock()
			ran++
			mu.Unlock()
			wg.Done()
		}); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("submitted tasks did not all run")
	}
	if ran != 100 {
		t.Fatalf("ran = %d, want 100", ran)
	}
}

func TestExecutorResize(t *testing.T) {
	e := NewExecutor(2, -1)
	defer e.Close()

	e.Resize(6)
	if n := e.NumWorkers(); n != 6 {
		t.Fatalf("NumWorkers = %d after grow, want 6", n)
	}
	e.Resize(1)
	if n := e.NumWorkers(); n != 1 {
		t.Fatalf("NumWorkers = %d after shrink, want 1", n)
	}
}

func TestExecutorSubmitAfterClose(t *testing.T) {
	e := NewExecutor(1, -1)
	e.Close()
	if err := e.Submit(func() {}); err != ErrExecutorClosed {
		t.Fatalf("err = %v, want ErrExecutorClosed", err)
	}
}
