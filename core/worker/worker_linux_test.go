//go:build linux

package worker_test

import (
	"context"
	"runtime"
	"sync"
	"syscall"
	"testing"

	"spindle/core/worker"
)

func TestLockOSThread_SingleThread(t *testing.T) {
	w := newWorker(t)

	const producers, perProducer = 8, 250
	tids := make(map[int]int) // worker goroutine only
	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perProducer {
				_ = w.Submit(func() {
					tids[syscall.Gettid()]++
					runtime.Gosched()
				})
			}
		}()
	}
	wg.Wait()
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	stop(t, w)

	if len(tids) != 1 {
		t.Fatalf("Expected tasks to run on exactly one OS thread, got %d: %v", len(tids), tids)
	}
	for _, n := range tids {
		if n != producers*perProducer {
			t.Fatalf("Expected %d tasks on the thread, got %d", producers*perProducer, n)
		}
	}
	if w.State() != worker.StateTerminated {
		t.Fatalf("Expected terminated, got %v", w.State())
	}
}
