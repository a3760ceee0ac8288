package engine

import (
	"sync"
	"testing"
	"time"
)

func TestLockReentry(t *testing.T) {
	var l SessionLock

	const depth = 16
	for i := 0; i < depth; i++ {
		if !l.Acquire(true) {
			t.Fatalf("acquire %d failed", i)
		}
	}
	if got := l.Depth(); got != depth {
		t.Fatalf("expected depth %d, got %d", depth, got)
	}
	for i := 0; i < depth; i++ {
		if err := l.Release(); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
	if l.OwnedByCaller() {
		t.Fatal("lock still owned after matching releases")
	}
	if err := l.Release(); err == nil {
		t.Fatal("expected misuse error on extra release")
	}
}

func TestLockCrossGoroutineRelease(t *testing.T) {
	var l SessionLock
	if !l.Acquire(true) {
		t.Fatal("acquire failed")
	}
	defer func() {
		if err := l.Release(); err != nil {
			t.Fatalf("owner release: %v", err)
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- l.Release() }()
	if err := <-errc; err == nil {
		t.Fatal("expected misuse error for foreign release")
	}
}

func TestLockNonBlocking(t *testing.T) {
	var l SessionLock
	if !l.Acquire(true) {
		t.Fatal("acquire failed")
	}

	got := make(chan bool, 1)
	go func() { got <- l.Acquire(false) }()
	if <-got {
		t.Fatal("non-blocking acquire succeeded while lock held elsewhere")
	}

	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
}

func TestLockContention(t *testing.T) {
	var l SessionLock
	counter := 0

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				l.Acquire(true)
				l.Acquire(true) // nested re-entry under contention
				counter++
				if err := l.Release(); err != nil {
					t.Error(err)
				}
				if err := l.Release(); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	if counter != 8*200 {
		t.Fatalf("lost updates: counter = %d", counter)
	}
}

func TestLockHandoff(t *testing.T) {
	var l SessionLock
	l.Acquire(true)

	acquired := make(chan struct{})
	go func() {
		l.Acquire(true)
		close(acquired)
		l.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine acquired while lock held")
	case <-time.After(20 * time.Millisecond):
	}

	if err := l.Release(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after release")
	}
}
