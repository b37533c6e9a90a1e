package lockset

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLock_SameKeySerializes(t *testing.T) {
	s := New()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("k")
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after release, want 0", s.Len())
	}
}

func TestLock_DifferentKeysParallel(t *testing.T) {
	s := New()
	unlockA := s.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := s.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestKey(t *testing.T) {
	if Key("a", "bc") == Key("ab", "c") {
		t.Error("Key should separate parts unambiguously")
	}
	if Key("x", "y") != Key("x", "y") {
		t.Error("Key should be deterministic")
	}
}
