package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/groveml/grove/pkg/errors"
)

func TestParallelizeCoversAllItems(t *testing.T) {
	const items = 1000
	seen := make([]int32, items)

	Parallelize(items, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})

	for i, n := range seen {
		if n != 1 {
			t.Fatalf("item %d visited %d times, want exactly once", i, n)
		}
	}
}

func TestParallelizeZeroItems(t *testing.T) {
	called := false
	Parallelize(0, func(start, end int) { called = true })
	if called {
		t.Error("fn should not be called for zero items")
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	var calls int
	var mu sync.Mutex

	ParallelizeWithThreshold(10, 100, func(start, end int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if start != 0 || end != 10 {
			t.Errorf("sequential path got range [%d,%d), want [0,10)", start, end)
		}
	})

	if calls != 1 {
		t.Errorf("sequential path called %d times, want 1", calls)
	}
}

func TestGroupWaitsForNestedTasks(t *testing.T) {
	g := NewGroup(4)
	var count int64

	var spawn func(depth int) error
	spawn = func(depth int) error {
		atomic.AddInt64(&count, 1)
		if depth < 4 {
			for i := 0; i < 2; i++ {
				d := depth + 1
				g.Go(func() error { return spawn(d) })
			}
		}
		return nil
	}

	g.Go(func() error { return spawn(0) })
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A complete binary fan-out of depth 4: 2^5 - 1 tasks.
	if got := atomic.LoadInt64(&count); got != 31 {
		t.Errorf("ran %d tasks, want 31", got)
	}
}

func TestGroupRunsInlineWhenSaturated(t *testing.T) {
	g := NewGroup(1)
	done := make(chan struct{})

	g.Go(func() error {
		<-done
		return nil
	})

	// With the single worker slot occupied, this task must run inline
	// before Go returns, not deadlock waiting for a slot.
	ran := false
	g.Go(func() error {
		ran = true
		return nil
	})
	if !ran {
		t.Fatal("saturated Go did not run the task inline")
	}

	close(done)
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGroupPropagatesFirstError(t *testing.T) {
	g := NewGroup(2)
	boom := errors.New("split search failed")

	g.Go(func() error { return nil })
	g.Go(func() error { return boom })

	if err := g.Wait(); !errors.Is(err, boom) {
		t.Fatalf("Wait() = %v, want %v", err, boom)
	}
}

func TestGroupRecoversPanic(t *testing.T) {
	g := NewGroup(2)

	g.Go(func() error {
		panic("worker exploded")
	})

	err := g.Wait()
	if err == nil {
		t.Fatal("expected error from panicking task")
	}

	var pe *errors.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %T (%v)", err, err)
	}
}
