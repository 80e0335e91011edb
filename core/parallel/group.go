package parallel

import (
	"runtime"
	"sync"

	"github.com/groveml/grove/pkg/errors"
)

// Group is a bounded task group for recursive fan-out work such as tree node
// expansion. Tasks submitted with Go run on their own goroutine while a worker
// slot is available; otherwise they run inline on the submitting goroutine, so
// recursion always makes progress and the number of concurrent goroutines
// stays bounded by the worker limit.
//
// Wait blocks until every task submitted so far, including tasks submitted
// transitively from inside other tasks, has completed. This gives the caller
// the "parent blocks until the entire subtree completes" contract. The first
// error (or recovered panic) observed is retained and returned from Wait.
type Group struct {
	sem chan struct{}
	wg  sync.WaitGroup

	mu  sync.Mutex
	err error
}

// NewGroup creates a Group with at most workers concurrent goroutines.
// workers <= 0 selects runtime.NumCPU().
func NewGroup(workers int) *Group {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Group{sem: make(chan struct{}, workers)}
}

// Go submits fn. If a worker slot is free the task runs concurrently,
// otherwise it runs inline before Go returns. Panics inside fn are recovered
// and recorded as errors.
func (g *Group) Go(fn func() error) {
	g.wg.Add(1)

	select {
	case g.sem <- struct{}{}:
		go func() {
			defer g.wg.Done()
			defer func() { <-g.sem }()
			g.record(g.run(fn))
		}()
	default:
		defer g.wg.Done()
		g.record(g.run(fn))
	}
}

// Wait blocks until all submitted tasks have finished and returns the first
// recorded error, if any.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Err returns the first recorded error without waiting. Tasks may use it to
// skip work once a sibling has already failed.
func (g *Group) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *Group) run(fn func() error) (err error) {
	defer errors.Recover(&err, "parallel.Group task")
	return fn()
}

func (g *Group) record(err error) {
	if err == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err == nil {
		g.err = err
	}
}
