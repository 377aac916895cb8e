package algorithm

import (
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// rowJob is one contiguous band of rows handed to a worker.
type rowJob struct {
	start, end int
	fn         func(start, end int)
	done       *sync.WaitGroup
}

// ComputeContext is a fixed pool of goroutines that run row loops in parallel.
//
// A closed context keeps working: ParallelRows then runs the loop on the
// calling goroutine.
type ComputeContext struct {
	workers int
	jobs    chan rowJob

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewComputeContext starts a pool with the given number of workers. Zero or a
// negative count means one worker per CPU.
func NewComputeContext(workers int) *ComputeContext {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	c := &ComputeContext{
		workers: workers,
		jobs:    make(chan rowJob),
	}
	c.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.work()
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewComputeContext",
		"workers":  workers,
	}).Debug("Compute context started")
	return c
}

func (c *ComputeContext) work() {
	defer c.wg.Done()
	for job := range c.jobs {
		job.fn(job.start, job.end)
		job.done.Done()
	}
}

// Workers returns the pool size.
func (c *ComputeContext) Workers() int {
	return c.workers
}

// ParallelRows splits [0, rows) into bands and calls fn once per band. It
// returns when every band has finished. fn must only touch rows inside its band.
func (c *ComputeContext) ParallelRows(rows int, fn func(start, end int)) {
	if rows <= 0 {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	bands := c.workers
	if bands > rows {
		bands = rows
	}
	if c.closed || bands <= 1 {
		fn(0, rows)
		return
	}

	size := (rows + bands - 1) / bands
	var done sync.WaitGroup
	done.Add((rows + size - 1) / size)
	for start := 0; start < rows; start += size {
		end := start + size
		if end > rows {
			end = rows
		}
		c.jobs <- rowJob{start: start, end: end, fn: fn, done: &done}
	}
	done.Wait()
}

// Close stops the workers after in-flight loops finish. It is idempotent.
func (c *ComputeContext) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.jobs)
	c.mu.Unlock()

	c.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "ComputeContext.Close",
		"workers":  c.workers,
	}).Debug("Compute context closed")
}
