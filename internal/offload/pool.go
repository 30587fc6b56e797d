// Package offload runs CPU-bound work, such as pow hashing, on a bounded set
// of goroutines so that callers only wait on a result.
package offload

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of CPU-bound jobs running at once.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// New creates a pool with size slots. A size of zero or less uses GOMAXPROCS.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Size returns the number of jobs that may run concurrently.
func (p *Pool) Size() int {
	return int(p.size)
}

// PanicError is returned when a job panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("offloaded job panicked: %v", e.Value)
}

type result[T any] struct {
	value T
	err   error
}

// Run waits for a free slot, then runs fn on its own goroutine and waits for
// the result. If ctx ends first Run returns ctx.Err(); a job that already
// started keeps its slot until fn returns and its result is dropped.
func Run[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		defer p.sem.Release(1)

		var res result[T]
		defer func() {
			if v := recover(); v != nil {
				res = result[T]{err: &PanicError{Value: v, Stack: debug.Stack()}}
			}
			done <- res
		}()
		res.value, res.err = fn()
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
