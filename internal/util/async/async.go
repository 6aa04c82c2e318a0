package async

import (
	"context"
	"time"
)

// Task is one unit of concurrent work producing a value of type T.
type Task[T any] struct {
	Name string

	// Timeout bounds how long Gather waits for Func. Zero means no bound beyond ctx.
	Timeout time.Duration

	// Func performs the work. It receives a context that expires at Timeout.
	Func func(ctx context.Context) T

	// OnTimeout builds the result used when Func has not returned in time.
	// The argument is the context error that ended the wait.
	OnTimeout func(err error) T
}

// Gather runs all tasks concurrently and waits for every task to either
// return or time out. Results are returned in the same order as tasks.
//
// A Func that ignores its context keeps running in the background after its
// deadline; its late result is discarded.
//
// Example:
//
//	results := Gather(ctx, []Task[string]{
//	    {Name: "node-a", Timeout: time.Minute, Func: probe("node-a"), OnTimeout: timedOut},
//	    {Name: "node-b", Timeout: time.Minute, Func: probe("node-b"), OnTimeout: timedOut},
//	})
func Gather[T any](ctx context.Context, tasks []Task[T]) []T {
	results := make([]T, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	type indexed struct {
		index int
		value T
	}
	resultChan := make(chan indexed, len(tasks))

	for i, task := range tasks {
		go func() {
			resultChan <- indexed{index: i, value: run(ctx, task)}
		}()
	}

	for range len(tasks) {
		res := <-resultChan
		results[res.index] = res.value
	}
	return results
}

func run[T any](ctx context.Context, task Task[T]) T {
	taskCtx, cancel := ctx, context.CancelFunc(func() {})
	if task.Timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, task.Timeout)
	}
	defer cancel()

	done := make(chan T, 1)
	go func() {
		done <- task.Func(taskCtx)
	}()

	select {
	case v := <-done:
		return v
	case <-taskCtx.Done():
		// Prefer a result that raced the deadline.
		select {
		case v := <-done:
			return v
		default:
		}
		if task.OnTimeout != nil {
			return task.OnTimeout(taskCtx.Err())
		}
		var zero T
		return zero
	}
}
