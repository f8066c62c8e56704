// Package executor bridges the synchronous store into the concurrent parts
// of the app. Every blocking store call is scheduled on a bounded worker
// pool so that slow store operations never stall unrelated per-feed work.
package executor

import "context"

type task struct {
	fn   func() error
	done chan error
}

type Executor struct {
	tasks chan task
	stop  chan struct{}
}

func New(numWorkers int) *Executor {
	e := &Executor{
		tasks: make(chan task),
		stop:  make(chan struct{}),
	}
	for i := 0; i < numWorkers; i++ {
		go e.startWorker()
	}
	return e
}

func (e *Executor) startWorker() {
	for {
		select {
		case t := <-e.tasks:
			t.done <- t.fn()
		case <-e.stop:
			return
		}
	}
}

// Run schedules fn on a worker and waits for it to finish, returning fn's
// error. A cancelled context abandons the wait, not the task.
func (e *Executor) Run(ctx context.Context, fn func() error) error {
	t := task{fn: fn, done: make(chan error, 1)}

	select {
	case e.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) Close() {
	close(e.stop)
}
