// Package optimistic applies a local mutation immediately, sends it to the backend in the
// background and restores the captured state if the backend rejects it.
package optimistic

import (
	"context"
	"sync"
)

// Command is one optimistic mutation. Capture and Apply run synchronously inside Run, so the
// caller can hold its own lock around Run to make them atomic. Send runs on its own goroutine
// with a context that is never cancelled; exactly one of Commit or Restore runs afterwards.
type Command[S, R any] struct {
	Capture func() S
	Apply   func()
	Send    func(ctx context.Context) (R, error)
	// Commit receives the backend result and returns the value the settlement reports.
	Commit func(R) R
	// Restore puts the captured state back and returns the error the settlement reports.
	Restore func(S, error) error
}

// Settlement is the eventual outcome of a dispatched Command.
type Settlement[R any] struct {
	done   chan struct{}
	result R
	err    error
}

func (s *Settlement[R]) Done() <-chan struct{} { return s.done }

// Wait blocks until the command settles or ctx is done. Giving up on ctx does not cancel the
// command.
func (s *Settlement[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Runner tracks dispatched commands so shutdown can wait for them to settle.
type Runner struct {
	wg sync.WaitGroup
}

// Run captures, applies, and dispatches cmd. It returns once the local mutation is visible.
func Run[S, R any](ctx context.Context, r *Runner, cmd Command[S, R]) *Settlement[R] {
	var snapshot S
	if cmd.Capture != nil {
		snapshot = cmd.Capture()
	}
	if cmd.Apply != nil {
		cmd.Apply()
	}

	s := &Settlement[R]{done: make(chan struct{})}
	sendCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(s.done)

		res, err := cmd.Send(sendCtx)
		if err != nil {
			if cmd.Restore != nil {
				err = cmd.Restore(snapshot, err)
			}
			s.err = err
			return
		}
		if cmd.Commit != nil {
			res = cmd.Commit(res)
		}
		s.result = res
	}()
	return s
}

// Wait blocks until every dispatched command has settled or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
