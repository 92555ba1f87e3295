package aicmd

import (
	"context"
	"fmt"
	"time"
)

// Dispatch runs the planner on its own goroutine and hands the Result to
// deliver. deliver is called exactly once, including on timeout or cancel.
func Dispatch(ctx context.Context, p Planner, req Request, view WorldView, timeout time.Duration, deliver func(Result)) {
	go func() {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res := Result{Request: req}
		assignments, summary, err := p.Plan(pctx, req, view)
		switch {
		case err != nil:
			res.Err = err
		case pctx.Err() == context.DeadlineExceeded:
			res.Err = fmt.Errorf("%w after %s", ErrPlanTimeout, timeout)
		default:
			res.Assignments = assignments
			res.Summary = summary
		}
		deliver(res)
	}()
}
