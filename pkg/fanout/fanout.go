// Package fanout runs a homogeneous set of per-unit jobs concurrently under
// a bounded worker pool. A unit's failure is isolated: it never cancels
// siblings and never escapes the executor, so callers always get one outcome
// per input unit.
package fanout

import (
	"context"
	"sync"
)

// Outcome is the tagged per-unit result. Err is nil on success.
type Outcome[R any] struct {
	Value R
	Err   error
}

func (o Outcome[R]) Failed() bool {
	return o.Err != nil
}

// Run executes work for every unit with at most limit concurrent calls.
// Outcomes are order-preserving relative to units, not completion time. When
// ctx is cancelled, units not yet dispatched get ctx.Err() as their outcome;
// in-flight units run to completion under their own work handling.
func Run[U, R any](ctx context.Context, units []U, limit int, work func(ctx context.Context, unit U) (R, error)) []Outcome[R] {
	outcomes := make([]Outcome[R], len(units))
	if len(units) == 0 {
		return outcomes
	}
	if limit < 1 {
		limit = 1
	}
	if limit > len(units) {
		limit = len(units)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < limit; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				value, err := work(ctx, units[i])
				outcomes[i] = Outcome[R]{Value: value, Err: err}
			}
		}()
	}

	next := 0
dispatch:
	for ; next < len(units); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	for ; next < len(units); next++ {
		outcomes[next] = Outcome[R]{Err: ctx.Err()}
	}

	return outcomes
}
