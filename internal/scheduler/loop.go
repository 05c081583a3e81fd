package scheduler

import (
	"context"

	"github.com/gateway-fm/ledgerbench/internal/task"
)

// loopScheduler keeps all admission decisions on a single dispatcher
// goroutine. Tasks execute off the loop, but the active count is only
// touched here, so admissions are strictly ordered and a completion
// frees a slot for exactly one replacement.
type loopScheduler struct {
	schedCore
}

func (s *loopScheduler) Run(ctx context.Context, src Source, deliver func(task.Outcome)) error {
	completions := make(chan task.Outcome)
	active := 0

	s.logger.Info("scheduler starting",
		"strategy", string(StrategyLoop),
		"limit", s.limit,
	)

	next, pending := src.Next()

	for pending || active > 0 {
		if ctx.Err() != nil {
			if pending {
				deliver(cancelledOutcome(next))
			}
			drainCancelled(src, deliver)
			s.awaitActive(active, completions, deliver)
			return ctx.Err()
		}

		// Fill every free slot in admission order before blocking.
		for pending && active < s.limit {
			if s.pacer != nil {
				if err := s.pacer.Wait(ctx); err != nil {
					deliver(cancelledOutcome(next))
					drainCancelled(src, deliver)
					s.awaitActive(active, completions, deliver)
					return err
				}
			}

			active++
			s.trackAdmit()
			go func(t *task.Task) {
				completions <- s.execute(ctx, t)
			}(next)
			next, pending = src.Next()
		}

		select {
		case out := <-completions:
			active--
			s.trackDone()
			deliver(out)
		case <-ctx.Done():
			if pending {
				deliver(cancelledOutcome(next))
			}
			drainCancelled(src, deliver)
			s.awaitActive(active, completions, deliver)
			return ctx.Err()
		}
	}

	return nil
}

// awaitActive collects outcomes from tasks that were already running
// when the context ended. Their runners observe the cancellation and
// return promptly.
func (s *loopScheduler) awaitActive(active int, completions <-chan task.Outcome, deliver func(task.Outcome)) {
	for ; active > 0; active-- {
		out := <-completions
		s.trackDone()
		deliver(out)
	}
}

func (s *loopScheduler) Peak() int {
	return s.peakValue()
}
