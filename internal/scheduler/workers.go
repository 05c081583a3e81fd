package scheduler

import (
	"context"
	"sync"

	"github.com/gateway-fm/ledgerbench/internal/task"
)

// workerScheduler enforces the concurrency limit with a counting
// semaphore. A slot is acquired before a task is admitted and released
// only when the task reaches a terminal outcome, so at most limit
// tasks are ever in flight.
type workerScheduler struct {
	schedCore
}

func (s *workerScheduler) Run(ctx context.Context, src Source, deliver func(task.Outcome)) error {
	sem := make(chan struct{}, s.limit)
	var wg sync.WaitGroup

	s.logger.Info("scheduler starting",
		"strategy", string(StrategyWorkers),
		"limit", s.limit,
	)

	for {
		t, ok := src.Next()
		if !ok {
			break
		}

		if ctx.Err() != nil {
			deliver(cancelledOutcome(t))
			drainCancelled(src, deliver)
			wg.Wait()
			return ctx.Err()
		}

		if s.pacer != nil {
			if err := s.pacer.Wait(ctx); err != nil {
				deliver(cancelledOutcome(t))
				drainCancelled(src, deliver)
				wg.Wait()
				return err
			}
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			deliver(cancelledOutcome(t))
			drainCancelled(src, deliver)
			wg.Wait()
			return ctx.Err()
		}

		s.trackAdmit()
		wg.Add(1)
		go func(t *task.Task) {
			defer wg.Done()
			defer func() {
				s.trackDone()
				<-sem
			}()
			deliver(s.execute(ctx, t))
		}(t)
	}

	wg.Wait()
	return nil
}

func (s *workerScheduler) Peak() int {
	return s.peakValue()
}
