package metrics

import (
	"math/big"
	"sync"
	"testing"

	"github.com/gateway-fm/ledgerbench/internal/task"
)

func TestAggregatorConcurrentRecord(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Start()

	const total = 200
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := task.Outcome{
				TaskIndex:    i,
				AttemptsUsed: 1,
			}
			if i%4 == 0 {
				out.ErrorKind = task.KindTerminalSubmission
			} else {
				out.Succeeded = true
				out.Effect = big.NewInt(10)
			}
			agg.Record(out)
		}(i)
	}
	wg.Wait()

	sum := agg.Finalize()
	if sum.SuccessCount+sum.FailureCount != total {
		t.Fatalf("counts do not balance: %d + %d != %d",
			sum.SuccessCount, sum.FailureCount, total)
	}
	if sum.SuccessCount != 150 || sum.FailureCount != 50 {
		t.Fatalf("unexpected split: %d success, %d failure",
			sum.SuccessCount, sum.FailureCount)
	}
	if want := big.NewInt(1500); sum.AggregateEffect.Cmp(want) != 0 {
		t.Fatalf("aggregate effect = %s, want %s", sum.AggregateEffect, want)
	}
	if sum.ByKind[task.KindTerminalSubmission] != 50 {
		t.Fatalf("kind count = %d, want 50", sum.ByKind[task.KindTerminalSubmission])
	}
	if sum.AttemptsTotal != total {
		t.Fatalf("attempts = %d, want %d", sum.AttemptsTotal, total)
	}
	if sum.Duration <= 0 {
		t.Fatalf("duration not recorded")
	}
}

func TestAggregatorFailedEffectIgnored(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(task.Outcome{
		Succeeded:    false,
		ErrorKind:    task.KindChainRejection,
		AttemptsUsed: 1,
		Effect:       big.NewInt(999),
	})

	sum := agg.Finalize()
	if sum.AggregateEffect.Sign() != 0 {
		t.Fatalf("failed task contributed effect: %s", sum.AggregateEffect)
	}
}

func TestAggregatorFinalizeCopies(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(task.Outcome{Succeeded: true, AttemptsUsed: 1, Effect: big.NewInt(5)})

	sum := agg.Finalize()
	sum.AggregateEffect.SetInt64(0)
	sum.ByKind[task.KindChainRejection] = 99

	again := agg.Finalize()
	if again.AggregateEffect.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("finalize returned shared big.Int")
	}
	if len(again.ByKind) != 0 {
		t.Fatalf("finalize returned shared map")
	}
}

func TestCounter(t *testing.T) {
	var c Counter
	c.Inc()
	c.Add(4)
	if got := c.Load(); got != 5 {
		t.Fatalf("load = %d, want 5", got)
	}
	c.Reset()
	if got := c.Load(); got != 0 {
		t.Fatalf("load after reset = %d, want 0", got)
	}
}

func TestAtomicMax(t *testing.T) {
	var peak int64
	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			AtomicMax(&peak, v)
		}(i)
	}
	wg.Wait()
	if peak != 50 {
		t.Fatalf("peak = %d, want 50", peak)
	}
}

func TestAggregatorStartOptional(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(task.Outcome{Succeeded: true, AttemptsUsed: 1})
	sum := agg.Finalize()
	if sum.Duration != 0 {
		t.Fatalf("duration without Start = %s, want 0", sum.Duration)
	}
}
