// Package types holds the data structures shared between the
// benchmark runner, storage, and external consumers.
package types

import "time"

// RunReport is the persisted record of one benchmark run.
type RunReport struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	StartedAt time.Time `json:"startedAt"`

	TotalTasks       int    `json:"totalTasks"`
	ConcurrencyLimit int    `json:"concurrencyLimit"`
	Strategy         string `json:"strategy"`
	PeakConcurrency  int    `json:"peakConcurrency"`

	SuccessCount  int   `json:"successCount"`
	FailureCount  int   `json:"failureCount"`
	AttemptsTotal int   `json:"attemptsTotal"`
	DurationMs    int64 `json:"durationMs"`

	// ErrorKinds counts failures by error kind.
	ErrorKinds map[string]int `json:"errorKinds,omitempty"`

	// Ledger state around the run, decimal wei strings. big.Int does
	// not survive a float round-trip through JSON, so strings it is.
	AggregateEffect    string `json:"aggregateEffect"`
	InitialState       string `json:"initialState"`
	ExpectedState      string `json:"expectedState"`
	FinalObservedState string `json:"finalObservedState"`
	Verified           bool   `json:"verified"`
}
