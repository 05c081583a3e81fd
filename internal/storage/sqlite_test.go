package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gateway-fm/ledgerbench/pkg/types"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "bench.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(started time.Time) *types.RunReport {
	return &types.RunReport{
		Name:             "sweep-l8",
		StartedAt:        started,
		TotalTasks:       100,
		ConcurrencyLimit: 8,
		Strategy:         "workers",
		PeakConcurrency:  8,
		SuccessCount:     97,
		FailureCount:     3,
		AttemptsTotal:    112,
		DurationMs:       4521,
		ErrorKinds: map[string]int{
			"chain_rejection":     1,
			"terminal_submission": 2,
		},
		AggregateEffect:    "97",
		InitialState:       "1000",
		ExpectedState:      "1097",
		FinalObservedState: "1097",
		Verified:           true,
	}
}

func TestSaveAndGetReport(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	report := sampleReport(time.Now().UTC().Truncate(time.Second))
	if err := s.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if report.ID == "" {
		t.Fatal("SaveReport did not assign an ID")
	}

	got, err := s.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.SuccessCount != 97 || got.FailureCount != 3 {
		t.Fatalf("counts = %d/%d", got.SuccessCount, got.FailureCount)
	}
	if got.AggregateEffect != "97" || got.ExpectedState != "1097" {
		t.Fatalf("states = %q / %q", got.AggregateEffect, got.ExpectedState)
	}
	if !got.Verified {
		t.Fatal("verified flag lost")
	}
	if got.ErrorKinds["chain_rejection"] != 1 || got.ErrorKinds["terminal_submission"] != 2 {
		t.Fatalf("error kinds = %v", got.ErrorKinds)
	}
}

func TestGetReportNotFound(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.GetReport(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestListReportsNewestFirst(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		report := sampleReport(base.Add(time.Duration(i) * time.Minute))
		report.ConcurrencyLimit = i + 1
		if err := s.SaveReport(ctx, report); err != nil {
			t.Fatalf("SaveReport %d: %v", i, err)
		}
	}

	reports, err := s.ListReports(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
	if reports[0].ConcurrencyLimit != 3 {
		t.Fatalf("newest report limit = %d, want 3", reports[0].ConcurrencyLimit)
	}

	page, err := s.ListReports(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListReports paged: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("page = %d reports, want 1", len(page))
	}
}

func TestDeleteReport(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	report := sampleReport(time.Now().UTC())
	if err := s.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if err := s.DeleteReport(ctx, report.ID); err != nil {
		t.Fatalf("DeleteReport: %v", err)
	}
	if _, err := s.GetReport(ctx, report.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v after delete, want ErrNotFound", err)
	}
	if err := s.DeleteReport(ctx, report.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestReportWithoutErrorKinds(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	report := sampleReport(time.Now().UTC())
	report.ErrorKinds = nil
	if err := s.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	got, err := s.GetReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if len(got.ErrorKinds) != 0 {
		t.Fatalf("error kinds = %v, want empty", got.ErrorKinds)
	}
}
