// Package storage persists benchmark run reports.
package storage

import (
	"context"
	"errors"

	"github.com/gateway-fm/ledgerbench/pkg/types"
)

// ErrNotFound is returned when a run report does not exist.
var ErrNotFound = errors.New("run report not found")

// Storage defines the persistence interface for run history.
type Storage interface {
	SaveReport(ctx context.Context, report *types.RunReport) error
	GetReport(ctx context.Context, id string) (*types.RunReport, error)
	ListReports(ctx context.Context, limit, offset int) ([]*types.RunReport, error)
	DeleteReport(ctx context.Context, id string) error
	Close() error
}
