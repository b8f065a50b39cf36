package http

import (
	"context"

	"navpulse/internal/services"
	"navpulse/pkg/contracts/domain"
)

// NAVServiceInterface is the part of services.NAVService the handlers use.
type NAVServiceInterface interface {
	Run(ctx context.Context, opts services.RunOptions) (*services.RunReport, error)
	LastRun() (*services.RunReport, bool)
	Running() bool
	DefaultRange(ctx context.Context) (domain.DateRange, error)
	Coverage(ctx context.Context, r domain.DateRange) (*services.CoverageReport, error)
	Stats(ctx context.Context) (domain.StoreStats, error)
}
