package health

import (
	"context"

	"github.com/opencampus/tutordex/internal/domain"
)

// StorePinger checks chunk store availability and exposes corpus counts.
type StorePinger interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (domain.CorpusStats, error)
}

// ModelChecker checks model provider availability.
type ModelChecker interface {
	HealthCheck(ctx context.Context) error
}
