// Package health aggregates readiness checks over the chunk store and
// the model provider, plus corpus counts for operators.
package health

import (
	"context"

	"github.com/opencampus/tutordex/internal/domain"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results and corpus counts.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	Corpus domain.CorpusStats
}

// Service coordinates health checks.
type Service struct {
	store StorePinger
	model ModelChecker
}

// New creates a Service. model can be nil.
func New(store StorePinger, model ModelChecker) *Service {
	return &Service{store: store, model: model}
}

// Check runs health checks against all components. Corpus counts are
// best effort; a store that pings but cannot count is still reported
// degraded through the store check.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	var corpus domain.CorpusStats
	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = CheckError
	} else if corpus, err = s.store.Stats(ctx); err != nil {
		checks["store"] = CheckError
	} else {
		checks["store"] = CheckOK
	}

	if s.model != nil {
		if err := s.model.HealthCheck(ctx); err != nil {
			checks["model"] = CheckError
		} else {
			checks["model"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, Corpus: corpus}
}
