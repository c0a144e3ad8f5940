package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pedalworks/trainsync/internal/domain"
	"github.com/pedalworks/trainsync/internal/logger"
	"github.com/pedalworks/trainsync/internal/metrics"
	"github.com/pedalworks/trainsync/internal/provider"
	"github.com/pedalworks/trainsync/internal/repository"
)

// SweepError records one integration's failure during a sweep
type SweepError struct {
	UserID            string `json:"user_id"`
	Provider          string `json:"provider"`
	Error             string `json:"error"`
	RequiresReconnect bool   `json:"requires_reconnect"`
}

// SweepResult summarises one maintenance pass
type SweepResult struct {
	Checked   int          `json:"checked"`
	Refreshed int          `json:"refreshed"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Errors    []SweepError `json:"errors,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	Duration  string       `json:"duration"`
}

// Service runs the periodic token maintenance sweep
type Service interface {
	// Sweep refreshes every integration matching an expiry predicate.
	// Sequential and isolated: one integration's failure never stops the
	// pass, and terminal failures are flagged for the health surface.
	Sweep(ctx context.Context) (*SweepResult, error)
}

type service struct {
	integrations repository.Integration
	refresher    Refresher
	thresholds   repository.ExpiryThresholds
	now          func() time.Time
}

// Refresher is the one lifecycle operation the sweep needs
type Refresher interface {
	RefreshIntegration(ctx context.Context, integration *domain.Integration) error
}

// NewService creates a maintenance service with per-provider expiry windows
// derived from the provider table.
func NewService(integrations repository.Integration, refresher Refresher) Service {
	return &service{
		integrations: integrations,
		refresher:    refresher,
		thresholds:   ThresholdsFromSpecs(),
		now:          time.Now,
	}
}

// ThresholdsFromSpecs builds the sweep's lookahead windows from the provider
// capability table.
func ThresholdsFromSpecs() repository.ExpiryThresholds {
	thresholds := repository.ExpiryThresholds{
		AccessWithin:  make(map[string]time.Duration),
		RefreshWithin: make(map[string]time.Duration),
	}
	for _, spec := range provider.AllSpecs() {
		thresholds.AccessWithin[spec.Name] = spec.AccessRefreshThreshold
		if spec.SupportsRefreshExpiry() {
			thresholds.RefreshWithin[spec.Name] = spec.RefreshRefreshThreshold
		}
	}
	return thresholds
}

// Sweep selects integrations nearing either expiry predicate and refreshes
// each in turn. A row appears once even when it matches both predicates.
func (s *service) Sweep(ctx context.Context) (*SweepResult, error) {
	log := logger.FromContext(ctx)
	startedAt := s.now()
	metrics.MaintenanceSweeps.Inc()

	expiring, err := s.integrations.ListExpiring(ctx, startedAt, s.thresholds)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring integrations: %w", err)
	}

	result := &SweepResult{StartedAt: startedAt}
	for i := range expiring {
		if ctx.Err() != nil {
			result.Skipped = len(expiring) - result.Checked
			log.Warn("Maintenance sweep cancelled mid-pass",
				"checked", result.Checked, "skipped", result.Skipped)
			break
		}

		item := &expiring[i]
		result.Checked++

		if err := s.refresher.RefreshIntegration(ctx, item); err != nil {
			result.Failed++
			terminal := errors.Is(err, domain.ErrRequiresReconnect)
			result.Errors = append(result.Errors, SweepError{
				UserID:            item.UserID,
				Provider:          item.Provider,
				Error:             err.Error(),
				RequiresReconnect: terminal,
			})
			metrics.MaintenanceProcessed.WithLabelValues(metrics.OutcomeFailure).Inc()
			log.Warn("Sweep refresh failed",
				"user_id", item.UserID, "provider", item.Provider,
				"terminal", terminal, "error", err)
			continue
		}

		result.Refreshed++
		metrics.MaintenanceProcessed.WithLabelValues(metrics.OutcomeSuccess).Inc()
	}

	result.Duration = s.now().Sub(startedAt).String()
	log.Info("Maintenance sweep complete",
		"checked", result.Checked, "refreshed", result.Refreshed,
		"failed", result.Failed, "duration", result.Duration)
	return result, nil
}
