package worker

import (
	"context"
	"sync/atomic"

	"github.com/pedalworks/trainsync/internal/logger"
	"github.com/pedalworks/trainsync/internal/maintenance"
)

// MaintenanceWorker wraps the maintenance sweep as a pool job. At most one
// sweep runs at a time; a tick that arrives mid-sweep is skipped.
type MaintenanceWorker struct {
	maintenance maintenance.Service
	running     atomic.Bool
}

// NewMaintenanceWorker creates a new MaintenanceWorker
func NewMaintenanceWorker(svc maintenance.Service) *MaintenanceWorker {
	return &MaintenanceWorker{maintenance: svc}
}

// Process runs one maintenance sweep
func (w *MaintenanceWorker) Process(ctx context.Context) error {
	log := logger.FromContext(ctx)

	if !w.running.CompareAndSwap(false, true) {
		log.Warn(LogMsgMaintenanceSkipped)
		return nil
	}
	defer w.running.Store(false)

	log.Info(LogMsgMaintenanceStarting)
	result, err := w.maintenance.Sweep(ctx)
	if err != nil {
		log.Error(LogMsgMaintenanceFailed, "error", err)
		return err
	}

	log.Info(LogMsgMaintenanceCompleted,
		"checked", result.Checked,
		"refreshed", result.Refreshed,
		"failed", result.Failed,
		"duration", result.Duration)
	return nil
}
