package worker

// ============================================================================
// Log Messages - Worker Pool
// ============================================================================

// LogMsgWorkerJobFailed is logged when a worker fails to process a job
const LogMsgWorkerJobFailed = "Worker job failed"

// ============================================================================
// Log Messages - Maintenance Worker
// ============================================================================

// Log messages for maintenance worker operations
const (
	LogMsgMaintenanceStarting  = "Maintenance sweep starting"
	LogMsgMaintenanceCompleted = "Maintenance sweep completed"
	LogMsgMaintenanceFailed    = "Maintenance sweep failed"
	LogMsgMaintenanceSkipped   = "Maintenance sweep skipped, previous run still in progress"
)

// ============================================================================
// Test Configuration
// ============================================================================

// Test pool configuration values used in pool_test.go
const (
	TestWorkerCount           = 2
	TestQueueSize             = 10
	TestWorkerProcessWaitTime = 100 // milliseconds
)
