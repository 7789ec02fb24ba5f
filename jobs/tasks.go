package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans posted journal entries for debit/credit drift.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskLowStockScan reports products at or below their reorder threshold.
	TaskLowStockScan = "inventory:low_stock"
)

// NewLedgerIntegrityTask constructs the integrity scan task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}
