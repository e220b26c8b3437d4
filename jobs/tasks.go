package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity re-checks every ledger aggregate against its
	// entry chain.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskStockIntegrity re-checks every product quantity against its
	// movement chain.
	TaskStockIntegrity = "stock:integrity"
)

// NewLedgerIntegrityTask constructs the ledger scan task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewStockIntegrityTask constructs the stock scan task.
func NewStockIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskStockIntegrity, nil)
}
