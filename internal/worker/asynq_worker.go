package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/tipster-link/internal/logger"
	"github.com/tipster-link/internal/provider"
	"github.com/tipster-link/internal/queue"
	"github.com/tipster-link/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPayoutGenerate, c.handlePayoutGenerate)
	mux.HandleFunc(queue.TaskConversionBatchImport, c.handleConversionBatchImport)
}

func (c *Consumer) handlePayoutGenerate(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payout_generate_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PayoutGeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payout_generate_unmarshal_failed", "error", err)
		return err
	}
	if payload.Period == "" {
		logger.Debugw("worker_payout_generate_skip_invalid_payload", "period", payload.Period)
		return nil
	}
	if c.PayoutService == nil {
		logger.Warnw("worker_payout_generate_skip_service_nil", "period", payload.Period)
		return nil
	}
	payouts, err := c.PayoutService.GenerateForPeriod(payload.Period)
	if err != nil {
		if errors.Is(err, service.ErrPeriodInvalid) {
			logger.Debugw("worker_payout_generate_skip_invalid_period", "period", payload.Period)
			return nil
		}
		logger.Warnw("worker_payout_generate_failed", "period", payload.Period, "actor", payload.Actor, "error", err)
		return err
	}
	logger.Infow("worker_payout_generate_done", "period", payload.Period, "actor", payload.Actor, "created", len(payouts))
	return nil
}

func (c *Consumer) handleConversionBatchImport(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_batch_import_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ConversionBatchImportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_batch_import_unmarshal_failed", "error", err)
		return err
	}
	if payload.BatchID == 0 || len(payload.Rows) == 0 {
		logger.Debugw("worker_batch_import_skip_invalid_payload", "batch_id", payload.BatchID, "rows", len(payload.Rows))
		return nil
	}
	if c.BatchImportService == nil {
		logger.Warnw("worker_batch_import_skip_service_nil", "batch_id", payload.BatchID)
		return nil
	}
	rows := make([]map[string]string, 0, len(payload.Rows))
	for _, row := range payload.Rows {
		rows = append(rows, map[string]string(row))
	}
	result, err := c.BatchImportService.ProcessBatch(ctx, payload.BatchID, payload.ColumnMapping, rows)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrImportBatchNotFound):
			logger.Debugw("worker_batch_import_skip_batch_not_found", "batch_id", payload.BatchID)
			return nil
		case errors.Is(err, service.ErrInvalidState):
			logger.Debugw("worker_batch_import_skip_finished", "batch_id", payload.BatchID)
			return nil
		default:
			logger.Warnw("worker_batch_import_failed", "batch_id", payload.BatchID, "error", err)
			return err
		}
	}
	logger.Infow("worker_batch_import_done",
		"batch_id", payload.BatchID,
		"processed_rows", result.ProcessedRows,
		"error_rows", result.ErrorRows,
		"duplicate_rows", result.DuplicateRows,
		"unresolved_rows", result.UnresolvedRows,
	)
	return nil
}
