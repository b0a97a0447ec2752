package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/expertmarket/settlement/internal/logger"
	"github.com/expertmarket/settlement/internal/provider"
	"github.com/expertmarket/settlement/internal/queue"
	"github.com/expertmarket/settlement/internal/service"

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
	mux.HandleFunc(queue.TaskSettlementReconcile, c.handleSettlementReconcile)
	mux.HandleFunc(queue.TaskPaymentQuery, c.handlePaymentQuery)
	mux.HandleFunc(queue.TaskEscrowExpirySweep, c.handleEscrowExpirySweep)
}

// handleSettlementReconcile 支付成功后的后置账务：优惠核销、推广归因、托管入金、订单推进。
// 账务只重试不回滚，可跳过的业务状态返回 nil 终止重试。
func (c *Consumer) handleSettlementReconcile(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_settlement_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.SettlementReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_settlement_reconcile_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_settlement_reconcile_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.OrderService == nil {
		logger.Warnw("worker_settlement_reconcile_skip_order_service_nil", "order_id", payload.OrderID)
		return nil
	}
	if err := c.OrderService.SettleOrder(payload.OrderID); err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			logger.Debugw("worker_settlement_reconcile_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		case errors.Is(err, service.ErrPaymentStatusUnsettle):
			logger.Debugw("worker_settlement_reconcile_skip_unpaid", "order_id", payload.OrderID)
			return nil
		default:
			logger.Warnw("worker_settlement_reconcile_failed", "order_id", payload.OrderID, "error", err)
			return err
		}
	}
	return nil
}

// handlePaymentQuery 轮询异步确认型渠道的支付终态
func (c *Consumer) handlePaymentQuery(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_query_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentQueryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_query_unmarshal_failed", "error", err)
		return err
	}
	if payload.PaymentID == 0 {
		logger.Debugw("worker_payment_query_skip_invalid_payload", "payment_id", payload.PaymentID)
		return nil
	}
	if c.OrderService == nil {
		logger.Warnw("worker_payment_query_skip_order_service_nil", "payment_id", payload.PaymentID)
		return nil
	}
	if err := c.OrderService.HandlePaymentQuery(ctx, payload.PaymentID, payload.Attempt); err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			logger.Debugw("worker_payment_query_skip_payment_not_found", "payment_id", payload.PaymentID)
			return nil
		case errors.Is(err, service.ErrProcessorNotFound):
			logger.Warnw("worker_payment_query_skip_processor_missing", "payment_id", payload.PaymentID, "error", err)
			return nil
		default:
			logger.Warnw("worker_payment_query_failed", "payment_id", payload.PaymentID, "attempt", payload.Attempt, "error", err)
			return err
		}
	}
	return nil
}

// handleEscrowExpirySweep 批量取消到期未放款的托管并退款
func (c *Consumer) handleEscrowExpirySweep(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_escrow_sweep_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.EscrowExpirySweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_escrow_sweep_unmarshal_failed", "error", err)
		return err
	}
	if c.EscrowService == nil {
		logger.Warnw("worker_escrow_sweep_skip_escrow_service_nil")
		return nil
	}
	processed, err := c.EscrowService.ExpireSweep(ctx, time.Now(), payload.BatchSize)
	if err != nil {
		logger.Warnw("worker_escrow_sweep_failed", "processed", processed, "error", err)
		return err
	}
	if processed > 0 {
		logger.Infow("worker_escrow_sweep_done", "processed", processed)
	}
	return nil
}
