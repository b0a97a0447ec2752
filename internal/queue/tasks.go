package queue

import (
	"encoding/json"

	"github.com/expertmarket/settlement/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskSettlementReconcile 支付成功后置结算任务
	TaskSettlementReconcile = constants.TaskSettlementReconcile
	// TaskEscrowExpirySweep 托管到期清理任务
	TaskEscrowExpirySweep = constants.TaskEscrowExpirySweep
	// TaskPaymentQuery 支付结果轮询任务
	TaskPaymentQuery = constants.TaskPaymentQuery
)

// SettlementReconcilePayload 后置结算任务载荷
type SettlementReconcilePayload struct {
	OrderID uint `json:"order_id"`
}

// EscrowExpirySweepPayload 托管到期清理任务载荷
type EscrowExpirySweepPayload struct {
	BatchSize int `json:"batch_size"`
}

// PaymentQueryPayload 支付结果轮询任务载荷
type PaymentQueryPayload struct {
	PaymentID uint `json:"payment_id"`
	Attempt   int  `json:"attempt"`
}

// NewSettlementReconcileTask 创建后置结算任务
func NewSettlementReconcileTask(payload SettlementReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementReconcile, body), nil
}

// NewEscrowExpirySweepTask 创建托管到期清理任务
func NewEscrowExpirySweepTask(payload EscrowExpirySweepPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEscrowExpirySweep, body), nil
}

// NewPaymentQueryTask 创建支付结果轮询任务
func NewPaymentQueryTask(payload PaymentQueryPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentQuery, body), nil
}
