package worker

import (
	"context"
	"testing"

	"github.com/expertmarket/settlement/internal/provider"
	"github.com/expertmarket/settlement/internal/queue"

	"github.com/hibiken/asynq"
)

func TestHandleSettlementReconcileNilTask(t *testing.T) {
	c := NewConsumer(&provider.Container{})
	if err := c.handleSettlementReconcile(context.Background(), nil); err != nil {
		t.Fatalf("nil task must be skipped, got %v", err)
	}
}

func TestHandleSettlementReconcileMalformedPayload(t *testing.T) {
	c := NewConsumer(&provider.Container{})
	task := asynq.NewTask(queue.TaskSettlementReconcile, []byte("{not json"))
	if err := c.handleSettlementReconcile(context.Background(), task); err == nil {
		t.Fatalf("malformed payload must be retried")
	}
}

func TestHandleSettlementReconcileZeroOrderSkipped(t *testing.T) {
	c := NewConsumer(&provider.Container{})
	task, err := queue.NewSettlementReconcileTask(queue.SettlementReconcilePayload{OrderID: 0})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := c.handleSettlementReconcile(context.Background(), task); err != nil {
		t.Fatalf("zero order id must be skipped, got %v", err)
	}
}

func TestHandlePaymentQueryMissingServiceSkipped(t *testing.T) {
	c := NewConsumer(&provider.Container{})
	task, err := queue.NewPaymentQueryTask(queue.PaymentQueryPayload{PaymentID: 7, Attempt: 1})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	// 容器未装配 OrderService 时跳过而不是重试
	if err := c.handlePaymentQuery(context.Background(), task); err != nil {
		t.Fatalf("missing service must be skipped, got %v", err)
	}
}

func TestHandleEscrowSweepMissingServiceSkipped(t *testing.T) {
	c := NewConsumer(&provider.Container{})
	task, err := queue.NewEscrowExpirySweepTask(queue.EscrowExpirySweepPayload{BatchSize: 50})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := c.handleEscrowExpirySweep(context.Background(), task); err != nil {
		t.Fatalf("missing service must be skipped, got %v", err)
	}
}

func TestNewServiceRequiresEnabledQueue(t *testing.T) {
	if _, err := NewService(nil, NewConsumer(&provider.Container{})); err == nil {
		t.Fatalf("nil config must be rejected")
	}
}
