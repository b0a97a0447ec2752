package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/expertmarket/settlement/internal/constants"
	"github.com/expertmarket/settlement/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupPaymentRepositoryTest(t *testing.T) (*GormPaymentRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Payment{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewPaymentRepository(db), db
}

func seedPayment(t *testing.T, repo *GormPaymentRepository, orderID uint, kind, processor, status, idemKey string) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		OrderID:        &orderID,
		Kind:           kind,
		Processor:      processor,
		IdempotencyKey: idemKey,
		Amount:         models.NewMoneyFromCents(10000),
		Currency:       "USD",
		Status:         status,
	}
	if err := repo.Create(payment); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return payment
}

func TestPaymentRepositoryGetByIdempotencyKey(t *testing.T) {
	repo, _ := setupPaymentRepositoryTest(t)
	created := seedPayment(t, repo, 1, constants.PaymentKindCharge, constants.ProcessorStripe, constants.ChargeStatusSucceeded, "order-1-charge")

	found, err := repo.GetByIdempotencyKey("order-1-charge")
	if err != nil {
		t.Fatalf("get by idempotency key failed: %v", err)
	}
	if found == nil || found.ID != created.ID {
		t.Fatalf("expected payment %d, got %+v", created.ID, found)
	}

	missing, err := repo.GetByIdempotencyKey("does-not-exist")
	if err != nil {
		t.Fatalf("missing key should not error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing key, got %+v", missing)
	}
}

func TestPaymentRepositoryListFilters(t *testing.T) {
	repo, _ := setupPaymentRepositoryTest(t)
	seedPayment(t, repo, 1, constants.PaymentKindCharge, constants.ProcessorStripe, constants.ChargeStatusSucceeded, "k1")
	seedPayment(t, repo, 1, constants.PaymentKindRefund, constants.ProcessorStripe, constants.ChargeStatusSucceeded, "k2")
	seedPayment(t, repo, 2, constants.PaymentKindCharge, constants.ProcessorMpesa, constants.ChargeStatusPending, "k3")

	payments, total, err := repo.List(PaymentListFilter{OrderID: 1, Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("list by order failed: %v", err)
	}
	if total != 2 || len(payments) != 2 {
		t.Fatalf("order filter want 2 rows, got total=%d len=%d", total, len(payments))
	}

	payments, total, err = repo.List(PaymentListFilter{Processor: constants.ProcessorMpesa, Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("list by processor failed: %v", err)
	}
	if total != 1 || payments[0].Status != constants.ChargeStatusPending {
		t.Fatalf("processor filter mismatch: total=%d", total)
	}

	payments, total, err = repo.List(PaymentListFilter{Kind: constants.PaymentKindRefund, Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("list by kind failed: %v", err)
	}
	if total != 1 || payments[0].IdempotencyKey != "k2" {
		t.Fatalf("kind filter mismatch: total=%d", total)
	}
}

func TestPaymentRepositoryListPagination(t *testing.T) {
	repo, _ := setupPaymentRepositoryTest(t)
	for i := 0; i < 5; i++ {
		seedPayment(t, repo, 1, constants.PaymentKindCharge, constants.ProcessorStripe, constants.ChargeStatusSucceeded, fmt.Sprintf("page-%d", i))
	}

	payments, total, err := repo.List(PaymentListFilter{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("list page failed: %v", err)
	}
	if total != 5 {
		t.Fatalf("total want 5 got %d", total)
	}
	if len(payments) != 2 {
		t.Fatalf("page size want 2 got %d", len(payments))
	}
	// id desc 排序：第二页应为第 3、2 条
	if payments[0].IdempotencyKey != "page-2" || payments[1].IdempotencyKey != "page-1" {
		t.Fatalf("unexpected page content: %s, %s", payments[0].IdempotencyKey, payments[1].IdempotencyKey)
	}
}
