package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/expertmarket/settlement/internal/constants"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/payment"
	"github.com/expertmarket/settlement/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type escrowFixture struct {
	svc       *EscrowService
	db        *gorm.DB
	processor *fakeProcessor
}

func setupEscrowServiceTest(t *testing.T) *escrowFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:escrow_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.EscrowTransaction{},
		&models.Payment{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	processor := &fakeProcessor{name: "stripe"}
	registry := payment.NewRegistry()
	registry.Register(processor)

	escrowRepo := repository.NewEscrowRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	userRepo := repository.NewUserRepository(db)
	svc := NewEscrowService(escrowRepo, paymentRepo, userRepo, registry, 30, "USD")
	return &escrowFixture{svc: svc, db: db, processor: processor}
}

func fundedEscrow(t *testing.T, f *escrowFixture, amountCents int64) *models.EscrowTransaction {
	t.Helper()
	escrow, err := f.svc.CreateEscrow(CreateEscrowInput{
		SenderID:      1,
		RecipientID:   2,
		Amount:        models.NewMoneyFromCents(amountCents),
		PaymentMethod: "stripe",
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}
	escrow, _, err = f.svc.Fund(FundEscrowInput{
		EscrowID:       escrow.ID,
		ActorID:        1,
		MethodRef:      "pm_test",
		IdempotencyKey: fmt.Sprintf("fund-%d", escrow.ID),
	})
	if err != nil {
		t.Fatalf("fund escrow failed: %v", err)
	}
	if escrow.Status != constants.EscrowStatusFunded {
		t.Fatalf("expected funded, got %s", escrow.Status)
	}
	return escrow
}

func TestEscrowLifecycleCreateFundRelease(t *testing.T) {
	f := setupEscrowServiceTest(t)
	escrow := fundedEscrow(t, f, 10000)

	released, err := f.svc.Release(ReleaseEscrowInput{EscrowID: escrow.ID, ActorID: 1})
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released.Status != constants.EscrowStatusReleased {
		t.Fatalf("expected released, got %s", released.Status)
	}
	if released.RemainingAmount() != 0 {
		t.Fatalf("expected zero remaining, got %d", released.RemainingAmount().Cents())
	}
}

func TestEscrowFundOnlySender(t *testing.T) {
	f := setupEscrowServiceTest(t)
	escrow, err := f.svc.CreateEscrow(CreateEscrowInput{
		SenderID:      1,
		RecipientID:   2,
		Amount:        models.NewMoneyFromCents(5000),
		PaymentMethod: "stripe",
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}
	if _, _, err := f.svc.Fund(FundEscrowInput{
		EscrowID:       escrow.ID,
		ActorID:        2,
		IdempotencyKey: "fund-wrong-actor",
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestEscrowPartialReleaseKeepsFunded(t *testing.T) {
	f := setupEscrowServiceTest(t)
	escrow := fundedEscrow(t, f, 50000)

	partial := models.NewMoneyFromCents(20000)
	updated, err := f.svc.Release(ReleaseEscrowInput{EscrowID: escrow.ID, ActorID: 1, Amount: &partial})
	if err != nil {
		t.Fatalf("partial release failed: %v", err)
	}
	if updated.Status != constants.EscrowStatusFunded {
		t.Fatalf("partial release must keep funded, got %s", updated.Status)
	}
	if updated.RemainingAmount().Cents() != 30000 {
		t.Fatalf("expected remaining 30000, got %d", updated.RemainingAmount().Cents())
	}

	// 超过余额的放款必须被拒绝
	tooMuch := models.NewMoneyFromCents(35000)
	if _, err := f.svc.Release(ReleaseEscrowInput{EscrowID: escrow.ID, ActorID: 1, Amount: &tooMuch}); !errors.Is(err, ErrEscrowAmountInvalid) {
		t.Fatalf("expected amount invalid, got %v", err)
	}

	rest := models.NewMoneyFromCents(30000)
	final, err := f.svc.Release(ReleaseEscrowInput{EscrowID: escrow.ID, ActorID: 1, Amount: &rest})
	if err != nil {
		t.Fatalf("final release failed: %v", err)
	}
	if final.Status != constants.EscrowStatusReleased {
		t.Fatalf("expected released after remaining cleared, got %s", final.Status)
	}
}

func TestEscrowReleaseRequiresFundedState(t *testing.T) {
	f := setupEscrowServiceTest(t)
	escrow, err := f.svc.CreateEscrow(CreateEscrowInput{
		SenderID:      1,
		RecipientID:   2,
		Amount:        models.NewMoneyFromCents(5000),
		PaymentMethod: "stripe",
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}
	if _, err := f.svc.Release(ReleaseEscrowInput{EscrowID: escrow.ID, ActorID: 1}); !errors.Is(err, ErrEscrowStateConflict) {
		t.Fatalf("release from created must conflict, got %v", err)
	}

	released := fundedEscrow(t, f, 1000)
	if _, err := f.svc.Release(ReleaseEscrowInput{EscrowID: released.ID, ActorID: 1}); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	// 已放完的托管再次放款必须冲突
	if _, err := f.svc.Release(ReleaseEscrowInput{EscrowID: released.ID, ActorID: 1}); !errors.Is(err, ErrEscrowStateConflict) {
		t.Fatalf("double release must conflict, got %v", err)
	}
}

func TestEscrowDisputeAndSplitResolution(t *testing.T) {
	f := setupEscrowServiceTest(t)
	escrow := fundedEscrow(t, f, 10001)

	disputed, err := f.svc.OpenDispute(escrow.ID, 2, "work not delivered", []string{"https://evidence.example.com/1"})
	if err != nil {
		t.Fatalf("open dispute failed: %v", err)
	}
	if disputed.Status != constants.EscrowStatusDisputed {
		t.Fatalf("expected disputed, got %s", disputed.Status)
	}

	// 争议中禁止放款
	if _, err := f.svc.Release(ReleaseEscrowInput{EscrowID: escrow.ID, ActorID: 1}); !errors.Is(err, ErrEscrowStateConflict) {
		t.Fatalf("release during dispute must conflict, got %v", err)
	}

	resolved, err := f.svc.ResolveDispute(ResolveDisputeInput{
		EscrowID:   escrow.ID,
		ResolverID: 99,
		Resolution: constants.ResolutionSplit,
		SplitRatio: decimal.NewFromFloat(0.6),
	})
	if err != nil {
		t.Fatalf("resolve dispute failed: %v", err)
	}
	if resolved.Status != constants.EscrowStatusResolved {
		t.Fatalf("expected resolved, got %s", resolved.Status)
	}
	// 收款方 round(10001*0.6)=6001，付款方取精确余额 4000
	if resolved.ReleasedAmount.Cents() != 6001 {
		t.Fatalf("expected recipient share 6001, got %d", resolved.ReleasedAmount.Cents())
	}
	if resolved.RefundedAmount.Cents() != 4000 {
		t.Fatalf("expected sender share 4000, got %d", resolved.RefundedAmount.Cents())
	}
	if resolved.ReleasedAmount+resolved.RefundedAmount != resolved.Amount {
		t.Fatalf("shares must sum to escrow amount exactly")
	}

	// resolved 是终态
	if _, err := f.svc.ResolveDispute(ResolveDisputeInput{
		EscrowID:   escrow.ID,
		ResolverID: 99,
		Resolution: constants.ResolutionRelease,
	}); !errors.Is(err, ErrEscrowNotDisputed) {
		t.Fatalf("resolved escrow must reject further resolutions, got %v", err)
	}
}

func TestEscrowResolveOnlyFromDisputed(t *testing.T) {
	f := setupEscrowServiceTest(t)
	escrow := fundedEscrow(t, f, 5000)

	if _, err := f.svc.ResolveDispute(ResolveDisputeInput{
		EscrowID:   escrow.ID,
		ResolverID: 99,
		Resolution: constants.ResolutionRefund,
	}); !errors.Is(err, ErrEscrowNotDisputed) {
		t.Fatalf("resolve requires disputed state, got %v", err)
	}
}

func TestEscrowCancelBeforeAndAfterFunding(t *testing.T) {
	f := setupEscrowServiceTest(t)
	created, err := f.svc.CreateEscrow(CreateEscrowInput{
		SenderID:      1,
		RecipientID:   2,
		Amount:        models.NewMoneyFromCents(5000),
		PaymentMethod: "stripe",
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}
	cancelled, err := f.svc.Cancel(context.Background(), created.ID, 2, "changed mind")
	if err != nil {
		t.Fatalf("cancel created failed: %v", err)
	}
	if cancelled.Status != constants.EscrowStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	funded := fundedEscrow(t, f, 8000)
	// funded 态仅付款方可取消
	if _, err := f.svc.Cancel(context.Background(), funded.ID, 2, "nope"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("recipient cancel of funded must be forbidden, got %v", err)
	}
	refunded, err := f.svc.Cancel(context.Background(), funded.ID, 1, "order fell through")
	if err != nil {
		t.Fatalf("cancel funded failed: %v", err)
	}
	if refunded.Status != constants.EscrowStatusCancelled {
		t.Fatalf("expected cancelled, got %s", refunded.Status)
	}
	if refunded.RefundedAmount.Cents() != 8000 {
		t.Fatalf("full amount must be refunded, got %d", refunded.RefundedAmount.Cents())
	}

	var refunds []models.Payment
	if err := f.db.Where("escrow_id = ? AND kind = ?", funded.ID, constants.PaymentKindRefund).Find(&refunds).Error; err != nil {
		t.Fatalf("load refunds failed: %v", err)
	}
	if len(refunds) != 1 {
		t.Fatalf("expected one refund payment, got %d", len(refunds))
	}
}

func TestEscrowExpireSweepIdempotent(t *testing.T) {
	f := setupEscrowServiceTest(t)
	escrow := fundedEscrow(t, f, 7000)
	past := time.Now().Add(-time.Hour)
	if err := f.db.Model(&models.EscrowTransaction{}).Where("id = ?", escrow.ID).
		Update("expires_at", past).Error; err != nil {
		t.Fatalf("backdate expiry failed: %v", err)
	}

	processed, err := f.svc.ExpireSweep(context.Background(), time.Now(), 50)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed, got %d", processed)
	}

	// 重复扫描不得二次处理
	processed, err = f.svc.ExpireSweep(context.Background(), time.Now(), 50)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if processed != 0 {
		t.Fatalf("second sweep must be a no-op, got %d", processed)
	}

	var reloaded models.EscrowTransaction
	if err := f.db.First(&reloaded, escrow.ID).Error; err != nil {
		t.Fatalf("reload escrow failed: %v", err)
	}
	if reloaded.Status != constants.EscrowStatusCancelled {
		t.Fatalf("expired escrow must be cancelled, got %s", reloaded.Status)
	}
	var refunds int64
	if err := f.db.Model(&models.Payment{}).Where("escrow_id = ? AND kind = ?", escrow.ID, constants.PaymentKindRefund).Count(&refunds).Error; err != nil {
		t.Fatalf("count refunds failed: %v", err)
	}
	if refunds != 1 {
		t.Fatalf("expected exactly one refund, got %d", refunds)
	}
}

func TestEscrowFundIdempotentReplay(t *testing.T) {
	f := setupEscrowServiceTest(t)
	escrow, err := f.svc.CreateEscrow(CreateEscrowInput{
		SenderID:      1,
		RecipientID:   2,
		Amount:        models.NewMoneyFromCents(5000),
		PaymentMethod: "stripe",
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}
	input := FundEscrowInput{
		EscrowID:       escrow.ID,
		ActorID:        1,
		MethodRef:      "pm_test",
		IdempotencyKey: "fund-replay-1",
	}
	if _, _, err := f.svc.Fund(input); err != nil {
		t.Fatalf("fund failed: %v", err)
	}
	_, replayed, err := f.svc.Fund(input)
	if err != nil {
		t.Fatalf("replay fund failed: %v", err)
	}
	if replayed == nil || replayed.Status != constants.ChargeStatusSucceeded {
		t.Fatalf("replay must return the original charge, got %+v", replayed)
	}
	if f.processor.chargeCalls != 1 {
		t.Fatalf("replay must not charge again, calls=%d", f.processor.chargeCalls)
	}
}
