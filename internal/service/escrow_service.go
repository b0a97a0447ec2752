package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/expertmarket/settlement/internal/constants"
	"github.com/expertmarket/settlement/internal/logger"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/payment"
	"github.com/expertmarket/settlement/internal/repository"

	"github.com/shopspring/decimal"
)

// EscrowService 托管交易服务
// 状态机：created → funded → released/cancelled/disputed，disputed 仅经裁决进入 resolved
type EscrowService struct {
	escrowRepo        repository.EscrowRepository
	paymentRepo       repository.PaymentRepository
	userRepo          repository.UserRepository
	registry          *payment.Registry
	defaultExpiryDays int
	currency          string
}

// NewEscrowService 创建托管交易服务
func NewEscrowService(escrowRepo repository.EscrowRepository, paymentRepo repository.PaymentRepository, userRepo repository.UserRepository, registry *payment.Registry, defaultExpiryDays int, currency string) *EscrowService {
	if defaultExpiryDays <= 0 {
		defaultExpiryDays = 30
	}
	return &EscrowService{
		escrowRepo:        escrowRepo,
		paymentRepo:       paymentRepo,
		userRepo:          userRepo,
		registry:          registry,
		defaultExpiryDays: defaultExpiryDays,
		currency:          currency,
	}
}

// CreateEscrowInput 创建托管交易输入
type CreateEscrowInput struct {
	SenderID          uint
	RecipientID       uint
	Amount            models.Money
	Currency          string
	ReleaseConditions string
	PaymentMethod     string
	OrderID           *uint
	ExpiresAt         *time.Time
}

// FundEscrowInput 托管注资输入
type FundEscrowInput struct {
	EscrowID       uint
	ActorID        uint
	MethodRef      string
	IdempotencyKey string
	Context        context.Context
}

// ReleaseEscrowInput 托管放款输入
type ReleaseEscrowInput struct {
	EscrowID uint
	ActorID  uint
	// Amount 为空表示全额放款剩余金额
	Amount *models.Money
}

// ResolveDisputeInput 争议裁决输入
type ResolveDisputeInput struct {
	EscrowID   uint
	ResolverID uint
	Resolution string
	// SplitRatio 为 split 裁决时收款方占比（0-1）
	SplitRatio decimal.Decimal
	Context    context.Context
}

// CreateEscrow 创建托管交易（created 态，等待注资）
func (s *EscrowService) CreateEscrow(input CreateEscrowInput) (*models.EscrowTransaction, error) {
	if input.SenderID == 0 || input.RecipientID == 0 || input.SenderID == input.RecipientID {
		return nil, ErrForbidden
	}
	if input.Amount <= 0 {
		return nil, ErrEscrowAmountInvalid
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}
	expiresAt := input.ExpiresAt
	if expiresAt == nil {
		t := time.Now().AddDate(0, 0, s.defaultExpiryDays)
		expiresAt = &t
	}
	escrow := &models.EscrowTransaction{
		EscrowNo:          generateEscrowNo(),
		SenderID:          input.SenderID,
		RecipientID:       input.RecipientID,
		OrderID:           input.OrderID,
		Amount:            input.Amount,
		Currency:          currency,
		Status:            constants.EscrowStatusCreated,
		ReleaseConditions: strings.TrimSpace(input.ReleaseConditions),
		PaymentMethod:     strings.ToLower(strings.TrimSpace(input.PaymentMethod)),
		ExpiresAt:         expiresAt,
	}
	if err := s.escrowRepo.Create(escrow); err != nil {
		return nil, err
	}
	return escrow, nil
}

// Fund 付款方注资，扣款确认成功后进入 funded
// 扣款不做自动重试；处理器返回 redirect_required 一律视为未结清
func (s *EscrowService) Fund(input FundEscrowInput) (*models.EscrowTransaction, *models.Payment, error) {
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return nil, nil, ErrIdempotencyRequired
	}
	escrow, err := s.escrowRepo.GetByID(input.EscrowID)
	if err != nil {
		return nil, nil, err
	}
	if escrow == nil {
		return nil, nil, ErrEscrowNotFound
	}
	if escrow.SenderID != input.ActorID {
		return nil, nil, ErrForbidden
	}

	// 幂等重放：同一幂等键的扣款直接返回已有流水
	if existing, err := s.paymentRepo.GetByIdempotencyKey(input.IdempotencyKey); err != nil {
		return nil, nil, err
	} else if existing != nil {
		if existing.EscrowID == nil || *existing.EscrowID != escrow.ID {
			return nil, nil, ErrIdempotencyConflict
		}
		return escrow, existing, nil
	}
	if escrow.Status != constants.EscrowStatusCreated {
		return nil, nil, ErrEscrowStateConflict
	}

	processor, err := s.registry.Get(escrow.PaymentMethod)
	if err != nil {
		return nil, nil, ErrProcessorNotFound
	}

	pay := &models.Payment{
		EscrowID:       &escrow.ID,
		Kind:           constants.PaymentKindCharge,
		Processor:      processor.Name(),
		MethodRef:      strings.TrimSpace(input.MethodRef),
		IdempotencyKey: strings.TrimSpace(input.IdempotencyKey),
		Amount:         escrow.Amount,
		Currency:       escrow.Currency,
		Status:         constants.ChargeStatusPending,
	}
	if err := s.paymentRepo.Create(pay); err != nil {
		return nil, nil, err
	}

	result, err := processor.Charge(input.Context, payment.ChargeInput{
		IdempotencyKey: pay.IdempotencyKey,
		AmountCents:    escrow.Amount.Cents(),
		Currency:       escrow.Currency,
		MethodRef:      pay.MethodRef,
		Description:    fmt.Sprintf("escrow %s", escrow.EscrowNo),
		Metadata:       map[string]string{"escrow_no": escrow.EscrowNo},
	})
	if err != nil {
		_ = s.paymentRepo.UpdateFields(pay.ID, map[string]interface{}{
			"status":         constants.ChargeStatusFailed,
			"failure_reason": err.Error(),
		})
		logger.Warnw("escrow_fund_charge_failed", "escrow_no", escrow.EscrowNo, "error", err)
		return nil, nil, ErrProcessorFailed
	}

	updates := map[string]interface{}{
		"status":       result.Status,
		"provider_ref": result.ProviderRef,
		"redirect_url": result.RedirectURL,
		"provider_raw": models.JSON(result.Raw),
	}
	if result.Status == payment.StatusFailed {
		updates["failure_reason"] = result.FailureReason
	}
	if err := s.paymentRepo.UpdateFields(pay.ID, updates); err != nil {
		return nil, nil, err
	}
	pay.Status = result.Status
	pay.ProviderRef = result.ProviderRef
	pay.RedirectURL = result.RedirectURL

	switch result.Status {
	case payment.StatusSucceeded:
		ok, err := s.escrowRepo.TransitionStatus(escrow.ID, constants.EscrowStatusCreated, constants.EscrowStatusFunded, map[string]interface{}{
			"funded_at":  time.Now(),
			"charge_ref": result.ProviderRef,
		})
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, ErrEscrowStateConflict
		}
	case payment.StatusFailed:
		return nil, pay, ErrPaymentDeclined
	}

	refreshed, err := s.escrowRepo.GetByID(escrow.ID)
	if err != nil || refreshed == nil {
		return escrow, pay, nil
	}
	return refreshed, pay, nil
}

// MarkFunded 订单侧扣款已确认，仅迁移状态不再扣款
func (s *EscrowService) MarkFunded(escrowID uint, chargeRef string) error {
	ok, err := s.escrowRepo.TransitionStatus(escrowID, constants.EscrowStatusCreated, constants.EscrowStatusFunded, map[string]interface{}{
		"funded_at":  time.Now(),
		"charge_ref": strings.TrimSpace(chargeRef),
	})
	if err != nil {
		return err
	}
	if !ok {
		// 已经 funded 时视为幂等成功
		escrow, fetchErr := s.escrowRepo.GetByID(escrowID)
		if fetchErr != nil {
			return fetchErr
		}
		if escrow != nil && escrow.Status != constants.EscrowStatusCreated {
			return nil
		}
		return ErrEscrowStateConflict
	}
	return nil
}

// Release 付款方放款，可部分多次；余额清零时进入 released
func (s *EscrowService) Release(input ReleaseEscrowInput) (*models.EscrowTransaction, error) {
	escrow, err := s.escrowRepo.GetByID(input.EscrowID)
	if err != nil {
		return nil, err
	}
	if escrow == nil {
		return nil, ErrEscrowNotFound
	}
	if escrow.SenderID != input.ActorID {
		return nil, ErrForbidden
	}
	if escrow.Status != constants.EscrowStatusFunded {
		return nil, ErrEscrowStateConflict
	}

	remaining := escrow.RemainingAmount()
	amount := remaining
	if input.Amount != nil {
		amount = *input.Amount
	}
	if amount <= 0 || amount > remaining {
		return nil, ErrEscrowAmountInvalid
	}

	// 守卫式累加：并发放款时超额的一方会落空
	ok, err := s.escrowRepo.ApplyRelease(escrow.ID, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEscrowStateConflict
	}

	if err := s.recordPayout(escrow, amount); err != nil {
		logger.Warnw("escrow_release_payout_record_failed", "escrow_no", escrow.EscrowNo, "error", err)
	}

	refreshed, err := s.escrowRepo.GetByID(escrow.ID)
	if err != nil {
		return nil, err
	}
	if refreshed != nil && refreshed.RemainingAmount() == 0 {
		if _, err := s.escrowRepo.TransitionStatus(escrow.ID, constants.EscrowStatusFunded, constants.EscrowStatusReleased, nil); err != nil {
			return nil, err
		}
		refreshed, err = s.escrowRepo.GetByID(escrow.ID)
		if err != nil {
			return nil, err
		}
	}
	return refreshed, nil
}

// Cancel 取消托管
// created 态双方均可取消；funded 态仅付款方，余额原路退回
func (s *EscrowService) Cancel(ctx context.Context, escrowID, actorID uint, reason string) (*models.EscrowTransaction, error) {
	escrow, err := s.escrowRepo.GetByID(escrowID)
	if err != nil {
		return nil, err
	}
	if escrow == nil {
		return nil, ErrEscrowNotFound
	}

	switch escrow.Status {
	case constants.EscrowStatusCreated:
		if actorID != escrow.SenderID && actorID != escrow.RecipientID {
			return nil, ErrForbidden
		}
		ok, err := s.escrowRepo.TransitionStatus(escrow.ID, constants.EscrowStatusCreated, constants.EscrowStatusCancelled, map[string]interface{}{
			"cancel_reason": strings.TrimSpace(reason),
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrEscrowStateConflict
		}
	case constants.EscrowStatusFunded:
		if actorID != escrow.SenderID {
			return nil, ErrForbidden
		}
		if err := s.cancelFunded(ctx, escrow, strings.TrimSpace(reason)); err != nil {
			return nil, err
		}
	default:
		return nil, ErrEscrowStateConflict
	}
	return s.escrowRepo.GetByID(escrow.ID)
}

// OpenDispute 发起争议（仅 funded 态，交易双方）
func (s *EscrowService) OpenDispute(escrowID, actorID uint, reason string, evidence []string) (*models.EscrowTransaction, error) {
	escrow, err := s.escrowRepo.GetByID(escrowID)
	if err != nil {
		return nil, err
	}
	if escrow == nil {
		return nil, ErrEscrowNotFound
	}
	if actorID != escrow.SenderID && actorID != escrow.RecipientID {
		return nil, ErrForbidden
	}
	if escrow.Status != constants.EscrowStatusFunded {
		return nil, ErrEscrowStateConflict
	}
	ok, err := s.escrowRepo.TransitionStatus(escrow.ID, constants.EscrowStatusFunded, constants.EscrowStatusDisputed, map[string]interface{}{
		"dispute_reason":    strings.TrimSpace(reason),
		"dispute_evidence":  models.StringArray(evidence),
		"dispute_opened_by": actorID,
		"disputed_at":       time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEscrowStateConflict
	}
	return s.escrowRepo.GetByID(escrow.ID)
}

// ResolveDispute 争议裁决，disputed 态唯一出口
// split 时收款方份额四舍五入，付款方取精确余额，两者之和恒等于剩余托管额
func (s *EscrowService) ResolveDispute(input ResolveDisputeInput) (*models.EscrowTransaction, error) {
	escrow, err := s.escrowRepo.GetByID(input.EscrowID)
	if err != nil {
		return nil, err
	}
	if escrow == nil {
		return nil, ErrEscrowNotFound
	}
	if escrow.Status != constants.EscrowStatusDisputed {
		return nil, ErrEscrowNotDisputed
	}

	remaining := escrow.RemainingAmount()
	var recipientShare, senderShare models.Money
	resolution := strings.ToLower(strings.TrimSpace(input.Resolution))
	switch resolution {
	case constants.ResolutionRelease:
		recipientShare = remaining
	case constants.ResolutionRefund:
		senderShare = remaining
	case constants.ResolutionSplit:
		if input.SplitRatio.LessThan(decimal.Zero) || input.SplitRatio.GreaterThan(decimal.NewFromInt(1)) {
			return nil, ErrSplitRatioInvalid
		}
		recipientShare = remaining.MulRate(input.SplitRatio)
		senderShare = remaining - recipientShare
	default:
		return nil, ErrSplitRatioInvalid
	}

	ok, err := s.escrowRepo.TransitionStatus(escrow.ID, constants.EscrowStatusDisputed, constants.EscrowStatusResolved, map[string]interface{}{
		"resolution_type":  resolution,
		"resolution_ratio": input.SplitRatio,
		"resolved_by":      input.ResolverID,
		"resolved_at":      time.Now(),
		"released_amount":  escrow.ReleasedAmount + recipientShare,
		"refunded_amount":  escrow.RefundedAmount + senderShare,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEscrowStateConflict
	}

	if recipientShare > 0 {
		if err := s.recordPayout(escrow, recipientShare); err != nil {
			logger.Warnw("escrow_resolve_payout_record_failed", "escrow_no", escrow.EscrowNo, "error", err)
		}
	}
	if senderShare > 0 {
		if err := s.refundToSender(input.Context, escrow, senderShare, "dispute resolution"); err != nil {
			logger.Warnw("escrow_resolve_refund_failed", "escrow_no", escrow.EscrowNo, "error", err)
		}
	}
	return s.escrowRepo.GetByID(escrow.ID)
}

// Get 查询托管交易，仅交易双方可见
func (s *EscrowService) Get(escrowID, actorID uint, isPrivileged bool) (*models.EscrowTransaction, error) {
	escrow, err := s.escrowRepo.GetByID(escrowID)
	if err != nil {
		return nil, err
	}
	if escrow == nil {
		return nil, ErrEscrowNotFound
	}
	if !isPrivileged && actorID != escrow.SenderID && actorID != escrow.RecipientID {
		return nil, ErrForbidden
	}
	return escrow, nil
}

// List 分页查询托管交易
func (s *EscrowService) List(filter repository.EscrowListFilter) ([]models.EscrowTransaction, int64, error) {
	return s.escrowRepo.List(filter)
}

// ExpireSweep 扫描过期 funded 托管并自动取消退款
// CAS 迁移保证重复扫描幂等，已处理或状态已变的记录直接跳过
func (s *EscrowService) ExpireSweep(ctx context.Context, now time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	expired, err := s.escrowRepo.ListExpiredFunded(now, batchSize)
	if err != nil {
		return 0, err
	}
	processed := 0
	for i := range expired {
		escrow := expired[i]
		if err := s.cancelFunded(ctx, &escrow, "escrow expired"); err != nil {
			logger.Warnw("escrow_expiry_cancel_failed", "escrow_no", escrow.EscrowNo, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *EscrowService) cancelFunded(ctx context.Context, escrow *models.EscrowTransaction, reason string) error {
	remaining := escrow.RemainingAmount()
	ok, err := s.escrowRepo.TransitionStatus(escrow.ID, constants.EscrowStatusFunded, constants.EscrowStatusCancelled, map[string]interface{}{
		"cancel_reason":   reason,
		"refunded_amount": escrow.RefundedAmount + remaining,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrEscrowStateConflict
	}
	if remaining > 0 {
		if err := s.refundToSender(ctx, escrow, remaining, reason); err != nil {
			return err
		}
	}
	return nil
}

// refundToSender 通过原处理器退款并记录流水
func (s *EscrowService) refundToSender(ctx context.Context, escrow *models.EscrowTransaction, amount models.Money, reason string) error {
	pay := &models.Payment{
		EscrowID:       &escrow.ID,
		Kind:           constants.PaymentKindRefund,
		Processor:      escrow.PaymentMethod,
		IdempotencyKey: fmt.Sprintf("refund-%s-%d", escrow.EscrowNo, escrow.RefundedAmount.Cents()),
		Amount:         amount,
		Currency:       escrow.Currency,
		Status:         constants.ChargeStatusPending,
	}
	if err := s.paymentRepo.Create(pay); err != nil {
		return err
	}
	processor, err := s.registry.Get(escrow.PaymentMethod)
	if err != nil {
		return err
	}
	result, err := processor.Refund(ctx, payment.RefundInput{
		ChargeRef:   escrow.ChargeRef,
		AmountCents: amount.Cents(),
		Currency:    escrow.Currency,
		Reason:      reason,
	})
	if err != nil {
		_ = s.paymentRepo.UpdateFields(pay.ID, map[string]interface{}{
			"status":         constants.ChargeStatusFailed,
			"failure_reason": err.Error(),
		})
		return err
	}
	return s.paymentRepo.UpdateFields(pay.ID, map[string]interface{}{
		"status":       result.Status,
		"provider_ref": result.ProviderRef,
		"provider_raw": models.JSON(result.Raw),
	})
}

// recordPayout 记录放款流水（实际打款走独立出款通道，此处只入账）
func (s *EscrowService) recordPayout(escrow *models.EscrowTransaction, amount models.Money) error {
	return s.paymentRepo.Create(&models.Payment{
		EscrowID:       &escrow.ID,
		Kind:           constants.PaymentKindPayout,
		Processor:      escrow.PaymentMethod,
		IdempotencyKey: fmt.Sprintf("payout-%s-%d", escrow.EscrowNo, time.Now().UnixNano()),
		Amount:         amount,
		Currency:       escrow.Currency,
		Status:         constants.ChargeStatusSucceeded,
	})
}

func generateEscrowNo() string {
	return generateBusinessNo("ES")
}

func generateBusinessNo(prefix string) string {
	now := time.Now()
	suffix := ""
	max := big.NewInt(10)
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			suffix += "0"
			continue
		}
		suffix += n.String()
	}
	return fmt.Sprintf("%s%s%s", prefix, now.Format("20060102150405"), suffix)
}
