package public

import (
	"strconv"
	"strings"
	"time"

	"github.com/expertmarket/settlement/internal/http/response"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/repository"
	"github.com/expertmarket/settlement/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateEscrowRequest 创建托管交易请求
type CreateEscrowRequest struct {
	RecipientID       uint   `json:"recipient_id" binding:"required"`
	AmountCents       int64  `json:"amount_cents" binding:"required"`
	Currency          string `json:"currency"`
	ReleaseConditions string `json:"release_conditions"`
	PaymentMethod     string `json:"payment_method"`
	OrderID           *uint  `json:"order_id"`
	ExpiresAt         string `json:"expires_at"`
}

// FundEscrowRequest 托管注资请求
type FundEscrowRequest struct {
	MethodRef string `json:"method_ref"`
}

// ReleaseEscrowRequest 托管放款请求
type ReleaseEscrowRequest struct {
	// AmountCents 为空表示全额放款剩余金额
	AmountCents *int64 `json:"amount_cents"`
}

// CancelEscrowRequest 取消托管请求
type CancelEscrowRequest struct {
	Reason string `json:"reason"`
}

// DisputeEscrowRequest 发起争议请求
type DisputeEscrowRequest struct {
	Reason   string   `json:"reason" binding:"required"`
	Evidence []string `json:"evidence"`
}

// CreateEscrow 创建托管交易
func (h *Handler) CreateEscrow(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req CreateEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	expiresAt, err := parseTimeNullable(req.ExpiresAt)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid expires_at", err)
		return
	}

	escrow, err := h.EscrowService.CreateEscrow(service.CreateEscrowInput{
		SenderID:          uid,
		RecipientID:       req.RecipientID,
		Amount:            models.NewMoneyFromCents(req.AmountCents),
		Currency:          req.Currency,
		ReleaseConditions: req.ReleaseConditions,
		PaymentMethod:     req.PaymentMethod,
		OrderID:           req.OrderID,
		ExpiresAt:         expiresAt,
	})
	if err != nil {
		respondEscrowError(c, err)
		return
	}
	response.Success(c, escrow)
}

// FundEscrow 托管注资
func (h *Handler) FundEscrow(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	escrowID, ok := parseEscrowID(c)
	if !ok {
		return
	}
	var req FundEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	escrow, pay, err := h.EscrowService.Fund(service.FundEscrowInput{
		EscrowID:       escrowID,
		ActorID:        uid,
		MethodRef:      req.MethodRef,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
		Context:        c.Request.Context(),
	})
	if err != nil {
		respondEscrowError(c, err)
		return
	}
	response.Success(c, gin.H{
		"escrow":  escrow,
		"payment": pay,
	})
}

// ReleaseEscrow 托管放款（支持部分放款）
func (h *Handler) ReleaseEscrow(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	escrowID, ok := parseEscrowID(c)
	if !ok {
		return
	}
	var req ReleaseEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	var amount *models.Money
	if req.AmountCents != nil {
		m := models.NewMoneyFromCents(*req.AmountCents)
		amount = &m
	}

	escrow, err := h.EscrowService.Release(service.ReleaseEscrowInput{
		EscrowID: escrowID,
		ActorID:  uid,
		Amount:   amount,
	})
	if err != nil {
		respondEscrowError(c, err)
		return
	}
	response.Success(c, escrow)
}

// CancelEscrow 取消托管
func (h *Handler) CancelEscrow(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	escrowID, ok := parseEscrowID(c)
	if !ok {
		return
	}
	var req CancelEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	escrow, err := h.EscrowService.Cancel(c.Request.Context(), escrowID, uid, req.Reason)
	if err != nil {
		respondEscrowError(c, err)
		return
	}
	response.Success(c, escrow)
}

// DisputeEscrow 发起争议
func (h *Handler) DisputeEscrow(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	escrowID, ok := parseEscrowID(c)
	if !ok {
		return
	}
	var req DisputeEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	escrow, err := h.EscrowService.OpenDispute(escrowID, uid, req.Reason, req.Evidence)
	if err != nil {
		respondEscrowError(c, err)
		return
	}
	response.Success(c, escrow)
}

// GetEscrow 查询托管详情（仅交易双方）
func (h *Handler) GetEscrow(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	escrowID, ok := parseEscrowID(c)
	if !ok {
		return
	}

	escrow, err := h.EscrowService.Get(escrowID, uid, false)
	if err != nil {
		respondEscrowError(c, err)
		return
	}
	response.Success(c, escrow)
}

// ListEscrowTransactions 查询当前用户参与的托管交易
func (h *Handler) ListEscrowTransactions(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	createdFrom, err := parseTimeNullable(c.Query("created_from"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid created_from", err)
		return
	}
	createdTo, err := parseTimeNullable(c.Query("created_to"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid created_to", err)
		return
	}

	escrows, total, err := h.EscrowService.List(repository.EscrowListFilter{
		Page:        page,
		PageSize:    pageSize,
		PartyID:     uid,
		Status:      strings.TrimSpace(c.Query("status")),
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "escrow list failed", err)
		return
	}
	response.SuccessWithPage(c, escrows, buildPagination(page, pageSize, total))
}

func parseEscrowID(c *gin.Context) (uint, bool) {
	escrowID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || escrowID == 0 {
		respondError(c, response.CodeBadRequest, "invalid escrow id", err)
		return 0, false
	}
	return uint(escrowID), true
}

func parseTimeNullable(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
