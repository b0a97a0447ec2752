package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/expertmarket/settlement/internal/http/response"
	"github.com/expertmarket/settlement/internal/repository"
	"github.com/expertmarket/settlement/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ResolveDisputeRequest 争议裁决请求
type ResolveDisputeRequest struct {
	Resolution string  `json:"resolution" binding:"required"`
	// SplitRatio split 裁决时收款方占比（0-1）
	SplitRatio float64 `json:"split_ratio"`
}

// ListEscrows 查询托管交易列表
func (h *Handler) ListEscrows(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	var senderID, recipientID uint
	if raw := strings.TrimSpace(c.Query("sender_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid sender id", err)
			return
		}
		senderID = uint(parsed)
	}
	if raw := strings.TrimSpace(c.Query("recipient_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid recipient id", err)
			return
		}
		recipientID = uint(parsed)
	}

	escrows, total, err := h.EscrowService.List(repository.EscrowListFilter{
		Page:        page,
		PageSize:    pageSize,
		SenderID:    senderID,
		RecipientID: recipientID,
		Status:      strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "escrow list failed", err)
		return
	}
	response.SuccessWithPage(c, escrows, buildPagination(page, pageSize, total))
}

// GetEscrow 查询托管详情（管理端不受双方限制）
func (h *Handler) GetEscrow(c *gin.Context) {
	escrowID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || escrowID == 0 {
		respondError(c, response.CodeBadRequest, "invalid escrow id", err)
		return
	}
	escrow, err := h.EscrowService.Get(uint(escrowID), 0, true)
	if err != nil {
		respondEscrowAdminError(c, err)
		return
	}
	response.Success(c, escrow)
}

// ResolveDispute 仲裁争议中的托管交易
func (h *Handler) ResolveDispute(c *gin.Context) {
	operatorID, ok := getOperatorID(c)
	if !ok {
		return
	}
	escrowID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || escrowID == 0 {
		respondError(c, response.CodeBadRequest, "invalid escrow id", err)
		return
	}
	var req ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	escrow, err := h.EscrowService.ResolveDispute(service.ResolveDisputeInput{
		EscrowID:   uint(escrowID),
		ResolverID: operatorID,
		Resolution: req.Resolution,
		SplitRatio: decimal.NewFromFloat(req.SplitRatio),
		Context:    c.Request.Context(),
	})
	if err != nil {
		respondEscrowAdminError(c, err)
		return
	}
	response.Success(c, escrow)
}

func respondEscrowAdminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEscrowNotFound):
		respondError(c, response.CodeNotFound, "escrow not found", nil)
	case errors.Is(err, service.ErrEscrowNotDisputed):
		respondError(c, response.CodeConflict, "escrow is not under dispute", nil)
	case errors.Is(err, service.ErrEscrowStateConflict):
		respondError(c, response.CodeConflict, "escrow state does not allow this operation", nil)
	case errors.Is(err, service.ErrSplitRatioInvalid):
		respondError(c, response.CodeBadRequest, "split ratio invalid", nil)
	case errors.Is(err, service.ErrForbidden):
		respondError(c, response.CodeForbidden, "operation not allowed", nil)
	default:
		respondError(c, response.CodeInternal, "escrow operation failed", err)
	}
}
