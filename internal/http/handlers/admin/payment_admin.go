package admin

import (
	"strconv"
	"strings"

	"github.com/expertmarket/settlement/internal/http/response"
	"github.com/expertmarket/settlement/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListPayments 查询支付流水列表
func (h *Handler) ListPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := repository.PaymentListFilter{
		Page:      page,
		PageSize:  pageSize,
		Kind:      strings.TrimSpace(c.Query("kind")),
		Processor: strings.TrimSpace(c.Query("processor")),
		Status:    strings.TrimSpace(c.Query("status")),
	}
	if raw := strings.TrimSpace(c.Query("order_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid order id", err)
			return
		}
		filter.OrderID = uint(parsed)
	}
	if raw := strings.TrimSpace(c.Query("escrow_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid escrow id", err)
			return
		}
		filter.EscrowID = uint(parsed)
	}

	payments, total, err := h.PaymentRepo.List(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "payment list failed", err)
		return
	}
	response.SuccessWithPage(c, payments, buildPagination(page, pageSize, total))
}
