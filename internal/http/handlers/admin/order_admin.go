package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/expertmarket/settlement/internal/http/response"
	"github.com/expertmarket/settlement/internal/repository"
	"github.com/expertmarket/settlement/internal/service"

	"github.com/gin-gonic/gin"
)

// TransitionOrderRequest 订单状态推进请求
type TransitionOrderRequest struct {
	Status string `json:"status" binding:"required"`
}

// ListOrders 查询订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	var userID uint
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid user id", err)
			return
		}
		userID = uint(parsed)
	}

	orders, total, err := h.OrderService.ListOrders(repository.OrderListFilter{
		Page:          page,
		PageSize:      pageSize,
		UserID:        userID,
		Status:        strings.TrimSpace(c.Query("status")),
		PaymentStatus: strings.TrimSpace(c.Query("payment_status")),
		OrderNo:       strings.TrimSpace(c.Query("order_no")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "order list failed", err)
		return
	}
	response.SuccessWithPage(c, orders, buildPagination(page, pageSize, total))
}

// GetOrder 查询订单详情（管理端不受归属限制）
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		respondError(c, response.CodeBadRequest, "invalid order id", err)
		return
	}
	order, err := h.OrderService.GetOrder(uint(orderID), 0, true)
	if err != nil {
		respondOrderAdminError(c, err)
		return
	}
	response.Success(c, order)
}

// TransitionOrderStatus 推进订单履约状态
func (h *Handler) TransitionOrderStatus(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		respondError(c, response.CodeBadRequest, "invalid order id", err)
		return
	}
	var req TransitionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	order, err := h.OrderService.TransitionStatus(uint(orderID), req.Status)
	if err != nil {
		respondOrderAdminError(c, err)
		return
	}
	response.Success(c, order)
}

func respondOrderAdminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		respondError(c, response.CodeNotFound, "order not found", nil)
	case errors.Is(err, service.ErrOrderStatusInvalid):
		respondError(c, response.CodeConflict, "order status transition not allowed", nil)
	case errors.Is(err, service.ErrOrderUnpaid):
		respondError(c, response.CodeConflict, "order is not paid", nil)
	case errors.Is(err, service.ErrOrderUndelivered):
		respondError(c, response.CodeConflict, "digital items not delivered", nil)
	default:
		respondError(c, response.CodeInternal, "order operation failed", err)
	}
}
