package public

import (
	"strconv"
	"strings"

	"github.com/expertmarket/settlement/internal/http/response"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/repository"
	"github.com/expertmarket/settlement/internal/service"

	"github.com/gin-gonic/gin"
)

// CheckoutItemRequest 下单商品项请求
type CheckoutItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// CheckoutRequest 下单结算请求
type CheckoutRequest struct {
	Items           []CheckoutItemRequest `json:"items" binding:"required"`
	PromoCode       string                `json:"promo_code"`
	LoyaltyCode     string                `json:"loyalty_code"`
	PaymentMethod   string                `json:"payment_method" binding:"required"`
	MethodRef       string                `json:"method_ref"`
	ShippingDetails models.JSON           `json:"shipping_details"`
	EscrowRequested bool                  `json:"escrow_requested"`
	EscrowExpertID  uint                  `json:"escrow_expert_id"`
}

// Checkout 下单结算
// 幂等键从 Idempotency-Key 请求头读取，缺失直接拒绝
func (h *Handler) Checkout(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	items := make([]service.CheckoutItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.CheckoutItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	result, err := h.OrderService.Checkout(service.CheckoutInput{
		UserID:          uid,
		Items:           items,
		PromoCode:       req.PromoCode,
		LoyaltyCode:     req.LoyaltyCode,
		PaymentMethod:   req.PaymentMethod,
		MethodRef:       req.MethodRef,
		IdempotencyKey:  strings.TrimSpace(c.GetHeader("Idempotency-Key")),
		SessionID:       getSessionID(c),
		ClientIP:        c.ClientIP(),
		ShippingDetails: req.ShippingDetails,
		EscrowRequested: req.EscrowRequested,
		EscrowExpertID:  req.EscrowExpertID,
		Context:         c.Request.Context(),
	})
	if err != nil {
		respondCheckoutError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order":        result.Order,
		"payment":      result.Payment,
		"redirect_url": result.RedirectURL,
	})
}

// GetOrder 查询订单详情
func (h *Handler) GetOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		respondError(c, response.CodeBadRequest, "invalid order id", err)
		return
	}

	order, err := h.OrderService.GetOrder(uint(orderID), uid, false)
	if err != nil {
		respondOrderError(c, err)
		return
	}
	response.Success(c, order)
}

// ListOrders 查询订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	orders, total, err := h.OrderService.ListOrders(repository.OrderListFilter{
		Page:          page,
		PageSize:      pageSize,
		UserID:        uid,
		Status:        strings.TrimSpace(c.Query("status")),
		PaymentStatus: strings.TrimSpace(c.Query("payment_status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "order list failed", err)
		return
	}
	response.SuccessWithPage(c, orders, buildPagination(page, pageSize, total))
}

// CancelOrder 取消未支付订单
func (h *Handler) CancelOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		respondError(c, response.CodeBadRequest, "invalid order id", err)
		return
	}

	order, err := h.OrderService.CancelOrder(uint(orderID), uid, false)
	if err != nil {
		respondOrderError(c, err)
		return
	}
	response.Success(c, order)
}

func buildPagination(page, pageSize int, total int64) response.Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	totalPage := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		totalPage++
	}
	return response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	}
}
