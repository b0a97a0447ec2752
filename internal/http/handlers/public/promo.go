package public

import (
	"github.com/expertmarket/settlement/internal/http/response"
	"github.com/expertmarket/settlement/internal/models"
	"github.com/expertmarket/settlement/internal/service"

	"github.com/gin-gonic/gin"
)

// PromoCartItemRequest 优惠码校验的购物车项
type PromoCartItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// PromoValidateRequest 优惠码校验请求
type PromoValidateRequest struct {
	Code  string                 `json:"code" binding:"required"`
	Items []PromoCartItemRequest `json:"items" binding:"required"`
}

// PromoDiscountView 优惠计算结果
type PromoDiscountView struct {
	Code           string       `json:"code"`
	Type           string       `json:"type"`
	DiscountAmount models.Money `json:"discount_amount"`
	FreeShipping   bool         `json:"free_shipping"`
	Subtotal       models.Money `json:"subtotal"`
}

// ValidatePromo 校验优惠码（不占用额度，返回校验结论）
func (h *Handler) ValidatePromo(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req PromoValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	view, err := h.previewPromo(uid, req)
	if err != nil {
		response.Success(c, gin.H{
			"valid":  false,
			"reason": err.Error(),
		})
		return
	}
	response.Success(c, gin.H{
		"valid":    true,
		"discount": view,
	})
}

// ApplyPromoPreview 计算优惠金额（校验失败返回错误响应）
func (h *Handler) ApplyPromoPreview(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req PromoValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	view, err := h.previewPromo(uid, req)
	if err != nil {
		respondPromoError(c, err)
		return
	}
	response.Success(c, view)
}

// previewPromo 按购物车内容试算优惠
func (h *Handler) previewPromo(userID uint, req PromoValidateRequest) (*PromoDiscountView, error) {
	ids := make([]uint, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := h.ProductRepo.ListByIDs(ids)
	if err != nil {
		return nil, err
	}
	productMap := make(map[uint]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	var subtotal models.Money
	var hasPhysical bool
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		product, ok := productMap[item.ProductID]
		if !ok || item.Quantity <= 0 {
			return nil, service.ErrInvalidOrderItem
		}
		lineTotal := models.NewMoneyFromCents(product.Price.Cents() * int64(item.Quantity))
		subtotal += lineTotal
		if !product.IsDigital {
			hasPhysical = true
		}
		items = append(items, models.OrderItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  product.Price,
			TotalPrice: lineTotal,
		})
	}

	var shipping models.Money
	if hasPhysical {
		shipping = models.NewMoneyFromCents(h.Config.Checkout.ShippingFlatCents)
	}

	line, _, err := h.DiscountService.ApplyPromo(service.ApplyPromoInput{
		Code:         req.Code,
		UserID:       userID,
		Items:        items,
		Products:     productMap,
		Subtotal:     subtotal,
		ShippingCost: shipping,
	})
	if err != nil {
		return nil, err
	}

	discount := line.Amount
	if line.FreeShipping {
		discount = line.OriginalShippingCost
	}
	return &PromoDiscountView{
		Code:           line.Code,
		Type:           line.Type,
		DiscountAmount: discount,
		FreeShipping:   line.FreeShipping,
		Subtotal:       subtotal,
	}, nil
}
