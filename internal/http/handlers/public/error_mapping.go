package public

import (
	"errors"

	"github.com/expertmarket/settlement/internal/http/response"
	"github.com/expertmarket/settlement/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

var promoErrorRules = []mappedHandlerError{
	{target: service.ErrPromoNotFound, code: response.CodeBadRequest, msg: "promo code not found"},
	{target: service.ErrPromoInactive, code: response.CodeBadRequest, msg: "promo code inactive"},
	{target: service.ErrPromoNotStarted, code: response.CodeBadRequest, msg: "promo code not started"},
	{target: service.ErrPromoExpired, code: response.CodeBadRequest, msg: "promo code expired"},
	{target: service.ErrPromoUsageLimit, code: response.CodeConflict, msg: "promo code usage limit reached"},
	{target: service.ErrPromoPerUserLimit, code: response.CodeBadRequest, msg: "promo code per-user limit reached"},
	{target: service.ErrPromoMinPurchase, code: response.CodeBadRequest, msg: "promo code minimum purchase not met"},
	{target: service.ErrPromoNotEligible, code: response.CodeBadRequest, msg: "promo code not eligible for this purchase"},
	{target: service.ErrPromoInvalid, code: response.CodeBadRequest, msg: "promo code invalid"},
}

var loyaltyErrorRules = []mappedHandlerError{
	{target: service.ErrLoyaltyNotFound, code: response.CodeBadRequest, msg: "loyalty reward not found"},
	{target: service.ErrLoyaltyExpired, code: response.CodeBadRequest, msg: "loyalty reward expired"},
	{target: service.ErrLoyaltyConsumed, code: response.CodeBadRequest, msg: "loyalty reward already used"},
	{target: service.ErrLoyaltyInvalid, code: response.CodeBadRequest, msg: "loyalty reward invalid"},
}

var checkoutCommonErrorRules = []mappedHandlerError{
	{target: service.ErrIdempotencyRequired, code: response.CodeBadRequest, msg: "Idempotency-Key header is required"},
	{target: service.ErrIdempotencyConflict, code: response.CodeConflict, msg: "idempotency key reused with different request"},
	{target: service.ErrInvalidOrderItem, code: response.CodeBadRequest, msg: "order item invalid"},
	{target: service.ErrQuantityInvalid, code: response.CodeBadRequest, msg: "order quantity invalid"},
	{target: service.ErrAmountInvalid, code: response.CodeBadRequest, msg: "order amount invalid"},
	{target: service.ErrCurrencyMismatch, code: response.CodeBadRequest, msg: "order currency mismatch"},
	{target: service.ErrProductNotAvailable, code: response.CodeBadRequest, msg: "product not available"},
	{target: service.ErrProductPriceInvalid, code: response.CodeBadRequest, msg: "product price invalid"},
	{target: service.ErrProcessorNotFound, code: response.CodeBadRequest, msg: "payment method not supported"},
	{target: service.ErrProcessorFailed, code: response.CodeBadRequest, msg: "payment processor unavailable"},
	{target: service.ErrPaymentDeclined, code: response.CodeBadRequest, msg: "payment declined"},
	{target: service.ErrForbidden, code: response.CodeForbidden, msg: "operation not allowed"},
}

var orderErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "order not found"},
	{target: service.ErrOrderStatusInvalid, code: response.CodeConflict, msg: "order status does not allow this operation"},
	{target: service.ErrForbidden, code: response.CodeForbidden, msg: "operation not allowed"},
}

var escrowErrorRules = []mappedHandlerError{
	{target: service.ErrEscrowNotFound, code: response.CodeNotFound, msg: "escrow not found"},
	{target: service.ErrEscrowStateConflict, code: response.CodeConflict, msg: "escrow state does not allow this operation"},
	{target: service.ErrEscrowAmountInvalid, code: response.CodeBadRequest, msg: "escrow amount invalid"},
	{target: service.ErrEscrowNotDisputed, code: response.CodeConflict, msg: "escrow is not under dispute"},
	{target: service.ErrAmountInvalid, code: response.CodeBadRequest, msg: "escrow amount invalid"},
	{target: service.ErrIdempotencyRequired, code: response.CodeBadRequest, msg: "Idempotency-Key header is required"},
	{target: service.ErrProcessorNotFound, code: response.CodeBadRequest, msg: "payment method not supported"},
	{target: service.ErrProcessorFailed, code: response.CodeBadRequest, msg: "payment processor unavailable"},
	{target: service.ErrPaymentDeclined, code: response.CodeBadRequest, msg: "payment declined"},
	{target: service.ErrForbidden, code: response.CodeForbidden, msg: "operation not allowed"},
}

var affiliateErrorRules = []mappedHandlerError{
	{target: service.ErrAffiliateLinkNotFound, code: response.CodeNotFound, msg: "affiliate link not found"},
	{target: service.ErrAffiliateLinkInactive, code: response.CodeBadRequest, msg: "affiliate link inactive"},
	{target: service.ErrAffiliateRateInvalid, code: response.CodeBadRequest, msg: "commission rate invalid"},
	{target: service.ErrForbidden, code: response.CodeForbidden, msg: "operation not allowed"},
}

func respondCheckoutError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(checkoutCommonErrorRules, promoErrorRules, loyaltyErrorRules), response.CodeInternal, "checkout failed")
}

func respondOrderError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderErrorRules, response.CodeInternal, "order operation failed")
}

func respondEscrowError(c *gin.Context, err error) {
	respondWithMappedError(c, err, escrowErrorRules, response.CodeInternal, "escrow operation failed")
}

func respondPromoError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(promoErrorRules, loyaltyErrorRules), response.CodeInternal, "promo validation failed")
}

func respondAffiliateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, affiliateErrorRules, response.CodeInternal, "affiliate operation failed")
}
