package cache

import (
	"context"
	"fmt"
	"time"
)

// CheckoutSnapshot 结算幂等快照
// 同一 Idempotency-Key 的重放请求直接返回首次结果，不再扣减库存或重复扣款
type CheckoutSnapshot struct {
	OrderID     uint   `json:"order_id"`
	OrderNo     string `json:"order_no"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

func checkoutKey(userID uint, idempotencyKey string) string {
	return fmt.Sprintf("checkout:idem:%d:%s", userID, idempotencyKey)
}

func clickDedupeKey(linkID uint, sessionID string) string {
	return fmt.Sprintf("affiliate:click:%d:%s", linkID, sessionID)
}

// GetCheckoutSnapshot 获取结算幂等快照
func GetCheckoutSnapshot(ctx context.Context, userID uint, idempotencyKey string) (*CheckoutSnapshot, bool, error) {
	if idempotencyKey == "" {
		return nil, false, nil
	}
	var snapshot CheckoutSnapshot
	hit, err := GetJSON(ctx, checkoutKey(userID, idempotencyKey), &snapshot)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &snapshot, true, nil
}

// SetCheckoutSnapshot 写入结算幂等快照
func SetCheckoutSnapshot(ctx context.Context, userID uint, idempotencyKey string, snapshot *CheckoutSnapshot, ttl time.Duration) error {
	if idempotencyKey == "" || snapshot == nil {
		return nil
	}
	if snapshot.CreatedAt == 0 {
		snapshot.CreatedAt = time.Now().Unix()
	}
	return SetJSON(ctx, checkoutKey(userID, idempotencyKey), snapshot, ttl)
}

// ReserveClick 推广点击去重，窗口期内同一会话重复点击返回 false
func ReserveClick(ctx context.Context, linkID uint, sessionID string, window time.Duration) (bool, error) {
	if !Enabled() {
		// 缓存未启用时放行，由计数语义兜底
		return true, nil
	}
	if sessionID == "" {
		return true, nil
	}
	return SetNX(ctx, clickDedupeKey(linkID, sessionID), "1", window)
}
