package repository

import "time"

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page          int
	PageSize      int
	UserID        uint
	Status        string
	PaymentStatus string
	OrderNo       string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

// EscrowListFilter 查询托管交易列表的过滤条件
type EscrowListFilter struct {
	Page        int
	PageSize    int
	PartyID     uint // 付款方或收款方
	SenderID    uint
	RecipientID uint
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// AffiliateLinkListFilter 查询推广链接列表的过滤条件
type AffiliateLinkListFilter struct {
	Page       int
	PageSize   int
	ExpertID   uint
	TargetType string
	OnlyActive bool
}

// PromoUsageListFilter 查询优惠码使用记录的过滤条件
type PromoUsageListFilter struct {
	Page     int
	PageSize int
	UserID   uint
}
