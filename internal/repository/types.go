package repository

import "time"

// CreditTransactionListFilter 查询积分流水的过滤条件
type CreditTransactionListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Type        string
	Direction   string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// VoucherRedemptionListFilter 查询核销记录的过滤条件
type VoucherRedemptionListFilter struct {
	Page      int
	PageSize  int
	UserID    uint
	VoucherID uint
}

// GenerationChargeListFilter 查询生成计费单的过滤条件
type GenerationChargeListFilter struct {
	Page     int
	PageSize int
	UserID   uint
	Status   string
}
