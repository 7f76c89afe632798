package constants

// 代金券类型常量
const (
	VoucherTypePercentage  = "percentage_discount"
	VoucherTypeFixed       = "fixed_discount"
	VoucherTypeCreditGrant = "credit_grant"
)

// 积分流水类型常量
const (
	CreditTxnTypeVoucherGrant     = "voucher_grant"
	CreditTxnTypeGenerationDebit  = "generation_debit"
	CreditTxnTypeGenerationRefund = "generation_refund"
	CreditTxnTypeGenerationExtra  = "generation_extra_debit"
	CreditTxnTypeSeedGrant        = "seed_grant"
)

// 积分流水方向常量
const (
	CreditTxnDirectionIn  = "in"
	CreditTxnDirectionOut = "out"
)

// 生成计费单状态常量
const (
	ChargeStatusPending            = "pending"
	ChargeStatusDebited            = "debited"
	ChargeStatusSettled            = "settled"
	ChargeStatusRefunded           = "refunded"
	ChargeStatusPartialDiscrepancy = "partial_discrepancy"
)

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 套餐标识常量
const (
	PlanTier1 = "tier1"
	PlanTier2 = "tier2"
	PlanTier3 = "tier3"
)

// 异步任务类型常量
const (
	TaskGenerationTimeoutRefund = "generation:timeout_refund"
	QueueDefault                = "default"
)
