package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AmountPrecision 资产金额统一保留的小数位数
const AmountPrecision = 8

// TradeStatus 交易状态
type TradeStatus int8

const (
	TradeStatusInit              TradeStatus = 1 // 待法币付款
	TradeStatusMerchantPaid      TradeStatus = 2 // 商家已付法币
	TradeStatusPaymentConfirmed  TradeStatus = 3 // 买家已确认付款
	TradeStatusDisputePending    TradeStatus = 4 // 纠纷处理中
	TradeStatusCompleted         TradeStatus = 5 // 已完成
	TradeStatusCancelled         TradeStatus = 6 // 已取消（资金未动）
	TradeStatusCancelledReversed TradeStatus = 7 // 已取消（托管资金已回退）
	TradeStatusFailed            TradeStatus = 8 // 失败，需人工对账
)

func (s TradeStatus) String() string {
	switch s {
	case TradeStatusInit:
		return "INIT"
	case TradeStatusMerchantPaid:
		return "MERCHANT_PAID"
	case TradeStatusPaymentConfirmed:
		return "PAYMENT_CONFIRMED_BY_BUYER"
	case TradeStatusDisputePending:
		return "DISPUTE_PENDING"
	case TradeStatusCompleted:
		return "COMPLETED"
	case TradeStatusCancelled:
		return "CANCELLED"
	case TradeStatusCancelledReversed:
		return "CANCELLED_REVERSED"
	case TradeStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal 是否终态
func (s TradeStatus) IsTerminal() bool {
	switch s {
	case TradeStatusCompleted, TradeStatusCancelled, TradeStatusCancelledReversed, TradeStatusFailed:
		return true
	case TradeStatusInit, TradeStatusMerchantPaid, TradeStatusPaymentConfirmed, TradeStatusDisputePending:
		return false
	default:
		return false
	}
}

// CanTransitionTo 状态机允许的迁移
func (s TradeStatus) CanTransitionTo(target TradeStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch target {
	case TradeStatusMerchantPaid:
		return s == TradeStatusInit
	case TradeStatusPaymentConfirmed:
		return s == TradeStatusInit
	case TradeStatusDisputePending:
		return s == TradeStatusInit || s == TradeStatusMerchantPaid || s == TradeStatusPaymentConfirmed
	case TradeStatusCompleted:
		return s == TradeStatusMerchantPaid || s == TradeStatusPaymentConfirmed || s == TradeStatusDisputePending
	case TradeStatusCancelled, TradeStatusCancelledReversed, TradeStatusFailed:
		// 任意非终态可退出
		return true
	case TradeStatusInit:
		return false
	default:
		return false
	}
}

// TradeSide 交易方向（发起方视角）
type TradeSide int8

const (
	TradeSideBuy  TradeSide = 1 // 用户买入加密资产
	TradeSideSell TradeSide = 2 // 用户卖出加密资产
)

func (s TradeSide) String() string {
	switch s {
	case TradeSideBuy:
		return "BUY"
	case TradeSideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// PaymentDetails 收款银行信息快照，创建时捕获后不再变更
type PaymentDetails struct {
	BankName      string `gorm:"column:bank_name;type:varchar(128)" json:"bank_name"`
	AccountNumber string `gorm:"column:account_number;type:varchar(64)" json:"account_number"`
	AccountName   string `gorm:"column:account_name;type:varchar(128)" json:"account_name"`
	BankCode      string `gorm:"column:bank_code;type:varchar(32)" json:"bank_code"`
}

// Trade P2P 交易聚合根
// 买家与商家针对一条广告达成的一次撮合，法币与资产两腿计价
type Trade struct {
	gorm.Model
	// 交易编号 (业务主键)，全局唯一，作为所有外部调用的幂等锚点
	Reference string `gorm:"column:reference;type:varchar(64);uniqueIndex;not null" json:"reference"`
	// 发起方（用户/买家）ID
	UserID string `gorm:"column:user_id;type:varchar(64);index;not null" json:"user_id"`
	// 商家 ID
	MerchantID string `gorm:"column:merchant_id;type:varchar(64);index;not null" json:"merchant_id"`
	// 来源广告 ID
	AdID string `gorm:"column:ad_id;type:varchar(64);index;not null" json:"ad_id"`
	// 交易方向（发起方视角）
	Side TradeSide `gorm:"column:side;type:tinyint;not null" json:"side"`
	// 法币金额
	FiatAmount decimal.Decimal `gorm:"column:fiat_amount;type:decimal(32,18);not null" json:"fiat_amount"`
	// 基础资产数量（法币金额 / 挂单价），广告流动性按此数预留
	BaseAmount decimal.Decimal `gorm:"column:base_amount;type:decimal(32,18);not null" json:"base_amount"`
	// 托管的资产总量
	GrossAmount decimal.Decimal `gorm:"column:gross_amount;type:decimal(32,18);not null" json:"gross_amount"`
	// 平台手续费（资产单位），创建时一次性计算
	PlatformFee decimal.Decimal `gorm:"column:platform_fee;type:decimal(32,18);not null" json:"platform_fee"`
	// 最终释放给收款方的资产净额
	NetAmount decimal.Decimal `gorm:"column:net_amount;type:decimal(32,18);not null" json:"net_amount"`
	// 挂单价快照
	ListingRate decimal.Decimal `gorm:"column:listing_rate;type:decimal(32,18);not null" json:"listing_rate"`
	// 市场价快照
	MarketRate decimal.Decimal `gorm:"column:market_rate;type:decimal(32,18)" json:"market_rate"`
	// 法币币种
	FiatCurrency string `gorm:"column:fiat_currency;type:varchar(10);not null" json:"fiat_currency"`
	// 资产币种
	AssetCurrency string `gorm:"column:asset_currency;type:varchar(10);not null" json:"asset_currency"`
	// 托管入金的服务商交易号
	EscrowTxID string `gorm:"column:escrow_tx_id;type:varchar(128)" json:"escrow_tx_id"`
	// 状态
	Status TradeStatus `gorm:"column:status;type:tinyint;not null;default:1" json:"status"`
	// 过期时间
	ExpiresAt time.Time `gorm:"column:expires_at;index;not null" json:"expires_at"`
	// 结算时间
	SettledAt *time.Time `gorm:"column:settled_at" json:"settled_at"`
	// 纠纷原因
	DisputeReason string `gorm:"column:dispute_reason;type:varchar(512)" json:"dispute_reason"`
	// 纠纷证据
	DisputeEvidence string `gorm:"column:dispute_evidence;type:text" json:"dispute_evidence"`
	// 纠纷发起人
	DisputeOpenedBy string `gorm:"column:dispute_opened_by;type:varchar(64)" json:"dispute_opened_by"`
	// 收款银行信息快照
	PaymentDetails PaymentDetails `gorm:"embedded;embeddedPrefix:payment_" json:"payment_details"`
	// 操作日志（追加写）
	Logs []TradeLog `gorm:"foreignKey:TradeRef;references:Reference" json:"logs"`
}

// TableName 表名
func (Trade) TableName() string {
	return "p2p_trades"
}

// TradeLog 交易操作日志
type TradeLog struct {
	gorm.Model
	TradeRef   string    `gorm:"column:trade_ref;type:varchar(64);index;not null" json:"trade_ref"`
	Actor      string    `gorm:"column:actor;type:varchar(64)" json:"actor"`
	Role       string    `gorm:"column:role;type:varchar(20);not null" json:"role"`
	Message    string    `gorm:"column:message;type:varchar(512);not null" json:"message"`
	OccurredAt time.Time `gorm:"column:occurred_at;not null" json:"occurred_at"`
}

// TableName 表名
func (TradeLog) TableName() string {
	return "p2p_trade_logs"
}

// NewTradeLog 构造一条操作日志
func NewTradeLog(ref, actor, role, message string) TradeLog {
	return TradeLog{
		TradeRef:   ref,
		Actor:      actor,
		Role:       role,
		Message:    message,
		OccurredAt: time.Now(),
	}
}

// SellerID 资产卖方：托管资金的所有者，释放前的最终授权人
func (t *Trade) SellerID() string {
	if t.Side == TradeSideBuy {
		return t.MerchantID
	}
	return t.UserID
}

// RecipientID 资产收款方
func (t *Trade) RecipientID() string {
	if t.Side == TradeSideBuy {
		return t.UserID
	}
	return t.MerchantID
}

// FiatRecipientID 法币收款方（与资产收款方相对）
func (t *Trade) FiatRecipientID() string {
	if t.Side == TradeSideBuy {
		return t.MerchantID
	}
	return t.UserID
}

// IsBuyer 判断 userID 是否为交易发起方
func (t *Trade) IsBuyer(userID string) bool {
	return t.UserID == userID
}

// IsMerchant 判断 userID 是否为商家
func (t *Trade) IsMerchant(userID string) bool {
	return t.MerchantID == userID
}

// IsExpired 是否已过期
func (t *Trade) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// RequiresEscrowReversal 取消时是否需要回退托管资金：
// 托管入金已发生且尚未释放
func (t *Trade) RequiresEscrowReversal() bool {
	return t.EscrowTxID != "" && t.Status != TradeStatusCompleted
}

// CheckAmounts 校验金额不变量：gross = net + fee，0 <= fee < gross
func (t *Trade) CheckAmounts() error {
	if t.PlatformFee.IsNegative() {
		return BadRequest("platform fee cannot be negative")
	}
	if t.PlatformFee.GreaterThanOrEqual(t.GrossAmount) {
		return BadRequest("platform fee must be below the escrowed amount")
	}
	if !t.GrossAmount.Equal(t.NetAmount.Add(t.PlatformFee)) {
		return BadRequest("escrowed amount must equal net amount plus platform fee")
	}
	return nil
}

// 幂等键：同一 (交易编号, 操作) 的重试永远命中同一个键

// EscrowIdempotencyKey 托管入金幂等键
func (t *Trade) EscrowIdempotencyKey() string {
	return "P2P-ESCROW-INIT-" + t.Reference
}

// ReleaseIdempotencyKey 释放幂等键
func (t *Trade) ReleaseIdempotencyKey() string {
	return "P2P-REL-FINAL-" + t.Reference
}

// ReversalIdempotencyKey 托管回退幂等键
func (t *Trade) ReversalIdempotencyKey() string {
	return t.Reference + "-REVERSAL"
}

// RefundLedgerKey 退款台账幂等键
func (t *Trade) RefundLedgerKey() string {
	return "P2P:" + t.Reference + ":REFUND"
}
