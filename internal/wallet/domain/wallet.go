// 包 domain 钱包与本地台账的领域模型
package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WalletType 钱包类型
const (
	WalletTypeUser   = "USER"   // 用户钱包
	WalletTypeMaster = "MASTER" // 平台托管主钱包
)

// WalletStatus 钱包状态
const (
	WalletStatusActive   = "ACTIVE"
	WalletStatusDisabled = "DISABLED"
)

// Wallet 钱包实体
// 每用户每币种一条，关联服务商侧账户 ID 与入金地址
// 不变量：每 (user_id, currency) 至多一个 ACTIVE 钱包
type Wallet struct {
	gorm.Model
	// 所属用户 ID
	UserID string `gorm:"column:user_id;type:varchar(64);index:idx_wallet_user_currency;not null" json:"user_id"`
	// 币种
	Currency string `gorm:"column:currency;type:varchar(10);index:idx_wallet_user_currency;not null" json:"currency"`
	// 钱包类型（USER/MASTER）
	WalletType string `gorm:"column:wallet_type;type:varchar(10);not null;default:USER" json:"wallet_type"`
	// 服务商侧账户 ID
	ExternalWalletID string `gorm:"column:external_wallet_id;type:varchar(128);index" json:"external_wallet_id"`
	// 链上入金地址
	WalletAddress string `gorm:"column:wallet_address;type:varchar(128)" json:"wallet_address"`
	// 状态
	Status string `gorm:"column:status;type:varchar(10);not null;default:ACTIVE" json:"status"`
}

// TableName 表名
func (Wallet) TableName() string {
	return "wallets"
}

// 台账记录类型
const (
	LedgerTypeEscrow     = "ESCROW"
	LedgerTypeRelease    = "RELEASE"
	LedgerTypeRefund     = "REFUND"
	LedgerTypeDeposit    = "DEPOSIT"
	LedgerTypeWithdrawal = "WITHDRAWAL"
	LedgerTypeFee        = "FEE"
)

// 台账记录状态
const (
	LedgerStatusPending   = "PENDING"
	LedgerStatusCompleted = "COMPLETED"
	LedgerStatusFailed    = "FAILED"
)

// LedgerTransaction 台账记录
// 一次资金移动的不可变记录：只追加、只更新状态，从不删除
type LedgerTransaction struct {
	gorm.Model
	// 幂等键，唯一。由 (操作类型, 交易编号) 确定性派生，
	// 重试操作命中同一条记录而不是产生重复资金移动
	IdempotencyKey string `gorm:"column:idempotency_key;type:varchar(128);uniqueIndex;not null" json:"idempotency_key"`
	// 业务引用号
	Reference string `gorm:"column:reference;type:varchar(128);index" json:"reference"`
	// 所属钱包 ID
	WalletID uint `gorm:"column:wallet_id;index;not null" json:"wallet_id"`
	// 所属用户 ID
	UserID string `gorm:"column:user_id;type:varchar(64);index;not null" json:"user_id"`
	// 类型
	Type string `gorm:"column:type;type:varchar(20);not null" json:"type"`
	// 金额
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(32,18);not null" json:"amount"`
	// 币种
	Currency string `gorm:"column:currency;type:varchar(10);not null" json:"currency"`
	// 状态
	Status string `gorm:"column:status;type:varchar(20);not null" json:"status"`
	// 服务商侧交易号，用于 webhook 回执关联
	ExternalTxID string `gorm:"column:external_tx_id;type:varchar(128);index" json:"external_tx_id"`
	// 触发该记录的 P2P 交易编号
	TradeRef string `gorm:"column:trade_ref;type:varchar(64);index" json:"trade_ref"`
}

// TableName 表名
func (LedgerTransaction) TableName() string {
	return "ledger_transactions"
}

// Balance 服务商侧余额视图
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
	Total     decimal.Decimal `json:"total"`
}

// WalletRepository 钱包/台账仓储接口
type WalletRepository interface {
	// FindActive 查找 (userID, currency, USER, ACTIVE) 钱包；不存在返回 nil
	FindActive(ctx context.Context, userID, currency string) (*Wallet, error)
	// ListActiveByUser 列出用户全部 ACTIVE 用户钱包
	ListActiveByUser(ctx context.Context, userID string) ([]*Wallet, error)
	// CreateLedgerIdempotent 只插入的台账写；幂等键唯一冲突视为成功
	CreateLedgerIdempotent(ctx context.Context, txn *LedgerTransaction) error
	// GetLedgerByExternalTxID 按服务商交易号查台账；不存在返回 nil
	GetLedgerByExternalTxID(ctx context.Context, externalTxID string) (*LedgerTransaction, error)
	// GetLedgerByKey 按幂等键查台账；不存在返回 nil
	GetLedgerByKey(ctx context.Context, idempotencyKey string) (*LedgerTransaction, error)
	// UpdateLedgerStatus 更新台账状态并记录服务商交易号
	UpdateLedgerStatus(ctx context.Context, idempotencyKey, status, externalTxID string) error
}

// ProviderBalanceFetcher 服务商余额查询
type ProviderBalanceFetcher interface {
	GetBalance(ctx context.Context, externalWalletID, currency string) (*Balance, error)
}
