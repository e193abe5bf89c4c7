package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// User 身份协作方返回的用户视图
type User struct {
	ID        string
	Role      string
	KYCStatus string
	Email     string
}

// IsAdmin 是否管理员
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

// IdentityGate 身份/KYC 协作方
// CheckUser 在用户不存在时返回 NotFound；KYC 未通过时返回 Forbidden，
// 并区分待审核/已拒绝/未提交三种原因
type IdentityGate interface {
	CheckUser(ctx context.Context, userID string) (*User, error)
}

// BankDirectory 收款银行信息协作方
// PrimaryAccount 返回用户的主收款账户快照；没有时返回 nil
type BankDirectory interface {
	PrimaryAccount(ctx context.Context, userID string) (*PaymentDetails, error)
}

// OTPService OTP 协作方
type OTPService interface {
	Send(ctx context.Context, userID, purpose, destination string) error
	Verify(ctx context.Context, userID, purpose, code string) (bool, error)
}

// FeeSource 费率协作方
// RatePerUnit 返回 (操作类型, 资产, 对手币种) 的每单位费率；
// 无配置时返回 ConfigurationError，发起交易必须中止而非默认为零
type FeeSource interface {
	RatePerUnit(ctx context.Context, operation, asset, counterCurrency string) (decimal.Decimal, error)
}

// CustodyClient 托管钱包服务商适配器
// 每个移动资金的调用都必须带确定性幂等键，重试不会重复移动资金；
// 任何一次调用都是真实网络 IO，与本地事务不具备原子性
type CustodyClient interface {
	// EscrowDeposit 从用户服务商账户转入平台托管账户
	EscrowDeposit(ctx context.Context, sourceAccountID string, amount decimal.Decimal, currency, idempotencyKey string) (string, error)
	// ReleaseFromEscrow 从托管账户释放到收款方服务商账户
	ReleaseFromEscrow(ctx context.Context, destAccountID string, amount decimal.Decimal, currency, destAddress, idempotencyKey string) (string, error)
	// ReverseFromEscrow 取消时从托管账户回退到原出金方
	ReverseFromEscrow(ctx context.Context, destAccountID string, amount decimal.Decimal, currency, destAddress, idempotencyKey string) (string, error)
}

// WalletDirectory 本地钱包目录
// 查询范围固定为 (userID, currency, USER 类型, ACTIVE)，未命中返回 NotFound
type WalletDirectory interface {
	ResolveWalletID(ctx context.Context, userID, currency string) (uint, error)
	ResolveAccountID(ctx context.Context, userID, currency string) (string, error)
	ResolveDepositAddress(ctx context.Context, userID, currency string) (string, error)
}

// LedgerEntry 台账写入请求
type LedgerEntry struct {
	IdempotencyKey string
	Reference      string
	WalletID       uint
	UserID         string
	Type           string
	Amount         decimal.Decimal
	Currency       string
	Status         string
	ExternalTxID   string
	TradeRef       string
}

// LedgerRecorder 幂等台账写入
// 幂等键唯一冲突视为成功（记录已存在），这是重试金融操作安全的唯一机制
type LedgerRecorder interface {
	RecordIdempotent(ctx context.Context, entry LedgerEntry) error
}

// BalanceInvalidator 余额视图缓存失效
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...string)
}
