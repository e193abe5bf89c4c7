package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TradeFilter 交易查询条件
type TradeFilter struct {
	Status     *TradeStatus
	UserID     string
	MerchantID string
}

// TradeRepository 交易仓储接口
type TradeRepository interface {
	// WithTx 在一个本地事务中执行 fn，事务句柄经 context 向下传递
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// Create 创建交易
	Create(ctx context.Context, trade *Trade) error
	// GetByReference 按交易编号获取；不存在返回 nil
	GetByReference(ctx context.Context, reference string) (*Trade, error)
	// TransitionStatus 按 (reference, from) 条件更新状态并追加日志；
	// 条件不命中说明并发迁移已发生，返回 Conflict
	TransitionStatus(ctx context.Context, reference string, from, to TradeStatus, extra map[string]any, log TradeLog) error
	// AppendLog 追加一条操作日志
	AppendLog(ctx context.Context, log TradeLog) error
	// CountActiveForAd 统计引用某广告的未终结交易数
	CountActiveForAd(ctx context.Context, adID string) (int64, error)
	// FindStuckSince 查询某状态下且 updated_at 不晚于 cutoff 的交易
	FindStuckSince(ctx context.Context, status TradeStatus, cutoff time.Time, limit int) ([]*Trade, error)
	// FindExpired 查询非终态且已过 expires_at 的交易
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*Trade, error)
	// List 分页查询
	List(ctx context.Context, filter TradeFilter, limit, offset int) ([]*Trade, int64, error)
	// AppendEvent 在当前事务内追加一条 outbox 消息
	AppendEvent(ctx context.Context, msg *OutboxMessage) error
}

// AdRepository 商家广告仓储接口
type AdRepository interface {
	// Create 创建广告
	Create(ctx context.Context, ad *MerchantAd) error
	// Get 按广告 ID 获取；不存在返回 nil
	Get(ctx context.Context, adID string) (*MerchantAd, error)
	// ListByMerchant 按商家分页查询
	ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*MerchantAd, int64, error)
	// ReserveLiquidity 条件扣减流动性：仅当剩余量足够时扣减，
	// 否则返回 InsufficientLiquidity（比较与扣减必须是单条原子更新）
	ReserveLiquidity(ctx context.Context, adID string, amount decimal.Decimal) error
	// RestoreLiquidity 原子回补流动性
	RestoreLiquidity(ctx context.Context, adID string, amount decimal.Decimal) error
	// UpdateStatus 更新广告状态
	UpdateStatus(ctx context.Context, adID string, status AdStatus) error
}
