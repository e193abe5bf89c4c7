package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/p2ptrading/internal/p2p/domain"
	"github.com/wyfcoding/p2ptrading/pkg/db"
)

// tradeRepository 交易仓储实现
type tradeRepository struct {
	db *db.DB
}

// NewTradeRepository 创建并返回一个新的 tradeRepository 实例。
func NewTradeRepository(database *db.DB) domain.TradeRepository {
	return &tradeRepository{db: database}
}

func (r *tradeRepository) getDB(ctx context.Context) *gorm.DB {
	return db.FromContext(ctx, r.db.DB)
}

// WithTx 在一个本地事务中执行 fn
func (r *tradeRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithTx(ctx, fn)
}

// Create 创建交易
func (r *tradeRepository) Create(ctx context.Context, trade *domain.Trade) error {
	return r.getDB(ctx).WithContext(ctx).Create(trade).Error
}

// GetByReference 按交易编号获取，连同操作日志；不存在返回 nil
func (r *tradeRepository) GetByReference(ctx context.Context, reference string) (*domain.Trade, error) {
	var trade domain.Trade
	err := r.getDB(ctx).WithContext(ctx).
		Preload("Logs", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("occurred_at ASC")
		}).
		Where("reference = ?", reference).
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

// TransitionStatus 条件状态迁移。
// WHERE 同时带上 from 状态，RowsAffected 为 0 即说明并发方已抢先迁移
func (r *tradeRepository) TransitionStatus(ctx context.Context, reference string, from, to domain.TradeStatus, extra map[string]any, log domain.TradeLog) error {
	if !from.CanTransitionTo(to) {
		return domain.Conflict("transition from " + from.String() + " to " + to.String() + " is not allowed")
	}

	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	gdb := r.getDB(ctx).WithContext(ctx)
	result := gdb.Model(&domain.Trade{}).
		Where("reference = ? AND status = ?", reference, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.Conflict("trade " + reference + " is no longer in status " + from.String())
	}
	return gdb.Create(&log).Error
}

// AppendLog 追加一条操作日志
func (r *tradeRepository) AppendLog(ctx context.Context, log domain.TradeLog) error {
	return r.getDB(ctx).WithContext(ctx).Create(&log).Error
}

// CountActiveForAd 统计引用某广告的未终结交易数
func (r *tradeRepository) CountActiveForAd(ctx context.Context, adID string) (int64, error) {
	var count int64
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Trade{}).
		Where("ad_id = ? AND status IN ?", adID, []domain.TradeStatus{
			domain.TradeStatusInit,
			domain.TradeStatusMerchantPaid,
			domain.TradeStatusPaymentConfirmed,
			domain.TradeStatusDisputePending,
		}).
		Count(&count).Error
	return count, err
}

// FindStuckSince 查询某状态下停留到 cutoff 之前的交易
func (r *tradeRepository) FindStuckSince(ctx context.Context, status domain.TradeStatus, cutoff time.Time, limit int) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	err := r.getDB(ctx).WithContext(ctx).
		Where("status = ? AND updated_at <= ?", status, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// FindExpired 查询非终态且已过期的交易
func (r *tradeRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	err := r.getDB(ctx).WithContext(ctx).
		Where("expires_at < ? AND status IN ?", now, []domain.TradeStatus{
			domain.TradeStatusInit,
			domain.TradeStatusMerchantPaid,
			domain.TradeStatusPaymentConfirmed,
			domain.TradeStatusDisputePending,
		}).
		Order("expires_at ASC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// List 分页查询
func (r *tradeRepository) List(ctx context.Context, filter domain.TradeFilter, limit, offset int) ([]*domain.Trade, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.Trade{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.MerchantID != "" {
		query = query.Where("merchant_id = ?", filter.MerchantID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var trades []*domain.Trade
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&trades).Error
	if err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

// AppendEvent 在当前事务内追加一条 outbox 消息
func (r *tradeRepository) AppendEvent(ctx context.Context, msg *domain.OutboxMessage) error {
	return r.getDB(ctx).WithContext(ctx).Create(msg).Error
}
