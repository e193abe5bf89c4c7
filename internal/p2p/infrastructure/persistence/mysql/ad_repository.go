package mysql

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/p2ptrading/internal/p2p/domain"
	"github.com/wyfcoding/p2ptrading/pkg/db"
)

// adRepository 商家广告仓储实现
type adRepository struct {
	db *db.DB
}

// NewAdRepository 创建并返回一个新的 adRepository 实例。
func NewAdRepository(database *db.DB) domain.AdRepository {
	return &adRepository{db: database}
}

func (r *adRepository) getDB(ctx context.Context) *gorm.DB {
	return db.FromContext(ctx, r.db.DB)
}

// Create 创建广告
func (r *adRepository) Create(ctx context.Context, ad *domain.MerchantAd) error {
	return r.getDB(ctx).WithContext(ctx).Create(ad).Error
}

// Get 按广告 ID 获取；不存在返回 nil
func (r *adRepository) Get(ctx context.Context, adID string) (*domain.MerchantAd, error) {
	var ad domain.MerchantAd
	err := r.getDB(ctx).WithContext(ctx).Where("ad_id = ?", adID).First(&ad).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ad, nil
}

// ListByMerchant 按商家分页查询
func (r *adRepository) ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*domain.MerchantAd, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.MerchantAd{}).
		Where("merchant_id = ? AND status <> ?", merchantID, domain.AdStatusClosed)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ads []*domain.MerchantAd
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&ads).Error
	if err != nil {
		return nil, 0, err
	}
	return ads, total, nil
}

// ReserveLiquidity 条件扣减流动性。
// 比较与扣减在单条 UPDATE 内完成，余量不足时零行命中，
// 并发发起方不可能同时扣走同一份流动性
func (r *adRepository) ReserveLiquidity(ctx context.Context, adID string, amount decimal.Decimal) error {
	result := r.getDB(ctx).WithContext(ctx).Model(&domain.MerchantAd{}).
		Where("ad_id = ? AND status = ? AND available_amount >= ?", adID, domain.AdStatusActive, amount).
		Update("available_amount", gorm.Expr("available_amount - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.InsufficientLiquidity("the ad does not have enough liquidity for this amount")
	}
	return nil
}

// RestoreLiquidity 原子回补流动性
func (r *adRepository) RestoreLiquidity(ctx context.Context, adID string, amount decimal.Decimal) error {
	return r.getDB(ctx).WithContext(ctx).Model(&domain.MerchantAd{}).
		Where("ad_id = ?", adID).
		Update("available_amount", gorm.Expr("available_amount + ?", amount)).Error
}

// UpdateStatus 更新广告状态
func (r *adRepository) UpdateStatus(ctx context.Context, adID string, status domain.AdStatus) error {
	result := r.getDB(ctx).WithContext(ctx).Model(&domain.MerchantAd{}).
		Where("ad_id = ?", adID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NotFound("ad " + adID + " not found")
	}
	return nil
}
