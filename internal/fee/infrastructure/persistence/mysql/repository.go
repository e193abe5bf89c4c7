package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wyfcoding/p2ptrading/internal/fee/domain"
	"github.com/wyfcoding/p2ptrading/pkg/db"
)

// feeRepository 费率仓储实现
type feeRepository struct {
	db *gorm.DB
}

// NewFeeRepository 创建并返回一个新的 feeRepository 实例。
func NewFeeRepository(gdb *gorm.DB) domain.FeeRepository {
	return &feeRepository{db: gdb}
}

func (r *feeRepository) getDB(ctx context.Context) *gorm.DB {
	return db.FromContext(ctx, r.db)
}

// Save 保存费率规则
func (r *feeRepository) Save(ctx context.Context, rule *domain.FeeRule) error {
	return r.getDB(ctx).WithContext(ctx).Save(rule).Error
}

// GetRule 获取启用中的费率规则
func (r *feeRepository) GetRule(ctx context.Context, operation, asset, counterCurrency string) (*domain.FeeRule, error) {
	var rule domain.FeeRule
	err := r.getDB(ctx).WithContext(ctx).
		Where("operation = ? AND asset = ? AND counter_currency = ? AND active = ?",
			operation, asset, counterCurrency, true).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// ListRules 列出全部规则
func (r *feeRepository) ListRules(ctx context.Context) ([]*domain.FeeRule, error) {
	var rules []*domain.FeeRule
	if err := r.getDB(ctx).WithContext(ctx).Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}
