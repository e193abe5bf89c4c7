package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wyfcoding/p2ptrading/internal/identity/domain"
	"github.com/wyfcoding/p2ptrading/pkg/db"
)

// userRepository 用户仓储实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建并返回一个新的 userRepository 实例。
func NewUserRepository(gdb *gorm.DB) domain.UserRepository {
	return &userRepository{db: gdb}
}

func (r *userRepository) getDB(ctx context.Context) *gorm.DB {
	return db.FromContext(ctx, r.db)
}

// Get 按用户 ID 获取
func (r *userRepository) Get(ctx context.Context, userID string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := r.getDB(ctx).WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetPrimaryBankAccount 获取用户未删除的主收款账户
func (r *userRepository) GetPrimaryBankAccount(ctx context.Context, userID string) (*domain.BankAccount, error) {
	var account domain.BankAccount
	err := r.getDB(ctx).WithContext(ctx).
		Where("user_id = ? AND is_primary = ? AND removed_at IS NULL", userID, true).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}
