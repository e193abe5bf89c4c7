package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wyfcoding/p2ptrading/internal/wallet/domain"
	"github.com/wyfcoding/p2ptrading/pkg/db"
)

// walletRepository 钱包/台账仓储实现
type walletRepository struct {
	db *gorm.DB
}

// NewWalletRepository 创建并返回一个新的 walletRepository 实例。
func NewWalletRepository(gdb *gorm.DB) domain.WalletRepository {
	return &walletRepository{db: gdb}
}

func (r *walletRepository) getDB(ctx context.Context) *gorm.DB {
	return db.FromContext(ctx, r.db)
}

// FindActive 查找 (userID, currency, USER, ACTIVE) 钱包
func (r *walletRepository) FindActive(ctx context.Context, userID, currency string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := r.getDB(ctx).WithContext(ctx).
		Where("user_id = ? AND currency = ? AND wallet_type = ? AND status = ?",
			userID, currency, domain.WalletTypeUser, domain.WalletStatusActive).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

// ListActiveByUser 列出用户全部 ACTIVE 用户钱包
func (r *walletRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Wallet, error) {
	var wallets []*domain.Wallet
	err := r.getDB(ctx).WithContext(ctx).
		Where("user_id = ? AND wallet_type = ? AND status = ?",
			userID, domain.WalletTypeUser, domain.WalletStatusActive).
		Find(&wallets).Error
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

// CreateLedgerIdempotent 只插入的台账写。
// 幂等键唯一冲突说明记录已存在（安全重试），按成功处理
func (r *walletRepository) CreateLedgerIdempotent(ctx context.Context, txn *domain.LedgerTransaction) error {
	err := r.getDB(ctx).WithContext(ctx).Create(txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return err
	}
	return nil
}

// GetLedgerByExternalTxID 按服务商交易号查台账
func (r *walletRepository) GetLedgerByExternalTxID(ctx context.Context, externalTxID string) (*domain.LedgerTransaction, error) {
	var txn domain.LedgerTransaction
	err := r.getDB(ctx).WithContext(ctx).
		Where("external_tx_id = ?", externalTxID).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// GetLedgerByKey 按幂等键查台账
func (r *walletRepository) GetLedgerByKey(ctx context.Context, idempotencyKey string) (*domain.LedgerTransaction, error) {
	var txn domain.LedgerTransaction
	err := r.getDB(ctx).WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// UpdateLedgerStatus 更新台账状态并记录服务商交易号
func (r *walletRepository) UpdateLedgerStatus(ctx context.Context, idempotencyKey, status, externalTxID string) error {
	updates := map[string]any{"status": status}
	if externalTxID != "" {
		updates["external_tx_id"] = externalTxID
	}
	return r.getDB(ctx).WithContext(ctx).
		Model(&domain.LedgerTransaction{}).
		Where("idempotency_key = ?", idempotencyKey).
		Updates(updates).Error
}
