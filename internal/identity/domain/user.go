// 包 domain 身份/KYC 协作方的本地视图
package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// KYC 状态
const (
	KYCStatusUnsubmitted = "UNSUBMITTED"
	KYCStatusPending     = "PENDING"
	KYCStatusRejected    = "REJECTED"
	KYCStatusVerified    = "VERIFIED"
)

// 用户角色
const (
	RoleUser     = "user"
	RoleMerchant = "merchant"
	RoleAdmin    = "admin"
)

// UserAccount 用户账户实体
type UserAccount struct {
	gorm.Model
	UserID    string `gorm:"column:user_id;type:varchar(64);uniqueIndex;not null" json:"user_id"`
	Email     string `gorm:"column:email;type:varchar(128);index;not null" json:"email"`
	Role      string `gorm:"column:role;type:varchar(20);not null;default:user" json:"role"`
	KYCStatus string `gorm:"column:kyc_status;type:varchar(20);not null;default:UNSUBMITTED" json:"kyc_status"`
}

// TableName 表名
func (UserAccount) TableName() string {
	return "user_accounts"
}

// BankAccount 用户收款银行账户
type BankAccount struct {
	gorm.Model
	UserID        string     `gorm:"column:user_id;type:varchar(64);index;not null" json:"user_id"`
	BankName      string     `gorm:"column:bank_name;type:varchar(128);not null" json:"bank_name"`
	AccountNumber string     `gorm:"column:account_number;type:varchar(64);not null" json:"account_number"`
	AccountName   string     `gorm:"column:account_name;type:varchar(128);not null" json:"account_name"`
	BankCode      string     `gorm:"column:bank_code;type:varchar(32)" json:"bank_code"`
	IsPrimary     bool       `gorm:"column:is_primary;not null;default:false" json:"is_primary"`
	RemovedAt     *time.Time `gorm:"column:removed_at" json:"removed_at"`
}

// TableName 表名
func (BankAccount) TableName() string {
	return "user_bank_accounts"
}

// UserRepository 用户仓储接口
type UserRepository interface {
	// Get 按用户 ID 获取；不存在返回 nil
	Get(ctx context.Context, userID string) (*UserAccount, error)
	// GetPrimaryBankAccount 获取用户未删除的主收款账户；没有返回 nil
	GetPrimaryBankAccount(ctx context.Context, userID string) (*BankAccount, error)
}
