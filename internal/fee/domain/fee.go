// 包 domain 费率服务的领域模型
package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 费率适用的操作类型
const (
	OperationP2P        = "P2P"
	OperationWithdrawal = "WITHDRAWAL"
)

// FeeRule 费率规则实体
// 按 (操作类型, 资产, 对手币种) 唯一定位一条每单位费率
type FeeRule struct {
	gorm.Model
	// 操作类型（如 P2P, WITHDRAWAL）
	Operation string `gorm:"column:operation;type:varchar(20);not null;uniqueIndex:idx_fee_rule" json:"operation"`
	// 资产币种
	Asset string `gorm:"column:asset;type:varchar(10);not null;uniqueIndex:idx_fee_rule" json:"asset"`
	// 对手币种（法币）
	CounterCurrency string `gorm:"column:counter_currency;type:varchar(10);not null;uniqueIndex:idx_fee_rule" json:"counter_currency"`
	// 每资产单位费率
	RatePerUnit decimal.Decimal `gorm:"column:rate_per_unit;type:decimal(32,18);not null" json:"rate_per_unit"`
	// 是否启用
	Active bool `gorm:"column:active;not null;default:true" json:"active"`
}

// TableName 表名
func (FeeRule) TableName() string {
	return "fee_rules"
}

// FeeRepository 费率仓储接口
type FeeRepository interface {
	// Save 保存费率规则
	Save(ctx context.Context, rule *FeeRule) error
	// GetRule 获取启用中的费率规则；不存在返回 nil
	GetRule(ctx context.Context, operation, asset, counterCurrency string) (*FeeRule, error)
	// ListRules 列出全部规则
	ListRules(ctx context.Context) ([]*FeeRule, error)
}
