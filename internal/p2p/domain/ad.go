// 包 domain P2P 交易引擎的领域模型
package domain

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AdDirection 广告方向（商家视角）
type AdDirection int8

const (
	AdDirectionBuy  AdDirection = 1 // 商家买入加密资产
	AdDirectionSell AdDirection = 2 // 商家卖出加密资产
)

func (d AdDirection) String() string {
	switch d {
	case AdDirectionBuy:
		return "BUY"
	case AdDirectionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// AdStatus 广告状态
type AdStatus int8

const (
	AdStatusActive   AdStatus = 1 // 上架
	AdStatusInactive AdStatus = 2 // 商家暂停
	AdStatusClosed   AdStatus = 3 // 软删除
)

func (s AdStatus) String() string {
	switch s {
	case AdStatusActive:
		return "ACTIVE"
	case AdStatusInactive:
		return "INACTIVE"
	case AdStatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// MerchantAd 商家广告实体
// 商家挂出的资产/法币买卖报价，交易针对广告发起
type MerchantAd struct {
	gorm.Model
	// 广告 ID (业务主键)，全局唯一
	AdID string `gorm:"column:ad_id;type:varchar(64);uniqueIndex;not null" json:"ad_id"`
	// 商家用户 ID
	MerchantID string `gorm:"column:merchant_id;type:varchar(64);index;not null" json:"merchant_id"`
	// 方向（创建后不可变）
	Direction AdDirection `gorm:"column:direction;type:tinyint;not null" json:"direction"`
	// 加密资产（如 CNGN, USDC），创建后不可变
	Asset string `gorm:"column:asset;type:varchar(10);not null" json:"asset"`
	// 法币（如 NGN, RMB），创建后不可变
	Fiat string `gorm:"column:fiat;type:varchar(10);not null" json:"fiat"`
	// 单价（每资产单位法币数）
	Price decimal.Decimal `gorm:"column:price;type:decimal(32,18);not null" json:"price"`
	// 剩余可交易流动性（资产单位）
	AvailableAmount decimal.Decimal `gorm:"column:available_amount;type:decimal(32,18);default:0;not null" json:"available_amount"`
	// 单笔最小法币额
	MinLimit decimal.Decimal `gorm:"column:min_limit;type:decimal(32,18);not null" json:"min_limit"`
	// 单笔最大法币额
	MaxLimit decimal.Decimal `gorm:"column:max_limit;type:decimal(32,18);not null" json:"max_limit"`
	// 支持的付款方式（逗号分隔）
	PaymentMethods string `gorm:"column:payment_methods;type:varchar(255)" json:"payment_methods"`
	// 单笔交易时限（分钟）
	TimeLimitMinutes int `gorm:"column:time_limit_minutes;not null" json:"time_limit_minutes"`
	// 状态
	Status AdStatus `gorm:"column:status;type:tinyint;not null;default:1" json:"status"`
}

// TableName 表名
func (MerchantAd) TableName() string {
	return "merchant_ads"
}

// Validate 校验广告字段
func (a *MerchantAd) Validate() error {
	if a.MerchantID == "" {
		return BadRequest("merchant id is required")
	}
	if a.Direction != AdDirectionBuy && a.Direction != AdDirectionSell {
		return BadRequest("invalid ad direction")
	}
	if a.Asset == "" || a.Fiat == "" {
		return BadRequest("asset and fiat currencies are required")
	}
	if !a.Price.IsPositive() {
		return BadRequest("price must be positive")
	}
	if a.AvailableAmount.IsNegative() {
		return BadRequest("available amount cannot be negative")
	}
	if a.MaxLimit.LessThan(a.MinLimit) {
		return BadRequest("max limit must not be below min limit")
	}
	if a.TimeLimitMinutes <= 0 {
		return BadRequest("time limit per trade is required")
	}
	return nil
}

// TradeSide 交易方向（发起方/用户视角），由广告方向推导
func (a *MerchantAd) TradeSide() TradeSide {
	if a.Direction == AdDirectionSell {
		return TradeSideBuy
	}
	return TradeSideSell
}
