package domain

import (
	"time"

	"gorm.io/gorm"
)

// 交易生命周期事件类型，经 outbox 投递给通知侧
const (
	EventTradeCreated     = "p2p.trade.created"
	EventBuyerPaid        = "p2p.trade.buyer_paid"
	EventMerchantPaid     = "p2p.trade.merchant_paid"
	EventCryptoReleased   = "p2p.trade.released"
	EventTradeCancelled   = "p2p.trade.cancelled"
	EventDisputeOpened    = "p2p.trade.dispute_opened"
	EventDisputeResolved  = "p2p.trade.dispute_resolved"
	EventTradeFailed      = "p2p.trade.failed"
	EventSettlementOTPSet = "p2p.trade.settlement_otp_sent"
)

// TradeEvent 事件载荷
type TradeEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	Reference  string    `json:"reference"`
	UserID     string    `json:"user_id"`
	MerchantID string    `json:"merchant_id"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OutboxStatus outbox 消息状态
type OutboxStatus int8

const (
	OutboxStatusPending OutboxStatus = 1 // 待投递
	OutboxStatusSent    OutboxStatus = 2 // 已投递
)

// OutboxMessage 事务性 outbox 消息
// 与状态变更在同一本地事务内落库，由独立分发器异步投递，至少一次
type OutboxMessage struct {
	gorm.Model
	EventID string       `gorm:"column:event_id;type:varchar(64);uniqueIndex;not null" json:"event_id"`
	Topic   string       `gorm:"column:topic;type:varchar(128);not null" json:"topic"`
	Key     string       `gorm:"column:message_key;type:varchar(128);not null" json:"key"`
	Payload []byte       `gorm:"column:payload;type:blob;not null" json:"payload"`
	Status  OutboxStatus `gorm:"column:status;type:tinyint;not null;default:1;index" json:"status"`
	SentAt  *time.Time   `gorm:"column:sent_at" json:"sent_at"`
}

// TableName 表名
func (OutboxMessage) TableName() string {
	return "p2p_outbox_messages"
}
