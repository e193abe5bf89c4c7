// Package messaging 将事务性 outbox 中的事件投递到 Kafka
package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/p2ptrading/internal/p2p/domain"
	"github.com/wyfcoding/p2ptrading/pkg/db"
)

const dispatchBatchSize = 100

// Producer 消息投递所需的最小生产者能力
type Producer interface {
	SendRaw(ctx context.Context, topic string, key string, value []byte) error
}

// Counter 投递计数钩子，prometheus.Counter 满足该接口
type Counter interface {
	Inc()
}

// OutboxDispatcher outbox 分发器
// 轮询待投递事件并发送到 Kafka，至少一次语义：
// 发送成功但标记失败时下一轮会重发，消费方按 event_id 去重
type OutboxDispatcher struct {
	db        *db.DB
	producer  Producer
	interval  time.Duration
	logger    *slog.Logger
	published Counter
	failures  Counter
}

// NewOutboxDispatcher 创建并返回一个新的 OutboxDispatcher 实例。
func NewOutboxDispatcher(database *db.DB, producer Producer, interval time.Duration, logger *slog.Logger) *OutboxDispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &OutboxDispatcher{db: database, producer: producer, interval: interval, logger: logger}
}

// WithMetrics 挂接投递成功/失败计数器，任一参数可为 nil
func (d *OutboxDispatcher) WithMetrics(published, failures Counter) *OutboxDispatcher {
	d.published = published
	d.failures = failures
	return d
}

// Run 周期运行直到 ctx 取消
func (d *OutboxDispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.InfoContext(ctx, "outbox dispatcher started", "interval", d.interval.String())

	for {
		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "outbox dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := d.dispatchPending(ctx); err != nil {
				d.logger.ErrorContext(ctx, "outbox dispatch round failed", "error", err)
			}
		}
	}
}

func (d *OutboxDispatcher) dispatchPending(ctx context.Context) error {
	var pending []domain.OutboxMessage
	err := d.db.DB.WithContext(ctx).
		Where("status = ?", domain.OutboxStatusPending).
		Order("id ASC").
		Limit(dispatchBatchSize).
		Find(&pending).Error
	if err != nil {
		return err
	}

	for i := range pending {
		msg := &pending[i]
		if err := d.producer.SendRaw(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			// 保持顺序，这一轮到此为止
			if d.failures != nil {
				d.failures.Inc()
			}
			d.logger.ErrorContext(ctx, "failed to publish outbox event",
				"event_id", msg.EventID, "topic", msg.Topic, "error", err)
			return err
		}
		if d.published != nil {
			d.published.Inc()
		}

		now := time.Now()
		err := d.db.DB.WithContext(ctx).Model(&domain.OutboxMessage{}).
			Where("id = ?", msg.ID).
			Updates(map[string]any{"status": domain.OutboxStatusSent, "sent_at": now}).Error
		if err != nil {
			d.logger.ErrorContext(ctx, "failed to mark outbox event as sent",
				"event_id", msg.EventID, "error", err)
			return err
		}
	}
	return nil
}
