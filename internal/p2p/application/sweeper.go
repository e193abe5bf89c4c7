package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/p2ptrading/internal/p2p/domain"
)

const sweepBatchSize = 100

// Counter 周期任务的轮次计数钩子，prometheus.Counter 满足该接口
type Counter interface {
	Inc()
}

// Sweeper 后台巡检：
// 逾期未付款的交易自动取消回退，商家已付款但买家静默的交易自动转纠纷
type Sweeper struct {
	trades        domain.TradeRepository
	service       *TradeService
	interval      time.Duration
	silentTimeout time.Duration
	logger        *slog.Logger
	sweeps        Counter
}

// WithSweepCounter 挂接扫描轮次计数器，参数可为 nil
func (s *Sweeper) WithSweepCounter(c Counter) *Sweeper {
	s.sweeps = c
	return s
}

// NewSweeper 创建并返回一个新的 Sweeper 实例。
func NewSweeper(trades domain.TradeRepository, service *TradeService, interval, silentTimeout time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if silentTimeout <= 0 {
		silentTimeout = 30 * time.Minute
	}
	return &Sweeper{
		trades:        trades,
		service:       service,
		interval:      interval,
		silentTimeout: silentTimeout,
		logger:        logger,
	}
}

// Run 周期运行直到 ctx 取消
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "trade sweeper started",
		"interval", s.interval.String(), "silent_timeout", s.silentTimeout.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "trade sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	if s.sweeps != nil {
		s.sweeps.Inc()
	}
	s.cancelExpiredTrades(ctx)
	s.openDisputesForSilentBuyers(ctx)
}

// cancelExpiredTrades 逐笔取消已过期的未终结交易。
// 单笔失败不阻断整批，下一轮会再次扫到
func (s *Sweeper) cancelExpiredTrades(ctx context.Context) {
	expired, err := s.trades.FindExpired(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to scan expired trades", "error", err)
		return
	}
	for _, trade := range expired {
		// 只回收仍在等法币付款的交易；
		// 已标记付款或纠纷中的交易不能自动回退资金
		if trade.Status != domain.TradeStatusInit {
			continue
		}
		if _, err := s.service.cancel(ctx, trade, "system", "system", "trade expired without settlement"); err != nil {
			s.logger.ErrorContext(ctx, "failed to cancel expired trade",
				"reference", trade.Reference, "error", err)
			continue
		}
		s.logger.InfoContext(ctx, "expired trade cancelled", "reference", trade.Reference)
	}
}

// openDisputesForSilentBuyers 商家已标记付款但用户超时未放币的交易，
// 自动升级为纠纷交给人工处理，避免商家的钱两头落空
func (s *Sweeper) openDisputesForSilentBuyers(ctx context.Context) {
	cutoff := time.Now().Add(-s.silentTimeout)
	stuck, err := s.trades.FindStuckSince(ctx, domain.TradeStatusMerchantPaid, cutoff, sweepBatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to scan stalled trades", "error", err)
		return
	}
	for _, trade := range stuck {
		reason := "merchant marked fiat as paid but the seller has not released"
		err := s.trades.WithTx(ctx, func(ctx context.Context) error {
			if err := s.trades.TransitionStatus(ctx, trade.Reference,
				domain.TradeStatusMerchantPaid, domain.TradeStatusDisputePending,
				map[string]any{
					"dispute_reason":    reason,
					"dispute_opened_by": "system",
				},
				domain.NewTradeLog(trade.Reference, "system", "system", "dispute opened automatically: "+reason)); err != nil {
				return err
			}
			return s.service.appendEvent(ctx, domain.EventDisputeOpened, trade, domain.TradeStatusDisputePending, reason)
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to auto-open dispute",
				"reference", trade.Reference, "error", err)
			continue
		}
		s.logger.WarnContext(ctx, "dispute auto-opened for stalled trade", "reference", trade.Reference)
	}
}
