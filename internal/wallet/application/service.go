package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	p2pdomain "github.com/wyfcoding/p2ptrading/internal/p2p/domain"
	"github.com/wyfcoding/p2ptrading/internal/wallet/domain"
	"github.com/wyfcoding/p2ptrading/pkg/cache"
)

// WalletService 钱包查询门面：解析钱包目录、聚合余额视图
type WalletService struct {
	repo     domain.WalletRepository
	provider domain.ProviderBalanceFetcher
	cache    *cache.RedisCache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewWalletService 创建并返回一个新的 WalletService 实例。
func NewWalletService(
	repo domain.WalletRepository,
	provider domain.ProviderBalanceFetcher,
	redis *cache.RedisCache,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *WalletService {
	return &WalletService{
		repo:     repo,
		provider: provider,
		cache:    redis,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// ResolveWalletID 解析本地钱包 ID
func (s *WalletService) ResolveWalletID(ctx context.Context, userID, currency string) (uint, error) {
	wallet, err := s.repo.FindActive(ctx, userID, normalizeCurrency(currency))
	if err != nil {
		return 0, err
	}
	if wallet == nil {
		return 0, p2pdomain.NotFound(fmt.Sprintf("no active %s wallet for user", currency))
	}
	return wallet.ID, nil
}

// ResolveAccountID 解析服务商侧账户 ID
func (s *WalletService) ResolveAccountID(ctx context.Context, userID, currency string) (string, error) {
	wallet, err := s.repo.FindActive(ctx, userID, normalizeCurrency(currency))
	if err != nil {
		return "", err
	}
	if wallet == nil || wallet.ExternalWalletID == "" {
		return "", p2pdomain.NotFound(fmt.Sprintf("no provider account for user %s and currency %s", userID, currency))
	}
	return wallet.ExternalWalletID, nil
}

// ResolveDepositAddress 解析入金地址
func (s *WalletService) ResolveDepositAddress(ctx context.Context, userID, currency string) (string, error) {
	wallet, err := s.repo.FindActive(ctx, userID, normalizeCurrency(currency))
	if err != nil {
		return "", err
	}
	if wallet == nil || wallet.WalletAddress == "" {
		return "", p2pdomain.NotFound(fmt.Sprintf("no deposit address for user %s and currency %s", userID, currency))
	}
	return wallet.WalletAddress, nil
}

// WalletBalanceView 单币种余额视图
type WalletBalanceView struct {
	Currency         string          `json:"currency"`
	WalletAddress    string          `json:"wallet_address"`
	ExternalWalletID string          `json:"external_wallet_id"`
	Balance          *domain.Balance `json:"balance"`
	Error            bool            `json:"error,omitempty"`
}

func balanceCacheKey(userID string) string {
	return "balances:" + userID
}

// GetAllBalances 聚合用户所有钱包的服务商侧余额。
// 结果进短 TTL 缓存；任何变更操作提交后必须显式失效，
// 不能指望缓存自己足够快地过期
func (s *WalletService) GetAllBalances(ctx context.Context, userID string) ([]WalletBalanceView, error) {
	key := balanceCacheKey(userID)

	var cached []WalletBalanceView
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	wallets, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]WalletBalanceView, 0, len(wallets))
	for _, w := range wallets {
		view := WalletBalanceView{
			Currency:         w.Currency,
			WalletAddress:    w.WalletAddress,
			ExternalWalletID: w.ExternalWalletID,
		}
		bal, err := s.provider.GetBalance(ctx, w.ExternalWalletID, w.Currency)
		if err != nil {
			s.logger.ErrorContext(ctx, "provider balance fetch failed",
				"user_id", userID, "currency", w.Currency, "error", err)
			view.Error = true
			view.Balance = &domain.Balance{}
		} else {
			view.Balance = bal
		}
		views = append(views, view)
	}

	if err := s.cache.SetJSON(ctx, key, views, s.cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "failed to cache balances", "user_id", userID, "error", err)
	}
	return views, nil
}

// Invalidate 使指定用户的余额缓存失效。
// 失败只记日志：缓存短 TTL 兜底，不能让失效失败阻塞提交后的主流程
func (s *WalletService) Invalidate(ctx context.Context, userIDs ...string) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			keys = append(keys, balanceCacheKey(id))
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.WarnContext(ctx, "balance cache invalidation failed", "keys", keys, "error", err)
	}
}

// RecordIdempotent 实现 p2p 侧的台账写入口
func (s *WalletService) RecordIdempotent(ctx context.Context, entry p2pdomain.LedgerEntry) error {
	return s.repo.CreateLedgerIdempotent(ctx, &domain.LedgerTransaction{
		IdempotencyKey: entry.IdempotencyKey,
		Reference:      entry.Reference,
		WalletID:       entry.WalletID,
		UserID:         entry.UserID,
		Type:           entry.Type,
		Amount:         entry.Amount,
		Currency:       entry.Currency,
		Status:         entry.Status,
		ExternalTxID:   entry.ExternalTxID,
		TradeRef:       entry.TradeRef,
	})
}
