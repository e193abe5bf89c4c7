package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/p2ptrading/internal/fee/domain"
	p2pdomain "github.com/wyfcoding/p2ptrading/internal/p2p/domain"
)

// FeeService 费率查询服务，纯查表，无副作用
type FeeService struct {
	repo   domain.FeeRepository
	logger *slog.Logger
}

// NewFeeService 创建并返回一个新的 FeeService 实例。
func NewFeeService(repo domain.FeeRepository, logger *slog.Logger) *FeeService {
	return &FeeService{repo: repo, logger: logger}
}

// RatePerUnit 查询 (操作类型, 资产, 对手币种) 的每单位费率。
// 无配置时返回 ConfigurationError：发起交易必须中止，而不是默默免收平台费
func (s *FeeService) RatePerUnit(ctx context.Context, operation, asset, counterCurrency string) (decimal.Decimal, error) {
	operation = strings.ToUpper(strings.TrimSpace(operation))
	asset = strings.ToUpper(strings.TrimSpace(asset))
	counterCurrency = strings.ToUpper(strings.TrimSpace(counterCurrency))

	rule, err := s.repo.GetRule(ctx, operation, asset, counterCurrency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load fee rule: %w", err)
	}
	if rule == nil {
		s.logger.ErrorContext(ctx, "no fee rule configured",
			"operation", operation, "asset", asset, "counter_currency", counterCurrency)
		return decimal.Zero, p2pdomain.ConfigurationError(
			fmt.Sprintf("no fee rule configured for %s %s/%s", operation, asset, counterCurrency))
	}
	return rule.RatePerUnit, nil
}

// UpsertRule 新建或更新费率规则
func (s *FeeService) UpsertRule(ctx context.Context, operation, asset, counterCurrency string, rate decimal.Decimal) error {
	if rate.IsNegative() {
		return p2pdomain.BadRequest("fee rate cannot be negative")
	}
	operation = strings.ToUpper(strings.TrimSpace(operation))
	asset = strings.ToUpper(strings.TrimSpace(asset))
	counterCurrency = strings.ToUpper(strings.TrimSpace(counterCurrency))

	existing, err := s.repo.GetRule(ctx, operation, asset, counterCurrency)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.RatePerUnit = rate
		return s.repo.Save(ctx, existing)
	}
	return s.repo.Save(ctx, &domain.FeeRule{
		Operation:       strings.ToUpper(operation),
		Asset:           strings.ToUpper(asset),
		CounterCurrency: strings.ToUpper(counterCurrency),
		RatePerUnit:     rate,
		Active:          true,
	})
}

// ListRules 列出全部费率规则
func (s *FeeService) ListRules(ctx context.Context) ([]*domain.FeeRule, error) {
	return s.repo.ListRules(ctx)
}
