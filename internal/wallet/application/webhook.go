package application

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	p2pdomain "github.com/wyfcoding/p2ptrading/internal/p2p/domain"
	"github.com/wyfcoding/p2ptrading/internal/wallet/domain"
)

// ProviderEvent 服务商回执事件
// 同一事件可能重复投递，处理必须幂等
type ProviderEvent struct {
	// 事件类型：deposit.confirmed / withdrawal.confirmed
	Type string `json:"type"`
	// 服务商侧交易号
	ExternalTxID string `json:"external_tx_id"`
	// 业务引用号（发起时传给服务商的 reference）
	Reference string `json:"reference"`
	// 用户 ID（入金事件携带）
	UserID string `json:"user_id"`
	// 币种
	Currency string `json:"currency"`
	// 金额
	Amount decimal.Decimal `json:"amount"`
}

// 服务商回执事件类型
const (
	ProviderEventDepositConfirmed    = "deposit.confirmed"
	ProviderEventWithdrawalConfirmed = "withdrawal.confirmed"
)

// WebhookApplier 把服务商回执幂等地落到本地台账
type WebhookApplier struct {
	repo    domain.WalletRepository
	wallets p2pdomain.BalanceInvalidator
	logger  *slog.Logger
}

// NewWebhookApplier 创建并返回一个新的 WebhookApplier 实例。
func NewWebhookApplier(repo domain.WalletRepository, wallets p2pdomain.BalanceInvalidator, logger *slog.Logger) *WebhookApplier {
	return &WebhookApplier{repo: repo, wallets: wallets, logger: logger}
}

// Apply 处理一条服务商回执。
// 先按服务商交易号、再按引用号关联既有台账；都未命中时按入金新建记录。
// 重放同一事件不会二次入账：新建走幂等键，更新只改状态
func (a *WebhookApplier) Apply(ctx context.Context, event ProviderEvent) error {
	if event.ExternalTxID == "" && event.Reference == "" {
		return p2pdomain.BadRequest("provider event carries no correlation id")
	}

	switch event.Type {
	case ProviderEventDepositConfirmed, ProviderEventWithdrawalConfirmed:
	default:
		return p2pdomain.BadRequest("unsupported provider event type: " + event.Type)
	}

	// 空交易号不能参与关联，WHERE external_tx_id = '' 会命中无关行
	var existing *domain.LedgerTransaction
	var err error
	if event.ExternalTxID != "" {
		existing, err = a.repo.GetLedgerByExternalTxID(ctx, event.ExternalTxID)
		if err != nil {
			return err
		}
	}
	if existing == nil && event.Reference != "" {
		existing, err = a.repo.GetLedgerByKey(ctx, event.Reference)
		if err != nil {
			return err
		}
	}

	if existing != nil {
		if existing.Status == domain.LedgerStatusCompleted {
			// 重复投递
			a.logger.InfoContext(ctx, "duplicate provider event ignored",
				"external_tx_id", event.ExternalTxID, "reference", event.Reference)
			return nil
		}
		if err := a.repo.UpdateLedgerStatus(ctx, existing.IdempotencyKey, domain.LedgerStatusCompleted, event.ExternalTxID); err != nil {
			return err
		}
		a.wallets.Invalidate(ctx, existing.UserID)
		a.logger.InfoContext(ctx, "ledger entry confirmed by provider",
			"idempotency_key", existing.IdempotencyKey, "external_tx_id", event.ExternalTxID)
		return nil
	}

	if event.Type != ProviderEventDepositConfirmed {
		// 未知出金回执：没有本地台账可关联，留给人工对账
		a.logger.WarnContext(ctx, "withdrawal confirmation without local ledger entry",
			"external_tx_id", event.ExternalTxID, "reference", event.Reference)
		return nil
	}

	if event.ExternalTxID == "" {
		// 新建入金的幂等键绑定服务商交易号，没有就无法保证重放安全
		return p2pdomain.BadRequest("deposit event missing provider transaction id")
	}
	if event.UserID == "" || event.Currency == "" {
		return p2pdomain.BadRequest("deposit event missing user or currency")
	}
	wallet, err := a.repo.FindActive(ctx, event.UserID, event.Currency)
	if err != nil {
		return err
	}
	if wallet == nil {
		return p2pdomain.NotFound("no active wallet for deposit event")
	}

	// 幂等键绑定服务商交易号，重放产生唯一冲突并被吞掉
	err = a.repo.CreateLedgerIdempotent(ctx, &domain.LedgerTransaction{
		IdempotencyKey: "DEPOSIT-" + event.ExternalTxID,
		Reference:      event.Reference,
		WalletID:       wallet.ID,
		UserID:         event.UserID,
		Type:           domain.LedgerTypeDeposit,
		Amount:         event.Amount,
		Currency:       event.Currency,
		Status:         domain.LedgerStatusCompleted,
		ExternalTxID:   event.ExternalTxID,
	})
	if err != nil {
		return err
	}

	a.wallets.Invalidate(ctx, event.UserID)
	a.logger.InfoContext(ctx, "deposit credited from provider event",
		"user_id", event.UserID, "currency", event.Currency, "external_tx_id", event.ExternalTxID)
	return nil
}
