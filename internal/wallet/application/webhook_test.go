package application

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	p2pdomain "github.com/wyfcoding/p2ptrading/internal/p2p/domain"
	"github.com/wyfcoding/p2ptrading/internal/wallet/domain"
)

type memWalletRepo struct {
	wallets map[string]*domain.Wallet
	ledger  map[string]*domain.LedgerTransaction
}

func newMemWalletRepo() *memWalletRepo {
	return &memWalletRepo{
		wallets: make(map[string]*domain.Wallet),
		ledger:  make(map[string]*domain.LedgerTransaction),
	}
}

func (m *memWalletRepo) FindActive(ctx context.Context, userID, currency string) (*domain.Wallet, error) {
	return m.wallets[userID+"|"+currency], nil
}

func (m *memWalletRepo) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Wallet, error) {
	var result []*domain.Wallet
	for _, w := range m.wallets {
		if w.UserID == userID {
			result = append(result, w)
		}
	}
	return result, nil
}

func (m *memWalletRepo) CreateLedgerIdempotent(ctx context.Context, txn *domain.LedgerTransaction) error {
	if _, ok := m.ledger[txn.IdempotencyKey]; ok {
		return nil
	}
	m.ledger[txn.IdempotencyKey] = txn
	return nil
}

// 与 SQL 的 WHERE external_tx_id = ? 一致：空串也参与匹配，守卫在应用层
func (m *memWalletRepo) GetLedgerByExternalTxID(ctx context.Context, externalTxID string) (*domain.LedgerTransaction, error) {
	for _, txn := range m.ledger {
		if txn.ExternalTxID == externalTxID {
			return txn, nil
		}
	}
	return nil, nil
}

func (m *memWalletRepo) GetLedgerByKey(ctx context.Context, idempotencyKey string) (*domain.LedgerTransaction, error) {
	return m.ledger[idempotencyKey], nil
}

func (m *memWalletRepo) UpdateLedgerStatus(ctx context.Context, idempotencyKey, status, externalTxID string) error {
	txn, ok := m.ledger[idempotencyKey]
	if !ok {
		return p2pdomain.NotFound("ledger entry not found")
	}
	txn.Status = status
	if externalTxID != "" {
		txn.ExternalTxID = externalTxID
	}
	return nil
}

type noopInvalidator struct {
	calls int
}

func (n *noopInvalidator) Invalidate(ctx context.Context, userIDs ...string) {
	n.calls++
}

func newApplier() (*WebhookApplier, *memWalletRepo, *noopInvalidator) {
	repo := newMemWalletRepo()
	inv := &noopInvalidator{}
	applier := NewWebhookApplier(repo, inv, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return applier, repo, inv
}

func TestWebhookConfirmsPendingEntry(t *testing.T) {
	applier, repo, inv := newApplier()
	repo.ledger["P2P-ESCROW-INIT-P2P-X"] = &domain.LedgerTransaction{
		IdempotencyKey: "P2P-ESCROW-INIT-P2P-X",
		UserID:         "m1",
		Type:           domain.LedgerTypeEscrow,
		Status:         domain.LedgerStatusPending,
		ExternalTxID:   "ext-1",
	}

	event := ProviderEvent{
		Type:         ProviderEventWithdrawalConfirmed,
		ExternalTxID: "ext-1",
		Amount:       decimal.RequireFromString("2.002"),
	}
	if err := applier.Apply(context.Background(), event); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if got := repo.ledger["P2P-ESCROW-INIT-P2P-X"].Status; got != domain.LedgerStatusCompleted {
		t.Fatalf("entry status: got %s, want COMPLETED", got)
	}
	if inv.calls != 1 {
		t.Errorf("balance cache should be invalidated once, got %d", inv.calls)
	}

	// 重放同一事件：无变化，不报错
	if err := applier.Apply(context.Background(), event); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if inv.calls != 1 {
		t.Errorf("replay must not invalidate again, got %d", inv.calls)
	}
}

func TestWebhookCreditsUnknownDeposit(t *testing.T) {
	applier, repo, _ := newApplier()
	repo.wallets["u1|CNGN"] = &domain.Wallet{UserID: "u1", Currency: "CNGN"}

	event := ProviderEvent{
		Type:         ProviderEventDepositConfirmed,
		ExternalTxID: "ext-dep-1",
		UserID:       "u1",
		Currency:     "CNGN",
		Amount:       decimal.RequireFromString("5"),
	}
	if err := applier.Apply(context.Background(), event); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	entry, ok := repo.ledger["DEPOSIT-ext-dep-1"]
	if !ok {
		t.Fatal("deposit ledger entry missing")
	}
	if entry.Type != domain.LedgerTypeDeposit || entry.Status != domain.LedgerStatusCompleted {
		t.Errorf("deposit entry: type=%s status=%s", entry.Type, entry.Status)
	}

	// 重放不会二次入账
	if err := applier.Apply(context.Background(), event); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(repo.ledger) != 1 {
		t.Fatalf("replay must not create another entry, got %d", len(repo.ledger))
	}
}

func TestWebhookRejectsUncorrelatedEvent(t *testing.T) {
	applier, _, _ := newApplier()

	err := applier.Apply(context.Background(), ProviderEvent{Type: ProviderEventDepositConfirmed})
	if p2pdomain.KindOf(err) != p2pdomain.KindBadRequest {
		t.Fatalf("event without correlation id must be rejected, got %v", err)
	}

	err = applier.Apply(context.Background(), ProviderEvent{Type: "unknown.event", ExternalTxID: "x"})
	if p2pdomain.KindOf(err) != p2pdomain.KindBadRequest {
		t.Fatalf("unknown event type must be rejected, got %v", err)
	}
}

func TestWebhookIgnoresUnknownWithdrawal(t *testing.T) {
	applier, repo, _ := newApplier()

	// 无本地台账可关联的出金回执：吞掉留给人工对账
	err := applier.Apply(context.Background(), ProviderEvent{
		Type:         ProviderEventWithdrawalConfirmed,
		ExternalTxID: "ext-unknown",
	})
	if err != nil {
		t.Fatalf("unknown withdrawal should not error: %v", err)
	}
	if len(repo.ledger) != 0 {
		t.Fatal("unknown withdrawal must not create ledger entries")
	}
}

func TestWebhookEmptyTxIDNeverCorrelates(t *testing.T) {
	applier, repo, inv := newApplier()
	// 一条尚未拿到服务商交易号的在途记录
	repo.ledger["P2P:P2P-Y:REFUND"] = &domain.LedgerTransaction{
		IdempotencyKey: "P2P:P2P-Y:REFUND",
		UserID:         "u1",
		Type:           domain.LedgerTypeRefund,
		Status:         domain.LedgerStatusPending,
		ExternalTxID:   "",
	}

	// 空交易号 + 无关引用号的出金回执不能关联它
	err := applier.Apply(context.Background(), ProviderEvent{
		Type:      ProviderEventWithdrawalConfirmed,
		Reference: "unrelated-ref",
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := repo.ledger["P2P:P2P-Y:REFUND"].Status; got != domain.LedgerStatusPending {
		t.Fatalf("pending entry must stay untouched, got %s", got)
	}
	if inv.calls != 0 {
		t.Errorf("no balance invalidation expected, got %d", inv.calls)
	}

	// 没有服务商交易号的入金不能新建台账
	err = applier.Apply(context.Background(), ProviderEvent{
		Type:      ProviderEventDepositConfirmed,
		Reference: "unrelated-ref-2",
		UserID:    "u1",
		Currency:  "CNGN",
		Amount:    decimal.RequireFromString("1"),
	})
	if p2pdomain.KindOf(err) != p2pdomain.KindBadRequest {
		t.Fatalf("deposit without provider tx id should be rejected, got %v", err)
	}
}
