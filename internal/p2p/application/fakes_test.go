package application

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/p2ptrading/internal/p2p/domain"
)

// fakeStore 内存版交易/广告/台账存储。
// WithTx 串行执行并在出错时整体回滚，模拟数据库事务语义
type fakeStore struct {
	mu     sync.Mutex
	trades map[string]*domain.Trade
	logs   []domain.TradeLog
	ads    map[string]*domain.MerchantAd
	outbox []*domain.OutboxMessage
	ledger map[string]domain.LedgerEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		trades: make(map[string]*domain.Trade),
		ads:    make(map[string]*domain.MerchantAd),
		ledger: make(map[string]domain.LedgerEntry),
	}
}

type txMarker struct{}

func (s *fakeStore) lock(ctx context.Context) func() {
	if ctx.Value(txMarker{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type storeSnapshot struct {
	trades map[string]*domain.Trade
	logs   []domain.TradeLog
	ads    map[string]*domain.MerchantAd
	outbox []*domain.OutboxMessage
	ledger map[string]domain.LedgerEntry
}

func (s *fakeStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		trades: make(map[string]*domain.Trade, len(s.trades)),
		logs:   append([]domain.TradeLog(nil), s.logs...),
		ads:    make(map[string]*domain.MerchantAd, len(s.ads)),
		outbox: append([]*domain.OutboxMessage(nil), s.outbox...),
		ledger: make(map[string]domain.LedgerEntry, len(s.ledger)),
	}
	for k, v := range s.trades {
		cp := *v
		snap.trades[k] = &cp
	}
	for k, v := range s.ads {
		cp := *v
		snap.ads[k] = &cp
	}
	for k, v := range s.ledger {
		snap.ledger[k] = v
	}
	return snap
}

func (s *fakeStore) restore(snap storeSnapshot) {
	s.trades = snap.trades
	s.logs = snap.logs
	s.ads = snap.ads
	s.outbox = snap.outbox
	s.ledger = snap.ledger
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *fakeStore) Create(ctx context.Context, trade *domain.Trade) error {
	defer s.lock(ctx)()
	if _, ok := s.trades[trade.Reference]; ok {
		return fmt.Errorf("duplicate reference %s", trade.Reference)
	}
	trade.CreatedAt = time.Now()
	trade.UpdatedAt = time.Now()
	cp := *trade
	s.trades[trade.Reference] = &cp
	return nil
}

func (s *fakeStore) GetByReference(ctx context.Context, reference string) (*domain.Trade, error) {
	defer s.lock(ctx)()
	trade, ok := s.trades[reference]
	if !ok {
		return nil, nil
	}
	cp := *trade
	return &cp, nil
}

func (s *fakeStore) TransitionStatus(ctx context.Context, reference string, from, to domain.TradeStatus, extra map[string]any, log domain.TradeLog) error {
	defer s.lock(ctx)()
	trade, ok := s.trades[reference]
	if !ok || trade.Status != from {
		return domain.Conflict("trade " + reference + " is no longer in status " + from.String())
	}
	if !from.CanTransitionTo(to) {
		return domain.Conflict("transition not allowed")
	}
	trade.Status = to
	trade.UpdatedAt = time.Now()
	for k, v := range extra {
		switch k {
		case "settled_at":
			tm := v.(time.Time)
			trade.SettledAt = &tm
		case "dispute_reason":
			trade.DisputeReason = v.(string)
		case "dispute_evidence":
			trade.DisputeEvidence = v.(string)
		case "dispute_opened_by":
			trade.DisputeOpenedBy = v.(string)
		}
	}
	s.logs = append(s.logs, log)
	return nil
}

func (s *fakeStore) AppendLog(ctx context.Context, log domain.TradeLog) error {
	defer s.lock(ctx)()
	s.logs = append(s.logs, log)
	return nil
}

func (s *fakeStore) CountActiveForAd(ctx context.Context, adID string) (int64, error) {
	defer s.lock(ctx)()
	var count int64
	for _, trade := range s.trades {
		if trade.AdID == adID && !trade.Status.IsTerminal() {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) FindStuckSince(ctx context.Context, status domain.TradeStatus, cutoff time.Time, limit int) ([]*domain.Trade, error) {
	defer s.lock(ctx)()
	var result []*domain.Trade
	for _, trade := range s.trades {
		if trade.Status == status && !trade.UpdatedAt.After(cutoff) {
			cp := *trade
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *fakeStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Trade, error) {
	defer s.lock(ctx)()
	var result []*domain.Trade
	for _, trade := range s.trades {
		if !trade.Status.IsTerminal() && trade.ExpiresAt.Before(now) {
			cp := *trade
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *fakeStore) List(ctx context.Context, filter domain.TradeFilter, limit, offset int) ([]*domain.Trade, int64, error) {
	defer s.lock(ctx)()
	var result []*domain.Trade
	for _, trade := range s.trades {
		if filter.Status != nil && trade.Status != *filter.Status {
			continue
		}
		if filter.UserID != "" && trade.UserID != filter.UserID {
			continue
		}
		if filter.MerchantID != "" && trade.MerchantID != filter.MerchantID {
			continue
		}
		cp := *trade
		result = append(result, &cp)
	}
	return result, int64(len(result)), nil
}

func (s *fakeStore) AppendEvent(ctx context.Context, msg *domain.OutboxMessage) error {
	defer s.lock(ctx)()
	s.outbox = append(s.outbox, msg)
	return nil
}

// AdRepository

func (s *fakeStore) CreateAd(ctx context.Context, ad *domain.MerchantAd) error {
	defer s.lock(ctx)()
	cp := *ad
	s.ads[ad.AdID] = &cp
	return nil
}

func (s *fakeStore) Get(ctx context.Context, adID string) (*domain.MerchantAd, error) {
	defer s.lock(ctx)()
	ad, ok := s.ads[adID]
	if !ok {
		return nil, nil
	}
	cp := *ad
	return &cp, nil
}

func (s *fakeStore) ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*domain.MerchantAd, int64, error) {
	defer s.lock(ctx)()
	var result []*domain.MerchantAd
	for _, ad := range s.ads {
		if ad.MerchantID == merchantID && ad.Status != domain.AdStatusClosed {
			cp := *ad
			result = append(result, &cp)
		}
	}
	return result, int64(len(result)), nil
}

func (s *fakeStore) ReserveLiquidity(ctx context.Context, adID string, amount decimal.Decimal) error {
	defer s.lock(ctx)()
	ad, ok := s.ads[adID]
	if !ok || ad.Status != domain.AdStatusActive || ad.AvailableAmount.LessThan(amount) {
		return domain.InsufficientLiquidity("the ad does not have enough liquidity for this amount")
	}
	ad.AvailableAmount = ad.AvailableAmount.Sub(amount)
	return nil
}

func (s *fakeStore) RestoreLiquidity(ctx context.Context, adID string, amount decimal.Decimal) error {
	defer s.lock(ctx)()
	ad, ok := s.ads[adID]
	if !ok {
		return domain.NotFound("ad not found")
	}
	ad.AvailableAmount = ad.AvailableAmount.Add(amount)
	return nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, adID string, status domain.AdStatus) error {
	defer s.lock(ctx)()
	ad, ok := s.ads[adID]
	if !ok {
		return domain.NotFound("ad not found")
	}
	ad.Status = status
	return nil
}

// LedgerRecorder：幂等键已存在时静默成功

func (s *fakeStore) RecordIdempotent(ctx context.Context, entry domain.LedgerEntry) error {
	defer s.lock(ctx)()
	if _, ok := s.ledger[entry.IdempotencyKey]; ok {
		return nil
	}
	s.ledger[entry.IdempotencyKey] = entry
	return nil
}

// adRepoAdapter 把 fakeStore 的广告方法对齐到 AdRepository 接口
// （Create 与交易仓储的 Create 重名）
type adRepoAdapter struct{ *fakeStore }

func (a adRepoAdapter) Create(ctx context.Context, ad *domain.MerchantAd) error {
	return a.fakeStore.CreateAd(ctx, ad)
}

type fakeIdentity struct {
	users map[string]*domain.User
}

func (f *fakeIdentity) CheckUser(ctx context.Context, userID string) (*domain.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return nil, domain.NotFound("user not found")
	}
	if user.KYCStatus != "VERIFIED" {
		return nil, domain.Forbidden("you must complete KYC verification before trading")
	}
	return user, nil
}

type fakeBanks struct {
	missing map[string]bool
}

func (f *fakeBanks) PrimaryAccount(ctx context.Context, userID string) (*domain.PaymentDetails, error) {
	if f.missing[userID] {
		return nil, nil
	}
	return &domain.PaymentDetails{
		BankName:      "Test Bank",
		AccountNumber: "0123456789",
		AccountName:   "Account of " + userID,
		BankCode:      "058",
	}, nil
}

type fakeOTP struct {
	mu     sync.Mutex
	code   string
	sent   int
	issued bool
}

func (f *fakeOTP) Send(ctx context.Context, userID, purpose, destination string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	f.issued = true
	return nil
}

func (f *fakeOTP) Verify(ctx context.Context, userID, purpose, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.issued || code != f.code {
		return false, nil
	}
	f.issued = false
	return true, nil
}

type fakeFees struct {
	rate    decimal.Decimal
	missing bool
}

func (f *fakeFees) RatePerUnit(ctx context.Context, operation, asset, counterCurrency string) (decimal.Decimal, error) {
	if f.missing {
		return decimal.Zero, domain.ConfigurationError("no fee rule configured for " + operation + " " + asset + "/" + counterCurrency)
	}
	return f.rate, nil
}

type custodyCall struct {
	accountID string
	amount    decimal.Decimal
	currency  string
	key       string
}

type fakeCustody struct {
	mu          sync.Mutex
	escrows     []custodyCall
	releases    []custodyCall
	reversals   []custodyCall
	failEscrow  bool
	failRelease bool
	failReverse bool
}

func (f *fakeCustody) EscrowDeposit(ctx context.Context, sourceAccountID string, amount decimal.Decimal, currency, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEscrow {
		return "", domain.ProviderError("escrow deposit failed", nil)
	}
	f.escrows = append(f.escrows, custodyCall{sourceAccountID, amount, currency, idempotencyKey})
	return "ESC-" + idempotencyKey, nil
}

func (f *fakeCustody) ReleaseFromEscrow(ctx context.Context, destAccountID string, amount decimal.Decimal, currency, destAddress, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRelease {
		return "", domain.ProviderError("release failed", nil)
	}
	f.releases = append(f.releases, custodyCall{destAccountID, amount, currency, idempotencyKey})
	return "REL-" + idempotencyKey, nil
}

func (f *fakeCustody) ReverseFromEscrow(ctx context.Context, destAccountID string, amount decimal.Decimal, currency, destAddress, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReverse {
		return "", domain.ProviderError("reversal failed", nil)
	}
	f.reversals = append(f.reversals, custodyCall{destAccountID, amount, currency, idempotencyKey})
	return "REV-" + idempotencyKey, nil
}

type fakeWallets struct{}

func (fakeWallets) ResolveWalletID(ctx context.Context, userID, currency string) (uint, error) {
	return 1, nil
}

func (fakeWallets) ResolveAccountID(ctx context.Context, userID, currency string) (string, error) {
	return "acct-" + userID, nil
}

func (fakeWallets) ResolveDepositAddress(ctx context.Context, userID, currency string) (string, error) {
	return "addr-" + userID, nil
}

type fakeBalances struct {
	mu          sync.Mutex
	invalidated []string
}

func (f *fakeBalances) Invalidate(ctx context.Context, userIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userIDs...)
}

// testEnv 一套接好线的服务与假协作方
type testEnv struct {
	store    *fakeStore
	identity *fakeIdentity
	banks    *fakeBanks
	otp      *fakeOTP
	fees     *fakeFees
	custody  *fakeCustody
	balances *fakeBalances
	service  *TradeService
	adSvc    *AdService
}

func verifiedUser(id, role string) *domain.User {
	return &domain.User{ID: id, Role: role, KYCStatus: "VERIFIED", Email: id + "@example.com"}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store: newFakeStore(),
		identity: &fakeIdentity{users: map[string]*domain.User{
			"u1":    verifiedUser("u1", "user"),
			"u2":    verifiedUser("u2", "user"),
			"m1":    verifiedUser("m1", "merchant"),
			"admin": verifiedUser("admin", "admin"),
		}},
		banks:    &fakeBanks{missing: map[string]bool{}},
		otp:      &fakeOTP{code: "123456"},
		fees:     &fakeFees{rate: decimal.RequireFromString("0.001")},
		custody:  &fakeCustody{},
		balances: &fakeBalances{},
	}

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	adRepo := adRepoAdapter{env.store}
	env.service = NewTradeService(
		env.store, adRepo,
		env.identity, env.banks,
		env.otp, env.fees, env.custody,
		fakeWallets{}, env.store, env.balances,
		"p2p.trade.events", discard,
	)
	env.adSvc = NewAdService(adRepo, env.store, env.identity, discard)
	return env
}

// sellAd 商家卖出 CNGN 的广告：价格 1000 NGN/CNGN，流动性 10
func (env *testEnv) sellAd() *domain.MerchantAd {
	ad := &domain.MerchantAd{
		AdID:             "AD-SELL-1",
		MerchantID:       "m1",
		Direction:        domain.AdDirectionSell,
		Asset:            "CNGN",
		Fiat:             "NGN",
		Price:            decimal.RequireFromString("1000"),
		AvailableAmount:  decimal.RequireFromString("10"),
		MinLimit:         decimal.RequireFromString("500"),
		MaxLimit:         decimal.RequireFromString("5000"),
		TimeLimitMinutes: 30,
		Status:           domain.AdStatusActive,
	}
	env.store.ads[ad.AdID] = ad
	return ad
}

// buyAd 商家买入 CNGN 的广告（用户卖出方向）
func (env *testEnv) buyAd() *domain.MerchantAd {
	ad := &domain.MerchantAd{
		AdID:             "AD-BUY-1",
		MerchantID:       "m1",
		Direction:        domain.AdDirectionBuy,
		Asset:            "CNGN",
		Fiat:             "NGN",
		Price:            decimal.RequireFromString("1000"),
		AvailableAmount:  decimal.RequireFromString("10"),
		MinLimit:         decimal.RequireFromString("500"),
		MaxLimit:         decimal.RequireFromString("5000"),
		TimeLimitMinutes: 30,
		Status:           domain.AdStatusActive,
	}
	env.store.ads[ad.AdID] = ad
	return ad
}

func (env *testEnv) initiate(t *testing.T, adID, userID, fiat string) *domain.Trade {
	t.Helper()
	trade, err := env.service.InitiateTrade(context.Background(), InitiateTradeCommand{
		UserID:     userID,
		AdID:       adID,
		FiatAmount: decimal.RequireFromString(fiat),
	})
	if err != nil {
		t.Fatalf("InitiateTrade failed: %v", err)
	}
	return trade
}

// eventTypes 解码 outbox 中全部事件的类型，按写入顺序返回
func (env *testEnv) eventTypes(t *testing.T) []string {
	t.Helper()
	types := make([]string, 0, len(env.store.outbox))
	for _, msg := range env.store.outbox {
		var evt domain.TradeEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			t.Fatalf("decode outbox payload: %v", err)
		}
		types = append(types, evt.Type)
	}
	return types
}

func containsEvent(types []string, want string) bool {
	for _, tp := range types {
		if tp == want {
			return true
		}
	}
	return false
}
