package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/p2ptrading/internal/p2p/domain"
)

// 费率查询使用的操作类型
const feeOperationP2P = "P2P"

// 放币确认 OTP 的用途标识
const settlementOTPPurpose = "P2P_SETTLEMENT"

// 台账条目类型与状态，与钱包侧台账约定一致
const (
	ledgerTypeEscrow  = "ESCROW"
	ledgerTypeRelease = "RELEASE"
	ledgerTypeRefund  = "REFUND"

	ledgerStatusPending   = "PENDING"
	ledgerStatusCompleted = "COMPLETED"
)

// TradeService P2P 交易应用服务
// 状态机推进与托管资金编排的唯一入口；
// 所有涉及资金的外部调用都在本地事务提交前完成，失败即整体回滚
type TradeService struct {
	trades   domain.TradeRepository
	ads      domain.AdRepository
	identity domain.IdentityGate
	banks    domain.BankDirectory
	otp      domain.OTPService
	fees     domain.FeeSource
	custody  domain.CustodyClient
	wallets  domain.WalletDirectory
	ledger   domain.LedgerRecorder
	balances domain.BalanceInvalidator
	topic    string
	logger   *slog.Logger
}

// NewTradeService 创建并返回一个新的 TradeService 实例。
func NewTradeService(
	trades domain.TradeRepository,
	ads domain.AdRepository,
	identity domain.IdentityGate,
	banks domain.BankDirectory,
	otp domain.OTPService,
	fees domain.FeeSource,
	custody domain.CustodyClient,
	wallets domain.WalletDirectory,
	ledger domain.LedgerRecorder,
	balances domain.BalanceInvalidator,
	topic string,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		trades:   trades,
		ads:      ads,
		identity: identity,
		banks:    banks,
		otp:      otp,
		fees:     fees,
		custody:  custody,
		wallets:  wallets,
		ledger:   ledger,
		balances: balances,
		topic:    topic,
		logger:   logger,
	}
}

func newTradeReference() string {
	return "P2P-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// getTrade 获取交易，不存在返回 NotFound
func (s *TradeService) getTrade(ctx context.Context, reference string) (*domain.Trade, error) {
	trade, err := s.trades.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, domain.NotFound(fmt.Sprintf("trade %s not found", reference))
	}
	return trade, nil
}

// appendEvent 在当前事务内落一条 outbox 消息
func (s *TradeService) appendEvent(ctx context.Context, eventType string, trade *domain.Trade, status domain.TradeStatus, detail string) error {
	evt := domain.TradeEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		Reference:  trade.Reference,
		UserID:     trade.UserID,
		MerchantID: trade.MerchantID,
		Status:     status.String(),
		Detail:     detail,
		OccurredAt: time.Now(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.trades.AppendEvent(ctx, &domain.OutboxMessage{
		EventID: evt.EventID,
		Topic:   s.topic,
		Key:     trade.Reference,
		Payload: payload,
		Status:  domain.OutboxStatusPending,
	})
}

// InitiateTradeCommand 发起交易请求
type InitiateTradeCommand struct {
	UserID     string          `json:"user_id"`
	AdID       string          `json:"ad_id"`
	FiatAmount decimal.Decimal `json:"fiat_amount"`
}

// InitiateTrade 对广告发起一笔交易。
// 预留流动性、托管入金、落交易与台账在同一编排内完成：
// 服务商入金失败时本地事务整体回滚，不留半成品交易
func (s *TradeService) InitiateTrade(ctx context.Context, cmd InitiateTradeCommand) (*domain.Trade, error) {
	if !cmd.FiatAmount.IsPositive() {
		return nil, domain.BadRequest("fiat amount must be positive")
	}

	if _, err := s.identity.CheckUser(ctx, cmd.UserID); err != nil {
		return nil, err
	}

	ad, err := s.ads.Get(ctx, cmd.AdID)
	if err != nil {
		return nil, err
	}
	if ad == nil {
		return nil, domain.NotFound(fmt.Sprintf("ad %s not found", cmd.AdID))
	}
	if ad.Status != domain.AdStatusActive {
		return nil, domain.Conflict("this ad is no longer accepting trades")
	}
	if ad.MerchantID == cmd.UserID {
		return nil, domain.BadRequest("you cannot trade against your own ad")
	}
	if _, err := s.identity.CheckUser(ctx, ad.MerchantID); err != nil {
		return nil, err
	}

	// 限额按法币校验，等于上限允许
	if cmd.FiatAmount.LessThan(ad.MinLimit) || cmd.FiatAmount.GreaterThan(ad.MaxLimit) {
		return nil, domain.BadRequest(fmt.Sprintf(
			"amount must be between %s and %s %s", ad.MinLimit.String(), ad.MaxLimit.String(), ad.Fiat))
	}

	base := cmd.FiatAmount.Div(ad.Price).Round(domain.AmountPrecision)
	if !base.IsPositive() {
		return nil, domain.BadRequest("fiat amount is too small for this ad's price")
	}

	rate, err := s.fees.RatePerUnit(ctx, feeOperationP2P, ad.Asset, ad.Fiat)
	if err != nil {
		return nil, err
	}
	fee := base.Mul(rate).Round(domain.AmountPrecision)

	// 手续费的承担方向由广告方向决定：
	// 商家卖（用户买）时买家多付，托管 base+fee，买家收 base；
	// 商家买（用户卖）时卖家少收，托管 base，商家收 base-fee。
	// 两种情况下流动性都按 base 预留
	side := ad.TradeSide()
	var gross, net decimal.Decimal
	if side == domain.TradeSideBuy {
		gross = base.Add(fee)
		net = base
	} else {
		gross = base
		net = base.Sub(fee)
	}

	now := time.Now()
	trade := &domain.Trade{
		Reference:     newTradeReference(),
		UserID:        cmd.UserID,
		MerchantID:    ad.MerchantID,
		AdID:          ad.AdID,
		Side:          side,
		FiatAmount:    cmd.FiatAmount,
		BaseAmount:    base,
		GrossAmount:   gross,
		PlatformFee:   fee,
		NetAmount:     net,
		ListingRate:   ad.Price,
		MarketRate:    ad.Price,
		FiatCurrency:  ad.Fiat,
		AssetCurrency: ad.Asset,
		Status:        domain.TradeStatusInit,
		ExpiresAt:     now.Add(time.Duration(ad.TimeLimitMinutes) * time.Minute),
	}
	if err := trade.CheckAmounts(); err != nil {
		return nil, err
	}

	// 法币收款方的主银行账户在创建时快照，之后换绑不影响在途交易
	bank, err := s.banks.PrimaryAccount(ctx, trade.FiatRecipientID())
	if err != nil {
		return nil, err
	}
	if bank == nil {
		return nil, domain.BadRequest("the fiat recipient has no primary bank account configured")
	}
	trade.PaymentDetails = *bank

	sellerID := trade.SellerID()
	sellerAccountID, err := s.wallets.ResolveAccountID(ctx, sellerID, ad.Asset)
	if err != nil {
		return nil, err
	}
	sellerWalletID, err := s.wallets.ResolveWalletID(ctx, sellerID, ad.Asset)
	if err != nil {
		return nil, err
	}

	err = s.trades.WithTx(ctx, func(ctx context.Context) error {
		if err := s.ads.ReserveLiquidity(ctx, ad.AdID, base); err != nil {
			return err
		}

		// 真实资金移动，带确定性幂等键；失败则回滚流动性预留
		escrowTxID, err := s.custody.EscrowDeposit(ctx, sellerAccountID, gross, ad.Asset, trade.EscrowIdempotencyKey())
		if err != nil {
			return err
		}
		trade.EscrowTxID = escrowTxID

		if err := s.trades.Create(ctx, trade); err != nil {
			return err
		}
		if err := s.trades.AppendLog(ctx, domain.NewTradeLog(trade.Reference, cmd.UserID, "user",
			fmt.Sprintf("trade initiated for %s %s, %s %s escrowed", cmd.FiatAmount.String(), ad.Fiat, gross.String(), ad.Asset))); err != nil {
			return err
		}
		if err := s.ledger.RecordIdempotent(ctx, domain.LedgerEntry{
			IdempotencyKey: trade.EscrowIdempotencyKey(),
			Reference:      trade.Reference,
			WalletID:       sellerWalletID,
			UserID:         sellerID,
			Type:           ledgerTypeEscrow,
			Amount:         gross,
			Currency:       ad.Asset,
			Status:         ledgerStatusPending,
			ExternalTxID:   escrowTxID,
			TradeRef:       trade.Reference,
		}); err != nil {
			return err
		}
		return s.appendEvent(ctx, domain.EventTradeCreated, trade, domain.TradeStatusInit, "")
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, sellerID)
	s.logger.InfoContext(ctx, "trade initiated",
		"reference", trade.Reference, "ad_id", ad.AdID, "user_id", cmd.UserID,
		"gross", gross.String(), "fee", fee.String())
	return trade, nil
}

// ConfirmBuyerPayment 买家确认已付法币。
// 重复确认直接返回当前交易，不报错
func (s *TradeService) ConfirmBuyerPayment(ctx context.Context, reference, userID string) (*domain.Trade, error) {
	trade, err := s.getTrade(ctx, reference)
	if err != nil {
		return nil, err
	}
	// 授权先于幂等短路，交易内容不能泄露给非参与方
	if !trade.IsBuyer(userID) {
		return nil, domain.Unauthorized("only the buyer can confirm this payment")
	}
	if trade.Status == domain.TradeStatusPaymentConfirmed {
		return trade, nil
	}
	if trade.Side != domain.TradeSideBuy {
		return nil, domain.Conflict("the merchant pays fiat on this trade")
	}

	err = s.trades.WithTx(ctx, func(ctx context.Context) error {
		if err := s.trades.TransitionStatus(ctx, reference, domain.TradeStatusInit, domain.TradeStatusPaymentConfirmed,
			nil, domain.NewTradeLog(reference, userID, "user", "buyer confirmed fiat payment")); err != nil {
			return err
		}
		return s.appendEvent(ctx, domain.EventBuyerPaid, trade, domain.TradeStatusPaymentConfirmed, "")
	})
	if err != nil {
		return nil, err
	}
	trade.Status = domain.TradeStatusPaymentConfirmed
	return trade, nil
}

// MerchantMarksFiatSent 商家标记已付法币（用户卖出方向）
func (s *TradeService) MerchantMarksFiatSent(ctx context.Context, reference, merchantID string) (*domain.Trade, error) {
	trade, err := s.getTrade(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !trade.IsMerchant(merchantID) {
		return nil, domain.Unauthorized("only the merchant can mark this payment")
	}
	if trade.Status == domain.TradeStatusMerchantPaid {
		return trade, nil
	}
	if trade.Side != domain.TradeSideSell {
		return nil, domain.Conflict("the buyer pays fiat on this trade")
	}

	err = s.trades.WithTx(ctx, func(ctx context.Context) error {
		if err := s.trades.TransitionStatus(ctx, reference, domain.TradeStatusInit, domain.TradeStatusMerchantPaid,
			nil, domain.NewTradeLog(reference, merchantID, "merchant", "merchant marked fiat payment as sent")); err != nil {
			return err
		}
		return s.appendEvent(ctx, domain.EventMerchantPaid, trade, domain.TradeStatusMerchantPaid, "")
	})
	if err != nil {
		return nil, err
	}
	trade.Status = domain.TradeStatusMerchantPaid
	return trade, nil
}

// InitiateSettlementOTP 向资产卖方发送放币确认验证码。
// 不推进状态，只有法币已被标记付款后才允许
func (s *TradeService) InitiateSettlementOTP(ctx context.Context, reference, userID string) error {
	trade, err := s.getTrade(ctx, reference)
	if err != nil {
		return err
	}
	if userID != trade.SellerID() {
		return domain.Unauthorized("only the asset seller can authorize the release")
	}
	if trade.Status != domain.TradeStatusPaymentConfirmed && trade.Status != domain.TradeStatusMerchantPaid {
		return domain.Conflict("fiat payment has not been marked on this trade yet")
	}

	seller, err := s.identity.CheckUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.otp.Send(ctx, userID, settlementOTPPurpose, seller.Email); err != nil {
		return err
	}

	// 验证码已发出，记录与通知失败都不回滚
	if err := s.trades.AppendLog(ctx, domain.NewTradeLog(reference, userID, "seller", "settlement OTP sent")); err != nil {
		s.logger.WarnContext(ctx, "failed to log OTP dispatch", "reference", reference, "error", err)
	}
	if err := s.appendEvent(ctx, domain.EventSettlementOTPSet, trade, trade.Status, ""); err != nil {
		s.logger.WarnContext(ctx, "failed to enqueue OTP event", "reference", reference, "error", err)
	}
	return nil
}

// ConfirmAndReleaseCrypto 卖方提交验证码，释放托管资产给收款方。
// 已完成的交易直接返回，释放调用带幂等键，重试不会重复放币
func (s *TradeService) ConfirmAndReleaseCrypto(ctx context.Context, reference, userID, code string) (*domain.Trade, error) {
	trade, err := s.getTrade(ctx, reference)
	if err != nil {
		return nil, err
	}
	if userID != trade.SellerID() {
		return nil, domain.Unauthorized("only the asset seller can release this trade")
	}
	if trade.Status == domain.TradeStatusCompleted {
		return trade, nil
	}
	if trade.Status != domain.TradeStatusPaymentConfirmed && trade.Status != domain.TradeStatusMerchantPaid {
		return nil, domain.Conflict(fmt.Sprintf("trade cannot be released from status %s", trade.Status))
	}

	ok, err := s.otp.Verify(ctx, userID, settlementOTPPurpose, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Unauthorized("invalid or expired confirmation code")
	}

	if err := s.release(ctx, trade, userID, "seller"); err != nil {
		return nil, err
	}
	return s.getTrade(ctx, reference)
}

// release 共享的放币路径：卖方 OTP 确认与管理员裁决都走这里。
// 调用方负责授权；这里只管资金与状态
func (s *TradeService) release(ctx context.Context, trade *domain.Trade, actor, role string) error {
	recipientID := trade.RecipientID()
	recipientAccountID, err := s.wallets.ResolveAccountID(ctx, recipientID, trade.AssetCurrency)
	if err != nil {
		return err
	}
	recipientAddress, err := s.wallets.ResolveDepositAddress(ctx, recipientID, trade.AssetCurrency)
	if err != nil {
		return err
	}
	recipientWalletID, err := s.wallets.ResolveWalletID(ctx, recipientID, trade.AssetCurrency)
	if err != nil {
		return err
	}

	err = s.trades.WithTx(ctx, func(ctx context.Context) error {
		// 事务内重读，并发释放只有一个能通过 CAS
		current, err := s.trades.GetByReference(ctx, trade.Reference)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.NotFound(fmt.Sprintf("trade %s not found", trade.Reference))
		}
		if current.Status == domain.TradeStatusCompleted {
			return nil
		}

		releaseTxID, err := s.custody.ReleaseFromEscrow(ctx, recipientAccountID, trade.NetAmount,
			trade.AssetCurrency, recipientAddress, trade.ReleaseIdempotencyKey())
		if err != nil {
			return err
		}

		now := time.Now()
		if err := s.trades.TransitionStatus(ctx, trade.Reference, current.Status, domain.TradeStatusCompleted,
			map[string]any{"settled_at": now},
			domain.NewTradeLog(trade.Reference, actor, role,
				fmt.Sprintf("released %s %s to recipient", trade.NetAmount.String(), trade.AssetCurrency))); err != nil {
			return err
		}
		if err := s.ledger.RecordIdempotent(ctx, domain.LedgerEntry{
			IdempotencyKey: trade.ReleaseIdempotencyKey(),
			Reference:      trade.Reference,
			WalletID:       recipientWalletID,
			UserID:         recipientID,
			Type:           ledgerTypeRelease,
			Amount:         trade.NetAmount,
			Currency:       trade.AssetCurrency,
			Status:         ledgerStatusCompleted,
			ExternalTxID:   releaseTxID,
			TradeRef:       trade.Reference,
		}); err != nil {
			return err
		}
		return s.appendEvent(ctx, domain.EventCryptoReleased, trade, domain.TradeStatusCompleted, "")
	})
	if err != nil {
		return err
	}

	s.balances.Invalidate(ctx, trade.SellerID(), recipientID)
	s.logger.InfoContext(ctx, "trade released",
		"reference", trade.Reference, "net", trade.NetAmount.String(), "actor", actor)
	return nil
}

// CancelTrade 取消交易。
// 资产收款方与管理员随时可取消；卖方只能在过期后取消。
// 托管已入金时先回退服务商资金，回退失败的交易标记 FAILED 待人工对账
func (s *TradeService) CancelTrade(ctx context.Context, reference, actorID, reason string) (*domain.Trade, error) {
	trade, err := s.getTrade(ctx, reference)
	if err != nil {
		return nil, err
	}
	if trade.Status.IsTerminal() {
		return nil, domain.Conflict(fmt.Sprintf("trade is already %s", trade.Status))
	}

	actor, err := s.identity.CheckUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	role := "user"
	switch {
	case actor.IsAdmin():
		role = "admin"
	case actorID == trade.RecipientID():
		if trade.IsMerchant(actorID) {
			role = "merchant"
		}
	case actorID == trade.SellerID():
		if !trade.IsExpired(time.Now()) {
			return nil, domain.Conflict("the seller can only cancel after the trade expires")
		}
		if trade.IsMerchant(actorID) {
			role = "merchant"
		} else {
			role = "seller"
		}
	default:
		return nil, domain.Unauthorized("you are not a participant of this trade")
	}

	if reason == "" {
		reason = "cancelled by " + role
	}
	return s.cancel(ctx, trade, actorID, role, reason)
}

// cancel 共享的取消路径，管理员裁决复用
func (s *TradeService) cancel(ctx context.Context, trade *domain.Trade, actorID, role, reason string) (*domain.Trade, error) {
	sellerID := trade.SellerID()

	if !trade.RequiresEscrowReversal() {
		// 托管资金未动，纯本地取消
		err := s.trades.WithTx(ctx, func(ctx context.Context) error {
			if err := s.trades.TransitionStatus(ctx, trade.Reference, trade.Status, domain.TradeStatusCancelled,
				nil, domain.NewTradeLog(trade.Reference, actorID, role, reason)); err != nil {
				return err
			}
			if err := s.ads.RestoreLiquidity(ctx, trade.AdID, trade.BaseAmount); err != nil {
				return err
			}
			return s.appendEvent(ctx, domain.EventTradeCancelled, trade, domain.TradeStatusCancelled, reason)
		})
		if err != nil {
			return nil, err
		}
		return s.getTrade(ctx, trade.Reference)
	}

	sellerAccountID, err := s.wallets.ResolveAccountID(ctx, sellerID, trade.AssetCurrency)
	if err != nil {
		return nil, err
	}
	sellerAddress, err := s.wallets.ResolveDepositAddress(ctx, sellerID, trade.AssetCurrency)
	if err != nil {
		return nil, err
	}
	sellerWalletID, err := s.wallets.ResolveWalletID(ctx, sellerID, trade.AssetCurrency)
	if err != nil {
		return nil, err
	}

	// 回退先行：服务商侧带幂等键，本地提交失败后的重试命中同一笔回退
	reversalTxID, err := s.custody.ReverseFromEscrow(ctx, sellerAccountID, trade.GrossAmount,
		trade.AssetCurrency, sellerAddress, trade.ReversalIdempotencyKey())
	if err != nil {
		s.logger.ErrorContext(ctx, "escrow reversal failed, marking trade for reconciliation",
			"reference", trade.Reference, "error", err)
		failErr := s.trades.WithTx(ctx, func(ctx context.Context) error {
			if err := s.trades.TransitionStatus(ctx, trade.Reference, trade.Status, domain.TradeStatusFailed,
				nil, domain.NewTradeLog(trade.Reference, actorID, role,
					"escrow reversal failed, manual reconciliation required: "+err.Error())); err != nil {
				return err
			}
			return s.appendEvent(ctx, domain.EventTradeFailed, trade, domain.TradeStatusFailed, err.Error())
		})
		if failErr != nil {
			s.logger.ErrorContext(ctx, "failed to mark trade as failed", "reference", trade.Reference, "error", failErr)
		}
		return nil, domain.ProviderError("failed to reverse escrowed funds", err)
	}

	err = s.trades.WithTx(ctx, func(ctx context.Context) error {
		if err := s.trades.TransitionStatus(ctx, trade.Reference, trade.Status, domain.TradeStatusCancelledReversed,
			nil, domain.NewTradeLog(trade.Reference, actorID, role, reason)); err != nil {
			return err
		}
		if err := s.ads.RestoreLiquidity(ctx, trade.AdID, trade.BaseAmount); err != nil {
			return err
		}
		if err := s.ledger.RecordIdempotent(ctx, domain.LedgerEntry{
			IdempotencyKey: trade.RefundLedgerKey(),
			Reference:      trade.Reference,
			WalletID:       sellerWalletID,
			UserID:         sellerID,
			Type:           ledgerTypeRefund,
			Amount:         trade.GrossAmount,
			Currency:       trade.AssetCurrency,
			Status:         ledgerStatusCompleted,
			ExternalTxID:   reversalTxID,
			TradeRef:       trade.Reference,
		}); err != nil {
			return err
		}
		return s.appendEvent(ctx, domain.EventTradeCancelled, trade, domain.TradeStatusCancelledReversed, reason)
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, sellerID, trade.RecipientID())
	s.logger.InfoContext(ctx, "trade cancelled with escrow reversal",
		"reference", trade.Reference, "actor", actorID)
	return s.getTrade(ctx, trade.Reference)
}

// OpenDispute 交易参与方开启纠纷
func (s *TradeService) OpenDispute(ctx context.Context, reference, actorID, reason, evidence string) (*domain.Trade, error) {
	trade, err := s.getTrade(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !trade.IsBuyer(actorID) && !trade.IsMerchant(actorID) {
		return nil, domain.Unauthorized("only trade participants can open a dispute")
	}
	if trade.Status.IsTerminal() {
		return nil, domain.Conflict(fmt.Sprintf("trade is already %s", trade.Status))
	}
	if trade.Status == domain.TradeStatusDisputePending {
		return nil, domain.Conflict("a dispute is already open on this trade")
	}
	if reason == "" {
		return nil, domain.BadRequest("a dispute reason is required")
	}

	role := "user"
	if trade.IsMerchant(actorID) {
		role = "merchant"
	}

	err = s.trades.WithTx(ctx, func(ctx context.Context) error {
		if err := s.trades.TransitionStatus(ctx, reference, trade.Status, domain.TradeStatusDisputePending,
			map[string]any{
				"dispute_reason":    reason,
				"dispute_evidence":  evidence,
				"dispute_opened_by": actorID,
			},
			domain.NewTradeLog(reference, actorID, role, "dispute opened: "+reason)); err != nil {
			return err
		}
		return s.appendEvent(ctx, domain.EventDisputeOpened, trade, domain.TradeStatusDisputePending, reason)
	})
	if err != nil {
		return nil, err
	}
	return s.getTrade(ctx, reference)
}

// 纠纷裁决动作
const (
	ResolutionRelease = "RELEASE"
	ResolutionCancel  = "CANCEL"
)

// AdminResolveTrade 管理员裁决纠纷：放币给收款方或取消回退。
// 放币路径免 OTP，裁决本身就是最终授权
func (s *TradeService) AdminResolveTrade(ctx context.Context, reference, adminID, resolution, note string) (*domain.Trade, error) {
	admin, err := s.identity.CheckUser(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !admin.IsAdmin() {
		return nil, domain.Forbidden("admin role required to resolve disputes")
	}

	trade, err := s.getTrade(ctx, reference)
	if err != nil {
		return nil, err
	}
	if trade.Status != domain.TradeStatusDisputePending {
		return nil, domain.Conflict("only disputed trades can be resolved")
	}

	switch strings.ToUpper(resolution) {
	case ResolutionRelease:
		if err := s.release(ctx, trade, adminID, "admin"); err != nil {
			return nil, err
		}
	case ResolutionCancel:
		reason := "dispute resolved by admin: cancelled"
		if note != "" {
			reason = "dispute resolved by admin: " + note
		}
		if _, err := s.cancel(ctx, trade, adminID, "admin", reason); err != nil {
			return nil, err
		}
	default:
		return nil, domain.BadRequest("resolution must be RELEASE or CANCEL")
	}

	if err := s.trades.AppendLog(ctx, domain.NewTradeLog(reference, adminID, "admin",
		"dispute resolved: "+strings.ToUpper(resolution))); err != nil {
		s.logger.WarnContext(ctx, "failed to log dispute resolution", "reference", reference, "error", err)
	}

	resolved, err := s.getTrade(ctx, reference)
	if err != nil {
		return nil, err
	}
	// 裁决事件在资金事务之外补发；放币/取消事件已在各自事务内落库
	if err := s.appendEvent(ctx, domain.EventDisputeResolved, resolved, resolved.Status,
		strings.ToUpper(resolution)); err != nil {
		s.logger.WarnContext(ctx, "failed to enqueue resolution event", "reference", reference, "error", err)
	}
	return resolved, nil
}

// GetTradeByReference 按交易编号查询，仅参与方与管理员可见
func (s *TradeService) GetTradeByReference(ctx context.Context, reference, actorID string) (*domain.Trade, error) {
	trade, err := s.getTrade(ctx, reference)
	if err != nil {
		return nil, err
	}
	if trade.IsBuyer(actorID) || trade.IsMerchant(actorID) {
		return trade, nil
	}
	actor, err := s.identity.CheckUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, domain.Unauthorized("you are not a participant of this trade")
	}
	return trade, nil
}

// ListTrades 分页查询交易
func (s *TradeService) ListTrades(ctx context.Context, filter domain.TradeFilter, limit, offset int) ([]*domain.Trade, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.trades.List(ctx, filter, limit, offset)
}

// ListDisputes 分页查询待裁决纠纷，管理员后台使用
func (s *TradeService) ListDisputes(ctx context.Context, limit, offset int) ([]*domain.Trade, int64, error) {
	status := domain.TradeStatusDisputePending
	return s.ListTrades(ctx, domain.TradeFilter{Status: &status}, limit, offset)
}
