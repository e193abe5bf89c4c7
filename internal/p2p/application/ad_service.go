package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/p2ptrading/internal/p2p/domain"
)

// AdService 商家广告管理
type AdService struct {
	ads      domain.AdRepository
	trades   domain.TradeRepository
	identity domain.IdentityGate
	logger   *slog.Logger
}

// NewAdService 创建并返回一个新的 AdService 实例。
func NewAdService(ads domain.AdRepository, trades domain.TradeRepository, identity domain.IdentityGate, logger *slog.Logger) *AdService {
	return &AdService{ads: ads, trades: trades, identity: identity, logger: logger}
}

// CreateAdCommand 创建广告请求
type CreateAdCommand struct {
	MerchantID       string          `json:"merchant_id"`
	Direction        string          `json:"direction"`
	Asset            string          `json:"asset"`
	Fiat             string          `json:"fiat"`
	Price            decimal.Decimal `json:"price"`
	AvailableAmount  decimal.Decimal `json:"available_amount"`
	MinLimit         decimal.Decimal `json:"min_limit"`
	MaxLimit         decimal.Decimal `json:"max_limit"`
	PaymentMethods   string          `json:"payment_methods"`
	TimeLimitMinutes int             `json:"time_limit_minutes"`
}

// CreateAd 创建广告，仅商家与管理员可发布
func (s *AdService) CreateAd(ctx context.Context, cmd CreateAdCommand) (*domain.MerchantAd, error) {
	merchant, err := s.identity.CheckUser(ctx, cmd.MerchantID)
	if err != nil {
		return nil, err
	}
	if merchant.Role != "merchant" && !merchant.IsAdmin() {
		return nil, domain.Forbidden("merchant role required to publish ads")
	}

	var direction domain.AdDirection
	switch strings.ToUpper(cmd.Direction) {
	case "BUY":
		direction = domain.AdDirectionBuy
	case "SELL":
		direction = domain.AdDirectionSell
	default:
		return nil, domain.BadRequest("direction must be BUY or SELL")
	}

	ad := &domain.MerchantAd{
		AdID:             "AD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")),
		MerchantID:       cmd.MerchantID,
		Direction:        direction,
		Asset:            strings.ToUpper(strings.TrimSpace(cmd.Asset)),
		Fiat:             strings.ToUpper(strings.TrimSpace(cmd.Fiat)),
		Price:            cmd.Price,
		AvailableAmount:  cmd.AvailableAmount,
		MinLimit:         cmd.MinLimit,
		MaxLimit:         cmd.MaxLimit,
		PaymentMethods:   cmd.PaymentMethods,
		TimeLimitMinutes: cmd.TimeLimitMinutes,
		Status:           domain.AdStatusActive,
	}
	if err := ad.Validate(); err != nil {
		return nil, err
	}
	if err := s.ads.Create(ctx, ad); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "ad created", "ad_id", ad.AdID, "merchant_id", ad.MerchantID,
		"direction", ad.Direction.String(), "asset", ad.Asset, "fiat", ad.Fiat)
	return ad, nil
}

// GetAd 按广告 ID 查询
func (s *AdService) GetAd(ctx context.Context, adID string) (*domain.MerchantAd, error) {
	ad, err := s.ads.Get(ctx, adID)
	if err != nil {
		return nil, err
	}
	if ad == nil {
		return nil, domain.NotFound(fmt.Sprintf("ad %s not found", adID))
	}
	return ad, nil
}

// ListMerchantAds 查询商家的广告列表
func (s *AdService) ListMerchantAds(ctx context.Context, merchantID string, limit, offset int) ([]*domain.MerchantAd, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.ads.ListByMerchant(ctx, merchantID, limit, offset)
}

// ownedAd 获取广告并校验操作人是否为广告主
func (s *AdService) ownedAd(ctx context.Context, adID, merchantID string) (*domain.MerchantAd, error) {
	ad, err := s.GetAd(ctx, adID)
	if err != nil {
		return nil, err
	}
	if ad.MerchantID != merchantID {
		return nil, domain.Unauthorized("only the ad owner can manage this ad")
	}
	return ad, nil
}

// PauseAd 商家暂停广告，在途交易不受影响
func (s *AdService) PauseAd(ctx context.Context, adID, merchantID string) error {
	ad, err := s.ownedAd(ctx, adID, merchantID)
	if err != nil {
		return err
	}
	if ad.Status == domain.AdStatusClosed {
		return domain.Conflict("a closed ad cannot be paused")
	}
	return s.ads.UpdateStatus(ctx, adID, domain.AdStatusInactive)
}

// ActivateAd 重新上架广告
func (s *AdService) ActivateAd(ctx context.Context, adID, merchantID string) error {
	ad, err := s.ownedAd(ctx, adID, merchantID)
	if err != nil {
		return err
	}
	if ad.Status == domain.AdStatusClosed {
		return domain.Conflict("a closed ad cannot be reactivated")
	}
	return s.ads.UpdateStatus(ctx, adID, domain.AdStatusActive)
}

// CloseAd 下架广告。仍有未终结交易引用时拒绝关闭
func (s *AdService) CloseAd(ctx context.Context, adID, merchantID string) error {
	if _, err := s.ownedAd(ctx, adID, merchantID); err != nil {
		return err
	}
	active, err := s.trades.CountActiveForAd(ctx, adID)
	if err != nil {
		return err
	}
	if active > 0 {
		return domain.Conflict(fmt.Sprintf("ad still has %d active trades, settle or cancel them first", active))
	}
	return s.ads.UpdateStatus(ctx, adID, domain.AdStatusClosed)
}
