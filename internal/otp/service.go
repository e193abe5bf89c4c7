// Package otp 提供基于 Redis 的一次性验证码服务
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/wyfcoding/p2ptrading/pkg/logger"
)

// PurposeSettlement P2P 放币确认用途
const PurposeSettlement = "P2P_SETTLEMENT"

// Store OTP 存取所需的最小缓存能力
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Mailer 验证码投递通道
type Mailer interface {
	SendOTP(ctx context.Context, destination, code string) error
}

// LogMailer 只记录日志的投递实现，邮件通道未接入的环境使用。
// 验证码本身不落日志
type LogMailer struct{}

// SendOTP 记录一次投递请求
func (LogMailer) SendOTP(ctx context.Context, destination, _ string) error {
	logger.Info(ctx, "OTP delivery skipped, no mail channel configured", "destination", destination)
	return nil
}

// Service OTP 服务
// 同一 (用户, 用途) 在 TTL 内只允许存在一个有效验证码，
// 校验成功即删除，验证码一次性
type Service struct {
	store  Store
	mailer Mailer
	ttl    time.Duration
}

// New 创建 OTP 服务；mailer 可为 nil，此时仅记录日志
func New(store Store, mailer Mailer, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{store: store, mailer: mailer, ttl: ttl}
}

func otpKey(userID, purpose string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, userID)
}

// Send 生成 6 位验证码并投递到 destination。
// 已有未过期验证码时返回错误，防止刷码
func (s *Service) Send(ctx context.Context, userID, purpose, destination string) error {
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate OTP: %w", err)
	}

	ok, err := s.store.SetNX(ctx, otpKey(userID, purpose), code, s.ttl)
	if err != nil {
		return fmt.Errorf("failed to store OTP: %w", err)
	}
	if !ok {
		return fmt.Errorf("an OTP was already sent recently, please wait before requesting another")
	}

	if s.mailer != nil {
		if err := s.mailer.SendOTP(ctx, destination, code); err != nil {
			// 投递失败时删掉已占用的 key，让用户可以立即重试
			_ = s.store.Delete(ctx, otpKey(userID, purpose))
			return fmt.Errorf("failed to deliver OTP: %w", err)
		}
	}

	logger.Info(ctx, "OTP issued", "user_id", userID, "purpose", purpose)
	return nil
}

// Verify 校验验证码；匹配成功后立即删除
func (s *Service) Verify(ctx context.Context, userID, purpose, code string) (bool, error) {
	key := otpKey(userID, purpose)
	stored, err := s.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if stored == "" || stored != code {
		return false, nil
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
