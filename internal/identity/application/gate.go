package application

import (
	"context"

	"github.com/wyfcoding/p2ptrading/internal/identity/domain"
	p2pdomain "github.com/wyfcoding/p2ptrading/internal/p2p/domain"
)

// IdentityGate 身份/KYC 门卫：交易前置校验的唯一入口
type IdentityGate struct {
	repo domain.UserRepository
}

// NewIdentityGate 创建并返回一个新的 IdentityGate 实例。
func NewIdentityGate(repo domain.UserRepository) *IdentityGate {
	return &IdentityGate{repo: repo}
}

// CheckUser 获取用户并强制 KYC 规则。
// 三种未通过原因分别给出明确提示
func (g *IdentityGate) CheckUser(ctx context.Context, userID string) (*p2pdomain.User, error) {
	user, err := g.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, p2pdomain.NotFound("user not found")
	}

	switch user.KYCStatus {
	case domain.KYCStatusVerified:
	case domain.KYCStatusPending:
		return nil, p2pdomain.Forbidden("your KYC verification is still pending, please wait for approval before trading")
	case domain.KYCStatusRejected:
		return nil, p2pdomain.Forbidden("your KYC verification was rejected, please update your documents in settings")
	default:
		return nil, p2pdomain.Forbidden("you must complete KYC verification before trading")
	}

	return &p2pdomain.User{
		ID:        user.UserID,
		Role:      user.Role,
		KYCStatus: user.KYCStatus,
		Email:     user.Email,
	}, nil
}

// PrimaryAccount 获取用户主收款账户快照；没有时返回 nil
func (g *IdentityGate) PrimaryAccount(ctx context.Context, userID string) (*p2pdomain.PaymentDetails, error) {
	account, err := g.repo.GetPrimaryBankAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}
	return &p2pdomain.PaymentDetails{
		BankName:      account.BankName,
		AccountNumber: account.AccountNumber,
		AccountName:   account.AccountName,
		BankCode:      account.BankCode,
	}, nil
}
