package application

import (
	"context"
	"testing"

	"github.com/wyfcoding/p2ptrading/internal/identity/domain"
	p2pdomain "github.com/wyfcoding/p2ptrading/internal/p2p/domain"
)

type memUserRepo struct {
	users map[string]*domain.UserAccount
	banks map[string]*domain.BankAccount
}

func (m *memUserRepo) Get(ctx context.Context, userID string) (*domain.UserAccount, error) {
	return m.users[userID], nil
}

func (m *memUserRepo) GetPrimaryBankAccount(ctx context.Context, userID string) (*domain.BankAccount, error) {
	return m.banks[userID], nil
}

func TestCheckUserKYC(t *testing.T) {
	gate := NewIdentityGate(&memUserRepo{users: map[string]*domain.UserAccount{
		"verified":    {UserID: "verified", Role: domain.RoleUser, KYCStatus: domain.KYCStatusVerified, Email: "v@example.com"},
		"pending":     {UserID: "pending", Role: domain.RoleUser, KYCStatus: domain.KYCStatusPending},
		"rejected":    {UserID: "rejected", Role: domain.RoleUser, KYCStatus: domain.KYCStatusRejected},
		"unsubmitted": {UserID: "unsubmitted", Role: domain.RoleUser, KYCStatus: domain.KYCStatusUnsubmitted},
	}})
	ctx := context.Background()

	user, err := gate.CheckUser(ctx, "verified")
	if err != nil {
		t.Fatalf("verified user rejected: %v", err)
	}
	if user.Email != "v@example.com" || user.Role != domain.RoleUser {
		t.Errorf("user view: %+v", user)
	}

	for _, id := range []string{"pending", "rejected", "unsubmitted"} {
		if _, err := gate.CheckUser(ctx, id); p2pdomain.KindOf(err) != p2pdomain.KindForbidden {
			t.Errorf("%s user should be forbidden, got %v", id, err)
		}
	}

	if _, err := gate.CheckUser(ctx, "ghost"); p2pdomain.KindOf(err) != p2pdomain.KindNotFound {
		t.Fatalf("unknown user should be not found, got %v", err)
	}
}

func TestPrimaryAccountSnapshot(t *testing.T) {
	gate := NewIdentityGate(&memUserRepo{banks: map[string]*domain.BankAccount{
		"u1": {UserID: "u1", BankName: "Test Bank", AccountNumber: "0123456789", AccountName: "U One", BankCode: "058"},
	}})
	ctx := context.Background()

	details, err := gate.PrimaryAccount(ctx, "u1")
	if err != nil {
		t.Fatalf("PrimaryAccount failed: %v", err)
	}
	if details.BankName != "Test Bank" || details.AccountNumber != "0123456789" {
		t.Errorf("snapshot: %+v", details)
	}

	missing, err := gate.PrimaryAccount(ctx, "u2")
	if err != nil {
		t.Fatalf("PrimaryAccount failed: %v", err)
	}
	if missing != nil {
		t.Fatal("user without bank account should return nil")
	}
}
