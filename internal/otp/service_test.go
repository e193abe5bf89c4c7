package otp

import (
	"context"
	"testing"
	"time"
)

// memStore 内存版验证码存储
type memStore struct {
	values map[string]string
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (m *memStore) Get(ctx context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memStore) SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

type recordingMailer struct {
	lastDest string
	lastCode string
	fail     bool
}

func (r *recordingMailer) SendOTP(ctx context.Context, destination, code string) error {
	if r.fail {
		return context.DeadlineExceeded
	}
	r.lastDest = destination
	r.lastCode = code
	return nil
}

func TestSendAndVerify(t *testing.T) {
	store := newMemStore()
	mailer := &recordingMailer{}
	svc := New(store, mailer, time.Minute)
	ctx := context.Background()

	if err := svc.Send(ctx, "u1", PurposeSettlement, "u1@example.com"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if mailer.lastDest != "u1@example.com" {
		t.Errorf("mailer destination: %s", mailer.lastDest)
	}
	if len(mailer.lastCode) != 6 {
		t.Errorf("code should be 6 digits, got %q", mailer.lastCode)
	}

	ok, err := svc.Verify(ctx, "u1", PurposeSettlement, mailer.lastCode)
	if err != nil || !ok {
		t.Fatalf("Verify failed: ok=%v err=%v", ok, err)
	}

	// 验证码一次性
	ok, err = svc.Verify(ctx, "u1", PurposeSettlement, mailer.lastCode)
	if err != nil || ok {
		t.Fatalf("code must be single-use: ok=%v err=%v", ok, err)
	}
}

func TestVerifyWrongCode(t *testing.T) {
	store := newMemStore()
	mailer := &recordingMailer{}
	svc := New(store, mailer, time.Minute)
	ctx := context.Background()

	if err := svc.Send(ctx, "u1", PurposeSettlement, "u1@example.com"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	ok, err := svc.Verify(ctx, "u1", PurposeSettlement, "000000")
	if err != nil || ok {
		t.Fatalf("wrong code must not verify: ok=%v err=%v", ok, err)
	}

	// 错误尝试不消耗验证码
	ok, err = svc.Verify(ctx, "u1", PurposeSettlement, mailer.lastCode)
	if err != nil || !ok {
		t.Fatalf("correct code should still verify: ok=%v err=%v", ok, err)
	}
}

func TestSendThrottled(t *testing.T) {
	store := newMemStore()
	svc := New(store, &recordingMailer{}, time.Minute)
	ctx := context.Background()

	if err := svc.Send(ctx, "u1", PurposeSettlement, "u1@example.com"); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
	if err := svc.Send(ctx, "u1", PurposeSettlement, "u1@example.com"); err == nil {
		t.Fatal("second Send within TTL should be rejected")
	}

	// 不同用途互不影响
	if err := svc.Send(ctx, "u1", "WITHDRAWAL", "u1@example.com"); err != nil {
		t.Fatalf("Send for another purpose failed: %v", err)
	}
}

func TestDeliveryFailureFreesSlot(t *testing.T) {
	store := newMemStore()
	mailer := &recordingMailer{fail: true}
	svc := New(store, mailer, time.Minute)
	ctx := context.Background()

	if err := svc.Send(ctx, "u1", PurposeSettlement, "u1@example.com"); err == nil {
		t.Fatal("Send should surface mailer failure")
	}

	// 投递失败后允许立即重试
	mailer.fail = false
	if err := svc.Send(ctx, "u1", PurposeSettlement, "u1@example.com"); err != nil {
		t.Fatalf("retry after delivery failure should pass: %v", err)
	}
}
