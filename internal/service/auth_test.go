package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/service"

	"go.uber.org/zap"
)

type mockUserStore struct {
	users map[string]*domain.User // keyed by phone
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: map[string]*domain.User{}}
}

func (m *mockUserStore) GetUserByPhone(_ context.Context, phone string) (*domain.User, error) {
	u, ok := m.users[phone]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (m *mockUserStore) GetUserByID(_ context.Context, userID string) (*domain.User, error) {
	for _, u := range m.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
}

func (m *mockUserStore) UpsertUser(_ context.Context, user *domain.User) (*domain.User, error) {
	if existing, ok := m.users[user.Phone]; ok {
		existing.OTPHash = user.OTPHash
		existing.OTPExpiresAt = user.OTPExpiresAt
		if user.Name != "" {
			existing.Name = user.Name
		}
		return existing, nil
	}
	user.ID = "user-" + user.Phone
	user.CreatedAt = time.Now()
	m.users[user.Phone] = user
	return user, nil
}

func (m *mockUserStore) UpdateUser(_ context.Context, userID string, updates map[string]any) error {
	for _, u := range m.users {
		if u.ID != userID {
			continue
		}
		if v, ok := updates["otp_hash"].(string); ok {
			u.OTPHash = v
		}
		if v, ok := updates["otp_expires_at"]; ok && v == nil {
			u.OTPExpiresAt = nil
		}
		return nil
	}
	return &domain.ErrNotFound{Resource: "user", ID: userID}
}

func newAuthService(store *mockUserStore) *service.AuthService {
	return service.NewAuthService(store, "test-secret", time.Hour, 5*time.Minute, true, zap.NewNop())
}

func TestStartLogin_InvalidPhone(t *testing.T) {
	svc := newAuthService(newMockUserStore())

	_, err := svc.StartLogin(context.Background(), &domain.StartLoginRequest{Phone: "abc"})
	if err == nil {
		t.Fatal("expected validation error for invalid phone")
	}
}

func TestStartLogin_NormalizesPhone(t *testing.T) {
	store := newMockUserStore()
	svc := newAuthService(store)

	resp, err := svc.StartLogin(context.Background(), &domain.StartLoginRequest{
		Phone: "+55 (87) 99123-4567",
		Name:  "Maria",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.DevCode == "" {
		t.Fatal("dev mode must return the code")
	}
	if len(resp.DevCode) != 6 {
		t.Errorf("expected 6-digit code, got %q", resp.DevCode)
	}

	if _, ok := store.users["+5587991234567"]; !ok {
		t.Errorf("expected user stored under normalized phone, have %v", store.users)
	}
}

func TestVerifyOTP_FullFlow(t *testing.T) {
	store := newMockUserStore()
	svc := newAuthService(store)

	start, err := svc.StartLogin(context.Background(), &domain.StartLoginRequest{Phone: "5587991234567"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := svc.VerifyOTP(context.Background(), &domain.VerifyOTPRequest{
		Phone: "5587991234567",
		Code:  start.DevCode,
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected an access token")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("expected Bearer token type, got %s", resp.TokenType)
	}

	claims, err := svc.ValidateAccessToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Sub != resp.UserID {
		t.Errorf("expected sub %s, got %s", resp.UserID, claims.Sub)
	}
	if claims.Type != "access" {
		t.Errorf("expected access token type, got %s", claims.Type)
	}
}

func TestVerifyOTP_WrongCode(t *testing.T) {
	store := newMockUserStore()
	svc := newAuthService(store)

	if _, err := svc.StartLogin(context.Background(), &domain.StartLoginRequest{Phone: "5587991234567"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := svc.VerifyOTP(context.Background(), &domain.VerifyOTPRequest{
		Phone: "5587991234567",
		Code:  "000000",
	})
	if err == nil {
		t.Fatal("expected invalid code error")
	}
}

func TestVerifyOTP_NoReplay(t *testing.T) {
	store := newMockUserStore()
	svc := newAuthService(store)

	start, err := svc.StartLogin(context.Background(), &domain.StartLoginRequest{Phone: "5587991234567"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.VerifyOTP(context.Background(), &domain.VerifyOTPRequest{
		Phone: "5587991234567", Code: start.DevCode,
	}); err != nil {
		t.Fatalf("first verify: %v", err)
	}

	if _, err := svc.VerifyOTP(context.Background(), &domain.VerifyOTPRequest{
		Phone: "5587991234567", Code: start.DevCode,
	}); err == nil {
		t.Fatal("a consumed code must not verify again")
	}
}

func TestVerifyOTP_UnknownPhone(t *testing.T) {
	svc := newAuthService(newMockUserStore())

	_, err := svc.VerifyOTP(context.Background(), &domain.VerifyOTPRequest{
		Phone: "5587991234567",
		Code:  "123456",
	})
	if err == nil {
		t.Fatal("expected invalid code error for unknown phone")
	}
}

func TestValidateAccessToken_Garbage(t *testing.T) {
	svc := newAuthService(newMockUserStore())

	if _, err := svc.ValidateAccessToken("not-a-token"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
