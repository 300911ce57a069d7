package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/mocks"
)

func parseForTest(token, secret string, claims *Claims) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
}

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func TestIssueAndValidateToken(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc := NewService(&mocks.MockClientRepository{}, mocks.NewMockCache(), nil, "test-secret", newTestLogger())

	// Act
	token, err := svc.IssueToken(ctx, "client-1")
	if err != nil {
		t.Fatalf("expected no error issuing, got %v", err)
	}
	clientID, err := svc.ValidateToken(ctx, token)

	// Assert
	if err != nil {
		t.Fatalf("expected no error validating, got %v", err)
	}
	if clientID != "client-1" {
		t.Errorf("expected client-1, got %s", clientID)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	// Arrange
	ctx := context.Background()
	issuer := NewService(&mocks.MockClientRepository{}, mocks.NewMockCache(), nil, "secret-a", newTestLogger())
	verifier := NewService(&mocks.MockClientRepository{}, mocks.NewMockCache(), nil, "secret-b", newTestLogger())
	token, _ := issuer.IssueToken(ctx, "client-1")

	// Act
	_, err := verifier.ValidateToken(ctx, token)

	// Assert
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc := NewService(&mocks.MockClientRepository{}, mocks.NewMockCache(), nil, "test-secret", newTestLogger())

	// Act
	_, err := svc.ValidateToken(ctx, "not-a-token")

	// Assert
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyOTP_CreatesClientAndIssuesToken(t *testing.T) {
	// Arrange
	ctx := context.Background()
	var saved *domain.Client
	clients := &mocks.MockClientRepository{
		SaveFunc: func(ctx context.Context, client *domain.Client) error {
			saved = client
			return nil
		},
	}
	svc := NewService(clients, mocks.NewMockCache(), nil, "test-secret", newTestLogger())

	code, err := svc.RequestOTP(ctx, "+996 700 123456")
	if err != nil {
		t.Fatalf("expected no error requesting OTP, got %v", err)
	}

	// Act
	token, err := svc.VerifyOTP(ctx, "+996 700 123456", code)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
	if saved == nil || saved.Phone != "996700123456" {
		t.Error("expected client created with normalized phone")
	}
	if saved.Status != domain.ClientStatusActive {
		t.Errorf("expected active client, got %s", saved.Status)
	}
}

func TestVerifyOTP_WrongCode(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc := NewService(&mocks.MockClientRepository{}, mocks.NewMockCache(), nil, "test-secret", newTestLogger())
	if _, err := svc.RequestOTP(ctx, "996700123456"); err != nil {
		t.Fatal(err)
	}

	// Act
	_, err := svc.VerifyOTP(ctx, "996700123456", "000000")

	// Assert
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyOTP_BlockedClient(t *testing.T) {
	// Arrange
	ctx := context.Background()
	clients := &mocks.MockClientRepository{
		FindByPhoneFunc: func(ctx context.Context, phone string) (*domain.Client, error) {
			return &domain.Client{ID: "client-1", Phone: phone, Status: domain.ClientStatusBlocked}, nil
		},
	}
	svc := NewService(clients, mocks.NewMockCache(), nil, "test-secret", newTestLogger())
	code, _ := svc.RequestOTP(ctx, "996700123456")

	// Act
	_, err := svc.VerifyOTP(ctx, "996700123456", code)

	// Assert
	if !errors.Is(err, domain.ErrAccountBlocked) {
		t.Fatalf("expected account_blocked, got %v", err)
	}
}

func TestRevokeToken(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc := NewService(&mocks.MockClientRepository{}, mocks.NewMockCache(), nil, "test-secret", newTestLogger())
	token, _ := svc.IssueToken(ctx, "client-1")

	claims := &Claims{}
	if _, err := parseForTest(token, "test-secret", claims); err != nil {
		t.Fatal(err)
	}
	if err := svc.RevokeToken(ctx, claims.ID); err != nil {
		t.Fatal(err)
	}

	// Act
	_, err := svc.ValidateToken(ctx, token)

	// Assert
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized after revocation, got %v", err)
	}
}

func TestRequestOTP_DeliversViaSMS(t *testing.T) {
	// Arrange
	ctx := context.Background()
	sms := &mocks.MockSMSSender{}
	svc := NewService(&mocks.MockClientRepository{}, mocks.NewMockCache(), sms, "test-secret", newTestLogger())

	// Act
	code, err := svc.RequestOTP(ctx, "996700123456")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sms.Sent) != 1 {
		t.Fatalf("expected 1 SMS, got %d", len(sms.Sent))
	}
	if !strings.Contains(sms.Sent[0], code) {
		t.Errorf("expected SMS to carry the code %q, got %q", code, sms.Sent[0])
	}
}

func TestRequestOTP_SMSFailureSurfaces(t *testing.T) {
	// Arrange
	ctx := context.Background()
	sms := &mocks.MockSMSSender{
		SendSMSFunc: func(ctx context.Context, to, message string) error {
			return errors.New("gateway down")
		},
	}
	svc := NewService(&mocks.MockClientRepository{}, mocks.NewMockCache(), sms, "test-secret", newTestLogger())

	// Act
	_, err := svc.RequestOTP(ctx, "996700123456")

	// Assert
	if !errors.Is(err, domain.ErrInternal) {
		t.Errorf("expected internal error, got %v", err)
	}
}
