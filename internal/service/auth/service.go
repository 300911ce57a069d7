package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

const (
	tokenLifetime = 30 * 24 * time.Hour
	otpLifetime   = 5 * time.Minute
	otpDigits     = 6
)

// Claims are the JWT claims on a client token.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// Service authenticates clients by phone + one-time code and issues
// long-lived bearer tokens. OTP codes live bcrypt-hashed in the cache
// until verified or expired.
type Service struct {
	clients ports.ClientRepository
	cache   ports.Cache
	sms     ports.SMSSender
	secret  []byte
	log     *zap.Logger
}

// NewService builds the auth service. sms may be nil, in which case
// codes are only logged.
func NewService(clients ports.ClientRepository, cache ports.Cache, sms ports.SMSSender, secret string, log *zap.Logger) *Service {
	return &Service{
		clients: clients,
		cache:   cache,
		sms:     sms,
		secret:  []byte(secret),
		log:     log,
	}
}

func otpKey(phone string) string {
	return "otp:" + domain.NormalizePhone(phone)
}

// RequestOTP generates a code for the phone, stores its hash and hands
// the code to the SMS gateway.
func (s *Service) RequestOTP(ctx context.Context, phone string) (string, error) {
	code, err := randomCode(otpDigits)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, otpKey(phone), string(hash), otpLifetime); err != nil {
		return "", err
	}

	normalized := domain.NormalizePhone(phone)
	if s.sms != nil {
		if err := s.sms.SendSMS(ctx, "+"+normalized, "Your EvPower code: "+code); err != nil {
			s.log.Error("Failed to deliver OTP", zap.String("phone", normalized), zap.Error(err))
			return "", domain.ErrInternal.WithMessage("failed to deliver code")
		}
	}
	s.log.Info("OTP issued", zap.String("phone", normalized))
	return code, nil
}

// VerifyOTP checks the code, creates the client on first login and
// returns a bearer token.
func (s *Service) VerifyOTP(ctx context.Context, phone, code string) (string, error) {
	stored, err := s.cache.Get(ctx, otpKey(phone))
	if err != nil || stored == "" {
		return "", domain.ErrUnauthorized.WithMessage("code expired or not requested")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(code)); err != nil {
		return "", domain.ErrUnauthorized.WithMessage("invalid code")
	}
	if err := s.cache.Delete(ctx, otpKey(phone)); err != nil {
		s.log.Debug("Failed to drop used OTP", zap.Error(err))
	}

	normalized := domain.NormalizePhone(phone)
	client, err := s.clients.FindByPhone(ctx, normalized)
	if err != nil {
		return "", err
	}
	if client == nil {
		now := time.Now().UTC()
		client = &domain.Client{
			ID:        uuid.New().String(),
			Phone:     normalized,
			Status:    domain.ClientStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.clients.Save(ctx, client); err != nil {
			return "", err
		}
		s.log.Info("Client created on first login", zap.String("client_id", client.ID))
	}
	if client.Status == domain.ClientStatusBlocked {
		return "", domain.ErrAccountBlocked
	}

	return s.IssueToken(ctx, client.ID)
}

func (s *Service) IssueToken(ctx context.Context, clientID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Type: "access",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses the bearer token and returns the client id.
// Revoked token ids are refused until they would have expired.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", domain.ErrUnauthorized.WithMessage("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", domain.ErrUnauthorized.WithMessage("invalid token claims")
	}

	if revoked, err := s.cache.Get(ctx, "revoked_token:"+claims.ID); err == nil && revoked != "" {
		return "", domain.ErrUnauthorized.WithMessage("token revoked")
	}
	return claims.Subject, nil
}

// RevokeToken blacklists a token id for the remaining token lifetime.
func (s *Service) RevokeToken(ctx context.Context, tokenID string) error {
	return s.cache.Set(ctx, "revoked_token:"+tokenID, "1", tokenLifetime)
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return domain.ErrUnauthorized.WithMessage("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.ID == "" {
		return domain.ErrUnauthorized.WithMessage("invalid token claims")
	}
	return s.RevokeToken(ctx, claims.ID)
}

func randomCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

var _ ports.AuthService = (*Service)(nil)
