package stationauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/mocks"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func stationWithKey(key string) *domain.Station {
	return &domain.Station{
		ID:     "EVP-001",
		Status: domain.StationStatusActive,
		APIKey: key,
	}
}

func TestVerifyConnection_Disabled(t *testing.T) {
	// Arrange
	svc := NewService(&mocks.MockStationRepository{}, "secret", "", false, newTestLogger())

	// Act
	err := svc.VerifyConnection(context.Background(), "EVP-001", "")

	// Assert
	if err != nil {
		t.Fatalf("expected any station accepted when verification is off, got %v", err)
	}
}

func TestVerifyConnection_MasterKey(t *testing.T) {
	// Arrange
	stations := &mocks.MockStationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Station, error) {
			t.Fatal("master key must short-circuit the lookup")
			return nil, nil
		},
	}
	svc := NewService(stations, "secret", "master-key", true, newTestLogger())

	// Act
	err := svc.VerifyConnection(context.Background(), "EVP-001", "master-key")

	// Assert
	if err != nil {
		t.Fatalf("expected master key accepted, got %v", err)
	}
}

func TestVerifyConnection_ValidStationKey(t *testing.T) {
	// Arrange
	touched := false
	stations := &mocks.MockStationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Station, error) {
			return stationWithKey("evp_EVP-001_abc_def"), nil
		},
		TouchAPIKeyUseFunc: func(ctx context.Context, id string) error {
			touched = true
			return nil
		},
	}
	svc := NewService(stations, "secret", "", true, newTestLogger())

	// Act
	err := svc.VerifyConnection(context.Background(), "EVP-001", "evp_EVP-001_abc_def")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !touched {
		t.Error("expected last key use recorded")
	}
}

func TestVerifyConnection_WrongKey(t *testing.T) {
	// Arrange
	stations := &mocks.MockStationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Station, error) {
			return stationWithKey("right-key"), nil
		},
	}
	svc := NewService(stations, "secret", "", true, newTestLogger())

	// Act
	err := svc.VerifyConnection(context.Background(), "EVP-001", "wrong-key")

	// Assert
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyConnection_ExpiredKey(t *testing.T) {
	// Arrange
	expired := time.Now().Add(-time.Hour)
	stations := &mocks.MockStationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Station, error) {
			st := stationWithKey("the-key")
			st.APIKeyExpiresAt = &expired
			return st, nil
		},
	}
	svc := NewService(stations, "secret", "", true, newTestLogger())

	// Act
	err := svc.VerifyConnection(context.Background(), "EVP-001", "the-key")

	// Assert
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for expired key, got %v", err)
	}
}

func TestVerifyConnection_InactiveStation(t *testing.T) {
	// Arrange
	stations := &mocks.MockStationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Station, error) {
			st := stationWithKey("the-key")
			st.Status = domain.StationStatusMaintenance
			return st, nil
		},
	}
	svc := NewService(stations, "secret", "", true, newTestLogger())

	// Act
	err := svc.VerifyConnection(context.Background(), "EVP-001", "the-key")

	// Assert
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for inactive station, got %v", err)
	}
}

func TestVerifyConnection_UnknownStation(t *testing.T) {
	// Arrange
	svc := NewService(&mocks.MockStationRepository{}, "secret", "", true, newTestLogger())

	// Act
	err := svc.VerifyConnection(context.Background(), "EVP-404", "any")

	// Assert
	if !errors.Is(err, domain.ErrStationNotFound) {
		t.Fatalf("expected station_not_found, got %v", err)
	}
}

func TestGenerateAPIKey_Format(t *testing.T) {
	// Arrange
	svc := NewService(&mocks.MockStationRepository{}, "secret", "", true, newTestLogger())

	// Act
	key := svc.GenerateAPIKey("EVP-001")
	other := svc.GenerateAPIKey("EVP-001")

	// Assert
	if !strings.HasPrefix(key, "evp_EVP-001_") {
		t.Errorf("unexpected key prefix: %s", key)
	}
	parts := strings.Split(key, "_")
	if len(parts) != 4 {
		t.Fatalf("expected 4 key segments, got %d", len(parts))
	}
	if len(parts[2]) != 32 || len(parts[3]) != 16 {
		t.Errorf("unexpected segment lengths: %d/%d", len(parts[2]), len(parts[3]))
	}
	if key == other {
		t.Error("expected unique keys per call")
	}
}
