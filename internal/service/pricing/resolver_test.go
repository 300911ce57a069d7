package pricing

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/adapter/cache"
	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/mocks"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func strPtr(s string) *string   { return &s }
func f64Ptr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool      { return &v }

func at(hhmm string) time.Time {
	// Tuesday 2026-01-06 so weekday filters are deterministic.
	t, _ := time.Parse("2006-01-02 15:04", "2026-01-06 "+hhmm)
	return t
}

func newResolver(stations *mocks.MockStationRepository, tariffs *mocks.MockTariffRepository) *Service {
	return NewService(stations, tariffs, cache.NewLocalCache(time.Minute, newTestLogger()), newTestLogger())
}

func TestResolve_StationPriceWins(t *testing.T) {
	// Arrange
	ctx := context.Background()
	stations := &mocks.MockStationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Station, error) {
			return &domain.Station{ID: id, PricePerKwh: 18.5, SessionFee: 10}, nil
		},
	}
	svc := newResolver(stations, &mocks.MockTariffRepository{})

	// Act
	snapshot, err := svc.Resolve(ctx, "EVP-001", "GBT", 60, at("12:00"), "")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if snapshot.RatePerKwh != 18.5 {
		t.Errorf("expected station rate 18.5, got %v", snapshot.RatePerKwh)
	}
	if snapshot.SessionFee != 10 {
		t.Errorf("expected session fee 10, got %v", snapshot.SessionFee)
	}
	if snapshot.Currency != domain.Currency {
		t.Errorf("expected currency %s, got %s", domain.Currency, snapshot.Currency)
	}
}

func TestResolve_ClientOverrideBeatsStation(t *testing.T) {
	// Arrange
	ctx := context.Background()
	stations := &mocks.MockStationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Station, error) {
			return &domain.Station{ID: id, PricePerKwh: 18.5}, nil
		},
	}
	tariffs := &mocks.MockTariffRepository{
		FindClientTariffFunc: func(ctx context.Context, clientID string) (*domain.ClientTariff, error) {
			return &domain.ClientTariff{
				ClientID:   clientID,
				RatePerKwh: f64Ptr(12),
				IsActive:   true,
			}, nil
		},
	}
	svc := newResolver(stations, tariffs)

	// Act
	snapshot, err := svc.Resolve(ctx, "EVP-001", "GBT", 60, at("12:00"), "client-1")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if snapshot.RatePerKwh != 12 {
		t.Errorf("expected override rate 12, got %v", snapshot.RatePerKwh)
	}
}

func TestResolve_LapsedOverrideIgnored(t *testing.T) {
	// Arrange
	ctx := context.Background()
	until := at("12:00").Add(-time.Hour)
	stations := &mocks.MockStationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Station, error) {
			return &domain.Station{ID: id, PricePerKwh: 18.5}, nil
		},
	}
	tariffs := &mocks.MockTariffRepository{
		FindClientTariffFunc: func(ctx context.Context, clientID string) (*domain.ClientTariff, error) {
			return &domain.ClientTariff{
				ClientID:   clientID,
				RatePerKwh: f64Ptr(12),
				IsActive:   true,
				ValidUntil: &until,
			}, nil
		},
	}
	svc := newResolver(stations, tariffs)

	// Act
	snapshot, err := svc.Resolve(ctx, "EVP-001", "GBT", 60, at("12:00"), "client-1")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if snapshot.RatePerKwh != 18.5 {
		t.Errorf("expected station rate after lapsed override, got %v", snapshot.RatePerKwh)
	}
}

func TestResolve_PlanRulePriorityAndTimeWindow(t *testing.T) {
	// Arrange: a night rule and a default rule; resolution at night and
	// during the day must pick different rules.
	ctx := context.Background()
	planID := "plan-1"
	rules := []domain.TariffRule{
		{
			ID: "rule-night", TariffPlanID: planID, TariffType: domain.TariffTypePerKwh,
			Price: 9, Priority: 10, IsActive: true,
			TimeStart: strPtr("22:00"), TimeEnd: strPtr("06:00"),
		},
		{
			ID: "rule-day", TariffPlanID: planID, TariffType: domain.TariffTypePerKwh,
			Price: 16, Priority: 0, IsActive: true,
		},
	}
	stations := &mocks.MockStationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Station, error) {
			return &domain.Station{ID: id, TariffPlanID: &planID}, nil
		},
	}
	tariffs := &mocks.MockTariffRepository{
		FindActiveRulesFunc: func(ctx context.Context, id string) ([]domain.TariffRule, error) {
			return rules, nil
		},
	}
	svc := newResolver(stations, tariffs)

	// Act + Assert: inside the midnight-crossing window
	night, err := svc.Resolve(ctx, "EVP-001", "GBT", 60, at("23:30"), "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if night.RatePerKwh != 9 {
		t.Errorf("expected night rate 9, got %v", night.RatePerKwh)
	}
	if !night.TimeBased {
		t.Error("expected time_based snapshot for windowed rule")
	}
	if night.NextRateChange == nil {
		t.Error("expected next rate change for windowed rule")
	}

	// Outside the window the lower-priority default wins.
	day, err := svc.Resolve(ctx, "EVP-001", "GBT", 60, at("12:00"), "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if day.RatePerKwh != 16 {
		t.Errorf("expected day rate 16, got %v", day.RatePerKwh)
	}
}

func TestResolve_PowerAndConnectorFilters(t *testing.T) {
	// Arrange
	ctx := context.Background()
	planID := "plan-1"
	rules := []domain.TariffRule{
		{
			ID: "rule-dc", TariffPlanID: planID, TariffType: domain.TariffTypePerKwh,
			Price: 21, Priority: 5, IsActive: true,
			ConnectorType: "CCS2", PowerRangeMin: f64Ptr(50),
		},
		{
			ID: "rule-any", TariffPlanID: planID, TariffType: domain.TariffTypePerKwh,
			Price: 14, Priority: 0, IsActive: true, ConnectorType: "ALL",
		},
	}
	stations := &mocks.MockStationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Station, error) {
			return &domain.Station{ID: id, TariffPlanID: &planID}, nil
		},
	}
	tariffs := &mocks.MockTariffRepository{
		FindActiveRulesFunc: func(ctx context.Context, id string) ([]domain.TariffRule, error) {
			return rules, nil
		},
	}
	svc := newResolver(stations, tariffs)

	// Act + Assert
	fast, _ := svc.Resolve(ctx, "EVP-001", "CCS2", 120, at("12:00"), "")
	if fast.RatePerKwh != 21 {
		t.Errorf("expected DC rate 21 for CCS2@120kW, got %v", fast.RatePerKwh)
	}
	slow, _ := svc.Resolve(ctx, "EVP-001", "GBT", 22, at("12:00"), "")
	if slow.RatePerKwh != 14 {
		t.Errorf("expected generic rate 14 for GBT@22kW, got %v", slow.RatePerKwh)
	}
}

func TestResolve_NetworkFallback(t *testing.T) {
	// Arrange
	ctx := context.Background()
	stations := &mocks.MockStationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Station, error) {
			return &domain.Station{ID: id}, nil
		},
	}
	svc := newResolver(stations, &mocks.MockTariffRepository{})

	// Act
	snapshot, err := svc.Resolve(ctx, "EVP-001", "GBT", 60, at("12:00"), "")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if snapshot.RatePerKwh != domain.DefaultRatePerKwh {
		t.Errorf("expected fallback rate %v, got %v", domain.DefaultRatePerKwh, snapshot.RatePerKwh)
	}
}

func TestResolve_MemoizesUntilInvalidate(t *testing.T) {
	// Arrange
	ctx := context.Background()
	calls := 0
	stations := &mocks.MockStationRepository{
		FindByIDFunc: func(ctx context.Context, id string) (*domain.Station, error) {
			calls++
			return &domain.Station{ID: id, PricePerKwh: 18.5}, nil
		},
	}
	svc := newResolver(stations, &mocks.MockTariffRepository{})
	when := at("12:00")

	// Act
	if _, err := svc.Resolve(ctx, "EVP-001", "GBT", 60, when, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Resolve(ctx, "EVP-001", "GBT", 60, when.Add(10*time.Second), ""); err != nil {
		t.Fatal(err)
	}

	// Assert: second call within the same minute hits the memo
	if calls != 1 {
		t.Errorf("expected 1 repository call, got %d", calls)
	}

	// Invalidate bumps the version so the memo misses.
	svc.Invalidate("EVP-001")
	if _, err := svc.Resolve(ctx, "EVP-001", "GBT", 60, when, ""); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected repository re-read after invalidate, got %d calls", calls)
	}
}

func TestValidateRule_Rejections(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc := newResolver(&mocks.MockStationRepository{}, &mocks.MockTariffRepository{})

	tests := []struct {
		name string
		rule domain.TariffRule
	}{
		{"negative price", domain.TariffRule{Price: -1}},
		{"inverted power range", domain.TariffRule{Price: 10, PowerRangeMin: f64Ptr(100), PowerRangeMax: f64Ptr(50)}},
		{"bad time format", domain.TariffRule{Price: 10, TimeStart: strPtr("25:00"), TimeEnd: strPtr("06:00")}},
		{"empty window", domain.TariffRule{Price: 10, TimeStart: strPtr("08:00"), TimeEnd: strPtr("08:00")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			err := svc.ValidateRule(ctx, &tt.rule)

			// Assert
			if err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateRule_SamePriorityOverlapConflicts(t *testing.T) {
	// Arrange: existing weekday morning rule on the same plan
	ctx := context.Background()
	existing := []domain.TariffRule{
		{
			ID: "rule-1", TariffPlanID: "plan-1", Price: 10, Priority: 5, IsActive: true,
			TimeStart: strPtr("08:00"), TimeEnd: strPtr("12:00"), IsWeekend: boolPtr(false),
		},
	}
	tariffs := &mocks.MockTariffRepository{
		FindActiveRulesFunc: func(ctx context.Context, planID string) ([]domain.TariffRule, error) {
			return existing, nil
		},
	}
	svc := newResolver(&mocks.MockStationRepository{}, tariffs)

	// Act: overlapping window, same priority
	conflict := &domain.TariffRule{
		ID: "rule-2", TariffPlanID: "plan-1", Price: 12, Priority: 5,
		TimeStart: strPtr("10:00"), TimeEnd: strPtr("14:00"),
	}
	err := svc.ValidateRule(ctx, conflict)

	// Assert
	if err == nil {
		t.Error("expected overlap conflict")
	}

	// Weekend-only rule does not share a day with the weekday rule.
	weekend := &domain.TariffRule{
		ID: "rule-3", TariffPlanID: "plan-1", Price: 12, Priority: 5,
		TimeStart: strPtr("10:00"), TimeEnd: strPtr("14:00"), IsWeekend: boolPtr(true),
	}
	if err := svc.ValidateRule(ctx, weekend); err != nil {
		t.Errorf("expected no conflict across disjoint days, got %v", err)
	}

	// Different priority never conflicts.
	lower := &domain.TariffRule{
		ID: "rule-4", TariffPlanID: "plan-1", Price: 12, Priority: 1,
		TimeStart: strPtr("10:00"), TimeEnd: strPtr("14:00"),
	}
	if err := svc.ValidateRule(ctx, lower); err != nil {
		t.Errorf("expected no conflict across priorities, got %v", err)
	}
}
