package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

const (
	memoTTL = 300 * time.Second
)

// Service resolves the tariff snapshot for a charging session.
// Resolution order: client override, station price, station plan
// rules, network fallback. Results are memoized per input tuple with
// the request time truncated to the minute.
type Service struct {
	stations ports.StationRepository
	tariffs  ports.TariffRepository
	cache    ports.Cache
	log      *zap.Logger

	// Per-station version bumped on Invalidate; part of the memo key
	// so admin edits drop only the affected entries.
	versions sync.Map
}

func NewService(stations ports.StationRepository, tariffs ports.TariffRepository, cache ports.Cache, log *zap.Logger) *Service {
	return &Service{
		stations: stations,
		tariffs:  tariffs,
		cache:    cache,
		log:      log,
	}
}

func (s *Service) stationVersion(stationID string) int64 {
	if v, ok := s.versions.Load(stationID); ok {
		return v.(int64)
	}
	return 0
}

// Invalidate drops memoized snapshots for one station.
func (s *Service) Invalidate(stationID string) {
	for {
		old, _ := s.versions.LoadOrStore(stationID, int64(0))
		if s.versions.CompareAndSwap(stationID, old, old.(int64)+1) {
			return
		}
	}
}

func (s *Service) memoKey(stationID, connectorType string, powerKw float64, at time.Time, clientID string) string {
	minute := at.Truncate(time.Minute).Unix()
	return fmt.Sprintf("pricing:%s:%d:%s:%.1f:%d:%s",
		stationID, s.stationVersion(stationID), connectorType, powerKw, minute, clientID)
}

func (s *Service) Resolve(ctx context.Context, stationID, connectorType string, powerKw float64, at time.Time, clientID string) (*domain.TariffSnapshot, error) {
	key := s.memoKey(stationID, connectorType, powerKw, at, clientID)
	if cached, err := s.cache.Get(ctx, key); err == nil && cached != "" {
		var snapshot domain.TariffSnapshot
		if err := json.Unmarshal([]byte(cached), &snapshot); err == nil {
			return &snapshot, nil
		}
	}

	snapshot, err := s.resolve(ctx, stationID, connectorType, powerKw, at, clientID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(snapshot); err == nil {
		if err := s.cache.Set(ctx, key, string(data), memoTTL); err != nil {
			s.log.Debug("Failed to memoize tariff snapshot", zap.Error(err))
		}
	}
	return snapshot, nil
}

func (s *Service) resolve(ctx context.Context, stationID, connectorType string, powerKw float64, at time.Time, clientID string) (*domain.TariffSnapshot, error) {
	// 1. Client-specific override.
	if clientID != "" {
		override, err := s.tariffs.FindClientTariff(ctx, clientID)
		if err != nil {
			return nil, fmt.Errorf("failed to load client tariff: %w", err)
		}
		if override != nil && override.ValidAt(at) {
			if override.RatePerKwh != nil {
				return &domain.TariffSnapshot{
					RatePerKwh:  *override.RatePerKwh,
					Currency:    domain.Currency,
					Description: "Индивидуальный тариф",
				}, nil
			}
			if override.TariffPlanID != nil {
				snapshot, err := s.resolvePlan(ctx, *override.TariffPlanID, connectorType, powerKw, at)
				if err != nil {
					return nil, err
				}
				if snapshot != nil {
					factor := 1 - override.DiscountPercent/100
					snapshot.RatePerKwh *= factor
					snapshot.RatePerMinute *= factor
					snapshot.Description = fmt.Sprintf("%s (скидка %.0f%%)", snapshot.Description, override.DiscountPercent)
					return snapshot, nil
				}
			}
		}
	}

	station, err := s.stations.FindByID(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load station: %w", err)
	}
	if station == nil {
		return nil, domain.ErrStationNotFound
	}

	// 2. Station-specific price.
	if station.PricePerKwh > 0 {
		return &domain.TariffSnapshot{
			RatePerKwh:  station.PricePerKwh,
			SessionFee:  station.SessionFee,
			Currency:    domain.Currency,
			Description: "Тариф станции",
		}, nil
	}

	// 3. Station's tariff plan.
	if station.TariffPlanID != nil {
		snapshot, err := s.resolvePlan(ctx, *station.TariffPlanID, connectorType, powerKw, at)
		if err != nil {
			return nil, err
		}
		if snapshot != nil {
			return snapshot, nil
		}
	}

	// 4. Network fallback.
	return &domain.TariffSnapshot{
		RatePerKwh:  domain.DefaultRatePerKwh,
		Currency:    domain.Currency,
		Description: domain.DefaultTariffDescription,
	}, nil
}

// resolvePlan picks the winning rule out of the plan's active rules.
// Rules arrive pre-ordered by priority desc, created_at desc, so the
// first rule passing every filter wins. Returns nil when nothing
// matches.
func (s *Service) resolvePlan(ctx context.Context, planID, connectorType string, powerKw float64, at time.Time) (*domain.TariffSnapshot, error) {
	rules, err := s.tariffs.FindActiveRules(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tariff rules: %w", err)
	}

	var chosen *domain.TariffRule
	for i := range rules {
		if ruleMatches(&rules[i], connectorType, powerKw, at) {
			chosen = &rules[i]
			break
		}
	}
	if chosen == nil {
		return nil, nil
	}

	snapshot := &domain.TariffSnapshot{
		Currency:     domain.Currency,
		Description:  chosen.Description,
		TariffPlanID: &planID,
		RuleID:       &chosen.ID,
		TimeBased:    chosen.TimeStart != nil && chosen.TimeEnd != nil,
	}
	if snapshot.Description == "" {
		snapshot.Description = fmt.Sprintf("Тарифный план %s", planID)
	}

	switch chosen.TariffType {
	case domain.TariffTypePerKwh:
		snapshot.RatePerKwh = chosen.Price
	case domain.TariffTypePerMinute:
		snapshot.RatePerMinute = chosen.Price
	case domain.TariffTypeSessionFee:
		snapshot.SessionFee = chosen.Price
	case domain.TariffTypeParkingFee:
		snapshot.ParkingFeePerMinute = chosen.Price
	}

	// Companion rules of other types on the same slice fill the
	// remaining snapshot fields.
	for i := range rules {
		r := &rules[i]
		if r.ID == chosen.ID || !ruleMatches(r, connectorType, powerKw, at) {
			continue
		}
		switch r.TariffType {
		case domain.TariffTypePerKwh:
			if snapshot.RatePerKwh == 0 {
				snapshot.RatePerKwh = r.Price
			}
		case domain.TariffTypePerMinute:
			if snapshot.RatePerMinute == 0 {
				snapshot.RatePerMinute = r.Price
			}
		case domain.TariffTypeSessionFee:
			if snapshot.SessionFee == 0 {
				snapshot.SessionFee = r.Price
			}
		case domain.TariffTypeParkingFee:
			if snapshot.ParkingFeePerMinute == 0 {
				snapshot.ParkingFeePerMinute = r.Price
			}
		}
	}

	snapshot.NextRateChange = nextRateChange(rules, chosen, at)
	if snapshot.RuleDetails == "" {
		snapshot.RuleDetails = ruleDetails(chosen)
	}
	return snapshot, nil
}

func ruleMatches(rule *domain.TariffRule, connectorType string, powerKw float64, at time.Time) bool {
	if rule.ConnectorType != "" && rule.ConnectorType != "ALL" &&
		!strings.EqualFold(rule.ConnectorType, connectorType) {
		return false
	}
	if rule.PowerRangeMin != nil && powerKw < *rule.PowerRangeMin {
		return false
	}
	if rule.PowerRangeMax != nil && powerKw > *rule.PowerRangeMax {
		return false
	}
	if rule.ValidFrom != nil && at.Before(*rule.ValidFrom) {
		return false
	}
	if rule.ValidUntil != nil && at.After(*rule.ValidUntil) {
		return false
	}
	if !dayMatches(rule, at) {
		return false
	}
	return timeWindowMatches(rule, at)
}

// dayMatches checks days_of_week (Monday=0) or, when empty, the
// is_weekend flag.
func dayMatches(rule *domain.TariffRule, at time.Time) bool {
	weekday := (int(at.Weekday()) + 6) % 7 // Monday=0
	if rule.DaysOfWeek != "" {
		for _, part := range strings.Split(rule.DaysOfWeek, ",") {
			day, err := strconv.Atoi(strings.TrimSpace(part))
			if err == nil && day == weekday {
				return true
			}
		}
		return false
	}
	if rule.IsWeekend != nil {
		isWeekend := weekday >= 5
		return isWeekend == *rule.IsWeekend
	}
	return true
}

// timeWindowMatches is inclusive on both ends; a window with start
// after end crosses midnight.
func timeWindowMatches(rule *domain.TariffRule, at time.Time) bool {
	if rule.TimeStart == nil || rule.TimeEnd == nil {
		return true
	}
	start, ok1 := parseClock(*rule.TimeStart)
	end, ok2 := parseClock(*rule.TimeEnd)
	if !ok1 || !ok2 {
		return true
	}
	now := at.Hour()*60 + at.Minute()
	if start <= end {
		return now >= start && now <= end
	}
	return now >= start || now <= end
}

func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// nextRateChange finds the earliest moment after at when the chosen
// rule ceases to apply or another rule's window opens.
func nextRateChange(rules []domain.TariffRule, chosen *domain.TariffRule, at time.Time) *time.Time {
	var candidates []int // minutes of day

	if chosen.TimeStart != nil && chosen.TimeEnd != nil {
		if end, ok := parseClock(*chosen.TimeEnd); ok {
			// The window is inclusive; the rate changes the next minute.
			candidates = append(candidates, (end+1)%(24*60))
		}
	}
	for i := range rules {
		r := &rules[i]
		if r.ID == chosen.ID || r.TimeStart == nil {
			continue
		}
		if start, ok := parseClock(*r.TimeStart); ok {
			candidates = append(candidates, start)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	now := at.Hour()*60 + at.Minute()
	best := -1
	for _, c := range candidates {
		delta := c - now
		if delta <= 0 {
			delta += 24 * 60
		}
		if best == -1 || delta < best {
			best = delta
		}
	}
	next := at.Truncate(time.Minute).Add(time.Duration(best) * time.Minute)
	return &next
}

func ruleDetails(rule *domain.TariffRule) string {
	var parts []string
	if rule.TimeStart != nil && rule.TimeEnd != nil {
		parts = append(parts, fmt.Sprintf("%s-%s", *rule.TimeStart, *rule.TimeEnd))
	}
	if rule.ConnectorType != "" && rule.ConnectorType != "ALL" {
		parts = append(parts, rule.ConnectorType)
	}
	if rule.PowerRangeMin != nil || rule.PowerRangeMax != nil {
		min, max := 0.0, 0.0
		if rule.PowerRangeMin != nil {
			min = *rule.PowerRangeMin
		}
		if rule.PowerRangeMax != nil {
			max = *rule.PowerRangeMax
		}
		parts = append(parts, fmt.Sprintf("%.0f-%.0f kW", min, max))
	}
	return strings.Join(parts, ", ")
}

var _ ports.PricingService = (*Service)(nil)
