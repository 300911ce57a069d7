package pricing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/evpower/evpower-backend/internal/domain"
)

// ValidateRule checks an admin-written rule before it is saved. The
// resolver itself never calls this; conflicting legacy rules are
// tolerated at resolution time by the priority order.
func (s *Service) ValidateRule(ctx context.Context, rule *domain.TariffRule) error {
	if rule.Price < 0 {
		return fmt.Errorf("price must be non-negative, got %.2f", rule.Price)
	}
	if rule.PowerRangeMin != nil && rule.PowerRangeMax != nil && *rule.PowerRangeMin > *rule.PowerRangeMax {
		return fmt.Errorf("power_range_min %.1f exceeds power_range_max %.1f", *rule.PowerRangeMin, *rule.PowerRangeMax)
	}
	if rule.TimeStart != nil && rule.TimeEnd != nil {
		if _, ok := parseClock(*rule.TimeStart); !ok {
			return fmt.Errorf("invalid time_start %q", *rule.TimeStart)
		}
		if _, ok := parseClock(*rule.TimeEnd); !ok {
			return fmt.Errorf("invalid time_end %q", *rule.TimeEnd)
		}
		if *rule.TimeStart == *rule.TimeEnd {
			return fmt.Errorf("time_start and time_end must differ")
		}
	}

	existing, err := s.tariffs.FindActiveRules(ctx, rule.TariffPlanID)
	if err != nil {
		return fmt.Errorf("failed to load existing rules: %w", err)
	}
	for i := range existing {
		other := &existing[i]
		if other.ID == rule.ID || other.Priority != rule.Priority {
			continue
		}
		if rulesOverlap(rule, other) {
			return fmt.Errorf("rule conflicts with %s: same priority %d and overlapping scope", other.ID, rule.Priority)
		}
	}
	return nil
}

// rulesOverlap reports whether two rules can apply to the same
// (connector_type, day, time) slice.
func rulesOverlap(a, b *domain.TariffRule) bool {
	if !connectorTypesOverlap(a.ConnectorType, b.ConnectorType) {
		return false
	}
	if !daysOverlap(a, b) {
		return false
	}
	return windowsOverlap(a, b)
}

func connectorTypesOverlap(a, b string) bool {
	if a == "" || a == "ALL" || b == "" || b == "ALL" {
		return true
	}
	return a == b
}

func daysOverlap(a, b *domain.TariffRule) bool {
	daysA := ruleDays(a)
	daysB := ruleDays(b)
	for d := range daysA {
		if daysB[d] {
			return true
		}
	}
	return false
}

func ruleDays(r *domain.TariffRule) map[int]bool {
	days := make(map[int]bool)
	if r.DaysOfWeek != "" {
		for _, day := range parseDays(r.DaysOfWeek) {
			days[day] = true
		}
		return days
	}
	if r.IsWeekend != nil {
		if *r.IsWeekend {
			days[5], days[6] = true, true
		} else {
			for d := 0; d < 5; d++ {
				days[d] = true
			}
		}
		return days
	}
	for d := 0; d < 7; d++ {
		days[d] = true
	}
	return days
}

func parseDays(s string) []int {
	var days []int
	for _, part := range strings.Split(s, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		if err == nil && d >= 0 && d <= 6 {
			days = append(days, d)
		}
	}
	return days
}

func windowsOverlap(a, b *domain.TariffRule) bool {
	segsA := ruleSegments(a)
	segsB := ruleSegments(b)
	for _, sa := range segsA {
		for _, sb := range segsB {
			if sa[0] <= sb[1] && sb[0] <= sa[1] {
				return true
			}
		}
	}
	return false
}

// ruleSegments normalizes a (possibly midnight-crossing) window into
// one or two [start,end] minute segments.
func ruleSegments(r *domain.TariffRule) [][2]int {
	if r.TimeStart == nil || r.TimeEnd == nil {
		return [][2]int{{0, 24*60 - 1}}
	}
	start, ok1 := parseClock(*r.TimeStart)
	end, ok2 := parseClock(*r.TimeEnd)
	if !ok1 || !ok2 {
		return [][2]int{{0, 24*60 - 1}}
	}
	if start <= end {
		return [][2]int{{start, end}}
	}
	return [][2]int{{start, 24*60 - 1}, {0, end}}
}
