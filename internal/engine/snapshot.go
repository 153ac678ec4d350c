package engine

import (
	"sort"
	"strconv"
	"strings"

	"github.com/wonny/autoinvest/internal/contracts"
	"github.com/wonny/autoinvest/pkg/config"
)

// BuildState derives the canonical snapshot of everything that
// determines the timetable: broker mode, pie name and composition,
// master currency, weekly budget and period. Scheduled orders are a
// cached product of this snapshot; when any pair changes the persisted
// timetable is stale and must be wiped.
func BuildState(mode string, cfg config.InvestConfig, pie *contracts.Pie) []contracts.StatePair {
	return []contracts.StatePair{
		{Key: "investment_period", Value: cfg.Period.String()},
		{Key: "master_currency", Value: cfg.MasterCurrency},
		{Key: "mode", Value: mode},
		{Key: "pie_composition", Value: formatComposition(pie.Slices)},
		{Key: "pie_name", Value: pie.Name},
		{Key: "weekly_amount", Value: cfg.WeeklyAmount.String()},
	}
}

// formatComposition renders slices as "ticker:weight" pairs sorted by
// ticker, so two pies with the same holdings compare equal regardless
// of the order the API returned them in.
func formatComposition(slices []contracts.PieSlice) string {
	sorted := make([]contracts.PieSlice, len(slices))
	copy(sorted, slices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ticker < sorted[j].Ticker })

	parts := make([]string, 0, len(sorted))
	for _, s := range sorted {
		parts = append(parts, s.Ticker+":"+strconv.FormatFloat(s.Weight, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

// statesEqual compares two snapshots element-wise.
func statesEqual(a, b []contracts.StatePair) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
