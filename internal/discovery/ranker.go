package discovery

import (
	"sort"
	"strings"
	"time"
)

// Newest-by strategy names accepted in select.prefer_newest_by.
const (
	NewestByDate         = "date_from_filename"
	NewestByYearMonth    = "year_month_from_filename"
	NewestByLastModified = "last_modified"
)

// SelectWinner applies the contract's selection policy and returns exactly
// one winner, or false when matches is empty. The order is a deterministic
// total order: known-prefix partition, then extension preference, then the
// newest-by strategy, then earliest discovery.
//
// last_modified compares server metadata that is unknown before validation,
// so it keeps the first-discovered candidate; the validator's Last-Modified
// is advisory only and never re-orders after the fact.
func SelectWinner(matches []MatchResult, policy Select) (MatchResult, bool) {
	if len(matches) == 0 {
		return MatchResult{}, false
	}

	pool := matches
	if policy.PreferKnownPrefix != "" {
		if preferred := filterByPrefix(pool, policy.PreferKnownPrefix); len(preferred) > 0 {
			pool = preferred
		}
	}
	if len(policy.PreferExt) > 0 {
		pool = bestExtensionGroup(pool, policy.PreferExt)
	}

	ordered := make([]MatchResult, len(pool))
	copy(ordered, pool)
	sort.SliceStable(ordered, func(i, j int) bool {
		if policy.PreferNewestBy != "" && policy.PreferNewestBy != NewestByLastModified {
			ti, iOK := comparableTime(ordered[i], policy.PreferNewestBy)
			tj, jOK := comparableTime(ordered[j], policy.PreferNewestBy)
			switch {
			case iOK && !jOK:
				return true
			case !iOK && jOK:
				return false
			case iOK && jOK && !ti.Equal(tj):
				return ti.After(tj)
			}
		}
		return ordered[i].Candidate.Order < ordered[j].Candidate.Order
	})
	return ordered[0], true
}

func filterByPrefix(matches []MatchResult, prefix string) []MatchResult {
	var kept []MatchResult
	for _, m := range matches {
		if strings.Contains(m.Candidate.URL, prefix) {
			kept = append(kept, m)
		}
	}
	return kept
}

// bestExtensionGroup keeps the single highest-priority non-empty extension
// group. Candidates matching no preferred extension only survive when no
// candidate matches any.
func bestExtensionGroup(matches []MatchResult, preferExt []string) []MatchResult {
	for _, ext := range preferExt {
		var group []MatchResult
		for _, m := range matches {
			if HasAnyExtension(m.Candidate.URL, []string{ext}) {
				group = append(group, m)
			}
		}
		if len(group) > 0 {
			return group
		}
	}
	return matches
}

func comparableTime(m MatchResult, strategy string) (time.Time, bool) {
	switch strategy {
	case NewestByDate:
		if m.HasDate() {
			return m.Date, true
		}
	case NewestByYearMonth:
		if m.HasYearMonth() {
			return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
