package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func matchAt(url string, order int) MatchResult {
	return MatchResult{Candidate: Candidate{URL: url, Order: order}, Filename: FilenameFromURL(url)}
}

func datedMatch(url string, order int, date time.Time) MatchResult {
	m := matchAt(url, order)
	m.Date = date
	return m
}

func TestSelectWinner_EmptyInput(t *testing.T) {
	t.Parallel()

	_, ok := SelectWinner(nil, Select{})
	require.False(t, ok)
}

func TestSelectWinner_DiscoveryOrderIsTheFinalTieBreak(t *testing.T) {
	t.Parallel()

	matches := []MatchResult{
		matchAt("https://h/b.xls", 1),
		matchAt("https://h/a.xls", 0),
	}
	winner, ok := SelectWinner(matches, Select{})
	require.True(t, ok)
	require.Equal(t, "https://h/a.xls", winner.Candidate.URL)
}

func TestSelectWinner_ExtensionPreferenceDominatesNewestBy(t *testing.T) {
	t.Parallel()

	older := datedMatch("https://h/d/serie-2025-01-01.xlsm", 0,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := datedMatch("https://h/d/serie-2025-06-01.xlsx", 1,
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	winner, ok := SelectWinner([]MatchResult{newer, older}, Select{
		PreferExt:      []string{".xlsm", ".xlsx"},
		PreferNewestBy: NewestByDate,
	})
	require.True(t, ok)
	require.Equal(t, older.Candidate.URL, winner.Candidate.URL,
		"an older file in the preferred extension group beats a newer one outside it")
}

func TestSelectWinner_NewestByDateWithinGroup(t *testing.T) {
	t.Parallel()

	matches := []MatchResult{
		datedMatch("https://h/d/rem-2025-01-01.pdf", 0, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		datedMatch("https://h/d/rem-2025-10-01.pdf", 1, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)),
		datedMatch("https://h/d/rem-2025-04-01.pdf", 2, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)),
	}
	winner, ok := SelectWinner(matches, Select{PreferNewestBy: NewestByDate})
	require.True(t, ok)
	require.Equal(t, "https://h/d/rem-2025-10-01.pdf", winner.Candidate.URL)
}

func TestSelectWinner_YearMonthStrategy(t *testing.T) {
	t.Parallel()

	jan := matchAt("https://h/rem-enero-2025.pdf", 0)
	jan.Year, jan.Month = 2025, time.January
	nov := matchAt("https://h/rem-noviembre-2025.pdf", 1)
	nov.Year, nov.Month = 2025, time.November

	winner, ok := SelectWinner([]MatchResult{jan, nov}, Select{PreferNewestBy: NewestByYearMonth})
	require.True(t, ok)
	require.Equal(t, nov.Candidate.URL, winner.Candidate.URL)
}

func TestSelectWinner_UndatedMatchesSortLast(t *testing.T) {
	t.Parallel()

	undated := matchAt("https://h/d/serie.xls", 0)
	dated := datedMatch("https://h/d/serie-2024-01-05.xls", 1,
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))

	winner, ok := SelectWinner([]MatchResult{undated, dated}, Select{PreferNewestBy: NewestByDate})
	require.True(t, ok)
	require.Equal(t, dated.Candidate.URL, winner.Candidate.URL)
}

func TestSelectWinner_LastModifiedDefersToDiscoveryOrder(t *testing.T) {
	t.Parallel()

	matches := []MatchResult{
		matchAt("https://h/d/first.xls", 0),
		matchAt("https://h/d/second.xls", 1),
	}
	winner, ok := SelectWinner(matches, Select{PreferNewestBy: NewestByLastModified})
	require.True(t, ok)
	require.Equal(t, "https://h/d/first.xls", winner.Candidate.URL,
		"server-metadata ordering is unresolved before validation; first discovered wins")
}

func TestSelectWinner_KnownPrefixBeatsExtension(t *testing.T) {
	t.Parallel()

	inPrefix := matchAt("https://h/PublicacionesEstadisticas/serie.xlsx", 1)
	outPrefix := matchAt("https://h/tmp/serie.xlsm", 0)

	winner, ok := SelectWinner([]MatchResult{outPrefix, inPrefix}, Select{
		PreferKnownPrefix: "/PublicacionesEstadisticas/",
		PreferExt:         []string{".xlsm", ".xlsx"},
	})
	require.True(t, ok)
	require.Equal(t, inPrefix.Candidate.URL, winner.Candidate.URL)
}

func TestSelectWinner_Deterministic(t *testing.T) {
	t.Parallel()

	matches := []MatchResult{
		datedMatch("https://h/a-2025-05-01.xls", 0, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)),
		datedMatch("https://h/b-2025-05-01.xls", 1, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)),
		datedMatch("https://h/c-2025-05-01.xls", 2, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)),
	}
	policy := Select{PreferNewestBy: NewestByDate}
	first, ok := SelectWinner(matches, policy)
	require.True(t, ok)
	for i := 0; i < 20; i++ {
		again, ok := SelectWinner(matches, policy)
		require.True(t, ok)
		require.Equal(t, first.Candidate.URL, again.Candidate.URL)
	}
	require.Equal(t, "https://h/a-2025-05-01.xls", first.Candidate.URL)
}
