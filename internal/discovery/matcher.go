package discovery

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// monthTables maps locale → lowercase month name (full or abbreviated) → month.
// Unrecognized locales or names mean "no match", never an error. Data, not
// code: extending a locale is a table edit.
var monthTables = map[string]map[string]time.Month{
	"es": {
		"enero": time.January, "febrero": time.February, "marzo": time.March,
		"abril": time.April, "mayo": time.May, "junio": time.June,
		"julio": time.July, "agosto": time.August, "septiembre": time.September,
		"octubre": time.October, "noviembre": time.November, "diciembre": time.December,
		"ene": time.January, "feb": time.February, "mar": time.March,
		"abr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "ago": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dic": time.December,
	},
}

// LookupMonth normalizes a month name for the given locale. The empty locale
// defaults to "es", matching the sources this engine was built for.
func LookupMonth(locale, name string) (time.Month, bool) {
	if locale == "" {
		locale = "es"
	}
	table, ok := monthTables[locale]
	if !ok {
		return 0, false
	}
	m, ok := table[strings.ToLower(strings.TrimSpace(name))]
	return m, ok
}

var (
	dashedDateRe  = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	compactDateRe = regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`)
	yearRe        = regexp.MustCompile(`(\d{4})`)
)

// MatchCandidate classifies one candidate against the contract's match rule.
// It returns false when the candidate does not match; that is a filter
// decision, not an error.
func MatchCandidate(c Candidate, rule Match) (MatchResult, bool) {
	filename := FilenameFromURL(c.URL)
	switch rule.Kind {
	case MatchFixedFilename:
		if filename == "" || !strings.EqualFold(filename, rule.Filename) {
			return MatchResult{}, false
		}
		return MatchResult{Candidate: c, Filename: filename}, true
	case MatchDatePattern:
		return matchDatePattern(c, filename, rule.Pattern)
	case MatchMonthPattern:
		return matchMonthPattern(c, filename, rule)
	case MatchRegexAny:
		return matchRegexAny(c, filename, rule.Patterns)
	case MatchFuzzyTextExt:
		return matchFuzzyTextExt(c, filename, rule)
	default:
		return MatchResult{}, false
	}
}

func matchDatePattern(c Candidate, filename, pattern string) (MatchResult, bool) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return MatchResult{}, false
	}
	groups := re.FindStringSubmatch(filename)
	if groups == nil {
		return MatchResult{}, false
	}
	date, ok := dateFromGroups(groups[1:], filename)
	if !ok {
		return MatchResult{}, false
	}
	return MatchResult{Candidate: c, Filename: filename, Date: date}, true
}

func matchMonthPattern(c Candidate, filename string, rule Match) (MatchResult, bool) {
	re, err := regexp.Compile("(?i)" + rule.Pattern)
	if err != nil {
		return MatchResult{}, false
	}
	groups := re.FindStringSubmatch(filename)
	if groups == nil {
		return MatchResult{}, false
	}
	var (
		month time.Month
		year  int
	)
	for _, g := range groups[1:] {
		if m, ok := LookupMonth(rule.Locale, g); ok && month == 0 {
			month = m
			continue
		}
		if y, err := strconv.Atoi(g); err == nil && len(g) == 4 && year == 0 {
			year = y
		}
	}
	if year == 0 {
		if y := yearRe.FindString(filename); y != "" {
			year, _ = strconv.Atoi(y)
		}
	}
	if month == 0 || year == 0 {
		return MatchResult{}, false
	}
	return MatchResult{Candidate: c, Filename: filename, Year: year, Month: month}, true
}

func matchRegexAny(c Candidate, filename string, patterns []string) (MatchResult, bool) {
	for _, pattern := range patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			continue
		}
		groups := re.FindStringSubmatch(filename)
		if groups == nil {
			continue
		}
		result := MatchResult{Candidate: c, Filename: filename}
		if date, ok := dateFromGroups(groups[1:], filename); ok {
			result.Date = date
		}
		return result, true
	}
	return MatchResult{}, false
}

func matchFuzzyTextExt(c Candidate, filename string, rule Match) (MatchResult, bool) {
	text := strings.ToLower(c.Text)
	keywordHit := false
	for _, kw := range rule.Keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			keywordHit = true
			break
		}
	}
	if !keywordHit {
		return MatchResult{}, false
	}
	if !HasAnyExtension(c.URL, rule.Extensions) {
		return MatchResult{}, false
	}
	return MatchResult{Candidate: c, Filename: filename}, true
}

// dateFromGroups recovers a calendar date from regex captures, scanning the
// filename as a fallback. Invalid calendar dates are rejected.
func dateFromGroups(groups []string, filename string) (time.Time, bool) {
	if len(groups) >= 3 {
		if d, ok := buildDate(groups[0], groups[1], groups[2]); ok {
			return d, true
		}
	}
	for _, text := range append(groups, filename) {
		if m := dashedDateRe.FindStringSubmatch(text); m != nil {
			if d, ok := buildDate(m[1], m[2], m[3]); ok {
				return d, true
			}
		}
		if m := compactDateRe.FindStringSubmatch(text); m != nil {
			if d, ok := buildDate(m[1], m[2], m[3]); ok {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

func buildDate(year, month, day string) (time.Time, bool) {
	y, errY := strconv.Atoi(year)
	m, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	date := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 → Mar 2); reject those.
	if date.Day() != d || date.Month() != time.Month(m) {
		return time.Time{}, false
	}
	return date, true
}

// FilenameFromURL returns the unescaped final path segment of the URL,
// ignoring query and fragment.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		return unescaped
	}
	return base
}

// HasAnyExtension reports whether the URL path ends with one of the given
// extensions, case-insensitively. Extensions may be given with or without a
// leading dot.
func HasAnyExtension(rawURL string, extensions []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	lower := strings.ToLower(u.Path)
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
