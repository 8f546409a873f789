package discovery

import (
	"fmt"
	"net/http"
	"time"
)

// Versioning strategy names accepted in contracts.
const (
	VersionDateToday     = "date_today"
	VersionDateFromFile  = "date_from_filename"
	VersionYearMonth     = "year_month_from_filename"
	VersionLastModified  = "last_modified"
	VersionBestEffort    = "best_effort_date_or_last_modified"
	VersionNone          = "none"
	versionDateLayout    = "2006-01-02"
	lastModifiedFallback = time.RFC1123
)

// ResolveVersion derives the version label for a winning candidate. It never
// fails: every strategy except "none" terminates in a date_today fallback so
// mirroring and registration always have a version to use.
func ResolveVersion(strategy string, match MatchResult, file ValidatedFile, now time.Time) string {
	switch strategy {
	case VersionNone:
		return ""
	case VersionDateToday:
		return dateVersion(now)
	case VersionDateFromFile:
		if match.HasDate() {
			return dateVersion(match.Date)
		}
	case VersionYearMonth:
		if match.HasYearMonth() {
			return fmt.Sprintf("%04d-%02d", match.Year, int(match.Month))
		}
	case VersionLastModified:
		if file.LastModified != nil {
			return dateVersion(*file.LastModified)
		}
	case VersionBestEffort:
		if match.HasYearMonth() {
			return fmt.Sprintf("%04d-%02d", match.Year, int(match.Month))
		}
		if match.HasDate() {
			return dateVersion(match.Date)
		}
		if file.LastModified != nil {
			return dateVersion(*file.LastModified)
		}
	}
	return dateVersion(now)
}

func dateVersion(t time.Time) string {
	return "v" + t.UTC().Format(versionDateLayout)
}

// ParseLastModified parses an HTTP Last-Modified header value. Servers in
// the wild occasionally emit RFC 1123 without the GMT zone name, so both
// forms are tried.
func ParseLastModified(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if t, err := http.ParseTime(value); err == nil {
		return t, true
	}
	if t, err := time.Parse(lastModifiedFallback, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}
