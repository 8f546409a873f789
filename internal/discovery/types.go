// Package discovery defines the contract-driven discovery domain: the
// declarative Contract, the artifacts each pipeline stage produces, and the
// ports the stages depend on.
package discovery

import (
	"time"
)

// MatchKind discriminates the contract's match rule.
type MatchKind string

// Match rule kinds accepted in contracts.
const (
	MatchFixedFilename MatchKind = "fixed_filename"
	MatchDatePattern   MatchKind = "date_pattern"
	MatchMonthPattern  MatchKind = "month_pattern"
	MatchFuzzyTextExt  MatchKind = "fuzzy_text_ext"
	MatchRegexAny      MatchKind = "regex_any"
)

// SourceType distinguishes crawled sources from direct API endpoints.
type SourceType string

// Source types. An API source skips crawl and match entirely; its first
// start URL is the winning URL.
const (
	SourceCrawl SourceType = ""
	SourceAPI   SourceType = "api"
)

// Scope bounds the crawl for one contract.
type Scope struct {
	AllowDomains  []string `yaml:"allow_domains"`
	AllowPathsAny []string `yaml:"allow_paths_any"`
	MaxDepth      int      `yaml:"max_depth"`
	MaxCandidates int      `yaml:"max_candidates"`
}

// Find is an optional cheap prefilter applied to every extracted link before
// it becomes a candidate.
type Find struct {
	LinkTextAny  []string `yaml:"link_text_any"`
	URLTokensAny []string `yaml:"url_tokens_any"`
}

// Match describes how candidate links are classified. Kind selects the rule;
// the remaining fields are interpreted per kind.
type Match struct {
	Kind       MatchKind `yaml:"kind"`
	Filename   string    `yaml:"filename"`
	Pattern    string    `yaml:"pattern"`
	Patterns   []string  `yaml:"patterns"`
	Locale     string    `yaml:"locale"`
	Keywords   []string  `yaml:"keywords"`
	Extensions []string  `yaml:"extensions"`
}

// Select orders matched candidates and picks the winner.
type Select struct {
	PreferKnownPrefix string   `yaml:"prefer_known_prefix"`
	PreferExt         []string `yaml:"prefer_ext"`
	PreferNewestBy    string   `yaml:"prefer_newest_by"`
}

// Expect holds the metadata expectations checked during validation.
type Expect struct {
	MimeAny   []string `yaml:"mime_any"`
	MinSizeKB float64  `yaml:"min_size_kb"`
}

// Contract declares how one source is discovered, validated, versioned and
// mirrored. Contracts are immutable once loaded.
type Contract struct {
	Key        string     `yaml:"key"`
	SourceType SourceType `yaml:"source_type"`
	StartURLs  []string   `yaml:"start_urls"`
	Scope      Scope      `yaml:"scope"`
	Find       Find       `yaml:"find"`
	Match      Match      `yaml:"match"`
	Select     Select     `yaml:"select"`
	Expect     Expect     `yaml:"expect"`
	Versioning string     `yaml:"versioning"`
	Mirror     bool       `yaml:"mirror"`
	Notes      string     `yaml:"notes"`
}

// Candidate is a link discovered during crawling, not yet classified.
type Candidate struct {
	URL   string
	Text  string
	Depth int
	// Order is the crawl discovery index, used for deterministic tie-breaks.
	Order int
}

// MatchResult is a candidate that passed the contract's match rule, plus the
// structured fields the rule extracted.
type MatchResult struct {
	Candidate Candidate
	Filename  string
	// Date is set by date-bearing rules (zero otherwise).
	Date time.Time
	// Year/Month are set by month rules (zero otherwise).
	Year  int
	Month time.Month
}

// HasDate reports whether the rule extracted a full date.
func (m MatchResult) HasDate() bool { return !m.Date.IsZero() }

// HasYearMonth reports whether the rule extracted a year-month pair.
func (m MatchResult) HasYearMonth() bool { return m.Year != 0 && m.Month != 0 }

// Status classifies a validated file.
type Status string

// Validation statuses persisted in the registry.
const (
	StatusOK      Status = "ok"
	StatusSuspect Status = "suspect"
	StatusBroken  Status = "broken"
)

// ValidatedFile is the result of the metadata probe against the winning URL.
type ValidatedFile struct {
	URL          string
	Mime         string
	SizeBytes    int64
	LastModified *time.Time
	Status       Status
	Notes        string
}

// SizeKB returns the probed size in kilobytes, rounded to two decimals.
func (v ValidatedFile) SizeKB() float64 {
	return roundKB(v.SizeBytes)
}

func roundKB(bytes int64) float64 {
	kb := float64(bytes) / 1024.0
	return float64(int64(kb*100+0.5)) / 100
}

// MirrorResult describes a durably written mirror copy. It is only
// constructed after the filesystem write is complete.
type MirrorResult struct {
	StoredPath string
	ObjectKey  string
	SHA256     string
	Bytes      int64
}

// RegistryEntry is the persisted record for one source key. Entries are
// replaced wholesale on every successful run, never merged.
type RegistryEntry struct {
	URL         string    `json:"url"`
	Version     string    `json:"version,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	Mime        string    `json:"mime,omitempty"`
	SizeKB      float64   `json:"size_kb"`
	SHA256      string    `json:"sha256,omitempty"`
	LastChecked time.Time `json:"last_checked"`
	Status      Status    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	StoredPath  string    `json:"stored_path,omitempty"`
	ObjectKey   string    `json:"object_key,omitempty"`
}

// FailureKind classifies per-key run failures.
type FailureKind string

// Failure kinds carried on Outcome. Empty means success.
const (
	FailureNone          FailureKind = ""
	FailureNoCandidates  FailureKind = "no_candidates"
	FailureValidation    FailureKind = "validation_failed"
	FailureMirror        FailureKind = "mirror_failed"
	FailureRegistryWrite FailureKind = "registry_write_failed"
	FailureCanceled      FailureKind = "canceled"
)

// Outcome is the per-key run result surfaced to callers. A batch sync emits
// one Outcome per contract key regardless of individual failures.
type Outcome struct {
	RunID    string      `json:"run_id"`
	Key      string      `json:"key"`
	URL      string      `json:"url,omitempty"`
	Version  string      `json:"version,omitempty"`
	Mime     string      `json:"mime,omitempty"`
	SizeKB   float64     `json:"size_kb,omitempty"`
	SHA256   string      `json:"sha256,omitempty"`
	Status   Status      `json:"status,omitempty"`
	Notes    string      `json:"notes,omitempty"`
	Stored   string      `json:"stored_path,omitempty"`
	Object   string      `json:"object_key,omitempty"`
	Failure  FailureKind `json:"failure,omitempty"`
	Error    string      `json:"error,omitempty"`
	Finished time.Time   `json:"finished_at"`
}

// Failed reports whether the run ended in a terminal failure for the key.
func (o Outcome) Failed() bool { return o.Failure != FailureNone }
