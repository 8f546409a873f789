// Package contracts loads the declarative source contracts from YAML.
package contracts

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/econradar/autodiscovery/internal/discovery"
)

// ErrNotFound is returned when no contract exists for a key.
var ErrNotFound = errors.New("contract not found")

// file is the YAML document shape: a list of contracts under one top key.
type file struct {
	Sources []discovery.Contract `yaml:"sources"`
}

// Store holds the loaded, validated contracts, keyed by source key.
type Store struct {
	byKey map[string]discovery.Contract
	order []string
}

// Load reads and validates a contracts file.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contracts: %w", err)
	}
	return Parse(data)
}

// Parse validates raw YAML contract data.
func Parse(data []byte) (*Store, error) {
	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse contracts: %w", err)
	}
	if len(doc.Sources) == 0 {
		return nil, errors.New("contracts file declares no sources")
	}

	store := &Store{byKey: make(map[string]discovery.Contract, len(doc.Sources))}
	for i, contract := range doc.Sources {
		if err := validate(contract); err != nil {
			return nil, fmt.Errorf("contract %d (%q): %w", i, contract.Key, err)
		}
		if _, dup := store.byKey[contract.Key]; dup {
			return nil, fmt.Errorf("duplicate contract key %q", contract.Key)
		}
		store.byKey[contract.Key] = contract
		store.order = append(store.order, contract.Key)
	}
	return store, nil
}

// Get returns the contract for key.
func (s *Store) Get(key string) (discovery.Contract, error) {
	contract, ok := s.byKey[key]
	if !ok {
		return discovery.Contract{}, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return contract, nil
}

// All returns every contract in file order.
func (s *Store) All() []discovery.Contract {
	out := make([]discovery.Contract, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byKey[key])
	}
	return out
}

// Keys returns the contract keys sorted alphabetically.
func (s *Store) Keys() []string {
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	sort.Strings(keys)
	return keys
}

func validate(c discovery.Contract) error {
	if strings.TrimSpace(c.Key) == "" {
		return errors.New("key is required")
	}
	if len(c.StartURLs) == 0 {
		return errors.New("at least one start URL is required")
	}
	for _, u := range c.StartURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("start URL %q is not http(s)", u)
		}
	}
	switch c.SourceType {
	case discovery.SourceCrawl:
		if len(c.Scope.AllowDomains) == 0 {
			return errors.New("crawled sources need scope.allow_domains")
		}
		if err := validateMatch(c.Match); err != nil {
			return err
		}
	case discovery.SourceAPI:
		// API sources skip crawl and match; the first start URL is probed
		// directly.
	default:
		return fmt.Errorf("unknown source_type %q", c.SourceType)
	}
	if c.Expect.MinSizeKB < 0 {
		return errors.New("expect.min_size_kb must not be negative")
	}
	return nil
}

func validateMatch(m discovery.Match) error {
	switch m.Kind {
	case discovery.MatchFixedFilename:
		if m.Filename == "" {
			return errors.New("fixed_filename match needs filename")
		}
	case discovery.MatchDatePattern, discovery.MatchMonthPattern:
		if m.Pattern == "" {
			return fmt.Errorf("%s match needs pattern", m.Kind)
		}
	case discovery.MatchRegexAny:
		if len(m.Patterns) == 0 {
			return errors.New("regex_any match needs patterns")
		}
	case discovery.MatchFuzzyTextExt:
		if len(m.Keywords) == 0 || len(m.Extensions) == 0 {
			return errors.New("fuzzy_text_ext match needs keywords and extensions")
		}
	default:
		return fmt.Errorf("unknown match kind %q", m.Kind)
	}
	return nil
}
