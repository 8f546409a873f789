// Package crawler performs the bounded breadth-first traversal that turns a
// contract's start URLs into an ordered candidate list.
package crawler

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/econradar/autodiscovery/internal/discovery"
	"github.com/econradar/autodiscovery/internal/metrics"
)

// Crawler discovers candidate links for one contract at a time.
type Crawler struct {
	fetcher   discovery.PageFetcher
	extractor discovery.LinkExtractor
	logger    *zap.Logger
}

// New constructs a Crawler.
func New(fetcher discovery.PageFetcher, extractor discovery.LinkExtractor, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Crawler{
		fetcher:   fetcher,
		extractor: extractor,
		logger:    logger,
	}
}

type frontierItem struct {
	url   string
	depth int
}

// Crawl walks breadth-first from the contract's start URLs and returns
// candidates in discovery order. Fetch failures skip the page and continue;
// the crawl itself only fails on context cancellation. A URL is fetched at
// most once and emitted at most once, so cyclic page graphs terminate.
// Contracts omitting scope bounds get depth 2 and 10 candidates.
func (c *Crawler) Crawl(ctx context.Context, contract discovery.Contract) ([]discovery.Candidate, error) {
	scope := contract.Scope
	if scope.MaxDepth <= 0 {
		scope.MaxDepth = 2
	}
	if scope.MaxCandidates <= 0 {
		scope.MaxCandidates = 10
	}
	guard := discovery.NewScopeGuard(scope)
	maxCandidates := scope.MaxCandidates

	var (
		candidates []discovery.Candidate
		frontier   []frontierItem
	)
	visited := make(map[string]bool)
	emitted := make(map[string]bool)

	for _, u := range contract.StartURLs {
		frontier = append(frontier, frontierItem{url: u, depth: 0})
	}

	for len(frontier) > 0 && len(candidates) < maxCandidates {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}
		item := frontier[0]
		frontier = frontier[1:]

		if visited[item.url] || !guard.Allowed(item.url, item.depth) {
			continue
		}
		visited[item.url] = true

		page, err := c.fetcher.FetchPage(ctx, item.url)
		if err != nil {
			if ctx.Err() != nil {
				return candidates, ctx.Err()
			}
			c.logger.Warn("page fetch failed, skipping",
				zap.String("key", contract.Key),
				zap.String("url", item.url),
				zap.Int("depth", item.depth),
				zap.Error(err),
			)
			continue
		}
		metrics.ObservePage(item.url)

		links, err := c.extractor.ExtractLinks(page)
		if err != nil {
			c.logger.Warn("link extraction failed, skipping",
				zap.String("key", contract.Key),
				zap.String("url", item.url),
				zap.Error(err),
			)
			continue
		}
		c.logger.Debug("page crawled",
			zap.String("key", contract.Key),
			zap.String("url", item.url),
			zap.Int("depth", item.depth),
			zap.Int("links", len(links)),
		)

		for _, link := range links {
			if !guard.Allowed(link.URL, item.depth+1) {
				continue
			}
			if !passesFind(link, contract.Find) {
				continue
			}
			if !emitted[link.URL] {
				emitted[link.URL] = true
				candidates = append(candidates, discovery.Candidate{
					URL:   link.URL,
					Text:  link.Text,
					Depth: item.depth + 1,
					Order: len(candidates),
				})
				if len(candidates) >= maxCandidates {
					break
				}
			}
			if item.depth < scope.MaxDepth && !visited[link.URL] && looksLikeHTML(link.URL) {
				frontier = append(frontier, frontierItem{url: link.URL, depth: item.depth + 1})
			}
		}
	}
	return candidates, nil
}

var fileExtensions = []string{
	".pdf", ".xls", ".xlsx", ".xlsm", ".xlsb", ".csv", ".zip",
	".doc", ".docx", ".ppt", ".pptx", ".txt", ".json", ".xml",
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".ico", ".css", ".js",
}

// looksLikeHTML guesses from URL structure alone whether a link is a page
// worth expanding. File-extension links stay candidates but never enter the
// frontier, so the crawler does not GET spreadsheets as if they were HTML.
func looksLikeHTML(rawURL string) bool {
	return !discovery.HasAnyExtension(rawURL, fileExtensions)
}

// passesFind applies the contract's cheap prefilter: a link passes when any
// configured token appears in its anchor text or its URL. A link is dropped
// only when every configured list misses. Empty lists pass everything.
func passesFind(link discovery.Link, find discovery.Find) bool {
	if len(find.LinkTextAny) == 0 && len(find.URLTokensAny) == 0 {
		return true
	}
	text := strings.ToLower(link.Text)
	for _, token := range find.LinkTextAny {
		if token != "" && strings.Contains(text, strings.ToLower(token)) {
			return true
		}
	}
	u := strings.ToLower(link.URL)
	for _, token := range find.URLTokensAny {
		if token != "" && strings.Contains(u, strings.ToLower(token)) {
			return true
		}
	}
	return false
}
