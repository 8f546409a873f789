// Package extractor parses HTML documents into absolute links.
package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/econradar/autodiscovery/internal/discovery"
)

// GoqueryExtractor implements discovery.LinkExtractor with goquery.
type GoqueryExtractor struct{}

// New returns a GoqueryExtractor.
func New() *GoqueryExtractor {
	return &GoqueryExtractor{}
}

// ExtractLinks returns the page's anchors as absolute (url, text) pairs,
// resolved against the page's final URL. Anchors without an href, with
// non-navigational schemes, or with unresolvable targets are skipped.
func (e *GoqueryExtractor) ExtractLinks(page discovery.Page) ([]discovery.Link, error) {
	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var links []discovery.Link
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		links = append(links, discovery.Link{
			URL:  abs.String(),
			Text: strings.TrimSpace(sel.Text()),
		})
	})
	return links, nil
}
