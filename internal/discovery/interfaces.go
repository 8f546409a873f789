package discovery

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Page is a fetched HTML document.
type Page struct {
	// URL is the final URL after redirects; links resolve against it.
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// PageFetcher retrieves HTML pages for the crawler.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (Page, error)
}

// ProbeResult carries the headers of a metadata probe.
type ProbeResult struct {
	StatusCode int
	Headers    http.Header
}

// ProbeClient issues metadata probes and streamed downloads. Head errors on
// transport failure; non-2xx statuses are returned, not errors, so the
// validator can distinguish rejection from breakage.
type ProbeClient interface {
	Head(ctx context.Context, url string) (ProbeResult, error)
	// GetStream returns the response and an open body the caller must close.
	GetStream(ctx context.Context, url string) (ProbeResult, io.ReadCloser, error)
}

// LinkExtractor parses an HTML document into absolute (url, text) pairs.
type LinkExtractor interface {
	ExtractLinks(page Page) ([]Link, error)
}

// Link is one extracted anchor.
type Link struct {
	URL  string
	Text string
}

// RegistryStore owns the persisted key→entry mapping. Upserts for a given
// key are linearized; cross-key upserts must both survive.
type RegistryStore interface {
	Upsert(ctx context.Context, key string, entry RegistryEntry) error
	Get(ctx context.Context, key string) (RegistryEntry, bool, error)
	List(ctx context.Context) (map[string]RegistryEntry, error)
}

// BlobStore uploads mirror copies to an object store.
type BlobStore interface {
	PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
}

// Publisher emits per-key outcome events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time, injectable for deterministic version tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
