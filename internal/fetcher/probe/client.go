// Package probefetcher implements metadata probes and streamed downloads on
// net/http. The crawler fetches pages through colly; this client exists for
// the two paths that must not buffer whole bodies: HEAD/GET validation
// probes and mirror streams.
package probefetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/econradar/autodiscovery/internal/discovery"
)

// Config controls timeouts, retries and transport identity.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	UserAgent      string
	SkipTLSVerify  bool
}

// Client implements discovery.ProbeClient.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client. A zero Timeout defaults to 15s, zero backoff knobs to
// 250ms initial / 2s cap, matching the service defaults.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BackoffInitial == 0 {
		cfg.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if cfg.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // contract-level toggle
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger: logger,
	}
}

// Head issues a HEAD request. Non-2xx statuses are returned as results, not
// errors; transport failures are errors after the retry budget is spent.
func (c *Client) Head(ctx context.Context, url string) (discovery.ProbeResult, error) {
	resp, err := c.do(ctx, http.MethodHead, url)
	if err != nil {
		return discovery.ProbeResult{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // HEAD bodies are empty
	return discovery.ProbeResult{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
	}, nil
}

// GetStream issues a GET and hands the open body to the caller, who must
// close it. The retry budget covers establishing the response only; a stream
// that dies mid-body is the caller's failure to handle.
func (c *Client) GetStream(ctx context.Context, url string) (discovery.ProbeResult, io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return discovery.ProbeResult{}, nil, err
	}
	return discovery.ProbeResult{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
	}, resp.Body, nil
}

// do runs one request with bounded retries: transient transport errors and
// 5xx responses retry with exponential backoff, anything else is terminal.
func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	attempts := c.cfg.MaxRetries + 1
	backoff := c.cfg.BackoffInitial

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", method, err)
		}
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}

		resp, err := c.http.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
			if attempt == attempts {
				// Out of budget: surface the 5xx as a result so the
				// validator can classify it.
				return resp, nil
			}
			drainAndClose(resp.Body)
		default:
			return resp, nil
		}

		if attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", method, url, ctx.Err())
		}
		c.logger.Debug("retrying request",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s %s: %w", method, url, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.BackoffMax {
			backoff = c.cfg.BackoffMax
		}
	}
	return nil, fmt.Errorf("%s %s: %w", method, url, lastErr)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
