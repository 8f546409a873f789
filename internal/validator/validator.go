// Package validator probes a winning URL's metadata and classifies it
// against the contract's expectations.
package validator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/econradar/autodiscovery/internal/discovery"
	"github.com/econradar/autodiscovery/internal/metrics"
)

// Note recorded when the HEAD probe failed but the streamed GET fallback
// produced usable headers.
const noteHeadFailedGetOK = "head_failed_get_ok"

// Validator checks a URL's metadata without downloading its body.
type Validator struct {
	probe  discovery.ProbeClient
	logger *zap.Logger
}

// New constructs a Validator.
func New(probe discovery.ProbeClient, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Validator{probe: probe, logger: logger}
}

// Validate issues a HEAD probe, falling back to a streamed GET whose body is
// aborted unread when HEAD errors or is rejected. The returned file is
// always populated; Status encodes the verdict:
//
//	broken  — both probes failed, or the response status was non-2xx
//	suspect — metadata obtained but MIME or size missed expectations, or
//	          only the GET fallback worked
//	ok      — everything matched
func (v *Validator) Validate(ctx context.Context, url string, expect discovery.Expect) discovery.ValidatedFile {
	file := discovery.ValidatedFile{URL: url}

	res, usedFallback, err := v.probeMetadata(ctx, url)
	if err != nil {
		file.Status = discovery.StatusBroken
		file.Notes = fmt.Sprintf("probe failed: %v", err)
		return file
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		file.Status = discovery.StatusBroken
		file.Notes = fmt.Sprintf("status %d", res.StatusCode)
		return file
	}

	file.Mime = stripMimeParams(res.Headers.Get("Content-Type"))
	if cl := res.Headers.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n >= 0 {
			file.SizeBytes = n
		}
	}
	if lm, ok := discovery.ParseLastModified(res.Headers.Get("Last-Modified")); ok {
		file.LastModified = &lm
	}

	var problems []string
	if usedFallback {
		problems = append(problems, noteHeadFailedGetOK)
	}
	if len(expect.MimeAny) > 0 && !mimeAccepted(file.Mime, expect.MimeAny) {
		problems = append(problems, fmt.Sprintf("mime %q not in expected set", file.Mime))
	}
	if file.SizeBytes == 0 {
		problems = append(problems, "content length missing")
	} else if expect.MinSizeKB > 0 && file.SizeKB() < expect.MinSizeKB {
		problems = append(problems, fmt.Sprintf("size %.2f KB below minimum %.2f KB", file.SizeKB(), expect.MinSizeKB))
	}

	if len(problems) > 0 {
		file.Status = discovery.StatusSuspect
		file.Notes = strings.Join(problems, "; ")
	} else {
		file.Status = discovery.StatusOK
	}
	return file
}

// probeMetadata tries HEAD first. Servers that refuse HEAD (405, 501, or a
// transport error) get a streamed GET whose body is closed without reading.
func (v *Validator) probeMetadata(ctx context.Context, url string) (discovery.ProbeResult, bool, error) {
	res, err := v.probe.Head(ctx, url)
	if err == nil && !headRejected(res.StatusCode) {
		metrics.ObserveProbe("head", "ok")
		return res, false, nil
	}
	metrics.ObserveProbe("head", "failed")
	if err != nil {
		v.logger.Debug("head probe failed, falling back to get",
			zap.String("url", url), zap.Error(err))
	} else {
		v.logger.Debug("head probe rejected, falling back to get",
			zap.String("url", url), zap.Int("status", res.StatusCode))
	}

	getRes, body, getErr := v.probe.GetStream(ctx, url)
	if getErr != nil {
		metrics.ObserveProbe("get", "failed")
		if err != nil {
			return discovery.ProbeResult{}, true, fmt.Errorf("head: %v; get: %w", err, getErr)
		}
		return discovery.ProbeResult{}, true, fmt.Errorf("get fallback: %w", getErr)
	}
	// Headers are all we need; abort the transfer.
	_ = body.Close()
	metrics.ObserveProbe("get", "ok")
	return getRes, true, nil
}

func headRejected(status int) bool {
	return status == 405 || status == 501
}

// stripMimeParams drops parameters after ';' (charset and friends).
func stripMimeParams(contentType string) string {
	mime, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(mime)
}

func mimeAccepted(mime string, accepted []string) bool {
	for _, a := range accepted {
		if strings.EqualFold(mime, strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}
