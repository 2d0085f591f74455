// Package translation wraps the Zotero translation server HTTP API: the web
// endpoint that turns a page URL into bibliographic JSON, the export endpoint
// that converts item arrays into interchange formats, and the import endpoint
// that parses foreign bibliographic text back into items.
package translation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openbiblio/zotero-harvester/internal/metrics"
	"github.com/openbiblio/zotero-harvester/internal/report"
)

// ErrUnsupportedPage marks a 501 from the web endpoint: no translator exists
// for the page. Callers skip the URL instead of reporting a failure.
var ErrUnsupportedPage = fmt.Errorf("no translator supports this page")

// exportFormats is the closed set the translation server accepts on
// /export?format=. Binary and XML catalog records are produced locally and
// never pass through here.
var exportFormats = map[string]bool{
	"bibtex":            true,
	"biblatex":          true,
	"bookmarks":         true,
	"coins":             true,
	"csljson":           true,
	"mods":              true,
	"refer":             true,
	"rdf_bibliontology": true,
	"rdf_dc":            true,
	"rdf_zotero":        true,
	"ris":               true,
	"tei":               true,
	"wikipedia":         true,
}

// SupportedExportFormat reports whether the translation server can convert
// items into the named format.
func SupportedExportFormat(format string) bool {
	return exportFormats[strings.ToLower(format)]
}

// ExportFormats returns the accepted format names, sorted.
func ExportFormats() []string {
	out := make([]string, 0, len(exportFormats))
	for f := range exportFormats {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Config controls client behavior.
type Config struct {
	// BaseURL is the translation server root, e.g. http://localhost:1969.
	BaseURL string
	// Timeout bounds each web and import request.
	Timeout time.Duration
	// ConversionTimeout bounds each export request; server-side conversion
	// of large batches runs much longer than a single page fetch.
	ConversionTimeout time.Duration
	// MinProcessingTime is the enforced delay between consecutive requests
	// to the shared service. Zero disables the gate.
	MinProcessingTime time.Duration
	UserAgent         string
}

// Result carries the status code and raw body of a web request. A 300 status
// means the body enumerates candidate items instead of a final item array.
type Result struct {
	StatusCode int
	Body       []byte
}

// MultipleCandidates reports whether the body must be resolved before it
// yields items.
func (r *Result) MultipleCandidates() bool {
	return r.StatusCode == http.StatusMultipleChoices
}

// Client is a thin, stateless wrapper around the translation server. The only
// local state is the inter-request gate shared by all endpoints.
type Client struct {
	cfg    Config
	host   string
	httpc  *http.Client
	gate   *rate.Limiter
	logger *zap.Logger
}

// New validates the configuration and builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse translation server url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("translation server url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ConversionTimeout <= 0 {
		cfg.ConversionTimeout = 60 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		host:   parsed.Host,
		httpc:  &http.Client{Transport: newTransport()},
		logger: logger,
	}
	if cfg.MinProcessingTime > 0 {
		c.gate = rate.NewLimiter(rate.Every(cfg.MinProcessingTime), 1)
	}
	return c, nil
}

// Web submits a page URL to the web endpoint and returns the status and body.
// Statuses 200 and 300 are returned to the caller; 501 maps to
// ErrUnsupportedPage, everything else to a conversion failure.
func (c *Client) Web(ctx context.Context, pageURL string) (*Result, error) {
	return c.web(ctx, []byte(pageURL), "text/plain")
}

// WebJSON resubmits a multi-candidate payload to the web endpoint to resolve
// it into a final item array.
func (c *Client) WebJSON(ctx context.Context, payload []byte) (*Result, error) {
	return c.web(ctx, payload, "application/json")
}

func (c *Client) web(ctx context.Context, body []byte, contentType string) (*Result, error) {
	status, respBody, err := c.post(ctx, "/web", nil, body, contentType, c.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK, http.StatusMultipleChoices:
		if len(bytes.TrimSpace(respBody)) == 0 {
			return nil, report.NewError(report.KindEmptyResponse, "translation server returned an empty body for status %d", status)
		}
		return &Result{StatusCode: status, Body: respBody}, nil
	case http.StatusNotImplemented:
		return nil, fmt.Errorf("%w (status 501)", ErrUnsupportedPage)
	default:
		return nil, report.NewError(report.KindConversionFailed,
			"translation server returned status %d: %s", status, truncate(respBody, 200))
	}
}

// Export converts an item array into the requested interchange format.
func (c *Client) Export(ctx context.Context, format string, items []byte) ([]byte, error) {
	if !SupportedExportFormat(format) {
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	query := url.Values{"format": []string{strings.ToLower(format)}}
	status, body, err := c.post(ctx, "/export", query, items, "application/json", c.cfg.ConversionTimeout)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, report.NewError(report.KindConversionFailed,
			"export to %s returned status %d: %s", format, status, truncate(body, 200))
	}
	return body, nil
}

// Import parses foreign bibliographic text (RIS, BibTeX, ...) into an item
// array.
func (c *Client) Import(ctx context.Context, data []byte) ([]byte, error) {
	status, body, err := c.post(ctx, "/import", nil, data, "text/plain", c.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, report.NewError(report.KindConversionFailed,
			"import returned status %d: %s", status, truncate(body, 200))
	}
	return body, nil
}

// post runs one request through the inter-request gate and records metrics.
func (c *Client) post(ctx context.Context, endpoint string, query url.Values, body []byte, contentType string, timeout time.Duration) (int, []byte, error) {
	if c.gate != nil {
		waitStart := time.Now()
		if err := c.gate.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("wait for request slot: %w", err)
		}
		if waited := time.Since(waitStart); waited > time.Millisecond {
			metrics.ObserveRateLimitDelay(c.host, waited)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := strings.TrimRight(c.cfg.BaseURL, "/") + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.ObserveTranslation(endpoint, 0, time.Since(start))
		return 0, nil, fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	metrics.ObserveTranslation(endpoint, resp.StatusCode, duration)
	if err != nil {
		return 0, nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	c.logger.Debug("translation request",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
		zap.Int("bytes", len(respBody)))
	return resp.StatusCode, respBody, nil
}

func truncate(b []byte, limit int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

func newTransport() *http.Transport {
	return &http.Transport{
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
}
