// Package authority resolves creator names to GND authority ids. The primary
// backend is the SWB union catalog's author search; lobid's GND API serves as
// the fallback. Lookups are best effort: every failure mode yields an empty
// id, never an error, so a flaky authority backend cannot fail a harvest.
package authority

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openbiblio/zotero-harvester/internal/config"
	"github.com/openbiblio/zotero-harvester/internal/metrics"
)

const defaultLobidBaseURL = "https://lobid.org/gnd/search"

// gndLinkRegex extracts GND ids from d-nb.info links on the SWB result page.
var gndLinkRegex = regexp.MustCompile(`d-nb\.info/gnd/([0-9X-]+)`)

// Config holds the tunable parts of the lookup client.
type Config struct {
	// LobidBaseURL overrides the lobid search endpoint, for tests.
	LobidBaseURL string
	// Timeout bounds each lookup request. Defaults to 5s.
	Timeout time.Duration
	// MaxAttempts bounds retries per backend request. Defaults to 2.
	MaxAttempts int
	// UserAgent is sent when the group configures none.
	UserAgent string
}

// Client looks up authors against SWB and lobid. Safe for concurrent use;
// results, including misses, are cached per group and name for the lifetime
// of the client.
type Client struct {
	cfg    Config
	httpc  *http.Client
	cache  sync.Map // "<group>\x00<name>" -> string
	logger *zap.Logger
}

// New builds a lookup client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.LobidBaseURL == "" {
		cfg.LobidBaseURL = defaultLobidBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		httpc:  &http.Client{},
		logger: logger,
	}
}

// AuthorGND resolves a combined "last, first" name to a GND id. An empty
// result means no backend produced an unambiguous match.
func (c *Client) AuthorGND(ctx context.Context, name string, group *config.GroupParams) string {
	key := group.Name + "\x00" + name
	if cached, ok := c.cache.Load(key); ok {
		return cached.(string)
	}

	gnd := c.lookupSWB(ctx, name, group)
	if gnd == "" {
		gnd = c.lookupLobid(ctx, name, group)
	}
	c.cache.Store(key, gnd)
	return gnd
}

// lookupSWB appends the escaped name to the group's SWB search URL and scans
// the result page for d-nb.info/gnd links. The id counts only when the page
// references exactly one distinct id; several distinct ids mean the search
// hit more than one person.
func (c *Client) lookupSWB(ctx context.Context, name string, group *config.GroupParams) string {
	if group.AuthorSWBLookupURL == "" {
		return ""
	}

	body, err := c.get(ctx, group.AuthorSWBLookupURL+url.QueryEscape(name), group)
	if err != nil {
		metrics.ObserveAuthorityLookup("swb", "error")
		c.logger.Debug("swb author lookup failed", zap.String("author", name), zap.Error(err))
		return ""
	}

	distinct := make(map[string]bool)
	var gnd string
	for _, m := range gndLinkRegex.FindAllStringSubmatch(string(body), -1) {
		distinct[m[1]] = true
		gnd = m[1]
	}
	if len(distinct) != 1 {
		metrics.ObserveAuthorityLookup("swb", "miss")
		return ""
	}
	metrics.ObserveAuthorityLookup("swb", "hit")
	return gnd
}

// lookupLobid queries lobid's GND search for the exact name and accepts the
// result only when it is unique.
func (c *Client) lookupLobid(ctx context.Context, name string, group *config.GroupParams) string {
	lookupURL := c.cfg.LobidBaseURL + "?q=" + url.QueryEscape(`"`+name+`"`) + "&format=json"
	if group.AuthorLobidQueryPart != "" {
		lookupURL += "&" + group.AuthorLobidQueryPart
	}

	body, err := c.get(ctx, lookupURL, group)
	if err != nil {
		metrics.ObserveAuthorityLookup("lobid", "error")
		c.logger.Debug("lobid author lookup failed", zap.String("author", name), zap.Error(err))
		return ""
	}

	var payload struct {
		TotalItems int `json:"totalItems"`
		Member     []struct {
			GNDIdentifier string `json:"gndIdentifier"`
		} `json:"member"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.ObserveAuthorityLookup("lobid", "error")
		c.logger.Debug("lobid response is not valid JSON", zap.String("author", name), zap.Error(err))
		return ""
	}
	if payload.TotalItems != 1 || len(payload.Member) == 0 || payload.Member[0].GNDIdentifier == "" {
		metrics.ObserveAuthorityLookup("lobid", "miss")
		return ""
	}
	metrics.ObserveAuthorityLookup("lobid", "hit")
	return payload.Member[0].GNDIdentifier
}

// get fetches one URL with per-attempt timeouts and jittered backoff between
// attempts. Requests are idempotent GETs, so any failure is retried as long
// as the parent context is still alive.
func (c *Client) get(ctx context.Context, rawURL string, group *config.GroupParams) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}

		body, err := c.getOnce(ctx, rawURL, group)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, rawURL string, group *config.GroupParams) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build authority lookup request: %w", err)
	}
	userAgent := group.UserAgent
	if userAgent == "" {
		userAgent = c.cfg.UserAgent
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authority lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authority lookup: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read authority lookup response: %w", err)
	}
	return body, nil
}

// backoff doubles a 250ms base per attempt, capped at 5s, with jitter.
func backoff(attempt int) time.Duration {
	const (
		baseDelay = 250 * time.Millisecond
		maxDelay  = 5 * time.Second
	)
	delay := float64(baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
