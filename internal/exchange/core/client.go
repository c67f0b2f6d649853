package core

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/controlplane/internal/ctlerr"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

// Request describes a single signed HTTP call before it enters the per-venue queue.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	Auth        bool // whether this call needs Signer headers
	MaxRetries  int  // defaults to 2 per spec.md §4.3
}

// Response is the decoded, guard-checked result of a dispatched Request.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client is the shared signed-HTTP core every venue adapter embeds. One Client per venue.
type Client struct {
	Venue      string
	BaseURL    string
	Signer     Signer
	HTTPClient *http.Client
	MinGap     time.Duration
	Tel        *telemetry.Telemetry

	limiter *rate.Limiter
	queue   chan queuedReq
	now     func() time.Time
	breaker *gobreaker.CircuitBreaker
}

type queuedReq struct {
	ctx  context.Context
	req  Request
	resp chan queuedResult
}

type queuedResult struct {
	resp Response
	err  error
}

// NewClient constructs a Client and starts its FIFO dispatch worker. minGap enforces the
// per-venue minimum gap between dispatches (spec.md §4.3's default 120ms, overridable per
// venue via e.g. BINGX_MIN_GAP_MS).
func NewClient(venue, baseURL string, signer Signer, minGap time.Duration, tel *telemetry.Telemetry) *Client {
	if minGap <= 0 {
		minGap = 120 * time.Millisecond
	}
	c := &Client{
		Venue:      venue,
		BaseURL:    baseURL,
		Signer:     signer,
		HTTPClient: &http.Client{Timeout: 12 * time.Second},
		MinGap:     minGap,
		Tel:        tel,
		limiter:    rate.NewLimiter(rate.Every(minGap), 1),
		queue:      make(chan queuedReq, 256),
		now:        time.Now,
		breaker:    newAuthWAFBreaker(venue),
	}
	go c.dispatchLoop()
	return c
}

// newAuthWAFBreaker trips after 5 consecutive auth/WAF classifications from this venue and
// stays open for 60s, per spec.md §4.3's venue auth/WAF breaker. Grounded on the teacher's
// infra/breakers/breakers.go Settings shape (also reused, generalized, by internal/strategy's
// python-sidecar breaker).
func newAuthWAFBreaker(venue string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     fmt.Sprintf("venue-auth-waf-%s", venue),
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			cpe, ok := err.(ctlerr.ControlPlaneError)
			if !ok {
				return err == nil
			}
			return cpe.Code() != ctlerr.CodeAuthOrWAF && cpe.Code() != ctlerr.CodeIPNotWhitelistedOrWAF
		},
	})
}

// dispatchLoop is the global FIFO queue for this venue: requests are observed in submission
// order and serialized through a single goroutine, satisfying §5's per-venue ordering guarantee.
func (c *Client) dispatchLoop() {
	for qr := range c.queue {
		if err := c.limiter.Wait(qr.ctx); err != nil {
			qr.resp <- queuedResult{err: ctlerr.WrapRetriable(ctlerr.CodeVenueUnavailable, err)}
			continue
		}
		resp, err := c.doWithRetry(qr.ctx, qr.req)
		qr.resp <- queuedResult{resp: resp, err: err}
	}
}

// Do submits a request onto the venue's FIFO queue and blocks until it is dispatched.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	ch := make(chan queuedResult, 1)
	select {
	case c.queue <- queuedReq{ctx: ctx, req: req, resp: ch}:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func (c *Client) doWithRetry(ctx context.Context, req Request) (Response, error) {
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := c.doOnce(ctx, req)
		if err == nil {
			c.Tel.Metrics.VenueRequests.WithLabelValues(c.Venue, "ok").Inc()
			return resp, nil
		}
		cpe, ok := err.(ctlerr.ControlPlaneError)
		if !ok || !cpe.Retriable() || attempt == maxRetries {
			c.Tel.Metrics.VenueRequests.WithLabelValues(c.Venue, "error").Inc()
			return Response{}, err
		}
		lastErr = err
		c.Tel.Metrics.VenueRetries.WithLabelValues(c.Venue).Inc()
		backoff := backoffDuration(attempt)
		c.Tel.Log.Debug().Str("venue", c.Venue).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying venue request")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	return Response{}, lastErr
}

// backoffDuration computes min(30s, 1000*2^attempt) with +/-20% jitter, per spec.md §4.3.
func backoffDuration(attempt int) time.Duration {
	base := math.Min(30000, 1000*math.Pow(2, float64(attempt)))
	jitter := 1 + (rand.Float64()*0.4 - 0.2) // +/-20%
	return time.Duration(base*jitter) * time.Millisecond
}

// doOnce dispatches a single HTTP attempt through the venue's auth/WAF circuit breaker: once
// tripped, auth-bearing requests fail fast with CodeAuthOrWAF instead of re-hitting a venue
// that is actively blocking or WAF-challenging this client.
func (c *Client) doOnce(ctx context.Context, req Request) (Response, error) {
	if !req.Auth {
		return c.doOnceUnguarded(ctx, req)
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doOnceUnguarded(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return Response{}, ctlerr.New(ctlerr.CodeAuthOrWAF, "venue auth/WAF breaker open")
		}
		return Response{}, err
	}
	return result.(Response), nil
}

func (c *Client) doOnceUnguarded(ctx context.Context, req Request) (Response, error) {
	timestampMs := c.now().UnixMilli()
	canonicalQuery := canonicalizeQuery(req.Query)
	fullPath := req.Path
	reqURL := c.BaseURL + req.Path
	if canonicalQuery != "" {
		reqURL += "?" + canonicalQuery
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, reqURL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, ctlerr.New(ctlerr.CodeBaseURLOrPathInvalid, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if req.Auth && c.Signer != nil {
		preHash := c.Signer.PreHash(timestampMs, req.Method, fullPath, canonicalQuery, string(req.Body))
		for k, v := range c.Signer.Sign(preHash) {
			httpReq.Header.Set(k, v)
		}
	}

	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return Response{}, ctlerr.WrapRetriable(ctlerr.CodeVenueUnavailable, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, ctlerr.WrapRetriable(ctlerr.CodeVenueUnavailable, err)
	}

	if waf, reason := detectWAFBlock(httpResp.StatusCode, body); waf {
		c.Tel.Metrics.VenueWAFBlocks.WithLabelValues(c.Venue).Inc()
		return Response{}, ctlerr.New(ctlerr.CodeIPNotWhitelistedOrWAF, reason)
	}

	switch {
	case httpResp.StatusCode == http.StatusNotFound:
		return Response{}, ctlerr.New(ctlerr.CodeBaseURLOrPathInvalid, "404 from venue")
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return Response{}, ctlerr.New(ctlerr.CodeAuthOrWAF, fmt.Sprintf("status %d", httpResp.StatusCode))
	case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
		return Response{}, ctlerr.WrapRetriable(ctlerr.CodeVenueUnavailable, fmt.Errorf("status %d", httpResp.StatusCode))
	}

	return Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}

// detectWAFBlock maps non-JSON or HTML WAF-challenge bodies to a non-retriable classification,
// per spec.md §4.3.
func detectWAFBlock(status int, body []byte) (bool, string) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false, ""
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		s := string(trimmed)
		if strings.Contains(s, "Just a moment") || strings.Contains(s, "cf-browser-verification") {
			return true, "cloudflare WAF challenge detected"
		}
		return true, "non-JSON response body"
	}
	var probe interface{}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return true, "malformed JSON response body"
	}
	return false, ""
}

func canonicalizeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		for j, v := range q[k] {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// clientOrderIdPrefixes is the small allow-list of known prefixes used to rebuild an
// over-length clientOrderId deterministically, per spec.md §4.3.
var clientOrderIdPrefixes = map[string]string{
	"bitmart":   "bm",
	"bingx":     "bx",
	"p2b":       "p2",
	"bitget":    "bg",
	"mexc":      "mx",
	"binance":   "bn",
	"kucoin":    "kc",
	"coinstore": "cs",
	"pionex":    "px",
}

// NormalizeClientOrderID replaces an over-length clientOrderId with
// prefix + sha256(raw) truncated to maxLen, per spec.md §4.3.
func NormalizeClientOrderID(venue, raw string, maxLen int) string {
	if len(raw) <= maxLen {
		return raw
	}
	prefix, ok := clientOrderIdPrefixes[strings.ToLower(venue)]
	if !ok {
		prefix = "cp"
	}
	sum := sha256.Sum256([]byte(raw))
	hash := hex.EncodeToString(sum[:])
	combined := prefix + hash
	if len(combined) > maxLen {
		combined = combined[:maxLen]
	}
	return combined
}
