package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sawpanic/controlplane/internal/ctlerr"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

func TestBackoffDurationBounded(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDuration(attempt)
		if d <= 0 {
			t.Fatalf("attempt %d: expected positive backoff, got %v", attempt, d)
		}
		if d > 36*1e9 { // 36s upper bound allows for the +20% jitter over the 30s cap
			t.Fatalf("attempt %d: backoff %v exceeds jittered cap", attempt, d)
		}
	}
}

func TestDetectWAFBlockCloudflareChallenge(t *testing.T) {
	body := []byte("<html>Just a moment...</html>")
	blocked, reason := detectWAFBlock(200, body)
	if !blocked {
		t.Fatal("expected WAF block detection")
	}
	if !strings.Contains(reason, "Cloudflare") && !strings.Contains(strings.ToLower(reason), "cloudflare") {
		t.Fatalf("expected cloudflare reason, got %q", reason)
	}
}

func TestDetectWAFBlockValidJSON(t *testing.T) {
	blocked, _ := detectWAFBlock(200, []byte(`{"ok":true}`))
	if blocked {
		t.Fatal("valid JSON must not be flagged as WAF block")
	}
}

func TestDetectWAFBlockMalformedJSON(t *testing.T) {
	blocked, _ := detectWAFBlock(200, []byte(`{"ok":true`))
	if !blocked {
		t.Fatal("malformed JSON body should be flagged")
	}
}

func TestNormalizeClientOrderIDShortPassesThrough(t *testing.T) {
	got := NormalizeClientOrderID("bitmart", "short-id", 32)
	if got != "short-id" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestNormalizeClientOrderIDLongIsDeterministic(t *testing.T) {
	raw := strings.Repeat("x", 64)
	a := NormalizeClientOrderID("bitmart", raw, 32)
	b := NormalizeClientOrderID("bitmart", raw, 32)
	if a != b {
		t.Fatal("expected deterministic truncated id")
	}
	if len(a) > 32 {
		t.Fatalf("expected id <= 32 chars, got %d", len(a))
	}
	if !strings.HasPrefix(a, "bm") {
		t.Fatalf("expected bitmart prefix, got %q", a)
	}
}

func TestAuthWAFBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad signature"}`))
	}))
	defer srv.Close()

	tel := telemetry.New(prometheus.NewRegistry(), "test")
	client := NewClient("testvenue", srv.URL, &HMACSigner{HeaderKey: "X-Key", HeaderSign: "X-Sign"}, time.Millisecond, tel)

	req := Request{Method: http.MethodGet, Path: "/orders", Auth: true, MaxRetries: 0}
	for i := 0; i < 5; i++ {
		if _, err := client.Do(context.Background(), req); err == nil {
			t.Fatalf("attempt %d: expected 401 to surface as error", i)
		}
	}
	hitsBeforeOpen := hits

	_, err := client.Do(context.Background(), req)
	if err == nil {
		t.Fatal("expected breaker-open error on 6th call")
	}
	cpe, ok := err.(ctlerr.ControlPlaneError)
	if !ok || cpe.Code() != ctlerr.CodeAuthOrWAF {
		t.Fatalf("expected CodeAuthOrWAF, got %v", err)
	}
	if hits != hitsBeforeOpen {
		t.Fatalf("expected breaker to short-circuit without a new HTTP hit, hits went from %d to %d", hitsBeforeOpen, hits)
	}
}

func TestCanonicalizeQuerySortsKeys(t *testing.T) {
	q1 := map[string][]string{"b": {"2"}, "a": {"1"}}
	q2 := map[string][]string{"a": {"1"}, "b": {"2"}}
	if canonicalizeQuery(q1) != canonicalizeQuery(q2) {
		t.Fatal("canonical query should be stable regardless of map iteration order")
	}
}
