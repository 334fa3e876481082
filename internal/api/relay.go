package api

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/time/rate"
)

const maxRelayBytes = 64 << 20

// clientLimiter hands each remote address its own token bucket.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &clientLimiter{limiters: make(map[string]*rate.Limiter), limit: limit, burst: burst}
}

func (c *clientLimiter) Allow(key string) bool {
	c.mu.Lock()
	l, ok := c.limiters[key]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[key] = l
	}
	c.mu.Unlock()
	return l.Allow()
}

// Relay fetches allow-listed paste and gist URLs on behalf of the sync
// client, passing conditional headers through.
type Relay struct {
	allowed map[string]struct{}
	client  *http.Client
	limiter *clientLimiter
	log     *slog.Logger
}

func NewRelay(allowedHosts []string, rps float64, log *slog.Logger) *Relay {
	allowed := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = struct{}{}
		}
	}
	return &Relay{
		allowed: allowed,
		client:  &http.Client{Timeout: time.Minute},
		limiter: newClientLimiter(rps, 5),
		log:     log,
	}
}

// hostAllowed accepts an allow-listed host or any subdomain of one.
func (rl *Relay) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := rl.allowed[host]; ok {
			return true
		}
		_, rest, found := strings.Cut(host, ".")
		if !found || !strings.Contains(rest, ".") {
			return false
		}
		host = rest
	}
}

func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	client, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		client = r.RemoteAddr
	}
	if !rl.limiter.Allow(client) {
		JSONError(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	target, err := url.Parse(r.URL.Query().Get("url"))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		JSONError(w, "url must be an absolute http or https URL", http.StatusBadRequest)
		return
	}
	if !rl.hostAllowed(target.Hostname()) {
		JSONError(w, "Host not allowed", http.StatusForbidden)
		return
	}

	var resp *http.Response
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Accept", "application/json, text/plain, */*")
			if inm := r.Header.Get("If-None-Match"); inm != "" {
				req.Header.Set("If-None-Match", inm)
			}
			resp, err = rl.client.Do(req)
			return err
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.Context(r.Context()),
		retry.OnRetry(func(n uint, err error) {
			rl.log.Info("Retrying relay fetch after error", "attempt", n, "host", target.Host, "error", err)
		}),
	)
	if err != nil {
		rl.log.Warn("relay fetch failed", "host", target.Host, "error", err)
		JSONError(w, "Upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for _, h := range []string{"ETag", "Content-Type", "Last-Modified"} {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, io.LimitReader(resp.Body, maxRelayBytes)); err != nil {
		rl.log.Debug("relay copy interrupted", "host", target.Host, "error", err)
	}
}
