package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/config"
	"github.com/SamGoodwater/KrosmozJdr-sub008/internal/resilience"
)

// FetchError reports a failed fetch, always carrying the HTTP status and the
// requested URL. The caller decides retry policy; transient statuses are
// wrapped so the resilience layer retries them, client errors are not.
type FetchError struct {
	Status int
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: http %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// client performs rate-limited JSON GETs with retry and optional caching.
type client struct {
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	cache   Cache
	ua      string
}

func newClient(cfg config.CollectConfig, cache Cache) *client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	retry.OnRetry = resilience.RetryLogger("source-api", "get")

	ua := cfg.UserAgent
	if ua == "" {
		ua = "krosmoz-import/1.0"
	}

	return &client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		retry:   retry,
		cache:   cache,
		ua:      ua,
	}
}

// getJSON fetches rawURL and decodes the response body into out. The cache
// key is the full request URL.
func (c *client) getJSON(ctx context.Context, rawURL string, skipCache bool, out any) error {
	if c.cache != nil && !skipCache {
		body, hit, err := c.cache.Get(ctx, rawURL)
		if err != nil {
			zap.L().Warn("fetch cache read failed", zap.String("url", rawURL), zap.Error(err))
		} else if hit {
			return eris.Wrapf(json.Unmarshal(body, out), "collect: decode cached %s", rawURL)
		}
	}

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, rawURL)
	})
	if err != nil {
		return err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, rawURL, body); err != nil {
			zap.L().Warn("fetch cache write failed", zap.String("url", rawURL), zap.Error(err))
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "collect: decode %s", rawURL)
	}
	return nil
}

func (c *client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "collect: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "collect: create request")
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Network-level failures carry no status; the resilience layer
		// classifies them by error shape.
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fe := &FetchError{Status: resp.StatusCode, URL: rawURL}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(fe, resp.StatusCode)
		}
		return nil, fe
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Status: resp.StatusCode, URL: rawURL, Err: err}
	}
	return body, nil
}
