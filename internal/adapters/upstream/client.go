// Package upstream fetches killmails from zKillboard and ESI.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/okian/killpoints/internal/domain/model"
	"github.com/okian/killpoints/pkg/logger"
	"github.com/okian/killpoints/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultZKillURL    = "https://zkillboard.com"
	defaultESIURL      = "https://esi.evetech.net"
	defaultUserAgent   = "killpoints/1.0"
	defaultHTTPTimeout = 30 * time.Second

	defaultMaxRetries     = 5
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second

	defaultPageTTL           = time.Hour
	defaultPageCacheSize     = 4000
	defaultKillmailCacheSize = 100_000
	defaultTypeCacheSize     = 40_000

	maxBodyBytes = 16 << 20

	upstreamZKill = "zkill"
	upstreamESI   = "esi"
)

type pageKey struct {
	entityID int64
	page     int
}

// Client talks to zKillboard for kill ids and hashes and to ESI for details.
// Pages are cached for an hour; killmails and type data are memoised.
// Concurrent requests for the same record share one upstream call.
type Client struct {
	zkillURL  string
	esiURL    string
	http      *http.Client
	userAgent string

	zkillLimiter *rate.Limiter
	esiLimiter   *rate.Limiter

	maxRetries     uint64
	initialBackoff time.Duration
	maxBackoff     time.Duration

	pageTTL           time.Duration
	killmailCacheSize int

	pages     *expirable.LRU[pageKey, []model.KillRef]
	killmails *expirable.LRU[int64, model.Killmail]
	hashes    *expirable.LRU[int64, string]
	types     *expirable.LRU[int64, typeInfo]

	group  singleflight.Group
	tracer trace.Tracer
	logger logger.Logger
	now    func() time.Time
}

// New creates a client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		zkillURL:          defaultZKillURL,
		esiURL:            defaultESIURL,
		http:              &http.Client{Timeout: defaultHTTPTimeout},
		userAgent:         defaultUserAgent,
		zkillLimiter:      rate.NewLimiter(rate.Limit(2), 2),
		esiLimiter:        rate.NewLimiter(rate.Limit(50), 50),
		maxRetries:        defaultMaxRetries,
		initialBackoff:    defaultInitialBackoff,
		maxBackoff:        defaultMaxBackoff,
		pageTTL:           defaultPageTTL,
		killmailCacheSize: defaultKillmailCacheSize,
		tracer:            otel.Tracer("github.com/okian/killpoints/internal/adapters/upstream"),
		logger:            logger.Nop(),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pages = expirable.NewLRU[pageKey, []model.KillRef](defaultPageCacheSize, nil, c.pageTTL)
	c.killmails = expirable.NewLRU[int64, model.Killmail](c.killmailCacheSize, nil, 0)
	c.hashes = expirable.NewLRU[int64, string](c.killmailCacheSize, nil, 0)
	c.types = expirable.NewLRU[int64, typeInfo](defaultTypeCacheSize, nil, 0)
	return c
}

// shared runs fn once per key among concurrent callers.
func shared[T any](c *Client, key string, fn func() (T, error)) (T, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

type request struct {
	upstream string
	limiter  *rate.Limiter
	method   string
	url      string
	body     []byte
}

// fetch performs req with retries and decodes the JSON body into out.
// 429s, 5xx, transport failures and undecodable bodies are retried with
// exponential backoff; other 4xx answers are final.
func (c *Client) fetch(ctx context.Context, req request, out any) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxInterval = c.maxBackoff
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)

	op := func() error {
		return c.attempt(ctx, req, out)
	}
	notify := func(err error, wait time.Duration) {
		metrics.RecordUpstreamRetry(req.upstream, retryReason(err))
		c.logger.Debug(ctx, "retrying upstream request",
			logger.String("upstream", req.upstream),
			logger.String("url", req.url),
			logger.Duration("wait", wait),
			logger.Error(err))
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		metrics.RecordErrorByComponent("upstream", retryReason(err))
		return fmt.Errorf("%w: %s %s: %w", ErrDataUnavailable, req.method, req.url, err)
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, req request, out any) error {
	if err := req.limiter.Wait(ctx); err != nil {
		return backoff.Permanent(err)
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return backoff.Permanent(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.RecordUpstreamLatency(req.upstream, float64(time.Since(start).Milliseconds()))
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		metrics.RecordUpstreamRequest(req.upstream, "transport")
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordUpstreamRequest(req.upstream, "transport")
		return err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.RecordUpstreamRequest(req.upstream, "rate_limited")
		return ErrRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		metrics.RecordUpstreamRequest(req.upstream, "server_error")
		return fmt.Errorf("%w: status %d", errServer, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		metrics.RecordUpstreamRequest(req.upstream, "not_found")
		return backoff.Permanent(fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode))
	}

	if err := json.Unmarshal(data, out); err != nil {
		metrics.RecordUpstreamRequest(req.upstream, "malformed")
		return fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	metrics.RecordUpstreamRequest(req.upstream, "ok")
	return nil
}

func retryReason(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrMalformedRecord):
		return "malformed"
	case errors.Is(err, errServer):
		return "server_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "transport"
	}
}

func (c *Client) zkill(path string) string { return c.zkillURL + path }
func (c *Client) esi(path string) string   { return c.esiURL + path }

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
