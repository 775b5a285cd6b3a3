package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// DefaultTimeout applies when New is given a non-positive timeout.
const DefaultTimeout = 30 * time.Second

// Timing is one measured GET. Header is the time until response headers
// arrived; Total also covers reading the body.
type Timing struct {
	Status int
	Header time.Duration
	Total  time.Duration
	Reused bool // keep-alive connection, no dial or TLS handshake
}

// Client measures GET requests against the deployed app. It never retries:
// a retried request would report the latency of the last attempt only.
// ⭐ SSOT: 모든 외부 HTTP 요청은 이 클라이언트를 통해서만 수행
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	limiter    *rate.Limiter
}

// New creates a client whose requests give up after timeout.
// ⭐ SSOT: http.Client 인스턴스는 여기서만 생성
func New(log *logger.Logger, timeout time.Duration) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// WithRateLimiter sets a token bucket consulted before every request
func (c *Client) WithRateLimiter(limiter *rate.Limiter) *Client {
	c.limiter = limiter
	return c
}

// Measure issues a GET, drains the body and reports how long each phase took.
// Any HTTP status is a successful measurement; only transport failures,
// timeouts and rate-limit waits that outlive ctx return an error.
func (c *Client) Measure(ctx context.Context, url string) (*Timing, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	t := &Timing{}
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) { t.Reused = info.Reused },
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		}).Debug("HTTP request failed")
		return nil, err
	}
	t.Header = time.Since(start)
	t.Status = resp.StatusCode

	Drain(resp)
	t.Total = time.Since(start)

	c.logger.WithFields(map[string]interface{}{
		"url":       url,
		"status":    t.Status,
		"header_ms": t.Header.Milliseconds(),
		"total_ms":  t.Total.Milliseconds(),
		"reused":    t.Reused,
	}).Debug("HTTP request measured")

	return t, nil
}

// Drain discards and closes a response body so the connection can be reused.
func Drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
