package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// CollyConfig controls the colly-backed transport.
type CollyConfig struct {
	UserAgent string
	Timeout   time.Duration
	// RatePerSecond caps request rate; zero disables the limiter.
	RatePerSecond float64
	// RespectRobots makes disallowed URLs fail with colly.ErrRobotsTxtBlocked.
	RespectRobots bool
}

// CollyTransport performs single synchronous GETs with a colly collector.
type CollyTransport struct {
	cfg           CollyConfig
	baseCollector *colly.Collector
	limiter       *rate.Limiter
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewCollyTransport builds a CollyTransport.
func NewCollyTransport(cfg CollyConfig) *CollyTransport {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	c.SetRequestTimeout(cfg.Timeout)
	c.IgnoreRobotsTxt = !cfg.RespectRobots

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &CollyTransport{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
	}
}

// Get fetches rawURL. Non-2xx statuses come back as *Error carrying the code.
func (t *CollyTransport) Get(ctx context.Context, rawURL string) (Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	collector := t.baseCollector.Clone()
	// Retries revisit the same URL.
	collector.AllowURLRevisit = true

	var (
		result   Response
		got      bool
		fetchErr error
	)
	t.configureHooks(collector, rawURL, &result, &got, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return Response{}, fetchErr
		}
		if err != nil {
			return Response{}, &Error{URL: rawURL, Err: err}
		}
		if !got {
			return Response{}, &Error{URL: rawURL, Err: ErrNoResponse}
		}
		return result, nil
	}
}

func (t *CollyTransport) configureHooks(
	hooks collectorHooks,
	rawURL string,
	result *Response,
	got *bool,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		final := rawURL
		if r.Request != nil && r.Request.URL != nil {
			final = r.Request.URL.String()
		}
		*result = Response{
			URL:        final,
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
		*got = true
	})

	hooks.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		if status > 0 {
			*fetchErr = &Error{URL: rawURL, StatusCode: status, Err: fmt.Errorf("%w: %v", ErrStatus, err)}
			return
		}
		*fetchErr = &Error{URL: rawURL, Err: err}
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
	}
}
