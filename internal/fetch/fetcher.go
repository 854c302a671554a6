// Package fetch retrieves and parses pages with bounded retry on transient
// connection failures.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/metrics"
)

// Response is a raw page.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Transport performs one GET without retrying.
type Transport interface {
	Get(ctx context.Context, url string) (Response, error)
}

// Sleeper blocks between retries. The system clock implements it; tests use
// a fake that records requested delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// DocumentFetcher is what crawl sources depend on: a parsed document or a
// definitive absence.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, bool)
}

// Retrying wraps a Transport with a BackoffPolicy.
type Retrying struct {
	transport Transport
	policy    BackoffPolicy
	sleeper   Sleeper
	logger    *zap.Logger
}

// NewRetrying builds a Retrying fetcher. A nil policy means NewFixedBackoff.
func NewRetrying(transport Transport, policy BackoffPolicy, sleeper Sleeper, logger *zap.Logger) *Retrying {
	if policy == nil {
		policy = NewFixedBackoff()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{
		transport: transport,
		policy:    policy,
		sleeper:   sleeper,
		logger:    logger,
	}
}

// Fetch returns the parsed document, or false when the page is absent:
// HTTP error, unparseable body, or exhausted retries. Absence is never fatal.
func (f *Retrying) Fetch(ctx context.Context, url string) (*goquery.Document, bool) {
	resp, err := f.Get(ctx, url)
	if err != nil {
		f.logger.Warn("page absent", zap.String("url", url), zap.Error(err))
		metrics.ObserveFetch(url, outcome(err), 0)
		return nil, false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		f.logger.Warn("unparseable page", zap.String("url", url), zap.Error(err))
		metrics.ObserveFetch(url, "parse_error", len(resp.Body))
		return nil, false
	}
	metrics.ObserveFetch(url, "ok", len(resp.Body))
	return doc, true
}

// Get performs the raw fetch with retries and returns the last error when
// every attempt failed.
func (f *Retrying) Get(ctx context.Context, url string) (Response, error) {
	var lastErr error
	maxAttempts := f.policy.MaxAttempts()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := f.transport.Get(ctx, url)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return Response{}, err
		}
		if attempt == maxAttempts {
			break
		}
		delay := f.policy.Delay(attempt)
		f.logger.Error("transient fetch failure, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		metrics.ObserveRetry(url)
		if f.sleeper != nil {
			if sleepErr := f.sleeper.Sleep(ctx, delay); sleepErr != nil {
				return Response{}, sleepErr
			}
		}
	}
	return Response{}, fmt.Errorf("%w after %d attempts: %w", ErrRetriesSpent, maxAttempts, lastErr)
}

func outcome(err error) string {
	var fe *Error
	switch {
	case errors.Is(err, ErrRetriesSpent):
		return "retries_exhausted"
	case errors.As(err, &fe) && fe.StatusCode > 0:
		return "http_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
