package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"blockminds/internal/domain"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxResponseBytes = 16 << 20

// RetryPolicy bounds how long a single fetch may keep retrying.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute}
}

// Backoff is the pre-jitter wait after the given failed attempt (0-based):
// BaseDelay * 2^attempt, capped at MaxDelay when MaxDelay is positive.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		if d > time.Duration(1<<62) {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Upstream string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Upstream, e.Code, e.Body)
}

// FetchError is the terminal outcome of a fetch that did not succeed. It
// matches domain.ErrAssetUnavailable under errors.Is.
type FetchError struct {
	AssetID    string
	URL        string
	StatusCode int
	Attempts   int
	Permanent  bool
	Err        error
}

func (e *FetchError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	subject := e.AssetID
	if subject == "" {
		subject = e.URL
	}
	return fmt.Sprintf("fetch %s failed (%s, %d attempts): %v", subject, kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	return target == domain.ErrAssetUnavailable
}

// Transient reports whether the last failure was retryable (429, 5xx, network).
func (e *FetchError) Transient() bool { return !e.Permanent }

// Request describes one GET against an upstream.
type Request struct {
	AssetID  string
	URL      string
	Params   url.Values
	Headers  map[string]string
	Validate func([]byte) error
}

// RequireKeys returns a validator that accepts a JSON object holding every key.
func RequireKeys(keys ...string) func([]byte) error {
	return func(body []byte) error {
		var top map[string]json.RawMessage
		if err := json.Unmarshal(body, &top); err != nil {
			return fmt.Errorf("malformed payload: %w", err)
		}
		for _, k := range keys {
			if _, ok := top[k]; !ok {
				return fmt.Errorf("malformed payload: missing key %q", k)
			}
		}
		return nil
	}
}

// RequireJSON accepts any well-formed JSON document.
func RequireJSON(body []byte) error {
	if !json.Valid(body) {
		return errors.New("malformed payload: invalid json")
	}
	return nil
}

// Fetcher performs rate-limited GETs with bounded exponential backoff.
type Fetcher struct {
	upstream string
	client   *http.Client
	limiter  Limiter
	policy   RetryPolicy
	headers  map[string]string
	tracer   trace.Tracer
	logger   zerolog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

func NewFetcher(upstream string, client *http.Client, limiter Limiter, policy RetryPolicy, tracer trace.Tracer, logger zerolog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	return &Fetcher{
		upstream: upstream,
		client:   client,
		limiter:  limiter,
		policy:   policy,
		headers:  map[string]string{"Accept": "application/json"},
		tracer:   tracer,
		logger:   logger.With().Str("upstream", upstream).Logger(),
		sleep:    sleepContext,
		jitter:   func() time.Duration { return time.Duration(rand.Float64() * float64(time.Second)) },
	}
}

// SetHeader adds a header sent with every request.
func (f *Fetcher) SetHeader(key, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	f.headers[key] = value
}

// Policy returns the retry policy in use.
func (f *Fetcher) Policy() RetryPolicy { return f.policy }

// Get fetches req.URL, retrying transient failures. Cancellation is checked
// before every attempt and during every wait; it is returned as ctx.Err().
func (f *Fetcher) Get(ctx context.Context, req Request) ([]byte, error) {
	ctx, span := f.tracer.Start(ctx, f.upstream+".get")
	defer span.End()
	span.SetAttributes(attribute.String("asset_id", req.AssetID))

	target, err := buildURL(req.URL, req.Params)
	if err != nil {
		return nil, &FetchError{AssetID: req.AssetID, URL: req.URL, Permanent: true, Err: err}
	}

	var lastErr error
	var lastStatus int
	for attempt := 0; attempt < f.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			delay := f.policy.Backoff(attempt-1) + f.jitter()
			f.logger.Warn().
				Str("asset_id", req.AssetID).
				Int("attempt", attempt).
				Int("status", lastStatus).
				Dur("backoff", delay).
				Err(lastErr).
				Msg("retrying upstream request")
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		body, status, err := f.do(ctx, target, req.Headers)
		if err == nil {
			if req.Validate != nil {
				if verr := req.Validate(body); verr != nil {
					span.SetStatus(codes.Error, verr.Error())
					return nil, &FetchError{AssetID: req.AssetID, URL: target, StatusCode: status, Attempts: attempt + 1, Permanent: true, Err: verr}
				}
			}
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr, lastStatus = err, status
		if !retryable(status) {
			span.SetStatus(codes.Error, err.Error())
			return nil, &FetchError{AssetID: req.AssetID, URL: target, StatusCode: status, Attempts: attempt + 1, Permanent: true, Err: err}
		}
	}

	span.SetStatus(codes.Error, "retries exhausted")
	return nil, &FetchError{
		AssetID:    req.AssetID,
		URL:        target,
		StatusCode: lastStatus,
		Attempts:   f.policy.MaxAttempts,
		Err:        lastErr,
	}
}

// GetJSON is Get followed by json.Unmarshal into out.
func (f *Fetcher) GetJSON(ctx context.Context, req Request, out any) error {
	body, err := f.Get(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &FetchError{AssetID: req.AssetID, URL: req.URL, Attempts: 1, Permanent: true, Err: fmt.Errorf("decode %s response: %w", f.upstream, err)}
	}
	return nil
}

func (f *Fetcher) do(ctx context.Context, target string, extra map[string]string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range f.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range extra {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &StatusError{Upstream: f.upstream, Code: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, resp.StatusCode, nil
}

// retryable covers 429, 5xx and transport errors (status 0).
func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

func buildURL(raw string, params url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n]
	}
	return s
}
