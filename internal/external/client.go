// Package external holds the clients for third-party HTTP APIs. Every
// outbound call goes through BaseClient, which adds request id propagation,
// a circuit breaker, bounded retries and AppError mapping.
package external

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"recaps/internal/types"
)

// RetryPolicy bounds retries of 429 and 5xx responses.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the policy used by provider clients.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, MinWait: 500 * time.Millisecond, MaxWait: 10 * time.Second}
}

// BaseClient wraps an *http.Client with a circuit breaker and retries.
type BaseClient struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	policy    RetryPolicy
	userAgent string
	sleep     func(time.Duration)
}

// BaseClientOption configures a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces time.Sleep between retries.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) { c.sleep = fn }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(c *BaseClient) { c.breaker = cb }
}

// NewBreaker returns the default breaker: it opens after more than five
// consecutive failures and probes again after 30 seconds.
func NewBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
}

// NewBaseClient builds a client with a breaker named name.
func NewBaseClient(httpClient *http.Client, name string, policy RetryPolicy, userAgent string, opts ...BaseClientOption) *BaseClient {
	c := &BaseClient{
		client:    httpClient,
		breaker:   NewBreaker(name),
		policy:    policy,
		userAgent: userAgent,
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req. Responses other than 429 and 5xx are returned as-is and the
// caller closes the body. 429 and 5xx are retried per the policy; when the
// retries run out, or the breaker is open, Do returns an AppError.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if id := types.GetRequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var body []byte
	if req.Body != nil {
		var err error
		if body, err = io.ReadAll(req.Body); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
		}
		req.Body.Close()
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}
		resp, err = c.breaker.Execute(func() (*http.Response, error) {
			r, err := c.client.Do(req)
			if err != nil {
				return nil, err
			}
			if retryable(r.StatusCode) {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if attempt == c.policy.MaxRetries {
			break
		}
		wait := c.backoff(attempt, resp)
		if resp != nil {
			resp.Body.Close()
			resp = nil
		}
		c.sleep(wait)
	}

	if resp != nil {
		resp.Body.Close()
	}
	return nil, mapError(resp, err)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// backoff honors Retry-After when present and otherwise uses exponential
// backoff with jitter, clamped to [MinWait, MaxWait].
func (c *BaseClient) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				return min(time.Duration(secs)*time.Second, c.policy.MaxWait)
			}
			if at, err := http.ParseTime(ra); err == nil {
				return max(min(time.Until(at), c.policy.MaxWait), c.policy.MinWait)
			}
		}
	}
	ceiling := min(float64(c.policy.MinWait)*math.Pow(2, float64(attempt)), float64(c.policy.MaxWait))
	floor := float64(c.policy.MinWait)
	if ceiling <= floor {
		return c.policy.MinWait
	}
	return time.Duration(floor + rand.Float64()*(ceiling-floor))
}

func mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "circuit breaker is open", err)
	}
	if resp != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
		}
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("upstream returned %d after retries", resp.StatusCode), err)
	}
	return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request failed", err)
}
