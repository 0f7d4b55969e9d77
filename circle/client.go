package circle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/handlepay/handlepay-cctp/types"
)

const (
	defaultHTTPTimeout       = 5 * time.Second
	defaultRequestsPerSecond = 10
	defaultBreakerFailures   = 5
)

// StatusError is a non-2xx response from Iris.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.IsNotFound()
}

// Client talks to the Circle Iris API behind a rate limiter and a circuit breaker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     log.Logger
}

func NewClient(cfg types.CircleSettings, logger log.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = defaultRequestsPerSecond
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}

	logger = logger.With("component", "iris")

	settings := gobreaker.Settings{
		Name:        "iris",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// 4xx answers mean Iris is up.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < http.StatusInternalServerError && se.StatusCode != http.StatusTooManyRequests
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		baseURL:    normalizeBaseURL(cfg.AttestationBaseURL),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, result)
}

func (c *Client) post(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodPost, path, result)
}

func (c *Client) do(ctx context.Context, method, path string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.request(ctx, method, path, result)
	})
	return err
}

// request performs one HTTP round trip and unmarshals the JSON response
func (c *Client) request(ctx context.Context, method, path string, result any) error {
	url := c.baseURL + path
	c.logger.Debug(fmt.Sprintf("%s %s", method, url))

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if result == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, result)
}

// normalizeHex ensures the value has a 0x prefix
func normalizeHex(hash string) string {
	if !strings.HasPrefix(hash, "0x") && !strings.HasPrefix(hash, "0X") {
		return "0x" + hash
	}
	return hash
}

// normalizeBaseURL removes trailing slashes and the v1 /attestations suffix
func normalizeBaseURL(url string) string {
	url = strings.TrimSuffix(url, "/")
	return strings.TrimSuffix(url, "/attestations")
}
