// Package gateway talks to the dashboard API: one POST per client and one
// per backup, each returning the id the API assigned.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/models"
)

const (
	clientsPath = "/api/clients"
	backupsPath = "/api/backups"

	DefaultTimeout = 30 * time.Second
)

// ErrNoID is returned when the API accepted a request but sent back no id.
var ErrNoID = errors.New("response did not contain an id")

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the status is worth retrying.
func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

type Config struct {
	BaseURL string
	Timeout time.Duration

	// RetryAttempts is the total number of tries for a temporary failure.
	// Values below 2 disable retrying.
	RetryAttempts int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	// RateLimit is requests per second across all workers. Zero disables it.
	RateLimit float64
	Burst     int

	// BreakerFailures opens the circuit after this many consecutive
	// failures. Zero disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration

	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *zap.Logger
}

type Client struct {
	baseURL  string
	http     *http.Client
	attempts int
	delay    time.Duration
	maxDelay time.Duration
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	clock    clock.Clock
	log      *zap.Logger
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("gateway: base url is required")
	}
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     cfg.HTTPClient,
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		maxDelay: cfg.RetryMaxDelay,
		clock:    cfg.Clock,
		log:      cfg.Logger,
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.attempts < 1 {
		c.attempts = 1
	}
	if c.delay <= 0 {
		c.delay = 500 * time.Millisecond
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.BreakerFailures > 0 {
		c.breaker = newBreaker(cfg.BreakerFailures, cfg.BreakerCooldown, c.log)
	}
	return c, nil
}

func newBreaker(failures int, cooldown time.Duration, log *zap.Logger) *gobreaker.CircuitBreaker {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dashboard-api",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		// Client errors mean the API is up.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// CreateClient registers c and returns its API id.
func (c *Client) CreateClient(ctx context.Context, client models.ClientRecord) (int64, error) {
	return c.create(ctx, clientsPath, client.Request())
}

// CreateBackup registers b, which must carry the API id of its client.
func (c *Client) CreateBackup(ctx context.Context, b models.BackupRecord) (int64, error) {
	return c.create(ctx, backupsPath, b)
}

func (c *Client) create(ctx context.Context, path string, body any) (int64, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, errors.Wrap(err, "encoding request")
	}

	var (
		id      int64
		lastErr error
	)
	err = retry.Call(retry.CallArgs{
		Func: func() error {
			id, lastErr = c.guarded(ctx, path, payload)
			return lastErr
		},
		IsFatalError: func(err error) bool {
			var apiErr *APIError
			return !errors.As(err, &apiErr) || !apiErr.Temporary()
		},
		NotifyFunc: func(err error, attempt int) {
			if attempt < c.attempts {
				c.log.Debug("retrying request", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
			}
		},
		Attempts:    c.attempts,
		Delay:       c.delay,
		MaxDelay:    c.maxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		if lastErr != nil {
			return 0, lastErr
		}
		return 0, err
	}
	return id, nil
}

func (c *Client) guarded(ctx context.Context, path string, payload []byte) (int64, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, errors.Wrap(err, "waiting for rate limiter")
		}
	}
	if c.breaker == nil {
		return c.post(ctx, path, payload)
	}
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, path, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, errors.Wrap(err, "api unavailable")
		}
		return 0, err
	}
	return v.(int64), nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte) (int64, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, errors.Wrapf(err, "building request for %s", url)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "POST %s", url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, errors.Wrapf(err, "reading response from %s", url)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	}
	return parseID(body)
}

type idResponse struct {
	ID   *int64 `json:"id"`
	Data *struct {
		ID *int64 `json:"id"`
	} `json:"data"`
}

func parseID(body []byte) (int64, error) {
	var r idResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return 0, errors.Wrap(err, "decoding response")
	}
	switch {
	case r.ID != nil:
		return *r.ID, nil
	case r.Data != nil && r.Data.ID != nil:
		return *r.Data.ID, nil
	}
	return 0, ErrNoID
}

type errorResponse struct {
	Message string `json:"message"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func errorMessage(status int, body []byte) string {
	var r errorResponse
	if json.Unmarshal(body, &r) == nil {
		if r.Message != "" {
			return r.Message
		}
		if r.Error != nil && r.Error.Message != "" {
			return r.Error.Message
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unknown error"
}
