package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc, mutate ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := Config{BaseURL: srv.URL + "/", RetryDelay: time.Millisecond}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestCreateClient(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/clients", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7,"name":"Acme"}`))
	})

	id, err := c.CreateClient(context.Background(), models.ClientRecord{
		Name: "Acme", Email: "a@acme.com", CNPJ: "12.345.678/0001-90", Active: true, InclusionDate: "2024-01-01",
		Backups: []models.BackupRecord{{Status: models.StatusSuccess}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, map[string]any{
		"name": "Acme", "email": "a@acme.com", "cnpj": "12.345.678/0001-90",
		"active": true, "inclusionDate": "2024-01-01",
	}, got)
}

func TestCreateBackup(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/backups", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"id":55}}`))
	})

	id, err := c.CreateBackup(context.Background(), models.BackupRecord{ClientID: 7, Status: models.StatusSuccess, SizeMB: 12.5})
	require.NoError(t, err)
	assert.Equal(t, int64(55), id)
	assert.Equal(t, float64(7), got["clientId"])
	assert.Equal(t, "SUCESSO", got["status"])
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"message field", http.StatusConflict, `{"message":"cnpj already registered"}`, "cnpj already registered"},
		{"nested error", http.StatusBadRequest, `{"error":{"message":"bad email"}}`, "bad email"},
		{"status text fallback", http.StatusInternalServerError, `oops`, "Internal Server Error"},
		{"empty body", http.StatusNotFound, ``, "Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.CreateClient(context.Background(), models.ClientRecord{Name: "x"})
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "got %v", err)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestMissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	_, err := c.CreateClient(context.Background(), models.ClientRecord{})
	assert.ErrorIs(t, err, ErrNoID)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.CreateClient(context.Background(), models.ClientRecord{})
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestNoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := c.CreateClient(context.Background(), models.ClientRecord{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetriesTemporaryFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":9}`))
	}, func(cfg *Config) { cfg.RetryAttempts = 3 })

	id, err := c.CreateClient(context.Background(), models.ClientRecord{})
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryGivesUpWithLastError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"slow down"}`))
	}, func(cfg *Config) { cfg.RetryAttempts = 2 })

	_, err := c.CreateClient(context.Background(), models.ClientRecord{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, "slow down", apiErr.Message)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPermanentFailuresAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, func(cfg *Config) { cfg.RetryAttempts = 5 })

	_, err := c.CreateClient(context.Background(), models.ClientRecord{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, func(cfg *Config) {
		cfg.BreakerFailures = 2
		cfg.BreakerCooldown = time.Hour
	})

	for i := 0; i < 5; i++ {
		_, err := c.CreateClient(context.Background(), models.ClientRecord{})
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
	}, func(cfg *Config) { cfg.BreakerFailures = 1 })

	for i := 0; i < 3; i++ {
		_, _ = c.CreateClient(context.Background(), models.ClientRecord{})
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestCancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1}`))
	}, func(cfg *Config) { cfg.RateLimit = 1 })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CreateClient(ctx, models.ClientRecord{})
	assert.Error(t, err)
}

func TestAPIErrorTemporary(t *testing.T) {
	for _, code := range []int{429, 502, 503, 504} {
		assert.True(t, (&APIError{StatusCode: code}).Temporary(), code)
	}
	for _, code := range []int{400, 404, 409, 500} {
		assert.False(t, (&APIError{StatusCode: code}).Temporary(), code)
	}
	assert.Equal(t, "HTTP 409: dup", (&APIError{StatusCode: 409, Message: "dup"}).Error())
}
