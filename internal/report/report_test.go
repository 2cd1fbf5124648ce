package report

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/stats"
)

func TestSuccessRate(t *testing.T) {
	assert.Equal(t, 0.0, SuccessRate(0, 0))
	assert.False(t, math.IsNaN(SuccessRate(0, 0)))
	assert.Equal(t, 0.0, SuccessRate(5, 0))
	assert.Equal(t, 100.0, SuccessRate(1, 1))
	assert.Equal(t, 50.0, SuccessRate(1, 2))
	assert.InDelta(t, 66.666, SuccessRate(2, 3), 0.001)
}

func TestRenderAllCreated(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	s := stats.Snapshot{
		StartedAt:      start,
		FinishedAt:     start.Add(1500 * time.Millisecond),
		TotalClients:   1,
		ClientsCreated: 1,
		TotalBackups:   1,
		BackupsCreated: 1,
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, s, Options{MaxErrors: DefaultMaxErrors}))
	out := buf.String()

	assert.Contains(t, out, "=== UPLOAD SUMMARY ===")
	assert.Contains(t, out, "success rate: 100.00%")
	assert.Contains(t, out, "backup success rate: 100.00%")
	assert.Contains(t, out, "elapsed: 1.5s")
	assert.NotContains(t, out, "ERRORS")
	assert.NotContains(t, out, "not sent")
	assert.Regexp(t, `clients\s+1\s+1\s+0`, out)
	assert.Regexp(t, `backups\s+1\s+1\s+0`, out)
}

func TestRenderZeroTotals(t *testing.T) {
	out := String(stats.Snapshot{}, Options{})
	assert.Contains(t, out, "success rate: 0.00%")
	assert.NotContains(t, out, "NaN")
	assert.NotContains(t, out, "elapsed")
}

func TestRenderCapsErrors(t *testing.T) {
	s := stats.Snapshot{TotalClients: 25, ClientsCreated: 10, ClientsFailed: 15, BackupsSkipped: 4}
	for i := 1; i <= 15; i++ {
		s.Errors = append(s.Errors, fmt.Sprintf("client %d: HTTP 500: boom", i))
	}

	out := String(s, Options{MaxErrors: 10})
	assert.Contains(t, out, "=== ERRORS (15) ===")
	assert.Contains(t, out, "10. client 10: HTTP 500: boom")
	assert.NotContains(t, out, "client 11:")
	assert.Contains(t, out, "... and 5 more")
	assert.Contains(t, out, "backups not sent (client not created): 4")
	assert.Contains(t, out, "success rate: 40.00%")
	assert.Len(t, s.Errors, 15, "the snapshot keeps every error")

	full := String(s, Options{})
	assert.Contains(t, full, "15. client 15: HTTP 500: boom")
	assert.False(t, strings.Contains(full, "more\n"))
}
