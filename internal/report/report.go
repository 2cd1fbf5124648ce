// Package report renders the summary printed at the end of an ingestion run.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/stats"
)

// DefaultMaxErrors is how many errors the CLI lists before summarizing the rest.
const DefaultMaxErrors = 10

type Options struct {
	// MaxErrors caps the number of listed errors. Zero lists them all.
	MaxErrors int
}

// SuccessRate returns created/total as a percentage, or 0 when total is 0.
func SuccessRate(created, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(created) / float64(total) * 100
}

// Render writes the summary of s to w.
func Render(w io.Writer, s stats.Snapshot, opts Options) error {
	_, err := io.WriteString(w, String(s, opts))
	return err
}

func String(s stats.Snapshot, opts Options) string {
	var b strings.Builder

	b.WriteString("=== UPLOAD SUMMARY ===\n")
	table := uitable.New()
	table.AddRow("", "TOTAL", "CREATED", "FAILED")
	table.AddRow("clients", humanize.Comma(s.TotalClients), humanize.Comma(s.ClientsCreated), humanize.Comma(s.ClientsFailed))
	table.AddRow("backups", humanize.Comma(s.TotalBackups), humanize.Comma(s.BackupsCreated), humanize.Comma(s.BackupsFailed))
	b.WriteString(table.String())
	b.WriteString("\n")

	if s.BackupsSkipped > 0 {
		fmt.Fprintf(&b, "backups not sent (client not created): %s\n", humanize.Comma(s.BackupsSkipped))
	}
	fmt.Fprintf(&b, "success rate: %.2f%%\n", SuccessRate(s.ClientsCreated, s.TotalClients))
	fmt.Fprintf(&b, "backup success rate: %.2f%%\n", SuccessRate(s.BackupsCreated, s.TotalBackups))
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "elapsed: %s\n", s.Duration().Round(time.Millisecond))
	}

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "\n=== ERRORS (%d) ===\n", len(s.Errors))
		shown := s.Errors
		if opts.MaxErrors > 0 && len(shown) > opts.MaxErrors {
			shown = shown[:opts.MaxErrors]
		}
		for i, e := range shown {
			fmt.Fprintf(&b, "%d. %s\n", i+1, e)
		}
		if rest := len(s.Errors) - len(shown); rest > 0 {
			fmt.Fprintf(&b, "... and %d more\n", rest)
		}
	}
	return b.String()
}
