package journal

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
)

// WriteRuns prints runs as a table. Start times are shown relative to now.
func WriteRuns(w io.Writer, runs []Run, now time.Time) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}

	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("RUN", "STARTED", "SOURCE", "POLICY", "CLIENTS", "BACKUPS", "SKIPPED", "DURATION")
	for _, r := range runs {
		table.AddRow(
			shortID(r.ID),
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			filepath.Base(r.Source),
			r.Policy,
			fmt.Sprintf("%s/%s", humanize.Comma(r.ClientsCreated), humanize.Comma(r.TotalClients)),
			fmt.Sprintf("%s/%s", humanize.Comma(r.BackupsCreated), humanize.Comma(r.TotalBackups)),
			humanize.Comma(r.BackupsSkipped),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		)
	}
	_, err := fmt.Fprintln(w, table)
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
