package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/csvparse"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/progress"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/validation"
)

// ErrNoValidRecords is returned when a file parses but none of its rows can
// be uploaded.
var ErrNoValidRecords = errors.New("no valid client records found")

// ValidationError blocks an upload. Issues holds one line per problem.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "validation failed: " + e.Issues[0]
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Issues), strings.Join(e.Issues, "; "))
}

// RunFile parses path, dropping incomplete rows with a warning, and uploads
// what is left. Input problems are returned before anything is uploaded.
func (c *Coordinator) RunFile(ctx context.Context, path string) (*Summary, error) {
	parser := csvparse.New(csvparse.Options{
		Mode:         csvparse.SkipIncomplete,
		SuccessToken: c.cfg.SuccessToken,
		Events:       c.events,
	})
	res, err := parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if len(res.Clients) == 0 {
		return nil, errors.Wrapf(ErrNoValidRecords, "%s: %d data rows, all skipped", path, res.DataRows)
	}
	return c.Upload(ctx, res.Clients)
}

// RunValidated parses r keeping every row, runs the full validator and
// uploads only when no row has a problem. Stage and percentage are reported
// through tracker, which may be nil.
func (c *Coordinator) RunValidated(ctx context.Context, r io.Reader, tracker *progress.Tracker) (*Summary, error) {
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	run := *c
	run.sink = progress.Multi(c.sink, tracker)
	run.events = progress.NewEmitter(run.sink)
	run.OnProgress = func(done, total int) {
		if c.OnProgress != nil {
			c.OnProgress(done, total)
		}
		tracker.SetStage(progress.StageUploading, 10+float64(done)/float64(total)*90,
			fmt.Sprintf("uploaded %d of %d records", done, total))
	}

	tracker.SetStage(progress.StageProcessing, 0, "processing file")
	parser := csvparse.New(csvparse.Options{
		Mode:         csvparse.KeepIncomplete,
		SuccessToken: c.cfg.SuccessToken,
		Events:       run.events,
	})
	res, err := parser.Parse(r)
	if err != nil {
		tracker.Fail("could not read file", err.Error())
		return nil, err
	}
	if len(res.Clients) == 0 {
		tracker.Fail("no records found", ErrNoValidRecords.Error())
		return nil, ErrNoValidRecords
	}

	if issues := validation.New().Validate(res.Clients); len(issues) > 0 {
		for _, issue := range issues {
			run.events.Errorf("%s", issue)
		}
		verr := &ValidationError{Issues: issues}
		tracker.Fail(fmt.Sprintf("%d validation errors", len(issues)), strings.Join(issues, "\n"))
		return nil, verr
	}

	tracker.SetStage(progress.StageUploading, 10, fmt.Sprintf("uploading %d clients", len(res.Clients)))
	sum, err := run.Upload(ctx, res.Clients)
	if err != nil {
		tracker.Fail("upload interrupted", err.Error())
		return sum, err
	}
	tracker.SetStage(progress.StageCompleted, 100, fmt.Sprintf("%d of %d clients created",
		sum.Stats.ClientsCreated, sum.Stats.TotalClients))
	return sum, nil
}
