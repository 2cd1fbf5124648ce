// Package ingest uploads parsed client records, and the backups they carry,
// to the dashboard API.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/juju/clock"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/batch"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/models"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/progress"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/stats"
)

// Gateway creates records on the remote API and returns their ids.
type Gateway interface {
	CreateClient(ctx context.Context, client models.ClientRecord) (int64, error)
	CreateBackup(ctx context.Context, backup models.BackupRecord) (int64, error)
}

// Policy selects how clients and backups are scheduled.
type Policy string

const (
	// PolicyPhased creates every client in concurrent batches, then every
	// backup of the clients that were created.
	PolicyPhased Policy = "phased"
	// PolicyInterleaved walks the clients one at a time, creating each
	// client followed by its own backups.
	PolicyInterleaved Policy = "interleaved"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyPhased:
		return PolicyPhased, nil
	case PolicyInterleaved:
		return p, nil
	}
	return "", errors.Newf("unknown upload policy %q (want %q or %q)", s, PolicyPhased, PolicyInterleaved)
}

type Config struct {
	Policy Policy

	ClientBatchSize int
	ClientDelay     time.Duration
	BackupBatchSize int
	BackupDelay     time.Duration

	// ClientPause and BackupPause only apply to PolicyInterleaved: the wait
	// after each client and between two backups of the same client.
	ClientPause time.Duration
	BackupPause time.Duration

	// SuccessToken is the backup status that counts as a successful backup.
	SuccessToken string

	Clock clock.Clock
}

// DefaultConfig returns the pacing used for policy. Interleaved runs use
// smaller client slices with a longer wait between them.
func DefaultConfig(policy Policy) Config {
	cfg := Config{
		Policy:          PolicyPhased,
		ClientBatchSize: 10,
		ClientDelay:     100 * time.Millisecond,
		BackupBatchSize: 20,
		BackupDelay:     100 * time.Millisecond,
		ClientPause:     100 * time.Millisecond,
		BackupPause:     50 * time.Millisecond,
		SuccessToken:    models.DefaultSuccessToken,
	}
	if policy == PolicyInterleaved {
		cfg.Policy = PolicyInterleaved
		cfg.ClientBatchSize = 5
		cfg.ClientDelay = 200 * time.Millisecond
	}
	return cfg
}

// ClientResult pairs a client with the outcome of its create call.
type ClientResult struct {
	Client  models.ClientRecord
	Outcome batch.Outcome
}

// BackupResult pairs a submitted backup with its outcome. ClientIndex is the
// position of the owning client in the uploaded slice.
type BackupResult struct {
	Backup      models.BackupRecord
	ClientIndex int
	Outcome     batch.Outcome
}

type Summary struct {
	Policy  Policy
	Stats   stats.Snapshot
	Clients []ClientResult
	// Backups lists only the backups that were submitted.
	Backups []BackupResult
}

type Coordinator struct {
	gw     Gateway
	cfg    Config
	sink   progress.Sink
	events *progress.Emitter

	// OnProgress, if set, is called as records settle with the number of
	// records handled so far and the total number of records.
	OnProgress func(done, total int)
}

func New(gw Gateway, cfg Config, sink progress.Sink) *Coordinator {
	if cfg.Policy == "" {
		cfg.Policy = PolicyPhased
	}
	if cfg.SuccessToken == "" {
		cfg.SuccessToken = models.DefaultSuccessToken
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &Coordinator{
		gw:     gw,
		cfg:    cfg,
		sink:   sink,
		events: progress.NewEmitter(sink),
	}
}

// Upload sends clients and their backups to the API. Individual failures are
// counted in the summary and never abort the run. The returned error is set
// only when ctx ended before every record was handled; the summary is still
// complete in that case.
func (c *Coordinator) Upload(ctx context.Context, clients []models.ClientRecord) (*Summary, error) {
	agg := stats.New()
	agg.AddSeen(stats.KindClient, len(clients))
	agg.AddSeen(stats.KindBackup, models.BackupCount(clients))

	sum := &Summary{Policy: c.cfg.Policy}
	if len(clients) == 0 {
		c.events.Warnf("no clients to upload")
		agg.Finish()
		sum.Stats = agg.Snapshot()
		return sum, nil
	}

	run := &upload{
		Coordinator: c,
		agg:         agg,
		total:       len(clients) + models.BackupCount(clients),
	}
	c.events.Infof("uploading %d clients with %d backups (policy %s)", len(clients), run.total-len(clients), c.cfg.Policy)

	switch c.cfg.Policy {
	case PolicyInterleaved:
		run.interleaved(ctx, clients, sum)
	default:
		run.phased(ctx, clients, sum)
	}

	agg.Finish()
	sum.Stats = agg.Snapshot()
	c.events.Successf("upload finished: %d/%d clients, %d/%d backups created",
		sum.Stats.ClientsCreated, sum.Stats.TotalClients, sum.Stats.BackupsCreated, sum.Stats.TotalBackups)

	if err := ctx.Err(); err != nil {
		return sum, errors.Wrap(err, "upload interrupted")
	}
	return sum, nil
}

// upload holds the state of a single Upload call.
type upload struct {
	*Coordinator
	agg   *stats.Aggregator
	done  atomic.Int64
	total int
}

func (u *upload) advance(n int) {
	done := u.done.Add(int64(n))
	if u.OnProgress != nil {
		u.OnProgress(int(done), u.total)
	}
}

type pendingBackup struct {
	clientIndex int
	ordinal     int
	record      models.BackupRecord
}

func (u *upload) phased(ctx context.Context, clients []models.ClientRecord, sum *Summary) {
	u.events.Infof("phase 1: creating %d clients", len(clients))
	clientOut := batch.Run(ctx, clients, batch.Options{
		Size:    u.cfg.ClientBatchSize,
		Delay:   u.cfg.ClientDelay,
		Clock:   u.cfg.Clock,
		OnBatch: u.batchNotice("clients", len(clients), u.cfg.ClientBatchSize),
	}, func(ctx context.Context, client models.ClientRecord, _ int) (int64, error) {
		defer u.advance(1)
		return u.gw.CreateClient(ctx, client)
	})
	created, failed := batch.Count(clientOut)
	u.events.Infof("phase 1 done: %d clients created, %d failed", created, failed)

	var pending []pendingBackup
	for i, out := range clientOut {
		client := clients[i]
		sum.Clients = append(sum.Clients, ClientResult{Client: client, Outcome: out})
		if !u.recordClient(client, out) {
			u.skipBackups(client)
			continue
		}
		for j, b := range client.Backups {
			pending = append(pending, pendingBackup{clientIndex: i, ordinal: j + 1, record: b.WithClientID(out.ID)})
		}
	}

	if len(pending) == 0 {
		u.events.Infof("phase 2: no backups to create")
		return
	}
	u.events.Infof("phase 2: creating %d backups", len(pending))
	backupOut := batch.Run(ctx, pending, batch.Options{
		Size:    u.cfg.BackupBatchSize,
		Delay:   u.cfg.BackupDelay,
		Clock:   u.cfg.Clock,
		OnBatch: u.batchNotice("backups", len(pending), u.cfg.BackupBatchSize),
	}, func(ctx context.Context, p pendingBackup, _ int) (int64, error) {
		defer u.advance(1)
		return u.gw.CreateBackup(ctx, p.record)
	})
	created, failed = batch.Count(backupOut)
	u.events.Infof("phase 2 done: %d backups created, %d failed", created, failed)

	for i, out := range backupOut {
		p := pending[i]
		sum.Backups = append(sum.Backups, BackupResult{Backup: p.record, ClientIndex: p.clientIndex, Outcome: out})
		u.recordBackup(clients[p.clientIndex], p.ordinal, p.record, out)
	}
}

func (u *upload) interleaved(ctx context.Context, clients []models.ClientRecord, sum *Summary) {
	size := u.cfg.ClientBatchSize
	if size <= 0 {
		size = len(clients)
	}
	batches := (len(clients) + size - 1) / size

	for start, n := 0, 1; start < len(clients); start, n = start+size, n+1 {
		if start > 0 {
			u.pause(ctx, u.cfg.ClientDelay)
		}
		end := min(start+size, len(clients))
		u.events.Progressf("clients batch %d/%d (%d records)", n, batches, end-start)

		for i := start; i < end; i++ {
			client := clients[i]
			out := u.call(ctx, i, func(ctx context.Context) (int64, error) {
				return u.gw.CreateClient(ctx, client)
			})
			u.advance(1)
			sum.Clients = append(sum.Clients, ClientResult{Client: client, Outcome: out})
			if !u.recordClient(client, out) {
				u.skipBackups(client)
				continue
			}

			for j, b := range client.Backups {
				if j > 0 {
					u.pause(ctx, u.cfg.BackupPause)
				}
				b = b.WithClientID(out.ID)
				bout := u.call(ctx, len(sum.Backups), func(ctx context.Context) (int64, error) {
					return u.gw.CreateBackup(ctx, b)
				})
				u.advance(1)
				sum.Backups = append(sum.Backups, BackupResult{Backup: b, ClientIndex: i, Outcome: bout})
				u.recordBackup(client, j+1, b, bout)
			}
			if i < end-1 {
				u.pause(ctx, u.cfg.ClientPause)
			}
		}
	}
}

// call runs one sequential request, or fails it without calling when ctx is
// already done.
func (u *upload) call(ctx context.Context, index int, fn func(context.Context) (int64, error)) batch.Outcome {
	if err := ctx.Err(); err != nil {
		return batch.Outcome{Index: index, Err: errors.Wrap(err, "not started")}
	}
	id, err := fn(ctx)
	return batch.Outcome{Index: index, ID: id, Err: err}
}

func (u *upload) pause(ctx context.Context, d time.Duration) {
	if d <= 0 || ctx.Err() != nil {
		return
	}
	select {
	case <-ctx.Done():
	case <-u.cfg.Clock.After(d):
	}
}

func (u *upload) recordClient(client models.ClientRecord, out batch.Outcome) bool {
	if out.OK() {
		u.agg.RecordSuccess(stats.KindClient)
		u.events.Successf("client %q created (id %d)", client.Name, out.ID)
		return true
	}
	msg := fmt.Sprintf("client %s: %v", describe(client), out.Err)
	u.agg.RecordFailure(stats.KindClient, msg)
	u.events.Errorf("%s", msg)
	return false
}

func (u *upload) recordBackup(client models.ClientRecord, ordinal int, b models.BackupRecord, out batch.Outcome) {
	if out.OK() {
		u.agg.RecordSuccess(stats.KindBackup)
		if d := b.Duration(); d > 0 {
			u.events.Successf("backup %d of client %q created (id %d, ran %s)", ordinal, client.Name, out.ID, d)
		} else {
			u.events.Successf("backup %d of client %q created (id %d)", ordinal, client.Name, out.ID)
		}
		return
	}
	msg := fmt.Sprintf("backup %d of client %s: %v", ordinal, describe(client), out.Err)
	u.agg.RecordFailure(stats.KindBackup, msg)
	u.events.Errorf("%s", msg)
}

func (u *upload) skipBackups(client models.ClientRecord) {
	n := len(client.Backups)
	if n == 0 {
		return
	}
	u.agg.RecordSkipped(n)
	u.advance(n)
	u.events.Warnf("skipping %d backups of client %q: client was not created", n, client.Name)
}

func (u *upload) batchNotice(kind string, total, size int) func(int, int, int) {
	if size <= 0 || size > total {
		size = total
	}
	batches := (total + size - 1) / size
	return func(n, _, count int) {
		u.events.Progressf("%s batch %d/%d (%d records)", kind, n, batches, count)
	}
}

func describe(c models.ClientRecord) string {
	if c.Row > 0 {
		return fmt.Sprintf("%q (line %d)", c.Name, c.Row)
	}
	return fmt.Sprintf("%q", c.Name)
}
