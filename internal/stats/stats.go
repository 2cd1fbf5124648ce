// Package stats accumulates the outcome of an ingestion run. All methods are
// safe to call from concurrently running batch workers.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind is the type of record an outcome belongs to.
type Kind int

const (
	KindClient Kind = iota
	KindBackup
)

func (k Kind) String() string {
	if k == KindBackup {
		return "backup"
	}
	return "client"
}

type counters struct {
	seen    atomic.Int64
	created atomic.Int64
	failed  atomic.Int64
}

type Aggregator struct {
	runID     string
	startedAt time.Time
	now       func() time.Time

	clients        counters
	backups        counters
	backupsSkipped atomic.Int64

	mu         sync.Mutex
	errors     []string
	finishedAt time.Time
}

func New() *Aggregator {
	return newWithClock(time.Now)
}

func newWithClock(now func() time.Time) *Aggregator {
	return &Aggregator{
		runID:     uuid.NewString(),
		startedAt: now(),
		now:       now,
	}
}

func (a *Aggregator) forKind(k Kind) *counters {
	if k == KindBackup {
		return &a.backups
	}
	return &a.clients
}

// AddSeen records n records of kind k as read from the input.
func (a *Aggregator) AddSeen(k Kind, n int) {
	a.forKind(k).seen.Add(int64(n))
}

func (a *Aggregator) RecordSuccess(k Kind) {
	a.forKind(k).created.Add(1)
}

// RecordFailure counts a failed record and appends msg to the error log.
func (a *Aggregator) RecordFailure(k Kind, msg string) {
	a.forKind(k).failed.Add(1)
	a.mu.Lock()
	a.errors = append(a.errors, msg)
	a.mu.Unlock()
}

// RecordSkipped counts backups that were never submitted because their
// client could not be created. They are not failures.
func (a *Aggregator) RecordSkipped(n int) {
	a.backupsSkipped.Add(int64(n))
}

// Finish stamps the end of the run. Later calls are ignored.
func (a *Aggregator) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finishedAt.IsZero() {
		a.finishedAt = a.now()
	}
}

// Snapshot is a consistent-enough copy of the counters: each value is read
// atomically and the error log is copied under its lock.
type Snapshot struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	TotalClients   int64 `json:"totalClients"`
	ClientsCreated int64 `json:"clientsCreated"`
	ClientsFailed  int64 `json:"clientsFailed"`

	TotalBackups   int64 `json:"totalBackups"`
	BackupsCreated int64 `json:"backupsCreated"`
	BackupsFailed  int64 `json:"backupsFailed"`
	BackupsSkipped int64 `json:"backupsSkipped"`

	Errors []string `json:"errors"`
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	errs := append([]string(nil), a.errors...)
	finished := a.finishedAt
	a.mu.Unlock()

	return Snapshot{
		RunID:          a.runID,
		StartedAt:      a.startedAt,
		FinishedAt:     finished,
		TotalClients:   a.clients.seen.Load(),
		ClientsCreated: a.clients.created.Load(),
		ClientsFailed:  a.clients.failed.Load(),
		TotalBackups:   a.backups.seen.Load(),
		BackupsCreated: a.backups.created.Load(),
		BackupsFailed:  a.backups.failed.Load(),
		BackupsSkipped: a.backupsSkipped.Load(),
		Errors:         errs,
	}
}

// Duration is the elapsed time of the run, measured up to now while the run
// is still going.
func (s Snapshot) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Failed reports whether any record failed.
func (s Snapshot) Failed() bool {
	return s.ClientsFailed > 0 || s.BackupsFailed > 0
}
