package csvparse

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/models"
)

// rawBackup accepts both the English keys and the Portuguese keys used by
// the dashboard API, so exports taken straight from the API load as-is.
type rawBackup struct {
	Status any `json:"status"`

	Message  *string `json:"message"`
	Mensagem *string `json:"mensagem"`

	VacuumExecuted  *bool `json:"vacuumExecuted"`
	VacuumExecutado *bool `json:"vacuumExecutado"`

	VacuumCompletionTime string `json:"vacuumCompletionTime"`
	VacuumDataExecucao   string `json:"vacuumDataExecucao"`
	StartTime            string `json:"startTime"`
	DataInicio           string `json:"dataInicio"`
	EndTime              string `json:"endTime"`
	DataFim              string `json:"dataFim"`

	SizeMB      *float64 `json:"sizeMb"`
	TamanhoEmMb *float64 `json:"tamanhoEmMb"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseBackups decodes the JSON backups column. Every returned record has
// ClientID 0. A malformed document is an error; callers treat it as a
// row without backups.
func (p *Parser) ParseBackups(raw string) ([]models.BackupRecord, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var items []rawBackup
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, errors.Wrap(err, "decoding backups json")
	}

	backups := make([]models.BackupRecord, 0, len(items))
	for i, item := range items {
		b, err := p.backupFromRaw(item)
		if err != nil {
			return nil, errors.Wrapf(err, "backup %d", i+1)
		}
		backups = append(backups, b)
	}
	return backups, nil
}

func (p *Parser) backupFromRaw(item rawBackup) (models.BackupRecord, error) {
	status, _ := item.Status.(string)
	b := models.BackupRecord{
		Status:         models.NormalizeStatus(status, p.successToken),
		Message:        firstString(item.Message, item.Mensagem),
		VacuumExecuted: firstBool(item.VacuumExecuted, item.VacuumExecutado),
		SizeMB:         firstFloat(item.SizeMB, item.TamanhoEmMb),
	}

	var err error
	if b.VacuumCompletionTime, err = parseTime(item.VacuumCompletionTime, item.VacuumDataExecucao); err != nil {
		return b, errors.Wrap(err, "vacuumCompletionTime")
	}
	if b.StartTime, err = parseTime(item.StartTime, item.DataInicio); err != nil {
		return b, errors.Wrap(err, "startTime")
	}
	if b.EndTime, err = parseTime(item.EndTime, item.DataFim); err != nil {
		return b, errors.Wrap(err, "endTime")
	}
	return b, nil
}

// parseTime returns the first non-empty candidate as a timestamp, or nil
// when all candidates are empty.
func parseTime(candidates ...string) (*time.Time, error) {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return &t, nil
			}
		}
		return nil, errors.Newf("unrecognized timestamp %q", c)
	}
	return nil, nil
}

func firstString(vals ...*string) string {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return ""
}

func firstBool(vals ...*bool) bool {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return false
}

func firstFloat(vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}
