package models

import (
	"time"
)

// Status is the outcome of a backup job as reported by the backup agent.
type Status string

// Wire tokens understood by the dashboard API.
const (
	StatusSuccess Status = "SUCESSO"
	StatusFailure Status = "FALHA"
)

// DefaultSuccessToken is the raw status value that maps to StatusSuccess.
const DefaultSuccessToken = string(StatusSuccess)

// NormalizeStatus maps a raw status value to a Status. Only an exact match
// of successToken counts as a success.
func NormalizeStatus(raw, successToken string) Status {
	if raw == successToken {
		return StatusSuccess
	}
	return StatusFailure
}

// BackupRecord is a single backup execution attached to a client.
// ClientID is 0 until the parent client has been created on the server.
type BackupRecord struct {
	ClientID             int64      `json:"clientId"`
	Status               Status     `json:"status"`
	Message              string     `json:"message"`
	VacuumExecuted       bool       `json:"vacuumExecuted"`
	VacuumCompletionTime *time.Time `json:"vacuumCompletionTime,omitempty"`
	StartTime            *time.Time `json:"startTime,omitempty"`
	EndTime              *time.Time `json:"endTime,omitempty"`
	SizeMB               float64    `json:"sizeMb"`
}

// WithClientID returns a copy of the record bound to the given client id.
func (b BackupRecord) WithClientID(id int64) BackupRecord {
	b.ClientID = id
	return b
}

func (b BackupRecord) Succeeded() bool {
	return b.Status == StatusSuccess
}

// Duration is the time between StartTime and EndTime, or 0 when either is
// missing.
func (b BackupRecord) Duration() time.Duration {
	if b.StartTime == nil || b.EndTime == nil {
		return 0
	}
	return b.EndTime.Sub(*b.StartTime)
}
