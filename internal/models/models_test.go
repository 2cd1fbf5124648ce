package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, StatusSuccess, NormalizeStatus("SUCESSO", DefaultSuccessToken))
	assert.Equal(t, StatusFailure, NormalizeStatus("sucesso", DefaultSuccessToken))
	assert.Equal(t, StatusFailure, NormalizeStatus(" SUCESSO", DefaultSuccessToken))
	assert.Equal(t, StatusFailure, NormalizeStatus("", DefaultSuccessToken))
	assert.Equal(t, StatusSuccess, NormalizeStatus("OK", "OK"))
}

func TestWithClientIDCopies(t *testing.T) {
	b := BackupRecord{Status: StatusSuccess, SizeMB: 3}
	bound := b.WithClientID(101)
	assert.Equal(t, int64(101), bound.ClientID)
	assert.Zero(t, b.ClientID)
	assert.True(t, bound.Succeeded())
}

func TestClientRequestOmitsBackups(t *testing.T) {
	c := ClientRecord{
		Name: "Acme", Email: "a@acme.com", CNPJ: "12.345.678/0001-90", Active: true, InclusionDate: "2025-01-01",
		Backups: []BackupRecord{{}}, Row: 2, SourceID: "1",
	}
	raw, err := json.Marshal(c.Request())
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Acme","email":"a@acme.com","cnpj":"12.345.678/0001-90","active":true,"inclusionDate":"2025-01-01"}`, string(raw))

	assert.Equal(t, 3, BackupCount([]ClientRecord{{Backups: make([]BackupRecord, 2)}, {}, {Backups: make([]BackupRecord, 1)}}))
}

func TestBackupRecordJSON(t *testing.T) {
	raw, err := json.Marshal(BackupRecord{ClientID: 7, Status: StatusFailure, Message: "disk full", SizeMB: 1.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"clientId":7,"status":"FALHA","message":"disk full","vacuumExecuted":false,"sizeMb":1.5}`, string(raw))
}

func TestBackupDuration(t *testing.T) {
	start := time.Date(2025, 1, 15, 1, 0, 0, 0, time.UTC)
	end := start.Add(40 * time.Minute)

	assert.Equal(t, 40*time.Minute, BackupRecord{StartTime: &start, EndTime: &end}.Duration())
	assert.Zero(t, BackupRecord{StartTime: &start}.Duration())
	assert.Zero(t, BackupRecord{EndTime: &end}.Duration())
	assert.Zero(t, BackupRecord{}.Duration())
}
