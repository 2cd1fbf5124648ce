package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/models"
)

func validClient() models.ClientRecord {
	return models.ClientRecord{
		Name:          "Acme",
		Email:         "a@b.co",
		CNPJ:          "12.345.678/0001-90",
		InclusionDate: "2025-01-01",
	}
}

func TestValidateMissingName(t *testing.T) {
	c := validClient()
	c.Name = ""

	errs := New().Validate([]models.ClientRecord{c})
	require.Len(t, errs, 1)
	assert.Equal(t, "row 1: name is required", errs[0])
}

func TestValidateValidRecord(t *testing.T) {
	assert.Empty(t, New().Validate([]models.ClientRecord{validClient()}))
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.ClientRecord)
		want   []string
	}{
		{
			name:   "blank name",
			mutate: func(c *models.ClientRecord) { c.Name = "   " },
			want:   []string{"row 1: name is required"},
		},
		{
			name:   "missing email",
			mutate: func(c *models.ClientRecord) { c.Email = "" },
			want:   []string{"row 1: email is required"},
		},
		{
			name:   "malformed email",
			mutate: func(c *models.ClientRecord) { c.Email = "acme.com" },
			want:   []string{"row 1: email is invalid"},
		},
		{
			name:   "email without tld",
			mutate: func(c *models.ClientRecord) { c.Email = "a@b" },
			want:   []string{"row 1: email is invalid"},
		},
		{
			name:   "missing cnpj",
			mutate: func(c *models.ClientRecord) { c.CNPJ = "" },
			want:   []string{"row 1: cnpj is required"},
		},
		{
			name:   "unpunctuated cnpj",
			mutate: func(c *models.ClientRecord) { c.CNPJ = "12345678000190" },
			want:   []string{"row 1: cnpj is invalid (expected format XX.XXX.XXX/XXXX-XX)"},
		},
		{
			name:   "missing inclusion date",
			mutate: func(c *models.ClientRecord) { c.InclusionDate = "" },
			want:   []string{"row 1: inclusionDate is required"},
		},
		{
			name: "several fields at once",
			mutate: func(c *models.ClientRecord) {
				c.Name = ""
				c.Email = "nope"
				c.CNPJ = "1.2.3"
				c.InclusionDate = " "
			},
			want: []string{
				"row 1: name is required",
				"row 1: email is invalid",
				"row 1: cnpj is invalid (expected format XX.XXX.XXX/XXXX-XX)",
				"row 1: inclusionDate is required",
			},
		},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validClient()
			tt.mutate(&c)
			assert.Equal(t, tt.want, v.Validate([]models.ClientRecord{c}))
		})
	}
}

func TestValidateRowNumbersFollowInputPosition(t *testing.T) {
	bad := validClient()
	bad.Email = "broken"
	clients := []models.ClientRecord{validClient(), bad, validClient(), bad}

	issues := New().Check(clients)
	require.Len(t, issues, 2)
	assert.Equal(t, Issue{Row: 2, Field: "email", Rule: "basic_email"}, issues[0])
	assert.Equal(t, 4, issues[1].Row)
}

func TestValidateIgnoresBackups(t *testing.T) {
	c := validClient()
	c.Backups = []models.BackupRecord{{Status: "whatever", SizeMB: -1}}
	assert.Empty(t, New().Validate([]models.ClientRecord{c}))
}
