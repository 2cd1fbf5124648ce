package models

// ClientRecord is one client organization read from an ingestion file.
type ClientRecord struct {
	Name          string
	Email         string
	CNPJ          string
	Active        bool
	InclusionDate string
	Backups       []BackupRecord

	// Row is the 1-based line of the source file the record started on.
	Row int
	// SourceID is the id column of the source file. It is never sent to the API.
	SourceID string
}

// ClientRequest is the body of POST /api/clients.
type ClientRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	CNPJ          string `json:"cnpj"`
	Active        bool   `json:"active"`
	InclusionDate string `json:"inclusionDate"`
}

// Request strips the record down to what the create endpoint accepts.
func (c ClientRecord) Request() ClientRequest {
	return ClientRequest{
		Name:          c.Name,
		Email:         c.Email,
		CNPJ:          c.CNPJ,
		Active:        c.Active,
		InclusionDate: c.InclusionDate,
	}
}

// BackupCount returns the total number of backups carried by the clients.
func BackupCount(clients []ClientRecord) int {
	n := 0
	for _, c := range clients {
		n += len(c.Backups)
	}
	return n
}
