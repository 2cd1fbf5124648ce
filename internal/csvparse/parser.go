// Package csvparse reads client ingestion files. Each data row is one client
// organization; its last column holds a JSON array with the client's backups.
//
// Columns are positional and the header row is ignored:
//
//	id,name,email,cnpj,active,inclusionDate,backupsJson
package csvparse

import (
	"encoding/csv"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/models"
	"github.com/luizfilipeschaeffer/market-dashboard/internal/progress"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrTooFewLines  = errors.New("csv file must have a header and at least one data row")
)

const (
	colID = iota
	colName
	colEmail
	colCNPJ
	colActive
	colInclusionDate
	colBackups
)

var columnNames = [...]string{"id", "name", "email", "cnpj", "active", "inclusionDate"}

// Mode controls what happens to rows that lack a required field.
type Mode int

const (
	// SkipIncomplete drops rows missing name, email or cnpj with a warning.
	SkipIncomplete Mode = iota
	// KeepIncomplete keeps every row so a validator can report on it.
	KeepIncomplete
)

type Options struct {
	Mode Mode
	// SuccessToken is the raw backup status that maps to models.StatusSuccess.
	SuccessToken string
	Events       *progress.Emitter
}

// Result is the outcome of parsing one file.
type Result struct {
	Clients []models.ClientRecord
	// DataRows is the number of non-blank rows after the header.
	DataRows int
	// SkippedLines lists the file lines of rows dropped as incomplete.
	SkippedLines []int
}

type Parser struct {
	mode         Mode
	successToken string
	events       *progress.Emitter
}

func New(opts Options) *Parser {
	token := opts.SuccessToken
	if token == "" {
		token = models.DefaultSuccessToken
	}
	return &Parser{
		mode:         opts.Mode,
		successToken: token,
		events:       opts.Events,
	}
}

// ParseFile opens path and parses it.
func (p *Parser) ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(ErrFileNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	p.events.Infof("processing file: %s", path)
	return p.Parse(f)
}

// Parse reads every row from r. Row level problems are reported through the
// event emitter and never abort the parse; only an unreadable input or one
// with fewer than two non-blank rows is an error.
func (p *Parser) Parse(r io.Reader) (*Result, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, ErrTooFewLines
	}

	res := &Result{DataRows: len(rows) - 1}
	for _, row := range rows[1:] {
		client, ok := p.parseRow(row)
		if !ok {
			res.SkippedLines = append(res.SkippedLines, row.line)
			continue
		}
		res.Clients = append(res.Clients, client)
	}

	p.events.Infof("parsed %d clients with %d backups", len(res.Clients), models.BackupCount(res.Clients))
	return res, nil
}

type row struct {
	line    int
	endLine int
	fields  []string
}

func readRows(r io.Reader) ([]row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows []row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading csv")
		}
		if blank(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)
		last, _ := cr.FieldPos(len(rec) - 1)
		last += strings.Count(strings.TrimRight(rec[len(rec)-1], "\r\n"), "\n")
		rows = append(rows, row{line: line, endLine: last, fields: rec})
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func (p *Parser) parseRow(r row) (models.ClientRecord, bool) {
	client := models.ClientRecord{
		SourceID:      field(r.fields, colID),
		Name:          field(r.fields, colName),
		Email:         field(r.fields, colEmail),
		CNPJ:          field(r.fields, colCNPJ),
		Active:        strings.EqualFold(field(r.fields, colActive), "true"),
		InclusionDate: field(r.fields, colInclusionDate),
		Row:           r.line,
	}

	p.checkMultiline(r)

	if p.mode == SkipIncomplete && (client.Name == "" || client.Email == "" || client.CNPJ == "") {
		p.events.Warnf("line %d: incomplete data, skipping", r.line)
		return client, false
	}

	backups, err := p.ParseBackups(backupsColumn(r.fields))
	if err != nil {
		p.events.Warnf("line %d: could not parse backups: %v", r.line, err)
		backups = nil
	}
	client.Backups = backups
	return client, true
}

// checkMultiline warns when a column other than the backups JSON holds a
// line break. With lazy quoting an unbalanced quote swallows every following
// line into that field, so the warning names the lines that were merged.
func (p *Parser) checkMultiline(r row) {
	for i, name := range columnNames {
		if i < len(r.fields) && strings.ContainsAny(r.fields[i], "\r\n") {
			p.events.Warnf("line %d: %s spans lines %d-%d, an unbalanced quote may have merged rows",
				r.line, name, r.line, r.endLine)
			return
		}
	}
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return strings.TrimSpace(fields[i])
	}
	return ""
}

// backupsColumn returns the JSON column, defaulting to an empty array.
func backupsColumn(fields []string) string {
	if raw := field(fields, colBackups); raw != "" {
		return raw
	}
	return "[]"
}
