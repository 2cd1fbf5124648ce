// Package generate writes synthetic ingestion files for load tests and demos.
package generate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	companyNames = []string{
		"Tech Solutions", "Inovação Digital", "Sistemas Integrados", "DataGuard Brasil", "Cloud Masters",
		"Alpha Data Center", "Beta Solutions", "Digital Systems", "TechCorp Brasil", "DataFlow Solutions",
		"CloudTech Brasil", "SecureData", "InfoSystems", "TechBridge Corp", "DataVault Brasil",
		"CloudFirst", "TechNova Solutions", "DataCore Systems", "CloudSecure", "DataStream Corp",
	}
	companySuffixes = []string{"Ltda", "S.A.", "ME", "EIRELI", "Corp"}
	failureMessages = []string{
		"connection refused by database host",
		"disk quota exceeded",
		"backup timed out",
		"checksum mismatch on upload",
	}
)

type Options struct {
	Clients    int
	MinBackups int
	MaxBackups int
	// SuccessRate is the share of backups marked successful, in [0, 1].
	SuccessRate float64
	// Start is the earliest backup time. Backups spread over Days days.
	Start time.Time
	Days  int
	Seed  uint64
	// SuccessToken is written as the status of successful backups.
	SuccessToken string
}

func DefaultOptions() Options {
	return Options{
		Clients:      100,
		MinBackups:   1,
		MaxBackups:   5,
		SuccessRate:  0.85,
		Start:        time.Now().AddDate(0, 0, -30).Truncate(24 * time.Hour),
		Days:         30,
		Seed:         1,
		SuccessToken: "SUCESSO",
	}
}

type backup struct {
	Status               string  `json:"status"`
	Message              string  `json:"message"`
	VacuumExecuted       bool    `json:"vacuumExecuted"`
	VacuumCompletionTime string  `json:"vacuumCompletionTime,omitempty"`
	StartTime            string  `json:"startTime"`
	EndTime              string  `json:"endTime"`
	SizeMB               float64 `json:"sizeMb"`
}

// Write generates opts.Clients rows plus a header and returns the number of
// backups written. Equal options produce identical output.
func Write(w io.Writer, opts Options) (int, error) {
	if opts.Clients < 0 || opts.MinBackups < 0 || opts.MaxBackups < opts.MinBackups {
		return 0, errors.Newf("invalid options: clients=%d backups=%d..%d", opts.Clients, opts.MinBackups, opts.MaxBackups)
	}
	if opts.Days <= 0 {
		opts.Days = 1
	}
	if opts.SuccessToken == "" {
		opts.SuccessToken = "SUCESSO"
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "name", "email", "cnpj", "active", "inclusionDate", "backups"}); err != nil {
		return 0, errors.Wrap(err, "writing header")
	}

	total := 0
	for i := 0; i < opts.Clients; i++ {
		name := fmt.Sprintf("%s %s %d", pick(rng, companyNames), pick(rng, companySuffixes), i+1)
		slug := strings.ToLower(strings.NewReplacer(" ", "", ".", "", "ç", "c", "ã", "a").Replace(name))
		inclusion := opts.Start.AddDate(0, 0, -rng.IntN(365))

		n := opts.MinBackups + rng.IntN(opts.MaxBackups-opts.MinBackups+1)
		backups := make([]backup, n)
		for j := range backups {
			backups[j] = randomBackup(rng, opts)
		}
		total += n

		raw, err := json.Marshal(backups)
		if err != nil {
			return total, errors.Wrap(err, "encoding backups")
		}
		rec := []string{
			fmt.Sprintf("clt_%03d", i+1),
			name,
			"contato@" + slug + ".com.br",
			CNPJ(rng),
			strconv.FormatBool(rng.Float64() < 0.8),
			inclusion.Format("2006-01-02"),
			string(raw),
		}
		if err := cw.Write(rec); err != nil {
			return total, errors.Wrapf(err, "writing client %d", i+1)
		}
	}

	cw.Flush()
	return total, errors.Wrap(cw.Error(), "flushing csv")
}

func randomBackup(rng *rand.Rand, opts Options) backup {
	start := opts.Start.
		AddDate(0, 0, rng.IntN(opts.Days)).
		Add(time.Duration(rng.IntN(24*60)) * time.Minute)
	end := start.Add(time.Duration(1+rng.IntN(120)) * time.Minute)

	b := backup{
		Status:    "FALHA",
		Message:   pick(rng, failureMessages),
		StartTime: start.UTC().Format(time.RFC3339),
		EndTime:   end.UTC().Format(time.RFC3339),
		SizeMB:    float64(rng.IntN(50000)) / 100,
	}
	if rng.Float64() < opts.SuccessRate {
		b.Status = opts.SuccessToken
		b.Message = "backup completed"
		if rng.IntN(2) == 0 {
			b.VacuumExecuted = true
			b.VacuumCompletionTime = end.Add(5 * time.Minute).UTC().Format(time.RFC3339)
		}
	}
	return b
}

// CNPJ returns a formatted CNPJ with valid check digits.
func CNPJ(rng *rand.Rand) string {
	d := make([]int, 12, 14)
	for i := range d {
		d[i] = rng.IntN(10)
	}
	d = append(d, checkDigit(d, []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}))
	d = append(d, checkDigit(d, []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}))
	return fmt.Sprintf("%d%d.%d%d%d.%d%d%d/%d%d%d%d-%d%d",
		d[0], d[1], d[2], d[3], d[4], d[5], d[6], d[7], d[8], d[9], d[10], d[11], d[12], d[13])
}

func checkDigit(digits, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += digits[i] * w
	}
	if r := sum % 11; r >= 2 {
		return 11 - r
	}
	return 0
}

func pick(rng *rand.Rand, list []string) string {
	return list[rng.IntN(len(list))]
}
