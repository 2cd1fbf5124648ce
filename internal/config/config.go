package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/luizfilipeschaeffer/market-dashboard/internal/ingest"
)

// EnvPrefix prefixes every environment override, e.g.
// BACKUP_LOADER_API_BASE_URL for api.base_url.
const EnvPrefix = "BACKUP_LOADER"

type Config struct {
	API     APIConfig
	Upload  UploadConfig
	Report  ReportConfig
	Log     LogConfig
	Journal JournalConfig
	Sandbox SandboxConfig
}

type APIConfig struct {
	BaseURL         string
	Timeout         time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
	RateLimit       float64
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
}

type UploadConfig struct {
	Policy          string // phased, interleaved
	ClientBatchSize int
	ClientDelay     time.Duration
	BackupBatchSize int
	BackupDelay     time.Duration
	ClientPause     time.Duration
	BackupPause     time.Duration
	SuccessToken    string
	Validate        bool
}

type ReportConfig struct {
	MaxErrors int
}

type LogConfig struct {
	Level  string
	Format string // console, json
}

type JournalConfig struct {
	Path string // empty disables the journal
}

type SandboxConfig struct {
	Host       string
	Port       int
	Mode       string // debug, release, test
	SQLitePath string
	FailEvery  int
}

// New returns a viper instance with every default set and environment
// overrides enabled. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.retry_attempts", 1)
	v.SetDefault("api.retry_delay", 500*time.Millisecond)
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("api.burst", 1)
	v.SetDefault("api.breaker_failures", 0)
	v.SetDefault("api.breaker_cooldown", 30*time.Second)

	// upload.client_batch_size and upload.client_delay default per policy,
	// see defaultsFor.
	v.SetDefault("upload.policy", "phased")
	v.SetDefault("upload.backup_batch_size", 20)
	v.SetDefault("upload.backup_delay", 100*time.Millisecond)
	v.SetDefault("upload.client_pause", 100*time.Millisecond)
	v.SetDefault("upload.backup_pause", 50*time.Millisecond)
	v.SetDefault("upload.success_token", "SUCESSO")
	v.SetDefault("upload.validate", false)

	v.SetDefault("report.max_errors", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("journal.path", "")

	v.SetDefault("sandbox.host", "0.0.0.0")
	v.SetDefault("sandbox.port", 8080)
	v.SetDefault("sandbox.mode", "debug")
	v.SetDefault("sandbox.sqlite_path", "./sandbox.db")
	v.SetDefault("sandbox.fail_every", 0)

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads file, or backup-loader.yaml from . or ./config when file is
// empty, and returns the merged configuration. A missing default file is
// not an error; a missing explicit file is.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("backup-loader")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config")
		}
	}

	uploadDefaults := defaultsFor(v)

	cfg := &Config{
		API: APIConfig{
			BaseURL:         v.GetString("api.base_url"),
			Timeout:         v.GetDuration("api.timeout"),
			RetryAttempts:   v.GetInt("api.retry_attempts"),
			RetryDelay:      v.GetDuration("api.retry_delay"),
			RateLimit:       v.GetFloat64("api.rate_limit"),
			Burst:           v.GetInt("api.burst"),
			BreakerFailures: v.GetInt("api.breaker_failures"),
			BreakerCooldown: v.GetDuration("api.breaker_cooldown"),
		},
		Upload: UploadConfig{
			Policy:          v.GetString("upload.policy"),
			ClientBatchSize: uploadDefaults.ClientBatchSize,
			ClientDelay:     uploadDefaults.ClientDelay,
			BackupBatchSize: v.GetInt("upload.backup_batch_size"),
			BackupDelay:     v.GetDuration("upload.backup_delay"),
			ClientPause:     v.GetDuration("upload.client_pause"),
			BackupPause:     v.GetDuration("upload.backup_pause"),
			SuccessToken:    v.GetString("upload.success_token"),
			Validate:        v.GetBool("upload.validate"),
		},
		Report: ReportConfig{
			MaxErrors: v.GetInt("report.max_errors"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Journal: JournalConfig{
			Path: v.GetString("journal.path"),
		},
		Sandbox: SandboxConfig{
			Host:       v.GetString("sandbox.host"),
			Port:       v.GetInt("sandbox.port"),
			Mode:       v.GetString("sandbox.mode"),
			SQLitePath: v.GetString("sandbox.sqlite_path"),
			FailEvery:  v.GetInt("sandbox.fail_every"),
		},
	}

	if cfg.API.BaseURL == "" {
		return nil, errors.New("api.base_url must not be empty")
	}
	if cfg.Report.MaxErrors < 0 {
		return nil, errors.Newf("report.max_errors must not be negative, got %d", cfg.Report.MaxErrors)
	}
	return cfg, nil
}

// defaultsFor returns the client pacing for the configured policy, with any
// explicitly set value taking precedence.
func defaultsFor(v *viper.Viper) ingest.Config {
	policy, err := ingest.ParsePolicy(v.GetString("upload.policy"))
	if err != nil {
		policy = ingest.PolicyPhased
	}
	d := ingest.DefaultConfig(policy)
	if v.IsSet("upload.client_batch_size") {
		d.ClientBatchSize = v.GetInt("upload.client_batch_size")
	}
	if v.IsSet("upload.client_delay") {
		d.ClientDelay = v.GetDuration("upload.client_delay")
	}
	return d
}
