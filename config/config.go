// file: config/config.go

package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Output formats understood by the file sink
const (
	FormatRaw            = "raw"
	FormatGitCredentials = "git-credentials"
)

// EnvPrefix is prepended to every configuration key when read from the environment
const EnvPrefix = "INSTALL_CREDENTIALS"

// LegacySecretsEnv is the variable the secrets blob has historically been supplied in
const LegacySecretsEnv = "OWLBOT_SECRETS"

// Config represents the complete install-credentials configuration
type Config struct {
	GitHub  GitHubConfig  `mapstructure:"github" yaml:"github"`
	Secrets string        `mapstructure:"secrets" yaml:"secrets"`
	Token   TokenConfig   `mapstructure:"token" yaml:"token"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	NATS    NATSConfig    `mapstructure:"nats" yaml:"nats"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Logging LogConfig     `mapstructure:"logging" yaml:"logging"`
}

// GitHubConfig describes the installation and the API used to mint tokens
type GitHubConfig struct {
	Installation int64         `mapstructure:"installation" yaml:"installation"`
	Token        string        `mapstructure:"token" yaml:"token"` // pre-issued token, skips the exchange
	APIURL       string        `mapstructure:"apiUrl" yaml:"apiUrl"`
	Host         string        `mapstructure:"host" yaml:"host"` // host written into git-credentials lines
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryMax     int           `mapstructure:"retryMax" yaml:"retryMax"`
	Verify       bool          `mapstructure:"verify" yaml:"verify"`
}

// TokenConfig controls the cached token lifetime
type TokenConfig struct {
	SafetyMargin time.Duration `mapstructure:"safetyMargin" yaml:"safetyMargin"`
}

// OutputConfig defines where the credential is written
type OutputConfig struct {
	Destination string `mapstructure:"destination" yaml:"destination"`
	Format      string `mapstructure:"format" yaml:"format"` // raw or git-credentials
	Stdout      bool   `mapstructure:"stdout" yaml:"stdout"`
}

// NATSConfig enables the optional KV sink
type NATSConfig struct {
	URLs         []string `mapstructure:"urls" yaml:"urls"`
	Bucket       string   `mapstructure:"bucket" yaml:"bucket"`
	Key          string   `mapstructure:"key" yaml:"key"`
	Username     string   `mapstructure:"username" yaml:"username"`
	Password     string   `mapstructure:"password" yaml:"password"`
	Token        string   `mapstructure:"token" yaml:"token"`
	NKeySeedFile string   `mapstructure:"nkeySeedFile" yaml:"nkeySeedFile"`
	CredsFile    string   `mapstructure:"credsFile" yaml:"credsFile"`

	TLS struct {
		Enable   bool   `mapstructure:"enable" yaml:"enable"`
		CertFile string `mapstructure:"certFile" yaml:"certFile"`
		KeyFile  string `mapstructure:"keyFile" yaml:"keyFile"`
		CAFile   string `mapstructure:"caFile" yaml:"caFile"`
		Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
	} `mapstructure:"tls" yaml:"tls"`
}

// Enabled reports whether the KV sink should be used
func (n NATSConfig) Enabled() bool {
	return n.Bucket != ""
}

// MetricsConfig controls Prometheus metrics. One-shot runs push to a
// Pushgateway; watch mode can also serve them on Address.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgatewayUrl" yaml:"pushgatewayUrl"`
	Job            string `mapstructure:"job" yaml:"job"`
	Address        string `mapstructure:"address" yaml:"address"`
	Path           string `mapstructure:"path" yaml:"path"`
}

// Enabled reports whether metrics should be pushed at the end of a run
func (m MetricsConfig) Enabled() bool {
	return m.PushgatewayURL != ""
}

// WatchConfig is used by the watch command only
type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Schedule string        `mapstructure:"schedule" yaml:"schedule"` // cron expression, overrides interval
}

// CronSchedule parses Schedule. It returns nil when no schedule is set.
func (w WatchConfig) CronSchedule() (cron.Schedule, error) {
	if w.Schedule == "" {
		return nil, nil
	}
	return cron.ParseStandard(w.Schedule)
}

// Period returns the longest gap between two watch runs. For a cron schedule
// it samples the next day of activations starting at from.
func (w WatchConfig) Period(from time.Time) time.Duration {
	sched, err := w.CronSchedule()
	if err != nil || sched == nil {
		return w.Interval
	}

	var longest time.Duration
	prev := sched.Next(from)
	for i := 0; i < maxScheduleSamples && prev.Sub(from) < 24*time.Hour; i++ {
		next := sched.Next(prev)
		if next.IsZero() {
			break
		}
		if gap := next.Sub(prev); gap > longest {
			longest = gap
		}
		prev = next
	}
	return longest
}

// maxScheduleSamples bounds Period for schedules that fire every minute
const maxScheduleSamples = 1440

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`           // debug, info, warn, error
	OutputPath string `mapstructure:"outputPath" yaml:"outputPath"` // file path, "stdout" or "stderr"
	Encoding   string `mapstructure:"encoding" yaml:"encoding"`     // json or console
}

// Load reads configuration from an optional file, the environment and the
// given flag set. Flags win over environment, environment over file.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.BindEnv("secrets", EnvPrefix+"_SECRETS", LegacySecretsEnv); err != nil {
		return nil, fmt.Errorf("failed to bind secrets env: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// flagKeys maps command-line flags onto configuration keys
var flagKeys = map[string]string{
	"installation":    "github.installation",
	"github-token":    "github.token",
	"api-url":         "github.apiUrl",
	"host":            "github.host",
	"timeout":         "github.timeout",
	"verify":          "github.verify",
	"destination":     "output.destination",
	"format":          "output.format",
	"stdout":          "output.stdout",
	"safety-margin":   "token.safetyMargin",
	"interval":        "watch.interval",
	"schedule":        "watch.schedule",
	"log-level":       "logging.level",
	"pushgateway-url": "metrics.pushgatewayUrl",
	"metrics-address": "metrics.address",
}

// bindFlags binds every known flag present in the set
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// setDefaults registers defaults so that every key is also reachable from the environment
func setDefaults(v *viper.Viper) {
	v.SetDefault("github.installation", 0)
	v.SetDefault("github.token", "")
	v.SetDefault("github.apiUrl", "https://api.github.com")
	v.SetDefault("github.host", "github.com")
	v.SetDefault("github.timeout", 30*time.Second)
	v.SetDefault("github.retryMax", 2)
	v.SetDefault("github.verify", false)

	v.SetDefault("token.safetyMargin", 60*time.Second)

	v.SetDefault("output.destination", "/workspace/.git-credentials")
	v.SetDefault("output.format", FormatRaw)
	v.SetDefault("output.stdout", false)

	v.SetDefault("nats.urls", []string{"nats://localhost:4222"})
	v.SetDefault("nats.bucket", "")
	v.SetDefault("nats.key", "")
	v.SetDefault("nats.username", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.token", "")
	v.SetDefault("nats.nkeySeedFile", "")
	v.SetDefault("nats.credsFile", "")
	v.SetDefault("nats.tls.enable", false)
	v.SetDefault("nats.tls.certFile", "")
	v.SetDefault("nats.tls.keyFile", "")
	v.SetDefault("nats.tls.caFile", "")
	v.SetDefault("nats.tls.insecure", false)

	v.SetDefault("metrics.pushgatewayUrl", "")
	v.SetDefault("metrics.job", "install_credentials")
	v.SetDefault("metrics.address", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("watch.interval", 5*time.Minute)
	v.SetDefault("watch.schedule", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.outputPath", "stderr")
}

// validate ensures configuration is valid. Credential sources are checked by
// the resolver, not here.
func validate(cfg *Config) error {
	// GitHub validation
	u, err := url.Parse(cfg.GitHub.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("github apiUrl must be an absolute http(s) URL, got '%s'", cfg.GitHub.APIURL)
	}
	cfg.GitHub.APIURL = strings.TrimRight(cfg.GitHub.APIURL, "/")
	if cfg.GitHub.Host == "" {
		return fmt.Errorf("github host cannot be empty")
	}
	if cfg.GitHub.Timeout <= 0 {
		return fmt.Errorf("github timeout must be positive")
	}
	if cfg.GitHub.RetryMax < 0 {
		return fmt.Errorf("github retryMax cannot be negative")
	}

	if cfg.Token.SafetyMargin < 0 {
		return fmt.Errorf("token safetyMargin cannot be negative")
	}

	// Output validation
	if cfg.Output.Format != FormatRaw && cfg.Output.Format != FormatGitCredentials {
		return fmt.Errorf("invalid output format '%s' (must be '%s' or '%s')",
			cfg.Output.Format, FormatRaw, FormatGitCredentials)
	}
	if cfg.Output.Destination == "" && !cfg.Output.Stdout && !cfg.NATS.Enabled() {
		return fmt.Errorf("no output configured: set a destination, stdout or a NATS bucket")
	}

	if err := validateNATS(&cfg.NATS); err != nil {
		return err
	}

	if cfg.Metrics.Enabled() && cfg.Metrics.Job == "" {
		return fmt.Errorf("metrics job cannot be empty when a pushgateway is configured")
	}
	if cfg.Metrics.Address != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/'")
	}

	if cfg.Watch.Interval <= 0 {
		return fmt.Errorf("watch interval must be positive")
	}
	if _, err := cfg.Watch.CronSchedule(); err != nil {
		return fmt.Errorf("invalid watch schedule '%s': %w", cfg.Watch.Schedule, err)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level '%s'", cfg.Logging.Level)
	}

	return nil
}

func validateNATS(cfg *NATSConfig) error {
	if !cfg.Enabled() {
		return nil
	}

	if len(cfg.URLs) == 0 {
		return fmt.Errorf("at least one NATS URL required")
	}
	if cfg.Key == "" {
		return fmt.Errorf("NATS key required when a bucket is configured")
	}

	// Auth method validation (only one allowed)
	authCount := 0
	if cfg.Username != "" {
		authCount++
	}
	if cfg.Token != "" {
		authCount++
	}
	if cfg.NKeySeedFile != "" {
		authCount++
	}
	if cfg.CredsFile != "" {
		authCount++
	}
	if authCount > 1 {
		return fmt.Errorf("only one NATS auth method allowed")
	}

	if cfg.TLS.Enable {
		if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile == "" {
			return fmt.Errorf("NATS TLS key file required when cert file provided")
		}
		if cfg.TLS.KeyFile != "" && cfg.TLS.CertFile == "" {
			return fmt.Errorf("NATS TLS cert file required when key file provided")
		}
	}

	if cfg.CredsFile != "" {
		if _, err := os.Stat(cfg.CredsFile); os.IsNotExist(err) {
			return fmt.Errorf("NATS creds file does not exist: %s", cfg.CredsFile)
		}
	}

	return nil
}
