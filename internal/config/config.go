// Package config loads Sweeper configuration from the environment and an optional TOML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// ScheduleParser accepts 5-field cron, 6-field cron with leading seconds,
// and descriptors such as "@every 5m".
var ScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Config is the root configuration structure.
type Config struct {
	Azure   AzureConfig   `mapstructure:"azure"`
	Cleanup CleanupConfig `mapstructure:"cleanup"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Server  ServerConfig  `mapstructure:"server"`
	OTEL    OTELConfig    `mapstructure:"otel"`
	Log     LogConfig     `mapstructure:"log"`
	DryRun  bool          `mapstructure:"dry_run"`
}

// AzureConfig holds the service principal and subscription.
type AzureConfig struct {
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	TenantID       string        `mapstructure:"tenant_id"`
	SubscriptionID string        `mapstructure:"subscription_id"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// CleanupConfig holds the expiration policy and trigger.
type CleanupConfig struct {
	ExpirationTag   string `mapstructure:"expiration_tag"`
	ProtectTag      string `mapstructure:"protect_tag"`
	TimerExpression string `mapstructure:"timer_expression"`
	Timezone        string `mapstructure:"timezone"`
}

// AuditConfig holds audit log destinations.
type AuditConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Table            string `mapstructure:"table"`
	LocalPath        string `mapstructure:"local_path"`
}

// ServerConfig holds the metrics and health HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Insecure    bool          `mapstructure:"insecure"`
	ServiceName string        `mapstructure:"service_name"`
	Traces      TracesConfig  `mapstructure:"traces"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// MetricsConfig holds OTLP metrics push settings. Prometheus scraping is always on.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings maps config keys to the environment variables that set them.
// The first name of each entry is the host-compatible setting name.
var envBindings = map[string][]string{
	"azure.client_id":          {"ClientId", "SWEEPER_AZURE_CLIENT_ID"},
	"azure.client_secret":      {"ClientSecret", "SWEEPER_AZURE_CLIENT_SECRET"},
	"azure.tenant_id":          {"TenantId", "SWEEPER_AZURE_TENANT_ID"},
	"azure.subscription_id":    {"DefaultSubscriptionId", "SWEEPER_AZURE_SUBSCRIPTION_ID"},
	"azure.poll_interval":      {"SWEEPER_AZURE_POLL_INTERVAL"},
	"cleanup.expiration_tag":   {"ExpirationDateTagName", "SWEEPER_CLEANUP_EXPIRATION_TAG"},
	"cleanup.protect_tag":      {"ProtectTagName", "SWEEPER_CLEANUP_PROTECT_TAG"},
	"cleanup.timer_expression": {"TimerExpression", "SWEEPER_CLEANUP_TIMER_EXPRESSION"},
	"cleanup.timezone":         {"SWEEPER_CLEANUP_TIMEZONE"},
	"audit.connection_string":  {"StorageAccountConnectionString", "SWEEPER_AUDIT_CONNECTION_STRING"},
	"audit.table":              {"SWEEPER_AUDIT_TABLE"},
	"audit.local_path":         {"SWEEPER_AUDIT_LOCAL_PATH"},
	"server.addr":              {"SWEEPER_SERVER_ADDR"},
	"otel.endpoint":            {"OTEL_EXPORTER_OTLP_ENDPOINT", "SWEEPER_OTEL_ENDPOINT"},
	"otel.service_name":        {"OTEL_SERVICE_NAME", "SWEEPER_OTEL_SERVICE_NAME"},
	"log.level":                {"SWEEPER_LOG_LEVEL"},
	"log.format":               {"SWEEPER_LOG_FORMAT"},
	"dry_run":                  {"SWEEPER_DRY_RUN"},
}

// Load reads configuration. path may be empty; environment values win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.Cleanup.ExpirationTag = strings.TrimSpace(cfg.Cleanup.ExpirationTag)
	cfg.Cleanup.TimerExpression = strings.TrimSpace(cfg.Cleanup.TimerExpression)

	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("azure.poll_interval", 30*time.Second)
	v.SetDefault("cleanup.expiration_tag", "ExpirationDate")
	v.SetDefault("cleanup.timer_expression", "0 */5 * * * *")
	v.SetDefault("cleanup.timezone", "UTC")
	v.SetDefault("audit.table", "RemovedResourceGroups")
	v.SetDefault("server.addr", ":2112")
	v.SetDefault("otel.service_name", "sweeper")
	v.SetDefault("otel.traces.sample_rate", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	var missing []string
	if c.Azure.ClientID == "" {
		missing = append(missing, "ClientId")
	}
	if c.Azure.ClientSecret == "" {
		missing = append(missing, "ClientSecret")
	}
	if c.Azure.TenantID == "" {
		missing = append(missing, "TenantId")
	}
	if c.Azure.SubscriptionID == "" {
		missing = append(missing, "DefaultSubscriptionId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("azure: missing %s", strings.Join(missing, ", "))
	}

	if c.Cleanup.ExpirationTag == "" {
		return fmt.Errorf("cleanup: ExpirationDateTagName must not be empty")
	}
	if _, err := c.Schedule(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if !c.DryRun && c.Audit.ConnectionString == "" && c.Audit.LocalPath == "" {
		return fmt.Errorf("audit: StorageAccountConnectionString or audit.local_path required")
	}

	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}

// Schedule parses the timer expression.
func (c *Config) Schedule() (cron.Schedule, error) {
	s, err := ScheduleParser.Parse(c.Cleanup.TimerExpression)
	if err != nil {
		return nil, fmt.Errorf("cleanup: parse TimerExpression %q: %w", c.Cleanup.TimerExpression, err)
	}
	return s, nil
}

// Location loads the zone used for expiration tags without an offset.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Cleanup.Timezone)
	if err != nil {
		return nil, fmt.Errorf("cleanup: load timezone %q: %w", c.Cleanup.Timezone, err)
	}
	return loc, nil
}
