package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
dry_run = true

[azure]
client_id = "app-id"
client_secret = "secret"
tenant_id = "tenant"
subscription_id = "sub-1"
poll_interval = "10s"

[cleanup]
expiration_tag = "expires-on"
protect_tag = "DoNotDelete"
timer_expression = "0 0 * * * *"
timezone = "Europe/Amsterdam"

[audit]
connection_string = "UseDevelopmentStorage=true"
table = "Deleted"
local_path = "/var/lib/sweeper/audit.db"

[server]
addr = ":9090"

[otel]
endpoint = "localhost:4317"
insecure = true
service_name = "sweeper-test"

[otel.traces]
enabled = true
sample_rate = 0.5

[otel.metrics]
enabled = true

[log]
level = "debug"
format = "json"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)

	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "app-id", cfg.Azure.ClientID)
	assert.Equal(t, "secret", cfg.Azure.ClientSecret)
	assert.Equal(t, "tenant", cfg.Azure.TenantID)
	assert.Equal(t, "sub-1", cfg.Azure.SubscriptionID)
	assert.Equal(t, 10*time.Second, cfg.Azure.PollInterval)
	assert.Equal(t, "expires-on", cfg.Cleanup.ExpirationTag)
	assert.Equal(t, "DoNotDelete", cfg.Cleanup.ProtectTag)
	assert.Equal(t, "0 0 * * * *", cfg.Cleanup.TimerExpression)
	assert.Equal(t, "Europe/Amsterdam", cfg.Cleanup.Timezone)
	assert.Equal(t, "UseDevelopmentStorage=true", cfg.Audit.ConnectionString)
	assert.Equal(t, "Deleted", cfg.Audit.Table)
	assert.Equal(t, "/var/lib/sweeper/audit.db", cfg.Audit.LocalPath)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "localhost:4317", cfg.OTEL.Endpoint)
	assert.True(t, cfg.OTEL.Insecure)
	assert.Equal(t, "sweeper-test", cfg.OTEL.ServiceName)
	assert.True(t, cfg.OTEL.Traces.Enabled)
	assert.Equal(t, 0.5, cfg.OTEL.Traces.SampleRate)
	assert.True(t, cfg.OTEL.Metrics.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "ExpirationDate", cfg.Cleanup.ExpirationTag)
	assert.Equal(t, "0 */5 * * * *", cfg.Cleanup.TimerExpression)
	assert.Equal(t, "UTC", cfg.Cleanup.Timezone)
	assert.Equal(t, "RemovedResourceGroups", cfg.Audit.Table)
	assert.Equal(t, ":2112", cfg.Server.Addr)
	assert.Equal(t, "sweeper", cfg.OTEL.ServiceName)
	assert.Equal(t, 1.0, cfg.OTEL.Traces.SampleRate)
	assert.Equal(t, 30*time.Second, cfg.Azure.PollInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.False(t, cfg.DryRun)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("ClientId", "env-app")
	t.Setenv("ClientSecret", "env-secret")
	t.Setenv("TenantId", "env-tenant")
	t.Setenv("DefaultSubscriptionId", "env-sub")
	t.Setenv("ExpirationDateTagName", "ExpiresOn")
	t.Setenv("TimerExpression", "0 */10 * * * *")
	t.Setenv("StorageAccountConnectionString", "DefaultEndpointsProtocol=https;AccountName=x")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "env-app", cfg.Azure.ClientID)
	assert.Equal(t, "env-secret", cfg.Azure.ClientSecret)
	assert.Equal(t, "env-tenant", cfg.Azure.TenantID)
	assert.Equal(t, "env-sub", cfg.Azure.SubscriptionID)
	assert.Equal(t, "ExpiresOn", cfg.Cleanup.ExpirationTag)
	assert.Equal(t, "0 */10 * * * *", cfg.Cleanup.TimerExpression)
	assert.Equal(t, "DefaultEndpointsProtocol=https;AccountName=x", cfg.Audit.ConnectionString)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	content := `
[cleanup]
expiration_tag = "from-file"
timer_expression = "@every 1h"
`
	t.Setenv("ExpirationDateTagName", "from-env")
	path := writeTempConfig(t, content)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Cleanup.ExpirationTag)
	assert.Equal(t, "@every 1h", cfg.Cleanup.TimerExpression)
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	t.Setenv("SWEEPER_LOG_LEVEL", "warn")
	t.Setenv("SWEEPER_DRY_RUN", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.DryRun)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	require.Error(t, err)
}

func TestLoad_InvalidTOML(t *testing.T) {
	content := `
[azure
client_id = 
`
	path := writeTempConfig(t, content)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	content := `
[azure]
poll_interval = "not-a-duration"
`
	path := writeTempConfig(t, content)
	_, err := Load(path)
	require.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Azure: AzureConfig{
			ClientID:       "app",
			ClientSecret:   "secret",
			TenantID:       "tenant",
			SubscriptionID: "sub",
		},
		Cleanup: CleanupConfig{
			ExpirationTag:   "ExpirationDate",
			TimerExpression: "0 */5 * * * *",
			Timezone:        "UTC",
		},
		Audit: AuditConfig{ConnectionString: "UseDevelopmentStorage=true"},
		OTEL:  OTELConfig{Traces: TracesConfig{SampleRate: 1.0}},
	}
}

func TestConfig_Validate_Valid(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_MissingCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Azure.ClientSecret = ""
	cfg.Azure.TenantID = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ClientSecret, TenantId")
}

func TestConfig_Validate_EmptyTag(t *testing.T) {
	cfg := validConfig()
	cfg.Cleanup.ExpirationTag = ""
	assert.ErrorContains(t, cfg.Validate(), "ExpirationDateTagName")
}

func TestConfig_Validate_BadSchedule(t *testing.T) {
	cfg := validConfig()
	cfg.Cleanup.TimerExpression = "every five minutes"
	assert.ErrorContains(t, cfg.Validate(), "TimerExpression")
}

func TestConfig_Validate_BadTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.Cleanup.Timezone = "Mars/Olympus"
	assert.ErrorContains(t, cfg.Validate(), "timezone")
}

func TestConfig_Validate_NoAuditSink(t *testing.T) {
	cfg := validConfig()
	cfg.Audit = AuditConfig{}
	assert.ErrorContains(t, cfg.Validate(), "StorageAccountConnectionString")

	cfg.DryRun = true
	assert.NoError(t, cfg.Validate())

	cfg.DryRun = false
	cfg.Audit.LocalPath = filepath.Join(t.TempDir(), "audit.db")
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_SampleRate(t *testing.T) {
	cfg := validConfig()
	cfg.OTEL.Traces.SampleRate = 1.5
	assert.ErrorContains(t, cfg.Validate(), "sample_rate")
}

func TestSchedule_Expressions(t *testing.T) {
	from := time.Date(2024, 6, 15, 12, 0, 30, 0, time.UTC)

	tests := []struct {
		expr string
		next time.Time
	}{
		{"0 */5 * * * *", time.Date(2024, 6, 15, 12, 5, 0, 0, time.UTC)},
		{"*/5 * * * *", time.Date(2024, 6, 15, 12, 5, 0, 0, time.UTC)},
		{"30 0 3 * * *", time.Date(2024, 6, 16, 3, 0, 30, 0, time.UTC)},
		{"@every 1m", time.Date(2024, 6, 15, 12, 1, 30, 0, time.UTC)},
		{"@hourly", time.Date(2024, 6, 15, 13, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			cfg := validConfig()
			cfg.Cleanup.TimerExpression = tt.expr
			s, err := cfg.Schedule()
			require.NoError(t, err)
			assert.Equal(t, tt.next, s.Next(from))
		})
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}
