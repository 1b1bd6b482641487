package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBootstrap_Defaults(t *testing.T) {
	// Create a minimal valid config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `data:
  database:
    driver: mysql
  redis:
    addr: 127.0.0.1:6379
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Set required environment variables
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/testdb")

	// Load configuration
	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)
	require.NotNil(t, bc)

	// Verify guard defaults
	assert.Empty(t, bc.Guard.Breakers)
	assert.Equal(t, int32(3), bc.Guard.Pool.MaxInstances)
	assert.Equal(t, 30*time.Second, bc.Guard.Pool.AcquireTimeout.AsDuration())
	assert.Equal(t, 5*time.Minute, bc.Guard.Pool.OperationTimeout.AsDuration())

	assert.Equal(t, "jobguard:lock:", bc.Guard.Lock.KeyPrefix)
	assert.Equal(t, 30*time.Minute, bc.Guard.Lock.Ttl.AsDuration())

	assert.Equal(t, int32(3), bc.Guard.Retry.Attempts)
	assert.Equal(t, time.Second, bc.Guard.Retry.Delay.AsDuration())
	assert.Equal(t, 2.0, bc.Guard.Retry.Factor)

	assert.Equal(t, int32(20), bc.Guard.Quota.Limit)
	assert.Equal(t, 24*time.Hour, bc.Guard.Quota.Window.AsDuration())
	assert.Equal(t, 5*time.Second, bc.Guard.Quota.CacheTtl.AsDuration())

	// Verify data defaults
	assert.Equal(t, "mysql", bc.Data.Database.Driver)
	assert.Equal(t, "user:pass@tcp(localhost:3306)/testdb", bc.Data.Database.Source)

	assert.Equal(t, "127.0.0.1:6379", bc.Data.Redis.Addr)
	assert.Equal(t, "tcp", bc.Data.Redis.Network)
	assert.Equal(t, 200*time.Millisecond, bc.Data.Redis.ReadTimeout.AsDuration())
	assert.Equal(t, 200*time.Millisecond, bc.Data.Redis.WriteTimeout.AsDuration())

	// Verify log defaults
	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

func TestNewBootstrap_Breakers(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `guard:
  breakers:
    - name: scraper-browser
      failure_threshold: 3
      reset_timeout: 60s
      half_open_requests: 2
    - name: outreach-api
      failure_threshold: 5
      reset_timeout: 2m
      half_open_requests: 1
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/testdb")

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)
	require.Len(t, bc.Guard.Breakers, 2)

	assert.Equal(t, "scraper-browser", bc.Guard.Breakers[0].Name)
	assert.Equal(t, int32(3), bc.Guard.Breakers[0].FailureThreshold)
	assert.Equal(t, time.Minute, bc.Guard.Breakers[0].ResetTimeout.AsDuration())
	assert.Equal(t, int32(2), bc.Guard.Breakers[0].HalfOpenRequests)

	assert.Equal(t, "outreach-api", bc.Guard.Breakers[1].Name)
	assert.Equal(t, 2*time.Minute, bc.Guard.Breakers[1].ResetTimeout.AsDuration())
}

func TestNewBootstrap_BreakerMissingName(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `guard:
  breakers:
    - failure_threshold: 3
      reset_timeout: 60s
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/testdb")

	bc, err := NewBootstrap(configPath)
	assert.Error(t, err)
	assert.Nil(t, bc)
	assert.Contains(t, err.Error(), "missing a name")
}

func TestNewBootstrap_EnvOverrides(t *testing.T) {
	tests := []struct {
		name        string
		envVars     map[string]string
		expectedVal func(*Bootstrap) bool
		description string
	}{
		{
			name: "override_redis_addr",
			envVars: map[string]string{
				"JOBGUARD_DATA_REDIS_ADDR": "redis.example.com:6379",
				"MYSQL_DSN":                "user:pass@tcp(localhost:3306)/testdb",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Data.Redis.Addr == "redis.example.com:6379"
			},
			description: "JOBGUARD_DATA_REDIS_ADDR should override default",
		},
		{
			name: "override_log_level",
			envVars: map[string]string{
				"JOBGUARD_LOG_LEVEL": "debug",
				"MYSQL_DSN":          "user:pass@tcp(localhost:3306)/testdb",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Log.Level == "debug"
			},
			description: "JOBGUARD_LOG_LEVEL should override default info",
		},
		{
			name: "override_quota_limit",
			envVars: map[string]string{
				"JOBGUARD_GUARD_QUOTA_LIMIT": "50",
				"MYSQL_DSN":                  "user:pass@tcp(localhost:3306)/testdb",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Guard.Quota.Limit == 50
			},
			description: "JOBGUARD_GUARD_QUOTA_LIMIT should override default 20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create minimal config file
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")

			configContent := `data:
  redis:
    addr: 127.0.0.1:6379
`
			err := os.WriteFile(configPath, []byte(configContent), 0644)
			require.NoError(t, err)

			// Set environment variables
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			// Load configuration
			bc, err := NewBootstrap(configPath)
			require.NoError(t, err, tt.description)
			require.NotNil(t, bc)

			// Verify expected override
			assert.True(t, tt.expectedVal(bc), tt.description)
		})
	}
}

func TestNewBootstrap_MissingRequired(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `log:
  level: info
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Clear all relevant environment variables first to ensure isolation
	os.Unsetenv("MYSQL_DSN")
	os.Unsetenv("JOBGUARD_DATA_DATABASE_SOURCE")

	bc, err := NewBootstrap(configPath)
	assert.Error(t, err, "Expected error for missing required fields")
	assert.Nil(t, bc, "Bootstrap should be nil when validation fails")
	assert.Contains(t, err.Error(), "data.database.source (MYSQL_DSN)")
}

func TestNewBootstrap_ConfigFileNotFound(t *testing.T) {
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/testdb")

	bc, err := NewBootstrap("/non/existent/config.yaml")
	assert.Error(t, err)
	assert.Nil(t, bc)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestNewBootstrap_EmptyConfigPath(t *testing.T) {
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/testdb")

	// Load with empty config path (should use defaults + env vars)
	bc, err := NewBootstrap("")
	require.NoError(t, err)
	require.NotNil(t, bc)

	assert.Equal(t, "user:pass@tcp(localhost:3306)/testdb", bc.Data.Database.Source)
	assert.Equal(t, int32(3), bc.Guard.Pool.MaxInstances)
	// Redis stays unconfigured without an explicit address.
	assert.Empty(t, bc.Data.Redis.Addr)
}

func TestNewBootstrap_PriorityOrder(t *testing.T) {
	// Create config file with one value
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `guard:
  quota:
    limit: 10
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Set environment variable that should override file value
	t.Setenv("JOBGUARD_GUARD_QUOTA_LIMIT", "40")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/testdb")

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)
	require.NotNil(t, bc)

	// Environment variable should win over file value
	assert.Equal(t, int32(40), bc.Guard.Quota.Limit, "Environment variable should override config file")
}

func TestValidate_AllFieldsPresent(t *testing.T) {
	bc := &Bootstrap{
		Guard: &Guard{
			Quota: &Guard_Quota{Limit: 20},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: "mysql",
				Source: "user:pass@tcp(localhost:3306)/testdb",
			},
			Redis: &Data_Redis{Addr: "127.0.0.1:6379"},
		},
		Log: &Log{
			Level:  "info",
			Format: "json",
		},
	}

	err := Validate(bc)
	assert.NoError(t, err)
}

func TestValidate_NilBootstrap(t *testing.T) {
	err := Validate(&Bootstrap{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing required configuration fields")
}
