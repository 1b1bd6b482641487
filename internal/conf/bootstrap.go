// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with JOBGUARD_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or JOBGUARD_DATA_DATABASE_SOURCE: MySQL connection string
//
// Parameters:
//   - configPath: Path to the configuration file or directory
//
// Returns:
//   - *Bootstrap: Loaded configuration
//   - error: Configuration loading or validation error
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with JOBGUARD_ prefix
	v.SetEnvPrefix("JOBGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without JOBGUARD_ prefix) for compatibility
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "JOBGUARD_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "JOBGUARD_DATA_REDIS_ADDR")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	breakers, err := loadBreakers(v)
	if err != nil {
		return nil, err
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Guard: &Guard{
			Breakers: breakers,
			Pool: &Guard_Pool{
				MaxInstances:     v.GetInt32("guard.pool.max_instances"),
				AcquireTimeout:   durationpb.New(v.GetDuration("guard.pool.acquire_timeout")),
				OperationTimeout: durationpb.New(v.GetDuration("guard.pool.operation_timeout")),
			},
			Lock: &Guard_Lock{
				KeyPrefix: v.GetString("guard.lock.key_prefix"),
				Ttl:       durationpb.New(v.GetDuration("guard.lock.ttl")),
			},
			Retry: &Guard_Retry{
				Attempts: v.GetInt32("guard.retry.attempts"),
				Delay:    durationpb.New(v.GetDuration("guard.retry.delay")),
				Factor:   v.GetFloat64("guard.retry.factor"),
			},
			Quota: &Guard_Quota{
				Limit:    v.GetInt32("guard.quota.limit"),
				Window:   durationpb.New(v.GetDuration("guard.quota.window")),
				CacheTtl: durationpb.New(v.GetDuration("guard.quota.cache_ttl")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// breakerEntry is the file-level shape of one circuit breaker block.
type breakerEntry struct {
	Name             string        `mapstructure:"name"`
	FailureThreshold int32         `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	HalfOpenRequests int32         `mapstructure:"half_open_requests"`
}

// loadBreakers decodes the per-dependency circuit breaker list.
func loadBreakers(v *viper.Viper) ([]*Guard_Breaker, error) {
	var entries []breakerEntry
	if err := v.UnmarshalKey("guard.breakers", &entries); err != nil {
		return nil, fmt.Errorf("failed to parse guard.breakers: %w", err)
	}

	breakers := make([]*Guard_Breaker, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("guard.breakers entry is missing a name")
		}
		breakers = append(breakers, &Guard_Breaker{
			Name:             e.Name,
			FailureThreshold: e.FailureThreshold,
			ResetTimeout:     durationpb.New(e.ResetTimeout),
			HalfOpenRequests: e.HalfOpenRequests,
		})
	}

	return breakers, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Guard defaults
	v.SetDefault("guard.pool.max_instances", 3)
	v.SetDefault("guard.pool.acquire_timeout", 30*time.Second)
	v.SetDefault("guard.pool.operation_timeout", 5*time.Minute)

	v.SetDefault("guard.lock.key_prefix", "jobguard:lock:")
	v.SetDefault("guard.lock.ttl", 30*time.Minute)

	v.SetDefault("guard.retry.attempts", 3)
	v.SetDefault("guard.retry.delay", time.Second)
	v.SetDefault("guard.retry.factor", 2.0)

	v.SetDefault("guard.quota.limit", 20)
	v.SetDefault("guard.quota.window", 24*time.Hour)
	v.SetDefault("guard.quota.cache_ttl", 5*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	// Note: data.redis.addr is optional; without it the job lock runs on
	// process-local backing only.
	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	// Check required database configuration
	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	if bc.Guard != nil && bc.Guard.Quota != nil && bc.Guard.Quota.Limit < 0 {
		missingFields = append(missingFields, "guard.quota.limit (must not be negative)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}
