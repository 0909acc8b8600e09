package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "jobflow_db", cfg.Database.Database)
				assert.Equal(t, "jobs_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "jobs_dlx", cfg.RabbitMQ.DeadLetter.Exchange)
				assert.Equal(t, "jobs_dlq", cfg.RabbitMQ.DeadLetter.Queue)
				assert.Equal(t, 15*time.Minute, cfg.Jobs.StaleThreshold)
				assert.Equal(t, 3, cfg.Jobs.MaxReceiveCount)
				require.NotNil(t, cfg.Jobs.ReconcileOnStatus)
				assert.True(t, *cfg.Jobs.ReconcileOnStatus)
				assert.Equal(t, 5, cfg.Worker.Concurrency)
				assert.Equal(t, 3*time.Second, cfg.Poller.Intervals["analysis"])
				assert.Equal(t, 10*time.Second, cfg.Poller.Intervals["generation"])
				assert.Equal(t, 5*time.Second, cfg.Poller.DefaultInterval)
			}
		})
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load("testdata/minimal_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, DefaultStaleThreshold, cfg.Jobs.StaleThreshold)
	assert.Equal(t, DefaultMaxReceiveCount, cfg.Jobs.MaxReceiveCount)
	assert.Equal(t, DefaultWorkerConcurrency, cfg.Worker.Concurrency)
	assert.Equal(t, DefaultPollInterval, cfg.Poller.DefaultInterval)
	require.NotNil(t, cfg.Jobs.ReconcileOnStatus)
	assert.True(t, *cfg.Jobs.ReconcileOnStatus)
}

func validConfig() *Config {
	enabled := true
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "jobflow_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "jobs_exchange",
			},
			Queue: QueueConfig{
				Name: "jobs_queue",
			},
		},
		Worker: WorkerConfig{
			Concurrency:     5,
			JobTimeout:      5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Jobs: JobsConfig{
			StaleThreshold:    15 * time.Minute,
			ReconcileOnStatus: &enabled,
			MaxReceiveCount:   3,
		},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "missing database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "missing rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "missing exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "missing queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "non-positive stale threshold",
			mutate:    func(c *Config) { c.Jobs.StaleThreshold = 0 },
			wantErr:   true,
			errString: "stale_threshold must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "non-positive concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "non-positive job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = 0 },
			wantErr:   true,
			errString: "worker job_timeout must be greater than 0",
		},
		{
			name:      "non-positive shutdown timeout",
			mutate:    func(c *Config) { c.Worker.ShutdownTimeout = 0 },
			wantErr:   true,
			errString: "worker shutdown_timeout must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
