package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "platform-bridge", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "7480", cfg.App.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, DefaultLoopbackPort, cfg.Integrations.DefaultPort)
		assert.Equal(t, "localhost", cfg.Integrations.Host)
		assert.Equal(t, "scripts/running.yaml", cfg.Discovery.ScriptsFile)
		assert.Equal(t, 60*time.Second, cfg.HTTP.WriteTimeout)
		assert.Equal(t, "platform-bridge", cfg.Telemetry.ServiceName)
		assert.False(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "memory", cfg.Cache.Driver)
		assert.Equal(t, 10*time.Minute, cfg.Cache.ReplayTTL)
		assert.Equal(t, 6379, cfg.Cache.Redis.Port)
		assert.Empty(t, cfg.HTTP.CORSAllowOrigins)
	})

	t.Run("loads values from environment variables with PBR prefix", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("PBR_APP_PORT", "9000")
		t.Setenv("PBR_LOG_LEVEL", "debug")
		t.Setenv("PBR_INTEGRATIONS_DEFAULT_PORT", "8111")
		t.Setenv("PBR_DISCOVERY_WATCH", "true")
		t.Setenv("PBR_HOME_CHAT_WEBHOOK_URL", "http://localhost:9999/chat")
		t.Setenv("PBR_CACHE_DRIVER", "redis")
		t.Setenv("PBR_CACHE_REDIS_HOST", "redis.internal")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 8111, cfg.Integrations.DefaultPort)
		assert.True(t, cfg.Discovery.Watch)
		assert.Equal(t, "http://localhost:9999/chat", cfg.Home.ChatWebhookURL)
		assert.Equal(t, "redis", cfg.Cache.Driver)
		assert.Equal(t, "redis.internal", cfg.Cache.Redis.Host)
	})

	t.Run("reads config.toml", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		content := `
[app]
name = "bridge-test"

[discovery]
scripts_file = "/var/lib/host/scripts.json"

[integrations]
settings_file = "/var/lib/host/settings.json"

[http]
cors_allow_origins = ["http://localhost:3000"]
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "bridge-test", cfg.App.Name)
		assert.Equal(t, "/var/lib/host/scripts.json", cfg.Discovery.ScriptsFile)
		assert.Equal(t, "/var/lib/host/settings.json", cfg.Integrations.SettingsFile)
		assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.CORSAllowOrigins)
	})

	t.Run("rejects postgres without dsn", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("PBR_DATABASE_DRIVER", "postgres")

		_, err := Load()
		assert.ErrorContains(t, err, "database.dsn")
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "database.driver"},
		{name: "idle exceeds open", mutate: func(c *Config) { c.Database.MaxIdleConns = 50 }, wantErr: "max_idle_conns"},
		{name: "port out of range", mutate: func(c *Config) { c.Integrations.DefaultPort = 70000 }, wantErr: "default_port"},
		{name: "unknown cache driver", mutate: func(c *Config) { c.Cache.Driver = "memcached" }, wantErr: "cache.driver"},
		{name: "sampling ratio out of range", mutate: func(c *Config) { c.Telemetry.SamplingRatio = 1.5 }, wantErr: "sampling_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
