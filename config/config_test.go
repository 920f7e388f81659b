package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "3000", env.Port)
	assert.Equal(t, "memory", env.StorageDriver)
	assert.Equal(t, "default", env.TenantEntityID)
	assert.Equal(t, AdmissionDefaults{
		GlobalMaxConcurrentUsers: 5,
		TimeoutWindowMinutes:     30,
		HeartbeatIntervalSeconds: 60,
		ValidatorTimeoutSeconds:  3,
		ReaperIntervalSeconds:    300,
	}, env.Defaults())
}

func TestLoadEnv_EnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("PORT", "8081")
	t.Setenv("GLOBAL_MAX_CONCURRENT_USERS", "12")
	t.Setenv("TIMEOUT_WINDOW_MINUTES", "10")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "8081", env.Port)
	assert.Equal(t, "memory", env.StorageDriver)
	assert.Equal(t, 12, env.Defaults().GlobalMaxConcurrentUsers)
	assert.Equal(t, 10, env.Defaults().TimeoutWindowMinutes)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, env.KafkaBrokerList())
}

func TestLoadEnv_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "admission.yaml")
	require.NoError(t, os.WriteFile(file, []byte("admission:\n  globalMaxConcurrentUsers: 7\n  timeoutWindowMinutes: 15\n"), 0o600))
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("CONFIG_FILE", file)

	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, 7, env.Defaults().GlobalMaxConcurrentUsers)
	assert.Equal(t, 15, env.Defaults().TimeoutWindowMinutes)
	assert.Equal(t, 60, env.Defaults().HeartbeatIntervalSeconds)
}

func TestLoadEnv_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown storage driver", env: map[string]string{"STORAGE_DRIVER": "mongo"}},
		{name: "bad port", env: map[string]string{"STORAGE_DRIVER": "memory", "PORT": "http"}},
		{name: "zero global cap", env: map[string]string{"STORAGE_DRIVER": "memory", "GLOBAL_MAX_CONCURRENT_USERS": "0"}},
		{name: "heartbeat slower than timeout", env: map[string]string{
			"STORAGE_DRIVER":             "memory",
			"TIMEOUT_WINDOW_MINUTES":     "1",
			"HEARTBEAT_INTERVAL_SECONDS": "60",
		}},
		{name: "missing config file", env: map[string]string{"STORAGE_DRIVER": "memory", "CONFIG_FILE": "/nonexistent/admission.yaml"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadEnv()
			assert.Error(t, err)
		})
	}
}

func TestSetDefaults_RejectsInvalid(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	env, err := LoadEnv()
	require.NoError(t, err)

	bad := env.Defaults()
	bad.ValidatorTimeoutSeconds = 0
	assert.Error(t, env.SetDefaults(bad))
	assert.Equal(t, 3, env.Defaults().ValidatorTimeoutSeconds)

	good := env.Defaults()
	good.GlobalMaxConcurrentUsers = 9
	require.NoError(t, env.SetDefaults(good))
	assert.Equal(t, 9, env.Defaults().GlobalMaxConcurrentUsers)
}
