// Package config loads process configuration from .env, the environment
// and an optional YAML file whose admission defaults are hot-reloaded.
package config

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Env struct {
	Port string `mapstructure:"port"`

	// StorageDriver is "postgres" or "memory".
	StorageDriver string `mapstructure:"storageDriver"`
	DBHost        string `mapstructure:"dbHost"`
	DBUser        string `mapstructure:"dbUser"`
	DBPassword    string `mapstructure:"dbPassword"`
	DBName        string `mapstructure:"dbName"`
	DBPort        string `mapstructure:"dbPort"`

	// RedisAddr empty disables Redis (eviction marks stay in memory and
	// change events are not relayed between server instances).
	RedisAddr    string `mapstructure:"redisAddr"`
	RedisPass    string `mapstructure:"redisPass"`
	RedisDB      int    `mapstructure:"redisDB"`
	EventChannel string `mapstructure:"eventChannel"`

	KafkaBrokers string `mapstructure:"kafkaBrokers"`
	KafkaTopic   string `mapstructure:"kafkaTopic"`
	NATSURL      string `mapstructure:"natsURL"`
	NATSSubject  string `mapstructure:"natsSubject"`

	TenantEntityID string `mapstructure:"tenantEntityID"`
	LogLevel       string `mapstructure:"logLevel"`
	LogFormat      string `mapstructure:"logFormat"`
	ConfigFile     string `mapstructure:"configFile"`

	// AdminToken guards the dashboard and force-remove routes. Empty
	// leaves them open.
	AdminToken string `mapstructure:"adminToken"`

	Admission AdmissionDefaults `mapstructure:"admission"`

	v        *viper.Viper
	defaults atomic.Pointer[AdmissionDefaults]
}

// AdmissionDefaults apply when the tenant configuration leaves a value
// unset.
type AdmissionDefaults struct {
	GlobalMaxConcurrentUsers int `mapstructure:"globalMaxConcurrentUsers"`
	TimeoutWindowMinutes     int `mapstructure:"timeoutWindowMinutes"`
	HeartbeatIntervalSeconds int `mapstructure:"heartbeatIntervalSeconds"`
	ValidatorTimeoutSeconds  int `mapstructure:"validatorTimeoutSeconds"`
	ReaperIntervalSeconds    int `mapstructure:"reaperIntervalSeconds"`
}

// LoadEnv reads .env (if present), then the environment, then CONFIG_FILE.
// Missing .env is ignored. Env vars override .env.
func LoadEnv() (*Env, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	bindEnvVars(v)

	if file := v.GetString("configFile"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	env := &Env{}
	if err := v.Unmarshal(env); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	env.StorageDriver = strings.ToLower(env.StorageDriver)
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	env.v = v
	defaults := env.Admission
	env.defaults.Store(&defaults)
	return env, nil
}

// Defaults returns the current admission defaults. Safe for concurrent use.
func (e *Env) Defaults() AdmissionDefaults {
	if d := e.defaults.Load(); d != nil {
		return *d
	}
	return e.Admission
}

// SetDefaults swaps the admission defaults after validating them.
func (e *Env) SetDefaults(d AdmissionDefaults) error {
	if err := d.Validate(); err != nil {
		return err
	}
	e.defaults.Store(&d)
	return nil
}

// WatchConfigFile reloads admission defaults whenever CONFIG_FILE changes.
// Invalid edits are logged and the previous values stay in force.
func (e *Env) WatchConfigFile(onChange func(AdmissionDefaults)) {
	if e.v == nil || e.ConfigFile == "" {
		return
	}
	e.v.OnConfigChange(func(ev fsnotify.Event) {
		var next AdmissionDefaults
		if err := e.v.UnmarshalKey("admission", &next); err != nil {
			log.WithError(err).Warn("config: failed to decode admission defaults")
			return
		}
		if err := e.SetDefaults(next); err != nil {
			log.WithError(err).WithField("file", ev.Name).Warn("config: rejected admission defaults")
			return
		}
		log.WithFields(log.Fields{
			"file":                     ev.Name,
			"globalMaxConcurrentUsers": next.GlobalMaxConcurrentUsers,
			"timeoutWindowMinutes":     next.TimeoutWindowMinutes,
		}).Info("config: admission defaults reloaded")
		if onChange != nil {
			onChange(next)
		}
	})
	e.v.WatchConfig()
}

func (e *Env) KafkaBrokerList() []string {
	if e.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(e.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
