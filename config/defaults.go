package config

import "github.com/spf13/viper"

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("storageDriver", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbUser", "postgres")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbName", "sessions")
	v.SetDefault("dbPort", "5432")

	v.SetDefault("redisAddr", "")
	v.SetDefault("redisPass", "")
	v.SetDefault("redisDB", 0)
	v.SetDefault("eventChannel", "sessions:changes")

	v.SetDefault("kafkaBrokers", "")
	v.SetDefault("kafkaTopic", "session-changes")
	v.SetDefault("natsURL", "")
	v.SetDefault("natsSubject", "sessions.changes")

	v.SetDefault("tenantEntityID", "default")
	v.SetDefault("adminToken", "")
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "text")
	v.SetDefault("configFile", "")

	v.SetDefault("admission.globalMaxConcurrentUsers", 5)
	v.SetDefault("admission.timeoutWindowMinutes", 30)
	v.SetDefault("admission.heartbeatIntervalSeconds", 60)
	v.SetDefault("admission.validatorTimeoutSeconds", 3)
	v.SetDefault("admission.reaperIntervalSeconds", 300)
}

func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("port", "PORT")

	_ = v.BindEnv("storageDriver", "STORAGE_DRIVER")
	_ = v.BindEnv("dbHost", "DB_HOST")
	_ = v.BindEnv("dbUser", "DB_USER")
	_ = v.BindEnv("dbPassword", "DB_PASSWORD")
	_ = v.BindEnv("dbName", "DB_NAME")
	_ = v.BindEnv("dbPort", "DB_PORT")

	_ = v.BindEnv("redisAddr", "REDIS_ADDR")
	_ = v.BindEnv("redisPass", "REDIS_PASSWORD")
	_ = v.BindEnv("redisDB", "REDIS_DB")
	_ = v.BindEnv("eventChannel", "SESSION_EVENTS_CHANNEL")

	_ = v.BindEnv("kafkaBrokers", "KAFKA_BROKERS")
	_ = v.BindEnv("kafkaTopic", "KAFKA_TOPIC")
	_ = v.BindEnv("natsURL", "NATS_URL")
	_ = v.BindEnv("natsSubject", "NATS_SUBJECT")

	_ = v.BindEnv("tenantEntityID", "TENANT_ENTITY_ID")
	_ = v.BindEnv("adminToken", "ADMIN_TOKEN")
	_ = v.BindEnv("logLevel", "LOG_LEVEL")
	_ = v.BindEnv("logFormat", "LOG_FORMAT")
	_ = v.BindEnv("configFile", "CONFIG_FILE")

	_ = v.BindEnv("admission.globalMaxConcurrentUsers", "GLOBAL_MAX_CONCURRENT_USERS")
	_ = v.BindEnv("admission.timeoutWindowMinutes", "TIMEOUT_WINDOW_MINUTES")
	_ = v.BindEnv("admission.heartbeatIntervalSeconds", "HEARTBEAT_INTERVAL_SECONDS")
	_ = v.BindEnv("admission.validatorTimeoutSeconds", "VALIDATOR_TIMEOUT_SECONDS")
	_ = v.BindEnv("admission.reaperIntervalSeconds", "REAPER_INTERVAL_SECONDS")
}
