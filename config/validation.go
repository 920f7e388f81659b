package config

import (
	"errors"
	"fmt"
	"strconv"
)

func (e *Env) Validate() error {
	port, err := strconv.Atoi(e.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port %q", e.Port)
	}

	switch e.StorageDriver {
	case "postgres":
		if e.DBHost == "" || e.DBName == "" {
			return errors.New("DB_HOST and DB_NAME must be set for the postgres storage driver")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid storage driver: %s. Must be 'postgres' or 'memory'", e.StorageDriver)
	}

	if e.TenantEntityID == "" {
		return errors.New("TENANT_ENTITY_ID must not be empty")
	}

	return e.Admission.Validate()
}

func (d AdmissionDefaults) Validate() error {
	if d.GlobalMaxConcurrentUsers < 1 {
		return errors.New("globalMaxConcurrentUsers must be positive")
	}
	if d.TimeoutWindowMinutes < 1 {
		return errors.New("timeoutWindowMinutes must be at least 1")
	}
	if d.HeartbeatIntervalSeconds < 1 {
		return errors.New("heartbeatIntervalSeconds must be at least 1")
	}
	if d.HeartbeatIntervalSeconds >= d.TimeoutWindowMinutes*60 {
		return errors.New("heartbeat interval should be less than the timeout window")
	}
	if d.ValidatorTimeoutSeconds < 1 {
		return errors.New("validatorTimeoutSeconds must be at least 1")
	}
	if d.ReaperIntervalSeconds < 1 {
		return errors.New("reaperIntervalSeconds must be at least 1")
	}
	return nil
}
