package cmd

import (
	"github.com/Krish-Depani/session-admission/admission"
	"github.com/Krish-Depani/session-admission/database"
	"github.com/Krish-Depani/session-admission/storage"
	"github.com/Krish-Depani/session-admission/storage/memory"
	"github.com/Krish-Depani/session-admission/storage/postgres"
)

func openStore() (storage.Interface, error) {
	if env.StorageDriver == "memory" {
		return memory.NewStore(), nil
	}
	db, err := database.NewPostgresClient(env.DBHost, env.DBUser, env.DBPassword, env.DBName, env.DBPort)
	if err != nil {
		return nil, err
	}
	return postgres.NewStore(db), nil
}

func newResolver(store storage.Interface) *admission.Resolver {
	return admission.NewResolver(store.Policies(), env, env.TenantEntityID)
}
