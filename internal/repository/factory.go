package repository

import (
	"context"
	"fmt"
	"log"

	"github.com/navikt/telecoord/internal/config"
	"github.com/navikt/telecoord/internal/repository/memory"
	"github.com/navikt/telecoord/internal/repository/postgres"
	"github.com/navikt/telecoord/internal/repository/redis"
)

// NewAppointmentStore creates the backend selected by cfg.Backend.
// Callers should close the returned store if it implements io.Closer.
func NewAppointmentStore(ctx context.Context, cfg config.StoreConfig) (AppointmentStore, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		log.Printf("Using in-memory appointment store")
		return memory.NewStore(), nil
	case config.BackendRedis:
		store, err := redis.NewStore(cfg.Redis)
		if err != nil {
			return nil, err
		}
		log.Printf("Using Redis appointment store with prefix %s", cfg.Redis.KeyPrefix)
		return store, nil
	case config.BackendPostgres:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
		store, err := postgres.NewStore(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		log.Printf("Using Postgres appointment store")
		return store, nil
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Backend)
}
