package repository_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/navikt/telecoord/internal/config"
	"github.com/navikt/telecoord/internal/repository"
	"github.com/navikt/telecoord/internal/repository/memory"
	"github.com/navikt/telecoord/internal/repository/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppointmentStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory by default", func(t *testing.T) {
		store, err := repository.NewAppointmentStore(ctx, config.StoreConfig{})
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store, err := repository.NewAppointmentStore(ctx, config.StoreConfig{
			Backend: config.BackendRedis,
			Redis:   config.RedisConfig{Host: mr.Host(), Port: mr.Port(), KeyPrefix: "t:"},
		})
		require.NoError(t, err)
		assert.IsType(t, &redis.Store{}, store)
		assert.NoError(t, store.Ping(ctx))
	})

	t.Run("postgres requires a URL", func(t *testing.T) {
		_, err := repository.NewAppointmentStore(ctx, config.StoreConfig{Backend: config.BackendPostgres})
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := repository.NewAppointmentStore(ctx, config.StoreConfig{Backend: "mongo"})
		assert.Error(t, err)
	})
}
