// Package redis_test provides tests for the Redis appointment store
package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/navikt/telecoord/internal/config"
	"github.com/navikt/telecoord/internal/models"
	"github.com/navikt/telecoord/internal/repository/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		Host:           mr.Host(),
		Port:           mr.Port(),
		KeyPrefix:      "test:",
		AppointmentTTL: 24 * time.Hour,
	}

	store, err := redis.NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func newAppointment(roomID, slotTime string) *models.Appointment {
	return &models.Appointment{
		RoomID:    roomID,
		PatientID: "p1",
		DoctorID:  "d1",
		SlotDate:  "2026-10-19",
		SlotTime:  slotTime,
	}
}

// TestRedisWithURI tests connection with URI format
func TestRedisWithURI(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		URI:       fmt.Sprintf("redis://%s:%s", mr.Host(), mr.Port()),
		KeyPrefix: "test:",
	}

	store, err := redis.NewStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveAppointment(ctx, newAppointment("uri-room", "09:00")))

	appt, err := store.FindByRoomID(ctx, "uri-room")
	require.NoError(t, err)
	assert.Equal(t, "d1", appt.DoctorID)
	assert.NoError(t, store.Ping(ctx))
}

func TestRedisUnreachable(t *testing.T) {
	_, err := redis.NewStore(config.RedisConfig{Host: "127.0.0.1", Port: "1"})
	assert.Error(t, err)
}

func TestAppointmentStore(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	t.Run("SaveAndFind", func(t *testing.T) {
		require.NoError(t, store.SaveAppointment(ctx, newAppointment("room1", "10:00")))

		appt, err := store.FindByRoomID(ctx, "room1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusScheduled, appt.Status)
		assert.Equal(t, "p1", appt.PatientID)

		assert.True(t, mr.Exists("test:appointments:room1"))
		assert.True(t, mr.Exists("test:slots:d1@2026-10-19T10:00"))
		assert.Equal(t, 24*time.Hour, mr.TTL("test:appointments:room1"))
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.FindByRoomID(ctx, "nope")
		assert.ErrorIs(t, err, models.ErrAppointmentNotFound)
	})

	t.Run("RoomExists", func(t *testing.T) {
		err := store.SaveAppointment(ctx, newAppointment("room1", "11:00"))
		assert.ErrorIs(t, err, models.ErrRoomExists)
		assert.False(t, mr.Exists("test:slots:d1@2026-10-19T11:00"))
	})

	t.Run("SlotTaken", func(t *testing.T) {
		err := store.SaveAppointment(ctx, newAppointment("room2", "10:00 AM"))
		assert.ErrorIs(t, err, models.ErrSlotTaken)

		_, err = store.FindByRoomID(ctx, "room2")
		assert.ErrorIs(t, err, models.ErrAppointmentNotFound, "failed booking leaves no document")
	})

	t.Run("InvalidSlot", func(t *testing.T) {
		err := store.SaveAppointment(ctx, newAppointment("room3", "noon-ish"))
		assert.ErrorIs(t, err, models.ErrInvalidSlot)
	})
}

func TestStatusAndTimestamps(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, store.SaveAppointment(ctx, newAppointment("room1", "10:00")))

	first := time.Date(2026, 10, 19, 10, 5, 0, 0, time.UTC)
	require.NoError(t, store.SetSessionStart(ctx, "room1", first))
	require.NoError(t, store.SetSessionStart(ctx, "room1", first.Add(time.Minute)))
	require.NoError(t, store.SetSessionEnd(ctx, "room1", first.Add(20*time.Minute)))
	require.NoError(t, store.SetSessionEnd(ctx, "room1", first.Add(25*time.Minute)))

	require.NoError(t, store.SetStatus(ctx, "room1", models.StatusCompleted))
	require.NoError(t, store.SetStatus(ctx, "room1", models.StatusCompleted))
	assert.ErrorIs(t, store.SetStatus(ctx, "room1", models.StatusScheduled), models.ErrInvalidTransition)
	assert.ErrorIs(t, store.SetStatus(ctx, "missing", models.StatusCompleted), models.ErrAppointmentNotFound)
	assert.ErrorIs(t, store.SetSessionEnd(ctx, "missing", first), models.ErrAppointmentNotFound)

	appt, err := store.FindByRoomID(ctx, "room1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, appt.Status)
	assert.True(t, appt.SessionStart.Equal(first))
	assert.True(t, appt.SessionEnd.Equal(first.Add(20*time.Minute)))

	// Updates keep the document TTL
	assert.Equal(t, 24*time.Hour, mr.TTL("test:appointments:room1"))
}

func TestListByStatus(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAppointment(ctx, newAppointment("b", "10:00")))
	require.NoError(t, store.SaveAppointment(ctx, newAppointment("a", "11:00")))
	require.NoError(t, store.SaveAppointment(ctx, newAppointment("c", "12:00")))
	require.NoError(t, store.SetStatus(ctx, "c", models.StatusCancelled))

	scheduled, err := store.ListByStatus(ctx, models.StatusScheduled)
	require.NoError(t, err)
	require.Len(t, scheduled, 2)
	assert.Equal(t, "a", scheduled[0].RoomID)
	assert.Equal(t, "b", scheduled[1].RoomID)

	missed, err := store.ListByStatus(ctx, models.StatusMissed)
	require.NoError(t, err)
	assert.Empty(t, missed)
}

func TestReleaseSlot(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, store.SaveAppointment(ctx, newAppointment("room1", "10:00")))

	require.NoError(t, store.ReleaseSlot(ctx, "room1"))
	assert.False(t, mr.Exists("test:slots:d1@2026-10-19T10:00"))
	require.NoError(t, store.ReleaseSlot(ctx, "room1"))

	require.NoError(t, store.SaveAppointment(ctx, newAppointment("room2", "10:00")))

	// The old room no longer owns the slot
	require.NoError(t, store.ReleaseSlot(ctx, "room1"))
	owner, err := mr.Get("test:slots:d1@2026-10-19T10:00")
	require.NoError(t, err)
	assert.Equal(t, "room2", owner)

	assert.ErrorIs(t, store.ReleaseSlot(ctx, "missing"), models.ErrAppointmentNotFound)
}
