package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/navikt/telecoord/internal/models"
	"github.com/navikt/telecoord/internal/repository/memory"
	"github.com/navikt/telecoord/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct {
	*memory.Store
}

func (brokenStore) FindByRoomID(context.Context, string) (*models.Appointment, error) {
	return nil, errors.New("dial tcp: i/o timeout")
}

func TestAuthorizer_Window(t *testing.T) {
	store := memory.NewStore()
	bookAppointment(t, store, "A1")
	clk := &clock{}
	auth := service.NewAuthorizer(store, 30*time.Minute, time.UTC, clk.Now)
	ctx := context.Background()

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{name: "one second early", at: slotStart.Add(-time.Second), wantErr: service.ErrTooEarly},
		{name: "exactly on time", at: slotStart},
		{name: "29 minutes late", at: slotStart.Add(29 * time.Minute)},
		{name: "window end", at: slotStart.Add(30 * time.Minute)},
		{name: "after window end", at: slotStart.Add(30*time.Minute + time.Second), wantErr: service.ErrTooLate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk.Set(tt.at)
			grant, err := auth.Authorize(ctx, "A1", "p1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, grant)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.RolePatient, grant.Role)
			assert.Equal(t, "A1", grant.Appointment.RoomID)
		})
	}
}

func TestAuthorizer_Identity(t *testing.T) {
	store := memory.NewStore()
	bookAppointment(t, store, "A1")
	clk := &clock{now: slotStart}
	auth := service.NewAuthorizer(store, 30*time.Minute, time.UTC, clk.Now)
	ctx := context.Background()

	grant, err := auth.Authorize(ctx, "A1", "d1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleDoctor, grant.Role)

	_, err = auth.Authorize(ctx, "A1", "x9")
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	_, err = auth.Authorize(ctx, "A1", "")
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	_, err = auth.Authorize(ctx, "nope", "p1")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)

	// Identity is checked before the window
	clk.Set(slotStart.Add(-time.Hour))
	_, err = auth.Authorize(ctx, "A1", "x9")
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestAuthorizer_ClosedAppointment(t *testing.T) {
	store := memory.NewStore()
	bookAppointment(t, store, "A1")
	require.NoError(t, store.SetStatus(context.Background(), "A1", models.StatusCancelled))

	auth := service.NewAuthorizer(store, 30*time.Minute, time.UTC, func() time.Time { return slotStart })
	_, err := auth.Authorize(context.Background(), "A1", "p1")
	assert.ErrorIs(t, err, service.ErrSessionClosed)
	assert.Equal(t, service.CodeSessionClosed, service.ErrorCode(err))
}

func TestAuthorizer_StoreFailure(t *testing.T) {
	auth := service.NewAuthorizer(brokenStore{memory.NewStore()}, 30*time.Minute, time.UTC, nil)
	_, err := auth.Authorize(context.Background(), "A1", "p1")
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)
	assert.True(t, service.Retryable(err))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, service.CodeRoomNotFound, service.ErrorCode(service.ErrRoomNotFound))
	assert.Equal(t, service.CodeUnauthorized, service.ErrorCode(service.ErrUnauthorized))
	assert.Equal(t, service.CodeTooEarly, service.ErrorCode(service.ErrTooEarly))
	assert.Equal(t, service.CodeTooLate, service.ErrorCode(service.ErrTooLate))
	assert.Equal(t, service.CodeRoomFull, service.ErrorCode(service.ErrRoomFull))
	assert.Equal(t, service.CodeInvalidState, service.ErrorCode(service.ErrNotJoined))
	assert.Equal(t, service.CodeRateLimited, service.ErrorCode(service.ErrRateLimited))
	assert.Equal(t, service.CodeRetry, service.ErrorCode(errors.New("boom")))

	assert.True(t, service.Retryable(service.ErrTooEarly))
	assert.False(t, service.Retryable(service.ErrTooLate))
	assert.False(t, service.Retryable(service.ErrRoomFull))

	env := service.ErrorEnvelope("A1", service.ErrTooEarly)
	assert.Equal(t, models.KindError, env.Type)
	assert.Equal(t, "A1", env.RoomID)
	assert.Equal(t, service.CodeTooEarly, env.Code)
	assert.True(t, env.Retryable)
	assert.NotEmpty(t, env.Message)
}
