package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/navikt/telecoord/internal/models"
	"github.com/navikt/telecoord/internal/repository/memory"
	"github.com/navikt/telecoord/internal/service"
	"github.com/stretchr/testify/require"
)

// fakeConn records everything sent to it
type fakeConn struct {
	id string

	mu     sync.Mutex
	sent   []models.Envelope
	closed bool
}

func newConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(env models.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) messages() []models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Envelope(nil), c.sent...)
}

func (c *fakeConn) kinds() []models.MessageKind {
	var out []models.MessageKind
	for _, env := range c.messages() {
		out = append(out, env.Type)
	}
	return out
}

func (c *fakeConn) last() models.Envelope {
	msgs := c.messages()
	if len(msgs) == 0 {
		return models.Envelope{}
	}
	return msgs[len(msgs)-1]
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// slotStart is the scheduled instant used by every fixture: Monday 2026-10-19 10:00 UTC
var slotStart = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func bookAppointment(t *testing.T, store *memory.Store, roomID string) {
	t.Helper()
	require.NoError(t, store.SaveAppointment(context.Background(), &models.Appointment{
		RoomID:    roomID,
		PatientID: "p1",
		DoctorID:  "d1",
		SlotDate:  "2026-10-19",
		SlotTime:  "Mon 10:00 AM",
	}))
}

type fixture struct {
	store    *memory.Store
	registry *service.Registry
	coord    *service.Coordinator
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	registry := service.NewRegistry()
	clk := &clock{now: slotStart.Add(5 * time.Minute)}
	coord := service.NewCoordinator(store, registry, service.Options{
		Window:         30 * time.Minute,
		Location:       time.UTC,
		Now:            clk.Now,
		RetryBaseDelay: time.Millisecond,
	})
	bookAppointment(t, store, "A1")
	return &fixture{store: store, registry: registry, coord: coord, clock: clk}
}

// flakyStore fails lifecycle writes a fixed number of times before delegating
type flakyStore struct {
	*memory.Store
	failures atomic.Int32
}

func (s *flakyStore) SetStatus(ctx context.Context, roomID string, status models.AppointmentStatus) error {
	if s.failures.Add(-1) >= 0 {
		return errors.New("connection reset by peer")
	}
	return s.Store.SetStatus(ctx, roomID, status)
}
