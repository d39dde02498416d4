// Package redis provides a Redis/Valkey implementation of the appointment store
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/navikt/telecoord/internal/config"
	"github.com/navikt/telecoord/internal/models"
	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic transaction retries on contended keys
const maxTxRetries = 10

// Store implements the appointment store with Redis storage.
// Appointments are JSON documents; booked slots are plain keys holding the owning room ID.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewStore creates a new Redis appointment store
func NewStore(cfg config.RedisConfig) (*Store, error) {
	var client *redis.Client

	// Use URI if provided, otherwise build connection from individual parameters
	if cfg.URI != "" {
		opt, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
		}
		if opt.DB == 0 {
			opt.DB = cfg.DB
		}
		if opt.Password == "" && cfg.Password != "" {
			opt.Password = cfg.Password
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.AppointmentTTL,
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) appointmentKey(roomID string) string {
	return fmt.Sprintf("%sappointments:%s", s.keyPrefix, roomID)
}

func (s *Store) slotKey(slot string) string {
	return fmt.Sprintf("%sslots:%s", s.keyPrefix, slot)
}

// SaveAppointment creates the appointment document and books its slot
func (s *Store) SaveAppointment(ctx context.Context, appt *models.Appointment) error {
	slot, err := appt.SlotKey()
	if err != nil {
		return err
	}

	stored := appt.Clone()
	if stored.Status == "" {
		stored.Status = models.StatusScheduled
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal appointment: %w", err)
	}

	key := s.appointmentKey(stored.RoomID)
	created, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save appointment: %w", err)
	}
	if !created {
		return models.ErrRoomExists
	}

	if stored.Status.IsTerminal() {
		return nil
	}

	booked, err := s.client.SetNX(ctx, s.slotKey(slot), stored.RoomID, s.ttl).Result()
	if err == nil && booked {
		return nil
	}

	// Roll back the document so the room ID stays free
	if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
		return fmt.Errorf("failed to roll back appointment %s: %w", stored.RoomID, delErr)
	}
	if err != nil {
		return fmt.Errorf("failed to book slot: %w", err)
	}
	return models.ErrSlotTaken
}

// FindByRoomID retrieves an appointment by room ID
func (s *Store) FindByRoomID(ctx context.Context, roomID string) (*models.Appointment, error) {
	data, err := s.client.Get(ctx, s.appointmentKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	var appt models.Appointment
	if err := json.Unmarshal(data, &appt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal appointment: %w", err)
	}
	return &appt, nil
}

// ListByStatus returns all appointments in the given status ordered by room ID
func (s *Store) ListByStatus(ctx context.Context, status models.AppointmentStatus) ([]*models.Appointment, error) {
	keys, err := s.client.Keys(ctx, s.appointmentKey("*")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	if len(keys) == 0 {
		return []*models.Appointment{}, nil
	}

	// Use MGET to retrieve all appointment data in a single roundtrip
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment data: %w", err)
	}

	result := make([]*models.Appointment, 0, len(values))
	for _, v := range values {
		strData, ok := v.(string)
		if !ok {
			continue
		}

		var appt models.Appointment
		if err := json.Unmarshal([]byte(strData), &appt); err != nil {
			continue
		}
		if appt.Status == status {
			result = append(result, &appt)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].RoomID < result[j].RoomID })
	return result, nil
}

// SetStatus moves the appointment to a new status
func (s *Store) SetStatus(ctx context.Context, roomID string, status models.AppointmentStatus) error {
	return s.update(ctx, roomID, func(appt *models.Appointment) error {
		if !appt.Status.CanTransition(status) {
			return models.ErrInvalidTransition
		}
		appt.Status = status
		return nil
	})
}

// SetSessionStart stamps the session start once
func (s *Store) SetSessionStart(ctx context.Context, roomID string, at time.Time) error {
	return s.update(ctx, roomID, func(appt *models.Appointment) error {
		if appt.SessionStart == nil {
			appt.SessionStart = &at
		}
		return nil
	})
}

// SetSessionEnd stamps the session end once
func (s *Store) SetSessionEnd(ctx context.Context, roomID string, at time.Time) error {
	return s.update(ctx, roomID, func(appt *models.Appointment) error {
		if appt.SessionEnd == nil {
			appt.SessionEnd = &at
		}
		return nil
	})
}

// update applies fn to the stored document inside a WATCH/MULTI transaction
func (s *Store) update(ctx context.Context, roomID string, fn func(*models.Appointment) error) error {
	key := s.appointmentKey(roomID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return models.ErrAppointmentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get appointment: %w", err)
		}

		var appt models.Appointment
		if err := json.Unmarshal(data, &appt); err != nil {
			return fmt.Errorf("failed to unmarshal appointment: %w", err)
		}
		if err := fn(&appt); err != nil {
			return err
		}

		data, err = json.Marshal(&appt)
		if err != nil {
			return fmt.Errorf("failed to marshal appointment: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to update appointment %s: too much contention", roomID)
}

// ReleaseSlot deletes the slot key if it is still held by this room
func (s *Store) ReleaseSlot(ctx context.Context, roomID string) error {
	appt, err := s.FindByRoomID(ctx, roomID)
	if err != nil {
		return err
	}
	slot, err := appt.SlotKey()
	if err != nil {
		return err
	}
	key := s.slotKey(slot)

	txf := func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) || (err == nil && owner != roomID) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read slot: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to release slot for %s: too much contention", roomID)
}

// Ping checks the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
