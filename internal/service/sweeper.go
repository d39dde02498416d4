package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/navikt/telecoord/internal/models"
	"github.com/navikt/telecoord/internal/utils"
)

// Sweep closes scheduled appointments whose window has fully elapsed.
// A session that started becomes completed with its end at the window end;
// one that never started becomes missed. Returns how many were closed.
func (c *Coordinator) Sweep(ctx context.Context) (int, error) {
	appts, err := c.store.ListByStatus(ctx, models.StatusScheduled)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := c.opts.Now()
	closed := 0
	var errs []error
	for _, appt := range appts {
		_, end, err := appt.Window(c.opts.Location, c.opts.Window)
		if err != nil {
			log.Printf("Skipping appointment %s with unusable slot: %v", utils.SanitizeLogString(appt.RoomID), err)
			continue
		}
		if !now.After(end) {
			continue
		}

		ok, err := c.expire(ctx, appt.RoomID, end)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			closed++
		}
	}
	return closed, errors.Join(errs...)
}

func (c *Coordinator) expire(ctx context.Context, roomID string, windowEnd time.Time) (bool, error) {
	unlock := c.lanes.lock(roomID)
	defer unlock()

	// Re-read under the lane; an end-session may have won the race
	appt, err := c.store.FindByRoomID(ctx, roomID)
	if err != nil {
		return false, fmt.Errorf("room %s: %w", roomID, err)
	}
	if appt.Status != models.StatusScheduled {
		return false, nil
	}

	status, event := models.StatusMissed, models.EventSessionMissed
	if appt.SessionStart != nil {
		status, event = models.StatusCompleted, models.EventSessionEnded
		if err := c.retry(ctx, func() error { return c.store.SetSessionEnd(ctx, roomID, windowEnd) }); err != nil {
			return false, fmt.Errorf("room %s: %w", roomID, err)
		}
	}

	if err := c.retry(ctx, func() error { return c.store.SetStatus(ctx, roomID, status) }); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return false, nil
		}
		return false, fmt.Errorf("room %s: %w", roomID, err)
	}
	if err := c.retry(ctx, func() error { return c.store.ReleaseSlot(ctx, roomID) }); err != nil {
		log.Printf("Error releasing slot for room %s: %v", utils.SanitizeLogString(roomID), err)
	}

	c.closeRoom(roomID, windowEnd)

	log.Printf("Session window elapsed: RoomID=%s, Status=%s", utils.SanitizeLogString(roomID), status)
	c.emit(event, roomID, "", "")
	return true, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled
func (c *Coordinator) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Sweep(ctx)
			if err != nil {
				log.Printf("Error sweeping appointments: %v", err)
			}
			if n > 0 {
				log.Printf("Closed %d appointments with elapsed windows", n)
			}
		}
	}
}
