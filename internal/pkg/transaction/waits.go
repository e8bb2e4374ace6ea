package transaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrLituation/BlockBox/internal/pkg/config"
)

// waitForDoor polls the reed sensor until the door reaches the wanted
// status, refreshing the shared state on every read. Bounded by timeout
// and by ctx.
func (c *Controller) waitForDoor(ctx context.Context, want string, timeout time.Duration) error {
	deadline := c.now().Add(timeout)
	for {
		status := config.DoorOpen
		if c.hw.IsDoorClosed() {
			status = config.DoorClosed
		}
		c.store.SetDoorStatus(status)
		if status == want {
			return nil
		}
		if !c.now().Before(deadline) {
			return fmt.Errorf("door not %s after %s", strings.ToLower(want), timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.DoorPollInterval):
		}
	}
}

// waitForPlacement polls the scale until an item heavier than the
// placement threshold lands in the box. Unbounded except for ctx: the
// seller is mid-interaction and sets the pace.
func (c *Controller) waitForPlacement(ctx context.Context) (float64, error) {
	for {
		kg := c.hw.ReadWeight()
		if kg > c.cfg.PlacementThresholdKg {
			return kg, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(c.cfg.PlacementPollInterval):
		}
	}
}

// waitForRemoval polls the scale until the box reads empty. Unbounded
// except for ctx.
func (c *Controller) waitForRemoval(ctx context.Context) error {
	for {
		if c.hw.ReadWeight() <= c.cfg.WeightToleranceKg {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.CollectionPollInterval):
		}
	}
}
