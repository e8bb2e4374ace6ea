package transaction

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MrLituation/BlockBox/internal/pkg/config"
	"github.com/MrLituation/BlockBox/internal/pkg/hardware"
	"github.com/MrLituation/BlockBox/internal/pkg/state"
)

// DoorMonitor keeps the shared door and item-presence state fresh
// independently of any transaction flow, so status queries reflect the
// physical box even while the controller is between operations.
type DoorMonitor struct {
	hw          hardware.Controller
	store       *state.Store
	interval    time.Duration
	thresholdKg float64
	logger      *zap.SugaredLogger

	// emptyPolls counts consecutive below-threshold reads. A failed scale
	// read reports 0.0, so one empty reading alone never clears presence.
	emptyPolls int
}

func NewDoorMonitor(hw hardware.Controller, store *state.Store, interval time.Duration, thresholdKg float64, logger *zap.SugaredLogger) *DoorMonitor {
	return &DoorMonitor{
		hw:          hw,
		store:       store,
		interval:    interval,
		thresholdKg: thresholdKg,
		logger:      logger,
	}
}

// Run polls until ctx is cancelled.
func (m *DoorMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("door monitor stopped")
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *DoorMonitor) poll() {
	status := config.DoorOpen
	if m.hw.IsDoorClosed() {
		status = config.DoorClosed
	}
	m.store.SetDoorStatus(status)

	kg := m.hw.ReadWeight()
	snap := m.store.Snapshot()

	// An uncollected item stays on record until the seller reclaims it,
	// whatever the scale says in the meantime.
	if snap.Phase == PhaseAbandoned {
		return
	}

	if kg > m.thresholdKg {
		m.emptyPolls = 0
		if snap.TransactionActive {
			m.store.SetItemPresence(config.ItemPlaced, true)
		} else if !snap.ItemInBox {
			m.logger.Warnw("weight on scale with no active transaction", "kg", kg)
		}
		return
	}

	m.emptyPolls++
	if m.emptyPolls >= 2 && snap.ItemInBox && snap.TransactionActive {
		m.store.SetItemPresence(config.NoItem, false)
	}
}
