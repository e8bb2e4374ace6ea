package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/MrLituation/BlockBox/internal/pkg/config"
	"github.com/MrLituation/BlockBox/internal/pkg/notify"
)

const settleTimeout = 30 * time.Second

// runCollectionWindow supervises the buyer once the door is released. The
// removal clock starts when the door is observed open, not at unlock: the
// buyer gets the full window to open the door and a fresh full window to
// take the item, so arriving late never eats into the removal time.
func (c *Controller) runCollectionWindow(ctx context.Context) {
	snap := c.store.Snapshot()
	deadline := c.now().Add(c.cfg.CollectionTimeout)

	doorOpened := false
	collected := false
	for c.now().Before(deadline) {
		if !doorOpened {
			if !c.hw.IsDoorClosed() {
				doorOpened = true
				c.store.SetDoorStatus(config.DoorOpen)
				deadline = c.now().Add(c.cfg.CollectionTimeout)
				continue
			}
		} else if c.hw.ReadWeight() <= c.cfg.WeightToleranceKg {
			collected = true
			break
		}

		interval := c.cfg.DoorPollInterval
		if doorOpened {
			interval = c.cfg.CollectionPollInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}

	if collected {
		c.finishCollected(ctx, snap.TransactionID, snap.BuyerCredential, snap.ItemPrice)
		return
	}
	c.finishAbandoned(ctx, snap.TransactionID)
}

// finishCollected settles at the price recorded when the item was listed,
// then resets the locker for the next sale. A settlement failure is
// recorded and reported to the seller; the item is already gone, so the
// locker still resets.
func (c *Controller) finishCollected(ctx context.Context, transactionID, buyerCredential string, price float64) {
	c.store.SetItemPresence(config.NoItem, false)
	c.store.SetItemCollected(true)
	c.store.SetPhase(PhaseCollected)
	c.record(ctx, transactionID, PhaseCollected, "item collected within the window")
	c.logger.Infow("item collected", "transactionId", transactionID)

	settleCtx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()

	result := fmt.Sprintf("Transaction %s completed: item collected and payment settled.", transactionID)
	settlement, err := c.gateway.Settle(settleCtx, buyerCredential, price)
	if err != nil {
		c.store.AppendError(fmt.Sprintf("settling payment: %s", err))
		c.record(ctx, transactionID, PhaseCollected, fmt.Sprintf("settlement failed: %s", err))
		c.notify(notify.RoleSeller, fmt.Sprintf("Transaction ID: %s\nThe item was collected but the payment could not be settled. Please contact support.", transactionID))
		result = fmt.Sprintf("Transaction %s: item collected but settlement failed.", transactionID)
	} else {
		c.record(ctx, transactionID, PhaseCollected, fmt.Sprintf("payment settled, reference %s", settlement.TxReference))
		c.notify(notify.RoleSeller, fmt.Sprintf("Transaction ID: %s\nThe buyer has collected the item and the payment has settled.", transactionID))
		c.notify(notify.RoleBuyer, "Thank you for your purchase!")
	}

	c.reset(false)
	c.store.SetResultMessage(result)
}

// finishAbandoned leaves the item's presence on record so new sales stay
// blocked until the seller reclaims it.
func (c *Controller) finishAbandoned(ctx context.Context, transactionID string) {
	c.store.SetPhase(PhaseAbandoned)
	c.record(ctx, transactionID, PhaseAbandoned, "collection window elapsed with item still in box")
	c.logger.Warnw("collection window elapsed", "transactionId", transactionID)

	c.notify(notify.RoleBuyer, "You did not collect your item in time. Please contact the seller.")
	c.notify(notify.RoleSeller, fmt.Sprintf("Transaction ID: %s\nThe buyer did not collect the item. Please reclaim it.", transactionID))

	c.reset(true)
	if c.hw.IsDoorClosed() {
		c.relock()
	}
	c.store.SetResultMessage(fmt.Sprintf("Transaction %s abandoned: item awaiting reclaim.", transactionID))
}
