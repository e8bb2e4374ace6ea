// Package transaction drives the locker through a single sale: seller
// setup, item placement, listing, buyer collection, settlement. One
// transaction at a time; every blocking wait is named and either
// deadline-bounded or cancellable through its context.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrLituation/BlockBox/internal/pkg/config"
	"github.com/MrLituation/BlockBox/internal/pkg/hardware"
	"github.com/MrLituation/BlockBox/internal/pkg/notify"
	"github.com/MrLituation/BlockBox/internal/pkg/otp"
	"github.com/MrLituation/BlockBox/internal/pkg/payment"
	"github.com/MrLituation/BlockBox/internal/pkg/state"
)

var (
	// ErrValidation marks a listing the seller must correct.
	ErrValidation = errors.New("invalid listing")
	// ErrPrecondition marks an operation attempted in the wrong phase.
	ErrPrecondition = errors.New("operation not allowed in current phase")
)

// Recorder persists listing snapshots and audit events. Satisfied by
// journal.Journal; faked in tests.
type Recorder interface {
	SaveListing(ctx context.Context, snap state.SystemState) error
	RecordEvent(ctx context.Context, transactionID, phase, detail string) error
}

// Config carries the tunable thresholds and intervals. Tests shrink the
// intervals; production uses Default.
type Config struct {
	PlacementThresholdKg   float64
	WeightToleranceKg      float64
	OTPDigits              int
	OTPValidDuration       time.Duration
	CollectionTimeout      time.Duration
	CollectionPollInterval time.Duration
	DoorPollInterval       time.Duration
	PlacementPollInterval  time.Duration
	DoorWaitTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		PlacementThresholdKg:   config.PlacementThresholdKg,
		WeightToleranceKg:      config.WeightToleranceKg,
		OTPDigits:              config.OTPDigits,
		OTPValidDuration:       config.OTPValidDuration,
		CollectionTimeout:      config.CollectionTimeout,
		CollectionPollInterval: config.CollectionPollInterval,
		DoorPollInterval:       config.DoorPollInterval,
		PlacementPollInterval:  config.PlacementPollInterval,
		DoorWaitTimeout:        config.DoorWaitTimeout,
	}
}

type Controller struct {
	hw       hardware.Controller
	store    *state.Store
	otp      *otp.Manager
	notifier notify.Notifier
	gateway  payment.Gateway
	recorder Recorder
	cfg      Config
	logger   *zap.SugaredLogger
	now      func() time.Time

	// opMu serializes the public operations; the locker services one
	// human interaction at a time.
	opMu sync.Mutex
	wg   sync.WaitGroup
}

func NewController(hw hardware.Controller, store *state.Store, otpManager *otp.Manager, notifier notify.Notifier, gateway payment.Gateway, recorder Recorder, cfg Config, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		hw:       hw,
		store:    store,
		otp:      otpManager,
		notifier: notifier,
		gateway:  gateway,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Wait blocks until any in-flight collection window has finished. Used by
// shutdown and tests; it never cancels the window.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Start claims the locker for a new sale. It fails with no side effects if
// a transaction is already active or an uncollected item is still inside.
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	id := newTransactionID()
	if err := c.store.BeginTransaction(id); err != nil {
		return "", fmt.Errorf("%w: %s", ErrPrecondition, err)
	}

	c.store.SetPhase(PhaseSellerSetup)
	c.record(ctx, id, PhaseSellerSetup, "transaction started")
	c.logger.Infow("transaction started", "transactionId", id)
	return id, nil
}

// SubmitListing runs the seller flow end to end: validate the listing,
// secure the door, guide the seller through placing the item, register the
// pending payment, and only then issue the collection code. Any failure
// leaves the locker where it physically is and the call may be retried.
func (c *Controller) SubmitListing(ctx context.Context, l state.Listing) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	snap := c.store.Snapshot()
	if !snap.TransactionActive {
		return fmt.Errorf("%w: no active transaction", ErrPrecondition)
	}
	switch snap.Phase {
	case PhaseSellerSetup, PhaseAwaitDoorClosedForLock, PhaseLocked:
	default:
		return fmt.Errorf("%w: listing not accepted in phase %s", ErrPrecondition, snap.Phase)
	}

	if err := validateListing(l); err != nil {
		return err
	}

	c.store.SetPhase(PhaseAwaitDoorClosedForLock)
	if err := c.waitForDoor(ctx, config.DoorClosed, c.cfg.DoorWaitTimeout); err != nil {
		c.store.AppendError(fmt.Sprintf("securing door: %s", err))
		return fmt.Errorf("securing door: %w", err)
	}
	if err := c.hw.Lock(); err != nil {
		c.store.AppendError(fmt.Sprintf("engaging lock: %s", err))
		return fmt.Errorf("engaging lock: %w", err)
	}
	c.store.SetLockStatus(config.LockEngaged)
	c.store.SetListing(l)
	c.store.SetPhase(PhaseLocked)
	c.record(ctx, snap.TransactionID, PhaseLocked, "listing accepted, door secured")

	// A retried listing may find the item already inside; the placement
	// walk-through only runs when the box is still empty.
	if c.hw.ReadWeight() <= c.cfg.PlacementThresholdKg {
		if err := c.guidePlacement(ctx); err != nil {
			return err
		}
	} else {
		c.store.SetItemPresence(config.ItemPlaced, true)
	}
	c.record(ctx, snap.TransactionID, PhaseAwaitDoorClosedAfterPlacement, "item placed, door secured")

	reg, err := c.gateway.RegisterTransaction(ctx, l.BuyerAddress, l.ItemPrice)
	if err != nil {
		c.store.AppendError(fmt.Sprintf("registering payment: %s", err))
		c.store.SetPhase(PhaseLocked)
		c.notify(notify.RoleSeller, fmt.Sprintf("Listing for transaction %s could not be completed: the payment service rejected the registration. The item remains secured; please retry.", snap.TransactionID))
		return fmt.Errorf("registering payment: %w", err)
	}

	code, err := c.otp.Generate()
	if err != nil {
		c.store.AppendError(fmt.Sprintf("generating collection code: %s", err))
		c.store.SetPhase(PhaseLocked)
		return fmt.Errorf("generating collection code: %w", err)
	}

	c.store.SetPhase(PhaseListed)
	c.record(ctx, snap.TransactionID, PhaseListed, "payment registered, collection code issued")

	c.notify(notify.RoleBuyer, fmt.Sprintf(
		"Transaction ID: %s\nItem: %s\nDescription: %s\nPrice: %.2f Rands (%.6f required)\nYour OTP to retrieve the item is: %s\nThis OTP will expire in %d minutes.",
		snap.TransactionID, l.ItemName, l.Description, l.ItemPrice, reg.RequiredAmount, code, int(c.cfg.OTPValidDuration.Minutes())))
	c.notify(notify.RoleSeller, fmt.Sprintf("Transaction ID: %s\nThe item is secured and ready for collection.", snap.TransactionID))

	c.store.SetPhase(PhaseAwaitOTPAndWeight)
	c.persistSnapshot(ctx)
	return nil
}

// guidePlacement unlocks for the seller, waits for the door to open, for
// the item to land on the scale, and for the door to close again, then
// re-engages the lock. The placement wait itself is unbounded; the seller
// cancels by abandoning the request.
func (c *Controller) guidePlacement(ctx context.Context) error {
	if err := c.hw.Unlock(); err != nil {
		c.store.AppendError(fmt.Sprintf("disengaging lock for placement: %s", err))
		return fmt.Errorf("disengaging lock for placement: %w", err)
	}
	c.store.SetLockStatus(config.LockDisengaged)

	c.store.SetPhase(PhaseAwaitDoorOpenForPlacement)
	if err := c.waitForDoor(ctx, config.DoorOpen, c.cfg.DoorWaitTimeout); err != nil {
		c.store.AppendError(fmt.Sprintf("waiting for door to open for placement: %s", err))
		return fmt.Errorf("waiting for door to open for placement: %w", err)
	}

	c.store.SetPhase(PhaseAwaitItemPlacement)
	if _, err := c.waitForPlacement(ctx); err != nil {
		return err
	}
	c.store.SetItemPresence(config.ItemPlaced, true)

	c.store.SetPhase(PhaseAwaitDoorClosedAfterPlacement)
	if err := c.waitForDoor(ctx, config.DoorClosed, c.cfg.DoorWaitTimeout); err != nil {
		c.store.AppendError(fmt.Sprintf("securing door after placement: %s", err))
		return fmt.Errorf("securing door after placement: %w", err)
	}
	if err := c.hw.Lock(); err != nil {
		c.store.AppendError(fmt.Sprintf("engaging lock after placement: %s", err))
		return fmt.Errorf("engaging lock after placement: %w", err)
	}
	c.store.SetLockStatus(config.LockEngaged)
	return nil
}

// VerifyAndRelease is the buyer-side gate: collection code first, weight
// second, and only when both pass does the door unlock and the collection
// window open. A failed attempt re-engages the lock and returns; there is
// no automatic retry.
func (c *Controller) VerifyAndRelease(ctx context.Context, buyerCredential string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	snap := c.store.Snapshot()
	if !snap.TransactionActive || !snap.ItemInBox || snap.Phase != PhaseAwaitOTPAndWeight {
		return fmt.Errorf("%w: collection not available in phase %s", ErrPrecondition, snap.Phase)
	}

	if c.otp.IsExpired() {
		c.store.AppendError("collection attempt with expired otp")
		c.notify(notify.RoleBuyer, "Your OTP has expired. Please contact the seller to arrange a new one.")
		c.notify(notify.RoleSeller, fmt.Sprintf("The OTP for transaction %s expired before collection.", snap.TransactionID))
		return fmt.Errorf("otp expired for transaction %s", snap.TransactionID)
	}

	entered, err := c.hw.ReadKeypadDigits(ctx, c.cfg.OTPDigits)
	if err != nil {
		return fmt.Errorf("reading collection code: %w", err)
	}

	if !c.otp.Verify(entered) {
		c.store.AppendError("collection attempt with incorrect otp")
		c.relock()
		return fmt.Errorf("incorrect otp for transaction %s", snap.TransactionID)
	}

	actual := c.hw.ReadWeight()
	if math.Abs(actual-snap.AdvertisedWeightKg) > c.cfg.WeightToleranceKg {
		c.store.AppendError(fmt.Sprintf("weight mismatch: advertised %.3f kg, measured %.3f kg", snap.AdvertisedWeightKg, actual))
		c.relock()
		c.notify(notify.RoleSeller, fmt.Sprintf("Collection for transaction %s was refused: the measured weight %.3f kg does not match the advertised %.3f kg.", snap.TransactionID, actual, snap.AdvertisedWeightKg))
		return fmt.Errorf("weight mismatch for transaction %s", snap.TransactionID)
	}

	c.store.SetBuyerCredential(buyerCredential)

	if err := c.hw.Unlock(); err != nil {
		c.store.AppendError(fmt.Sprintf("disengaging lock for collection: %s", err))
		return fmt.Errorf("disengaging lock for collection: %w", err)
	}
	c.store.SetLockStatus(config.LockDisengaged)
	c.store.SetPhase(PhaseCollectionWindow)
	c.record(ctx, snap.TransactionID, PhaseCollectionWindow, "otp and weight verified, door released")
	c.notify(notify.RoleBuyer, "Please collect your item now. Once done, close the door.")
	c.persistSnapshot(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// The window deliberately outlives the caller's request context.
		c.runCollectionWindow(context.Background())
	}()
	return nil
}

// Reclaim returns an uncollected item to the seller. The door unlocks and
// the call waits, bounded only by its context, until the item has been
// removed; the locker then resets fully.
func (c *Controller) Reclaim(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	snap := c.store.Snapshot()
	if !snap.ItemInBox {
		return fmt.Errorf("%w: no item to reclaim", ErrPrecondition)
	}
	if snap.Phase != PhaseAbandoned {
		return fmt.Errorf("%w: reclaim only applies to an uncollected item", ErrPrecondition)
	}

	if err := c.hw.Unlock(); err != nil {
		c.store.AppendError(fmt.Sprintf("disengaging lock for reclaim: %s", err))
		return fmt.Errorf("disengaging lock for reclaim: %w", err)
	}
	c.store.SetLockStatus(config.LockDisengaged)

	if err := c.waitForRemoval(ctx); err != nil {
		return fmt.Errorf("waiting for item removal: %w", err)
	}

	c.record(ctx, snap.TransactionID, PhaseReclaimed, "seller reclaimed uncollected item")
	c.notify(notify.RoleSeller, fmt.Sprintf("Transaction ID: %s\nThe uncollected item has been reclaimed.", snap.TransactionID))
	c.notify(notify.RoleBuyer, "The seller has reclaimed the uncollected item.")
	c.logger.Infow("item reclaimed", "transactionId", snap.TransactionID)

	c.reset(false)
	return nil
}

func validateListing(l state.Listing) error {
	if l.ItemName == "" {
		return fmt.Errorf("%w: item name is required", ErrValidation)
	}
	if l.Description == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if l.AdvertisedWeightKg <= 0 {
		return fmt.Errorf("%w: advertised weight must be greater than zero", ErrValidation)
	}
	if l.ItemPrice <= 0 {
		return fmt.Errorf("%w: price must be greater than zero", ErrValidation)
	}
	if l.BuyerAddress == "" {
		return fmt.Errorf("%w: buyer address is required", ErrValidation)
	}
	if l.ImageRef == "" {
		return fmt.Errorf("%w: item image is required", ErrValidation)
	}
	return nil
}

// relock re-engages the lock after a refused collection attempt. Failure
// is recorded but not returned; the refusal itself is the caller's error.
func (c *Controller) relock() {
	if err := c.hw.Lock(); err != nil {
		c.store.AppendError(fmt.Sprintf("re-engaging lock: %s", err))
		return
	}
	c.store.SetLockStatus(config.LockEngaged)
}

// reset returns the locker to defaults. keepItem preserves the physical
// truth of an uncollected item so a new sale stays blocked until the
// seller reclaims it.
func (c *Controller) reset(keepItem bool) {
	c.otp.Clear()
	st := state.Defaults()
	if keepItem {
		st.ItemStatus = config.ItemPlaced
		st.ItemInBox = true
		st.Phase = PhaseAbandoned
	}
	c.store.Replace(st)
}

// notify delivers fail-soft: an undeliverable message is recorded and the
// state machine moves on.
func (c *Controller) notify(role notify.Role, message string) {
	if err := c.notifier.Send(role, message); err != nil {
		c.logger.Errorf("notifying %s: %s", role, err)
		c.store.AppendError(fmt.Sprintf("notifying %s: %s", role, err))
	}
}

// record appends an audit row, fail-soft.
func (c *Controller) record(ctx context.Context, transactionID, phase, detail string) {
	if err := c.recorder.RecordEvent(ctx, transactionID, phase, detail); err != nil {
		c.logger.Errorf("recording transaction event: %s", err)
	}
}

// persistSnapshot saves the current listing snapshot, fail-soft.
func (c *Controller) persistSnapshot(ctx context.Context) {
	snap := c.store.Snapshot()
	if err := c.recorder.SaveListing(ctx, snap); err != nil {
		c.logger.Errorf("persisting listing snapshot: %s", err)
		c.store.AppendError(fmt.Sprintf("persisting listing snapshot: %s", err))
	}
}
