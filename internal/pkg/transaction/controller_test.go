package transaction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/MrLituation/BlockBox/internal/pkg/config"
	"github.com/MrLituation/BlockBox/internal/pkg/hardware"
	"github.com/MrLituation/BlockBox/internal/pkg/notify"
	"github.com/MrLituation/BlockBox/internal/pkg/otp"
	"github.com/MrLituation/BlockBox/internal/pkg/payment"
	"github.com/MrLituation/BlockBox/internal/pkg/state"
)

const testOTPSecret = "JBSWY3DPEHPK3PXP"

type fakeRecorder struct {
	mu       sync.Mutex
	listings []state.SystemState
	phases   []string
}

func (r *fakeRecorder) SaveListing(ctx context.Context, snap state.SystemState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings = append(r.listings, snap)
	return nil
}

func (r *fakeRecorder) RecordEvent(ctx context.Context, transactionID, phase, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, phase)
	return nil
}

func (r *fakeRecorder) recordedPhases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.phases...)
}

func testConfig() Config {
	return Config{
		PlacementThresholdKg:   0.1,
		WeightToleranceKg:      0.1,
		OTPDigits:              6,
		OTPValidDuration:       600 * time.Second,
		CollectionTimeout:      300 * time.Millisecond,
		CollectionPollInterval: 10 * time.Millisecond,
		DoorPollInterval:       5 * time.Millisecond,
		PlacementPollInterval:  5 * time.Millisecond,
		DoorWaitTimeout:        60 * time.Millisecond,
	}
}

type testRig struct {
	ctl      *Controller
	hw       *hardware.Fake
	store    *state.Store
	notifier *notify.Fake
	gateway  *payment.Fake
	recorder *fakeRecorder
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	logger := zap.NewNop().Sugar()
	hw := hardware.NewFake()
	store := state.NewStore(logger)
	notifier := notify.NewFake()
	gateway := payment.NewFake()
	recorder := &fakeRecorder{}
	otpManager := otp.NewManager(testOTPSecret, 600*time.Second, logger)
	ctl := NewController(hw, store, otpManager, notifier, gateway, recorder, testConfig(), logger)
	return &testRig{ctl: ctl, hw: hw, store: store, notifier: notifier, gateway: gateway, recorder: recorder}
}

func testListing() state.Listing {
	return state.Listing{
		ItemName:           "camera lens",
		Description:        "50mm prime, boxed",
		AdvertisedWeightKg: 1.0,
		ItemPrice:          150.0,
		BuyerAddress:       "0xabc123",
		ImageRef:           "images/lens.jpg",
	}
}

// listItem drives the full seller flow: door closed for lock, open for
// placement, item on the scale, door closed again.
func (r *testRig) listItem(t *testing.T) string {
	t.Helper()
	id, err := r.ctl.Start(context.Background())
	assert.NoError(t, err)

	r.hw.DoorClosedSamples = []bool{true, false, true}
	r.hw.WeightSamples = []float64{0.0, 1.0}

	err = r.ctl.SubmitListing(context.Background(), testListing())
	assert.NoError(t, err)
	return id
}

func Test_StartClaimsLocker(t *testing.T) {
	r := newTestRig(t)

	id, err := r.ctl.Start(context.Background())
	assert.NoError(t, err)
	assert.Len(t, id, 6)
	for _, c := range id {
		assert.Contains(t, txidAlphabet, string(c))
	}

	snap := r.store.Snapshot()
	assert.True(t, snap.TransactionActive)
	assert.Equal(t, id, snap.TransactionID)
	assert.Equal(t, PhaseSellerSetup, snap.Phase)

	_, err = r.ctl.Start(context.Background())
	assert.ErrorIs(t, err, ErrPrecondition)
}

func Test_ListingValidation(t *testing.T) {
	r := newTestRig(t)
	_, err := r.ctl.Start(context.Background())
	assert.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*state.Listing)
	}{
		{"missing name", func(l *state.Listing) { l.ItemName = "" }},
		{"missing description", func(l *state.Listing) { l.Description = "" }},
		{"zero weight", func(l *state.Listing) { l.AdvertisedWeightKg = 0 }},
		{"negative weight", func(l *state.Listing) { l.AdvertisedWeightKg = -1 }},
		{"zero price", func(l *state.Listing) { l.ItemPrice = 0 }},
		{"missing buyer address", func(l *state.Listing) { l.BuyerAddress = "" }},
		{"missing image", func(l *state.Listing) { l.ImageRef = "" }},
	}

	for _, tc := range cases {
		l := testListing()
		tc.mutate(&l)
		err := r.ctl.SubmitListing(context.Background(), l)
		assert.ErrorIs(t, err, ErrValidation, tc.name)
	}

	// Validation never touches the hardware.
	assert.Empty(t, r.hw.Actions)
}

func Test_ListingRequiresActiveTransaction(t *testing.T) {
	r := newTestRig(t)
	err := r.ctl.SubmitListing(context.Background(), testListing())
	assert.ErrorIs(t, err, ErrPrecondition)
}

func Test_ListingDoorNeverCloses(t *testing.T) {
	r := newTestRig(t)
	_, err := r.ctl.Start(context.Background())
	assert.NoError(t, err)

	// Fake with no samples reads "open".
	err = r.ctl.SubmitListing(context.Background(), testListing())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "door not closed")
}

func Test_ListingLockFailureHoldsState(t *testing.T) {
	r := newTestRig(t)
	_, err := r.ctl.Start(context.Background())
	assert.NoError(t, err)

	r.hw.SetDoorClosed(true)
	r.hw.LockErr = errors.New("solenoid fault")

	err = r.ctl.SubmitListing(context.Background(), testListing())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "engaging lock")

	snap := r.store.Snapshot()
	assert.Equal(t, config.LockDisengaged, snap.LockStatus)
	assert.False(t, r.hw.IsLocked())
	assert.True(t, snap.TransactionActive)
}

func Test_ListingHappyPath(t *testing.T) {
	r := newTestRig(t)
	id := r.listItem(t)

	snap := r.store.Snapshot()
	assert.Equal(t, PhaseAwaitOTPAndWeight, snap.Phase)
	assert.True(t, snap.ItemInBox)
	assert.Equal(t, config.LockEngaged, snap.LockStatus)
	assert.True(t, r.hw.IsLocked())

	assert.Equal(t, []float64{150.0}, r.gateway.Registered)

	buyerMsgs := r.notifier.Sent(notify.RoleBuyer)
	assert.Len(t, buyerMsgs, 1)
	assert.Contains(t, buyerMsgs[0], id)
	assert.Contains(t, buyerMsgs[0], "OTP")
	assert.Contains(t, buyerMsgs[0], "camera lens")

	sellerMsgs := r.notifier.Sent(notify.RoleSeller)
	assert.Len(t, sellerMsgs, 1)
	assert.Contains(t, sellerMsgs[0], "ready for collection")

	assert.Len(t, r.recorder.listings, 1)
	assert.Contains(t, r.recorder.recordedPhases(), PhaseListed)
}

func Test_PaymentRejectionBlocksListing(t *testing.T) {
	r := newTestRig(t)
	_, err := r.ctl.Start(context.Background())
	assert.NoError(t, err)

	r.hw.DoorClosedSamples = []bool{true, false, true}
	r.hw.WeightSamples = []float64{0.0, 1.0}
	r.gateway.RegisterErr = errors.New("insufficient funds")

	err = r.ctl.SubmitListing(context.Background(), testListing())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "registering payment")

	// No collection code was issued and the buyer heard nothing.
	assert.Empty(t, r.notifier.Sent(notify.RoleBuyer))
	sellerMsgs := r.notifier.Sent(notify.RoleSeller)
	assert.Len(t, sellerMsgs, 1)
	assert.Contains(t, sellerMsgs[0], "rejected")

	snap := r.store.Snapshot()
	assert.Equal(t, PhaseLocked, snap.Phase)
	assert.True(t, snap.ItemInBox)
	assert.True(t, r.hw.IsLocked())
}

func Test_CollectHappyPath(t *testing.T) {
	r := newTestRig(t)
	r.listItem(t)

	code, err := r.ctl.otp.Generate()
	assert.NoError(t, err)
	r.hw.KeypadDigits = code

	err = r.ctl.VerifyAndRelease(context.Background(), "buyer-private-key")
	assert.NoError(t, err)

	snap := r.store.Snapshot()
	assert.Equal(t, PhaseCollectionWindow, snap.Phase)
	assert.False(t, r.hw.IsLocked())

	// Buyer opens the door and takes the item.
	r.hw.SetDoorClosed(false)
	r.hw.SetWeight(0.0)
	r.ctl.Wait()

	snap = r.store.Snapshot()
	assert.False(t, snap.TransactionActive)
	assert.False(t, snap.ItemInBox)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Contains(t, snap.ResultMessage, "completed")

	assert.Equal(t, []float64{150.0}, r.gateway.SettledPrices())

	buyerMsgs := r.notifier.Sent(notify.RoleBuyer)
	assert.Contains(t, buyerMsgs[len(buyerMsgs)-1], "Thank you")

	phases := r.recorder.recordedPhases()
	assert.Contains(t, phases, PhaseCollectionWindow)
	assert.Contains(t, phases, PhaseCollected)

	// The locker is free for the next sale.
	_, err = r.ctl.Start(context.Background())
	assert.NoError(t, err)
}

func Test_CollectExpiredOTP(t *testing.T) {
	r := newTestRig(t)
	r.listItem(t)

	// No code generated through this manager means expired; the keypad
	// must not even be consulted.
	r.ctl.otp.Clear()
	r.hw.KeypadErr = errors.New("keypad should not be read")

	err := r.ctl.VerifyAndRelease(context.Background(), "buyer-private-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expired")

	buyerMsgs := r.notifier.Sent(notify.RoleBuyer)
	assert.Contains(t, buyerMsgs[len(buyerMsgs)-1], "expired")
	assert.True(t, r.hw.IsLocked())

	snap := r.store.Snapshot()
	assert.Equal(t, PhaseAwaitOTPAndWeight, snap.Phase)
	assert.True(t, snap.ItemInBox)
}

func Test_CollectWrongOTP(t *testing.T) {
	r := newTestRig(t)
	r.listItem(t)

	code, err := r.ctl.otp.Generate()
	assert.NoError(t, err)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	r.hw.KeypadDigits = wrong

	err = r.ctl.VerifyAndRelease(context.Background(), "buyer-private-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "incorrect otp")

	assert.True(t, r.hw.IsLocked())
	snap := r.store.Snapshot()
	assert.Equal(t, PhaseAwaitOTPAndWeight, snap.Phase)
	assert.True(t, snap.ItemInBox)
	assert.Empty(t, r.gateway.SettledPrices())
}

func Test_CollectWeightMismatch(t *testing.T) {
	r := newTestRig(t)
	r.listItem(t)

	code, err := r.ctl.otp.Generate()
	assert.NoError(t, err)
	r.hw.KeypadDigits = code
	r.hw.SetWeight(2.0)

	err = r.ctl.VerifyAndRelease(context.Background(), "buyer-private-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "weight mismatch")

	assert.True(t, r.hw.IsLocked())
	sellerMsgs := r.notifier.Sent(notify.RoleSeller)
	assert.Contains(t, sellerMsgs[len(sellerMsgs)-1], "does not match")

	snap := r.store.Snapshot()
	assert.Equal(t, PhaseAwaitOTPAndWeight, snap.Phase)
	found := false
	for _, e := range snap.ErrorLogs {
		if strings.Contains(e, "weight mismatch") {
			found = true
		}
	}
	assert.True(t, found)
}

func Test_CollectWeightWithinTolerance(t *testing.T) {
	r := newTestRig(t)
	r.listItem(t)

	code, err := r.ctl.otp.Generate()
	assert.NoError(t, err)
	r.hw.KeypadDigits = code

	// 50 g off a 1.0 kg advertised weight is inside the 0.1 kg band.
	r.hw.SetWeight(1.05)

	err = r.ctl.VerifyAndRelease(context.Background(), "buyer-private-key")
	assert.NoError(t, err)
	assert.Equal(t, PhaseCollectionWindow, r.store.Snapshot().Phase)

	r.hw.SetDoorClosed(false)
	r.hw.SetWeight(0.0)
	r.ctl.Wait()
	assert.Equal(t, []float64{150.0}, r.gateway.SettledPrices())
}

func Test_CollectLateDoorOpenKeepsRemovalWindow(t *testing.T) {
	r := newTestRig(t)
	r.listItem(t)

	code, err := r.ctl.otp.Generate()
	assert.NoError(t, err)
	r.hw.KeypadDigits = code

	err = r.ctl.VerifyAndRelease(context.Background(), "buyer-private-key")
	assert.NoError(t, err)

	// Buyer opens the door only near the end of the door-open window;
	// the removal clock starts fresh at door open, so taking the item
	// shortly after still counts as collected.
	time.Sleep(250 * time.Millisecond)
	r.hw.SetDoorClosed(false)
	time.Sleep(50 * time.Millisecond)
	r.hw.SetWeight(0.0)
	r.ctl.Wait()

	snap := r.store.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.False(t, snap.ItemInBox)
	assert.Equal(t, []float64{150.0}, r.gateway.SettledPrices())
}

func Test_NotifierOutageNeverBlocksFlow(t *testing.T) {
	r := newTestRig(t)
	r.notifier.SendErr = errors.New("broker unreachable")

	r.listItem(t)

	// Failed deliveries land in the diagnostics, not in the control flow.
	found := false
	for _, e := range r.store.Snapshot().ErrorLogs {
		if strings.Contains(e, "broker unreachable") {
			found = true
		}
	}
	assert.True(t, found)

	code, err := r.ctl.otp.Generate()
	assert.NoError(t, err)
	r.hw.KeypadDigits = code

	err = r.ctl.VerifyAndRelease(context.Background(), "buyer-private-key")
	assert.NoError(t, err)

	r.hw.SetDoorClosed(false)
	r.hw.SetWeight(0.0)
	r.ctl.Wait()

	snap := r.store.Snapshot()
	assert.False(t, snap.TransactionActive)
	assert.False(t, snap.ItemInBox)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, []float64{150.0}, r.gateway.SettledPrices())
}

func Test_CollectionWindowExpires(t *testing.T) {
	r := newTestRig(t)
	r.listItem(t)

	code, err := r.ctl.otp.Generate()
	assert.NoError(t, err)
	r.hw.KeypadDigits = code

	err = r.ctl.VerifyAndRelease(context.Background(), "buyer-private-key")
	assert.NoError(t, err)

	// Door stays closed; the buyer never shows up.
	r.ctl.Wait()

	snap := r.store.Snapshot()
	assert.Equal(t, PhaseAbandoned, snap.Phase)
	assert.True(t, snap.ItemInBox)
	assert.False(t, snap.TransactionActive)
	assert.Contains(t, snap.ResultMessage, "abandoned")
	assert.Empty(t, r.gateway.SettledPrices())

	// Door closed at expiry, so the box is secured again.
	assert.True(t, r.hw.IsLocked())

	buyerMsgs := r.notifier.Sent(notify.RoleBuyer)
	assert.Contains(t, buyerMsgs[len(buyerMsgs)-1], "did not collect")

	// A new sale stays blocked until the seller reclaims.
	_, err = r.ctl.Start(context.Background())
	assert.ErrorIs(t, err, ErrPrecondition)
}

func Test_CollectionWindowExpiresDoorOpen(t *testing.T) {
	r := newTestRig(t)
	r.listItem(t)

	code, err := r.ctl.otp.Generate()
	assert.NoError(t, err)
	r.hw.KeypadDigits = code

	err = r.ctl.VerifyAndRelease(context.Background(), "buyer-private-key")
	assert.NoError(t, err)

	// Buyer opens the door but never takes the item.
	r.hw.SetDoorClosed(false)
	r.ctl.Wait()

	snap := r.store.Snapshot()
	assert.Equal(t, PhaseAbandoned, snap.Phase)
	assert.True(t, snap.ItemInBox)
	// Door is open, re-engaging the lock would be pointless.
	assert.False(t, r.hw.IsLocked())
}

func Test_Reclaim(t *testing.T) {
	r := newTestRig(t)
	r.listItem(t)

	code, err := r.ctl.otp.Generate()
	assert.NoError(t, err)
	r.hw.KeypadDigits = code

	err = r.ctl.VerifyAndRelease(context.Background(), "buyer-private-key")
	assert.NoError(t, err)
	r.ctl.Wait()

	assert.Equal(t, PhaseAbandoned, r.store.Snapshot().Phase)

	// Seller empties the box.
	r.hw.SetWeight(0.0)
	err = r.ctl.Reclaim(context.Background())
	assert.NoError(t, err)

	snap := r.store.Snapshot()
	assert.False(t, snap.ItemInBox)
	assert.False(t, snap.TransactionActive)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.False(t, r.hw.IsLocked())

	sellerMsgs := r.notifier.Sent(notify.RoleSeller)
	assert.Contains(t, sellerMsgs[len(sellerMsgs)-1], "reclaimed")
	assert.Contains(t, r.recorder.recordedPhases(), PhaseReclaimed)

	_, err = r.ctl.Start(context.Background())
	assert.NoError(t, err)
}

func Test_ReclaimWithoutAbandonedItem(t *testing.T) {
	r := newTestRig(t)
	err := r.ctl.Reclaim(context.Background())
	assert.ErrorIs(t, err, ErrPrecondition)

	r.listItem(t)
	err = r.ctl.Reclaim(context.Background())
	assert.ErrorIs(t, err, ErrPrecondition)
}
