package transaction

import "math/rand"

// Controller phases, in lifecycle order. The controller enforces a strict
// total order; no phase may be skipped.
const (
	PhaseIdle                          = "Idle"
	PhaseSellerSetup                   = "SellerSetup"
	PhaseAwaitDoorClosedForLock        = "AwaitDoorClosedForLock"
	PhaseLocked                        = "Locked"
	PhaseAwaitDoorOpenForPlacement     = "AwaitDoorOpenForPlacement"
	PhaseAwaitItemPlacement            = "AwaitItemPlacement"
	PhaseAwaitDoorClosedAfterPlacement = "AwaitDoorClosedAfterPlacement"
	PhaseListed                        = "Listed"
	PhaseAwaitOTPAndWeight             = "AwaitOTPAndWeight"
	PhaseCollectionWindow              = "CollectionWindow"
	PhaseCollected                     = "Collected"
	PhaseAbandoned                     = "Abandoned"
	PhaseReclaimed                     = "Reclaimed"
)

// Unambiguous alphabet for short, readable transaction ids.
const txidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const txidLength = 6

func newTransactionID() string {
	b := make([]byte, txidLength)
	for i := range b {
		b[i] = txidAlphabet[rand.Intn(len(txidAlphabet))]
	}
	return string(b)
}
