// Package state holds the single shared record of locker state behind a
// mutex. Every reader and writer goes through Store; a Snapshot is a value
// copy and can never observe a half-applied transition.
package state

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrLituation/BlockBox/internal/pkg/config"
)

// SystemState is the full locker state. It is only ever mutated through
// Store; copies returned by Snapshot are safe to use without the lock.
type SystemState struct {
	DoorStatus string `json:"doorStatus"`
	LockStatus string `json:"lockStatus"`
	ItemStatus string `json:"itemStatus"`

	ItemInBox         bool   `json:"itemInBox"`
	ItemCollected     bool   `json:"itemCollected"`
	TransactionActive bool   `json:"transactionActive"`
	TransactionID     string `json:"transactionId"`
	Phase             string `json:"phase"`

	ItemName           string  `json:"itemName"`
	Description        string  `json:"description"`
	AdvertisedWeightKg float64 `json:"advertisedWeightKg"`
	ItemPrice          float64 `json:"itemPrice"`
	BuyerAddress       string  `json:"buyerAddress"`
	ImageRef           string  `json:"imageRef"`

	// BuyerCredential is held only for the life of a transaction and is
	// encrypted before any persistence. Excluded from JSON snapshots.
	BuyerCredential string `json:"-"`

	ResultMessage string   `json:"resultMessage"`
	ErrorLogs     []string `json:"errorLogs"`
}

// Defaults returns the state a freshly started or fully reset locker holds.
func Defaults() SystemState {
	return SystemState{
		DoorStatus: config.DoorUnknown,
		LockStatus: config.LockDisengaged,
		ItemStatus: config.NoItem,
		Phase:      "Idle",
	}
}

type Store struct {
	mu     sync.Mutex
	state  SystemState
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewStore(logger *zap.SugaredLogger) *Store {
	return &Store{
		state:  Defaults(),
		logger: logger,
		now:    time.Now,
	}
}

// Snapshot returns a point-in-time copy, error log included.
func (s *Store) Snapshot() SystemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.state
	snap.ErrorLogs = append([]string(nil), s.state.ErrorLogs...)
	return snap
}

func (s *Store) set(field string, fn func(*SystemState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	s.logger.Debugw("system state updated", "field", field)
}

func (s *Store) SetDoorStatus(status string) {
	s.set("doorStatus", func(st *SystemState) { st.DoorStatus = status })
}

func (s *Store) SetLockStatus(status string) {
	s.set("lockStatus", func(st *SystemState) { st.LockStatus = status })
}

func (s *Store) SetItemPresence(status string, inBox bool) {
	s.set("itemStatus", func(st *SystemState) {
		st.ItemStatus = status
		st.ItemInBox = inBox
	})
}

func (s *Store) SetPhase(phase string) {
	s.set("phase", func(st *SystemState) { st.Phase = phase })
}

func (s *Store) SetItemCollected(collected bool) {
	s.set("itemCollected", func(st *SystemState) { st.ItemCollected = collected })
}

func (s *Store) SetBuyerCredential(credential string) {
	s.set("buyerCredential", func(st *SystemState) { st.BuyerCredential = credential })
}

func (s *Store) SetResultMessage(msg string) {
	s.set("resultMessage", func(st *SystemState) { st.ResultMessage = msg })
}

// BeginTransaction atomically checks the start preconditions and claims the
// transaction slot. It fails if a transaction is already active or an item
// is still in the box, with no side effects.
func (s *Store) BeginTransaction(transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.TransactionActive {
		return fmt.Errorf("transaction %s is already active", s.state.TransactionID)
	}
	if s.state.ItemInBox {
		return fmt.Errorf("an item is still in the box, reclaim it before starting a new transaction")
	}
	s.state.TransactionActive = true
	s.state.TransactionID = transactionID
	s.logger.Debugw("system state updated", "field", "transaction", "transactionId", transactionID)
	return nil
}

// Listing is the seller-entered description of the item for sale.
type Listing struct {
	ItemName           string  `json:"itemName"`
	Description        string  `json:"description"`
	AdvertisedWeightKg float64 `json:"advertisedWeightKg"`
	ItemPrice          float64 `json:"itemPrice"`
	BuyerAddress       string  `json:"buyerAddress"`
	ImageRef           string  `json:"imageRef"`
}

func (s *Store) SetListing(l Listing) {
	s.set("listing", func(st *SystemState) {
		st.ItemName = l.ItemName
		st.Description = l.Description
		st.AdvertisedWeightKg = l.AdvertisedWeightKg
		st.ItemPrice = l.ItemPrice
		st.BuyerAddress = l.BuyerAddress
		st.ImageRef = l.ImageRef
	})
}

// AppendError records a timestamped diagnostic. Diagnostics never drive
// control flow.
func (s *Store) AppendError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := fmt.Sprintf("%s %s", s.now().UTC().Format(time.RFC3339), msg)
	s.state.ErrorLogs = append(s.state.ErrorLogs, entry)
}

// Replace swaps in a whole new state. Used only by the reset paths.
func (s *Store) Replace(st SystemState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.logger.Debugw("system state replaced", "phase", st.Phase)
}
