package config

import "time"

const (
	BuyerNotifyTopic  = "blockbox/notify/buyer"
	SellerNotifyTopic = "blockbox/notify/seller"

	DoorUnknown = "Unknown"
	DoorOpen    = "Open"
	DoorClosed  = "Closed"

	LockEngaged    = "Locked"
	LockDisengaged = "Unlocked"

	NoItem     = "No item placed"
	ItemPlaced = "Item placed"

	OTPValidDuration = 600 * time.Second
	OTPDigits        = 6

	// PlacementThresholdKg is the minimum weight that counts as an item in
	// the box; WeightToleranceKg bounds the advertised-vs-actual match and
	// the removed check. Same value by default but configured independently,
	// they guard different failure modes.
	PlacementThresholdKg = 0.1
	WeightToleranceKg    = 0.1

	CollectionTimeout      = 300 * time.Second
	CollectionPollInterval = 1 * time.Second
	DoorPollInterval       = 100 * time.Millisecond
	PlacementPollInterval  = 500 * time.Millisecond
	MonitorInterval        = 1 * time.Second

	// DoorWaitTimeout bounds the seller-side "close/open the door" waits.
	// The seller is physically present so generous, but never unbounded.
	DoorWaitTimeout = 2 * time.Minute
)

// TransactionEvent is one audit row: a phase change or terminal outcome
// of a transaction, persisted to postgres and backed up to S3.
type TransactionEvent struct {
	TransactionID string `json:"transactionId"`
	Phase         string `json:"phase"`
	Detail        string `json:"detail"`
	Timestamp     string `json:"timestamp"`
	Version       string `json:"version"`
}
