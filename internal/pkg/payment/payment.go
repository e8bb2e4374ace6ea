// Package payment talks to the external settlement service. The service
// owns valuation and fund movement; this client only registers a pending
// transaction before the collection code is issued and triggers settlement
// once the item has been collected.
package payment

import "context"

// Registration is the service's acceptance of a pending transaction,
// including the amount the buyer must hold.
type Registration struct {
	RequiredAmount float64
	Message        string
}

// Settlement is the executed transfer.
type Settlement struct {
	TxReference string
	Amount      float64
	Message     string
}

type Gateway interface {
	// RegisterTransaction validates the buyer's address and balance
	// against the item price. A rejection means no collection code may
	// be issued.
	RegisterTransaction(ctx context.Context, buyerAddress string, price float64) (Registration, error)

	// Settle executes the transfer at the price recorded when the item
	// was listed.
	Settle(ctx context.Context, buyerCredential string, price float64) (Settlement, error)
}
