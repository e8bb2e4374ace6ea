package payment

import (
	"context"
	"sync"
)

// Fake is a Gateway test double recording calls and returning scripted
// results.
type Fake struct {
	mu sync.Mutex

	RegisterErr    error
	SettleErr      error
	RequiredAmount float64
	TxReference    string

	Registered []float64
	Settled    []float64
}

func NewFake() *Fake {
	return &Fake{TxReference: "0xfake"}
}

func (f *Fake) RegisterTransaction(ctx context.Context, buyerAddress string, price float64) (Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RegisterErr != nil {
		return Registration{}, f.RegisterErr
	}
	f.Registered = append(f.Registered, price)
	return Registration{RequiredAmount: f.RequiredAmount, Message: "transaction prepared"}, nil
}

func (f *Fake) Settle(ctx context.Context, buyerCredential string, price float64) (Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SettleErr != nil {
		return Settlement{}, f.SettleErr
	}
	f.Settled = append(f.Settled, price)
	return Settlement{TxReference: f.TxReference, Amount: f.RequiredAmount, Message: "payment successful"}, nil
}

// SettledPrices returns a copy of the prices settled so far.
func (f *Fake) SettledPrices() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.Settled...)
}
