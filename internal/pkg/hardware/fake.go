package hardware

import (
	"context"
	"sync"
)

// Fake is a Controller test double with scripted sensor values. It also
// backs mock mode for development off the Pi. Safe for concurrent use: the
// door monitor and the controller read it from different goroutines.
type Fake struct {
	mu sync.Mutex

	// Locked is the last successfully actuated lock state.
	Locked bool

	// LockErr / UnlockErr, if set, fail the next actuation without
	// changing Locked.
	LockErr   error
	UnlockErr error

	// DoorClosedSamples are consumed one per IsDoorClosed call; the last
	// sample repeats once exhausted. Empty means "open".
	DoorClosedSamples []bool
	doorIndex         int

	// WeightSamples are consumed one per ReadWeight call; the last sample
	// repeats once exhausted.
	WeightSamples []float64
	weightIndex   int

	// KeypadDigits is returned by ReadKeypadDigits.
	KeypadDigits string
	KeypadErr    error

	// Actions records every actuation attempt in order.
	Actions []string

	CleanedUp bool
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Lock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Actions = append(f.Actions, "lock")
	if f.LockErr != nil {
		return f.LockErr
	}
	f.Locked = true
	return nil
}

func (f *Fake) Unlock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Actions = append(f.Actions, "unlock")
	if f.UnlockErr != nil {
		return f.UnlockErr
	}
	f.Locked = false
	return nil
}

func (f *Fake) IsDoorClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.DoorClosedSamples) == 0 {
		return false
	}
	v := f.DoorClosedSamples[f.doorIndex]
	if f.doorIndex < len(f.DoorClosedSamples)-1 {
		f.doorIndex++
	}
	return v
}

func (f *Fake) ReadWeight() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.WeightSamples) == 0 {
		return 0.0
	}
	v := f.WeightSamples[f.weightIndex]
	if f.weightIndex < len(f.WeightSamples)-1 {
		f.weightIndex++
	}
	return clampWeight(v)
}

func (f *Fake) ReadKeypadDigits(ctx context.Context, n int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.KeypadErr != nil {
		return "", f.KeypadErr
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d := f.KeypadDigits
	if len(d) > n {
		d = d[:n]
	}
	return d, nil
}

func (f *Fake) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CleanedUp = true
}

// SetDoorClosed replaces the door script with a constant value.
func (f *Fake) SetDoorClosed(closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DoorClosedSamples = []bool{closed}
	f.doorIndex = 0
}

// SetWeight replaces the weight script with a constant value.
func (f *Fake) SetWeight(kg float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WeightSamples = []float64{kg}
	f.weightIndex = 0
}

// IsLocked reports the last successfully actuated lock state.
func (f *Fake) IsLocked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Locked
}
