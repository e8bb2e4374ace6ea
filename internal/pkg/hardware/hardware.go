// Package hardware is the only owner of the locker's physical resources:
// the solenoid lock, the magnetic reed door sensor, the HX711 load cell and
// the 4x4 matrix keypad. Everything above it talks to the Controller
// interface; the real implementation uses the Pi's GPIO, the fake is for
// tests and mock mode.
//
// Every read is fail-soft with a documented default: a flaky sensor forces
// a retry loop upstream instead of corrupting the state machine.
package hardware

import "context"

type Controller interface {
	// Lock engages the solenoid. Idempotent. On failure the previous
	// physical state is assumed unchanged, never success.
	Lock() error

	// Unlock disengages the solenoid. Idempotent, same failure contract.
	Unlock() error

	// IsDoorClosed is a single live read and must not block. A read
	// failure reports false: open is the safer assumption.
	IsDoorClosed() bool

	// ReadWeight returns kilograms averaged over 5 samples, clamped to
	// >= 0, powering the load cell down between reads. Returns 0.0 on
	// failure; callers must use tolerance bands, not single readings.
	ReadWeight() float64

	// ReadKeypadDigits blocks until n digits have been collected,
	// debouncing held keys, or until ctx is cancelled.
	ReadKeypadDigits(ctx context.Context, n int) (string, error)

	// Cleanup releases GPIO resources and leaves the lock disengaged.
	Cleanup()
}

// clampWeight enforces the non-negative weight contract.
func clampWeight(kg float64) float64 {
	if kg < 0 {
		return 0
	}
	return kg
}

// averageKg is the 5-sample mean in kilograms given raw ADC counts and the
// scale's calibration reference unit.
func averageKg(raw []int, referenceUnit float64) float64 {
	if len(raw) == 0 || referenceUnit == 0 {
		return 0
	}
	var sum float64
	for _, r := range raw {
		sum += float64(r)
	}
	return clampWeight(sum / float64(len(raw)) / referenceUnit)
}
