package hardware

import (
	"context"
	"time"

	"github.com/stianeikeland/go-rpio"
)

const keypadScanInterval = 50 * time.Millisecond

var keypadLayout = [4][4]byte{
	{'1', '2', '3', 'A'},
	{'4', '5', '6', 'B'},
	{'7', '8', '9', 'C'},
	{'*', '0', '#', 'D'},
}

// keypad scans a 4x4 matrix: rows are driven low one at a time, columns are
// inputs with pull-ups, a pressed key pulls its column low.
type keypad struct {
	rows []rpio.Pin
	cols []rpio.Pin
}

func newKeypad(rowPins, colPins []int) *keypad {
	k := &keypad{}
	for _, p := range rowPins {
		pin := rpio.Pin(p)
		pin.Output()
		pin.High()
		k.rows = append(k.rows, pin)
	}
	for _, p := range colPins {
		pin := rpio.Pin(p)
		pin.Input()
		pin.PullUp()
		k.cols = append(k.cols, pin)
	}
	return k
}

// scan returns the currently pressed key, or 0 if none.
func (k *keypad) scan() byte {
	for r, rowPin := range k.rows {
		rowPin.Low()
		for c, colPin := range k.cols {
			if colPin.Read() == rpio.Low {
				rowPin.High()
				return keypadLayout[r][c]
			}
		}
		rowPin.High()
	}
	return 0
}

// readDigits collects n numeric keys. A key must be released before it
// counts again, so holding a key produces a single digit.
func (k *keypad) readDigits(ctx context.Context, n int) (string, error) {
	digits := make([]byte, 0, n)
	for len(digits) < n {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(keypadScanInterval):
		}

		key := k.scan()
		if key < '0' || key > '9' {
			continue
		}
		digits = append(digits, key)

		// debounce: wait for the key to be released
		for k.scan() == key {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(keypadScanInterval):
			}
		}
	}
	return string(digits), nil
}
