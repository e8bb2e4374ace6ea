package hardware

import (
	"context"
	"fmt"

	"github.com/stianeikeland/go-rpio"
	"go.uber.org/zap"

	"github.com/MrLituation/BlockBox/internal/pkg/config"
)

// ErrorSink receives human-readable fault descriptions for the shared
// diagnostic log. Faults are reported, never propagated as panics.
type ErrorSink func(msg string)

// PiController drives the real locker hardware. The solenoid is active-low:
// a HIGH output disengages the lock, so the locker powers up unlocked. The
// reed sensor uses the internal pull-up and reads LOW when the door is
// closed.
type PiController struct {
	lockPin rpio.Pin
	doorPin rpio.Pin
	scale   *scale
	keypad  *keypad
	opened  bool
	logger  *zap.SugaredLogger
	onError ErrorSink
}

func NewPiController(cfg config.HardwareConfig, logger *zap.SugaredLogger, onError ErrorSink) (*PiController, error) {
	c := &PiController{
		lockPin: rpio.Pin(cfg.LockPin),
		doorPin: rpio.Pin(cfg.DoorSensorPin),
		logger:  logger,
		onError: onError,
	}

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("opening gpio: %w", err)
	}
	c.opened = true

	c.lockPin.Output()
	c.lockPin.High()
	c.doorPin.Input()
	c.doorPin.PullUp()

	sc, err := newScale(cfg.ScaleDataPin, cfg.ScaleClockPin, cfg.ScaleReferenceUnit)
	if err != nil {
		rpio.Close()
		return nil, fmt.Errorf("initializing load cell: %w", err)
	}
	c.scale = sc
	c.keypad = newKeypad(cfg.KeypadRowPins, cfg.KeypadColPins)

	logger.Info("hardware controller initialized, lock disengaged")
	return c, nil
}

func (c *PiController) Lock() error {
	if !c.opened {
		err := fmt.Errorf("gpio not available")
		c.onError(fmt.Sprintf("error locking door: %s", err))
		return err
	}
	c.lockPin.Low()
	c.logger.Info("door is now LOCKED")
	return nil
}

func (c *PiController) Unlock() error {
	if !c.opened {
		err := fmt.Errorf("gpio not available")
		c.onError(fmt.Sprintf("error unlocking door: %s", err))
		return err
	}
	c.lockPin.High()
	c.logger.Info("door is now UNLOCKED")
	return nil
}

func (c *PiController) IsDoorClosed() bool {
	if !c.opened {
		c.onError("error reading door sensor: gpio not available")
		return false
	}
	return c.doorPin.Read() == rpio.Low
}

func (c *PiController) ReadWeight() float64 {
	kg, err := c.scale.readKg()
	if err != nil {
		c.onError(fmt.Sprintf("error reading weight: %s", err))
		return 0.0
	}
	c.logger.Debugf("actual weight: %.2f kg", kg)
	return kg
}

func (c *PiController) ReadKeypadDigits(ctx context.Context, n int) (string, error) {
	if !c.opened {
		return "", fmt.Errorf("gpio not available")
	}
	return c.keypad.readDigits(ctx, n)
}

func (c *PiController) Cleanup() {
	if !c.opened {
		return
	}
	// safe default: never leave the door locked on exit
	c.lockPin.High()
	c.scale.shutdown()
	rpio.Close()
	c.opened = false
	c.logger.Info("gpio cleanup successful")
}
