package hardware

import (
	"fmt"

	"github.com/MichaelS11/go-hx711"
)

const weightSamples = 5

// scale wraps the HX711 load-cell amplifier. The reference unit comes from
// calibration against known weights and converts raw ADC counts to kg.
type scale struct {
	hx            *hx711.Hx711
	referenceUnit float64
}

func newScale(dataPin, clockPin string, referenceUnit float64) (*scale, error) {
	if err := hx711.HostInit(); err != nil {
		return nil, fmt.Errorf("initializing gpio host for hx711: %w", err)
	}

	hx, err := hx711.NewHx711(clockPin, dataPin)
	if err != nil {
		return nil, fmt.Errorf("creating hx711: %w", err)
	}

	if err := hx.Reset(); err != nil {
		return nil, fmt.Errorf("resetting hx711: %w", err)
	}

	return &scale{hx: hx, referenceUnit: referenceUnit}, nil
}

// readKg averages 5 raw samples, then powers the amplifier down to save
// energy until the next read.
func (s *scale) readKg() (float64, error) {
	raw := make([]int, 0, weightSamples)
	for i := 0; i < weightSamples; i++ {
		v, err := s.hx.ReadDataRaw()
		if err != nil {
			return 0, fmt.Errorf("reading hx711 sample %d: %w", i+1, err)
		}
		raw = append(raw, v)
	}

	if err := s.hx.Shutdown(); err != nil {
		return 0, fmt.Errorf("powering down hx711: %w", err)
	}
	if err := s.hx.Reset(); err != nil {
		return 0, fmt.Errorf("powering up hx711: %w", err)
	}

	return averageKg(raw, s.referenceUnit), nil
}

func (s *scale) shutdown() {
	// best effort, the process is exiting
	_ = s.hx.Shutdown()
}
