// Package otp issues and verifies the time-boxed collection code. The code
// is a standard TOTP derived from a provisioned shared secret, so the buyer
// side can generate the same value out-of-band.
package otp

import (
	"fmt"
	"sync"
	"time"

	otplib "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

type Manager struct {
	mu            sync.Mutex
	secret        string
	validDuration time.Duration
	createdAt     time.Time
	created       bool
	now           func() time.Time
	logger        *zap.SugaredLogger
}

// NewManager creates a manager for the given base32 secret. validDuration is
// both the TOTP interval and the expiry window, matching the deployed buyer
// tooling.
func NewManager(secret string, validDuration time.Duration, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		secret:        secret,
		validDuration: validDuration,
		now:           time.Now,
		logger:        logger,
	}
}

func (m *Manager) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(m.validDuration.Seconds()),
		Skew:      1,
		Digits:    otplib.DigitsSix,
		Algorithm: otplib.AlgorithmSHA1,
	}
}

// Generate records the creation time and returns the code for the current
// interval.
func (m *Manager) Generate() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	code, err := totp.GenerateCodeCustom(m.secret, now, m.opts())
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	m.createdAt = now
	m.created = true
	m.logger.Info("otp generated")
	return code, nil
}

// IsExpired reports true if no code was ever generated or the validity
// window has elapsed.
func (m *Manager) IsExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiredLocked()
}

func (m *Manager) expiredLocked() bool {
	if !m.created {
		return true
	}
	return m.now().Sub(m.createdAt) > m.validDuration
}

// Verify checks an entered code. Expiry is checked first and short-circuits;
// otherwise the code is compared against the current interval and the
// adjacent ones to absorb clock skew. A failed attempt never touches the
// expiry.
func (m *Manager) Verify(entered string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expiredLocked() {
		m.logger.Warn("otp verification failed: otp expired")
		return false
	}

	ok, err := totp.ValidateCustom(entered, m.secret, m.now(), m.opts())
	if err != nil {
		m.logger.Errorf("validating otp: %s", err)
		return false
	}
	m.logger.Infof("otp verification result: %t", ok)
	return ok
}

// Clear forgets the creation time; the next IsExpired reports true. Called
// on transaction reset.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = false
	m.createdAt = time.Time{}
}
