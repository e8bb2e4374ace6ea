package otp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(testSecret, 600*time.Second, zap.NewNop().Sugar())
}

func Test_GenerateAndVerify(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	code, err := m.Generate()
	assert.NoError(t, err)
	assert.Len(t, code, 6)
	assert.False(t, m.IsExpired())
	assert.True(t, m.Verify(code))

	assert.False(t, m.Verify("000000000"))
}

func Test_NeverGeneratedIsExpired(t *testing.T) {
	m := newTestManager(t)
	assert.True(t, m.IsExpired())
	assert.False(t, m.Verify("123456"))
}

func Test_RegenerateExtendsWindow(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	_, err := m.Generate()
	assert.NoError(t, err)

	now = base.Add(700 * time.Second)
	assert.True(t, m.IsExpired())

	code, err := m.Generate()
	assert.NoError(t, err)
	assert.False(t, m.IsExpired())
	assert.True(t, m.Verify(code))
}

func Test_ExpiryWindow(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	code, err := m.Generate()
	assert.NoError(t, err)

	// Just inside the window.
	now = base.Add(599 * time.Second)
	assert.False(t, m.IsExpired())
	assert.True(t, m.Verify(code))

	// Just past it: expired short-circuits verification even for the
	// correct code.
	now = base.Add(601 * time.Second)
	assert.True(t, m.IsExpired())
	assert.False(t, m.Verify(code))
}

func Test_SkewAcceptsAdjacentInterval(t *testing.T) {
	m := newTestManager(t)
	// Ten seconds before an interval boundary.
	base := time.Unix(600*100-10, 0).UTC()
	now := base
	m.now = func() time.Time { return now }

	code, err := m.Generate()
	assert.NoError(t, err)

	// The interval has rolled over but the validity window has not
	// elapsed; one interval of skew keeps the code working.
	now = base.Add(60 * time.Second)
	assert.False(t, m.IsExpired())
	assert.True(t, m.Verify(code))
}

func Test_Clear(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	code, err := m.Generate()
	assert.NoError(t, err)
	assert.True(t, m.Verify(code))

	m.Clear()
	assert.True(t, m.IsExpired())
	assert.False(t, m.Verify(code))
}

func Test_FailedVerifyDoesNotTouchExpiry(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	code, err := m.Generate()
	assert.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}
	assert.False(t, m.Verify(wrong))
	now = base.Add(300 * time.Second)
	assert.False(t, m.IsExpired())
	assert.True(t, m.Verify(code))
}
