package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSession(driver Driver) *session {
	return &session{driver: driver, state: StateNotLoggedIn, logger: zap.NewNop()}
}

func TestLoginAnonymousWithoutCredentials(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{}
	s := newSession(driver)
	require.NoError(t, s.login(context.Background(), Config{BaseURL: "https://x.com"}))

	assert.Equal(t, StateAnonymous, s.state)
	assert.Empty(t, driver.navigated)
}

func TestLoginSucceeds(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{exists: map[string]bool{composeSelector: true}}
	s := newSession(driver)
	cfg := Config{BaseURL: "https://x.com", Username: "collector", Password: "hunter2"}
	require.NoError(t, s.login(context.Background(), cfg))

	assert.Equal(t, StateLoggedIn, s.state)
	require.NotEmpty(t, driver.navigated)
	assert.Equal(t, "https://x.com"+loginPath, driver.navigated[0])
	assert.Equal(t, "collector", driver.typed[usernameSelector])
	assert.Equal(t, "hunter2", driver.typed[passwordSelector])
}

func TestLoginHandlesVerificationPrompt(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{exists: map[string]bool{
		verificationSelector: true,
		composeSelector:      true,
	}}
	s := newSession(driver)
	cfg := Config{
		BaseURL:      "https://x.com",
		Username:     "collector",
		Password:     "hunter2",
		Verification: "collector@example.com",
	}
	require.NoError(t, s.login(context.Background(), cfg))

	assert.Equal(t, StateLoggedIn, s.state)
	assert.Equal(t, "collector@example.com", driver.typed[verificationSelector])
}

func TestLoginFailsWithoutVerificationValue(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{exists: map[string]bool{
		verificationSelector: true,
		composeSelector:      true,
	}}
	s := newSession(driver)
	cfg := Config{BaseURL: "https://x.com", Username: "collector", Password: "hunter2"}

	err := s.login(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Equal(t, StateLoginFailed, s.state)
}

func TestLoginFailsCapabilityProbe(t *testing.T) {
	t.Parallel()

	// All steps succeed but no authenticated-only control appears: the silent
	// failure mode the probe exists for.
	driver := &fakeDriver{exists: map[string]bool{composeSelector: false}}
	s := newSession(driver)
	cfg := Config{BaseURL: "https://x.com", Username: "collector", Password: "hunter2"}

	err := s.login(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Equal(t, StateLoginFailed, s.state)
}
