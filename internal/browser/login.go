package browser

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// SessionState is the login state machine position for the browser session.
type SessionState string

// Session states. LOGIN_FAILED is absorbing: once entered, the session stays
// there for its lifetime. ANONYMOUS is the degraded-but-valid mode used when
// no credentials are configured.
const (
	StateAnonymous           SessionState = "ANONYMOUS"
	StateNotLoggedIn         SessionState = "NOT_LOGGED_IN"
	StateEnteringCredentials SessionState = "ENTERING_CREDENTIALS"
	StateAwaitingSecondFact  SessionState = "AWAITING_SECONDARY_FACTOR"
	StateLoggedIn            SessionState = "LOGGED_IN"
	StateLoginFailed         SessionState = "LOGIN_FAILED"
)

// ErrLoginFailed marks a failed authenticated-session establishment.
var ErrLoginFailed = errors.New("login failed")

// Selectors and paths for the login flow. The page structure is not ours, so
// every interactive step also has textual and script-level fallbacks.
const (
	loginPath            = "/i/flow/login"
	usernameSelector     = `input[autocomplete="username"]`
	passwordSelector     = `input[name="password"]`
	verificationSelector = `input[data-testid="ocfEnterTextTextInput"]`
	nextButtonSelector   = `button[data-testid="ocfLoginNextButton"]`
	loginButtonSelector  = `button[data-testid="LoginForm_Login_Button"]`

	// composeSelector is the authenticated-only affordance used as the login
	// capability probe. A silently failed login shows no errors; only the
	// presence of this control distinguishes success.
	composeSelector = `a[data-testid="SideNav_NewTweet_Button"]`
)

// session binds a driver to its login state for the duration of one run.
type session struct {
	driver Driver
	state  SessionState
	logger *zap.Logger
}

// step is one named fallback attempt within an interactive login step.
type step struct {
	name string
	do   func(ctx context.Context) error
}

// tryChain attempts each strategy in order, stopping at the first success.
// All strategies failing is a hard failure for the login attempt.
func (s *session) tryChain(ctx context.Context, action string, chain ...step) error {
	var lastErr error
	for _, st := range chain {
		err := st.do(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("login step strategy failed",
			zap.String("action", action),
			zap.String("strategy", st.name),
			zap.Error(err),
		)
		lastErr = err
	}
	return fmt.Errorf("%s: all strategies failed: %w", action, lastErr)
}

// login walks the session state machine. Without configured credentials the
// session stays ANONYMOUS, which is a reduced-completeness mode, not an
// error. Any step failure or a failed capability probe ends in LOGIN_FAILED.
func (s *session) login(ctx context.Context, cfg Config) error {
	if cfg.Username == "" || cfg.Password == "" {
		s.state = StateAnonymous
		s.logger.Info("no credentials configured, proceeding anonymously")
		return nil
	}

	s.state = StateNotLoggedIn
	if err := s.driver.Navigate(ctx, cfg.BaseURL+loginPath); err != nil {
		return s.fail(fmt.Errorf("open login page: %w", err))
	}

	s.state = StateEnteringCredentials
	if err := s.enterField(ctx, "username", usernameSelector, cfg.Username); err != nil {
		return s.fail(err)
	}
	if err := s.advance(ctx); err != nil {
		return s.fail(err)
	}
	if err := s.enterField(ctx, "password", passwordSelector, cfg.Password); err != nil {
		return s.fail(err)
	}
	if err := s.submit(ctx); err != nil {
		return s.fail(err)
	}

	prompted, err := s.driver.Exists(ctx, verificationSelector)
	if err != nil {
		return s.fail(fmt.Errorf("check verification prompt: %w", err))
	}
	if prompted {
		s.state = StateAwaitingSecondFact
		if cfg.Verification == "" {
			return s.fail(errors.New("verification prompt shown but no verification value configured"))
		}
		if err := s.enterField(ctx, "verification", verificationSelector, cfg.Verification); err != nil {
			return s.fail(err)
		}
		if err := s.advance(ctx); err != nil {
			return s.fail(err)
		}
	}

	// Capability probe: require a visible authenticated-only control rather
	// than the mere absence of error messages.
	loggedIn, err := s.driver.Exists(ctx, composeSelector)
	if err != nil {
		return s.fail(fmt.Errorf("capability probe: %w", err))
	}
	if !loggedIn {
		return s.fail(errors.New("capability probe found no authenticated UI"))
	}
	s.state = StateLoggedIn
	s.logger.Info("browser session authenticated")
	return nil
}

func (s *session) fail(cause error) error {
	s.state = StateLoginFailed
	return fmt.Errorf("%w: %w", ErrLoginFailed, cause)
}

func (s *session) enterField(ctx context.Context, field, selector, value string) error {
	return s.tryChain(ctx, "enter "+field,
		step{"structural", func(ctx context.Context) error {
			return s.driver.SendKeys(ctx, selector, value)
		}},
		step{"script", func(ctx context.Context) error {
			return s.driver.Eval(ctx, fmt.Sprintf(`(() => {
				const el = document.querySelector(%q);
				if (!el) { throw new Error("field not found"); }
				el.value = %q;
				el.dispatchEvent(new Event("input", { bubbles: true }));
			})()`, selector, value))
		}},
	)
}

func (s *session) advance(ctx context.Context) error {
	return s.tryChain(ctx, "advance",
		step{"structural", func(ctx context.Context) error {
			return s.driver.Click(ctx, nextButtonSelector)
		}},
		step{"textual", func(ctx context.Context) error {
			return s.driver.ClickText(ctx, "Next")
		}},
		step{"textual-id", func(ctx context.Context) error {
			return s.driver.ClickText(ctx, "Berikutnya")
		}},
		step{"script", func(ctx context.Context) error {
			return s.driver.Eval(ctx, advanceScript)
		}},
	)
}

func (s *session) submit(ctx context.Context) error {
	return s.tryChain(ctx, "submit",
		step{"structural", func(ctx context.Context) error {
			return s.driver.Click(ctx, loginButtonSelector)
		}},
		step{"textual", func(ctx context.Context) error {
			return s.driver.ClickText(ctx, "Log in")
		}},
		step{"textual-id", func(ctx context.Context) error {
			return s.driver.ClickText(ctx, "Masuk")
		}},
		step{"script", func(ctx context.Context) error {
			return s.driver.Eval(ctx, submitScript)
		}},
	)
}

const (
	advanceScript = `(() => {
		const buttons = [...document.querySelectorAll('button[role="button"], div[role="button"]')];
		const next = buttons.find(b => /next|berikutnya/i.test(b.textContent));
		if (!next) { throw new Error("next button not found"); }
		next.click();
	})()`

	submitScript = `(() => {
		const buttons = [...document.querySelectorAll('button[role="button"], div[role="button"]')];
		const submit = buttons.find(b => /log in|masuk/i.test(b.textContent));
		if (!submit) { throw new Error("submit button not found"); }
		submit.click();
	})()`
)
