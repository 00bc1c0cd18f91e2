package session

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/cloudplay/internal/backend"
)

// Caller executes remote calls. Satisfied by *bridge.Bridge.
type Caller interface {
	Call(ctx context.Context, fn backend.Function) (backend.Object, error)
}

// Authenticator submits login credentials. Credential formats are not
// checked locally; the backend's verdict is returned unchanged and the
// resulting phase arrives through the Tracker.
type Authenticator struct {
	caller  Caller
	tracker *Tracker
	logger  *slog.Logger
}

func NewAuthenticator(caller Caller, tracker *Tracker, logger *slog.Logger) *Authenticator {
	return &Authenticator{caller: caller, tracker: tracker, logger: logger}
}

func (a *Authenticator) SubmitPhoneNumber(ctx context.Context, phone string) error {
	return a.submit(ctx, backend.SetAuthenticationPhoneNumber{PhoneNumber: phone})
}

func (a *Authenticator) SubmitCode(ctx context.Context, code string) error {
	return a.submit(ctx, backend.CheckAuthenticationCode{Code: code})
}

func (a *Authenticator) SubmitPassword(ctx context.Context, password string) error {
	return a.submit(ctx, backend.CheckAuthenticationPassword{Password: password})
}

// LogOut ends the backend session. The tracker moves back to
// Unauthenticated once the backend reports the session closed.
func (a *Authenticator) LogOut(ctx context.Context) error {
	return a.submit(ctx, backend.LogOut{})
}

// IsLoggedIn reports whether the session is in the Ready phase.
func (a *Authenticator) IsLoggedIn() bool {
	return a.tracker.Phase() == Ready
}

func (a *Authenticator) submit(ctx context.Context, fn backend.Function) error {
	if _, err := a.caller.Call(ctx, fn); err != nil {
		a.logger.Debug("authentication step rejected",
			slog.String("function", fn.Type()),
			slog.String("error", err.Error()),
		)

		return err
	}

	a.logger.Debug("authentication step accepted", slog.String("function", fn.Type()))

	return nil
}
