package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tonimelisma/cloudplay/internal/bridge"
	"github.com/tonimelisma/cloudplay/internal/config"
	"github.com/tonimelisma/cloudplay/internal/session"
	"github.com/tonimelisma/cloudplay/internal/tokenfile"
)

// maxLoginAttempts bounds re-prompts after the backend rejects a value.
const maxLoginAttempts = 3

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the chat cloud",
		Long: `Connect to the gateway and sign in with a phone number, a login code and,
if the account has one, a two-step verification password.

--gateway-token saves the gateway's bearer token first, so later commands
can connect without CLOUDPLAY_GATEWAY_TOKEN.`,
		RunE: runLogin,
	}

	cmd.Flags().String("phone", "", "phone number in international format (prompted if empty)")
	cmd.Flags().String("gateway-token", "", "bearer token to save for the gateway")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the chat session",
		RunE:  runLogout,
	}

	cmd.Flags().Bool("purge", false, "also delete the saved gateway token")

	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	tokenPath := config.TokenFilePath(cc.Cfg.DataDir)

	if secret, _ := cmd.Flags().GetString("gateway-token"); secret != "" {
		meta := map[string]string{tokenfile.MetaGatewayURL: cc.Cfg.Backend.GatewayURL}
		if err := tokenfile.Save(tokenPath, tokenfile.Bearer(secret), meta); err != nil {
			return err
		}

		cc.Logger.Info("gateway token saved", slog.String("path", tokenPath))
	}

	gs, err := connectGateway(ctx, cc)
	if err != nil {
		return err
	}
	defer gs.Close()

	phone, _ := cmd.Flags().GetString("phone")
	prompter := newTerminalPrompter(os.Stdin, os.Stderr)

	if err := runLoginSteps(ctx, gs.Tracker, gs.Auth, prompter, phone, cc.Logger); err != nil {
		return err
	}

	// Cached for status output. Anonymous gateways have no token file to hold it.
	if phone != "" {
		if err := tokenfile.LoadAndMergeMeta(tokenPath, map[string]string{tokenfile.MetaPhone: phone}); err != nil &&
			!errors.Is(err, tokenfile.ErrNoToken) {
			cc.Logger.Warn("could not cache login metadata", slog.String("error", err.Error()))
		}
	}

	cc.Statusf("Login successful.\n")

	return nil
}

// prompter reads login values from the user.
type prompter interface {
	Line(label string) (string, error)
	Secret(label string) (string, error)
}

// loginAuth is the part of session.Authenticator the login loop drives.
type loginAuth interface {
	SubmitPhoneNumber(ctx context.Context, phone string) error
	SubmitCode(ctx context.Context, code string) error
	SubmitPassword(ctx context.Context, password string) error
}

// runLoginSteps answers each login prompt the backend asks for until the
// session is Ready. phone, when set, answers the first phone prompt.
func runLoginSteps(
	ctx context.Context, tracker *session.Tracker, auth loginAuth, p prompter, phone string, logger *slog.Logger,
) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	phases := tracker.Watch(wctx)

	for {
		var phase session.Phase

		select {
		case <-ctx.Done():
			return ctx.Err()
		case next, ok := <-phases:
			if !ok {
				return ctx.Err()
			}

			phase = next
		}

		logger.Debug("login phase", slog.String("phase", phase.String()))

		var err error

		switch phase {
		case session.Ready:
			return nil
		case session.AwaitingPhoneNumber:
			err = submitWithRetry(ctx, func() (string, error) {
				if phone != "" {
					v := phone
					phone = ""

					return v, nil
				}

				return p.Line("Phone number")
			}, auth.SubmitPhoneNumber)
		case session.AwaitingCode:
			err = submitWithRetry(ctx, func() (string, error) { return p.Line("Login code") }, auth.SubmitCode)
		case session.AwaitingPassword:
			err = submitWithRetry(ctx, func() (string, error) { return p.Secret("Password") }, auth.SubmitPassword)
		default:
			continue
		}

		if err != nil {
			return err
		}
	}
}

// submitWithRetry reads a value and submits it, asking again when the
// backend rejects it.
func submitWithRetry(ctx context.Context, read func() (string, error), submit func(context.Context, string) error) error {
	var lastErr error

	for range maxLoginAttempts {
		v, err := read()
		if err != nil {
			return err
		}

		lastErr = submit(ctx, v)
		if lastErr == nil {
			return nil
		}

		var remote *bridge.RemoteError
		if !errors.As(lastErr, &remote) {
			return lastErr
		}

		fmt.Fprintf(os.Stderr, "Rejected: %s\n", remote.Message)
	}

	return fmt.Errorf("giving up after %d attempts: %w", maxLoginAttempts, lastErr)
}

// terminalPrompter prompts on out and reads from in. Secrets are read
// without echo when in is a terminal.
type terminalPrompter struct {
	in     *os.File
	out    io.Writer
	reader *bufio.Reader
}

func newTerminalPrompter(in *os.File, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: in, out: out, reader: bufio.NewReader(in)}
}

func (t *terminalPrompter) Line(label string) (string, error) {
	fmt.Fprintf(t.out, "%s: ", label)

	line, err := t.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}

	return strings.TrimSpace(line), nil
}

func (t *terminalPrompter) Secret(label string) (string, error) {
	fd := int(t.in.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return t.Line(label)
	}

	fmt.Fprintf(t.out, "%s: ", label)

	b, err := term.ReadPassword(fd)
	fmt.Fprintln(t.out)

	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}

	return string(b), nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	gs, err := connectGateway(ctx, cc)
	if err != nil {
		return err
	}
	defer gs.Close()

	phase, err := gs.WaitSettled(ctx, cc.Cfg.Backend.ConnectTimeout)
	if err != nil {
		return err
	}

	if phase == session.Ready {
		if err := gs.Auth.LogOut(ctx); err != nil {
			return fmt.Errorf("logging out: %w", err)
		}

		cc.Logger.Info("logout successful")
	} else {
		cc.Logger.Info("session was not logged in", slog.String("phase", phase.String()))
	}

	if purge, _ := cmd.Flags().GetBool("purge"); purge {
		if err := tokenfile.Delete(config.TokenFilePath(cc.Cfg.DataDir)); err != nil {
			return err
		}
	}

	cc.Statusf("Logged out.\n")

	return nil
}
