package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chzyer/readline"
)

// Prompter surfaces the out-of-band interaction the device flow needs: the
// user must confirm they completed the verification step in a browser before
// polling keeps any meaning, and gets told when the login landed.
type Prompter interface {
	// ConfirmDeviceLogin shows the verification URI and user code and asks
	// whether to proceed. Returning false cancels the flow.
	ConfirmDeviceLogin(ctx context.Context, verificationURI, userCode string) (bool, error)

	// NotifyLoginComplete reports a successful login.
	NotifyLoginComplete(strategy string)
}

// ConsolePrompter asks on the controlling terminal.
type ConsolePrompter struct{}

func (ConsolePrompter) ConfirmDeviceLogin(ctx context.Context, verificationURI, userCode string) (bool, error) {
	fmt.Printf("\nTo sign in, open the following URL and enter the code shown:\n\n")
	fmt.Printf("  %s\n\n  Code: %s\n\n", verificationURI, userCode)

	rl, err := readline.New("Continue waiting for login? [Y/n]: ")
	if err != nil {
		return false, fmt.Errorf("opening terminal prompt: %w", err)
	}
	defer rl.Close()

	// readline blocks without ctx awareness; close it when ctx ends so the
	// Readline call returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			rl.Close()
		case <-done:
		}
	}()

	line, err := rl.Readline()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// EOF and interrupt both read as "no".
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes", nil
}

func (ConsolePrompter) NotifyLoginComplete(strategy string) {
	fmt.Printf("Login complete (%s).\n", strategy)
}

// LogPrompter auto-confirms and logs the verification details. Used when the
// process has no terminal, e.g. running as an MCP server over stdio.
type LogPrompter struct {
	Logger *slog.Logger
}

func (p LogPrompter) ConfirmDeviceLogin(_ context.Context, verificationURI, userCode string) (bool, error) {
	p.Logger.Info("device login pending",
		slog.String("verification_uri", verificationURI),
		slog.String("user_code", userCode))
	return true, nil
}

func (p LogPrompter) NotifyLoginComplete(strategy string) {
	p.Logger.Info("login complete", slog.String("strategy", strategy))
}
