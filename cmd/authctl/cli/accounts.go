package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/odyssey-auth/internal/auth"
	"github.com/odyssey-erp/odyssey-auth/internal/shared"
)

// AccountService is the slice of auth.Service used by operator commands.
type AccountService interface {
	RevokeSessions(ctx context.Context, userID string) (int, error)
	ResendVerification(ctx context.Context, userID string) error
	SetRole(ctx context.Context, userID string, role auth.Role) (auth.PublicUser, error)
}

// AccountsCLI exposes operator helpers for user credentials.
type AccountsCLI struct {
	service AccountService
}

// NewAccountsCLI constructs the helper.
func NewAccountsCLI(service AccountService) (*AccountsCLI, error) {
	if service == nil {
		return nil, errors.New("accounts cli: service is required")
	}
	return &AccountsCLI{service: service}, nil
}

// AccountOptions configures a single-user command.
type AccountOptions struct {
	UserID     string
	Role       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// AccountResult is the structured outcome printed with -json.
type AccountResult struct {
	UserID       string `json:"user_id"`
	Action       string `json:"action"`
	TokenVersion *int   `json:"token_version,omitempty"`
	Role         string `json:"role,omitempty"`
}

func (o *AccountOptions) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	o.UserID = strings.TrimSpace(o.UserID)
}

// RevokeCommand increments the user's token version. Exit codes: 0 success,
// 1 usage or internal failure, 4 unknown user.
func (c *AccountsCLI) RevokeCommand(ctx context.Context, opts AccountOptions) int {
	opts.defaults()
	if opts.UserID == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "revoke: -user is required")
		return 1
	}
	version, err := c.service.RevokeSessions(ctx, opts.UserID)
	if err != nil {
		return reportError(opts.Stderr, "revoke", err)
	}
	return emit(opts, AccountResult{UserID: opts.UserID, Action: "revoke", TokenVersion: &version},
		fmt.Sprintf("sessions revoked for %s (token version %d)", opts.UserID, version))
}

// ResendCommand re-sends the verification email for an unverified user.
func (c *AccountsCLI) ResendCommand(ctx context.Context, opts AccountOptions) int {
	opts.defaults()
	if opts.UserID == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "resend: -user is required")
		return 1
	}
	if err := c.service.ResendVerification(ctx, opts.UserID); err != nil {
		return reportError(opts.Stderr, "resend", err)
	}
	return emit(opts, AccountResult{UserID: opts.UserID, Action: "resend"},
		fmt.Sprintf("verification email queued for %s", opts.UserID))
}

// RoleCommand assigns a role and revokes existing sessions.
func (c *AccountsCLI) RoleCommand(ctx context.Context, opts AccountOptions) int {
	opts.defaults()
	if opts.UserID == "" || opts.Role == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "role: -user and -role are required")
		return 1
	}
	user, err := c.service.SetRole(ctx, opts.UserID, auth.Role(strings.ToLower(strings.TrimSpace(opts.Role))))
	if err != nil {
		return reportError(opts.Stderr, "role", err)
	}
	return emit(opts, AccountResult{UserID: user.ID, Action: "role", Role: string(user.Role)},
		fmt.Sprintf("%s is now %s", user.Email, user.Role))
}

func emit(opts AccountOptions, result AccountResult, human string) int {
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(result); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "%s: encode json: %v\n", result.Action, err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintln(opts.Stdout, human)
	return 0
}

func reportError(w io.Writer, command string, err error) int {
	_, _ = fmt.Fprintf(w, "%s: %s\n", command, shared.UserSafeMessage(err))
	if errors.Is(err, shared.ErrNotFound) {
		return 4
	}
	return 1
}
