package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-auth/internal/auth"
	"github.com/odyssey-erp/odyssey-auth/internal/shared"
)

type stubAccounts struct {
	version   int
	err       error
	resent    []string
	roleCalls []auth.Role
}

func (s *stubAccounts) RevokeSessions(ctx context.Context, userID string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.version++
	return s.version, nil
}

func (s *stubAccounts) ResendVerification(ctx context.Context, userID string) error {
	if s.err != nil {
		return s.err
	}
	s.resent = append(s.resent, userID)
	return nil
}

func (s *stubAccounts) SetRole(ctx context.Context, userID string, role auth.Role) (auth.PublicUser, error) {
	if s.err != nil {
		return auth.PublicUser{}, s.err
	}
	s.roleCalls = append(s.roleCalls, role)
	return auth.PublicUser{ID: userID, Email: "ops@example.com", Role: role}, nil
}

func TestRevokeCommandJSON(t *testing.T) {
	svc := &stubAccounts{version: 2}
	cli, err := NewAccountsCLI(svc)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := cli.RevokeCommand(context.Background(), AccountOptions{UserID: " u-1 ", JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, 0, code)
	require.Empty(t, stderr.String())

	var result AccountResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
	require.Equal(t, "u-1", result.UserID)
	require.NotNil(t, result.TokenVersion)
	require.Equal(t, 3, *result.TokenVersion)
}

func TestRevokeCommandRequiresUser(t *testing.T) {
	cli, err := NewAccountsCLI(&stubAccounts{})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := cli.RevokeCommand(context.Background(), AccountOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "-user is required")
}

func TestRevokeCommandUnknownUser(t *testing.T) {
	cli, err := NewAccountsCLI(&stubAccounts{err: shared.NewError(shared.ErrNotFound, "user not found", nil)})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := cli.RevokeCommand(context.Background(), AccountOptions{UserID: "missing", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 4, code)
	require.Contains(t, stderr.String(), "user not found")
}

func TestResendCommandHuman(t *testing.T) {
	svc := &stubAccounts{}
	cli, err := NewAccountsCLI(svc)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.ResendCommand(context.Background(), AccountOptions{UserID: "u-9", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.Equal(t, []string{"u-9"}, svc.resent)
	require.Contains(t, stdout.String(), "verification email queued for u-9")
}

func TestRoleCommandNormalisesRole(t *testing.T) {
	svc := &stubAccounts{}
	cli, err := NewAccountsCLI(svc)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.RoleCommand(context.Background(), AccountOptions{UserID: "u-1", Role: " ADMIN ", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.Equal(t, []auth.Role{auth.RoleAdmin}, svc.roleCalls)
	require.Contains(t, stdout.String(), "ops@example.com is now admin")
}

func TestInternalErrorsStayGeneric(t *testing.T) {
	cli, err := NewAccountsCLI(&stubAccounts{err: shared.NewError(shared.ErrInternal, "internal server error", context.DeadlineExceeded)})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := cli.ResendCommand(context.Background(), AccountOptions{UserID: "u-1", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Equal(t, "resend: internal server error\n", stderr.String())
}
