package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-auth/internal/shared"
)

type stubAuditReader struct {
	logs  []shared.AuditLog
	err   error
	limit int
}

func (s *stubAuditReader) Recent(ctx context.Context, subjectID string, limit int) ([]shared.AuditLog, error) {
	s.limit = limit
	return s.logs, s.err
}

const auditUser = "8a4f2a5e-3c1b-4c55-9d7e-1f2a3b4c5d6e"

func TestAuditCommandTable(t *testing.T) {
	reader := &stubAuditReader{logs: []shared.AuditLog{
		{Action: "user.role_changed", SubjectID: auditUser, ActorID: "admin-1", Meta: map[string]any{"role": "admin"}, At: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
		{Action: "user.registered", SubjectID: auditUser, At: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}}
	cli, err := NewAuditCLI(reader)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.AuditCommand(context.Background(), AuditOptions{UserID: auditUser, Limit: 5, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.Equal(t, 5, reader.limit)
	require.Contains(t, stdout.String(), "user.role_changed")
	require.Contains(t, stdout.String(), "role=admin")
	require.Contains(t, stdout.String(), "2026-03-01T09:00:00Z")
}

func TestAuditCommandJSON(t *testing.T) {
	reader := &stubAuditReader{logs: []shared.AuditLog{{Action: "user.login", SubjectID: auditUser, At: time.Now()}}}
	cli, err := NewAuditCLI(reader)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.AuditCommand(context.Background(), AuditOptions{UserID: auditUser, JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)

	var entries []auditEntry
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "user.login", entries[0].Action)
}

func TestAuditCommandValidation(t *testing.T) {
	cli, err := NewAuditCLI(&stubAuditReader{})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, cli.AuditCommand(context.Background(), AuditOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "-user is required")

	stderr.Reset()
	require.Equal(t, 1, cli.AuditCommand(context.Background(), AuditOptions{UserID: "nope", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "invalid user id")
}

func TestAuditCommandReaderError(t *testing.T) {
	cli, err := NewAuditCLI(&stubAuditReader{err: errors.New("db down")})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := cli.AuditCommand(context.Background(), AuditOptions{UserID: auditUser, Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "db down")
}

func TestAuditCommandEmpty(t *testing.T) {
	cli, err := NewAuditCLI(&stubAuditReader{})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	require.Equal(t, 0, cli.AuditCommand(context.Background(), AuditOptions{UserID: auditUser, Stdout: stdout, Stderr: new(bytes.Buffer)}))
	require.Contains(t, stdout.String(), "no audit entries")
}
