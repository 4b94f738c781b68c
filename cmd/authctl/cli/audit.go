package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-auth/internal/shared"
)

// AuditReader lists stored audit entries for a user.
type AuditReader interface {
	Recent(ctx context.Context, subjectID string, limit int) ([]shared.AuditLog, error)
}

// AuditCLI prints the audit trail of a single account.
type AuditCLI struct {
	reader AuditReader
}

// NewAuditCLI constructs the helper.
func NewAuditCLI(reader AuditReader) (*AuditCLI, error) {
	if reader == nil {
		return nil, errors.New("audit cli: reader is required")
	}
	return &AuditCLI{reader: reader}, nil
}

// AuditOptions configures the audit command.
type AuditOptions struct {
	UserID     string
	Limit      int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

type auditEntry struct {
	At      time.Time      `json:"at"`
	Action  string         `json:"action"`
	ActorID string         `json:"actor_id,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// AuditCommand prints the newest audit entries for -user.
func (c *AuditCLI) AuditCommand(ctx context.Context, opts AuditOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "audit: -user is required")
		return 1
	}
	if _, err := uuid.Parse(userID); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "audit: invalid user id %q\n", userID)
		return 1
	}

	logs, err := c.reader.Recent(ctx, userID, opts.Limit)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "audit: %v\n", err)
		return 1
	}

	entries := make([]auditEntry, 0, len(logs))
	for _, log := range logs {
		entries = append(entries, auditEntry{At: log.At.UTC(), Action: log.Action, ActorID: log.ActorID, Meta: log.Meta})
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "audit: encode json: %v\n", err)
			return 1
		}
		return 0
	}

	if len(entries) == 0 {
		_, _ = fmt.Fprintf(opts.Stdout, "no audit entries for %s\n", userID)
		return 0
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tACTION\tACTOR\tDETAILS")
	for _, entry := range entries {
		actor := entry.ActorID
		if actor == "" {
			actor = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", entry.At.Format(time.RFC3339), entry.Action, actor, formatMeta(entry.Meta))
	}
	if err := tw.Flush(); err != nil {
		return 1
	}
	return 0
}

func formatMeta(meta map[string]any) string {
	if len(meta) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, meta[key]))
	}
	return strings.Join(parts, " ")
}
