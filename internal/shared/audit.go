package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in auth_audit_logs.
type AuditLog struct {
	// ActorID is the user performing the action; empty for operators and
	// anonymous callers.
	ActorID string
	Action  string
	// SubjectID is the user the action applies to.
	SubjectID string
	Meta      map[string]any
	At        time.Time
}

// Validate reports whether the entry can be stored.
func (l AuditLog) Validate() error {
	if l.Action == "" || l.SubjectID == "" {
		return errors.New("audit log requires action/subject_id")
	}
	return nil
}

// AuditLogger writes records into auth_audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	var actor *string
	if log.ActorID != "" {
		actor = &log.ActorID
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO auth_audit_logs (actor_id, action, subject_id, meta, occurred_at) VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		actor, log.Action, log.SubjectID, metaJSON, at)
	return err
}

// Recent returns the latest entries for subjectID, newest first.
func (l *AuditLogger) Recent(ctx context.Context, subjectID string, limit int) ([]AuditLog, error) {
	if l == nil || l.pool == nil {
		return nil, errors.New("audit logger not initialised")
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx, `
		SELECT COALESCE(actor_id::text, ''), action, subject_id::text, meta, occurred_at
		FROM auth_audit_logs
		WHERE subject_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2`, subjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var (
			entry AuditLog
			meta  []byte
		)
		if err := rows.Scan(&entry.ActorID, &entry.Action, &entry.SubjectID, &meta, &entry.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Meta); err != nil {
				return nil, err
			}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
