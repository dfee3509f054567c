package store

import (
	"context"
	"strings"
	"time"
)

type AuditStore interface {
	Log(ctx context.Context, username, action, details string) error
	List(ctx context.Context, action string, limit int) ([]AuditEntry, error)
}

type auditStore struct {
	db *DB
}

func NewAuditStore(db *DB) AuditStore {
	return &auditStore{db: db}
}

func (s *auditStore) Log(ctx context.Context, username, action, details string) error {
	if strings.TrimSpace(username) == "" {
		username = "system"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log(username, action, details, created_at) VALUES(?, ?, ?, ?)`,
		username, action, details, time.Now().UTC())
	return err
}

// List returns the newest entries first. An empty action matches everything.
func (s *auditStore) List(ctx context.Context, action string, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, username, action, COALESCE(details, ''), created_at FROM audit_log`
	var args []any
	if action != "" {
		query += ` WHERE action=?`
		args = append(args, action)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
