package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"incidentreg/core/utils"
)

//go:embed migrations/*.sql
var gooseMigrations embed.FS

// sqliteMigrations mirrors migrations/*.sql for the sqlite runtime used by
// tests and local development.
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS access_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS access_group_members (
		group_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		PRIMARY KEY (group_id, username),
		FOREIGN KEY(group_id) REFERENCES access_groups(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS regions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		slug TEXT UNIQUE NOT NULL,
		group_id INTEGER UNIQUE NOT NULL,
		FOREIGN KEY(group_id) REFERENCES access_groups(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS school_districts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		twitter TEXT NOT NULL DEFAULT '',
		facebook TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		superintendent_name TEXT NOT NULL DEFAULT '',
		superintendent_email TEXT NOT NULL DEFAULT '',
		civil_rights_url TEXT NOT NULL DEFAULT '',
		civil_rights_contact_name TEXT NOT NULL DEFAULT '',
		civil_rights_contact_email TEXT NOT NULL DEFAULT '',
		hib_url TEXT NOT NULL DEFAULT '',
		hib_form_url TEXT NOT NULL DEFAULT '',
		hib_contact_name TEXT NOT NULL DEFAULT '',
		hib_contact_email TEXT NOT NULL DEFAULT '',
		board_url TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS schools (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		district_id INTEGER,
		street TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		zip_code TEXT NOT NULL DEFAULT '',
		latitude REAL,
		longitude REAL,
		is_public BOOLEAN NOT NULL DEFAULT 1,
		is_elementary BOOLEAN NOT NULL DEFAULT 0,
		is_middle BOOLEAN NOT NULL DEFAULT 0,
		is_high BOOLEAN NOT NULL DEFAULT 0,
		FOREIGN KEY(district_id) REFERENCES school_districts(id) ON DELETE SET NULL,
		CHECK (is_elementary OR is_middle OR is_high)
	);`,
	`CREATE TABLE IF NOT EXISTS incident_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS source_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		region_id INTEGER NOT NULL,
		school_id INTEGER NOT NULL,
		description TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		published_at TIMESTAMP,
		occurred_at VARCHAR(10) NOT NULL,
		reported_to_school BOOLEAN NOT NULL DEFAULT 0,
		reported_at VARCHAR(10),
		school_responded_at VARCHAR(10),
		school_response TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(region_id) REFERENCES regions(id) ON DELETE CASCADE,
		FOREIGN KEY(school_id) REFERENCES schools(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS incident_incident_types (
		incident_id INTEGER NOT NULL,
		incident_type_id INTEGER NOT NULL,
		PRIMARY KEY (incident_id, incident_type_id),
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE CASCADE,
		FOREIGN KEY(incident_type_id) REFERENCES incident_types(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS incident_source_types (
		incident_id INTEGER NOT NULL,
		source_type_id INTEGER NOT NULL,
		PRIMARY KEY (incident_id, source_type_id),
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE CASCADE,
		FOREIGN KEY(source_type_id) REFERENCES source_types(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS related_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		data BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS incident_extras (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		attachment_id INTEGER,
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE CASCADE,
		FOREIGN KEY(attachment_id) REFERENCES attachments(id) ON DELETE SET NULL
	);`,
	`CREATE TABLE IF NOT EXISTS incident_supporting_attachments (
		incident_id INTEGER NOT NULL,
		attachment_id INTEGER NOT NULL,
		PRIMARY KEY (incident_id, attachment_id),
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE CASCADE,
		FOREIGN KEY(attachment_id) REFERENCES attachments(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS incident_response_attachments (
		incident_id INTEGER NOT NULL,
		attachment_id INTEGER NOT NULL,
		PRIMARY KEY (incident_id, attachment_id),
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE CASCADE,
		FOREIGN KEY(attachment_id) REFERENCES attachments(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS district_logos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		data BLOB NOT NULL,
		district_id INTEGER UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(district_id) REFERENCES school_districts(id) ON DELETE SET NULL
	);`,
	`CREATE TABLE IF NOT EXISTS supporting_materials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		data BLOB NOT NULL,
		incident_id INTEGER,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE SET NULL
	);`,
	`CREATE TABLE IF NOT EXISTS school_response_materials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		data BLOB NOT NULL,
		incident_id INTEGER,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(incident_id) REFERENCES incidents(id) ON DELETE SET NULL
	);`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT,
		created_at TIMESTAMP NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_region ON incidents(region_id);`,
	`CREATE INDEX IF NOT EXISTS idx_supporting_materials_incident ON supporting_materials(incident_id);`,
	`CREATE INDEX IF NOT EXISTS idx_school_response_materials_incident ON school_response_materials(incident_id);`,
	`CREATE INDEX IF NOT EXISTS idx_incident_extras_attachment ON incident_extras(attachment_id);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at);`,
}

func ApplyMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	if !db.IsPostgres() {
		return applySQLiteMigrations(ctx, db, logger)
	}
	return applyGooseMigrations(ctx, db, logger)
}

func applyGooseMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	goose.SetBaseFS(gooseMigrations)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func applySQLiteMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	if logger != nil {
		logger.Printf("applying sqlite migrations")
	}
	for i, stmt := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
		}
	}
	post := []func(context.Context, *DB) error{
		ensureIncidentColumns,
		ensureGroupColumns,
	}
	for _, fn := range post {
		if err := fn(ctx, db); err != nil {
			return err
		}
	}
	if logger != nil {
		logger.Printf("sqlite migrations applied")
	}
	return nil
}

type columnSpec struct {
	Name string
	SQL  string
}

func ensureColumns(ctx context.Context, db *DB, table string, cols []columnSpec) error {
	for _, c := range cols {
		exists, err := columnExists(ctx, db, table, c.Name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.ExecContext(ctx, c.SQL); err != nil {
			return fmt.Errorf("add %s.%s: %w", table, c.Name, err)
		}
		logMigrationAudit(ctx, db, "migration.column.add", table+"."+c.Name)
	}
	return nil
}

// published_by arrived after the first schema revision.
func ensureIncidentColumns(ctx context.Context, db *DB) error {
	return ensureColumns(ctx, db, "incidents", []columnSpec{
		{Name: "published_by", SQL: `ALTER TABLE incidents ADD COLUMN published_by TEXT NOT NULL DEFAULT ''`},
	})
}

func ensureGroupColumns(ctx context.Context, db *DB) error {
	return ensureColumns(ctx, db, "access_groups", []columnSpec{
		{Name: "updated_at", SQL: `ALTER TABLE access_groups ADD COLUMN updated_at TIMESTAMP`},
	})
}

func columnExists(ctx context.Context, db *DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt interface{}
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func logMigrationAudit(ctx context.Context, db *DB, action, details string) {
	_, _ = db.ExecContext(ctx, `
		INSERT INTO audit_log(username, action, details, created_at)
		VALUES('system', ?, ?, CURRENT_TIMESTAMP)
	`, action, details)
}

type gooseLogger struct {
	logger *utils.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	if l.logger != nil {
		l.logger.Printf(format, v...)
	}
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	if l.logger != nil {
		l.logger.Errorf(format, v...)
	}
	panic(fmt.Sprintf(format, v...))
}
