package store

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates all tables on first use. Every statement is
// CREATE IF NOT EXISTS, so repeated calls are no-ops.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS documents (
			doc_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			doc_type TEXT NOT NULL,
			status TEXT NOT NULL,
			version_major INTEGER NOT NULL,
			version_minor INTEGER NOT NULL,
			file_path TEXT NOT NULL DEFAULT '',
			signing_pdf_path TEXT,
			created_by TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			published_at TIMESTAMP,
			valid_until TIMESTAMP,
			archived_at TIMESTAMP,
			archived_by TEXT,
			archive_reason TEXT
		);

		CREATE TABLE IF NOT EXISTS workflow_state (
			doc_id TEXT PRIMARY KEY REFERENCES documents(doc_id) ON DELETE CASCADE,
			workflow_active INTEGER NOT NULL DEFAULT 0,
			started_by TEXT,
			cycle INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS signatures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
			cycle INTEGER NOT NULL,
			role TEXT NOT NULL,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			signed_at TIMESTAMP NOT NULL,
			comment TEXT
		);

		CREATE TABLE IF NOT EXISTS assignments (
			doc_id TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			user_id TEXT NOT NULL,
			assigned_at TIMESTAMP NOT NULL,
			UNIQUE(doc_id, role, user_id)
		);

		CREATE TABLE IF NOT EXISTS comments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS status_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			user_id TEXT NOT NULL,
			reason TEXT,
			changed_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS document_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
			version_label TEXT NOT NULL,
			commit_hash TEXT NOT NULL,
			comment TEXT,
			user_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'VIEWER',
			can_start_workflow INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_signatures_doc ON signatures(doc_id, cycle);
		CREATE INDEX IF NOT EXISTS idx_assignments_doc ON assignments(doc_id);
		CREATE INDEX IF NOT EXISTS idx_comments_doc ON comments(doc_id);
		CREATE INDEX IF NOT EXISTS idx_status_history_doc ON status_history(doc_id);
		CREATE INDEX IF NOT EXISTS idx_versions_doc ON document_versions(doc_id);
	`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
