package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"qmdoc/core/internal/policy"
)

// ErrPolicyViolation marks mutations rejected by workflow policy before
// anything was persisted.
var ErrPolicyViolation = errors.New("policy violation")

// SQLite is the embedded-database backing store for all repository
// ports. Every mutating method runs in one transaction.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func versionLabel(major, minor int) string {
	return fmt.Sprintf("%d.%d", major, minor)
}

func (s *SQLite) CreateDocument(ctx context.Context, item Document) (Document, error) {
	now := time.Now().UTC()
	item.Status = policy.StatusDraft
	item.VersionMajor = 1
	item.VersionMinor = 0
	item.CreatedAt = now
	item.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin create document: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (doc_id, title, description, doc_type, status, version_major, version_minor, file_path, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Title, item.Description, item.DocType, string(item.Status), item.VersionMajor, item.VersionMinor, item.FilePath, item.CreatedBy, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_state (doc_id, workflow_active, cycle) VALUES (?, 0, 0)
	`, item.ID)
	if err != nil {
		return Document{}, fmt.Errorf("init workflow state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("commit create document: %w", err)
	}
	return item, nil
}

const documentColumns = `doc_id, title, description, doc_type, status, version_major, version_minor,
	file_path, COALESCE(signing_pdf_path, ''), created_by, created_at, updated_at,
	published_at, valid_until, archived_at, COALESCE(archived_by, ''), COALESCE(archive_reason, '')`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var item Document
	var status string
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.DocType, &status,
		&item.VersionMajor, &item.VersionMinor, &item.FilePath, &item.SigningPDF,
		&item.CreatedBy, &item.CreatedAt, &item.UpdatedAt,
		&item.PublishedAt, &item.ValidUntil, &item.ArchivedAt, &item.ArchivedBy, &item.ArchiveReason)
	if err != nil {
		return Document{}, err
	}
	item.Status = policy.Status(status)
	return item, nil
}

func (s *SQLite) GetDocument(ctx context.Context, docID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_id=?`, docID)
	return scanDocument(row)
}

func (s *SQLite) DocumentExists(ctx context.Context, docID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE doc_id=?)`, docID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check document exists: %w", err)
	}
	return exists, nil
}

// ListDocuments applies the optional filters and sorts by last activity,
// newest first.
func (s *SQLite) ListDocuments(ctx context.Context, filter SearchFilter) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents d WHERE 1=1`
	args := make([]any, 0, 4)

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.DocType != "" {
		query += ` AND doc_type = ?`
		args = append(args, filter.DocType)
	}
	if text := strings.TrimSpace(filter.Text); text != "" {
		query += ` AND (title LIKE ? OR doc_id LIKE ? OR description LIKE ?)`
		like := "%" + text + "%"
		args = append(args, like, like, like)
	}
	if filter.ActiveOnly {
		query += ` AND EXISTS(SELECT 1 FROM workflow_state w WHERE w.doc_id = d.doc_id AND w.workflow_active = 1)`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *SQLite) UpdateDocumentMetadata(ctx context.Context, docID, title, description, docType string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET title=?, description=?, doc_type=?, updated_at=? WHERE doc_id=?
	`, title, description, docType, time.Now().UTC(), docID)
	if err != nil {
		return fmt.Errorf("update document metadata: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLite) DeleteDocument(ctx context.Context, docID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id=?`, docID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetStatus validates the requested edge against the transition graph
// inside the transaction and, only then, persists the new status plus a
// status_history audit row. Invalid targets fail before any write.
func (s *SQLite) SetStatus(ctx context.Context, docID string, to policy.Status, userID, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set status: %w", err)
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE doc_id=?`, docID).Scan(&raw); err != nil {
		return err
	}
	from := policy.Status(raw)
	if err := policy.ValidateTransition(from, to); err != nil {
		return fmt.Errorf("%w: %s", ErrPolicyViolation, err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET status=?, updated_at=? WHERE doc_id=?
	`, string(to), now, docID); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO status_history (doc_id, from_status, to_status, user_id, reason, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, docID, string(from), string(to), userID, reason, now); err != nil {
		return fmt.Errorf("record status change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set status: %w", err)
	}
	return nil
}

func (s *SQLite) ListStatusHistory(ctx context.Context, docID string) ([]StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, from_status, to_status, user_id, COALESCE(reason, ''), changed_at
		FROM status_history WHERE doc_id=? ORDER BY changed_at ASC, id ASC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	items := make([]StatusChange, 0)
	for rows.Next() {
		var item StatusChange
		var from, to string
		if err := rows.Scan(&item.ID, &item.DocID, &from, &to, &item.UserID, &item.Reason, &item.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		item.FromStatus = policy.Status(from)
		item.ToStatus = policy.Status(to)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}
	return items, nil
}

// BumpMinorVersion increments the minor counter, independent of status.
func (s *SQLite) BumpMinorVersion(ctx context.Context, docID string) (string, error) {
	return s.bumpVersion(ctx, docID, false)
}

// BumpMajorVersion increments the major counter and resets minor to 0.
func (s *SQLite) BumpMajorVersion(ctx context.Context, docID string) (string, error) {
	return s.bumpVersion(ctx, docID, true)
}

func (s *SQLite) bumpVersion(ctx context.Context, docID string, major bool) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin bump version: %w", err)
	}
	defer tx.Rollback()

	var maj, min int
	if err := tx.QueryRowContext(ctx, `SELECT version_major, version_minor FROM documents WHERE doc_id=?`, docID).Scan(&maj, &min); err != nil {
		return "", err
	}
	if major {
		maj, min = maj+1, 0
	} else {
		min++
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET version_major=?, version_minor=?, updated_at=? WHERE doc_id=?
	`, maj, min, time.Now().UTC(), docID); err != nil {
		return "", fmt.Errorf("update version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit bump version: %w", err)
	}
	return versionLabel(maj, min), nil
}

func (s *SQLite) GetOwner(ctx context.Context, docID string) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT created_by FROM documents WHERE doc_id=?`, docID).Scan(&owner)
	if err != nil {
		return "", err
	}
	return owner, nil
}

func (s *SQLite) InsertDocumentVersion(ctx context.Context, item DocumentVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_versions (doc_id, version_label, commit_hash, comment, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, item.DocID, item.VersionLabel, item.CommitHash, item.Comment, item.UserID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert document version: %w", err)
	}
	return nil
}

func (s *SQLite) ListDocumentVersions(ctx context.Context, docID string) ([]DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, version_label, commit_hash, COALESCE(comment, ''), user_id, created_at
		FROM document_versions WHERE doc_id=? ORDER BY created_at DESC, id DESC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentVersion, 0)
	for rows.Next() {
		var item DocumentVersion
		if err := rows.Scan(&item.ID, &item.DocID, &item.VersionLabel, &item.CommitHash, &item.Comment, &item.UserID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document versions: %w", err)
	}
	return items, nil
}
