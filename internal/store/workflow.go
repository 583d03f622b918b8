package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"qmdoc/core/internal/policy"
)

func (s *SQLite) GetWorkflowState(ctx context.Context, docID string) (WorkflowState, error) {
	var state WorkflowState
	var active int
	var startedBy sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT doc_id, workflow_active, started_by, cycle FROM workflow_state WHERE doc_id=?
	`, docID).Scan(&state.DocumentID, &active, &startedBy, &state.Cycle)
	if err != nil {
		return WorkflowState{}, err
	}
	state.Active = active != 0
	state.StartedBy = startedBy.String
	return state, nil
}

// SetWorkflowActive flips the active flag. Activation records the
// starter and begins a new cycle; deactivation keeps the starter for
// the audit trail.
func (s *SQLite) SetWorkflowActive(ctx context.Context, docID string, active bool, startedBy string) error {
	var result sql.Result
	var err error
	if active {
		result, err = s.db.ExecContext(ctx, `
			UPDATE workflow_state SET workflow_active=1, started_by=?, cycle=cycle+1 WHERE doc_id=?
		`, startedBy, docID)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE workflow_state SET workflow_active=0 WHERE doc_id=?
		`, docID)
	}
	if err != nil {
		return fmt.Errorf("set workflow active: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLite) GetWorkflowStarter(ctx context.Context, docID string) (string, error) {
	state, err := s.GetWorkflowState(ctx, docID)
	if err != nil {
		return "", err
	}
	return state.StartedBy, nil
}

func (s *SQLite) GetAssignees(ctx context.Context, docID string) (policy.Assignments, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, user_id FROM assignments WHERE doc_id=? ORDER BY assigned_at ASC, rowid ASC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("get assignees: %w", err)
	}
	defer rows.Close()

	result := policy.Assignments{}
	for rows.Next() {
		var role, userID string
		if err := rows.Scan(&role, &userID); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		wr := policy.WorkflowRole(role)
		result[wr] = append(result[wr], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return result, nil
}

// SetAssignees replaces the whole role mapping for the document in one
// transaction. Replaying identical input leaves identical rows.
func (s *SQLite) SetAssignees(ctx context.Context, docID string, mapping policy.Assignments) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set assignees: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE doc_id=?`, docID); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}

	now := time.Now().UTC()
	for role, users := range mapping {
		for _, userID := range users {
			if userID == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO assignments (doc_id, role, user_id, assigned_at) VALUES (?, ?, ?, ?)
			`, docID, string(role), userID, now); err != nil {
				return fmt.Errorf("insert assignment: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set assignees: %w", err)
	}
	return nil
}

// ListSignatures returns the audit trail for the document, oldest
// first. The autoincrement id breaks ties between equal timestamps.
func (s *SQLite) ListSignatures(ctx context.Context, docID string) ([]Signature, error) {
	return s.listSignatures(ctx, `
		SELECT id, doc_id, cycle, role, user_id, username, signed_at, COALESCE(comment, '')
		FROM signatures WHERE doc_id=? ORDER BY signed_at ASC, id ASC
	`, docID)
}

// ListCycleSignatures narrows the trail to one review cycle.
func (s *SQLite) ListCycleSignatures(ctx context.Context, docID string, cycle int) ([]Signature, error) {
	return s.listSignatures(ctx, `
		SELECT id, doc_id, cycle, role, user_id, username, signed_at, COALESCE(comment, '')
		FROM signatures WHERE doc_id=? AND cycle=? ORDER BY signed_at ASC, id ASC
	`, docID, cycle)
}

func (s *SQLite) listSignatures(ctx context.Context, query string, args ...any) ([]Signature, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	items := make([]Signature, 0)
	for rows.Next() {
		var item Signature
		var role string
		if err := rows.Scan(&item.ID, &item.DocID, &item.Cycle, &role, &item.UserID, &item.Username, &item.SignedAt, &item.Comment); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		item.Role = policy.WorkflowRole(role)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return items, nil
}

// AttachSignedPDF appends a signature row and moves the signing-PDF
// pointer to the new artifact in a single transaction. If either half
// fails, neither is visible.
func (s *SQLite) AttachSignedPDF(ctx context.Context, sig Signature, pdfPath string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attach signed pdf: %w", err)
	}
	defer tx.Rollback()

	signedAt := sig.SignedAt
	if signedAt.IsZero() {
		signedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO signatures (doc_id, cycle, role, user_id, username, signed_at, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sig.DocID, sig.Cycle, string(sig.Role), sig.UserID, sig.Username, signedAt, sig.Comment); err != nil {
		return fmt.Errorf("insert signature: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE documents SET signing_pdf_path=?, updated_at=? WHERE doc_id=?
	`, pdfPath, time.Now().UTC(), sig.DocID)
	if err != nil {
		return fmt.Errorf("update signing pdf: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attach signed pdf: %w", err)
	}
	return nil
}

func (s *SQLite) GetSigningPDF(ctx context.Context, docID string) (string, error) {
	var path sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT signing_pdf_path FROM documents WHERE doc_id=?`, docID).Scan(&path)
	if err != nil {
		return "", err
	}
	return path.String, nil
}

func (s *SQLite) SetSigningPDF(ctx context.Context, docID, pdfPath string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET signing_pdf_path=?, updated_at=? WHERE doc_id=?
	`, pdfPath, time.Now().UTC(), docID)
	if err != nil {
		return fmt.Errorf("set signing pdf: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClearSigningPDF drops the artifact pointer. Mandatory on abort so no
// dangling reference survives a workflow restart.
func (s *SQLite) ClearSigningPDF(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET signing_pdf_path=NULL, updated_at=? WHERE doc_id=?
	`, time.Now().UTC(), docID)
	if err != nil {
		return fmt.Errorf("clear signing pdf: %w", err)
	}
	return nil
}

// MarkPublished stamps the publication and validity timestamps after a
// successful transition to Published.
func (s *SQLite) MarkPublished(ctx context.Context, docID string, publishedAt, validUntil time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET published_at=?, valid_until=?, updated_at=? WHERE doc_id=?
	`, publishedAt, validUntil, time.Now().UTC(), docID)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// MarkArchived stamps the archive metadata after a successful
// transition to Archived.
func (s *SQLite) MarkArchived(ctx context.Context, docID, userID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET archived_at=?, archived_by=?, archive_reason=?, updated_at=? WHERE doc_id=?
	`, time.Now().UTC(), userID, reason, time.Now().UTC(), docID)
	if err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	return nil
}
