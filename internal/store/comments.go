package store

import (
	"context"
	"fmt"
	"time"
)

func (s *SQLite) ListComments(ctx context.Context, docID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, user_id, text, created_at
		FROM comments WHERE doc_id=? ORDER BY created_at DESC, id DESC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.DocID, &item.UserID, &item.Text, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *SQLite) AddComment(ctx context.Context, docID, userID, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (doc_id, user_id, text, created_at) VALUES (?, ?, ?, ?)
	`, docID, userID, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}
