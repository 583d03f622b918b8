package export

import (
	"context"
	"fmt"
	"time"

	"qmdoc/core/internal/store"
)

// DataStore defines the interface for data access.
type DataStore interface {
	GetDocument(ctx context.Context, id string) (store.Document, error)
	GetWorkflowState(ctx context.Context, docID string) (store.WorkflowState, error)
	ListCycleSignatures(ctx context.Context, docID string, cycle int) ([]store.Signature, error)
}

// NameResolver maps usernames to display names for rendering.
type NameResolver interface {
	DisplayName(ctx context.Context, username string) string
}

// Service renders signing artifacts.
type Service struct {
	store DataStore
	names NameResolver
}

// NewService creates a new export service.
func NewService(store DataStore, names NameResolver) *Service {
	return &Service{store: store, names: names}
}

// Render produces the signing-artifact PDF for a document's current
// workflow cycle.
func (s *Service) Render(ctx context.Context, req Request) (*Result, error) {
	html, title, err := s.renderHTML(ctx, req)
	if err != nil {
		return nil, err
	}
	return renderPDF(html, title)
}

// renderHTML builds the artifact HTML without invoking Chrome, so the
// template path stays testable in environments without a browser.
func (s *Service) renderHTML(ctx context.Context, req Request) (string, string, error) {
	doc, err := s.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return "", "", fmt.Errorf("%w: get document: %v", ErrContentUnavailable, err)
	}

	state, err := s.store.GetWorkflowState(ctx, doc.ID)
	if err != nil {
		return "", "", fmt.Errorf("%w: get workflow state: %v", ErrContentUnavailable, err)
	}

	sigs, err := s.store.ListCycleSignatures(ctx, doc.ID, state.Cycle)
	if err != nil {
		return "", "", fmt.Errorf("%w: list signatures: %v", ErrContentUnavailable, err)
	}

	entries := make([]SignatureEntry, 0, len(sigs))
	for _, sig := range sigs {
		entries = append(entries, SignatureEntry{
			Role:     string(sig.Role),
			Name:     s.names.DisplayName(ctx, sig.Username),
			SignedAt: sig.SignedAt,
			Comment:  sig.Comment,
		})
	}

	data := TemplateData{
		Title:       doc.Title,
		DocType:     doc.DocType,
		Version:     doc.VersionLabel(),
		Status:      string(doc.Status),
		CreatedBy:   s.names.DisplayName(ctx, doc.CreatedBy),
		PublishedAt: doc.PublishedAt,
		ValidUntil:  doc.ValidUntil,
		Signatures:  entries,
		RenderedAt:  time.Now(),
	}

	html, err := RenderArtifactHTML(data)
	if err != nil {
		return "", "", fmt.Errorf("render template: %w", err)
	}
	return html, doc.Title, nil
}
