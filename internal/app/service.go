// Package app orchestrates policy, storage, vault, and export into the
// operations the UI layer consumes. Services own no business rules of
// their own; they sequence policy checks and repository calls.
package app

import (
	"context"
	"log/slog"
	"time"

	"qmdoc/core/internal/policy"
	"qmdoc/core/internal/store"
	"qmdoc/core/internal/vault"
)

// dataStore is the storage surface the application services consume.
// *store.SQLite satisfies it.
type dataStore interface {
	CreateDocument(ctx context.Context, item store.Document) (store.Document, error)
	GetDocument(ctx context.Context, docID string) (store.Document, error)
	ListDocuments(ctx context.Context, filter store.SearchFilter) ([]store.Document, error)
	UpdateDocumentMetadata(ctx context.Context, docID, title, description, docType string) error
	DeleteDocument(ctx context.Context, docID string) error
	GetOwner(ctx context.Context, docID string) (string, error)

	SetStatus(ctx context.Context, docID string, to policy.Status, userID, reason string) error
	ListStatusHistory(ctx context.Context, docID string) ([]store.StatusChange, error)
	BumpMinorVersion(ctx context.Context, docID string) (string, error)
	BumpMajorVersion(ctx context.Context, docID string) (string, error)

	GetWorkflowState(ctx context.Context, docID string) (store.WorkflowState, error)
	SetWorkflowActive(ctx context.Context, docID string, active bool, startedBy string) error
	GetWorkflowStarter(ctx context.Context, docID string) (string, error)
	GetAssignees(ctx context.Context, docID string) (policy.Assignments, error)
	SetAssignees(ctx context.Context, docID string, mapping policy.Assignments) error

	ListSignatures(ctx context.Context, docID string) ([]store.Signature, error)
	ListCycleSignatures(ctx context.Context, docID string, cycle int) ([]store.Signature, error)
	AttachSignedPDF(ctx context.Context, sig store.Signature, pdfPath string) error
	GetSigningPDF(ctx context.Context, docID string) (string, error)
	ClearSigningPDF(ctx context.Context, docID string) error
	MarkPublished(ctx context.Context, docID string, publishedAt, validUntil time.Time) error
	MarkArchived(ctx context.Context, docID, userID, reason string) error

	ListComments(ctx context.Context, docID string) ([]store.Comment, error)
	AddComment(ctx context.Context, docID, userID, text string) error

	InsertDocumentVersion(ctx context.Context, item store.DocumentVersion) error
	ListDocumentVersions(ctx context.Context, docID string) ([]store.DocumentVersion, error)
}

// fileVault is the document file storage surface. *vault.Service
// satisfies it.
type fileVault interface {
	EnsureDocumentRepo(documentID, filename string, content []byte, author string) error
	CheckOut(documentID, filename string) (vault.WorkingCopy, error)
	CheckIn(documentID, filename, sourcePath, author, message string) (vault.CommitInfo, error)
	DiscardWorkingCopy(session string) error
	CopyToDestination(documentID, filename, destination string) error
}

// NameResolver maps usernames to display names for read views.
type NameResolver interface {
	DisplayName(ctx context.Context, username string) string
}

// DocumentView is a display-ready document row.
type DocumentView struct {
	store.Document
	Version   string
	OwnerName string
	Expired   bool
}

// CommentView is a display-ready comment row.
type CommentView struct {
	AuthorName string
	Text       string
	CreatedAt  time.Time
}

// SignatureView is a display-ready audit row.
type SignatureView struct {
	Cycle      int
	Role       policy.WorkflowRole
	SignerName string
	SignedAt   time.Time
	Comment    string
}

// Service is the read side: it adapts repository rows into display
// records and degrades gracefully when storage fails, so list views
// render empty instead of crashing.
type Service struct {
	store    dataStore
	names    NameResolver
	logger   *slog.Logger
	validity time.Duration
	now      func() time.Time
}

// NewService creates the read-side service. validity is the publication
// validity window used for expiry hints.
func NewService(store dataStore, names NameResolver, logger *slog.Logger, validity time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		names:    names,
		logger:   logger,
		validity: validity,
		now:      time.Now,
	}
}

// ListDocuments returns display rows for the filter. Storage failures
// are logged and yield an empty list.
func (s *Service) ListDocuments(ctx context.Context, filter store.SearchFilter) []DocumentView {
	docs, err := s.store.ListDocuments(ctx, filter)
	if err != nil {
		s.logger.Error("list documents", "error", err)
		return []DocumentView{}
	}

	views := make([]DocumentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, s.toView(ctx, doc))
	}
	return views
}

// GetDocument returns a single display row. Missing documents surface
// as NOT_FOUND; other storage failures as STORAGE_FAILURE.
func (s *Service) GetDocument(ctx context.Context, docID string) (DocumentView, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return DocumentView{}, classify("get document", err)
	}
	return s.toView(ctx, doc), nil
}

// ListComments returns display comments, newest first. Storage failures
// are logged and yield an empty list.
func (s *Service) ListComments(ctx context.Context, docID string) []CommentView {
	comments, err := s.store.ListComments(ctx, docID)
	if err != nil {
		s.logger.Error("list comments", "doc_id", docID, "error", err)
		return []CommentView{}
	}

	views := make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		views = append(views, CommentView{
			AuthorName: s.names.DisplayName(ctx, comment.UserID),
			Text:       comment.Text,
			CreatedAt:  comment.CreatedAt,
		})
	}
	return views
}

// AddComment stores a new annotation for the document.
func (s *Service) AddComment(ctx context.Context, docID, userID, text string) error {
	if text == "" {
		return policyViolation("comment text must not be empty")
	}
	if err := s.store.AddComment(ctx, docID, userID, text); err != nil {
		return classify("add comment", err)
	}
	return nil
}

// ListSignatures returns the display audit trail, oldest first. Storage
// failures are logged and yield an empty list.
func (s *Service) ListSignatures(ctx context.Context, docID string) []SignatureView {
	sigs, err := s.store.ListSignatures(ctx, docID)
	if err != nil {
		s.logger.Error("list signatures", "doc_id", docID, "error", err)
		return []SignatureView{}
	}

	views := make([]SignatureView, 0, len(sigs))
	for _, sig := range sigs {
		views = append(views, SignatureView{
			Cycle:      sig.Cycle,
			Role:       sig.Role,
			SignerName: s.names.DisplayName(ctx, sig.Username),
			SignedAt:   sig.SignedAt,
			Comment:    sig.Comment,
		})
	}
	return views
}

// ListStatusHistory returns the status audit trail. Storage failures
// are logged and yield an empty list.
func (s *Service) ListStatusHistory(ctx context.Context, docID string) []store.StatusChange {
	history, err := s.store.ListStatusHistory(ctx, docID)
	if err != nil {
		s.logger.Error("list status history", "doc_id", docID, "error", err)
		return []store.StatusChange{}
	}
	return history
}

// ListVersions returns the checked-in version records. Storage failures
// are logged and yield an empty list.
func (s *Service) ListVersions(ctx context.Context, docID string) []store.DocumentVersion {
	versions, err := s.store.ListDocumentVersions(ctx, docID)
	if err != nil {
		s.logger.Error("list versions", "doc_id", docID, "error", err)
		return []store.DocumentVersion{}
	}
	return versions
}

func (s *Service) toView(ctx context.Context, doc store.Document) DocumentView {
	return DocumentView{
		Document:  doc,
		Version:   doc.VersionLabel(),
		OwnerName: s.names.DisplayName(ctx, doc.CreatedBy),
		Expired:   policy.IsExpired(doc.PublishedAt, s.validity, s.now()),
	}
}
