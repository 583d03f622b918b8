package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"qmdoc/core/internal/export"
	"qmdoc/core/internal/policy"
	"qmdoc/core/internal/store"
	"qmdoc/core/internal/util"
	"qmdoc/core/internal/vault"
)

// artifactRenderer produces the signing-artifact PDF carried through
// the signature chain. *export.Service satisfies it.
type artifactRenderer interface {
	Render(ctx context.Context, req export.Request) (*export.Result, error)
}

// TransitionResult reports the outcome of a workflow action.
type TransitionResult struct {
	DocumentID string
	Status     policy.Status
	Active     bool
	StarterID  string
	SignedAs   policy.WorkflowRole
}

// CreateDocumentInput contains document creation parameters.
type CreateDocumentInput struct {
	Title       string
	Description string
	DocType     string
	Filename    string
	Content     []byte
}

// WorkflowService executes lifecycle actions: every mutating operation
// checks permission policy first, validates the transition, then
// persists through the store.
type WorkflowService struct {
	store       dataStore
	vault       fileVault
	artifacts   artifactRenderer
	logger      *slog.Logger
	validity    time.Duration
	artifactDir string
	now         func() time.Time
}

// NewWorkflowService wires the workflow service. artifacts may be nil
// when no PDF toolchain is available; signing then records the previous
// artifact pointer unchanged.
func NewWorkflowService(store dataStore, vault fileVault, artifacts artifactRenderer, logger *slog.Logger, validity time.Duration, artifactDir string) *WorkflowService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowService{
		store:       store,
		vault:       vault,
		artifacts:   artifacts,
		logger:      logger,
		validity:    validity,
		artifactDir: artifactDir,
		now:         time.Now,
	}
}

// CreateDocument registers a new draft and seeds its vault repository
// with the initial file content.
func (s *WorkflowService) CreateDocument(ctx context.Context, input CreateDocumentInput, user policy.CurrentUser) (store.Document, error) {
	if input.Title == "" || input.DocType == "" {
		return store.Document{}, policyViolation("title and document type are required")
	}
	if input.Filename == "" {
		input.Filename = "document.docx"
	}

	doc, err := s.store.CreateDocument(ctx, store.Document{
		ID:          util.NewID("doc"),
		Title:       input.Title,
		Description: input.Description,
		DocType:     input.DocType,
		FilePath:    input.Filename,
		CreatedBy:   user.ID,
	})
	if err != nil {
		return store.Document{}, classify("create document", err)
	}

	if err := s.vault.EnsureDocumentRepo(doc.ID, input.Filename, input.Content, user.ID); err != nil {
		return store.Document{}, storageError("seed vault repo", err)
	}

	s.logger.Info("document created", "doc_id", doc.ID, "doc_type", doc.DocType, "user", user.ID)
	return doc, nil
}

// SetAssignments replaces the document's role mapping. Only Admin/QMB
// may edit roles; the separation-of-duties rule is validated before
// anything is persisted.
func (s *WorkflowService) SetAssignments(ctx context.Context, docID string, user policy.CurrentUser, mapping policy.Assignments) error {
	if !policy.CanEditRoles(user) {
		return policyViolation("only Admin or QMB may edit role assignments")
	}
	if err := policy.ValidateAssignments(mapping); err != nil {
		return configConflict(err.Error())
	}
	if err := s.store.SetAssignees(ctx, docID, mapping); err != nil {
		return classify("set assignments", err)
	}
	return nil
}

// StartWorkflow moves a draft into review and records the starter.
func (s *WorkflowService) StartWorkflow(ctx context.Context, docID string, user policy.CurrentUser) (TransitionResult, error) {
	if !policy.CanStartWorkflow(user) {
		return TransitionResult{}, policyViolation("user may not start a workflow")
	}

	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return TransitionResult{}, classify("get document", err)
	}

	assignments, err := s.store.GetAssignees(ctx, docID)
	if err != nil {
		return TransitionResult{}, classify("get assignees", err)
	}
	if err := policy.ValidateAssignments(assignments); err != nil {
		return TransitionResult{}, configConflict(err.Error())
	}
	// A run without approvers could never complete.
	if len(assignments[policy.WorkflowApprover]) == 0 {
		return TransitionResult{}, configConflict("at least one approver must be assigned before starting")
	}

	if err := s.store.SetStatus(ctx, docID, policy.StatusInReview, user.ID, "workflow started"); err != nil {
		return TransitionResult{}, classify("set status", err)
	}
	if err := s.store.SetWorkflowActive(ctx, docID, true, user.ID); err != nil {
		return TransitionResult{}, classify("activate workflow", err)
	}

	s.logger.Info("workflow started", "doc_id", docID, "starter", user.ID, "from", doc.Status)
	return TransitionResult{DocumentID: docID, Status: policy.StatusInReview, Active: true, StarterID: user.ID}, nil
}

// Sign appends the user's signature for the current cycle and carries a
// freshly rendered artifact forward through the signing-PDF pointer.
// The final approver signature completes the cycle and moves the
// document to Approved.
func (s *WorkflowService) Sign(ctx context.Context, docID string, user policy.CurrentUser, username, comment string) (TransitionResult, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return TransitionResult{}, classify("get document", err)
	}
	state, err := s.store.GetWorkflowState(ctx, docID)
	if err != nil {
		return TransitionResult{}, classify("get workflow state", err)
	}
	if !state.Active {
		return TransitionResult{}, policyViolation("no workflow is active for this document")
	}

	assignments, err := s.store.GetAssignees(ctx, docID)
	if err != nil {
		return TransitionResult{}, classify("get assignees", err)
	}
	sigs, err := s.store.ListCycleSignatures(ctx, docID, state.Cycle)
	if err != nil {
		return TransitionResult{}, classify("list signatures", err)
	}
	signedReviewers, signedApprovers := splitSigners(sigs)

	role, ok := policy.SigningRole(doc.Status, assignments, signedReviewers, signedApprovers, user)
	if !ok {
		return TransitionResult{}, policyViolation("user may not sign in the current phase")
	}

	pdfPath, err := s.renderArtifact(ctx, docID)
	if err != nil {
		// Keep the previous pointer when rendering is unavailable; the
		// signature itself must still be recorded.
		s.logger.Warn("artifact rendering unavailable", "doc_id", docID, "error", err)
		pdfPath, err = s.store.GetSigningPDF(ctx, docID)
		if err != nil {
			return TransitionResult{}, classify("get signing pdf", err)
		}
	}

	sig := store.Signature{
		DocID:    docID,
		Cycle:    state.Cycle,
		Role:     role,
		UserID:   user.ID,
		Username: username,
		SignedAt: s.now().UTC(),
		Comment:  comment,
	}
	if err := s.store.AttachSignedPDF(ctx, sig, pdfPath); err != nil {
		return TransitionResult{}, classify("attach signed pdf", err)
	}

	result := TransitionResult{DocumentID: docID, Status: doc.Status, Active: true, StarterID: state.StartedBy, SignedAs: role}

	if role == policy.WorkflowApprover {
		signedApprovers = append(signedApprovers, user.ID)
		if policy.AllApproversSigned(assignments, signedApprovers) {
			if err := s.store.SetStatus(ctx, docID, policy.StatusApproved, user.ID, "all approvers signed"); err != nil {
				return TransitionResult{}, classify("set status", err)
			}
			result.Status = policy.StatusApproved
		}
	}

	s.logger.Info("document signed", "doc_id", docID, "role", role, "user", user.ID, "status", result.Status)
	return result, nil
}

// AbortWorkflow resets an active workflow back to Draft. Only the
// starter or a privileged role may abort; the signing-PDF pointer is
// cleared so no dangling artifact survives a restart.
func (s *WorkflowService) AbortWorkflow(ctx context.Context, docID string, user policy.CurrentUser, reason string) (TransitionResult, error) {
	state, err := s.store.GetWorkflowState(ctx, docID)
	if err != nil {
		return TransitionResult{}, classify("get workflow state", err)
	}
	if !state.Active {
		return TransitionResult{}, policyViolation("no workflow is active for this document")
	}
	if !policy.CanAbortWorkflow(user, state.StartedBy) {
		return TransitionResult{}, policyViolation("only the starter, Admin, or QMB may abort a workflow")
	}

	if reason == "" {
		reason = "workflow aborted"
	}
	if err := s.store.SetStatus(ctx, docID, policy.StatusDraft, user.ID, reason); err != nil {
		return TransitionResult{}, classify("set status", err)
	}
	if err := s.store.SetWorkflowActive(ctx, docID, false, ""); err != nil {
		return TransitionResult{}, classify("deactivate workflow", err)
	}
	if err := s.store.ClearSigningPDF(ctx, docID); err != nil {
		return TransitionResult{}, classify("clear signing pdf", err)
	}

	s.logger.Info("workflow aborted", "doc_id", docID, "user", user.ID, "reason", reason)
	return TransitionResult{DocumentID: docID, Status: policy.StatusDraft, Active: false}, nil
}

// Publish moves an approved document to Published, stamps the validity
// window, and optionally copies the released file to a destination
// path. The signing-PDF pointer keeps referencing the final artifact.
func (s *WorkflowService) Publish(ctx context.Context, docID string, user policy.CurrentUser, destination string) (TransitionResult, error) {
	if !policy.CanPublish(user) {
		return TransitionResult{}, policyViolation("only Admin or QMB may publish documents")
	}

	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return TransitionResult{}, classify("get document", err)
	}

	if err := s.store.SetStatus(ctx, docID, policy.StatusPublished, user.ID, "document published"); err != nil {
		return TransitionResult{}, classify("set status", err)
	}

	publishedAt := s.now().UTC()
	if err := s.store.MarkPublished(ctx, docID, publishedAt, publishedAt.Add(s.validity)); err != nil {
		return TransitionResult{}, classify("mark published", err)
	}
	if err := s.store.SetWorkflowActive(ctx, docID, false, ""); err != nil {
		return TransitionResult{}, classify("deactivate workflow", err)
	}

	if destination != "" {
		if err := s.vault.CopyToDestination(docID, doc.FilePath, destination); err != nil {
			// Publication already happened; the copy can be repeated.
			s.logger.Error("copy to destination", "doc_id", docID, "destination", destination, "error", err)
		}
	}

	s.logger.Info("document published", "doc_id", docID, "user", user.ID, "valid_until", publishedAt.Add(s.validity))
	return TransitionResult{DocumentID: docID, Status: policy.StatusPublished, Active: false}, nil
}

// Archive retires a published document. Admin/QMB only.
func (s *WorkflowService) Archive(ctx context.Context, docID string, user policy.CurrentUser, reason string) (TransitionResult, error) {
	if !policy.CanArchive(user) {
		return TransitionResult{}, policyViolation("only Admin or QMB may archive documents")
	}

	if err := s.store.SetStatus(ctx, docID, policy.StatusArchived, user.ID, reason); err != nil {
		return TransitionResult{}, classify("set status", err)
	}
	if err := s.store.MarkArchived(ctx, docID, user.ID, reason); err != nil {
		return TransitionResult{}, classify("mark archived", err)
	}

	s.logger.Info("document archived", "doc_id", docID, "user", user.ID)
	return TransitionResult{DocumentID: docID, Status: policy.StatusArchived, Active: false}, nil
}

// CheckOut hands the caller an editable working copy of the document
// file. Concurrent checkouts are not locked against each other; last
// check-in wins.
func (s *WorkflowService) CheckOut(ctx context.Context, docID string, user policy.CurrentUser) (vault.WorkingCopy, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return vault.WorkingCopy{}, classify("get document", err)
	}
	wc, err := s.vault.CheckOut(docID, doc.FilePath)
	if err != nil {
		return vault.WorkingCopy{}, storageError("check out", err)
	}
	return wc, nil
}

// CheckIn stores a new file version: the vault commits the content, the
// minor version is bumped, and a version record ties label to commit.
func (s *WorkflowService) CheckIn(ctx context.Context, docID string, user policy.CurrentUser, sourcePath, comment string) (store.DocumentVersion, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return store.DocumentVersion{}, classify("get document", err)
	}

	commit, err := s.vault.CheckIn(docID, doc.FilePath, sourcePath, user.ID, comment)
	if err != nil {
		return store.DocumentVersion{}, storageError("check in", err)
	}

	label, err := s.store.BumpMinorVersion(ctx, docID)
	if err != nil {
		return store.DocumentVersion{}, classify("bump version", err)
	}

	version := store.DocumentVersion{
		DocID:        docID,
		VersionLabel: label,
		CommitHash:   commit.Hash,
		Comment:      comment,
		UserID:       user.ID,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.InsertDocumentVersion(ctx, version); err != nil {
		return store.DocumentVersion{}, classify("record version", err)
	}

	s.logger.Info("document checked in", "doc_id", docID, "version", label, "commit", commit.Hash)
	return version, nil
}

// renderArtifact produces a fresh signing artifact and writes it into
// the artifact directory.
func (s *WorkflowService) renderArtifact(ctx context.Context, docID string) (string, error) {
	if s.artifacts == nil {
		return "", export.ErrPDFDependencyMissing
	}
	result, err := s.artifacts.Render(ctx, export.Request{DocumentID: docID})
	if err != nil {
		return "", err
	}

	dir := filepath.Join(s.artifactDir, docID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d-%s", s.now().UnixNano(), result.Filename))
	if err := os.WriteFile(path, result.Data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// splitSigners partitions cycle signatures into reviewer and approver
// signer ids.
func splitSigners(sigs []store.Signature) (reviewers, approvers []string) {
	for _, sig := range sigs {
		switch sig.Role {
		case policy.WorkflowReviewer:
			reviewers = append(reviewers, sig.UserID)
		case policy.WorkflowApprover:
			approvers = append(approvers, sig.UserID)
		}
	}
	return reviewers, approvers
}
