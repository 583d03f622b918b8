package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"qmdoc/core/internal/export"
	"qmdoc/core/internal/policy"
	"qmdoc/core/internal/store"
	"qmdoc/core/internal/vault"
)

// memStore is an in-memory dataStore with the same transition and
// atomicity semantics as the SQL implementation.
type memStore struct {
	docs        map[string]store.Document
	states      map[string]store.WorkflowState
	assignments map[string]policy.Assignments
	sigs        []store.Signature
	comments    []store.Comment
	history     []store.StatusChange
	versions    []store.DocumentVersion
	nextSigID   int64

	failAttach bool
	readErr    error
}

func newMemStore() *memStore {
	return &memStore{
		docs:        make(map[string]store.Document),
		states:      make(map[string]store.WorkflowState),
		assignments: make(map[string]policy.Assignments),
	}
}

func (m *memStore) CreateDocument(ctx context.Context, item store.Document) (store.Document, error) {
	item.Status = policy.StatusDraft
	item.VersionMajor = 1
	item.VersionMinor = 0
	m.docs[item.ID] = item
	m.states[item.ID] = store.WorkflowState{DocumentID: item.ID}
	return item, nil
}

func (m *memStore) GetDocument(ctx context.Context, docID string) (store.Document, error) {
	if m.readErr != nil {
		return store.Document{}, m.readErr
	}
	doc, ok := m.docs[docID]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	return doc, nil
}

func (m *memStore) ListDocuments(ctx context.Context, filter store.SearchFilter) ([]store.Document, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([]store.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc)
	}
	return out, nil
}

func (m *memStore) UpdateDocumentMetadata(ctx context.Context, docID, title, description, docType string) error {
	doc, ok := m.docs[docID]
	if !ok {
		return sql.ErrNoRows
	}
	doc.Title, doc.Description, doc.DocType = title, description, docType
	m.docs[docID] = doc
	return nil
}

func (m *memStore) DeleteDocument(ctx context.Context, docID string) error {
	delete(m.docs, docID)
	return nil
}

func (m *memStore) GetOwner(ctx context.Context, docID string) (string, error) {
	doc, err := m.GetDocument(ctx, docID)
	return doc.CreatedBy, err
}

func (m *memStore) SetStatus(ctx context.Context, docID string, to policy.Status, userID, reason string) error {
	doc, ok := m.docs[docID]
	if !ok {
		return sql.ErrNoRows
	}
	if err := policy.ValidateTransition(doc.Status, to); err != nil {
		return fmt.Errorf("%w: %s", store.ErrPolicyViolation, err)
	}
	m.history = append(m.history, store.StatusChange{
		DocID: docID, FromStatus: doc.Status, ToStatus: to, UserID: userID, Reason: reason,
	})
	doc.Status = to
	m.docs[docID] = doc
	return nil
}

func (m *memStore) ListStatusHistory(ctx context.Context, docID string) ([]store.StatusChange, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := []store.StatusChange{}
	for _, change := range m.history {
		if change.DocID == docID {
			out = append(out, change)
		}
	}
	return out, nil
}

func (m *memStore) BumpMinorVersion(ctx context.Context, docID string) (string, error) {
	doc, ok := m.docs[docID]
	if !ok {
		return "", sql.ErrNoRows
	}
	doc.VersionMinor++
	m.docs[docID] = doc
	return doc.VersionLabel(), nil
}

func (m *memStore) BumpMajorVersion(ctx context.Context, docID string) (string, error) {
	doc, ok := m.docs[docID]
	if !ok {
		return "", sql.ErrNoRows
	}
	doc.VersionMajor++
	doc.VersionMinor = 0
	m.docs[docID] = doc
	return doc.VersionLabel(), nil
}

func (m *memStore) GetWorkflowState(ctx context.Context, docID string) (store.WorkflowState, error) {
	if m.readErr != nil {
		return store.WorkflowState{}, m.readErr
	}
	state, ok := m.states[docID]
	if !ok {
		return store.WorkflowState{}, sql.ErrNoRows
	}
	return state, nil
}

func (m *memStore) SetWorkflowActive(ctx context.Context, docID string, active bool, startedBy string) error {
	state, ok := m.states[docID]
	if !ok {
		return sql.ErrNoRows
	}
	state.Active = active
	if active {
		state.StartedBy = startedBy
		state.Cycle++
	}
	m.states[docID] = state
	return nil
}

func (m *memStore) GetWorkflowStarter(ctx context.Context, docID string) (string, error) {
	state, err := m.GetWorkflowState(ctx, docID)
	return state.StartedBy, err
}

func (m *memStore) GetAssignees(ctx context.Context, docID string) (policy.Assignments, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	if a, ok := m.assignments[docID]; ok {
		return a, nil
	}
	return policy.Assignments{}, nil
}

func (m *memStore) SetAssignees(ctx context.Context, docID string, mapping policy.Assignments) error {
	m.assignments[docID] = mapping
	return nil
}

func (m *memStore) ListSignatures(ctx context.Context, docID string) ([]store.Signature, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := []store.Signature{}
	for _, sig := range m.sigs {
		if sig.DocID == docID {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (m *memStore) ListCycleSignatures(ctx context.Context, docID string, cycle int) ([]store.Signature, error) {
	all, err := m.ListSignatures(ctx, docID)
	if err != nil {
		return nil, err
	}
	out := []store.Signature{}
	for _, sig := range all {
		if sig.Cycle == cycle {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (m *memStore) AttachSignedPDF(ctx context.Context, sig store.Signature, pdfPath string) error {
	if m.failAttach {
		// Simulated failure between the signature insert and the
		// pointer update; nothing may become visible.
		return errors.New("disk full")
	}
	doc, ok := m.docs[sig.DocID]
	if !ok {
		return sql.ErrNoRows
	}
	m.nextSigID++
	sig.ID = m.nextSigID
	m.sigs = append(m.sigs, sig)
	doc.SigningPDF = pdfPath
	m.docs[sig.DocID] = doc
	return nil
}

func (m *memStore) GetSigningPDF(ctx context.Context, docID string) (string, error) {
	doc, err := m.GetDocument(ctx, docID)
	return doc.SigningPDF, err
}

func (m *memStore) ClearSigningPDF(ctx context.Context, docID string) error {
	doc, ok := m.docs[docID]
	if !ok {
		return sql.ErrNoRows
	}
	doc.SigningPDF = ""
	m.docs[docID] = doc
	return nil
}

func (m *memStore) MarkPublished(ctx context.Context, docID string, publishedAt, validUntil time.Time) error {
	doc, ok := m.docs[docID]
	if !ok {
		return sql.ErrNoRows
	}
	doc.PublishedAt = &publishedAt
	doc.ValidUntil = &validUntil
	m.docs[docID] = doc
	return nil
}

func (m *memStore) MarkArchived(ctx context.Context, docID, userID, reason string) error {
	doc, ok := m.docs[docID]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now()
	doc.ArchivedAt = &now
	doc.ArchivedBy = userID
	doc.ArchiveReason = reason
	m.docs[docID] = doc
	return nil
}

func (m *memStore) ListComments(ctx context.Context, docID string) ([]store.Comment, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := []store.Comment{}
	for _, comment := range m.comments {
		if comment.DocID == docID {
			out = append(out, comment)
		}
	}
	return out, nil
}

func (m *memStore) AddComment(ctx context.Context, docID, userID, text string) error {
	m.comments = append(m.comments, store.Comment{DocID: docID, UserID: userID, Text: text, CreatedAt: time.Now()})
	return nil
}

func (m *memStore) InsertDocumentVersion(ctx context.Context, item store.DocumentVersion) error {
	m.versions = append(m.versions, item)
	return nil
}

func (m *memStore) ListDocumentVersions(ctx context.Context, docID string) ([]store.DocumentVersion, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := []store.DocumentVersion{}
	for _, version := range m.versions {
		if version.DocID == docID {
			out = append(out, version)
		}
	}
	return out, nil
}

// fakeVault records calls without touching disk.
type fakeVault struct {
	checkedOut int
	checkedIn  int
	copies     []string
}

func (f *fakeVault) EnsureDocumentRepo(documentID, filename string, content []byte, author string) error {
	return nil
}

func (f *fakeVault) CheckOut(documentID, filename string) (vault.WorkingCopy, error) {
	f.checkedOut++
	return vault.WorkingCopy{Session: "sess", Path: "/tmp/work/" + filename}, nil
}

func (f *fakeVault) CheckIn(documentID, filename, sourcePath, author, message string) (vault.CommitInfo, error) {
	f.checkedIn++
	return vault.CommitInfo{Hash: "abc1234", Author: author, Message: message}, nil
}

func (f *fakeVault) DiscardWorkingCopy(session string) error { return nil }

func (f *fakeVault) CopyToDestination(documentID, filename, destination string) error {
	f.copies = append(f.copies, destination)
	return nil
}

// fakeRenderer returns a fixed artifact without requiring a browser.
type fakeRenderer struct {
	fail bool
}

func (f *fakeRenderer) Render(ctx context.Context, req export.Request) (*export.Result, error) {
	if f.fail {
		return nil, export.ErrPDFDependencyMissing
	}
	return &export.Result{Data: []byte("%PDF"), Filename: "artifact.pdf", MimeType: "application/pdf"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorkflow(t *testing.T, mem *memStore) (*WorkflowService, *fakeVault) {
	t.Helper()
	fv := &fakeVault{}
	svc := NewWorkflowService(mem, fv, &fakeRenderer{}, testLogger(), 48*time.Hour, t.TempDir())
	return svc, fv
}

var (
	admin   = policy.CurrentUser{ID: "admin", Role: policy.RoleAdmin}
	author  = policy.CurrentUser{ID: "anna", Role: policy.RoleUser, CanStartWorkflow: true}
	plain   = policy.CurrentUser{ID: "bernd", Role: policy.RoleUser}
	reviewr = policy.CurrentUser{ID: "rita", Role: policy.RoleUser}
	apprvr  = policy.CurrentUser{ID: "paul", Role: policy.RoleUser}
)

func seedDocument(t *testing.T, svc *WorkflowService) store.Document {
	t.Helper()
	doc, err := svc.CreateDocument(context.Background(), CreateDocumentInput{
		Title:    "Hygiene SOP",
		DocType:  "SOP",
		Filename: "sop.docx",
		Content:  []byte("body"),
	}, author)
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	return doc
}

func TestStartWorkflowPermission(t *testing.T) {
	mem := newMemStore()
	svc, _ := newTestWorkflow(t, mem)
	doc := seedDocument(t, svc)
	ctx := context.Background()

	if _, err := svc.StartWorkflow(ctx, doc.ID, plain); !IsPolicyViolation(err) {
		t.Fatalf("plain user start: err = %v, want policy violation", err)
	}

	// Without an approver the run could never complete.
	if _, err := svc.StartWorkflow(ctx, doc.ID, author); !IsPolicyViolation(err) {
		t.Fatalf("start without approver: err = %v, want policy violation", err)
	}

	mem.assignments[doc.ID] = policy.Assignments{policy.WorkflowApprover: {"paul"}}
	result, err := svc.StartWorkflow(ctx, doc.ID, author)
	if err != nil {
		t.Fatalf("flagged user start: %v", err)
	}
	if result.Status != policy.StatusInReview || !result.Active || result.StarterID != "anna" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestFullLifecycle(t *testing.T) {
	mem := newMemStore()
	svc, _ := newTestWorkflow(t, mem)
	doc := seedDocument(t, svc)
	ctx := context.Background()

	if err := svc.SetAssignments(ctx, doc.ID, admin, policy.Assignments{
		policy.WorkflowReviewer: {"rita"},
		policy.WorkflowApprover: {"paul"},
	}); err != nil {
		t.Fatalf("SetAssignments: %v", err)
	}

	if _, err := svc.StartWorkflow(ctx, doc.ID, author); err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	// Approver must wait for the reviewer.
	if _, err := svc.Sign(ctx, doc.ID, apprvr, "paul", ""); !IsPolicyViolation(err) {
		t.Fatalf("early approver sign: err = %v, want policy violation", err)
	}

	result, err := svc.Sign(ctx, doc.ID, reviewr, "rita", "checked section 3")
	if err != nil {
		t.Fatalf("reviewer sign: %v", err)
	}
	if result.SignedAs != policy.WorkflowReviewer || result.Status != policy.StatusInReview {
		t.Errorf("reviewer sign result: %+v", result)
	}
	if pdf, _ := mem.GetSigningPDF(ctx, doc.ID); pdf == "" {
		t.Error("signing pdf pointer not set after first signature")
	}

	result, err = svc.Sign(ctx, doc.ID, apprvr, "paul", "")
	if err != nil {
		t.Fatalf("approver sign: %v", err)
	}
	if result.Status != policy.StatusApproved {
		t.Errorf("status after final approver = %s, want APPROVED", result.Status)
	}

	if _, err := svc.Publish(ctx, doc.ID, plain, ""); !IsPolicyViolation(err) {
		t.Fatalf("plain user publish: err = %v, want policy violation", err)
	}
	result, err = svc.Publish(ctx, doc.ID, admin, "")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if result.Status != policy.StatusPublished || result.Active {
		t.Errorf("publish result: %+v", result)
	}

	published, err := mem.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if published.PublishedAt == nil || published.ValidUntil == nil {
		t.Fatal("publication timestamps not stamped")
	}
	if published.SigningPDF == "" {
		t.Error("final artifact pointer must survive publication")
	}
	if !policy.IsExpired(published.PublishedAt, 48*time.Hour, published.PublishedAt.Add(48*time.Hour)) {
		t.Error("document must be expired once the validity window elapses")
	}

	if _, err := svc.Archive(ctx, doc.ID, admin, "superseded"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	archived, _ := mem.GetDocument(ctx, doc.ID)
	if archived.Status != policy.StatusArchived || archived.ArchivedBy != "admin" {
		t.Errorf("archive state: status=%s archived_by=%s", archived.Status, archived.ArchivedBy)
	}
}

func TestAbortWorkflow(t *testing.T) {
	mem := newMemStore()
	svc, _ := newTestWorkflow(t, mem)
	doc := seedDocument(t, svc)
	ctx := context.Background()

	mem.assignments[doc.ID] = policy.Assignments{
		policy.WorkflowReviewer: {"rita"},
		policy.WorkflowApprover: {"paul"},
	}
	if _, err := svc.StartWorkflow(ctx, doc.ID, author); err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}
	if _, err := svc.Sign(ctx, doc.ID, reviewr, "rita", ""); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// A stranger must not abort somebody else's workflow.
	if _, err := svc.AbortWorkflow(ctx, doc.ID, plain, ""); !IsPolicyViolation(err) {
		t.Fatalf("stranger abort: err = %v, want policy violation", err)
	}

	result, err := svc.AbortWorkflow(ctx, doc.ID, admin, "new requirements")
	if err != nil {
		t.Fatalf("admin abort: %v", err)
	}
	if result.Status != policy.StatusDraft || result.Active {
		t.Errorf("abort result: %+v", result)
	}

	aborted, _ := mem.GetDocument(ctx, doc.ID)
	if aborted.SigningPDF != "" {
		t.Error("signing pdf pointer must be cleared on abort")
	}
	if state, _ := mem.GetWorkflowState(ctx, doc.ID); state.Active {
		t.Error("workflow still active after abort")
	}
}

func TestStarterMayAbortOwnWorkflow(t *testing.T) {
	mem := newMemStore()
	svc, _ := newTestWorkflow(t, mem)
	doc := seedDocument(t, svc)
	ctx := context.Background()

	mem.assignments[doc.ID] = policy.Assignments{policy.WorkflowApprover: {"paul"}}
	if _, err := svc.StartWorkflow(ctx, doc.ID, author); err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}
	if _, err := svc.AbortWorkflow(ctx, doc.ID, author, ""); err != nil {
		t.Fatalf("starter abort: %v", err)
	}
}

func TestSetAssignmentsRejectsCollisionAndUnprivileged(t *testing.T) {
	mem := newMemStore()
	svc, _ := newTestWorkflow(t, mem)
	doc := seedDocument(t, svc)
	ctx := context.Background()

	collision := policy.Assignments{
		policy.WorkflowReviewer: {"same"},
		policy.WorkflowApprover: {"same"},
	}
	if err := svc.SetAssignments(ctx, doc.ID, admin, collision); !IsPolicyViolation(err) {
		t.Fatalf("collision: err = %v, want policy violation", err)
	}

	valid := policy.Assignments{policy.WorkflowReviewer: {"rita"}, policy.WorkflowApprover: {"paul"}}
	if err := svc.SetAssignments(ctx, doc.ID, plain, valid); !IsPolicyViolation(err) {
		t.Fatalf("unprivileged edit: err = %v, want policy violation", err)
	}
	if err := svc.SetAssignments(ctx, doc.ID, admin, valid); err != nil {
		t.Fatalf("valid mapping rejected: %v", err)
	}
}

func TestSignWithoutActiveWorkflow(t *testing.T) {
	mem := newMemStore()
	svc, _ := newTestWorkflow(t, mem)
	doc := seedDocument(t, svc)

	if _, err := svc.Sign(context.Background(), doc.ID, reviewr, "rita", ""); !IsPolicyViolation(err) {
		t.Fatalf("sign without workflow: err = %v, want policy violation", err)
	}
}

func TestSignSurfacesAttachFailure(t *testing.T) {
	mem := newMemStore()
	svc, _ := newTestWorkflow(t, mem)
	doc := seedDocument(t, svc)
	ctx := context.Background()

	mem.assignments[doc.ID] = policy.Assignments{
		policy.WorkflowReviewer: {"rita"},
		policy.WorkflowApprover: {"paul"},
	}
	if _, err := svc.StartWorkflow(ctx, doc.ID, author); err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	mem.failAttach = true
	if _, err := svc.Sign(ctx, doc.ID, reviewr, "rita", ""); err == nil {
		t.Fatal("attach failure must surface")
	}

	// Nothing half-written: no signature rows, no pointer.
	sigs, _ := mem.ListSignatures(ctx, doc.ID)
	if len(sigs) != 0 {
		t.Errorf("signature rows after failed attach: %d", len(sigs))
	}
	if pdf, _ := mem.GetSigningPDF(ctx, doc.ID); pdf != "" {
		t.Error("pointer set after failed attach")
	}
}

func TestSignKeepsPointerWhenRendererUnavailable(t *testing.T) {
	mem := newMemStore()
	fv := &fakeVault{}
	svc := NewWorkflowService(mem, fv, &fakeRenderer{fail: true}, testLogger(), 48*time.Hour, t.TempDir())
	doc := seedDocument(t, svc)
	ctx := context.Background()

	mem.assignments[doc.ID] = policy.Assignments{
		policy.WorkflowReviewer: {"rita"},
		policy.WorkflowApprover: {"paul"},
	}
	if _, err := svc.StartWorkflow(ctx, doc.ID, author); err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	if _, err := svc.Sign(ctx, doc.ID, reviewr, "rita", ""); err != nil {
		t.Fatalf("Sign must succeed without a renderer: %v", err)
	}
	sigs, _ := mem.ListSignatures(ctx, doc.ID)
	if len(sigs) != 1 {
		t.Fatalf("signature rows = %d, want 1", len(sigs))
	}
}

func TestCheckInBumpsVersionAndRecords(t *testing.T) {
	mem := newMemStore()
	svc, fv := newTestWorkflow(t, mem)
	doc := seedDocument(t, svc)
	ctx := context.Background()

	version, err := svc.CheckIn(ctx, doc.ID, author, "/tmp/work/sop.docx", "reworked intro")
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if version.VersionLabel != "1.1" {
		t.Errorf("version label = %s, want 1.1", version.VersionLabel)
	}
	if version.CommitHash != "abc1234" {
		t.Errorf("commit hash = %s", version.CommitHash)
	}
	if fv.checkedIn != 1 {
		t.Errorf("vault check-ins = %d", fv.checkedIn)
	}

	versions, _ := mem.ListDocumentVersions(ctx, doc.ID)
	if len(versions) != 1 || versions[0].Comment != "reworked intro" {
		t.Errorf("version records: %+v", versions)
	}
}

func TestRestartAfterAbortBeginsNewCycle(t *testing.T) {
	mem := newMemStore()
	svc, _ := newTestWorkflow(t, mem)
	doc := seedDocument(t, svc)
	ctx := context.Background()

	mem.assignments[doc.ID] = policy.Assignments{
		policy.WorkflowReviewer: {"rita"},
		policy.WorkflowApprover: {"paul"},
	}

	if _, err := svc.StartWorkflow(ctx, doc.ID, author); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := svc.Sign(ctx, doc.ID, reviewr, "rita", ""); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.AbortWorkflow(ctx, doc.ID, author, ""); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if _, err := svc.StartWorkflow(ctx, doc.ID, author); err != nil {
		t.Fatalf("second start: %v", err)
	}

	state, _ := mem.GetWorkflowState(ctx, doc.ID)
	if state.Cycle != 2 {
		t.Fatalf("cycle = %d, want 2", state.Cycle)
	}

	// The old cycle's signature must not satisfy the new cycle.
	cycleSigs, _ := mem.ListCycleSignatures(ctx, doc.ID, state.Cycle)
	if len(cycleSigs) != 0 {
		t.Errorf("new cycle already has %d signatures", len(cycleSigs))
	}
	if _, err := svc.Sign(ctx, doc.ID, reviewr, "rita", ""); err != nil {
		t.Errorf("reviewer must sign again in the new cycle: %v", err)
	}
}
