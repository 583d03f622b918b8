package vault

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	base := t.TempDir()
	return New(filepath.Join(base, "vault"), filepath.Join(base, "working"))
}

func TestEnsureDocumentRepoIsIdempotent(t *testing.T) {
	svc := newTestService(t)

	if err := svc.EnsureDocumentRepo("doc1", "sop.docx", []byte("v1"), "anna"); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := svc.EnsureDocumentRepo("doc1", "sop.docx", []byte("other"), "anna"); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	data, err := svc.HeadFile("doc1", "sop.docx")
	if err != nil {
		t.Fatalf("HeadFile: %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("second ensure overwrote baseline: %q", data)
	}
}

func TestCheckOutEditCheckIn(t *testing.T) {
	svc := newTestService(t)
	if err := svc.EnsureDocumentRepo("doc1", "sop.docx", []byte("v1"), "anna"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	copy1, err := svc.CheckOut("doc1", "sop.docx")
	if err != nil {
		t.Fatalf("CheckOut: %v", err)
	}
	if err := os.WriteFile(copy1.Path, []byte("v2 edited"), 0o644); err != nil {
		t.Fatalf("edit working copy: %v", err)
	}

	commit, err := svc.CheckIn("doc1", "sop.docx", copy1.Path, "anna", "Rework section 3")
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if commit.Hash == "" || commit.Author != "anna" {
		t.Errorf("unexpected commit info: %+v", commit)
	}

	data, err := svc.HeadFile("doc1", "sop.docx")
	if err != nil {
		t.Fatalf("HeadFile: %v", err)
	}
	if string(data) != "v2 edited" {
		t.Errorf("head = %q, want checked-in content", data)
	}

	// The baseline stays retrievable through history.
	history, err := svc.History("doc1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Message != "Rework section 3" {
		t.Errorf("newest commit = %q", history[0].Message)
	}

	baseline, err := svc.FileAtCommit("doc1", "sop.docx", history[1].Hash)
	if err != nil {
		t.Fatalf("FileAtCommit: %v", err)
	}
	if string(baseline) != "v1" {
		t.Errorf("baseline = %q, want v1", baseline)
	}

	if err := svc.DiscardWorkingCopy(copy1.Session); err != nil {
		t.Fatalf("DiscardWorkingCopy: %v", err)
	}
	if _, err := os.Stat(copy1.Path); !os.IsNotExist(err) {
		t.Error("working copy still present after discard")
	}
}

func TestCheckOutSessionsAreIsolated(t *testing.T) {
	svc := newTestService(t)
	if err := svc.EnsureDocumentRepo("doc1", "sop.docx", []byte("v1"), "anna"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	a, err := svc.CheckOut("doc1", "sop.docx")
	if err != nil {
		t.Fatalf("first CheckOut: %v", err)
	}
	b, err := svc.CheckOut("doc1", "sop.docx")
	if err != nil {
		t.Fatalf("second CheckOut: %v", err)
	}
	if a.Path == b.Path {
		t.Error("two checkouts share a working path")
	}
}

func TestCopyToDestination(t *testing.T) {
	svc := newTestService(t)
	if err := svc.EnsureDocumentRepo("doc1", "sop.docx", []byte("published"), "anna"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "share", "sop.docx")
	if err := svc.CopyToDestination("doc1", "sop.docx", dest); err != nil {
		t.Fatalf("CopyToDestination: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if string(data) != "published" {
		t.Errorf("destination = %q", data)
	}
}
