package export

import (
	"context"
	"strings"
	"testing"
	"time"

	"qmdoc/core/internal/policy"
	"qmdoc/core/internal/store"
)

type fakeStore struct {
	doc   store.Document
	state store.WorkflowState
	sigs  []store.Signature
}

func (f *fakeStore) GetDocument(ctx context.Context, id string) (store.Document, error) {
	return f.doc, nil
}

func (f *fakeStore) GetWorkflowState(ctx context.Context, docID string) (store.WorkflowState, error) {
	return f.state, nil
}

func (f *fakeStore) ListCycleSignatures(ctx context.Context, docID string, cycle int) ([]store.Signature, error) {
	return f.sigs, nil
}

type fakeNames map[string]string

func (f fakeNames) DisplayName(_ context.Context, username string) string {
	if name, ok := f[username]; ok {
		return name
	}
	return username
}

func TestRenderArtifactHTML(t *testing.T) {
	published := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	validUntil := published.AddDate(2, 0, 0)

	fake := &fakeStore{
		doc: store.Document{
			ID:           "doc_1",
			Title:        "Hygiene SOP",
			DocType:      "SOP",
			Status:       policy.StatusPublished,
			VersionMajor: 2,
			VersionMinor: 0,
			CreatedBy:    "anna",
			PublishedAt:  &published,
			ValidUntil:   &validUntil,
		},
		state: store.WorkflowState{DocumentID: "doc_1", Cycle: 2},
		sigs: []store.Signature{
			{Role: policy.WorkflowReviewer, Username: "bernd", SignedAt: published.Add(-48 * time.Hour), Comment: "looks good"},
			{Role: policy.WorkflowApprover, Username: "carla", SignedAt: published.Add(-24 * time.Hour)},
		},
	}
	names := fakeNames{"anna": "Anna Author", "bernd": "Bernd Reviewer"}

	svc := NewService(fake, names)
	html, title, err := svc.renderHTML(context.Background(), Request{DocumentID: "doc_1"})
	if err != nil {
		t.Fatalf("renderHTML: %v", err)
	}
	if title != "Hygiene SOP" {
		t.Errorf("title = %q", title)
	}

	for _, want := range []string{
		"Hygiene SOP",
		"Version 2.0",
		"PUBLISHED",
		"Anna Author",
		"Bernd Reviewer",
		"carla", // unknown user falls back to the raw username
		"looks good",
		"2026-03-10",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderArtifactHTMLWithoutPublication(t *testing.T) {
	fake := &fakeStore{
		doc: store.Document{
			ID:           "doc_2",
			Title:        "Draft Work Instruction",
			DocType:      "WI",
			Status:       policy.StatusInReview,
			VersionMajor: 1,
			VersionMinor: 3,
			CreatedBy:    "anna",
		},
		state: store.WorkflowState{DocumentID: "doc_2", Cycle: 1},
	}

	svc := NewService(fake, fakeNames{})
	html, _, err := svc.renderHTML(context.Background(), Request{DocumentID: "doc_2"})
	if err != nil {
		t.Fatalf("renderHTML: %v", err)
	}
	if strings.Contains(html, "Valid until") {
		t.Error("unpublished document should not render a validity line")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hygiene SOP", "Hygiene-SOP"},
		{"Prüfmittel / Kalibrierung", "Prfmittel--Kalibrierung"},
		{"", "document"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
