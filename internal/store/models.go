package store

import (
	"time"

	"qmdoc/core/internal/policy"
)

type User struct {
	ID               string
	Username         string
	DisplayName      string
	Email            string
	PasswordHash     string
	Role             policy.SystemRole
	CanStartWorkflow bool
	CreatedAt        time.Time
}

type Document struct {
	ID            string
	Title         string
	Description   string
	DocType       string
	Status        policy.Status
	VersionMajor  int
	VersionMinor  int
	FilePath      string
	SigningPDF    string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PublishedAt   *time.Time
	ValidUntil    *time.Time
	ArchivedAt    *time.Time
	ArchivedBy    string
	ArchiveReason string
}

// VersionLabel renders the major.minor label, e.g. "1.3".
func (d Document) VersionLabel() string {
	return versionLabel(d.VersionMajor, d.VersionMinor)
}

// WorkflowState tracks whether a workflow run is in progress for a
// document, independent of the document's lifecycle status. The cycle
// counter increments on every start; signature rows carry the cycle
// they belong to.
type WorkflowState struct {
	DocumentID string
	Active     bool
	StartedBy  string
	Cycle      int
}

// Signature is one append-only audit row of the signing trail. Rows are
// never updated or deleted.
type Signature struct {
	ID       int64
	DocID    string
	Cycle    int
	Role     policy.WorkflowRole
	UserID   string
	Username string
	SignedAt time.Time
	Comment  string
}

type Comment struct {
	ID        int64
	DocID     string
	UserID    string
	Text      string
	CreatedAt time.Time
}

// StatusChange is one audit row of the status history: who moved the
// document from where to where, and why.
type StatusChange struct {
	ID         int64
	DocID      string
	FromStatus policy.Status
	ToStatus   policy.Status
	UserID     string
	Reason     string
	ChangedAt  time.Time
}

// DocumentVersion records one checked-in file version together with the
// vault commit that holds its content.
type DocumentVersion struct {
	ID           int64
	DocID        string
	VersionLabel string
	CommitHash   string
	Comment      string
	UserID       string
	CreatedAt    time.Time
}

// SearchFilter narrows List queries; zero values mean "no filter".
type SearchFilter struct {
	Status     policy.Status
	DocType    string
	Text       string
	ActiveOnly bool
}
