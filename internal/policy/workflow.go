package policy

import (
	"fmt"
	"time"
)

// Status is the business lifecycle status of a controlled document.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusInReview  Status = "IN_REVIEW"
	StatusApproved  Status = "APPROVED"
	StatusPublished Status = "PUBLISHED"
	StatusArchived  Status = "ARCHIVED"
)

// transitions is the complete edge set of the lifecycle graph. A pair
// absent from this map is a policy violation, never silently coerced.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusInReview},
	StatusInReview:  {StatusApproved, StatusDraft},
	StatusApproved:  {StatusPublished, StatusDraft},
	StatusPublished: {StatusArchived},
	StatusArchived:  {},
}

func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusDraft, StatusInReview, StatusApproved, StatusPublished, StatusArchived:
		return Status(raw), nil
	default:
		return "", fmt.Errorf("unknown document status %q", raw)
	}
}

// IsActive reports whether the status implies a running workflow step
// that still requires human sign-off.
func (s Status) IsActive() bool {
	return s == StatusInReview || s == StatusApproved
}

// CanTransition reports whether from->to is an edge of the lifecycle
// graph. The backward edges into Draft are the abort paths.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive error for a rejected edge.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("transition %s -> %s is not allowed", from, to)
	}
	return nil
}

// Phase is the derived runtime phase for a document status.
type Phase struct {
	Active       bool
	RequiredRole WorkflowRole
}

// DerivePhase maps the document status onto the workflow phase: Draft
// expects the author (inactive), InReview the signing chain. Approved is
// still active (awaiting publish or abort) but has no pending signing
// role; Published and Archived are settled.
func DerivePhase(status Status) Phase {
	switch status {
	case StatusDraft:
		return Phase{Active: false, RequiredRole: WorkflowAuthor}
	case StatusInReview:
		return Phase{Active: true, RequiredRole: WorkflowReviewer}
	case StatusApproved:
		return Phase{Active: true}
	default:
		return Phase{}
	}
}

// Assignments maps workflow roles to the assigned user ids for one
// document. Replaced wholesale, never diffed.
type Assignments map[WorkflowRole][]string

func (a Assignments) Users(role WorkflowRole) []string {
	return a[role]
}

func (a Assignments) Contains(role WorkflowRole, userID string) bool {
	for _, id := range a[role] {
		if id == userID {
			return true
		}
	}
	return false
}

// ValidateAssignments rejects configurations that would make a later
// sign-off impossible to audit: the same person as sole reviewer and
// sole approver of the cycle.
func ValidateAssignments(a Assignments) error {
	reviewers := a[WorkflowReviewer]
	approvers := a[WorkflowApprover]
	if len(reviewers) == 1 && len(approvers) == 1 && reviewers[0] == approvers[0] {
		return fmt.Errorf("user %s must not be sole reviewer and sole approver of the same cycle", approvers[0])
	}
	return nil
}

// SigningRole determines the role under which the user may sign right
// now. The signing chain runs entirely inside InReview: reviewers first,
// then approvers once every assigned reviewer has signed. A user signs
// at most once per role per cycle, and the separation-of-duties rule
// blocks a sole approver who is also the sole reviewer.
func SigningRole(status Status, assignments Assignments, signedReviewers, signedApprovers []string, user CurrentUser) (WorkflowRole, bool) {
	if status != StatusInReview {
		return "", false
	}

	if assignments.Contains(WorkflowReviewer, user.ID) && !contains(signedReviewers, user.ID) {
		return WorkflowReviewer, true
	}

	if assignments.Contains(WorkflowApprover, user.ID) &&
		AllReviewersSigned(assignments, signedReviewers) &&
		!contains(signedApprovers, user.ID) {
		if err := ValidateAssignments(assignments); err != nil {
			return "", false
		}
		return WorkflowApprover, true
	}

	return "", false
}

// CanUserSign reports whether the user may execute the sign action for
// the document right now.
func CanUserSign(status Status, assignments Assignments, signedReviewers, signedApprovers []string, user CurrentUser) bool {
	_, ok := SigningRole(status, assignments, signedReviewers, signedApprovers, user)
	return ok
}

// AllReviewersSigned reports whether every assigned reviewer has
// signed. A cycle without assigned reviewers is vacuously complete, so
// approver-only cycles can proceed.
func AllReviewersSigned(assignments Assignments, signedReviewers []string) bool {
	for _, id := range assignments[WorkflowReviewer] {
		if !contains(signedReviewers, id) {
			return false
		}
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// AllApproversSigned implements the all-of semantics for the
// InReview -> Approved edge: every assigned approver must appear in
// signedApprovers. A cycle without approvers never completes.
func AllApproversSigned(assignments Assignments, signedApprovers []string) bool {
	approvers := assignments[WorkflowApprover]
	if len(approvers) == 0 {
		return false
	}
	signed := make(map[string]struct{}, len(signedApprovers))
	for _, id := range signedApprovers {
		signed[id] = struct{}{}
	}
	for _, id := range approvers {
		if _, ok := signed[id]; !ok {
			return false
		}
	}
	return true
}

// IsExpired reports whether the validity window has elapsed since
// publication. now is taken at call time by the caller; true exactly at
// the boundary instant.
func IsExpired(publishedAt *time.Time, validity time.Duration, now time.Time) bool {
	if publishedAt == nil || validity <= 0 {
		return false
	}
	return !now.Before(publishedAt.Add(validity))
}

// CanExtendWithoutChange is the extension-without-revision hook. No
// concrete business rule has been supplied, so it conservatively
// returns false for every document.
func CanExtendWithoutChange(status Status) bool {
	if status != StatusPublished {
		return false
	}
	return false
}
