package app

import (
	"context"

	"qmdoc/core/internal/policy"
)

// UIState is the immutable flag set the view layer binds its action
// buttons and hints to. It is recomputed on every refresh, never
// cached across state changes.
type UIState struct {
	DocumentID     string
	Status         policy.Status
	WorkflowActive bool
	StarterID      string
	RequiredRole   policy.WorkflowRole

	CanStart     bool
	CanAbort     bool
	CanSign      bool
	CanPublish   bool
	CanArchive   bool
	CanEditRoles bool
	CanExtend    bool
	Expired      bool
}

// ComputeUIState aggregates permission and workflow policy outputs for
// one document and user. It is a pure composition over current store
// state; nothing is persisted.
func (s *Service) ComputeUIState(ctx context.Context, docID string, user policy.CurrentUser) (UIState, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return UIState{}, classify("get document", err)
	}
	state, err := s.store.GetWorkflowState(ctx, docID)
	if err != nil {
		return UIState{}, classify("get workflow state", err)
	}
	assignments, err := s.store.GetAssignees(ctx, docID)
	if err != nil {
		return UIState{}, classify("get assignees", err)
	}
	sigs, err := s.store.ListCycleSignatures(ctx, docID, state.Cycle)
	if err != nil {
		return UIState{}, classify("list signatures", err)
	}

	var signedReviewers, signedApprovers []string
	for _, sig := range sigs {
		switch sig.Role {
		case policy.WorkflowReviewer:
			signedReviewers = append(signedReviewers, sig.UserID)
		case policy.WorkflowApprover:
			signedApprovers = append(signedApprovers, sig.UserID)
		}
	}

	phase := policy.DerivePhase(doc.Status)
	return UIState{
		DocumentID:     docID,
		Status:         doc.Status,
		WorkflowActive: state.Active,
		StarterID:      state.StartedBy,
		RequiredRole:   phase.RequiredRole,

		CanStart:     doc.Status == policy.StatusDraft && !state.Active && policy.CanStartWorkflow(user),
		CanAbort:     state.Active && policy.CanAbortWorkflow(user, state.StartedBy),
		CanSign:      state.Active && policy.CanUserSign(doc.Status, assignments, signedReviewers, signedApprovers, user),
		CanPublish:   doc.Status == policy.StatusApproved && policy.CanPublish(user),
		CanArchive:   doc.Status == policy.StatusPublished && policy.CanArchive(user),
		CanEditRoles: policy.CanEditRoles(user),
		CanExtend:    policy.CanExtendWithoutChange(doc.Status),
		Expired:      policy.IsExpired(doc.PublishedAt, s.validity, s.now()),
	}, nil
}
