package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qmdoc/core/internal/policy"
)

func assignCmd() *cobra.Command {
	var (
		as        string
		reviewers []string
		approvers []string
	)
	cmd := &cobra.Command{
		Use:   "assign <doc-id>",
		Short: "Set the reviewer and approver assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			user, err := actingUser(cmd, e, as)
			if err != nil {
				return err
			}

			mapping := policy.Assignments{}
			if ids, err := resolveUserIDs(cmd, e, reviewers); err != nil {
				return err
			} else if len(ids) > 0 {
				mapping[policy.WorkflowReviewer] = ids
			}
			if ids, err := resolveUserIDs(cmd, e, approvers); err != nil {
				return err
			} else if len(ids) > 0 {
				mapping[policy.WorkflowApprover] = ids
			}

			if err := e.flow.SetAssignments(cmd.Context(), args[0], user, mapping); err != nil {
				return err
			}
			fmt.Printf("assigned %d reviewer(s), %d approver(s)\n",
				len(mapping[policy.WorkflowReviewer]), len(mapping[policy.WorkflowApprover]))
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Acting username")
	cmd.Flags().StringArrayVar(&reviewers, "reviewer", nil, "Reviewer username (repeatable)")
	cmd.Flags().StringArrayVar(&approvers, "approver", nil, "Approver username (repeatable)")
	return cmd
}

// resolveUserIDs maps usernames to stable user IDs so assignments
// survive renames.
func resolveUserIDs(cmd *cobra.Command, e *env, usernames []string) ([]string, error) {
	ids := make([]string, 0, len(usernames))
	for _, username := range usernames {
		user, err := e.users.Current(cmd.Context(), username)
		if err != nil {
			return nil, fmt.Errorf("resolve user %q: %w", username, err)
		}
		ids = append(ids, user.ID)
	}
	return ids, nil
}

func startCmd() *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "start <doc-id>",
		Short: "Start the signing workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			user, err := actingUser(cmd, e, as)
			if err != nil {
				return err
			}
			result, err := e.flow.StartWorkflow(cmd.Context(), args[0], user)
			if err != nil {
				return err
			}
			fmt.Printf("workflow started, document is %s\n", result.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Acting username")
	return cmd
}

func signCmd() *cobra.Command {
	var (
		as      string
		comment string
	)
	cmd := &cobra.Command{
		Use:   "sign <doc-id>",
		Short: "Sign the document in the caller's workflow role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			user, err := actingUser(cmd, e, as)
			if err != nil {
				return err
			}
			result, err := e.flow.Sign(cmd.Context(), args[0], user, as, comment)
			if err != nil {
				return err
			}
			fmt.Printf("signed as %s, document is %s\n", result.SignedAs, result.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Acting username")
	cmd.Flags().StringVar(&comment, "comment", "", "Signature comment")
	return cmd
}

func abortCmd() *cobra.Command {
	var (
		as     string
		reason string
	)
	cmd := &cobra.Command{
		Use:   "abort <doc-id>",
		Short: "Abort the running workflow and return the document to draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			user, err := actingUser(cmd, e, as)
			if err != nil {
				return err
			}
			result, err := e.flow.AbortWorkflow(cmd.Context(), args[0], user, reason)
			if err != nil {
				return err
			}
			fmt.Printf("workflow aborted, document is %s\n", result.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Acting username")
	cmd.Flags().StringVar(&reason, "reason", "", "Abort reason recorded in the status history")
	return cmd
}

func publishCmd() *cobra.Command {
	var (
		as          string
		destination string
	)
	cmd := &cobra.Command{
		Use:   "publish <doc-id>",
		Short: "Publish an approved document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			user, err := actingUser(cmd, e, as)
			if err != nil {
				return err
			}
			result, err := e.flow.Publish(cmd.Context(), args[0], user, destination)
			if err != nil {
				return err
			}
			fmt.Printf("published, document is %s\n", result.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Acting username")
	cmd.Flags().StringVar(&destination, "dest", "", "Directory to copy the published file into")
	return cmd
}

func archiveCmd() *cobra.Command {
	var (
		as     string
		reason string
	)
	cmd := &cobra.Command{
		Use:   "archive <doc-id>",
		Short: "Archive a published document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			user, err := actingUser(cmd, e, as)
			if err != nil {
				return err
			}
			result, err := e.flow.Archive(cmd.Context(), args[0], user, reason)
			if err != nil {
				return err
			}
			fmt.Printf("archived, document is %s\n", result.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Acting username")
	cmd.Flags().StringVar(&reason, "reason", "", "Archive reason")
	return cmd
}
