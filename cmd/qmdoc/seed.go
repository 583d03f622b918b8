package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"qmdoc/core/internal/app"
	"qmdoc/core/internal/policy"
	"qmdoc/core/internal/users"
)

// seedAccounts are the demo accounts created by `qmdoc seed`.
var seedAccounts = []users.CreateRequest{
	{Username: "admin", DisplayName: "Administrator", Password: "changeme1", Role: policy.RoleAdmin},
	{Username: "qmb", DisplayName: "Quality Manager", Password: "changeme1", Role: policy.RoleQMB},
	{Username: "anna", DisplayName: "Anna Author", Password: "changeme1", Role: policy.RoleUser, CanStartWorkflow: true},
	{Username: "rita", DisplayName: "Rita Reviewer", Password: "changeme1", Role: policy.RoleUser},
	{Username: "paul", DisplayName: "Paul Approver", Password: "changeme1", Role: policy.RoleUser},
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create demo accounts and a sample document",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			for _, req := range seedAccounts {
				if _, err := e.users.Create(ctx, req); err != nil {
					if errors.Is(err, users.ErrUsernameTaken) {
						continue
					}
					return fmt.Errorf("create %s: %w", req.Username, err)
				}
				fmt.Printf("created user %s\n", req.Username)
			}

			anna, err := e.users.Current(ctx, "anna")
			if err != nil {
				return err
			}
			doc, err := e.flow.CreateDocument(ctx, app.CreateDocumentInput{
				Title:       "Hand Hygiene Procedure",
				Description: "Sample standard operating procedure",
				DocType:     "SOP",
				Filename:    "hand-hygiene.docx",
				Content:     []byte("Wash hands before and after patient contact.\n"),
			}, anna)
			if err != nil {
				return fmt.Errorf("create sample document: %w", err)
			}
			fmt.Printf("created sample document %s\n", doc.ID)
			return nil
		},
	}
}
