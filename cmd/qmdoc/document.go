package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"qmdoc/core/internal/app"
	"qmdoc/core/internal/export"
	"qmdoc/core/internal/policy"
	"qmdoc/core/internal/store"
)

const timeLayout = "2006-01-02 15:04"

// actingUser resolves the --as flag into a permission view. Commands
// that mutate state require it.
func actingUser(cmd *cobra.Command, e *env, username string) (policy.CurrentUser, error) {
	if username == "" {
		return policy.CurrentUser{}, fmt.Errorf("--as <username> is required")
	}
	user, err := e.users.Current(cmd.Context(), username)
	if err != nil {
		return policy.CurrentUser{}, fmt.Errorf("resolve user %q: %w", username, err)
	}
	return user, nil
}

func createCmd() *cobra.Command {
	var (
		as          string
		title       string
		description string
		docType     string
		file        string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new draft document",
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

			input := app.CreateDocumentInput{
				Title:       title,
				Description: description,
				DocType:     docType,
			}
			if file != "" {
				content, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				input.Filename = filepath.Base(file)
				input.Content = content
			}

			doc, err := e.flow.CreateDocument(cmd.Context(), input, user)
			if err != nil {
				return err
			}
			fmt.Printf("created %s (%s %s, version %s)\n", doc.ID, doc.DocType, doc.Title, doc.VersionLabel())
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Acting username")
	cmd.Flags().StringVar(&title, "title", "", "Document title")
	cmd.Flags().StringVar(&description, "description", "", "Document description")
	cmd.Flags().StringVar(&docType, "type", "", "Document type (SOP, WI, FORM, ...)")
	cmd.Flags().StringVar(&file, "file", "", "Initial file content to seed the vault with")
	return cmd
}

func listCmd() *cobra.Command {
	var (
		docType    string
		status     string
		search     string
		activeOnly bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			filter := store.SearchFilter{
				DocType:    docType,
				Text:       search,
				ActiveOnly: activeOnly,
			}
			if status != "" {
				parsed, err := policy.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = parsed
			}

			docs := e.query.ListDocuments(cmd.Context(), filter)
			if len(docs) == 0 {
				fmt.Println("no documents")
				return nil
			}
			for _, doc := range docs {
				expired := ""
				if doc.Expired {
					expired = " [expired]"
				}
				fmt.Printf("%s  %-10s  %-6s  v%-5s  %s%s\n",
					doc.ID, doc.Status, doc.DocType, doc.Version, doc.Title, expired)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&docType, "type", "", "Filter by document type")
	cmd.Flags().StringVar(&status, "status", "", "Filter by lifecycle status")
	cmd.Flags().StringVar(&search, "search", "", "Filter by title substring")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only documents with a running workflow")
	return cmd
}

func showCmd() *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "show <doc-id>",
		Short: "Show a document with its signatures and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			docID := args[0]

			doc, err := e.query.GetDocument(ctx, docID)
			if err != nil {
				return err
			}

			fmt.Printf("%s\n", doc.Title)
			fmt.Printf("  id:       %s\n", doc.ID)
			fmt.Printf("  type:     %s\n", doc.DocType)
			fmt.Printf("  status:   %s\n", doc.Status)
			fmt.Printf("  version:  %s\n", doc.Version)
			fmt.Printf("  owner:    %s\n", doc.OwnerName)
			if doc.PublishedAt != nil {
				fmt.Printf("  published: %s\n", doc.PublishedAt.Format(timeLayout))
			}
			if doc.ValidUntil != nil {
				suffix := ""
				if doc.Expired {
					suffix = " (expired)"
				}
				fmt.Printf("  valid until: %s%s\n", doc.ValidUntil.Format(timeLayout), suffix)
			}

			if sigs := e.query.ListSignatures(ctx, docID); len(sigs) > 0 {
				fmt.Println("signatures:")
				for _, sig := range sigs {
					fmt.Printf("  cycle %d  %-9s  %-20s  %s\n",
						sig.Cycle, sig.Role, sig.SignerName, sig.SignedAt.Format(timeLayout))
				}
			}
			if history := e.query.ListStatusHistory(ctx, docID); len(history) > 0 {
				fmt.Println("history:")
				for _, change := range history {
					fmt.Printf("  %s  %s -> %s  (%s)\n",
						change.ChangedAt.Format(timeLayout), change.FromStatus, change.ToStatus, change.Reason)
				}
			}
			if versions := e.query.ListVersions(ctx, docID); len(versions) > 0 {
				fmt.Println("versions:")
				for _, v := range versions {
					fmt.Printf("  v%-5s  %s  %s\n", v.VersionLabel, v.CommitHash, v.Comment)
				}
			}
			if comments := e.query.ListComments(ctx, docID); len(comments) > 0 {
				fmt.Println("comments:")
				for _, c := range comments {
					fmt.Printf("  %s  %s: %s\n", c.CreatedAt.Format(timeLayout), c.AuthorName, c.Text)
				}
			}

			if as != "" {
				user, err := actingUser(cmd, e, as)
				if err != nil {
					return err
				}
				state, err := e.query.ComputeUIState(ctx, docID, user)
				if err != nil {
					return err
				}
				actions := []struct {
					label   string
					allowed bool
				}{
					{"start", state.CanStart},
					{"sign", state.CanSign},
					{"abort", state.CanAbort},
					{"publish", state.CanPublish},
					{"archive", state.CanArchive},
					{"assign", state.CanEditRoles},
				}
				fmt.Printf("actions for %s:", as)
				for _, a := range actions {
					if a.allowed {
						fmt.Printf(" %s", a.label)
					}
				}
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Also show which actions this username may take")
	return cmd
}

func commentCmd() *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "comment <doc-id> <text>",
		Short: "Add a comment to a document",
		Args:  cobra.ExactArgs(2),
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
			return e.query.AddComment(cmd.Context(), args[0], user.ID, args[1])
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Acting username")
	return cmd
}

func checkoutCmd() *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "checkout <doc-id>",
		Short: "Check the document file out into a working copy",
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
			wc, err := e.flow.CheckOut(cmd.Context(), args[0], user)
			if err != nil {
				return err
			}
			fmt.Printf("checked out to %s (session %s)\n", wc.Path, wc.Session)
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Acting username")
	return cmd
}

func checkinCmd() *cobra.Command {
	var (
		as      string
		file    string
		comment string
	)
	cmd := &cobra.Command{
		Use:   "checkin <doc-id>",
		Short: "Check an edited file back in as a new minor version",
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
			version, err := e.flow.CheckIn(cmd.Context(), args[0], user, file, comment)
			if err != nil {
				return err
			}
			fmt.Printf("checked in version %s (commit %s)\n", version.VersionLabel, version.CommitHash)
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Acting username")
	cmd.Flags().StringVar(&file, "file", "", "Path to the edited file")
	cmd.Flags().StringVar(&comment, "comment", "", "Check-in comment")
	cmd.MarkFlagRequired("file")
	return cmd
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <doc-id>",
		Short: "Render the document's signing artifact as PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			result, err := export.NewService(e.store, e.users).Render(cmd.Context(), export.Request{
				DocumentID: args[0],
			})
			if err != nil {
				return err
			}
			if out == "" {
				out = result.Filename
			}
			if err := os.WriteFile(out, result.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Printf("wrote %s (%d bytes)\n", out, len(result.Data))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output file (defaults to the artifact filename)")
	return cmd
}
