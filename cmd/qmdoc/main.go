// Package main provides the qmdoc binary entry point. Qmdoc manages
// controlled documents through their signing lifecycle: draft, review,
// approval, publication and archival, with a git-backed file vault and
// an append-only signature trail.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"qmdoc/core/internal/app"
	"qmdoc/core/internal/config"
	"qmdoc/core/internal/export"
	"qmdoc/core/internal/logging"
	"qmdoc/core/internal/store"
	"qmdoc/core/internal/users"
	"qmdoc/core/internal/vault"
)

const (
	Version = "0.1.0"
	appName = "qmdoc"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Controlled document lifecycle manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `Qmdoc manages controlled documents (SOPs, work instructions, forms)
through a signing workflow: authors draft, reviewers and approvers sign
in order, admins publish and archive. Every file version lives in a
git-backed vault; every signature renders a PDF artifact.`,
	}

	cmd.AddCommand(
		initCmd(),
		seedCmd(),
		createCmd(),
		listCmd(),
		showCmd(),
		commentCmd(),
		checkoutCmd(),
		checkinCmd(),
		exportCmd(),
		assignCmd(),
		startCmd(),
		signCmd(),
		abortCmd(),
		publishCmd(),
		archiveCmd(),
		userCmd(),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	}
}

// env bundles the wired services a command needs. Every command opens
// its own env and closes it when done.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.SQLite
	users  *users.Service
	query  *app.Service
	flow   *app.WorkflowService

	closeDB func() error
}

func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	db, err := store.Open(cmd.Context(), cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DB.Path, err)
	}
	if err := store.EnsureSchema(cmd.Context(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	s := store.NewSQLite(db)
	userSvc := users.NewService(s)
	vaultSvc := vault.New(cfg.Vault.Dir, cfg.Vault.WorkingDir)
	exportSvc := export.NewService(s, userSvc)

	return &env{
		cfg:     cfg,
		logger:  logger,
		store:   s,
		users:   userSvc,
		query:   app.NewService(s, userSvc, logger, cfg.Validity()),
		flow:    app.NewWorkflowService(s, vaultSvc, exportSvc, logger, cfg.Validity(), cfg.Vault.ArtifactDir),
		closeDB: db.Close,
	}, nil
}

func (e *env) close() {
	if err := e.closeDB(); err != nil {
		e.logger.Warn("close database", "error", err)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database schema and data directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			for _, dir := range []string{e.cfg.Vault.Dir, e.cfg.Vault.WorkingDir, e.cfg.Vault.ArtifactDir} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}
			fmt.Printf("initialized database %s\n", e.cfg.DB.Path)
			return nil
		},
	}
}
