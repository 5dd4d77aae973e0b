package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quizzies/internal/config"
	"quizzies/internal/database"
	"quizzies/internal/identity"
	"quizzies/internal/repository"
	"quizzies/internal/service"
)

// backupEnv holds what every subcommand opens
type backupEnv struct {
	cfg     *config.Config
	db      *database.DB
	backups *service.BackupService
	closers []func()
}

func (e *backupEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	env := &backupEnv{}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Quizzies account and ledger backup tool",
		Long: `Export, import and inspect Quizzies accounts and progress ledgers.

Environment Variables:
  DATABASE_TYPE    Database type: sqlite, postgres, pgx or mysql (default: sqlite)
  DB_PATH          SQLite database path (default: ./quizzies.db)
  DATABASE_URL     PostgreSQL or MySQL connection URL
  LEDGER_BACKEND   Ledger store: sql or firestore (default: sql)`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			env.Close()
		},
	}

	cmd.AddCommand(newExportCommand(env))
	cmd.AddCommand(newImportCommand(env))
	cmd.AddCommand(newShowCommand(env))
	return cmd
}

func (e *backupEnv) open(ctx context.Context) error {
	e.cfg = config.Load()

	db, err := database.InitializeWithConfig(e.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	e.db = db
	e.closers = append(e.closers, func() { db.Close() })

	if err := db.RunMigrations(e.cfg.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	var ledgers service.LedgerArchive
	switch e.cfg.LedgerBackend {
	case repository.BackendSQL, "":
		ledgers = repository.NewProgressRepository(db, e.cfg.TransactionAttempts)
	case repository.BackendFirestore:
		app, err := identity.NewFirebaseApp(ctx, e.cfg.FirebaseProjectID, e.cfg.FirebaseCredentialsFile, e.cfg.FirebaseCredentialsJSON)
		if err != nil {
			return err
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return fmt.Errorf("failed to create firestore client: %w", err)
		}
		e.closers = append(e.closers, func() { client.Close() })
		ledgers = repository.NewFirestoreProgressRepository(client, repository.DefaultProgressCollection, e.cfg.TransactionAttempts)
	default:
		return fmt.Errorf("ledger backend %q cannot be backed up", e.cfg.LedgerBackend)
	}

	e.backups = service.NewBackupService(repository.NewUserRepository(db), ledgers)
	return nil
}

func newExportCommand(env *backupEnv) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export accounts and ledgers to a JSON file",
		Example: `  backup export
  backup export --output mybackup.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
			}

			if dir := filepath.Dir(output); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}

			if err := env.backups.Export(cmd.Context(), output); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if info, err := os.Stat(output); err == nil {
				log.Printf("Export complete! File size: %.2f MB", float64(info.Size())/1024/1024)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path (default: backup_YYYYMMDD_HHMMSS.json)")
	return cmd
}

func newImportCommand(env *backupEnv) *cobra.Command {
	var (
		input string
		clearData bool
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import accounts and ledgers from a JSON file",
		Long: `Import a backup. Existing accounts are kept and ledgers in the backup
replace stored ones. With --clear every account and ledger is deleted first.`,
		Example: `  backup import --input backup.json
  backup import --input backup.json --clear`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(input); err != nil {
				return fmt.Errorf("input file does not exist: %s", input)
			}

			if clearData && !yes {
				fmt.Fprint(cmd.OutOrStdout(), "WARNING: This will delete all existing data. Type 'yes' to confirm: ")
				confirmation, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(confirmation) != "yes" {
					log.Println("Import cancelled")
					return nil
				}
			}

			stats, err := env.backups.Import(cmd.Context(), input, clearData)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			if stats.LedgersFailed > 0 {
				log.Printf("Warning: %d ledgers could not be restored", stats.LedgersFailed)
			}
			log.Println("Import complete!")
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "input file path")
	cmd.Flags().BoolVar(&clearData, "clear", false, "clear existing data before import (WARNING: destructive)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the --clear confirmation prompt")
	cmd.MarkFlagRequired("input")
	return cmd
}

func newShowCommand(env *backupEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "show <userId>",
		Short: "Print one user's ledger as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := env.backups.Show(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("no ledger for user %s", args[0])
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(p)
		},
	}
}
