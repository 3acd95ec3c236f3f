package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"aura-identity-service/config"
	"aura-identity-service/internal/domain"
	"aura-identity-service/internal/infra"
	"aura-identity-service/internal/repository"
	"aura-identity-service/internal/usecase"
	"aura-identity-service/migrations"
)

// openDB は環境変数の設定でレジャーのデータベースに接続する。
func openDB() (*gorm.DB, error) {
	db, _, err := openDBWithConfig()
	return db, err
}

func openDBWithConfig() (*gorm.DB, *config.Config, error) {
	cfg := config.Load()
	db, err := infra.NewDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, cfg, nil
}

// newMigrationService は埋め込みSQLを使うMigrationServiceを生成する。
func newMigrationService(db *gorm.DB) *usecase.MigrationService {
	return usecase.NewMigrationService(repository.NewMigrationRepository(db), migrations.FS)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  "Manage database migrations for the identity ledger (DATABASE_DRIVER, DATABASE_URL)",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateStatusCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			db, cfg, err := openDBWithConfig()
			if err != nil {
				return err
			}
			// migrations/ はMySQL方言のためSQLiteではモデルから作る
			if cfg.DatabaseDriver == "sqlite" {
				if err := repository.AutoMigrate(db); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Println("SQLite schema is up to date.")
				return nil
			}
			svc := newMigrationService(db)

			appliedCount, err := svc.ApplyMigrations(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if appliedCount == 0 {
				fmt.Println("No pending migrations.")
			} else {
				fmt.Printf("Applied %d migration(s) successfully.\n", appliedCount)
			}
			return nil
		},
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			db, err := openDB()
			if err != nil {
				return err
			}
			svc := newMigrationService(db)

			list, err := svc.GetMigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			for _, m := range list {
				appliedAt := "-"
				if m.AppliedAt != nil {
					appliedAt = m.AppliedAt.Format("2006-01-02 15:04:05")
				}
				status := "pending"
				if m.Status == domain.MigrationStatusApplied {
					status = "applied"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Version, m.Name, status, appliedAt)
			}
			return w.Flush()
		},
	}
}
