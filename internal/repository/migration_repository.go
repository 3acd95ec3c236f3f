package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"aura-identity-service/internal/domain"
)

// SchemaMigrationModel はschema_migrationsテーブルのモデル。
type SchemaMigrationModel struct {
	Version   string    `gorm:"column:version;primaryKey;type:varchar(14)"`
	Name      string    `gorm:"column:name;type:varchar(255);not null;default:''"`
	AppliedAt time.Time `gorm:"column:applied_at;not null;autoCreateTime"`
}

// TableName はテーブル名を指定。
func (SchemaMigrationModel) TableName() string {
	return "schema_migrations"
}

// MigrationRepository はスキーマの適用履歴を管理し、マイグレーションを実行する。
type MigrationRepository struct {
	db *gorm.DB
}

// NewMigrationRepository は新しいMigrationRepositoryを生成する。
func NewMigrationRepository(db *gorm.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// EnsureHistory は履歴テーブルが無ければ作成する。
func (r *MigrationRepository) EnsureHistory(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&SchemaMigrationModel{}); err != nil {
		return fmt.Errorf("preparing schema_migrations: %w", err)
	}
	return nil
}

// AppliedVersions は適用済みバージョンと適用日時を返す。
func (r *MigrationRepository) AppliedVersions(ctx context.Context) (map[string]time.Time, error) {
	var models []SchemaMigrationModel
	if err := r.db.WithContext(ctx).Order("version ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to list applied migrations",
			"operation", "applied_versions",
			"error", err,
		)
		return nil, err
	}

	applied := make(map[string]time.Time, len(models))
	for _, model := range models {
		applied[model.Version] = model.AppliedAt
	}
	return applied, nil
}

// Apply は statements を順に実行し、同じトランザクションで履歴を記録する。
// MySQLのDDLは暗黙コミットされるため、途中で失敗すると実行済みの文は残り履歴だけが残らない。
func (r *MigrationRepository) Apply(ctx context.Context, m *domain.Migration, statements []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, stmt := range statements {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		record := &SchemaMigrationModel{Version: m.Version, Name: m.Name}
		if err := tx.Create(record).Error; err != nil {
			slog.ErrorContext(ctx, "failed to record migration",
				"operation", "apply_migration",
				"version", m.Version,
				"error", err,
			)
			return fmt.Errorf("recording migration: %w", err)
		}
		m.MarkApplied(record.AppliedAt)
		return nil
	})
}
