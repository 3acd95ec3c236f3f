package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aura-identity-service/internal/domain"
)

// IdentityModel はgorm用のモデル定義。DIDと公開鍵は16進数で保持する。
type IdentityModel struct {
	Account       string    `gorm:"type:varchar(64);primaryKey"`
	DID           string    `gorm:"column:did;type:char(64);not null;index:idx_identities_did"`
	PublicKey     string    `gorm:"type:char(64);not null"`
	Metadata      []byte    `gorm:"type:blob"`
	CreatedHeight uint64    `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (IdentityModel) TableName() string {
	return "identities"
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *IdentityModel) toDomain() (*domain.IdentityRecord, error) {
	did, err := domain.ParseDID(m.DID)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", m.Account, err)
	}
	key, err := domain.ParsePublicKey(m.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", m.Account, err)
	}
	return &domain.IdentityRecord{
		Account:   domain.AccountID(m.Account),
		DID:       did,
		PublicKey: key,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedHeight,
	}, nil
}

// DIDIndexModel はDIDからアカウントへの逆引きインデックス。
type DIDIndexModel struct {
	DID     string `gorm:"column:did;type:char(64);primaryKey"`
	Account string `gorm:"type:varchar(64);not null"`
}

// TableName はテーブル名を返す。
func (DIDIndexModel) TableName() string {
	return "did_index"
}

// IdentityRepository はアイデンティティとDID逆引きへのアクセスを提供する。
type IdentityRepository struct {
	db *gorm.DB
}

// NewIdentityRepository は新しいIdentityRepositoryを生成する。
func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// FindIdentity は指定アカウントのアイデンティティを取得する。未登録の場合は nil を返す。
func (r *IdentityRepository) FindIdentity(ctx context.Context, account domain.AccountID) (*domain.IdentityRecord, error) {
	var model IdentityModel
	err := r.db.WithContext(ctx).Where("account = ?", string(account)).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find identity",
			"operation", "find_identity",
			"account", account,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain()
}

// SaveIdentity はアイデンティティを作成または更新する。
func (r *IdentityRepository) SaveIdentity(ctx context.Context, record *domain.IdentityRecord) error {
	model := &IdentityModel{
		Account:       string(record.Account),
		DID:           record.DID.Hex(),
		PublicKey:     record.PublicKey.Hex(),
		Metadata:      record.Metadata,
		CreatedHeight: record.CreatedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to save identity",
			"operation", "save_identity",
			"account", record.Account,
			"error", err,
		)
		return err
	}
	return nil
}

// FindAccountByDID はDIDを逆引きする。
func (r *IdentityRepository) FindAccountByDID(ctx context.Context, did domain.DID) (domain.AccountID, bool, error) {
	var model DIDIndexModel
	err := r.db.WithContext(ctx).Where("did = ?", did.Hex()).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		slog.ErrorContext(ctx, "failed to find account by DID",
			"operation", "find_account_by_did",
			"did", did.String(),
			"error", err,
		)
		return "", false, err
	}
	return domain.AccountID(model.Account), true, nil
}

// PutDIDIndex はDIDの逆引きを登録する。既存の登録は上書きする。
func (r *IdentityRepository) PutDIDIndex(ctx context.Context, did domain.DID, account domain.AccountID) error {
	model := &DIDIndexModel{DID: did.Hex(), Account: string(account)}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to put DID index",
			"operation", "put_did_index",
			"did", did.String(),
			"account", account,
			"error", err,
		)
		return err
	}
	return nil
}

// DeleteDIDIndex はDIDの逆引きを削除する。
func (r *IdentityRepository) DeleteDIDIndex(ctx context.Context, did domain.DID) error {
	err := r.db.WithContext(ctx).Where("did = ?", did.Hex()).Delete(&DIDIndexModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete DID index",
			"operation", "delete_did_index",
			"did", did.String(),
			"error", err,
		)
		return err
	}
	return nil
}
