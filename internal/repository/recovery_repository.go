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

// RecoveryConfigModel はgorm用のモデル定義。
type RecoveryConfigModel struct {
	Owner         string    `gorm:"type:varchar(64);primaryKey"`
	Threshold     uint8     `gorm:"not null"`
	TotalTrustees uint8     `gorm:"not null"`
	DelayPeriod   uint64    `gorm:"not null"`
	Active        bool      `gorm:"not null"`
	Deposit       uint64    `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (RecoveryConfigModel) TableName() string {
	return "recovery_configs"
}

func (m *RecoveryConfigModel) toDomain() *domain.RecoveryConfig {
	return &domain.RecoveryConfig{
		Owner:         domain.AccountID(m.Owner),
		Threshold:     m.Threshold,
		TotalTrustees: m.TotalTrustees,
		DelayPeriod:   m.DelayPeriod,
		Active:        m.Active,
		Deposit:       domain.Balance(m.Deposit),
	}
}

// TrusteeShareModel は (owner, trustee) ごとのシェア記録。
type TrusteeShareModel struct {
	Owner     string `gorm:"type:varchar(64);primaryKey"`
	Trustee   string `gorm:"type:varchar(64);primaryKey;index:idx_trustee_shares_trustee"`
	Share     []byte `gorm:"type:blob"`
	Confirmed bool   `gorm:"not null"`
}

// TableName はテーブル名を返す。
func (TrusteeShareModel) TableName() string {
	return "trustee_shares"
}

func (m *TrusteeShareModel) toDomain() *domain.TrusteeShare {
	return &domain.TrusteeShare{
		Owner:     domain.AccountID(m.Owner),
		Trustee:   domain.AccountID(m.Trustee),
		Share:     m.Share,
		Confirmed: m.Confirmed,
	}
}

// ActiveRecoveryModel は紛失アカウントごとの進行中リカバリー要求。
type ActiveRecoveryModel struct {
	LostAccount       string    `gorm:"type:varchar(64);primaryKey"`
	RequestingAccount string    `gorm:"type:varchar(64);not null"`
	NewPublicKey      string    `gorm:"type:char(64);not null"`
	SubmittedShares   uint8     `gorm:"not null"`
	ExecuteAt         uint64    `gorm:"not null"`
	Completed         bool      `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (ActiveRecoveryModel) TableName() string {
	return "active_recoveries"
}

func (m *ActiveRecoveryModel) toDomain() (*domain.RecoveryRequest, error) {
	key, err := domain.ParsePublicKey(m.NewPublicKey)
	if err != nil {
		return nil, fmt.Errorf("recovery %s: %w", m.LostAccount, err)
	}
	return &domain.RecoveryRequest{
		LostAccount:       domain.AccountID(m.LostAccount),
		RequestingAccount: domain.AccountID(m.RequestingAccount),
		NewPublicKey:      key,
		SubmittedShares:   m.SubmittedShares,
		ExecuteAt:         m.ExecuteAt,
		Completed:         m.Completed,
	}, nil
}

// RecoveryDepositModel は予約中の預託金額。
type RecoveryDepositModel struct {
	Owner  string `gorm:"type:varchar(64);primaryKey"`
	Amount uint64 `gorm:"not null"`
}

// TableName はテーブル名を返す。
func (RecoveryDepositModel) TableName() string {
	return "recovery_deposits"
}

// RecoveryRepository はリカバリー関連テーブルへのアクセスを提供する。
type RecoveryRepository struct {
	db *gorm.DB
}

// NewRecoveryRepository は新しいRecoveryRepositoryを生成する。
func NewRecoveryRepository(db *gorm.DB) *RecoveryRepository {
	return &RecoveryRepository{db: db}
}

// FindRecoveryConfig は owner のリカバリー設定を取得する。未設定の場合は nil を返す。
func (r *RecoveryRepository) FindRecoveryConfig(ctx context.Context, owner domain.AccountID) (*domain.RecoveryConfig, error) {
	var model RecoveryConfigModel
	err := r.db.WithContext(ctx).Where("owner = ?", string(owner)).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find recovery config",
			"operation", "find_recovery_config",
			"owner", owner,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// SaveRecoveryConfig はリカバリー設定を作成または更新する。
func (r *RecoveryRepository) SaveRecoveryConfig(ctx context.Context, cfg *domain.RecoveryConfig) error {
	model := &RecoveryConfigModel{
		Owner:         string(cfg.Owner),
		Threshold:     cfg.Threshold,
		TotalTrustees: cfg.TotalTrustees,
		DelayPeriod:   cfg.DelayPeriod,
		Active:        cfg.Active,
		Deposit:       uint64(cfg.Deposit),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to save recovery config",
			"operation", "save_recovery_config",
			"owner", cfg.Owner,
			"error", err,
		)
		return err
	}
	return nil
}

// DeleteRecoveryConfig はリカバリー設定を削除する。
func (r *RecoveryRepository) DeleteRecoveryConfig(ctx context.Context, owner domain.AccountID) error {
	err := r.db.WithContext(ctx).Where("owner = ?", string(owner)).Delete(&RecoveryConfigModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete recovery config",
			"operation", "delete_recovery_config",
			"owner", owner,
			"error", err,
		)
		return err
	}
	return nil
}

// FindTrusteeShare は (owner, trustee) のシェア記録を取得する。存在しない場合は nil を返す。
func (r *RecoveryRepository) FindTrusteeShare(ctx context.Context, owner, trustee domain.AccountID) (*domain.TrusteeShare, error) {
	var model TrusteeShareModel
	err := r.db.WithContext(ctx).
		Where("owner = ? AND trustee = ?", string(owner), string(trustee)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find trustee share",
			"operation", "find_trustee_share",
			"owner", owner,
			"trustee", trustee,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// ListTrusteeShares は owner の全シェア記録をトラスティ順に取得する。
func (r *RecoveryRepository) ListTrusteeShares(ctx context.Context, owner domain.AccountID) ([]*domain.TrusteeShare, error) {
	var models []TrusteeShareModel
	err := r.db.WithContext(ctx).
		Where("owner = ?", string(owner)).
		Order("trustee ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to list trustee shares",
			"operation", "list_trustee_shares",
			"owner", owner,
			"error", err,
		)
		return nil, err
	}

	shares := make([]*domain.TrusteeShare, len(models))
	for i, m := range models {
		shares[i] = m.toDomain()
	}
	return shares, nil
}

// SaveTrusteeShare はシェア記録を作成または更新する。
func (r *RecoveryRepository) SaveTrusteeShare(ctx context.Context, share *domain.TrusteeShare) error {
	model := &TrusteeShareModel{
		Owner:     string(share.Owner),
		Trustee:   string(share.Trustee),
		Share:     share.Share,
		Confirmed: share.Confirmed,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to save trustee share",
			"operation", "save_trustee_share",
			"owner", share.Owner,
			"trustee", share.Trustee,
			"error", err,
		)
		return err
	}
	return nil
}

// DeleteTrusteeShare はシェア記録を削除する。
func (r *RecoveryRepository) DeleteTrusteeShare(ctx context.Context, owner, trustee domain.AccountID) error {
	err := r.db.WithContext(ctx).
		Where("owner = ? AND trustee = ?", string(owner), string(trustee)).
		Delete(&TrusteeShareModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete trustee share",
			"operation", "delete_trustee_share",
			"owner", owner,
			"trustee", trustee,
			"error", err,
		)
		return err
	}
	return nil
}

// FindActiveRecovery は lost の進行中リカバリー要求を取得する。存在しない場合は nil を返す。
func (r *RecoveryRepository) FindActiveRecovery(ctx context.Context, lost domain.AccountID) (*domain.RecoveryRequest, error) {
	var model ActiveRecoveryModel
	err := r.db.WithContext(ctx).Where("lost_account = ?", string(lost)).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find active recovery",
			"operation", "find_active_recovery",
			"lost_account", lost,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain()
}

// SaveActiveRecovery はリカバリー要求を作成または更新する。
func (r *RecoveryRepository) SaveActiveRecovery(ctx context.Context, req *domain.RecoveryRequest) error {
	model := &ActiveRecoveryModel{
		LostAccount:       string(req.LostAccount),
		RequestingAccount: string(req.RequestingAccount),
		NewPublicKey:      req.NewPublicKey.Hex(),
		SubmittedShares:   req.SubmittedShares,
		ExecuteAt:         req.ExecuteAt,
		Completed:         req.Completed,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lost_account"}},
		DoUpdates: clause.AssignmentColumns([]string{"requesting_account", "new_public_key", "submitted_shares", "execute_at", "completed"}),
	}).Create(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to save active recovery",
			"operation", "save_active_recovery",
			"lost_account", req.LostAccount,
			"error", err,
		)
		return err
	}
	return nil
}

// DeleteActiveRecovery はリカバリー要求を削除する。
func (r *RecoveryRepository) DeleteActiveRecovery(ctx context.Context, lost domain.AccountID) error {
	err := r.db.WithContext(ctx).Where("lost_account = ?", string(lost)).Delete(&ActiveRecoveryModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete active recovery",
			"operation", "delete_active_recovery",
			"lost_account", lost,
			"error", err,
		)
		return err
	}
	return nil
}

// FindRecoveryDeposit は owner の預託金額を取得する。
func (r *RecoveryRepository) FindRecoveryDeposit(ctx context.Context, owner domain.AccountID) (domain.Balance, bool, error) {
	var model RecoveryDepositModel
	err := r.db.WithContext(ctx).Where("owner = ?", string(owner)).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		slog.ErrorContext(ctx, "failed to find recovery deposit",
			"operation", "find_recovery_deposit",
			"owner", owner,
			"error", err,
		)
		return 0, false, err
	}
	return domain.Balance(model.Amount), true, nil
}

// SaveRecoveryDeposit は預託金額を記録する。
func (r *RecoveryRepository) SaveRecoveryDeposit(ctx context.Context, owner domain.AccountID, amount domain.Balance) error {
	model := &RecoveryDepositModel{Owner: string(owner), Amount: uint64(amount)}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to save recovery deposit",
			"operation", "save_recovery_deposit",
			"owner", owner,
			"amount", amount,
			"error", err,
		)
		return err
	}
	return nil
}

// DeleteRecoveryDeposit は預託金の記録を削除する。
func (r *RecoveryRepository) DeleteRecoveryDeposit(ctx context.Context, owner domain.AccountID) error {
	err := r.db.WithContext(ctx).Where("owner = ?", string(owner)).Delete(&RecoveryDepositModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete recovery deposit",
			"operation", "delete_recovery_deposit",
			"owner", owner,
			"error", err,
		)
		return err
	}
	return nil
}
