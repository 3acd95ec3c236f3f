package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aura-identity-service/internal/domain"
)

// AccountBalanceModel はアカウントごとの空き残高と予約済み残高。
type AccountBalanceModel struct {
	Account         string    `gorm:"type:varchar(64);primaryKey"`
	FreeBalance     uint64    `gorm:"not null;default:0"`
	ReservedBalance uint64    `gorm:"not null;default:0"`
	UpdatedAt       time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (AccountBalanceModel) TableName() string {
	return "account_balances"
}

// BalanceRepository は残高の予約と解除を提供する。
type BalanceRepository struct {
	db *gorm.DB
}

// NewBalanceRepository は新しいBalanceRepositoryを生成する。
func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// FindBalance は残高を取得する。行が無い場合はゼロ残高を返す。
func (r *BalanceRepository) FindBalance(ctx context.Context, account domain.AccountID) (*domain.AccountBalance, error) {
	var model AccountBalanceModel
	err := r.db.WithContext(ctx).Where("account = ?", string(account)).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.AccountBalance{Account: account}, nil
		}
		slog.ErrorContext(ctx, "failed to find balance",
			"operation", "find_balance",
			"account", account,
			"error", err,
		)
		return nil, err
	}
	return &domain.AccountBalance{
		Account:  account,
		Free:     domain.Balance(model.FreeBalance),
		Reserved: domain.Balance(model.ReservedBalance),
	}, nil
}

// Reserve は空き残高から amount を予約済みに移す。
// 空き残高が足りない場合は domain.ErrInsufficientBalance を返し、何も変更しない。
func (r *BalanceRepository) Reserve(ctx context.Context, account domain.AccountID, amount domain.Balance) error {
	if amount == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&AccountBalanceModel{}).
		Where("account = ? AND free_balance >= ?", string(account), uint64(amount)).
		Updates(map[string]any{
			"free_balance":     gorm.Expr("free_balance - ?", uint64(amount)),
			"reserved_balance": gorm.Expr("reserved_balance + ?", uint64(amount)),
		})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to reserve balance",
			"operation", "reserve",
			"account", account,
			"amount", amount,
			"error", result.Error,
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// Unreserve は予約済み残高の範囲で amount を空き残高に戻し、戻せなかった量を返す。
func (r *BalanceRepository) Unreserve(ctx context.Context, account domain.AccountID, amount domain.Balance) (domain.Balance, error) {
	current, err := r.FindBalance(ctx, account)
	if err != nil {
		return 0, err
	}
	actual := min(amount, current.Reserved)
	if actual == 0 {
		return amount, nil
	}
	err = r.db.WithContext(ctx).
		Model(&AccountBalanceModel{}).
		Where("account = ?", string(account)).
		Updates(map[string]any{
			"free_balance":     gorm.Expr("free_balance + ?", uint64(actual)),
			"reserved_balance": gorm.Expr("reserved_balance - ?", uint64(actual)),
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to unreserve balance",
			"operation", "unreserve",
			"account", account,
			"amount", actual,
			"error", err,
		)
		return 0, err
	}
	return amount - actual, nil
}

// Fund は空き残高に amount を加算する。運用ツールとテスト用。
func (r *BalanceRepository) Fund(ctx context.Context, account domain.AccountID, amount domain.Balance) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		DoUpdates: clause.Assignments(map[string]any{"free_balance": gorm.Expr("free_balance + ?", uint64(amount))}),
	}).Create(&AccountBalanceModel{Account: string(account), FreeBalance: uint64(amount)}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to fund account",
			"operation", "fund",
			"account", account,
			"amount", amount,
			"error", err,
		)
		return err
	}
	return nil
}
