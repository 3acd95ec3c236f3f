package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const chainStateID = 1

// ChainStateModel は現在のブロック高を保持する単一行テーブル。
type ChainStateModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement:false"`
	Height    uint64    `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (ChainStateModel) TableName() string {
	return "chain_state"
}

// ChainRepository はブロック高へのアクセスを提供する。
type ChainRepository struct {
	db *gorm.DB
}

// NewChainRepository は新しいChainRepositoryを生成する。
func NewChainRepository(db *gorm.DB) *ChainRepository {
	return &ChainRepository{db: db}
}

// CurrentHeight は現在のブロック高を返す。未初期化の場合は0。
func (r *ChainRepository) CurrentHeight(ctx context.Context) (uint64, error) {
	var model ChainStateModel
	err := r.db.WithContext(ctx).Where("id = ?", chainStateID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		slog.ErrorContext(ctx, "failed to get current height",
			"operation", "current_height",
			"error", err,
		)
		return 0, err
	}
	return model.Height, nil
}

// AdvanceHeight はブロック高を blocks だけ進め、新しい高さを返す。
func (r *ChainRepository) AdvanceHeight(ctx context.Context, blocks uint64) (uint64, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{"height": gorm.Expr("height + ?", blocks)}),
	}).Create(&ChainStateModel{ID: chainStateID, Height: blocks}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to advance height",
			"operation", "advance_height",
			"blocks", blocks,
			"error", err,
		)
		return 0, err
	}
	return r.CurrentHeight(ctx)
}
