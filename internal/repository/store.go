// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"

	"gorm.io/gorm"

	"aura-identity-service/internal/ports"
)

// Ledger は1つの *gorm.DB（通常はトランザクション）上のレジャー全体。
type Ledger struct {
	*ChainRepository
	*IdentityRepository
	*RecoveryRepository
	*BalanceRepository
	*EventRepository
}

// NewLedger は新しいLedgerを生成する。
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{
		ChainRepository:    NewChainRepository(db),
		IdentityRepository: NewIdentityRepository(db),
		RecoveryRepository: NewRecoveryRepository(db),
		BalanceRepository:  NewBalanceRepository(db),
		EventRepository:    NewEventRepository(db),
	}
}

// Store は gorm のトランザクションで ports.Store を実装する。
type Store struct {
	db *gorm.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Atomic は fn を1つのトランザクション内で実行する。fn がエラーを返すとロールバックする。
func (s *Store) Atomic(ctx context.Context, fn func(tx ports.Ledger) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewLedger(tx))
	})
}

// Models はレジャーを構成する全モデルを返す。
func Models() []any {
	return []any{
		&ChainStateModel{},
		&IdentityModel{},
		&DIDIndexModel{},
		&RecoveryConfigModel{},
		&TrusteeShareModel{},
		&ActiveRecoveryModel{},
		&RecoveryDepositModel{},
		&AccountBalanceModel{},
		&EventModel{},
		&SchemaMigrationModel{},
	}
}

// AutoMigrate はモデル定義からテーブルを作成する。SQLite での開発・テスト用。
// MySQL では migrations/ のSQLを使う。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

var _ ports.Store = (*Store)(nil)
var _ ports.Ledger = (*Ledger)(nil)
