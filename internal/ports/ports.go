// Package ports はユースケースが依存する外部コラボレーターのインターフェースを定義する。
package ports

import (
	"context"

	"aura-identity-service/internal/domain"
)

// Chain は現在のブロック高を提供する。
type Chain interface {
	CurrentHeight(ctx context.Context) (uint64, error)
}

// IdentityStore はアイデンティティとDID逆引きインデックスを保持する。
// Find系は未登録の場合 nil, nil を返す。
type IdentityStore interface {
	FindIdentity(ctx context.Context, account domain.AccountID) (*domain.IdentityRecord, error)
	SaveIdentity(ctx context.Context, record *domain.IdentityRecord) error
	FindAccountByDID(ctx context.Context, did domain.DID) (domain.AccountID, bool, error)
	PutDIDIndex(ctx context.Context, did domain.DID, account domain.AccountID) error
	DeleteDIDIndex(ctx context.Context, did domain.DID) error
}

// RecoveryStore はリカバリー設定、トラスティ・シェア、リカバリー要求、預託金インデックスを保持する。
type RecoveryStore interface {
	FindRecoveryConfig(ctx context.Context, owner domain.AccountID) (*domain.RecoveryConfig, error)
	SaveRecoveryConfig(ctx context.Context, cfg *domain.RecoveryConfig) error
	DeleteRecoveryConfig(ctx context.Context, owner domain.AccountID) error

	FindTrusteeShare(ctx context.Context, owner, trustee domain.AccountID) (*domain.TrusteeShare, error)
	ListTrusteeShares(ctx context.Context, owner domain.AccountID) ([]*domain.TrusteeShare, error)
	SaveTrusteeShare(ctx context.Context, share *domain.TrusteeShare) error
	DeleteTrusteeShare(ctx context.Context, owner, trustee domain.AccountID) error

	FindActiveRecovery(ctx context.Context, lost domain.AccountID) (*domain.RecoveryRequest, error)
	SaveActiveRecovery(ctx context.Context, req *domain.RecoveryRequest) error
	DeleteActiveRecovery(ctx context.Context, lost domain.AccountID) error

	FindRecoveryDeposit(ctx context.Context, owner domain.AccountID) (domain.Balance, bool, error)
	SaveRecoveryDeposit(ctx context.Context, owner domain.AccountID, amount domain.Balance) error
	DeleteRecoveryDeposit(ctx context.Context, owner domain.AccountID) error
}

// Currency は残高の予約（ロック）と解除を行う。
type Currency interface {
	// Reserve は空き残高が不足する場合 domain.ErrInsufficientBalance を返す。
	Reserve(ctx context.Context, account domain.AccountID, amount domain.Balance) error
	// Unreserve は予約済み残高の範囲で解除し、解除できなかった量を返す。
	Unreserve(ctx context.Context, account domain.AccountID, amount domain.Balance) (domain.Balance, error)
	FindBalance(ctx context.Context, account domain.AccountID) (*domain.AccountBalance, error)
}

// EventLog は追記専用のイベントログ。
type EventLog interface {
	AppendEvent(ctx context.Context, event *domain.Event) error
	ListEvents(ctx context.Context, after uint64, limit int) ([]*domain.Event, error)
}

// Ledger は1操作のトランザクション内で見えるレジャー全体。
type Ledger interface {
	Chain
	IdentityStore
	RecoveryStore
	Currency
	EventLog
}

// Store は操作を全か無かで適用する。
// fn がエラーを返した場合、その中の書き込みはすべて破棄される。
type Store interface {
	Atomic(ctx context.Context, fn func(tx Ledger) error) error
}

// ShareSealer はトラスティ・シェアの保存時暗号化を行う。
type ShareSealer interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}
