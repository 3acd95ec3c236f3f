package domain

import "errors"

var (
	// ErrAlreadyExists は呼び出し元が既にアイデンティティを持つ場合のエラー。
	ErrAlreadyExists = errors.New("identity already exists")

	// ErrAlreadyConfigured はリカバリーが既に設定済みの場合のエラー。
	ErrAlreadyConfigured = errors.New("recovery already configured")

	// ErrRecoveryAlreadyActive は進行中のリカバリー要求が存在する場合のエラー。
	ErrRecoveryAlreadyActive = errors.New("recovery already active")

	// ErrAlreadyTrustee は指定アカウントが既にトラスティである場合のエラー。
	ErrAlreadyTrustee = errors.New("account is already a trustee")

	// ErrAlreadyConfirmed はトラスティが既にシェアを提出済みの場合のエラー。
	ErrAlreadyConfirmed = errors.New("trustee already confirmed")

	// ErrDuplicateTrustee はトラスティ一覧に重複がある場合のエラー。
	ErrDuplicateTrustee = errors.New("duplicate trustee")

	// ErrDIDCollision はDIDが別アカウントに登録済みの場合のエラー。
	ErrDIDCollision = errors.New("DID already registered to another account")

	// ErrIdentityNotFound はアイデンティティが存在しない場合のエラー。
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrRecoveryNotConfigured はリカバリーが未設定または無効な場合のエラー。
	ErrRecoveryNotConfigured = errors.New("recovery not configured")

	// ErrTrusteeNotFound は指定アカウントがトラスティでない場合のエラー。
	ErrTrusteeNotFound = errors.New("trustee not found")

	// ErrNoActiveRecovery は進行中のリカバリー要求が存在しない場合のエラー。
	ErrNoActiveRecovery = errors.New("no active recovery")

	// ErrInvalidThreshold はしきい値がポリシーの範囲外の場合のエラー。
	ErrInvalidThreshold = errors.New("invalid recovery threshold")

	// ErrTooManyTrustees はトラスティ数がしきい値未満または上限超過の場合のエラー。
	ErrTooManyTrustees = errors.New("invalid number of trustees")

	// ErrSelfTrustee は自分自身をトラスティに指定した場合のエラー。
	ErrSelfTrustee = errors.New("account cannot be its own trustee")

	// ErrInsufficientShares は確認数がしきい値に達していない場合のエラー。
	ErrInsufficientShares = errors.New("insufficient trustee shares")

	// ErrDelayPeriodNotPassed は遅延期間が経過していない場合のエラー。
	ErrDelayPeriodNotPassed = errors.New("recovery delay period has not passed")

	// ErrMetadataTooLarge はメタデータが上限を超える場合のエラー。
	ErrMetadataTooLarge = errors.New("metadata too large")

	// ErrShareTooLarge はシェアが上限を超える場合のエラー。
	ErrShareTooLarge = errors.New("share too large")

	// ErrInsufficientBalance は予約に必要な残高が不足している場合のエラー。
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotAuthorized は操作の権限がない場合のエラー。
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidPublicKey は公開鍵の形式が不正な場合のエラー。
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidDID はDIDの形式が不正な場合のエラー。
	ErrInvalidDID = errors.New("invalid DID")

	// ErrInvalidAccountID はアカウントIDの形式が不正な場合のエラー。
	ErrInvalidAccountID = errors.New("invalid account ID")

	// ErrInvalidPolicy はポリシー設定が不正な場合のエラー。
	ErrInvalidPolicy = errors.New("invalid recovery policy")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)

// ErrorKind はエラーの分類を表す。
type ErrorKind string

const (
	KindConflict      ErrorKind = "conflict"
	KindNotFound      ErrorKind = "not_found"
	KindPolicy        ErrorKind = "policy"
	KindResource      ErrorKind = "resource"
	KindAuthorization ErrorKind = "authorization"
	KindInvalid       ErrorKind = "invalid"
	KindInternal      ErrorKind = "internal"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrAlreadyExists, KindConflict},
	{ErrAlreadyConfigured, KindConflict},
	{ErrRecoveryAlreadyActive, KindConflict},
	{ErrAlreadyTrustee, KindConflict},
	{ErrAlreadyConfirmed, KindConflict},
	{ErrDuplicateTrustee, KindConflict},
	{ErrDIDCollision, KindConflict},
	{ErrIdentityNotFound, KindNotFound},
	{ErrRecoveryNotConfigured, KindNotFound},
	{ErrTrusteeNotFound, KindNotFound},
	{ErrNoActiveRecovery, KindNotFound},
	{ErrInvalidThreshold, KindPolicy},
	{ErrTooManyTrustees, KindPolicy},
	{ErrSelfTrustee, KindPolicy},
	{ErrInsufficientShares, KindPolicy},
	{ErrDelayPeriodNotPassed, KindPolicy},
	{ErrMetadataTooLarge, KindPolicy},
	{ErrShareTooLarge, KindPolicy},
	{ErrInsufficientBalance, KindResource},
	{ErrNotAuthorized, KindAuthorization},
	{ErrInvalidPublicKey, KindInvalid},
	{ErrInvalidDID, KindInvalid},
	{ErrInvalidAccountID, KindInvalid},
}

// KindOf はエラーの分類を返す。ドメインエラーでなければ KindInternal。
func KindOf(err error) ErrorKind {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
