package domain

import "fmt"

// UNIT は通貨の基本単位。
const UNIT Balance = 1_000_000_000_000

// ThresholdRemovalMode はトラスティ削除でしきい値を下回る場合の扱い。
type ThresholdRemovalMode string

const (
	// ThresholdClamp はしきい値を残りのトラスティ数まで引き下げる。
	// セキュリティポリシーが黙って弱まる点に注意。
	ThresholdClamp ThresholdRemovalMode = "clamp"
	// ThresholdReject は削除自体を拒否する。
	ThresholdReject ThresholdRemovalMode = "reject"
)

// DIDCollisionMode はDIDインデックスが別アカウントを指している場合の扱い。
type DIDCollisionMode string

const (
	// DIDCollisionReject は衝突時に ErrDIDCollision を返す。
	DIDCollisionReject DIDCollisionMode = "reject"
	// DIDCollisionOverwrite は逆引きインデックスを上書きする。
	DIDCollisionOverwrite DIDCollisionMode = "overwrite"
)

// Policy はリカバリーに関するポリシー定数を表す。
type Policy struct {
	MinThreshold       uint8
	MaxThreshold       uint8
	MaxTrustees        uint8
	RecoveryDeposit    Balance
	RecoveryDelay      uint64
	ThresholdOnRemoval ThresholdRemovalMode
	DIDCollision       DIDCollisionMode
	// GovernanceAccount は任意のリカバリー要求を取り消せるアカウント。空なら無効。
	GovernanceAccount AccountID
}

// DefaultPolicy は既定のポリシーを返す。
func DefaultPolicy() Policy {
	return Policy{
		MinThreshold:       2,
		MaxThreshold:       10,
		MaxTrustees:        10,
		RecoveryDeposit:    1 * UNIT,
		RecoveryDelay:      14400, // 6秒ブロックで約24時間
		ThresholdOnRemoval: ThresholdClamp,
		DIDCollision:       DIDCollisionReject,
	}
}

// Validate はポリシーの整合性を検証する。
func (p Policy) Validate() error {
	if p.MinThreshold < 1 || p.MinThreshold > p.MaxThreshold {
		return fmt.Errorf("%w: threshold bounds %d..%d", ErrInvalidPolicy, p.MinThreshold, p.MaxThreshold)
	}
	if p.MaxTrustees < 1 {
		return fmt.Errorf("%w: max trustees must be positive", ErrInvalidPolicy)
	}
	switch p.ThresholdOnRemoval {
	case ThresholdClamp, ThresholdReject:
	default:
		return fmt.Errorf("%w: unknown threshold removal mode %q", ErrInvalidPolicy, p.ThresholdOnRemoval)
	}
	switch p.DIDCollision {
	case DIDCollisionReject, DIDCollisionOverwrite:
	default:
		return fmt.Errorf("%w: unknown DID collision mode %q", ErrInvalidPolicy, p.DIDCollision)
	}
	return nil
}
