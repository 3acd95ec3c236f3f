package domain

// Balance は通貨量を表す。
type Balance uint64

// RecoveryConfig はアカウントごとのソーシャルリカバリー設定を表す。
type RecoveryConfig struct {
	Owner         AccountID
	Threshold     uint8
	TotalTrustees uint8
	DelayPeriod   uint64 // ブロック数
	Active        bool
	Deposit       Balance
}

// Usable はリカバリーを開始・実行できる設定かを返す。
// しきい値とトラスティ数はどちらも1以上でなければならない。
func (c *RecoveryConfig) Usable() bool {
	return c != nil && c.Active && c.Threshold > 0 && c.TotalTrustees > 0
}

// TrusteeShare は (owner, trustee) ごとのシェア記録を表す。
// Share の中身はエンジンでは解釈しない。
type TrusteeShare struct {
	Owner     AccountID
	Trustee   AccountID
	Share     []byte
	Confirmed bool
}

// RecoveryState はリカバリー要求の状態を表す。
type RecoveryState string

const (
	// RecoveryStatePending は確認数がしきい値未満、または遅延期間中の状態。
	RecoveryStatePending RecoveryState = "pending"
	// RecoveryStateReady は実行可能な状態。
	RecoveryStateReady RecoveryState = "ready"
	// RecoveryStateCompleted は実行済みの状態。
	RecoveryStateCompleted RecoveryState = "completed"
)

// RecoveryRequest は紛失アカウントに対する進行中のリカバリー要求を表す。
type RecoveryRequest struct {
	LostAccount       AccountID
	RequestingAccount AccountID
	NewPublicKey      PublicKey
	SubmittedShares   uint8
	ExecuteAt         uint64
	Completed         bool
}

// State はしきい値と現在のブロック高から要求の状態を判定する。
func (r *RecoveryRequest) State(threshold uint8, height uint64) RecoveryState {
	switch {
	case r.Completed:
		return RecoveryStateCompleted
	case r.SubmittedShares >= threshold && height >= r.ExecuteAt:
		return RecoveryStateReady
	default:
		return RecoveryStatePending
	}
}

// AccountBalance は通貨予約サービスが管理する残高を表す。
type AccountBalance struct {
	Account  AccountID
	Free     Balance
	Reserved Balance
}
