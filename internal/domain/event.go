package domain

// EventType はドメインイベントの種別を表す。
type EventType string

const (
	EventIdentityCreated       EventType = "IdentityCreated"
	EventRecoveryConfigured    EventType = "RecoveryConfigured"
	EventRecoveryDeactivated   EventType = "RecoveryDeactivated"
	EventTrusteeAdded          EventType = "TrusteeAdded"
	EventTrusteeRemoved        EventType = "TrusteeRemoved"
	EventRecoveryInitiated     EventType = "RecoveryInitiated"
	EventRecoveryShareProvided EventType = "RecoveryShareProvided"
	EventRecoveryExecuted      EventType = "RecoveryExecuted"
	EventRecoveryCancelled     EventType = "RecoveryCancelled"
)

// Event はイベントログに追記される型付きイベントを表す。
// 種別ごとに使われるフィールドが異なり、未使用のフィールドはゼロ値のまま。
type Event struct {
	Seq               uint64
	ID                string
	Height            uint64
	Type              EventType
	Account           AccountID
	Trustee           AccountID
	LostAccount       AccountID
	RequestingAccount AccountID
	NewAccount        AccountID
	DID               *DID
	Threshold         uint8
	TotalTrustees     uint8
}
