package domain

import "time"

// MigrationStatus はスキーママイグレーションの適用状態を表す。
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration はレジャースキーマの1つのマイグレーションを表す。
type Migration struct {
	Version   string     // 例: "002"
	Name      string     // 例: "create_identities"
	FilePath  string     // 埋め込みファイルシステム内のパス
	AppliedAt *time.Time // 未適用なら nil
	Status    MigrationStatus
}

// MarkApplied は適用済みとして記録する。
func (m *Migration) MarkApplied(at time.Time) {
	m.AppliedAt = &at
	m.Status = MigrationStatusApplied
}
