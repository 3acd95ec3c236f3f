// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"

	"aura-identity-service/internal/domain"
)

// AuditLog は状態を変更する呼び出し1件分の監査記録。
type AuditLog struct {
	Call    domain.Call
	Caller  domain.AccountID
	Subject domain.AccountID // 操作対象のアカウント（紛失アカウント、トラスティなど）
	Result  string           // success または失敗時のエラーコード
}

// WriteAuditLog は監査ログを出力する。
func WriteAuditLog(ctx context.Context, entry AuditLog) {
	level := slog.LevelInfo
	if entry.Result != "success" {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "ledger call completed",
		"call", string(entry.Call),
		"call_version", domain.CallVersion,
		"weight", entry.Call.Weight(),
		"caller", string(entry.Caller),
		"subject", string(entry.Subject),
		"result", entry.Result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
