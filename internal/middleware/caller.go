package middleware

import (
	"context"
	"net/http"

	"aura-identity-service/internal/domain"
	"aura-identity-service/pkg/httputil"
)

// CallerHeader は呼び出し元アカウントを運ぶヘッダー。
// 署名検証は前段のゲートウェイが行い、このサービスはヘッダーを信頼する。
const CallerHeader = "X-Account-ID"

type callerKey struct{}

// WithCaller は呼び出し元アカウントを ctx に格納する。
func WithCaller(ctx context.Context, caller domain.AccountID) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom は ctx から呼び出し元アカウントを取り出す。
func CallerFrom(ctx context.Context) (domain.AccountID, bool) {
	caller, ok := ctx.Value(callerKey{}).(domain.AccountID)
	return caller, ok
}

// Caller は X-Account-ID ヘッダーを検証して ctx に格納する。
// ヘッダーが無いリクエストはそのまま通し、形式が不正な場合は400を返す。
func Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(CallerHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		caller, err := domain.ParseAccountID(raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_CALLER", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// RequireCaller は呼び出し元の無いリクエストを401で拒否する。
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CallerFrom(r.Context()); !ok {
			httputil.Error(w, http.StatusUnauthorized, "CALLER_REQUIRED", CallerHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
