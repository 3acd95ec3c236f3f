package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"aura-identity-service/internal/domain"
	"aura-identity-service/pkg/httputil"
)

// errorCodes はドメインエラーと安定したエラーコードの対応。
var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrAlreadyExists, "IDENTITY_ALREADY_EXISTS"},
	{domain.ErrAlreadyConfigured, "RECOVERY_ALREADY_CONFIGURED"},
	{domain.ErrRecoveryAlreadyActive, "RECOVERY_ALREADY_ACTIVE"},
	{domain.ErrAlreadyTrustee, "ALREADY_TRUSTEE"},
	{domain.ErrAlreadyConfirmed, "SHARE_ALREADY_CONFIRMED"},
	{domain.ErrDuplicateTrustee, "DUPLICATE_TRUSTEE"},
	{domain.ErrDIDCollision, "DID_COLLISION"},
	{domain.ErrIdentityNotFound, "IDENTITY_NOT_FOUND"},
	{domain.ErrRecoveryNotConfigured, "RECOVERY_NOT_CONFIGURED"},
	{domain.ErrTrusteeNotFound, "TRUSTEE_NOT_FOUND"},
	{domain.ErrNoActiveRecovery, "NO_ACTIVE_RECOVERY"},
	{domain.ErrInvalidThreshold, "INVALID_THRESHOLD"},
	{domain.ErrTooManyTrustees, "TOO_MANY_TRUSTEES"},
	{domain.ErrSelfTrustee, "SELF_TRUSTEE"},
	{domain.ErrInsufficientShares, "INSUFFICIENT_SHARES"},
	{domain.ErrDelayPeriodNotPassed, "DELAY_PERIOD_NOT_PASSED"},
	{domain.ErrMetadataTooLarge, "METADATA_TOO_LARGE"},
	{domain.ErrShareTooLarge, "SHARE_TOO_LARGE"},
	{domain.ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{domain.ErrNotAuthorized, "NOT_AUTHORIZED"},
	{domain.ErrInvalidPublicKey, "INVALID_PUBLIC_KEY"},
	{domain.ErrInvalidDID, "INVALID_DID"},
	{domain.ErrInvalidAccountID, "INVALID_ACCOUNT_ID"},
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindConflict:      http.StatusConflict,
	domain.KindNotFound:      http.StatusNotFound,
	domain.KindPolicy:        http.StatusUnprocessableEntity,
	domain.KindResource:      http.StatusPaymentRequired,
	domain.KindAuthorization: http.StatusForbidden,
	domain.KindInvalid:       http.StatusBadRequest,
}

// errorCode はエラーに対応するコードを返す。ドメインエラーでなければ INTERNAL_ERROR。
func errorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL_ERROR"
}

// writeError はエラーの分類に応じたステータスでエラーレスポンスを返す。
// 内部エラーの詳細はログにだけ残す。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, ok := kindStatus[domain.KindOf(err)]
	if !ok {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	httputil.Error(w, status, errorCode(err), err.Error())
}
