// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"aura-identity-service/internal/domain"
	"aura-identity-service/internal/middleware"
	"aura-identity-service/internal/usecase"
	"aura-identity-service/pkg/httputil"
)

// maxBodyBytes はリクエストボディの上限。シェアとメタデータの base64 を収められる大きさ。
const maxBodyBytes = 16 << 10

// WeightHeader は呼び出しの宣言重みを返すヘッダー。
const WeightHeader = "X-Call-Weight"

var errInvalidBody = errors.New("invalid request body")

// Handler はアイデンティティとリカバリーのHTTPハンドラを提供する。
type Handler struct {
	service *usecase.IdentityService
	metrics *middleware.Metrics
}

// NewHandler は新しいHandlerを生成する。metrics は nil でもよい。
func NewHandler(service *usecase.IdentityService, metrics *middleware.Metrics) *Handler {
	return &Handler{service: service, metrics: metrics}
}

// decodeJSON はボディをJSONとして読み込む。未知のフィールドは拒否する。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errInvalidBody, err)
	}
	return nil
}

// accountParam はURLパラメータをアカウントIDとして検証する。
func accountParam(r *http.Request, name string) (domain.AccountID, error) {
	return domain.ParseAccountID(chi.URLParam(r, name))
}

// caller は RequireCaller を通過したリクエストの呼び出し元を返す。
func caller(r *http.Request) domain.AccountID {
	c, _ := middleware.CallerFrom(r.Context())
	return c
}

// finish は状態を変更する呼び出しの結果を監査ログとメトリクスに記録し、失敗時はエラーを返す。
// 成功時は true を返し、呼び出し側がレスポンスを書く。
func (h *Handler) finish(w http.ResponseWriter, r *http.Request, call domain.Call, subject domain.AccountID, err error) bool {
	w.Header().Set(WeightHeader, strconv.FormatUint(call.Weight(), 10))
	result := "success"
	if err != nil {
		result = errorCode(err)
	}
	middleware.WriteAuditLog(r.Context(), middleware.AuditLog{
		Call:    call,
		Caller:  caller(r),
		Subject: subject,
		Result:  result,
	})
	h.metrics.ObserveCall(call, result)
	if err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

func badRequest(w http.ResponseWriter, err error) {
	code := "INVALID_REQUEST"
	if domain.KindOf(err) == domain.KindInvalid {
		code = errorCode(err)
	}
	httputil.Error(w, http.StatusBadRequest, code, err.Error())
}

// Healthz は死活確認に応答する。
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
