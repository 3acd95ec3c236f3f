package handler

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	"aura-identity-service/internal/domain"
	"aura-identity-service/internal/usecase"
	"aura-identity-service/pkg/httputil"
)

// ConfigureRecoveryRequest はリカバリー設定のリクエスト形式。
type ConfigureRecoveryRequest struct {
	Threshold int      `json:"threshold"`
	Trustees  []string `json:"trustees"`
}

// TrusteeRequest はトラスティ追加のリクエスト形式。
type TrusteeRequest struct {
	Trustee string `json:"trustee"`
}

// InitiateRecoveryRequest はリカバリー開始のリクエスト形式。
type InitiateRecoveryRequest struct {
	NewPublicKey string `json:"new_public_key"`
}

// SubmitShareRequest はシェア提出のリクエスト形式。
type SubmitShareRequest struct {
	Share string `json:"share"` // base64
}

// CancelRecoveryRequest はリカバリー取消のリクエスト形式。
// 旧鍵による取消の場合だけ Signature を指定する。
type CancelRecoveryRequest struct {
	Signature string `json:"signature,omitempty"` // 16進数
}

// RecoveryConfigResponse はリカバリー設定のレスポンス形式。
type RecoveryConfigResponse struct {
	Owner         string `json:"owner"`
	Threshold     uint8  `json:"threshold"`
	TotalTrustees uint8  `json:"total_trustees"`
	DelayPeriod   uint64 `json:"delay_period"`
	Active        bool   `json:"active"`
	Deposit       uint64 `json:"deposit"`
}

func toRecoveryConfigResponse(cfg *domain.RecoveryConfig) RecoveryConfigResponse {
	return RecoveryConfigResponse{
		Owner:         string(cfg.Owner),
		Threshold:     cfg.Threshold,
		TotalTrustees: cfg.TotalTrustees,
		DelayPeriod:   cfg.DelayPeriod,
		Active:        cfg.Active,
		Deposit:       uint64(cfg.Deposit),
	}
}

// TrusteeShareResponse はトラスティ記録のレスポンス形式。
type TrusteeShareResponse struct {
	Owner     string `json:"owner"`
	Trustee   string `json:"trustee"`
	Share     string `json:"share,omitempty"`
	Confirmed bool   `json:"confirmed"`
}

// RecoveryResponse はリカバリー要求のレスポンス形式。
type RecoveryResponse struct {
	LostAccount       string `json:"lost_account"`
	RequestingAccount string `json:"requesting_account"`
	NewPublicKey      string `json:"new_public_key"`
	SubmittedShares   uint8  `json:"submitted_shares"`
	ExecuteAt         uint64 `json:"execute_at"`
	Completed         bool   `json:"completed"`
	Threshold         uint8  `json:"threshold,omitempty"`
	Height            uint64 `json:"height,omitempty"`
	State             string `json:"state,omitempty"`
}

func toRecoveryResponse(req *domain.RecoveryRequest) RecoveryResponse {
	return RecoveryResponse{
		LostAccount:       string(req.LostAccount),
		RequestingAccount: string(req.RequestingAccount),
		NewPublicKey:      req.NewPublicKey.Hex(),
		SubmittedShares:   req.SubmittedShares,
		ExecuteAt:         req.ExecuteAt,
		Completed:         req.Completed,
	}
}

// ConfigureRecovery は呼び出し元のリカバリーを設定する。
func (h *Handler) ConfigureRecovery(w http.ResponseWriter, r *http.Request) {
	var req ConfigureRecoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	trustees := make([]domain.AccountID, 0, len(req.Trustees))
	for _, raw := range req.Trustees {
		trustee, err := domain.ParseAccountID(raw)
		if err != nil {
			badRequest(w, err)
			return
		}
		trustees = append(trustees, trustee)
	}

	owner := caller(r)
	cfg, err := h.service.ConfigureRecovery(r.Context(), owner, req.Threshold, trustees)
	if !h.finish(w, r, domain.CallConfigureRecovery, owner, err) {
		return
	}
	httputil.JSON(w, http.StatusCreated, toRecoveryConfigResponse(cfg))
}

// DeactivateRecovery は呼び出し元のリカバリー設定を無効化し、保証金を返す。
func (h *Handler) DeactivateRecovery(w http.ResponseWriter, r *http.Request) {
	owner := caller(r)
	err := h.service.DeactivateRecovery(r.Context(), owner)
	if !h.finish(w, r, domain.CallDeactivateRecovery, owner, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRecoveryConfig は指定アカウントのリカバリー設定を返す。
func (h *Handler) GetRecoveryConfig(w http.ResponseWriter, r *http.Request) {
	owner, err := accountParam(r, "account")
	if err != nil {
		badRequest(w, err)
		return
	}
	cfg, err := h.service.GetRecoveryConfig(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toRecoveryConfigResponse(cfg))
}

// AddTrustee は呼び出し元の設定にトラスティを追加する。
func (h *Handler) AddTrustee(w http.ResponseWriter, r *http.Request) {
	var req TrusteeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	trustee, err := domain.ParseAccountID(req.Trustee)
	if err != nil {
		badRequest(w, err)
		return
	}

	owner := caller(r)
	err = h.service.AddTrustee(r.Context(), owner, trustee)
	if !h.finish(w, r, domain.CallAddTrustee, owner, err) {
		return
	}
	httputil.JSON(w, http.StatusCreated, TrusteeShareResponse{Owner: string(owner), Trustee: string(trustee)})
}

// RemoveTrustee は呼び出し元の設定からトラスティを外す。
func (h *Handler) RemoveTrustee(w http.ResponseWriter, r *http.Request) {
	trustee, err := accountParam(r, "trustee")
	if err != nil {
		badRequest(w, err)
		return
	}

	owner := caller(r)
	err = h.service.RemoveTrustee(r.Context(), owner, trustee)
	if !h.finish(w, r, domain.CallRemoveTrustee, owner, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTrusteeShare はトラスティ記録を返す。所有者本人とそのトラスティだけが参照できる。
func (h *Handler) GetTrusteeShare(w http.ResponseWriter, r *http.Request) {
	owner, err := accountParam(r, "owner")
	if err != nil {
		badRequest(w, err)
		return
	}
	trustee, err := accountParam(r, "trustee")
	if err != nil {
		badRequest(w, err)
		return
	}
	if c := caller(r); c != owner && c != trustee {
		writeError(w, r, domain.ErrNotAuthorized)
		return
	}

	share, err := h.service.GetTrusteeShare(r.Context(), owner, trustee)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := TrusteeShareResponse{
		Owner:     string(share.Owner),
		Trustee:   string(share.Trustee),
		Confirmed: share.Confirmed,
	}
	if len(share.Share) > 0 {
		resp.Share = base64.StdEncoding.EncodeToString(share.Share)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// InitiateRecovery は紛失アカウントのリカバリーを開始する。
func (h *Handler) InitiateRecovery(w http.ResponseWriter, r *http.Request) {
	lost, err := accountParam(r, "lost_account")
	if err != nil {
		badRequest(w, err)
		return
	}
	var req InitiateRecoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	newKey, err := domain.ParsePublicKey(req.NewPublicKey)
	if err != nil {
		badRequest(w, err)
		return
	}

	recovery, err := h.service.InitiateRecovery(r.Context(), caller(r), lost, newKey)
	if !h.finish(w, r, domain.CallInitiateRecovery, lost, err) {
		return
	}
	httputil.JSON(w, http.StatusCreated, toRecoveryResponse(recovery))
}

// GetActiveRecovery は進行中のリカバリー要求と判定状態を返す。
func (h *Handler) GetActiveRecovery(w http.ResponseWriter, r *http.Request) {
	lost, err := accountParam(r, "lost_account")
	if err != nil {
		badRequest(w, err)
		return
	}
	status, err := h.service.GetActiveRecovery(r.Context(), lost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toStatusResponse(status))
}

func toStatusResponse(status *usecase.RecoveryStatus) RecoveryResponse {
	resp := toRecoveryResponse(status.Request)
	resp.Threshold = status.Threshold
	resp.Height = status.Height
	resp.State = string(status.State)
	return resp
}

// SubmitTrusteeShare は呼び出し元トラスティのシェアを提出する。
func (h *Handler) SubmitTrusteeShare(w http.ResponseWriter, r *http.Request) {
	lost, err := accountParam(r, "lost_account")
	if err != nil {
		badRequest(w, err)
		return
	}
	var req SubmitShareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	payload, err := base64.StdEncoding.DecodeString(req.Share)
	if err != nil {
		badRequest(w, fmt.Errorf("%w: share must be base64", errInvalidBody))
		return
	}

	recovery, err := h.service.SubmitTrusteeShare(r.Context(), caller(r), lost, payload)
	if !h.finish(w, r, domain.CallSubmitTrusteeShare, lost, err) {
		return
	}
	httputil.JSON(w, http.StatusOK, toRecoveryResponse(recovery))
}

// ExecuteRecovery は条件を満たしたリカバリーを実行する。呼び出し元は誰でもよい。
func (h *Handler) ExecuteRecovery(w http.ResponseWriter, r *http.Request) {
	lost, err := accountParam(r, "lost_account")
	if err != nil {
		badRequest(w, err)
		return
	}

	record, err := h.service.ExecuteRecovery(r.Context(), caller(r), lost)
	if !h.finish(w, r, domain.CallExecuteRecovery, lost, err) {
		return
	}
	httputil.JSON(w, http.StatusOK, toIdentityResponse(record))
}

// CancelRecovery は進行中のリカバリーを取り消す。ボディは省略できる。
func (h *Handler) CancelRecovery(w http.ResponseWriter, r *http.Request) {
	lost, err := accountParam(r, "lost_account")
	if err != nil {
		badRequest(w, err)
		return
	}
	var req CancelRecoveryRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, err)
		return
	}
	var signature []byte
	if req.Signature != "" {
		signature, err = hex.DecodeString(req.Signature)
		if err != nil {
			badRequest(w, fmt.Errorf("%w: signature must be hex", errInvalidBody))
			return
		}
	}

	err = h.service.CancelRecovery(r.Context(), caller(r), lost, signature)
	if !h.finish(w, r, domain.CallCancelRecovery, lost, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
