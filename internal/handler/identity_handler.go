package handler

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aura-identity-service/internal/domain"
	"aura-identity-service/pkg/httputil"
)

// CreateIdentityRequest はアイデンティティ作成のリクエスト形式。
type CreateIdentityRequest struct {
	PublicKey string `json:"public_key"`         // 16進数32バイト
	Metadata  string `json:"metadata,omitempty"` // base64
}

// IdentityResponse はアイデンティティのレスポンス形式。
type IdentityResponse struct {
	Account   string `json:"account"`
	DID       string `json:"did"`
	DIDHex    string `json:"did_hex"`
	PublicKey string `json:"public_key"`
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt uint64 `json:"created_at"`
}

func toIdentityResponse(record *domain.IdentityRecord) IdentityResponse {
	resp := IdentityResponse{
		Account:   string(record.Account),
		DID:       record.DID.String(),
		DIDHex:    record.DID.Hex(),
		PublicKey: record.PublicKey.Hex(),
		CreatedAt: record.CreatedAt,
	}
	if len(record.Metadata) > 0 {
		resp.Metadata = base64.StdEncoding.EncodeToString(record.Metadata)
	}
	return resp
}

// DIDResponse はDID逆引きのレスポンス形式。
type DIDResponse struct {
	DID     string `json:"did"`
	Account string `json:"account"`
}

// BalanceResponse は残高のレスポンス形式。
type BalanceResponse struct {
	Account  string `json:"account"`
	Free     uint64 `json:"free"`
	Reserved uint64 `json:"reserved"`
}

// CreateIdentity は呼び出し元のアイデンティティを登録する。
func (h *Handler) CreateIdentity(w http.ResponseWriter, r *http.Request) {
	var req CreateIdentityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	publicKey, err := domain.ParsePublicKey(req.PublicKey)
	if err != nil {
		badRequest(w, err)
		return
	}
	metadata, err := base64.StdEncoding.DecodeString(req.Metadata)
	if err != nil {
		badRequest(w, fmt.Errorf("%w: metadata must be base64", errInvalidBody))
		return
	}

	account := caller(r)
	_, err = h.service.CreateIdentity(r.Context(), account, publicKey, metadata)
	if !h.finish(w, r, domain.CallCreateIdentity, account, err) {
		return
	}

	record, err := h.service.GetIdentity(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, toIdentityResponse(record))
}

// GetIdentity は指定アカウントのアイデンティティを返す。
func (h *Handler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "account")
	if err != nil {
		badRequest(w, err)
		return
	}
	record, err := h.service.GetIdentity(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toIdentityResponse(record))
}

// LookupByDID はDIDからアカウントを逆引きする。
func (h *Handler) LookupByDID(w http.ResponseWriter, r *http.Request) {
	did, err := domain.ParseDID(chi.URLParam(r, "did"))
	if err != nil {
		badRequest(w, err)
		return
	}
	account, err := h.service.LookupByDID(r.Context(), did)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, DIDResponse{DID: did.String(), Account: string(account)})
}

// GetBalance は指定アカウントの残高を返す。
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "account")
	if err != nil {
		badRequest(w, err)
		return
	}
	balance, err := h.service.GetBalance(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, BalanceResponse{
		Account:  string(balance.Account),
		Free:     uint64(balance.Free),
		Reserved: uint64(balance.Reserved),
	})
}
