package handler

import (
	"net/http"
	"strconv"

	"aura-identity-service/internal/domain"
	"aura-identity-service/pkg/httputil"
)

const defaultEventLimit = 100

// EventResponse はイベントのレスポンス形式。種別ごとに未使用のフィールドは省略する。
type EventResponse struct {
	Seq               uint64 `json:"seq"`
	ID                string `json:"id"`
	Height            uint64 `json:"height"`
	Type              string `json:"type"`
	Account           string `json:"account,omitempty"`
	Trustee           string `json:"trustee,omitempty"`
	LostAccount       string `json:"lost_account,omitempty"`
	RequestingAccount string `json:"requesting_account,omitempty"`
	NewAccount        string `json:"new_account,omitempty"`
	DID               string `json:"did,omitempty"`
	Threshold         uint8  `json:"threshold,omitempty"`
	TotalTrustees     uint8  `json:"total_trustees,omitempty"`
}

// EventPage はイベントフィードのページ。Next を after に渡すと続きを取得できる。
type EventPage struct {
	Events []EventResponse `json:"events"`
	Next   uint64          `json:"next"`
}

func toEventResponse(e *domain.Event) EventResponse {
	resp := EventResponse{
		Seq:               e.Seq,
		ID:                e.ID,
		Height:            e.Height,
		Type:              string(e.Type),
		Account:           string(e.Account),
		Trustee:           string(e.Trustee),
		LostAccount:       string(e.LostAccount),
		RequestingAccount: string(e.RequestingAccount),
		NewAccount:        string(e.NewAccount),
		Threshold:         e.Threshold,
		TotalTrustees:     e.TotalTrustees,
	}
	if e.DID != nil {
		resp.DID = e.DID.String()
	}
	return resp
}

// ListEvents は after より後のイベントを順に返す。
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if raw := q.Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "after must be a non-negative integer")
			return
		}
		after = v
	}
	limit := defaultEventLimit
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = v
	}

	events, err := h.service.ListEvents(r.Context(), after, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page := EventPage{Events: make([]EventResponse, 0, len(events)), Next: after}
	for _, e := range events {
		page.Events = append(page.Events, toEventResponse(e))
		page.Next = e.Seq
	}
	httputil.JSON(w, http.StatusOK, page)
}
