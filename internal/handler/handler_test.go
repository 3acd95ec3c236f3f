package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"aura-identity-service/internal/domain"
	"aura-identity-service/internal/middleware"
	"aura-identity-service/internal/repository"
	"aura-identity-service/internal/usecase"
)

type testEnv struct {
	handler *Handler
	router  http.Handler
	ledger  *repository.Ledger
	metrics *middleware.Metrics
}

func setupTestEnv(t *testing.T, limiter *middleware.RateLimiter) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	policy := domain.DefaultPolicy()
	policy.RecoveryDelay = 10
	service := usecase.NewIdentityService(repository.NewStore(db), nil, policy)
	metrics := middleware.NewMetrics()
	h := NewHandler(service, metrics)
	return &testEnv{
		handler: h,
		router:  NewRouter(h, metrics, limiter),
		ledger:  repository.NewLedger(db),
		metrics: metrics,
	}
}

func testKey(b byte) domain.PublicKey {
	var k domain.PublicKey
	for i := range k {
		k[i] = b
	}
	return k
}

// do はルーター経由でリクエストを送る。body が nil ならボディ無し。
func (e *testEnv) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if caller != "" {
		req.Header.Set(middleware.CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createIdentity(t *testing.T, account string, key byte) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/identities", account, CreateIdentityRequest{PublicKey: testKey(key).Hex()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create identity %s: want 201, got %d: %s", account, rec.Code, rec.Body.String())
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Code
}

func TestCreateIdentity_Success(t *testing.T) {
	env := setupTestEnv(t, nil)

	body := `{"public_key":"` + testKey(1).Hex() + `","metadata":"` + base64.StdEncoding.EncodeToString([]byte("profile")) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/identities", strings.NewReader(body))
	req = req.WithContext(middleware.WithCaller(req.Context(), "alice"))

	rec := httptest.NewRecorder()
	env.handler.CreateIdentity(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("want status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(WeightHeader); got != "10000" {
		t.Errorf("want weight 10000, got %q", got)
	}

	var resp IdentityResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Account != "alice" {
		t.Errorf("want account alice, got %s", resp.Account)
	}
	if resp.DID != domain.GenerateDID(testKey(1)).String() {
		t.Errorf("unexpected DID %s", resp.DID)
	}
	if resp.Metadata != base64.StdEncoding.EncodeToString([]byte("profile")) {
		t.Errorf("unexpected metadata %s", resp.Metadata)
	}
}

func TestCreateIdentity_Errors(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.createIdentity(t, "alice", 1)

	tests := []struct {
		name       string
		caller     string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"no caller", "", CreateIdentityRequest{PublicKey: testKey(2).Hex()}, http.StatusUnauthorized, "CALLER_REQUIRED"},
		{"invalid caller", "bad caller!", CreateIdentityRequest{PublicKey: testKey(2).Hex()}, http.StatusBadRequest, "INVALID_CALLER"},
		{"invalid key", "bob", CreateIdentityRequest{PublicKey: "abcd"}, http.StatusBadRequest, "INVALID_PUBLIC_KEY"},
		{"unknown field", "bob", map[string]string{"public_key": testKey(2).Hex(), "policy": "x"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"already exists", "alice", CreateIdentityRequest{PublicKey: testKey(3).Hex()}, http.StatusConflict, "IDENTITY_ALREADY_EXISTS"},
		{"did collision", "bob", CreateIdentityRequest{PublicKey: testKey(1).Hex()}, http.StatusConflict, "DID_COLLISION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/identities", tt.caller, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("want status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if code := decodeError(t, rec); code != tt.wantCode {
				t.Errorf("want code %s, got %s", tt.wantCode, code)
			}
		})
	}
}

func TestGetIdentity(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.createIdentity(t, "alice", 1)

	req := httptest.NewRequest(http.MethodGet, "/v1/identities/alice", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("account", "alice")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	env.handler.GetIdentity(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	var resp IdentityResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.PublicKey != testKey(1).Hex() {
		t.Errorf("unexpected public key %s", resp.PublicKey)
	}

	rec = env.do(t, http.MethodGet, "/v1/identities/nobody", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
}

func TestLookupByDID(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.createIdentity(t, "alice", 1)
	did := domain.GenerateDID(testKey(1))

	for _, form := range []string{did.String(), did.Hex()} {
		rec := env.do(t, http.MethodGet, "/v1/dids/"+form, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("lookup %s: want status 200, got %d", form, rec.Code)
		}
		var resp DIDResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Account != "alice" {
			t.Errorf("want account alice, got %s", resp.Account)
		}
	}

	rec := env.do(t, http.MethodGet, "/v1/dids/"+domain.GenerateDID(testKey(9)).String(), "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/dids/not-a-did", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func setupConfiguredEnv(t *testing.T) *testEnv {
	t.Helper()
	env := setupTestEnv(t, nil)
	ctx := context.Background()
	if err := env.ledger.Fund(ctx, "alice", 5*domain.UNIT); err != nil {
		t.Fatalf("Fund failed: %v", err)
	}
	for i, account := range []string{"alice", "bob", "charlie", "dave"} {
		env.createIdentity(t, account, byte(i+1))
	}
	rec := env.do(t, http.MethodPost, "/v1/recovery/config", "alice", ConfigureRecoveryRequest{
		Threshold: 2,
		Trustees:  []string{"bob", "charlie"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("configure recovery: want 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return env
}

func TestConfigureRecovery_InsufficientBalance(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.createIdentity(t, "alice", 1)

	rec := env.do(t, http.MethodPost, "/v1/recovery/config", "alice", ConfigureRecoveryRequest{
		Threshold: 2,
		Trustees:  []string{"bob", "charlie"},
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("want status 402, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "INSUFFICIENT_BALANCE" {
		t.Errorf("want INSUFFICIENT_BALANCE, got %s", code)
	}
}

func TestRecoveryFlow(t *testing.T) {
	env := setupConfiguredEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodGet, "/v1/recovery/config/alice", "", nil)
	var cfg RecoveryConfigResponse
	json.NewDecoder(rec.Body).Decode(&cfg)
	if cfg.Threshold != 2 || cfg.TotalTrustees != 2 || !cfg.Active {
		t.Errorf("unexpected config %+v", cfg)
	}

	rec = env.do(t, http.MethodGet, "/v1/balances/alice", "", nil)
	var balance BalanceResponse
	json.NewDecoder(rec.Body).Decode(&balance)
	if balance.Reserved != uint64(domain.UNIT) || balance.Free != uint64(4*domain.UNIT) {
		t.Errorf("unexpected balance %+v", balance)
	}

	rec = env.do(t, http.MethodPost, "/v1/recoveries/alice", "dave", InitiateRecoveryRequest{NewPublicKey: testKey(0xee).Hex()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("initiate: want 201, got %d: %s", rec.Code, rec.Body.String())
	}

	share := base64.StdEncoding.EncodeToString([]byte("share"))
	rec = env.do(t, http.MethodPost, "/v1/recoveries/alice/shares", "eve", SubmitShareRequest{Share: share})
	if rec.Code != http.StatusNotFound {
		t.Errorf("non-trustee submit: want 404, got %d", rec.Code)
	}
	for _, trustee := range []string{"bob", "charlie"} {
		rec = env.do(t, http.MethodPost, "/v1/recoveries/alice/shares", trustee, SubmitShareRequest{Share: share})
		if rec.Code != http.StatusOK {
			t.Fatalf("submit %s: want 200, got %d: %s", trustee, rec.Code, rec.Body.String())
		}
	}

	rec = env.do(t, http.MethodGet, "/v1/recoveries/alice", "", nil)
	var status RecoveryResponse
	json.NewDecoder(rec.Body).Decode(&status)
	if status.SubmittedShares != 2 || status.State != string(domain.RecoveryStatePending) {
		t.Errorf("unexpected status %+v", status)
	}

	rec = env.do(t, http.MethodPost, "/v1/recoveries/alice/execute", "eve", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("early execute: want 422, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "DELAY_PERIOD_NOT_PASSED" {
		t.Errorf("want DELAY_PERIOD_NOT_PASSED, got %s", code)
	}

	if _, err := env.ledger.AdvanceHeight(ctx, 10); err != nil {
		t.Fatalf("AdvanceHeight failed: %v", err)
	}
	rec = env.do(t, http.MethodPost, "/v1/recoveries/alice/execute", "eve", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("execute: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(WeightHeader); got != "60000" {
		t.Errorf("want weight 60000, got %q", got)
	}
	var identity IdentityResponse
	json.NewDecoder(rec.Body).Decode(&identity)
	if identity.PublicKey != testKey(0xee).Hex() {
		t.Errorf("want rotated key, got %s", identity.PublicKey)
	}

	rec = env.do(t, http.MethodGet, "/v1/recoveries/alice", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("want no active recovery after execute, got %d", rec.Code)
	}
}

func TestTrusteeManagement(t *testing.T) {
	env := setupConfiguredEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/recovery/trustees", "alice", TrusteeRequest{Trustee: "dave"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add trustee: want 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/v1/recovery/trustees", "alice", TrusteeRequest{Trustee: "dave"})
	if code := decodeError(t, rec); code != "ALREADY_TRUSTEE" {
		t.Errorf("want ALREADY_TRUSTEE, got %s", code)
	}
	rec = env.do(t, http.MethodPost, "/v1/recovery/trustees", "alice", TrusteeRequest{Trustee: "alice"})
	if code := decodeError(t, rec); code != "SELF_TRUSTEE" {
		t.Errorf("want SELF_TRUSTEE, got %s", code)
	}

	rec = env.do(t, http.MethodDelete, "/v1/recovery/trustees/bob", "alice", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove trustee: want 204, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodDelete, "/v1/recovery/trustees/bob", "alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("remove missing trustee: want 404, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/v1/recovery/trustees/charlie", "alice", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove trustee: want 204, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodDelete, "/v1/recovery/trustees/dave", "alice", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("remove last trustee: want 422, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "INVALID_THRESHOLD" {
		t.Errorf("want INVALID_THRESHOLD, got %s", code)
	}

	rec = env.do(t, http.MethodDelete, "/v1/recovery/config", "alice", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate: want 204, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/v1/balances/alice", "", nil)
	var balance BalanceResponse
	json.NewDecoder(rec.Body).Decode(&balance)
	if balance.Reserved != 0 || balance.Free != uint64(5*domain.UNIT) {
		t.Errorf("want deposit released, got %+v", balance)
	}
}

func TestGetTrusteeShare_Authorization(t *testing.T) {
	env := setupConfiguredEnv(t)

	tests := []struct {
		caller     string
		wantStatus int
	}{
		{"alice", http.StatusOK},
		{"bob", http.StatusOK},
		{"charlie", http.StatusForbidden},
		{"", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		rec := env.do(t, http.MethodGet, "/v1/recovery/shares/alice/bob", tt.caller, nil)
		if rec.Code != tt.wantStatus {
			t.Errorf("caller %q: want status %d, got %d", tt.caller, tt.wantStatus, rec.Code)
		}
	}
}

func TestCancelRecovery(t *testing.T) {
	env := setupConfiguredEnv(t)

	rec := env.do(t, http.MethodDelete, "/v1/recoveries/alice", "alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel without recovery: want 404, got %d", rec.Code)
	}

	env.do(t, http.MethodPost, "/v1/recoveries/alice", "dave", InitiateRecoveryRequest{NewPublicKey: testKey(0xee).Hex()})

	rec = env.do(t, http.MethodDelete, "/v1/recoveries/alice", "dave", CancelRecoveryRequest{Signature: "zz"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad signature encoding: want 400, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/v1/recoveries/alice", "dave", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("stranger cancel: want 403, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/v1/recoveries/alice", "alice", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("owner cancel: want 204, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListEvents(t *testing.T) {
	env := setupConfiguredEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/events?limit=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}
	var page EventPage
	json.NewDecoder(rec.Body).Decode(&page)
	if len(page.Events) != 2 {
		t.Fatalf("want 2 events, got %d", len(page.Events))
	}
	if page.Events[0].Type != string(domain.EventIdentityCreated) || page.Events[0].DID == "" {
		t.Errorf("unexpected first event %+v", page.Events[0])
	}

	var rest EventPage
	rec = env.do(t, http.MethodGet, "/v1/events?after="+strconv.FormatUint(page.Next, 10), "", nil)
	json.NewDecoder(rec.Body).Decode(&rest)
	// 作成4件、トラスティ追加2件、設定1件
	if len(rest.Events) != 5 {
		t.Fatalf("want 5 remaining events, got %d", len(rest.Events))
	}
	last := rest.Events[len(rest.Events)-1]
	if last.Type != string(domain.EventRecoveryConfigured) || last.Threshold != 2 {
		t.Errorf("unexpected last event %+v", last)
	}

	for _, q := range []string{"after=-1", "limit=0", "limit=abc"} {
		rec = env.do(t, http.MethodGet, "/v1/events?"+q, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: want status 400, got %d", q, rec.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	env := setupTestEnv(t, middleware.NewRateLimiter(0.001, 1))

	env.createIdentity(t, "alice", 1)
	rec := env.do(t, http.MethodPost, "/v1/identities", "alice", CreateIdentityRequest{PublicKey: testKey(2).Hex()})
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("want status 429, got %d", rec.Code)
	}
	// 参照系は制限しない
	rec = env.do(t, http.MethodGet, "/v1/identities/alice", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("want status 200, got %d", rec.Code)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.createIdentity(t, "alice", 1)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: want 200, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: want 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`aura_ledger_calls_total{call="create_identity",result="success"} 1`,
		`aura_http_requests_total{method="POST",route="/v1/identities",status="201"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
