package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"aura-identity-service/internal/domain"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ := CallerFrom(r.Context())
		w.Write([]byte(caller))
	})
}

func TestCaller(t *testing.T) {
	h := Caller(okHandler())

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid", header: "alice", wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "absent", header: "", wantStatus: http.StatusOK, wantBody: ""},
		{name: "invalid", header: "bad account", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(CallerHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("want status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusOK && rec.Body.String() != tt.wantBody {
				t.Errorf("want body %q, got %q", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRequireCaller(t *testing.T) {
	h := Caller(RequireCaller(okHandler()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("want 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(CallerHeader, "alice")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("want 200, got %d", rec.Code)
	}
}

func TestRateLimiter_PerCaller(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	h := Caller(l.Middleware(okHandler()))

	post := func(caller string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(CallerHeader, caller)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := post("alice"); code != http.StatusOK {
			t.Fatalf("request %d: want 200, got %d", i, code)
		}
	}
	if code := post("alice"); code != http.StatusTooManyRequests {
		t.Errorf("want 429 after burst, got %d", code)
	}
	// 別の呼び出し元は独立したバケット
	if code := post("bob"); code != http.StatusOK {
		t.Errorf("want 200 for bob, got %d", code)
	}
	// GETは制限しない
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CallerHeader, "alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("want GET allowed, got %d", rec.Code)
	}

	now = now.Add(time.Second)
	if code := post("alice"); code != http.StatusOK {
		t.Errorf("want 200 after refill, got %d", code)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	var l *RateLimiter = NewRateLimiter(0, 0)
	if l != nil {
		t.Fatal("want nil limiter when disabled")
	}
	for i := 0; i < 100; i++ {
		if !l.Allow("alice") {
			t.Fatal("nil limiter must allow everything")
		}
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/v1/identities/{account}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/identities/alice", nil))
	m.ObserveCall(domain.CallCreateIdentity, "success")
	m.ObserveCall(domain.CallCreateIdentity, "ALREADY_EXISTS")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`aura_http_requests_total{method="GET",route="/v1/identities/{account}",status="404"} 1`,
		`aura_ledger_calls_total{call="create_identity",result="success"} 1`,
		`aura_ledger_calls_total{call="create_identity",result="ALREADY_EXISTS"} 1`,
		`aura_ledger_call_weight_total{call="create_identity"} 10000`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
