package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"aura-identity-service/internal/middleware"
)

// NewRouter はルーターを生成する。metrics と limiter は nil でもよい。
func NewRouter(h *Handler, metrics *middleware.Metrics, limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	if metrics != nil {
		r.Use(metrics.Instrument)
	}
	r.Use(middleware.Caller)

	r.Get("/healthz", h.Healthz)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(limiter.Middleware)

		// 参照系
		r.Get("/identities/{account}", h.GetIdentity)
		r.Get("/dids/{did}", h.LookupByDID)
		r.Get("/balances/{account}", h.GetBalance)
		r.Get("/recovery/config/{account}", h.GetRecoveryConfig)
		r.Get("/recoveries/{lost_account}", h.GetActiveRecovery)
		r.Get("/events", h.ListEvents)

		// 呼び出し元が必要なもの
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCaller)

			r.Post("/identities", h.CreateIdentity)
			r.Post("/recovery/config", h.ConfigureRecovery)
			r.Delete("/recovery/config", h.DeactivateRecovery)
			r.Post("/recovery/trustees", h.AddTrustee)
			r.Delete("/recovery/trustees/{trustee}", h.RemoveTrustee)
			r.Get("/recovery/shares/{owner}/{trustee}", h.GetTrusteeShare)
			r.Post("/recoveries/{lost_account}", h.InitiateRecovery)
			r.Post("/recoveries/{lost_account}/shares", h.SubmitTrusteeShare)
			r.Post("/recoveries/{lost_account}/execute", h.ExecuteRecovery)
			r.Delete("/recoveries/{lost_account}", h.CancelRecovery)
		})
	})

	return otelhttp.NewHandler(r, "aura-identity-service",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}
