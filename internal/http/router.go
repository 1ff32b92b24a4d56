package http

import (
	"net/http"

	"anonuplift/internal/auth"
	"anonuplift/internal/config"
	"anonuplift/internal/http/handler"
	mw "anonuplift/internal/http/middleware"
	"anonuplift/internal/logging"
	"anonuplift/internal/owner"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// OwnerStore is what the routes need from owner.Store.
type OwnerStore interface {
	handler.UsernameStore
	handler.OwnerEnsurer
	handler.OwnerGetter
}

type Deps struct {
	Owners   OwnerStore
	Resolver handler.Resolver
	Messages handler.MessageService
	Jobs     handler.RepairEnqueuer
	JWT      *auth.JWT
	// Verifier is nil when sign-in is not configured.
	Verifier auth.IDTokenVerifier
	Throttle *mw.Throttle
	Log      logging.Logger
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()
	errs := handler.Errors{Log: d.Log}

	r.Use(chimw.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(mw.RequestLog(d.Log))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	throttled := func(next http.Handler) http.Handler { return next }
	if d.Throttle != nil {
		throttled = d.Throttle.Middleware(errs.Throttled)
	}
	requireAuth := auth.RequireAuth(d.JWT, errs.Write)
	rules := owner.UsernameRules{Min: cfg.UsernameMinLength, Max: cfg.UsernameMaxLength}

	ah := &handler.AuthHandler{
		Verifier: d.Verifier,
		Owners:   d.Owners,
		JWT:      d.JWT,
		Issuer:   cfg.OIDCIssuerURL,
		Errors:   errs,
	}
	r.With(throttled).Post("/auth/signin", ah.Signin)

	me := &handler.MeHandler{Owners: d.Owners, Errors: errs}
	r.With(requireAuth).Get("/me", me.Me)

	uh := &handler.UsernameHandler{Store: d.Owners, Resolver: d.Resolver, Rules: rules, Errors: errs}
	r.With(throttled).Get("/username/check", uh.Check)
	r.With(requireAuth).Post("/username", uh.Reserve)
	r.Get("/users/{username}", uh.Lookup)

	mh := &handler.MessageHandler{Svc: d.Messages, Errors: errs}
	r.Route("/messages", func(r chi.Router) {
		r.Post("/{username}", mh.Submit)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/", mh.List)
			r.Get("/stats", mh.Stats)
			r.Patch("/", mh.Update)
			r.Get("/fetch/{id}", mh.Fetch)
		})
	})

	adm := &handler.AdminHandler{Jobs: d.Jobs, Errors: errs}
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireAdmin(cfg.AdminToken, errs.Write))

		r.Post("/repairs/usernames/{username}", adm.RepairUsername)
		r.Post("/repairs/owners", adm.RepairOwners)
	})

	return r
}
