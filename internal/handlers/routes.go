package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/triptrack/triptrack-api/internal/auth"
	cfgpkg "github.com/triptrack/triptrack-api/internal/config"
)

func RegisterRoutes(r *chi.Mux, cfg *cfgpkg.Config, authHandler *auth.AuthHandler, tripHandler *TripHandler, registrationHandler *RegistrationHandler, apiKeyHandler *APIKeyHandler) {
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if cfg.EnableCORS {
		r.Use(corsMiddleware)
	}

	// Initialize Huma API
	config := huma.DefaultConfig("TripTrack API", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"cookieAuth": {
			Type: "apiKey",
			In:   "cookie",
			Name: auth.AuthCookieName,
		},
		"apiKeyAuth": {
			Type: "apiKey",
			In:   "header",
			Name: "X-API-KEY",
		},
	}
	api := humachi.New(r, config)

	secured := func(o *huma.Operation) {
		o.Security = []map[string][]string{{"cookieAuth": {}}, {"apiKeyAuth": {}}}
	}

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Auth routes
	huma.Post(api, "/auth/signup", authHandler.HandleSignup)
	huma.Post(api, "/auth/login", authHandler.HandleLogin)
	huma.Get(api, "/auth/verify/{token}", authHandler.HandleVerifyEmail)
	huma.Post(api, "/auth/resend-verification", authHandler.HandleResendVerification, secured)
	huma.Get(api, "/me", authHandler.HandleMe, secured)

	// Trip routes
	huma.Get(api, "/trips/active", tripHandler.HandleActiveTrip)
	huma.Post(api, "/register", registrationHandler.HandleRegister, secured)
	huma.Get(api, "/my-trips", registrationHandler.HandleMyTrips, secured)

	// Staff routes
	huma.Get(api, "/manage/dashboard", tripHandler.HandleDashboard, secured)
	huma.Get(api, "/manage/trips", tripHandler.HandleListTrips, secured)
	huma.Post(api, "/manage/trips", tripHandler.HandleCreateTrip, secured)
	huma.Put(api, "/manage/trips/{id}", tripHandler.HandleUpdateTrip, secured)
	huma.Delete(api, "/manage/trips/{id}", tripHandler.HandleDeleteTrip, secured)
	huma.Post(api, "/manage/trips/{id}/activate", tripHandler.HandleActivateTrip, secured)
	huma.Get(api, "/manage/registrations", registrationHandler.HandleListRegistrations, secured)
	huma.Patch(api, "/manage/registrations/{id}", registrationHandler.HandleUpdateRegistration, secured)
	huma.Delete(api, "/manage/registrations/{id}", registrationHandler.HandleDeleteRegistration, secured)
	huma.Get(api, "/manage/headcount", registrationHandler.HandleHeadcount, secured)
	huma.Post(api, "/manage/headcount", registrationHandler.HandleApplyHeadcount, secured)

	// API keys
	huma.Post(api, "/api-keys", apiKeyHandler.HandleCreate, secured)
	huma.Get(api, "/api-keys", apiKeyHandler.HandleList, secured)
	huma.Delete(api, "/api-keys/{id}", apiKeyHandler.HandleDelete, secured)

	// CSV export stays a plain chi route; huma would wrap the body in JSON.
	r.Group(func(r chi.Router) {
		r.Use(authHandler.AuthMiddleware)
		r.Get("/manage/registrations/export", registrationHandler.HandleExportCSV)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-KEY")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
