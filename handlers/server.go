package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/atomic"

	"tabguard.app/cloud/internal/config"
	"tabguard.app/cloud/internal/download"
	"tabguard.app/cloud/internal/email"
	"tabguard.app/cloud/internal/license"
	"tabguard.app/cloud/internal/payment"
	"tabguard.app/cloud/internal/ratelimit"
	"tabguard.app/cloud/internal/token"
	"tabguard.app/cloud/storage"
)

// Version is stamped from the VERSION file at startup.
var Version = "dev"

type Server struct {
	Router   chi.Router
	Storage  storage.Store
	Licenses *license.Registry
	Tokens   *token.Issuer
	Payments payment.Verifier
	Checkout payment.CheckoutStarter
	Signer   download.Signer
	Email    email.Sender
	Config   *config.Config

	verifyCalls  atomic.Int64
	tokensIssued atomic.Int64
	downloads    atomic.Int64
}

type Options struct {
	Storage  storage.Store
	Payments payment.Verifier
	Checkout payment.CheckoutStarter
	Signer   download.Signer
	Email    email.Sender
	Config   *config.Config
}

func NewHTTPServer(opts Options) *Server {
	s := &Server{
		Storage:  opts.Storage,
		Licenses: license.NewRegistry(opts.Storage),
		Tokens:   token.NewIssuer(opts.Storage),
		Payments: opts.Payments,
		Checkout: opts.Checkout,
		Signer:   opts.Signer,
		Email:    opts.Email,
		Config:   opts.Config,
	}

	r := chi.NewRouter()

	// The extension calls verify from its own origin.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	limiter := ratelimit.New(60, time.Minute)

	r.Get("/health", s.Health)
	r.Get("/thanks", s.Thanks)
	r.Post("/api/v1/checkout", s.CreateCheckout)
	r.Post("/api/v1/token", s.IssueToken)
	r.Get("/api/v1/download", s.Download)
	r.With(ratelimit.Middleware(limiter)).Post("/api/v1/verify", s.VerifyLicense)
	r.Post("/api/v1/webhooks/stripe", s.Stripe)

	s.Router = r
	return s
}

type HealthResponse struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
	VerifyCalls  int64     `json:"verify_calls"`
	TokensIssued int64     `json:"tokens_issued"`
	Downloads    int64     `json:"downloads"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "healthy",
		Version:      Version,
		Timestamp:    time.Now(),
		VerifyCalls:  s.verifyCalls.Load(),
		TokensIssued: s.tokensIssued.Load(),
		Downloads:    s.downloads.Load(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
