// Package api provides HTTP handlers and the main API server logic for chatrelay.
//
// It exposes the web chat endpoint, the Twilio WhatsApp webhook, and the
// admin dashboard API (auth, settings, stats), and serves the static
// widget files. The API integrates with the relay, store, auth and
// scheduler modules.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mosaaedak/chatrelay/internal/auth"
	"github.com/mosaaedak/chatrelay/internal/carrier"
	"github.com/mosaaedak/chatrelay/internal/genai"
	"github.com/mosaaedak/chatrelay/internal/relay"
	"github.com/mosaaedak/chatrelay/internal/scheduler"
	"github.com/mosaaedak/chatrelay/internal/store"
)

// Default server configuration.
const (
	// DefaultAddr is the address the API server listens on.
	DefaultAddr = ":8080"
	// DefaultReadHeaderTimeout bounds slow-header clients.
	DefaultReadHeaderTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr      string
	StaticDir string
	JWTSecret string
	TokenTTL  time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithStaticDir sets the directory the widget and dashboard files are
// served from. Empty disables static serving.
func WithStaticDir(dir string) Option {
	return func(o *Opts) { o.StaticDir = dir }
}

// WithJWTSecret sets the admin token signing secret.
func WithJWTSecret(secret string) Option {
	return func(o *Opts) { o.JWTSecret = secret }
}

// WithTokenTTL overrides the admin token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TokenTTL = ttl }
}

// Server wires the HTTP surface to the relay and store.
type Server struct {
	st        store.Store
	relay     *relay.Relay
	tokens    *auth.TokenManager
	addr      string
	staticDir string
}

// NewServer creates an API server around an existing store and relay.
func NewServer(st store.Store, rl *relay.Relay, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		st:        st,
		relay:     rl,
		tokens:    auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL),
		addr:      cfg.Addr,
		staticDir: cfg.StaticDir,
	}
}

// Handler builds the full route table. Admin routes sit behind the
// bearer-token middleware; the chat endpoint and the carrier webhook are
// open, matching the widget and Twilio callers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/chat", s.chatHandler)
	mux.HandleFunc("/api/twilio/webhook", s.twilioWebhookHandler)

	mux.HandleFunc("/api/auth/login", s.loginHandler)
	mux.HandleFunc("/api/auth/me", s.requireAuth(s.meHandler))
	mux.HandleFunc("/api/auth/change-password", s.requireAuth(s.changePasswordHandler))
	mux.HandleFunc("/api/settings", s.requireAuth(s.settingsHandler))
	mux.HandleFunc("/api/stats", s.requireAuth(s.statsHandler))

	mux.HandleFunc("/health", s.healthHandler)

	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}

	return s.recoverPanics(mux)
}

// ListenAndServe runs the HTTP server until it fails.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	slog.Info("Server: chatrelay API listening", "addr", s.addr, "static_dir", s.staticDir)
	return srv.ListenAndServe()
}

// Run bootstraps the whole service: store selected by DSN detection,
// completion client, Twilio sender factory, relay, session sweep, and
// finally the HTTP server. It blocks until the server fails.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	var storeCfg store.Opts
	for _, opt := range storeOpts {
		opt(&storeCfg)
	}

	var st store.Store
	var err error
	switch store.DetectDSNType(storeCfg.DSN) {
	case "postgres":
		slog.Info("Run: using PostgreSQL store")
		st, err = store.NewPostgresStore(storeOpts...)
	default:
		slog.Info("Run: using SQLite store", "path", storeCfg.DSN)
		st, err = store.NewSQLiteStore(storeOpts...)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	completion := genai.NewClient(genaiOpts...)

	senders := func(accountSID, authToken string) carrier.Sender {
		return carrier.NewClient(accountSID, authToken)
	}
	rl := relay.NewRelay(st, completion, senders)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.StartSessionSweep(st); err != nil {
		return fmt.Errorf("failed to start session sweep: %w", err)
	}

	settings, err := st.GetSettings()
	if err != nil {
		return fmt.Errorf("failed to read settings at startup: %w", err)
	}
	slog.Info("Run: settings loaded",
		"has_api_key", settings.HasCompletionKey(),
		"has_carrier_credentials", settings.HasCarrierCredentials(),
		"model", settings.ModelName)

	server := NewServer(st, rl, apiOpts...)
	return server.ListenAndServe()
}
