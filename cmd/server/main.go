package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/warevault/rules/internal/logger"
	"github.com/warevault/rules/rules"
)

type config struct {
	DatabaseURL      string        `env:"DATABASE_URL"`
	Port             string        `env:"PORT" envDefault:"8080"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"INFO"`
	ServiceName      string        `env:"OTEL_SERVICE_NAME" envDefault:"warehouse-rules"`
	OTELEnabled      bool          `env:"OTEL_ENABLED" envDefault:"false"`
	RulesetPath      string        `env:"RULESET_PATH"`
	AuditBuffer      int           `env:"AUDIT_BUFFER" envDefault:"256"`
	StopOnFirstMatch bool          `env:"STOP_ON_FIRST_MATCH" envDefault:"false"`
	CacheTTL         time.Duration `env:"RULE_CACHE_TTL" envDefault:"30s"`
}

// Server wires the rule engine, its store and the HTTP routes.
type Server struct {
	db     *sql.DB
	store  rules.RuleStore
	engine *rules.Engine
	cache  rules.RulesCache
	audit  *rules.BufferedAuditSink
	log    *slog.Logger
	router *chi.Mux
}

func NewServer(ctx context.Context, cfg config, logg *slog.Logger) (*Server, error) {
	s := &Server{log: logg}

	// Without a database the server runs on the in-memory store, which is
	// enough for a ruleset-file deployment or local development.
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		s.db = db
		s.store = rules.NewPostgresRuleStore(db)
		s.audit = rules.NewBufferedAuditSink(rules.NewPostgresAuditSink(db), cfg.AuditBuffer)
	} else {
		logg.Warn("DATABASE_URL not set, using in-memory rule store")
		s.store = rules.NewInMemoryRuleStore()
		s.audit = rules.NewBufferedAuditSink(rules.SlogAuditSink{Logger: logg}, cfg.AuditBuffer)
	}

	if cfg.RulesetPath != "" {
		rs, err := rules.LoadRuleset(cfg.RulesetPath)
		if err != nil {
			return nil, fmt.Errorf("load ruleset: %w", err)
		}
		if err := rs.Apply(ctx, s.store); err != nil {
			return nil, fmt.Errorf("apply ruleset: %w", err)
		}
		logg.Info("ruleset loaded", "path", cfg.RulesetPath, "rules", len(rs.Rules))
	}

	s.cache = rules.NewInMemoryRulesCache(rules.CacheConfig{TTL: cfg.CacheTTL})
	s.engine = rules.NewEngine(s.store, warehouseCapabilities(logg),
		rules.WithAuditSink(s.audit),
		rules.WithLogger(logg),
		rules.WithCache(s.cache),
		rules.WithStopOnFirstMatch(cfg.StopOnFirstMatch),
	)

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Post("/api/v1/fire", s.handleFire)

	r.Route("/api/v1/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)

		r.Route("/{ruleId}", func(r chi.Router) {
			r.Get("/", s.handleGetRule)
			r.Put("/", s.handleUpdateRule)
			r.Post("/test", s.handleTestRule)
			r.Post("/activate", s.statusHandler(rules.StatusActive))
			r.Post("/deactivate", s.statusHandler(rules.StatusInactive))
			r.Post("/archive", s.statusHandler(rules.StatusArchived))
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	var req FireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Event == "" || req.EntityType == "" {
		respondError(w, http.StatusBadRequest, "event and entityType are required", nil)
		return
	}
	if req.Entity == nil {
		respondError(w, http.StatusBadRequest, "entity is required", nil)
		return
	}

	trace, err := s.engine.Fire(r.Context(),
		rules.EventType(req.Event), rules.EntityType(req.EntityType), rules.Entity(req.Entity))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "evaluation failed", err)
		return
	}

	respondJSON(w, http.StatusOK, trace)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule()
	if err := rules.ValidateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule", err)
		return
	}

	if err := s.store.Add(r.Context(), rule); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rules.ErrRuleExists) {
			status = http.StatusConflict
		}
		respondError(w, status, "failed to create rule", err)
		return
	}

	s.cache.Invalidate()
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": list})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.store.Get(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "failed to get rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule()
	rule.ID = chi.URLParam(r, "ruleId")
	if err := rules.ValidateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule", err)
		return
	}

	if err := s.store.Update(r.Context(), rule); err != nil {
		respondError(w, statusFor(err), "failed to update rule", err)
		return
	}

	s.cache.Invalidate()
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) statusHandler(target rules.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID := chi.URLParam(r, "ruleId")
		if err := s.store.SetStatus(r.Context(), ruleID, target); err != nil {
			respondError(w, statusFor(err), "failed to change rule status", err)
			return
		}
		s.cache.Invalidate()

		rule, err := s.store.Get(r.Context(), ruleID)
		if err != nil {
			respondError(w, statusFor(err), "failed to get rule", err)
			return
		}
		respondJSON(w, http.StatusOK, rule)
	}
}

func (s *Server) handleTestRule(w http.ResponseWriter, r *http.Request) {
	var req TestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Entity == nil {
		respondError(w, http.StatusBadRequest, "entity is required", nil)
		return
	}

	result, err := s.engine.Test(r.Context(), chi.URLParam(r, "ruleId"), rules.Entity(req.Entity))
	if err != nil {
		respondError(w, statusFor(err), "failed to test rule", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrRuleArchived), errors.Is(err, rules.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}

	ctx := context.Background()
	logg, logShutdown, err := logger.New(ctx, logger.Config{
		Level:       cfg.LogLevel,
		ServiceName: cfg.ServiceName,
		OTELEnabled: cfg.OTELEnabled,
	}, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	slog.SetDefault(logg)

	server, err := NewServer(ctx, cfg, logg)
	if err != nil {
		logg.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logg.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("server shutdown error", "error", err)
	}
	server.audit.Close()
	if err := logShutdown(shutdownCtx); err != nil {
		logg.Error("logger shutdown error", "error", err)
	}
}
