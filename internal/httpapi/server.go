// Package httpapi exposes the control plane's bot runtime and news surfaces over a thin
// gorilla/mux-routed HTTP API: POST /bots/{id}/start|pause|stop|run and the read-only news
// endpoints. It deliberately carries none of the scan/explain dashboard surface the teacher's
// HTTP server serves — this is a control surface, not a read API.
//
// Grounded directly on the teacher's internal/interfaces/http/server.go: mux.Router with a
// middleware chain (request id, logging, timeout, JSON content type) and a captured-status
// responseWrapper, adapted to zerolog structured logging in place of log.Printf.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/sawpanic/controlplane/internal/botruntime"
	"github.com/sawpanic/controlplane/internal/newsrisk"
	"github.com/sawpanic/controlplane/internal/notify"
)

type requestIDKey struct{}

// Server is the control plane's HTTP control surface.
type Server struct {
	router     *mux.Router
	server     *http.Server
	log        zerolog.Logger
	store      botruntime.Store
	queue      botruntime.Queue
	license    botruntime.LicenseChecker
	calendar   *newsrisk.Refresher
	notifier   notify.Notifier
	now        func() time.Time
	reqTimeout time.Duration
}

// Config configures the control surface's listen address and timeouts.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	ReqTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		ReqTimeout:   5 * time.Second,
	}
}

// Deps bundles the collaborators the control surface dispatches into.
type Deps struct {
	Store    botruntime.Store
	Queue    botruntime.Queue
	License  botruntime.LicenseChecker
	Calendar *newsrisk.Refresher
	Notifier notify.Notifier
	Log      zerolog.Logger
}

func NewServer(cfg Config, deps Deps) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		log:        deps.Log.With().Str("sub", "httpapi").Logger(),
		store:      deps.Store,
		queue:      deps.Queue,
		license:    deps.License,
		calendar:   deps.Calendar,
		notifier:   deps.Notifier,
		now:        time.Now,
		reqTimeout: cfg.ReqTimeout,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.jsonContentTypeMiddleware)

	s.router.HandleFunc("/bots/{id}/start", s.handleStart).Methods(http.MethodPost)
	s.router.HandleFunc("/bots/{id}/pause", s.handlePause).Methods(http.MethodPost)
	s.router.HandleFunc("/bots/{id}/stop", s.handleStop).Methods(http.MethodPost)
	s.router.HandleFunc("/bots/{id}/run", s.handleRun).Methods(http.MethodPost)
	s.router.HandleFunc("/news/events", s.handleNewsEvents).Methods(http.MethodGet)
	s.router.HandleFunc("/news/blackout", s.handleNewsBlackout).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

func (s *Server) ListenAndServe() error { return s.server.ListenAndServe() }

func (s *Server) Shutdown(ctx context.Context) error { return s.server.Shutdown(ctx) }

// --- bot runtime handlers ---

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) { s.handleTransition(w, r, botruntime.StatusRunning, notify.EventBotStarted) }
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) { s.handleTransition(w, r, botruntime.StatusPaused, notify.EventBotPaused) }
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request)  { s.handleTransition(w, r, botruntime.StatusStopped, notify.EventBotStopped) }

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, target botruntime.Status, evt notify.EventKind) {
	ctx := r.Context()
	botID := mux.Vars(r)["id"]

	cur, err := s.store.Get(ctx, botID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	if cur == nil {
		cur = &botruntime.Runtime{BotID: botID, Status: botruntime.StatusStopped}
	}

	next, err := botruntime.Transition(ctx, *cur, target, "", s.license, s.now())
	if err != nil {
		s.writeError(w, http.StatusConflict, "invalid_transition", err)
		return
	}
	if err := s.store.Upsert(ctx, next); err != nil {
		s.writeError(w, http.StatusInternalServerError, "persist_failed", err)
		return
	}

	if target == botruntime.StatusRunning {
		if _, err := botruntime.Enqueue(ctx, s.queue, botID, nil); err != nil {
			s.writeError(w, http.StatusInternalServerError, "enqueue_failed", err)
			return
		}
	}

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, notify.BotEvent{BotID: botID, Kind: evt, Timestamp: s.now()})
	}

	s.writeJSON(w, http.StatusOK, next)
}

// handleRun re-enqueues an immediate tick for a running bot without changing its FSM state.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	botID := mux.Vars(r)["id"]

	cur, err := s.store.Get(ctx, botID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	if cur == nil || cur.Status != botruntime.StatusRunning {
		s.writeError(w, http.StatusConflict, "bot_not_running", fmt.Errorf("bot %s is not running", botID))
		return
	}

	result, err := botruntime.Enqueue(ctx, s.queue, botID, nil)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, result)
}

// --- news handlers ---

func (s *Server) handleNewsEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		s.writeError(w, http.StatusBadRequest, "missing_currency", fmt.Errorf("currency query param required"))
		return
	}
	day := s.now()
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "bad_day", err)
			return
		}
		day = parsed
	}
	events, err := s.calendar.DayBucket(ctx, currency, day)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "day_bucket_failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleNewsBlackout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		s.writeError(w, http.StatusBadRequest, "missing_currency", fmt.Errorf("currency query param required"))
		return
	}
	impactMin := queryInt(r, "impactMin", 2)
	preMinutes := queryInt(r, "preMinutes", 30)
	postMinutes := queryInt(r, "postMinutes", 30)

	now := s.now()
	events, err := s.calendar.DayBucket(ctx, currency, now)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "day_bucket_failed", err)
		return
	}
	result := newsrisk.EvaluateNewsBlackout(now, currency, events, newsrisk.BlackoutConfig{
		ImpactMin: impactMin, PreMinutes: preMinutes, PostMinutes: postMinutes,
	})
	s.writeJSON(w, http.StatusOK, result)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
}

// --- response helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, code string, err error) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: code, Message: err.Error()})
}

// --- middleware ---

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.log.Info().
			Str("request_id", fmt.Sprintf("%v", r.Context().Value(requestIDKey{}))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.reqTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
