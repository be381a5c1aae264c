package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/archivist/internal/agent"
	"github.com/ent0n29/archivist/internal/config"
	"github.com/ent0n29/archivist/internal/ingest"
	"github.com/ent0n29/archivist/internal/observability"
	"github.com/ent0n29/archivist/internal/protocol"
	"github.com/ent0n29/archivist/internal/transcript"
	"github.com/ent0n29/archivist/internal/window"
)

type Server struct {
	cfg         config.Config
	sessions    *agent.Manager
	loop        *agent.Loop
	ingester    *ingest.Ingester
	transcripts transcript.Store
	metrics     *observability.Metrics
	stages      *observability.StageWindow
	upgrader    websocket.Upgrader
}

func New(
	cfg config.Config,
	sessions *agent.Manager,
	loop *agent.Loop,
	ingester *ingest.Ingester,
	transcripts transcript.Store,
	metrics *observability.Metrics,
	stages *observability.StageWindow,
) *Server {
	return &Server{
		cfg:         cfg,
		sessions:    sessions,
		loop:        loop,
		ingester:    ingester,
		transcripts: transcripts,
		metrics:     metrics,
		stages:      stages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/stages", s.handlePerfStages)

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Post("/v1/sessions/{id}/ask", s.handleAsk)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)
	r.Get("/v1/sessions/{id}/transcript", s.handleTranscript)
	r.Get("/v1/sessions/{id}/ws", s.handleSessionWS)
	r.Post("/v1/index", s.handleIndex)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type createSessionResponse struct {
	SessionID       string   `json:"session_id"`
	Status          string   `json:"status"`
	AllowedTools    []string `json:"allowed_tools,omitempty"`
	TokenBudget     int      `json:"token_budget"`
	InactivityTTLMS int64    `json:"inactivity_ttl_ms"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.Create()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	}

	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:       sess.ID,
		Status:          string(sess.Status),
		AllowedTools:    sess.AllowedTools,
		TokenBudget:     sess.Window.Budget(),
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

type askRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	sess, err := s.sessions.Acquire(id)
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrBusy):
			respondError(w, http.StatusConflict, "session_busy", err.Error())
		default:
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		}
		return
	}
	defer s.sessions.Release(id)

	res, err := s.loop.Ask(r.Context(), sess, req.Query)
	if err != nil {
		if errors.Is(err, window.ErrOverBudget) {
			respondError(w, http.StatusBadRequest, "over_budget", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "ask_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	}
	respondJSON(w, http.StatusOK, sess)
}

type transcriptResponse struct {
	SessionID string                  `json:"session_id"`
	Turns     []transcript.TurnRecord `json:"turns"`
}

// handleTranscript serves a session's archived reasoning turns in
// sequence order. Archived turns outlive the session itself, so an
// ended session remains auditable here.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "transcript archival not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	turns, err := s.transcripts.BySession(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "transcript_failed", err.Error())
		return
	}
	if turns == nil {
		turns = []transcript.TurnRecord{}
	}
	respondJSON(w, http.StatusOK, transcriptResponse{SessionID: id, Turns: turns})
}

type indexRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "document indexing not configured")
		return
	}

	var req indexRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "path is required")
		return
	}

	res, err := s.ingester.IngestPath(r.Context(), req.Path)
	if err != nil {
		respondError(w, http.StatusBadRequest, "index_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	if _, err := s.sessions.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.writeWS(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: id,
				Code:      "invalid_client_message",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}

		ask, ok := parsed.(protocol.ClientAsk)
		if !ok {
			continue
		}
		s.streamAsk(r, conn, id, ask.Query)
	}
}

// streamAsk runs one question and forwards every turn event followed by
// the terminal message. Writes stay on the read goroutine so the
// websocket never sees concurrent writers.
func (s *Server) streamAsk(r *http.Request, conn *websocket.Conn, id, query string) {
	sess, err := s.sessions.Acquire(id)
	if err != nil {
		code := "session_not_found"
		if errors.Is(err, agent.ErrBusy) {
			code = "session_busy"
		}
		s.writeWS(conn, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: id,
			Code:      code,
			Retryable: errors.Is(err, agent.ErrBusy),
			Detail:    err.Error(),
		})
		return
	}
	defer s.sessions.Release(id)

	for ev := range s.loop.AskStream(r.Context(), sess, query) {
		if ev.Turn != nil {
			s.writeWS(conn, protocol.TurnEvent{
				Type:      protocol.TypeTurnEvent,
				SessionID: id,
				TurnID:    ev.Turn.ID,
				Role:      string(ev.Turn.Role),
				Content:   ev.Turn.Content,
				TokenCost: ev.Turn.TokenCost,
				Seq:       ev.Turn.Seq,
			})
		}
		if ev.Result == nil {
			continue
		}
		if ev.Result.State == agent.StateAborted {
			s.writeWS(conn, protocol.Abort{
				Type:      protocol.TypeAbort,
				SessionID: id,
				Reason:    string(ev.Result.AbortReason),
				Partial:   ev.Result.Answer,
			})
			continue
		}
		s.writeWS(conn, protocol.FinalAnswer{
			Type:       protocol.TypeFinalAnswer,
			SessionID:  id,
			Answer:     ev.Result.Answer,
			State:      string(ev.Result.State),
			Iterations: ev.Result.Iterations,
		})
	}
}

func (s *Server) writeWS(conn *websocket.Conn, msg any) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteJSON(msg)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
