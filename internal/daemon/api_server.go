package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"docflow/internal/config"
	"docflow/internal/journal"
	"docflow/internal/logging"
	"docflow/internal/services"
	"docflow/internal/transaction"
	"docflow/internal/workflow"
)

const (
	defaultListLimit = 100
	maxRequestBody   = 1 << 20
)

// SubmitRequest is the body accepted by POST /api/transactions.
type SubmitRequest struct {
	Type          string         `json:"type"`
	Priority      string         `json:"priority,omitempty"`
	Payload       map[string]any `json:"domain_payload"`
	Context       map[string]any `json:"processing_context,omitempty"`
	ParentID      string         `json:"parent_id,omitempty"`
	DependencyIDs []string       `json:"dependency_ids,omitempty"`
}

// SubmitResponse reports the id assigned to an admitted transaction.
type SubmitResponse struct {
	ID string `json:"id"`
}

// TransactionResponse is the body of GET /api/transactions/{id}.
type TransactionResponse struct {
	Transaction *transaction.Transaction  `json:"transaction"`
	Transitions []journal.StageTransition `json:"transitions,omitempty"`
}

// ListResponse is the body of GET /api/transactions.
type ListResponse struct {
	Transactions []journal.Summary `json:"transactions"`
}

// CancelRequest is the optional body of POST /api/transactions/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// NotificationResponse reports the outcome of a test notification.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{bind: bind, logger: logger, daemon: d}
	srv.handler = srv.router(cfg.Paths.APIToken)
	return srv
}

func (s *apiServer) router(token string) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", s.daemon.metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", authMiddleware(token, s.handleStatus)).Methods(http.MethodGet)
	api.HandleFunc("/transactions", authMiddleware(token, s.handleList)).Methods(http.MethodGet)
	api.HandleFunc("/transactions", authMiddleware(token, s.handleSubmit)).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", authMiddleware(token, s.handleDescribe)).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}/cancel", authMiddleware(token, s.handleCancel)).Methods(http.MethodPost)
	api.HandleFunc("/notifications/test", authMiddleware(token, s.handleTestNotification)).Methods(http.MethodPost)
	return router
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	// A shut down http.Server cannot serve again, so every start gets a fresh one.
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.listener = listener
	s.server = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.log(), "api server error", "api_server_failed", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.server = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	withPreflight := parseBool(r.URL.Query().Get("preflight"))
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context(), withPreflight))
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := defaultListLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	var statuses []transaction.Status
	for _, value := range query["status"] {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				statuses = append(statuses, transaction.Status(strings.ToLower(trimmed)))
			}
		}
	}

	items, err := s.daemon.List(r.Context(), limit, statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ListResponse{Transactions: items})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	sub := workflow.Submission{
		Type:          transaction.Type(strings.ToLower(strings.TrimSpace(req.Type))),
		Payload:       req.Payload,
		Context:       req.Context,
		ParentID:      req.ParentID,
		DependencyIDs: req.DependencyIDs,
	}
	if raw := strings.TrimSpace(req.Priority); raw != "" {
		priority, ok := transaction.ParsePriority(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid priority %q", raw))
			return
		}
		sub.Priority = priority
	}

	id, err := s.daemon.Submit(r.Context(), sub)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, SubmitResponse{ID: id})
	case errors.Is(err, workflow.ErrAdmissionRejected):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) handleDescribe(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tx, transitions, err := s.daemon.Describe(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, TransactionResponse{Transaction: tx, Transitions: transitions})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	err := s.daemon.Cancel(r.Context(), mux.Vars(r)["id"], req.Reason)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, services.ErrUnknownTransaction):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("%s: %v", message, err))
		return
	}
	s.writeJSON(w, http.StatusOK, NotificationResponse{Sent: sent, Message: message})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logging.NewNop()
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
