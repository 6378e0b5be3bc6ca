// Package api serves the ledger over HTTP with gorilla/mux.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/apperr"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/provenance"
)

// Options tunes the HTTP surface.
type Options struct {
	Logger         *slog.Logger
	RateLimit      float64 // requests per second per IP; 0 disables limiting
	RateBurst      int
	MaxBodyBytes   int64
	MaxUploadBytes int64
	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// Server holds the handlers' dependencies.
type Server struct {
	svc    *provenance.Service
	logger *slog.Logger
	router *mux.Router
}

// New builds the router with every route and middleware registered.
func New(svc *provenance.Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, logger: logger, router: mux.NewRouter()}
	s.routes(opts)
	return s
}

// Router exposes the underlying router, mostly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "trust-ledger")
}

func (s *Server) routes(opts Options) {
	r := s.router
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	if opts.RateLimit > 0 {
		r.Use(RateLimitMiddleware(NewIPRateLimiter(opts.RateLimit, opts.RateBurst)))
	}
	r.Use(BodySizeLimitMiddleware(opts.MaxBodyBytes, opts.MaxUploadBytes))

	r.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Datasets
	r.HandleFunc("/api/datasets", s.handleListDatasets).Methods("GET")
	r.HandleFunc("/api/datasets", s.handleCreateDataset).Methods("POST")
	r.HandleFunc("/api/datasets/upload", s.handleUpload).Methods("POST")
	r.HandleFunc("/api/datasets/{id:[0-9]+}", s.handleGetDataset).Methods("GET")
	r.HandleFunc("/api/datasets/{id:[0-9]+}", s.handleDeleteDataset).Methods("DELETE")
	r.HandleFunc("/api/datasets/{id:[0-9]+}/stage", s.handleStage).Methods("GET")

	// Analysis and ledger
	r.HandleFunc("/api/datasets/{id:[0-9]+}/analyze", s.handleAnalyze).Methods("POST")
	r.HandleFunc("/api/datasets/{id:[0-9]+}/insights", s.handleRecordAnalysis).Methods("POST")
	r.HandleFunc("/api/datasets/{id:[0-9]+}/ledger", s.handleLedger).Methods("GET")
	r.HandleFunc("/api/datasets/{id:[0-9]+}/ledger.csv", s.handleLedgerCSV).Methods("GET")
	r.HandleFunc("/api/datasets/{id:[0-9]+}/report", s.handleReport).Methods("GET")

	// Trust
	r.HandleFunc("/api/datasets/{id:[0-9]+}/trust", s.handleTrust).Methods("GET")
	r.HandleFunc("/api/datasets/{id:[0-9]+}/trust/recompute", s.handleRecompute).Methods("POST")
	r.HandleFunc("/api/datasets/{id:[0-9]+}/scores", s.handleUpdateScores).Methods("PATCH")

	// Timeline and audit
	r.HandleFunc("/api/datasets/{id:[0-9]+}/timeline", s.handleTimeline).Methods("GET")
	r.HandleFunc("/api/datasets/{id:[0-9]+}/timeline.csv", s.handleTimelineCSV).Methods("GET")
	r.HandleFunc("/api/datasets/{id:[0-9]+}/events", s.handleAudit).Methods("GET")
	r.HandleFunc("/api/datasets/{id:[0-9]+}/events.csv", s.handleAuditCSV).Methods("GET")

	// Versions and proofs
	r.HandleFunc("/api/datasets/{id:[0-9]+}/versions", s.handleVersions).Methods("GET")
	r.HandleFunc("/api/datasets/{id:[0-9]+}/versions", s.handleCreateVersion).Methods("POST")
	r.HandleFunc("/api/datasets/{id:[0-9]+}/proof", s.handleProof).Methods("GET")

	// Attestation
	r.HandleFunc("/api/blockchain/register", s.handleRegister).Methods("POST")
	r.HandleFunc("/api/blockchain/verify/{hash}", s.handleVerify).Methods("GET")

	if opts.MCP != nil {
		r.PathPrefix("/mcp").Handler(opts.MCP)
	}
}

type errorResponse struct {
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg, RequestID: RequestID(r.Context())})
}

// writeError maps err onto a status. Internal details are logged, not returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "error", err, "request_id", RequestID(r.Context()))
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{
		Message:   msg,
		Kind:      apperr.Kind(err),
		RequestID: RequestID(r.Context()),
	})
}

// decodeJSON reads a JSON body into dst, mapping oversize and malformed bodies to client errors.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeMessage(w, r, http.StatusRequestEntityTooLarge, "payload too large")
			return false
		}
		writeMessage(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// datasetID parses the {id} route variable. The route pattern guarantees digits.
func (s *Server) datasetID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, r, http.StatusBadRequest, "invalid dataset id")
		return 0, false
	}
	return id, true
}
