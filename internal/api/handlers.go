package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/export"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/hasher"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/provenance"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/storage"
)

// allowedUploads are the file extensions accepted by the upload endpoint.
var allowedUploads = map[string]bool{
	".csv":     true,
	".json":    true,
	".txt":     true,
	".xlsx":    true,
	".parquet": true,
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.svc.Ping(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "health check failed", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"storage": s.svc.Backend(),
		"time":    time.Now().UTC(),
	})
}

// --- Datasets ---

type createDatasetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerWallet string `json:"owner_wallet"`
	ContentHash string `json:"content_hash"`
	Filename    string `json:"filename"`
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.svc.ListDatasets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if datasets == nil {
		datasets = []models.Dataset{}
	}
	writeJSON(w, http.StatusOK, datasets)
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	d, err := s.svc.CreateDataset(r.Context(), provenance.CreateDatasetInput{
		Name:        req.Name,
		Description: req.Description,
		OwnerWallet: req.OwnerWallet,
		ContentHash: req.ContentHash,
		Filename:    req.Filename,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleUpload ingests a multipart file: the content is hashed and a dataset
// registered for it. The bytes themselves are not retained.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeMessage(w, r, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeMessage(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedUploads[ext] {
		writeMessage(w, r, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", ext))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "could not read file")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	d, err := s.svc.CreateDataset(r.Context(), provenance.CreateDatasetInput{
		Name:        name,
		Description: r.FormValue("description"),
		OwnerWallet: r.FormValue("owner_wallet"),
		ContentHash: hasher.ContentHash(data),
		Filename:    header.Filename,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	d, err := s.svc.GetDataset(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteDataset(r.Context(), id, r.URL.Query().Get("actor")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	stage, err := s.svc.Stage(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dataset_id": id, "stage": stage})
}

// --- Analysis and ledger ---

type recordAnalysisRequest struct {
	InsightText string  `json:"insight_text"`
	Confidence  float64 `json:"confidence"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	entries, err := s.svc.Analyze(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entries)
}

func (s *Server) handleRecordAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	var req recordAnalysisRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	entry, err := s.svc.RecordAnalysis(r.Context(), id, req.InsightText, req.Confidence)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	var (
		entries []models.LedgerEntry
		err     error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		entries, err = s.svc.SearchLedger(r.Context(), id, q)
	} else {
		entries, err = s.svc.GetLedger(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	report, err := s.svc.GetReport(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLedgerCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	entries, err := s.svc.GetLedger(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeCSVHeaders(w, fmt.Sprintf("dataset-%d-ledger.csv", id))
	if err := export.WriteLedger(w, entries); err != nil {
		s.logger.ErrorContext(r.Context(), "write ledger csv", "dataset_id", id, "error", err)
	}
}

// --- Trust ---

type updateScoresRequest struct {
	provenance.ScoreUpdate
	Actor string `json:"actor"`
}

func (s *Server) handleTrust(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	b, err := s.svc.GetTrustBreakdown(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	score, err := s.svc.Recompute(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dataset_id": id, "trust_score": score})
}

func (s *Server) handleUpdateScores(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	var req updateScoresRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	b, err := s.svc.UpdateSubScores(r.Context(), id, req.ScoreUpdate, req.Actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// --- Timeline and audit ---

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	events, err := s.svc.GetTimeline(r.Context(), id, storage.ParseOrder(r.URL.Query().Get("order")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []models.LifecycleEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleTimelineCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	events, err := s.svc.GetTimeline(r.Context(), id, storage.ParseOrder(r.URL.Query().Get("order")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeCSVHeaders(w, fmt.Sprintf("dataset-%d-timeline.csv", id))
	if err := export.WriteLifecycle(w, events); err != nil {
		s.logger.ErrorContext(r.Context(), "write timeline csv", "dataset_id", id, "error", err)
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	events, err := s.svc.GetAuditLog(r.Context(), id, storage.ParseOrder(r.URL.Query().Get("order")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAuditCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	events, err := s.svc.GetAuditLog(r.Context(), id, storage.ParseOrder(r.URL.Query().Get("order")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeCSVHeaders(w, fmt.Sprintf("dataset-%d-events.csv", id))
	if err := export.WriteAudit(w, events); err != nil {
		s.logger.ErrorContext(r.Context(), "write audit csv", "dataset_id", id, "error", err)
	}
}

// --- Versions and proofs ---

type createVersionRequest struct {
	ContentHash   string `json:"content_hash"`
	ParentVersion int    `json:"parent_version"`
	Actor         string `json:"actor"`
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	versions, err := s.svc.GetVersions(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if versions == nil {
		versions = []models.DatasetVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	var req createVersionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	v, err := s.svc.CreateVersion(r.Context(), id, req.ContentHash, req.ParentVersion, req.Actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	var (
		p   *models.StorageProof
		err error
	)
	if hash := r.URL.Query().Get("content_hash"); hash != "" {
		p, err = s.svc.GenerateStorageProof(r.Context(), id, hash)
	} else {
		p, err = s.svc.GetStorageProof(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Attestation ---

type registerRequest struct {
	DatasetID int64  `json:"dataset_id"`
	Actor     string `json:"actor"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	reg, err := s.svc.RegisterAttestation(r.Context(), req.DatasetID, req.Actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.VerifyHash(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeCSVHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
