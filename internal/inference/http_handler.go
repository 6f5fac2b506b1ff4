package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"path"
	"strconv"
	"strings"

	"anomaly-detection-api/internal/scoring"

	"github.com/google/uuid"
)

const maxUploadBytes = 64 << 20 // 64 MiB

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/upload"):
		h.handleUpload(w, r)
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/predict/"):
		h.handlePredictByID(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/predict"):
		h.handlePredict(w, r)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/result/"):
		h.handleResult(w, r)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/download/"):
		h.handleDownload(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/uploads"):
		h.handleListUploads(w, r)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/logs/upload/"):
		h.handleLogsForUpload(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/notes"):
		h.handleUpdateNotes(w, r)
	case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/logs/old"):
		h.handleDeleteOldLogs(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/logs"):
		h.handleListLogs(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/statistics"):
		h.handleStatistics(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/health"):
		h.handleHealth(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	filename, payload, ok := h.readUploadedFile(w, r)
	if !ok {
		return
	}

	response, err := h.service.Upload(r.Context(), filename, payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, response)
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	filename, payload, ok := h.readUploadedFile(w, r)
	if !ok {
		return
	}

	threshold, err := parseThreshold(r.FormValue("threshold"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response, err := h.service.Predict(r.Context(), filename, payload, threshold)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handlePredictByID(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := parsePathID(w, r.URL.Path, "/predict/")
	if !ok {
		return
	}

	thresholdValue := r.URL.Query().Get("threshold")
	if thresholdValue == "" {
		thresholdValue = r.FormValue("threshold")
	}
	threshold, err := parseThreshold(thresholdValue)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response, err := h.service.PredictByID(r.Context(), uploadID, threshold)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := parsePathID(w, r.URL.Path, "/result/")
	if !ok {
		return
	}

	response, err := h.service.Result(r.Context(), uploadID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	idx := strings.Index(r.URL.Path, "/download/")
	filename := r.URL.Path[idx+len("/download/"):]

	file, err := h.service.OpenDownload(filename)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer func() { _ = file.Close() }()

	contentType := "text/csv"
	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(filename)))
	if _, err := io.Copy(w, file); err != nil {
		log.Printf("[HTTP] failed to stream download %s: %v", filename, err)
	}
}

func (h *Handler) handleListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.service.ListUploads(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uploads":       uploads,
		"total_uploads": len(uploads),
	})
}

func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 100)
	offset := parseIntQuery(r, "offset", 0)

	logs, err := h.service.Logs(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

func (h *Handler) handleLogsForUpload(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := parsePathID(w, r.URL.Path, "/logs/upload/")
	if !ok {
		return
	}

	logs, err := h.service.LogsForUpload(r.Context(), uploadID, parseIntQuery(r, "limit", 100), parseIntQuery(r, "offset", 0))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"upload_id": uploadID,
		"logs":      logs,
		"count":     len(logs),
	})
}

type updateNotesPayload struct {
	Notes string `json:"notes"`
}

func (h *Handler) handleUpdateNotes(w http.ResponseWriter, r *http.Request) {
	// Path shape: .../logs/{id}/notes
	trimmed := strings.TrimSuffix(r.URL.Path, "/notes")
	logID, ok := parsePathID(w, trimmed, "/logs/")
	if !ok {
		return
	}

	var payload updateNotesPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	entry, err := h.service.UpdateLogNotes(r.Context(), logID, payload.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleDeleteOldLogs(w http.ResponseWriter, r *http.Request) {
	days := parseIntQuery(r, "days", 30)

	deleted, err := h.service.DeleteOldLogs(r.Context(), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted_count":  deleted,
		"retention_days": days,
	})
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !h.service.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":       "degraded",
			"model_loaded": false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"model_loaded": true,
	})
}

// readUploadedFile pulls the multipart "file" field into memory.
func (h *Handler) readUploadedFile(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return "", nil, false
	}
	defer func() { _ = file.Close() }()

	payload, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "failed to read uploaded file", http.StatusBadRequest)
		return "", nil, false
	}
	if len(payload) > maxUploadBytes {
		http.Error(w, "uploaded file too large", http.StatusRequestEntityTooLarge)
		return "", nil, false
	}
	return header.Filename, payload, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[HTTP] inference error: %v", err)
	}
	writeJSON(w, status, map[string]any{
		"status":  "error",
		"message": err.Error(),
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scoring.ErrNotLoaded), errors.Is(err, scoring.ErrMissingWeights):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] failed to encode response: %v", err)
	}
}

// parseThreshold requires an explicit threshold in [0,1]; there is no default.
func parseThreshold(value string) (float64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("threshold is required")
	}
	threshold, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold %q", value)
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return 0, fmt.Errorf("threshold %v outside [0,1]", threshold)
	}
	return threshold, nil
}

func parsePathID(w http.ResponseWriter, urlPath, marker string) (uuid.UUID, bool) {
	idx := strings.Index(urlPath, marker)
	if idx < 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return uuid.Nil, false
	}
	segment := strings.Trim(urlPath[idx+len(marker):], "/")
	id, err := uuid.Parse(segment)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid id %q", segment), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
