package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func multipartBody(t *testing.T, filename, contents string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(contents)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field %s: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestHandlerPredictEndToEnd(t *testing.T) {
	f := newServiceFixture(t)
	handler := NewHTTPHandler(f.service)

	body, contentType := multipartBody(t, "capture.csv", sampleCSV, map[string]string{"threshold": "0.5"})
	req := httptest.NewRequest(http.MethodPost, "/api/inference/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var response PredictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.TotalSamples != 3 || response.DownloadFilename != "capture_results.csv" {
		t.Fatalf("unexpected response: %+v", response)
	}

	// Result endpoint returns the stored bundle.
	req = httptest.NewRequest(http.MethodGet, "/api/inference/result/"+response.UploadID.String(), nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("result: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Download endpoint streams the artifact.
	req = httptest.NewRequest(http.MethodGet, "/api/inference/download/"+response.DownloadFilename, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "prediction_status") {
		t.Fatalf("download missing annotated header: %s", rec.Body.String())
	}
}

func TestHandlerPredictRequiresThreshold(t *testing.T) {
	f := newServiceFixture(t)
	handler := NewHTTPHandler(f.service)

	body, contentType := multipartBody(t, "capture.csv", sampleCSV, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/inference/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without threshold, got %d", rec.Code)
	}

	body, contentType = multipartBody(t, "capture.csv", sampleCSV, map[string]string{"threshold": "1.7"})
	req = httptest.NewRequest(http.MethodPost, "/api/inference/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range threshold, got %d", rec.Code)
	}

	// NaN parses as a float but compares false against both bounds.
	body, contentType = multipartBody(t, "capture.csv", sampleCSV, map[string]string{"threshold": "NaN"})
	req = httptest.NewRequest(http.MethodPost, "/api/inference/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for NaN threshold, got %d", rec.Code)
	}
}

func TestHandlerUpload(t *testing.T) {
	f := newServiceFixture(t)
	handler := NewHTTPHandler(f.service)

	body, contentType := multipartBody(t, "capture.csv", sampleCSV, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/inference/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var response UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.UploadID == uuid.Nil || response.NumRows != 3 {
		t.Fatalf("unexpected response: %+v", response)
	}
}

func TestHandlerUploadRejectsBadPayload(t *testing.T) {
	f := newServiceFixture(t)
	handler := NewHTTPHandler(f.service)

	body, contentType := multipartBody(t, "notes.pdf", "not a table", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/inference/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported format, got %d", rec.Code)
	}
}

func TestHandlerResultNotFound(t *testing.T) {
	f := newServiceFixture(t)
	handler := NewHTTPHandler(f.service)

	req := httptest.NewRequest(http.MethodGet, "/api/inference/result/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/inference/result/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestHandlerDownloadRejectsTraversal(t *testing.T) {
	f := newServiceFixture(t)
	handler := NewHTTPHandler(f.service)

	req := httptest.NewRequest(http.MethodGet, "/api/inference/download/..%2F..%2Fetc%2Fpasswd", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for traversal name, got %d", rec.Code)
	}
}

func TestHandlerHealthTracksModelState(t *testing.T) {
	f := newServiceFixture(t)
	handler := NewHTTPHandler(f.service)

	req := httptest.NewRequest(http.MethodGet, "/api/inference/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before weights load, got %d", rec.Code)
	}

	if err := f.scorer.Load(); err != nil {
		t.Fatalf("stub load returned error: %v", err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after weights load, got %d", rec.Code)
	}
}

func TestHandlerLogsAndStatistics(t *testing.T) {
	f := newServiceFixture(t)
	handler := NewHTTPHandler(f.service)

	body, contentType := multipartBody(t, "capture.csv", sampleCSV, map[string]string{"threshold": "0.95"})
	req := httptest.NewRequest(http.MethodPost, "/api/inference/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("predict: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/inference/logs?limit=10", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logs: expected 200, got %d", rec.Code)
	}
	var logsResponse struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &logsResponse); err != nil {
		t.Fatalf("failed to decode logs response: %v", err)
	}
	if logsResponse.Count != 1 {
		t.Fatalf("expected 1 log entry, got %d", logsResponse.Count)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/inference/statistics", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("statistics: expected 200, got %d", rec.Code)
	}
}

func TestHandlerUpdateNotes(t *testing.T) {
	f := newServiceFixture(t)
	handler := NewHTTPHandler(f.service)

	body, contentType := multipartBody(t, "capture.csv", sampleCSV, map[string]string{"threshold": "0.5"})
	req := httptest.NewRequest(http.MethodPost, "/api/inference/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var predicted PredictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &predicted); err != nil {
		t.Fatalf("failed to decode predict response: %v", err)
	}

	payload := bytes.NewBufferString(`{"notes":"verified manually"}`)
	url := fmt.Sprintf("/api/inference/logs/%s/notes", predicted.LogID)
	req = httptest.NewRequest(http.MethodPost, url, payload)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "verified manually") {
		t.Fatalf("notes missing from response: %s", rec.Body.String())
	}
}
