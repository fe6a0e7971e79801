package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/dsjohal14/ledgerbuf/internal/diskbuf"
	"github.com/dsjohal14/ledgerbuf/internal/libs/obs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func setupTestHandler(t *testing.T) (*Handler, *chi.Mux) {
	dataDir := filepath.Join(t.TempDir(), "buffer")

	buf, err := diskbuf.Open(diskbuf.DefaultOptions(dataDir))
	if err != nil {
		t.Fatalf("failed to open buffer: %v", err)
	}
	t.Cleanup(func() { _ = buf.Close() })

	obs.InitLogger("error") // Quiet logs during tests
	logger := obs.Logger("test")
	handler := NewHandler(buf, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Get("/health", handler.HandleHealth)
	r.Get("/stats", handler.HandleStats)
	r.Post("/append", handler.HandleAppend)
	r.Post("/drain", handler.HandleDrain)
	r.Post("/ack", handler.HandleAck)

	return handler, r
}

func TestHandleHealth(t *testing.T) {
	_, router := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Errorf("expected status healthy, got %v", resp.Status)
	}
}

func doAppend(t *testing.T, router *chi.Mux, payload string, eventCount uint64) AppendResponse {
	t.Helper()
	reqBody := AppendRequest{Payload: []byte(payload), EventCount: eventCount}
	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/append", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("append failed: %d: %s", w.Code, w.Body.String())
	}

	var resp AppendResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode append response: %v", err)
	}
	return resp
}

func TestHandleAppendAssignsIncreasingRecordIDs(t *testing.T) {
	_, router := setupTestHandler(t)

	first := doAppend(t, router, "hello", 0)
	second := doAppend(t, router, "world", 0)

	if second.RecordID <= first.RecordID {
		t.Errorf("expected second record id > first, got %d <= %d", second.RecordID, first.RecordID)
	}
}

func TestHandleAppendRejectsInvalidJSON(t *testing.T) {
	_, router := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/append", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandleDrainEmptyBuffer(t *testing.T) {
	_, router := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/drain", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp DrainResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Empty {
		t.Error("expected empty=true on an empty buffer")
	}
}

func TestAppendDrainAckRoundTrip(t *testing.T) {
	_, router := setupTestHandler(t)

	appendResp := doAppend(t, router, "payload-1", 0)

	req := httptest.NewRequest(http.MethodPost, "/drain", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("drain failed: %d: %s", w.Code, w.Body.String())
	}

	var drainResp DrainResponse
	if err := json.NewDecoder(w.Body).Decode(&drainResp); err != nil {
		t.Fatalf("failed to decode drain response: %v", err)
	}
	if drainResp.Empty {
		t.Fatal("expected a record, got empty")
	}
	if drainResp.FirstRecordID != appendResp.RecordID {
		t.Errorf("expected record id %d, got %d", appendResp.RecordID, drainResp.FirstRecordID)
	}
	if string(drainResp.Payload) != "payload-1" {
		t.Errorf("expected payload-1, got %q", drainResp.Payload)
	}
	if drainResp.AckToken == "" {
		t.Fatal("expected a non-empty ack token")
	}

	ackReq := AckRequest{AckToken: drainResp.AckToken, Success: true}
	body, _ := json.Marshal(ackReq)
	req = httptest.NewRequest(http.MethodPost, "/ack", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ack failed: %d: %s", w.Code, w.Body.String())
	}

	var ackResp AckResponse
	if err := json.NewDecoder(w.Body).Decode(&ackResp); err != nil {
		t.Fatalf("failed to decode ack response: %v", err)
	}
	if !ackResp.Accepted {
		t.Error("expected accepted=true")
	}
}

func TestHandleAckUnknownToken(t *testing.T) {
	_, router := setupTestHandler(t)

	ackReq := AckRequest{AckToken: "does-not-exist", Success: true}
	body, _ := json.Marshal(ackReq)
	req := httptest.NewRequest(http.MethodPost, "/ack", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandleStatsReflectsAppends(t *testing.T) {
	_, router := setupTestHandler(t)

	doAppend(t, router, "a", 0)
	doAppend(t, router, "b", 0)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp StatsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TotalRecords != 2 {
		t.Errorf("expected 2 total records, got %d", resp.TotalRecords)
	}
}
