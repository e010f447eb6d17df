package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_RecordsStatusAndSize(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	h := Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/loans", nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusCreated) {
		t.Errorf("logged status = %v, want %d", fields["status"], http.StatusCreated)
	}
	if fields["size"] != int64(len("created")) {
		t.Errorf("logged size = %v, want %d", fields["size"], len("created"))
	}
	if fields["path"] != "/api/loans" {
		t.Errorf("logged path = %v, want /api/loans", fields["path"])
	}
}

func TestLogger_DefaultsToOKWithoutWriteHeader(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	h := Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if status := entries[0].ContextMap()["status"]; status != int64(http.StatusOK) {
		t.Errorf("logged status = %v, want %d", status, http.StatusOK)
	}
}
