package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var gotID string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetRequestIDFromContext(r.Context())
		if !ok {
			t.Fatal("request ID is missing from context")
		}
		gotID = id
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if gotID == "" {
		t.Fatal("request ID is empty")
	}
	if header := rec.Header().Get(RequestIDHeader); header != gotID {
		t.Fatalf("response header = %q, want %q", header, gotID)
	}
}

func TestRequestID_KeepsIncomingID(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, _ := GetRequestIDFromContext(r.Context()); id != "abc-123" {
			t.Fatalf("request ID = %q, want abc-123", id)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if header := rec.Header().Get(RequestIDHeader); header != "abc-123" {
		t.Fatalf("response header = %q, want abc-123", header)
	}
}
