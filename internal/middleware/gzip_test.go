package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func gzipEchoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	w.Header().Set("Content-Type", contentType)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("accepted: " + string(body)))
}

func gzipCompress(t *testing.T, payload string) io.Reader {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(payload)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func gzipReadBody(t *testing.T, res *http.Response) string {
	t.Helper()

	reader := io.Reader(res.Body)
	if res.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(res.Body)
		if err != nil {
			t.Fatalf("new gzip reader: %v", err)
		}
		defer gr.Close()
		reader = gr
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestGzipMiddleware(t *testing.T) {
	type want struct {
		statusCode      int
		contentEncoding string
		contentType     string
		bodyContains    string
	}

	tests := []struct {
		name        string
		requestBody string
		compress    bool
		headers     map[string]string
		want        want
	}{
		{
			name:        "client accepts gzip, application/json",
			requestBody: `{"userId":7,"bookId":42}`,
			headers: map[string]string{
				"Accept-Encoding": "gzip",
				"Content-Type":    "application/json",
			},
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				contentType:     "application/json",
				bodyContains:    `accepted: {"userId":7,"bookId":42}`,
			},
		},
		{
			name:        "client accepts gzip, text/plain",
			requestBody: "loan 42 returned",
			headers: map[string]string{
				"Accept-Encoding": "gzip",
				"Content-Type":    "text/plain",
			},
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				contentType:     "text/plain",
				bodyContains:    "accepted: loan 42 returned",
			},
		},
		{
			name:        "client does not accept gzip",
			requestBody: "loan 42 returned",
			headers: map[string]string{
				"Accept-Encoding": "",
				"Content-Type":    "text/plain",
			},
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "",
				contentType:     "text/plain",
				bodyContains:    "accepted: loan 42 returned",
			},
		},
		{
			name:        "compressed request body",
			requestBody: `{"userId":7,"bookId":42,"notes":"handle with care"}`,
			compress:    true,
			headers: map[string]string{
				"Content-Encoding": "gzip",
				"Accept-Encoding":  "gzip",
				"Content-Type":     "application/json",
			},
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				contentType:     "application/json",
				bodyContains:    `accepted: {"userId":7,"bookId":42,"notes":"handle with care"}`,
			},
		},
		{
			name:        "upgrade request is not compressed",
			requestBody: "",
			headers: map[string]string{
				"Accept-Encoding": "gzip",
				"Upgrade":         "websocket",
				"Connection":      "Upgrade",
			},
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "",
				contentType:     "text/plain",
				bodyContains:    "accepted: ",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requestBody io.Reader = strings.NewReader(tt.requestBody)
			if tt.compress {
				requestBody = gzipCompress(t, tt.requestBody)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/loans", requestBody)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			w := httptest.NewRecorder()

			h := GzipMiddleware(http.HandlerFunc(gzipEchoHandler))
			h.ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.want.statusCode {
				t.Fatalf("status: got %d want %d", res.StatusCode, tt.want.statusCode)
			}
			if ct := res.Header.Get("Content-Type"); ct != tt.want.contentType {
				t.Fatalf("content-type: got %q want %q", ct, tt.want.contentType)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.want.contentEncoding {
				t.Fatalf("content-encoding: got %q want %q", ce, tt.want.contentEncoding)
			}

			body := gzipReadBody(t, res)
			if !strings.Contains(body, tt.want.bodyContains) {
				t.Fatalf("body %q does not contain %q", body, tt.want.bodyContains)
			}
		})
	}
}

func TestGzipMiddleware_CorruptBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/loans", strings.NewReader("not gzip at all"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()

	h := GzipMiddleware(http.HandlerFunc(gzipEchoHandler))
	h.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", res.StatusCode, http.StatusBadRequest)
	}
}
