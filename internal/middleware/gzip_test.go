package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, payload string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &buf
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()

	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(res.Body)
		require.NoError(t, err)
		defer zr.Close()
		r = zr
	}
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(body)
}

// decisionCounter отвечает числом решений в теле запроса, как это делает эндпоинт ответа покупателя.
func decisionCounter(contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var decisions []map[string]string
		if err := json.NewDecoder(r.Body).Decode(&decisions); err != nil {
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", "999")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"result":"success","decisions":`+strings.Repeat("I", len(decisions))+`}`)
	}
}

func TestGzipMiddleware(t *testing.T) {
	const decisions = `[{"orderId":"1001","productId":"gid://shopify/LineItem/1","replacementId":"custom_x","status":"Accepted"},` +
		`{"orderId":"1001","productId":"gid://shopify/LineItem/2","replacementId":"gid://shopify/Product/9","status":"Rejected"}]`

	tests := []struct {
		name           string
		compressBody   bool
		acceptEncoding string
		contentType    string
		wantStatus     int
		wantEncoding   string
		wantBody       string
	}{
		{
			name:           "compressed decisions, gzip json response",
			compressBody:   true,
			acceptEncoding: "gzip, deflate",
			contentType:    "application/json",
			wantStatus:     http.StatusOK,
			wantEncoding:   "gzip",
			wantBody:       `"decisions":II`,
		},
		{
			name:         "compressed decisions, client without gzip",
			compressBody: true,
			contentType:  "application/json",
			wantStatus:   http.StatusOK,
			wantBody:     `"decisions":II`,
		},
		{
			name:           "plain decisions, html response compressed",
			acceptEncoding: "gzip",
			contentType:    "text/html; charset=utf-8",
			wantStatus:     http.StatusOK,
			wantEncoding:   "gzip",
			wantBody:       `"result":"success"`,
		},
		{
			name:           "plain text response left as is",
			acceptEncoding: "gzip",
			contentType:    "text/plain",
			wantStatus:     http.StatusOK,
			wantBody:       `"result":"success"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(decisions)
			if tt.compressBody {
				body = gzipBytes(t, decisions)
			}

			req := httptest.NewRequest(http.MethodPost, "/orders/1001/responses", body)
			if tt.compressBody {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()

			GzipMiddleware(decisionCounter(tt.contentType)).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			assert.Equal(t, tt.wantStatus, res.StatusCode)
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))
			assert.Equal(t, tt.contentType, res.Header.Get("Content-Type"))
			if tt.wantEncoding == "gzip" {
				assert.Empty(t, res.Header.Get("Content-Length"))
			}
			assert.Contains(t, readBody(t, res), tt.wantBody)
		})
	}
}

func TestGzipMiddleware_RejectsCorruptBody(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/orders/1001/responses", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	GzipMiddleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}
