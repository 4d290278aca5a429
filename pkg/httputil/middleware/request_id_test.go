package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edgeflare/restful/pkg/httputil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name    string
		ctxID   string
		header  string
		want    string
		newUUID bool
	}{
		{name: "generated", newUUID: true},
		{name: "from context", ctxID: "ctx-1", header: "hdr-1", want: "ctx-1"},
		{name: "from header", header: "trace-123", want: "trace-123"},
		{name: "oversized header", header: strings.Repeat("x", maxRequestIDLen+1), newUUID: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = httputil.RequestID(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/books/", nil)
			if tt.ctxID != "" {
				req = req.WithContext(context.WithValue(req.Context(), httputil.RequestIDCtxKey, tt.ctxID))
			}
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
			if tt.newUUID {
				_, err := uuid.Parse(seen)
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestRequestIDPerRequest(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	ids := make(map[string]bool)
	for range 3 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		ids[w.Header().Get(RequestIDHeader)] = true
	}
	assert.Len(t, ids, 3)
}
