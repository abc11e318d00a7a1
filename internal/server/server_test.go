// internal/server/server_test.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/chatrelay/api/schemas"
	"github.com/xkilldash9x/chatrelay/internal/config"
	"github.com/xkilldash9x/chatrelay/internal/orchestrator"
)

type stubHandler struct {
	gotReq *schemas.ChatRequest
	ctxErr error // ctx.Err() observed while handling
	res    *orchestrator.Result
	err    error
}

func (h *stubHandler) Handle(ctx context.Context, req *schemas.ChatRequest) (*orchestrator.Result, error) {
	h.gotReq = req
	h.ctxErr = ctx.Err()
	return h.res, h.err
}

func newTestServer(t *testing.T, h ChatHandler) *Server {
	t.Helper()
	return New(
		config.ServerConfig{Host: "127.0.0.1", Port: 8080, RequestTimeout: 5 * time.Second},
		config.UpstreamConfig{DefaultModel: "gpt-4o-mini"},
		h,
		zaptest.NewLogger(t),
	)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleChat(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := &stubHandler{res: &orchestrator.Result{Answer: "hi there"}}
		s := newTestServer(t, h)

		w := doJSON(t, s, http.MethodPost, "/api/chat",
			`{"messages":[{"role":"user","content":"hello"}],"model":"o3-mini"}`)

		require.Equal(t, http.StatusOK, w.Code)
		var resp schemas.ChatResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "hi there", resp.Answer)
		assert.Equal(t, "o3-mini", resp.Model)
		assert.GreaterOrEqual(t, resp.ProcessingTime, int64(0))
	})

	t.Run("unknown model falls back to default", func(t *testing.T) {
		h := &stubHandler{res: &orchestrator.Result{Answer: "ok"}}
		s := newTestServer(t, h)

		w := doJSON(t, s, http.MethodPost, "/api/chat",
			`{"messages":[{"role":"user","content":"x"}],"model":"gpt-9000"}`)

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, h.gotReq)
		assert.Equal(t, "gpt-4o-mini", h.gotReq.Model)
	})

	t.Run("missing messages", func(t *testing.T) {
		s := newTestServer(t, &stubHandler{})
		w := doJSON(t, s, http.MethodPost, "/api/chat", `{"model":"gpt-4o-mini"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("non-array messages", func(t *testing.T) {
		s := newTestServer(t, &stubHandler{})
		w := doJSON(t, s, http.MethodPost, "/api/chat", `{"messages":"not an array"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid role", func(t *testing.T) {
		s := newTestServer(t, &stubHandler{})
		w := doJSON(t, s, http.MethodPost, "/api/chat",
			`{"messages":[{"role":"wizard","content":"x"}]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		s := newTestServer(t, &stubHandler{})
		w := doJSON(t, s, http.MethodPost, "/api/chat", `{"messages": [`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("challenge unresolved maps to 403", func(t *testing.T) {
		h := &stubHandler{err: orchestrator.ErrChallengeUnresolved}
		s := newTestServer(t, h)

		w := doJSON(t, s, http.MethodPost, "/api/chat",
			`{"messages":[{"role":"user","content":"x"}]}`)

		require.Equal(t, http.StatusForbidden, w.Code)
		var resp schemas.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "challenge could not be resolved", resp.Error)
	})

	t.Run("caller disconnect does not cancel the in-flight request", func(t *testing.T) {
		h := &stubHandler{res: &orchestrator.Result{Answer: "done anyway"}}
		s := newTestServer(t, h)

		// Simulate a caller that has already gone away.
		gone, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, "/api/chat",
			strings.NewReader(`{"messages":[{"role":"user","content":"x"}]}`)).WithContext(gone)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, h.ctxErr, "handler context must not inherit caller cancellation")
	})

	t.Run("other failures map to 500", func(t *testing.T) {
		h := &stubHandler{err: errors.New("browser exploded")}
		s := newTestServer(t, h)

		w := doJSON(t, s, http.MethodPost, "/api/chat",
			`{"messages":[{"role":"user","content":"x"}]}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestMethodHandling(t *testing.T) {
	t.Run("GET rejected", func(t *testing.T) {
		s := newTestServer(t, &stubHandler{})
		w := doJSON(t, s, http.MethodGet, "/api/chat", "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("OPTIONS preflight answered with CORS headers", func(t *testing.T) {
		s := newTestServer(t, &stubHandler{})
		req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
		req.Header.Set("Origin", "https://example.test")
		req.Header.Set("Access-Control-Request-Method", "POST")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown route", func(t *testing.T) {
		s := newTestServer(t, &stubHandler{})
		w := doJSON(t, s, http.MethodPost, "/api/unknown", "{}")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
