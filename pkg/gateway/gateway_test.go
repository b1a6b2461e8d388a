package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/clawd-gateway/pkg/admission"
	"github.com/go-go-golems/clawd-gateway/pkg/apperr"
	"github.com/go-go-golems/clawd-gateway/pkg/bridge"
	"github.com/go-go-golems/clawd-gateway/pkg/config"
	"github.com/go-go-golems/clawd-gateway/pkg/llm"
	"github.com/go-go-golems/clawd-gateway/pkg/store"
)

type stubBackend struct {
	response  *llm.Response
	genErr    error
	tokens    []string
	streamErr error
	healthErr error
}

func (s *stubBackend) Generate(context.Context, llm.Request) (*llm.Response, error) {
	if s.genErr != nil {
		return nil, s.genErr
	}
	return s.response, nil
}

func (s *stubBackend) GenerateStreaming(_ context.Context, _ llm.Request, onToken func(string)) error {
	for _, tok := range s.tokens {
		onToken(tok)
	}
	return s.streamErr
}

func (s *stubBackend) Health(context.Context) (*llm.HealthStatus, error) {
	if s.healthErr != nil {
		return nil, s.healthErr
	}
	return &llm.HealthStatus{Status: "ok", Model: "test-model", ModelLoaded: true}, nil
}

type testEnv struct {
	server   *Server
	sessions *store.Store
	adm      *admission.Controller
	br       *bridge.Bridge
}

func newTestEnv(t *testing.T, backend llm.Backend, ratePerSecond int) *testEnv {
	t.Helper()
	cfg := config.Default()
	sessions := store.New(30*time.Minute, 10*time.Minute)
	adm := admission.NewController(ratePerSecond)
	t.Cleanup(adm.Close)
	br := bridge.New()
	t.Cleanup(func() { _ = br.Close() })
	return &testEnv{
		server:   New(cfg, backend, sessions, adm, br),
		sessions: sessions,
		adm:      adm,
		br:       br,
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubBackend{}, 100)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "clawd-gateway", body["service"])
}

func TestLLMHealthProxiesFailure(t *testing.T) {
	env := newTestEnv(t, &stubBackend{healthErr: apperr.New(apperr.KindLLMUnavailable, "down")}, 100)
	req := httptest.NewRequest(http.MethodGet, "/llm/health", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewSession(t *testing.T) {
	env := newTestEnv(t, &stubBackend{}, 100)
	rec := postJSON(t, env.server.Handler(), "/session/new", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	id, err := uuid.Parse(body["session_id"])
	require.NoError(t, err)
	_, ok := env.sessions.Read(id)
	assert.True(t, ok)
}

func TestChatHappyPath(t *testing.T) {
	backend := &stubBackend{response: &llm.Response{
		Text:            "ClawDBot: hello from the model",
		TokensGenerated: 5,
		ElapsedSeconds:  0.2,
		Model:           "test-model",
	}}
	env := newTestEnv(t, backend, 100)

	rec := postJSON(t, env.server.Handler(), "/chat", map[string]any{"message": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hello from the model", body["reply"])
	assert.Equal(t, "test-model", body["model"])

	sid, err := uuid.Parse(body["session_id"].(string))
	require.NoError(t, err)
	snap, ok := env.sessions.Read(sid)
	require.True(t, ok)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "hi", snap.Messages[0].Content)
	assert.Equal(t, "hello from the model", snap.Messages[1].Content)
}

func TestChatReusesSession(t *testing.T) {
	backend := &stubBackend{response: &llm.Response{Text: "reply"}}
	env := newTestEnv(t, backend, 100)

	rec := postJSON(t, env.server.Handler(), "/chat", map[string]any{"message": "first"})
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	sid := body["session_id"].(string)

	rec = postJSON(t, env.server.Handler(), "/chat", map[string]any{"message": "second", "session_id": sid})
	require.Equal(t, http.StatusOK, rec.Code)

	snap, ok := env.sessions.Read(uuid.MustParse(sid))
	require.True(t, ok)
	assert.Len(t, snap.Messages, 4)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t, &stubBackend{}, 100)
	rec := postJSON(t, env.server.Handler(), "/chat", map[string]any{"message": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad_request")
}

func TestChatRejectsInvalidSessionID(t *testing.T) {
	env := newTestEnv(t, &stubBackend{}, 100)
	rec := postJSON(t, env.server.Handler(), "/chat", map[string]any{"message": "hi", "session_id": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatBackendFailureMapsToStatus(t *testing.T) {
	env := newTestEnv(t, &stubBackend{genErr: apperr.New(apperr.KindLLMUnavailable, "backend gone")}, 100)
	rec := postJSON(t, env.server.Handler(), "/chat", map[string]any{"message": "hi"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "llm_unavailable")
}

func TestAdmissionDeniesBurstOverflow(t *testing.T) {
	env := newTestEnv(t, &stubBackend{}, 1)
	handler := env.server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate_limited")
}

func TestClientIPTrustsOnlyPrivateProxies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	assert.Equal(t, "203.0.113.9", clientIP(req), "public peers cannot spoof forwarding headers")

	req.RemoteAddr = "127.0.0.1:1234"
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.8")
	assert.Equal(t, "198.51.100.8", clientIP(req))
}

func TestParseWSInbound(t *testing.T) {
	in := parseWSInbound([]byte(`{"message":"hi","max_tokens":64}`))
	assert.Equal(t, "hi", in.Message)
	assert.Equal(t, 64, in.MaxTokens)

	in = parseWSInbound([]byte("just plain text"))
	assert.Equal(t, "just plain text", in.Message)
	assert.Equal(t, 0, in.MaxTokens)

	in = parseWSInbound([]byte(`{"max_tokens":64}`))
	assert.Equal(t, "", strings.TrimSpace(in.Message))
}
