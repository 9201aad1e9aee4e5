package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/types"
)

type stubAgent struct {
	lastMessage string
	lastUserID  int64
	resets      int
}

func (s *stubAgent) Handle(_ context.Context, message string, userID int64) types.ChatResponse {
	s.lastMessage = message
	s.lastUserID = userID
	return types.ChatResponse{Response: "Found 2 matching records.", Success: true}
}

func (s *stubAgent) Reset(_ context.Context, userID int64) types.ChatResponse {
	s.resets++
	s.lastUserID = userID
	return types.ChatResponse{Response: "cleared", Success: true}
}

func newTestHandler() (*Handler, *stubAgent) {
	agent := &stubAgent{}
	return NewHandler(Dependencies{Agent: agent}), agent
}

func doRequest(h http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChat(t *testing.T) {
	h, agent := newTestHandler()
	rec := doRequest(h, http.MethodPost, "/agent/chat", "7", `{"content": "show my expenses"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "show my expenses", agent.lastMessage)
	assert.Equal(t, int64(7), agent.lastUserID)

	var resp types.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Found 2 matching records.", resp.Response)
}

func TestChatRequiresUserHeader(t *testing.T) {
	h, _ := newTestHandler()
	for name, header := range map[string]string{
		"missing":  "",
		"garbage":  "not-a-number",
		"zero":     "0",
		"negative": "-3",
	} {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(h, http.MethodPost, "/agent/chat", header, `{"content": "hi"}`)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestChatRejectsBadBody(t *testing.T) {
	h, agent := newTestHandler()

	t.Run("malformed json", func(t *testing.T) {
		rec := doRequest(h, http.MethodPost, "/agent/chat", "7", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp types.ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
	})

	for name, body := range map[string]string{
		"missing content": `{}`,
		"empty content":   `{"content": ""}`,
		"blank content":   `{"content": "   "}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(h, http.MethodPost, "/agent/chat", "7", body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Empty(t, agent.lastMessage)

			var resp types.ChatResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
		})
	}
}

func TestReset(t *testing.T) {
	h, agent := newTestHandler()
	rec := doRequest(h, http.MethodPost, "/agent/chat/reset", "7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, agent.resets)
	assert.Equal(t, int64(7), agent.lastUserID)
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler()
	rec := doRequest(h, http.MethodGet, "/v1/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestMetrics(t *testing.T) {
	h, _ := newTestHandler()
	rec := doRequest(h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler()
	rec := doRequest(h, http.MethodGet, "/agent/chat", "7", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
