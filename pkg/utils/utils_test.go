package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondJSONAndError(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondError(resp, http.StatusNotFound, "missing")

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"missing"}`, resp.Body.String())

	resp = httptest.NewRecorder()
	RespondJSON(resp, http.StatusAccepted, nil)
	assert.Equal(t, http.StatusAccepted, resp.Code)
	assert.Empty(t, resp.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"content":"hi"}`))
	var dst struct {
		Content string `json:"content"`
	}
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "hi", dst.Content)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.Error(t, DecodeJSON(req, &dst))
}

func TestSendSSEEvent(t *testing.T) {
	resp := httptest.NewRecorder()
	SetupSSEHeaders(resp)
	require.NoError(t, SendSSEEvent(resp, resp, "message_appended", map[string]string{"id": "1"}))
	require.NoError(t, SendSSEComment(resp, resp, "keep-alive"))

	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))
	assert.Equal(t, "event: message_appended\ndata: {\"id\":\"1\"}\n\n: keep-alive\n\n", resp.Body.String())
	assert.True(t, resp.Flushed)
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler())

	done := make(chan error, 1)
	go func() { done <- RunServer(ctx, srv) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}
