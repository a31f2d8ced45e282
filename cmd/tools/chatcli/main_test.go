package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/api/chat/create", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"chat":{"id":"c1"}}`)
	})
	r.Post("/api/chat/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":[{"content":"ignored"},{"content":"**done**"}]}`)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestSendPrintsMarkup(t *testing.T) {
	srv := fakeBackend(t)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"send", "--backend", srv.URL, "--markup", "hello", "  ", "again"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"<span class='chat-bold'>done</span>",
		"<span class='chat-bold'>done</span>",
	}, lines)
}

func TestSendRejectsBadEscape(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"send", "--escape", "weird", "hello"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
