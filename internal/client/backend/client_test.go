package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method      string
	Path        string
	ContentType string
	Body        string
}

func newTestBackend(t *testing.T, create, message http.HandlerFunc) (*Client, *[]recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []recordedRequest
	)
	record := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, recordedRequest{
				Method:      r.Method,
				Path:        r.URL.Path,
				ContentType: r.Header.Get("Content-Type"),
				Body:        string(body),
			})
			next(w, r)
		}
	}

	r := chi.NewRouter()
	if create != nil {
		r.Post("/api/chat/create", record(create))
	}
	if message != nil {
		r.Post("/api/chat/{id}/message", record(message))
	}
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return New(srv.URL + "/"), &seen
}

func writeJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestCreateConversationNestedID(t *testing.T) {
	client, seen := newTestBackend(t, writeJSON(http.StatusCreated, `{"chat":{"id":"c-1"}}`), nil)

	id, err := client.CreateConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c-1", id)

	require.Len(t, *seen, 1)
	assert.Equal(t, http.MethodPost, (*seen)[0].Method)
	assert.Equal(t, "application/json", (*seen)[0].ContentType)
	assert.Empty(t, (*seen)[0].Body)
}

func TestCreateConversationTopLevelID(t *testing.T) {
	client, _ := newTestBackend(t, writeJSON(http.StatusOK, `{"id":42}`), nil)

	id, err := client.CreateConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestCreateConversationPrefersNestedID(t *testing.T) {
	client, _ := newTestBackend(t, writeJSON(http.StatusOK, `{"id":"outer","chat":{"id":"inner"}}`), nil)

	id, err := client.CreateConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "inner", id)
}

func TestCreateConversationMissingID(t *testing.T) {
	client, _ := newTestBackend(t, writeJSON(http.StatusOK, `{"chat":{}}`), nil)

	_, err := client.CreateConversation(context.Background())
	require.ErrorIs(t, err, ErrMissingConversationID)
	assert.Equal(t, "no chat id returned from server", err.Error())
}

func TestCreateConversationHTTPError(t *testing.T) {
	client, _ := newTestBackend(t, writeJSON(http.StatusServiceUnavailable, `{"error":"down"}`), nil)

	_, err := client.CreateConversation(context.Background())
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Equal(t, "Service Unavailable", httpErr.StatusText)
	assert.Equal(t, "failed to create chat: 503 Service Unavailable", err.Error())
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
}

func TestPostMessageSendsContent(t *testing.T) {
	client, seen := newTestBackend(t, nil, writeJSON(http.StatusOK, `{"response":"hello"}`))

	reply, err := client.PostMessage(context.Background(), "abc 1", "hi there")
	require.NoError(t, err)
	assert.Equal(t, ReplyText, reply.Kind)
	assert.Equal(t, "hello", reply.Text)

	require.Len(t, *seen, 1)
	assert.Equal(t, "/api/chat/abc 1/message", (*seen)[0].Path)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte((*seen)[0].Body), &body))
	assert.Equal(t, map[string]string{"content": "hi there"}, body)
}

func TestPostMessageHTTPError(t *testing.T) {
	client, _ := newTestBackend(t, nil, writeJSON(http.StatusInternalServerError, `oops`))

	_, err := client.PostMessage(context.Background(), "c-1", "hi")
	require.Error(t, err)
	assert.Equal(t, "failed to send message: 500 Internal Server Error", err.Error())
}

func TestPostMessageRequiresConversationID(t *testing.T) {
	client := New("http://127.0.0.1:0")
	_, err := client.PostMessage(context.Background(), " ", "hi")
	require.Error(t, err)
}

func TestNewDefaultsBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, New("").BaseURL())
	assert.Equal(t, "http://x.io", New(" http://x.io/ ").BaseURL())
}

func TestDecodeReplyShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		kind ReplyKind
		text string
	}{
		{"array last wins", `{"response":[{"content":"A"},{"content":"B"}]}`, ReplyText, "B"},
		{"array last without content", `{"response":[{"content":"A"},{"role":"x"}]}`, ReplyUnrecognized, ""},
		{"empty array", `{"response":[]}`, ReplyUnrecognized, ""},
		{"object assistant_message first", `{"response":{"content":"c","message":"m","assistant_message":"am"}}`, ReplyText, "am"},
		{"object message before content", `{"response":{"content":"c","message":"m"}}`, ReplyText, "m"},
		{"object content", `{"response":{"content":"c"}}`, ReplyText, "c"},
		{"object skips empty field", `{"response":{"message":"","content":"c"}}`, ReplyText, "c"},
		{"object fallback json", `{"response": {"foo": 1, "bar": [1, 2]}}`, ReplyText, `{"foo":1,"bar":[1,2]}`},
		{"string", `{"response":"plain"}`, ReplyText, "plain"},
		{"number", `{"response":7}`, ReplyText, "7"},
		{"error field", `{"error":"quota exceeded"}`, ReplyError, "quota exceeded"},
		{"response wins over error", `{"response":"ok","error":"ignored"}`, ReplyText, "ok"},
		{"empty string falls to error", `{"response":"","error":"bad"}`, ReplyError, "bad"},
		{"no known field", `{"data":"x"}`, ReplyUnrecognized, ""},
		{"not json", `<html>hi</html>`, ReplyUnrecognized, ""},
		{"bare array", `[1,2]`, ReplyUnrecognized, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reply := DecodeReply([]byte(tc.body))
			assert.Equal(t, tc.kind, reply.Kind)
			assert.Equal(t, tc.text, reply.Text)
			assert.Equal(t, tc.body, reply.Raw)
		})
	}
}

func TestReplyDisplay(t *testing.T) {
	assert.Equal(t, "hi", Reply{Kind: ReplyText, Text: "hi"}.Display())
	assert.Equal(t, "Error: quota", Reply{Kind: ReplyError, Text: "quota"}.Display())
	assert.Equal(t, UnexpectedFormatText, Reply{}.Display())
}
