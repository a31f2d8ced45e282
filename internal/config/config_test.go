package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/widget/internal/format"
	"github.com/zhouzirui/z-tavern/widget/pkg/logging"
)

// unsetEnv clears key for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "STUB_PORT", "CHAT_BACKEND_URL", "CHAT_REQUEST_TIMEOUT", "WIDGET_SEND_POLICY",
		"FORMAT_ESCAPE", "LOG_FORMAT", "AI_HISTORY_LIMIT", "WIDGET_DISCLAIMER_KEY", "WIDGET_DISCLAIMER_URL")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ":8081", cfg.Stub.Addr)
	assert.Equal(t, "https://nyansabackb5.onrender.com", cfg.Backend.BaseURL)
	assert.Zero(t, cfg.Backend.RequestTimeout)
	assert.Equal(t, "disclaimerAgreed", cfg.Widget.DisclaimerKey)
	assert.Equal(t, "https://chatbotdisclaimer.onrender.com", cfg.Widget.DisclaimerURL)
	assert.Equal(t, "queue", cfg.Widget.SendPolicy)
	assert.Equal(t, format.EscapeHTML, cfg.Format.Mode)
	assert.Equal(t, logging.FormatAuto, cfg.Log.Format)
	assert.Equal(t, 10, cfg.AI.HistoryLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CHAT_BACKEND_URL", " http://localhost:8081/ ")
	t.Setenv("CHAT_REQUEST_TIMEOUT", "45s")
	t.Setenv("WIDGET_SEND_POLICY", "Reject")
	t.Setenv("FORMAT_ESCAPE", "strip")
	t.Setenv("ARK_TEMPERATURE", "0.3")
	t.Setenv("ARK_MAX_TOKENS", "512")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "http://localhost:8081", cfg.Backend.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Backend.RequestTimeout)
	assert.Equal(t, "reject", cfg.Widget.SendPolicy)
	assert.Equal(t, format.StripHTML, cfg.Format.Mode)
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.3, *cfg.AI.Temperature, 1e-9)
	require.NotNil(t, cfg.AI.MaxTokens)
	assert.Equal(t, 512, *cfg.AI.MaxTokens)
	assert.Nil(t, cfg.AI.TopP)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                 "80 80",
		"FORMAT_ESCAPE":        "sanitize",
		"WIDGET_SEND_POLICY":   "drop",
		"CHAT_REQUEST_TIMEOUT": "soon",
		"ARK_TOP_P":            "high",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestListenAddr(t *testing.T) {
	addr, err := listenAddr("3000")
	require.NoError(t, err)
	assert.Equal(t, ":3000", addr)

	addr, err = listenAddr(":3000")
	require.NoError(t, err)
	assert.Equal(t, ":3000", addr)
}

func TestAIConfigEnabled(t *testing.T) {
	assert.False(t, AIConfig{}.Enabled())
	assert.True(t, AIConfig{Model: "m", APIKey: "k"}.Enabled())
	assert.True(t, AIConfig{Model: "m", AccessKey: "a", SecretKey: "s"}.Enabled())
	assert.False(t, AIConfig{APIKey: "k"}.Enabled())
}
