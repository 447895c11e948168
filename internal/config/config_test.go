package config

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/panda-go/internal/logger"
)

const sampleConfig = `
llm:
  base_url: https://api.example.com/v1
  api_key: sk-live
  model: gpt-4o
  max_tokens: 64
  read_timeout: 5s
server:
  host: 127.0.0.1
  port: "9090"
storage:
  driver: bolt
  path: /tmp/panda.bolt
host:
  granted_permissions: [call_phone]
  mcp_server:
    name: phone
    type: stdio
    command: ./mock
    args: ["--flag"]
    env:
      FOO: bar
preferences:
  tts_enabled: false
  assistant_name: Bamboo
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	if _, err := tmp.WriteString(body); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmp.Close()
	return tmp.Name()
}

// TestLoad_File verifies that Load unmarshals every section of a config file.
func TestLoad_File(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "https://api.example.com/v1", cfg.LLM.BaseURL)
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.Equal(t, 64, cfg.LLM.MaxTokens)
	require.Equal(t, 5*time.Second, cfg.LLM.ReadTimeout)
	require.Equal(t, 30*time.Second, cfg.LLM.ConnectTimeout)
	require.InDelta(t, 0.7, cfg.LLM.Temperature, 0.0001)
	require.True(t, cfg.LLM.Configured())

	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "bolt", cfg.Storage.Driver)
	require.Equal(t, []string{"call_phone"}, cfg.Host.GrantedPermissions)

	s := cfg.Host.MCPServer
	require.NotNil(t, s)
	require.Equal(t, ClientTypeStdio, s.Type)
	require.Equal(t, "./mock", s.Command)
	require.Equal(t, []string{"--flag"}, s.Args)
	require.Equal(t, "bar", s.Env["foo"])

	require.False(t, cfg.Preferences.TTSEnabled)
	require.Equal(t, "Bamboo", cfg.Preferences.AssistantName)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, UnconfiguredAPIKey, cfg.LLM.APIKey)
	require.False(t, cfg.LLM.Configured())
	require.Equal(t, "gpt-3.5-turbo", cfg.LLM.Model)
	require.Equal(t, 150, cfg.LLM.MaxTokens)
	require.Equal(t, DefaultSystemPrompt, cfg.LLM.SystemPrompt)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Nil(t, cfg.Host.MCPServer)
	require.True(t, cfg.Preferences.TTSEnabled)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))
	t.Setenv("PANDA_LLM_MODEL", "gpt-4o-mini")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/does/not/exist.yaml")

	_, err := Load()
	require.Error(t, err)
}

func TestLLMConfig_Configured(t *testing.T) {
	require.False(t, LLMConfig{}.Configured())
	require.False(t, LLMConfig{APIKey: "  "}.Configured())
	require.False(t, LLMConfig{APIKey: UnconfiguredAPIKey}.Configured())
	require.True(t, LLMConfig{APIKey: "sk-abc"}.Configured())
}

func TestPreferences_Update(t *testing.T) {
	p := NewPreferences(PreferencesConfig{TTSEnabled: true})
	require.True(t, p.TTSEnabled())
	require.Equal(t, "Panda AI", p.AssistantName())

	p.Update(PreferencesConfig{TTSEnabled: false, AssistantName: "Bamboo"})
	require.False(t, p.TTSEnabled())
	require.Equal(t, "Bamboo", p.AssistantName())
}

// syncBuffer is a bytes.Buffer safe for the watcher goroutine to write to.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// TestWatch_ReloadsPreferences rewrites the preferences block of a loaded
// file and expects the callback to see the new values. An unreadable block
// is logged and skipped.
func TestWatch_ReloadsPreferences(t *testing.T) {
	var logs syncBuffer
	logger.SetOutput(&logs, "json")
	t.Cleanup(func() { logger.SetOutput(os.Stdout, "json") })

	path := writeConfig(t, sampleConfig)
	t.Setenv("CONFIG_PATH", path)
	cfg, err := Load()
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		last *PreferencesConfig
	)
	Watch(cfg, func(p PreferencesConfig) {
		mu.Lock()
		last = &p
		mu.Unlock()
	})

	broken := strings.Replace(sampleConfig, "preferences:\n  tts_enabled: false\n  assistant_name: Bamboo\n", "preferences: nope\n", 1)
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o600))
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "ignoring unreadable preferences")
	}, 5*time.Second, 20*time.Millisecond)

	updated := strings.Replace(sampleConfig, "assistant_name: Bamboo", "assistant_name: Bao", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last != nil && last.AssistantName == "Bao"
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.False(t, last.TTSEnabled)
}

func TestWatch_NoFileIsNoop(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	Watch(cfg, func(PreferencesConfig) { t.Fatal("unexpected reload") })
	Watch(nil, func(PreferencesConfig) { t.Fatal("unexpected reload") })
}
