package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/comigor/panda-go/internal/logger"
)

// UnconfiguredAPIKey is the placeholder credential shipped in the default
// configuration. The fallback responder treats it like a missing key.
const UnconfiguredAPIKey = "sk-YOUR-OPENAI-API-KEY-HERE"

// DefaultSystemPrompt is the persona sent with every fallback request.
const DefaultSystemPrompt = `You are Panda AI by Max, a friendly and helpful voice assistant.
Your personality is warm, cheerful, and supportive.
You help users with tasks like opening apps, searching the web, making calls, and answering questions.
Keep responses concise and natural, as they will be spoken aloud.
When users ask you to do something, acknowledge it warmly and confirm the action.
Examples of responses:
- "Opening YouTube for you!"
- "Sure! Let me search that for you."
- "I'd be happy to help with that!"`

// Config holds the application configuration
type Config struct {
	LLM         LLMConfig         `mapstructure:"llm"`
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Host        HostConfig        `mapstructure:"host"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Log         LogConfig         `mapstructure:"log"`

	v *viper.Viper
}

// LLMConfig holds the chat-completion configuration
type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	Temperature    float32       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	SystemPrompt   string        `mapstructure:"system_prompt"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// Configured reports whether a real credential is present.
func (c LLMConfig) Configured() bool {
	key := strings.TrimSpace(c.APIKey)
	return key != "" && key != UnconfiguredAPIKey
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// StorageConfig selects the conversation store backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, bolt or memory
	Path   string `mapstructure:"path"`
}

// ClientType is the transport used to reach an MCP server.
type ClientType string

const (
	ClientTypeSSE            ClientType = "sse"
	ClientTypeStreamableHTTP ClientType = "streamable_http"
	ClientTypeStdio          ClientType = "stdio"
)

// MCPServerConfig describes how to reach an MCP server.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    ClientType        `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Headers map[string]string `mapstructure:"headers"`
}

// HostConfig describes the capability surface the assistant drives.
// Without an MCP server the local host is used.
type HostConfig struct {
	MCPServer          *MCPServerConfig `mapstructure:"mcp_server"`
	GrantedPermissions []string         `mapstructure:"granted_permissions"`
	InstalledApps      []string         `mapstructure:"installed_apps"`
}

// PreferencesConfig holds user-facing toggles.
type PreferencesConfig struct {
	TTSEnabled    bool   `mapstructure:"tts_enabled"`
	AssistantName string `mapstructure:"assistant_name"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", UnconfiguredAPIKey)
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 150)
	v.SetDefault("llm.system_prompt", DefaultSystemPrompt)
	v.SetDefault("llm.connect_timeout", 30*time.Second)
	v.SetDefault("llm.read_timeout", 30*time.Second)
	v.SetDefault("llm.write_timeout", 30*time.Second)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "panda.db")

	v.SetDefault("preferences.tts_enabled", true)
	v.SetDefault("preferences.assistant_name", "Panda AI")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load loads the configuration from CONFIG_PATH, or config.yaml in the
// working directory. A missing default file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PANDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.v = v

	return &config, nil
}

// Watch re-reads preferences whenever the backing config file changes and
// hands them to onChange. It is a no-op when no file was loaded.
func Watch(cfg *Config, onChange func(PreferencesConfig)) {
	if cfg == nil || cfg.v == nil || cfg.v.ConfigFileUsed() == "" {
		return
	}
	cfg.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		var prefs PreferencesConfig
		if err := cfg.v.UnmarshalKey("preferences", &prefs); err != nil {
			logger.L.Warn("ignoring unreadable preferences", "file", e.Name, "error", err)
			return
		}
		onChange(prefs)
	})
	cfg.v.WatchConfig()
}

// Preferences is a concurrency-safe view of PreferencesConfig that can be
// swapped at runtime.
type Preferences struct {
	mu  sync.RWMutex
	cur PreferencesConfig
}

// NewPreferences returns Preferences seeded with p.
func NewPreferences(p PreferencesConfig) *Preferences {
	return &Preferences{cur: p}
}

// Update replaces the current preferences.
func (p *Preferences) Update(next PreferencesConfig) {
	p.mu.Lock()
	p.cur = next
	p.mu.Unlock()
}

// TTSEnabled reports whether replies should be spoken.
func (p *Preferences) TTSEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cur.TTSEnabled
}

// AssistantName returns the display name of the assistant.
func (p *Preferences) AssistantName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cur.AssistantName == "" {
		return "Panda AI"
	}
	return p.cur.AssistantName
}
