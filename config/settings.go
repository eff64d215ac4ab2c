// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Settings holds all application configuration.
type Settings struct {
	LLM   LLMConfig
	Agent AgentConfig
}

// LLMConfig holds backend provider configuration.
type LLMConfig struct {
	Provider      string
	Protocol      string
	Model         string
	APIKey        string
	BaseURL       string
	MaxTokens     int
	Temperature   float64
	ContextLength int
}

// AgentConfig holds trajectory execution configuration.
type AgentConfig struct {
	MaxRetries       int
	CompactThreshold int
	HistoryPath      string
	MCPServers       []string
}

// providerInfo holds configuration for a specific backend provider.
type providerInfo struct {
	protocol      string
	modelEnv      string
	defaultModel  string
	apiKeyEnv     string
	baseURLEnv    string
	contextLength int
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"responses", "OPENAI_MODEL", "gpt-5", "OPENAI_API_KEY", "OPENAI_BASE_URL", 272000},
	"anthropic": {"messages", "ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", 200000},
	"deepseek":  {"chat", "DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY", "DEEPSEEK_BASE_URL", 128000},
	"openai-compatible": {
		"chat", "LLM_MODEL", "", "LLM_API_KEY", "LLM_BASE_URL", 128000,
	},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"gpt":    "openai",
	"local":  "openai-compatible",
}

// New creates settings for the specified provider, loading values from environment variables.
// Returns an error if the provider is unknown, its API key is unset, or
// environment variables contain invalid values.
func New(provider string) (Settings, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	apiKey := os.Getenv(info.apiKeyEnv)
	if apiKey == "" {
		return Settings{}, fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}

	model := os.Getenv(info.modelEnv)
	if model == "" {
		model = info.defaultModel
	}
	if model == "" {
		return Settings{}, fmt.Errorf("%s environment variable not set", info.modelEnv)
	}

	maxTokens, err := getEnvInt("LLM_MAX_TOKENS", 8192)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}

	contextLength, err := getEnvInt("LLM_CONTEXT_LENGTH", info.contextLength)
	if err != nil {
		return Settings{}, err
	}

	maxRetries, err := getEnvInt("AGENT_MAX_RETRIES", 8)
	if err != nil {
		return Settings{}, err
	}

	// Compaction triggers at half the context by default, leaving room for
	// the conversation to keep growing after a summary.
	compactThreshold, err := getEnvInt("AGENT_COMPACT_THRESHOLD", contextLength/2)
	if err != nil {
		return Settings{}, err
	}

	historyPath, err := getEnvPath("AGENT_HISTORY_PATH", DefaultHistoryPath())
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		LLM: LLMConfig{
			Provider:      provider,
			Protocol:      info.protocol,
			Model:         model,
			APIKey:        apiKey,
			BaseURL:       os.Getenv(info.baseURLEnv),
			MaxTokens:     maxTokens,
			Temperature:   temperature,
			ContextLength: contextLength,
		},
		Agent: AgentConfig{
			MaxRetries:       maxRetries,
			CompactThreshold: compactThreshold,
			HistoryPath:      historyPath,
			MCPServers:       getEnvList("AGENT_MCP_SERVERS"),
		},
	}, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// DefaultHistoryPath places the session database under the user's home
// directory, falling back to the working directory when home is unknown.
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "weft.db"
	}
	return filepath.Join(home, ".weft", "history.db")
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvPath(key, defaultVal string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		val = defaultVal
	}
	abs, err := filepath.Abs(val)
	if err != nil {
		return "", fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return abs, nil
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
