// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/rigrun-answer/internal/cloud"
	"github.com/jeranaias/rigrun-answer/internal/logging"
	"github.com/jeranaias/rigrun-answer/internal/ollama"
	"github.com/jeranaias/rigrun-answer/internal/pipeline"
	"github.com/jeranaias/rigrun-answer/internal/router"
	"github.com/jeranaias/rigrun-answer/internal/sources"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
	"github.com/jeranaias/rigrun-answer/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Completion providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// Config represents the complete rigrun-answer configuration.
type Config struct {
	Assistant AssistantConfig `toml:"assistant" json:"assistant"`
	LLM       LLMConfig       `toml:"llm" json:"llm"`
	Models    ModelsConfig    `toml:"models" json:"models"`
	Routing   RoutingConfig   `toml:"routing" json:"routing"`
	Backends  BackendsConfig  `toml:"backends" json:"backends"`
	Templates TemplatesConfig `toml:"templates" json:"templates"`
	Server    ServerConfig    `toml:"server" json:"server"`
	Telemetry TelemetryConfig `toml:"telemetry" json:"telemetry"`
	Log       LogConfig       `toml:"log" json:"log"`

	// Pricing maps model identifiers to USD per million tokens.
	Pricing telemetry.Pricing `toml:"pricing" json:"pricing,omitempty"`
}

// AssistantConfig holds the assistant identity and fixed replies.
type AssistantConfig struct {
	Name string `toml:"name" json:"name"`
	// SiteURL prefixes relative links in casual replies.
	SiteURL string `toml:"site_url" json:"site_url"`
	// CasualApology answers a casual question the routing model left
	// without a reply. Apology answers a failed request.
	CasualApology     string  `toml:"casual_apology" json:"casual_apology"`
	Apology           string  `toml:"apology" json:"apology"`
	SupportApology    string  `toml:"support_apology" json:"support_apology"`
	SupportSuggestion string  `toml:"support_suggestion" json:"support_suggestion"`
	SuccessConfidence float64 `toml:"success_confidence" json:"success_confidence"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	// Provider is "openrouter" (default) or "ollama".
	Provider      string `toml:"provider" json:"provider"`
	OpenRouterKey string `toml:"openrouter_key" json:"openrouter_key"`
	OpenRouterURL string `toml:"openrouter_url" json:"openrouter_url"`
	OllamaURL     string `toml:"ollama_url" json:"ollama_url"`
	TimeoutSecs   int    `toml:"timeout_secs" json:"timeout_secs"`
	MaxRetries    int    `toml:"max_retries" json:"max_retries"`
	// RequestsPerSecond paces outgoing calls. Zero disables pacing.
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst"`
	// OllamaKeepAlive is how long Ollama keeps models loaded, e.g. "10m".
	OllamaKeepAlive string `toml:"ollama_keep_alive" json:"ollama_keep_alive"`
}

// ModelsConfig names the model used at each pipeline step.
type ModelsConfig struct {
	Routing              string  `toml:"routing" json:"routing"`
	RoutingTemperature   float64 `toml:"routing_temperature" json:"routing_temperature"`
	Synthesis            string  `toml:"synthesis" json:"synthesis"`
	SynthesisTemperature float64 `toml:"synthesis_temperature" json:"synthesis_temperature"`
	Title                string  `toml:"title" json:"title"`
	TitleTemperature     float64 `toml:"title_temperature" json:"title_temperature"`
}

// RoutingConfig tunes the routing prompt.
type RoutingConfig struct {
	DatabaseKeywords []string `toml:"database_keywords" json:"database_keywords"`
	DocumentKeywords []string `toml:"document_keywords" json:"document_keywords"`
	HistoryTurns     int      `toml:"history_turns" json:"history_turns"`
}

// BackendsConfig locates the structured-data and document backends.
// An empty URL leaves that source unregistered.
type BackendsConfig struct {
	DatabaseURL string `toml:"database_url" json:"database_url"`
	DocumentURL string `toml:"document_url" json:"document_url"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
	Token       string `toml:"token" json:"token"`
}

// TemplatesConfig selects the query-template source. File wins over DBPath
// when both are set.
type TemplatesConfig struct {
	DBPath string `toml:"db_path" json:"db_path"`
	File   string `toml:"file" json:"file"`
	// Watch reloads File when it changes.
	Watch bool `toml:"watch" json:"watch"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`
	// BearerToken enables authentication when set.
	BearerToken    string   `toml:"bearer_token" json:"bearer_token"`
	AllowedIPs     []string `toml:"allowed_ips" json:"allowed_ips"`
	CORSOrigins    []string `toml:"cors_origins" json:"cors_origins"`
	RateLimitRPS   float64  `toml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst" json:"rate_limit_burst"`
}

// TelemetryConfig configures cost tracking.
type TelemetryConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Dir     string `toml:"dir" json:"dir"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with all defaults applied.
func Default() *Config {
	dir := defaultDir()
	agent := pipeline.DefaultAgentConfig()

	return &Config{
		Assistant: AssistantConfig{
			Name:              "Assistant",
			CasualApology:     router.DefaultApology,
			Apology:           agent.Apology,
			SupportApology:    agent.SupportApology,
			SupportSuggestion: agent.SupportSuggestion,
			SuccessConfidence: agent.SuccessConfidence,
		},
		LLM: LLMConfig{
			Provider:      ProviderOpenRouter,
			OpenRouterURL: cloud.DefaultOpenRouterURL,
			OllamaURL:     ollama.DefaultBaseURL,
			TimeoutSecs:   int(cloud.DefaultTimeout / time.Second),
			MaxRetries:    cloud.DefaultMaxRetries,
		},
		Models: ModelsConfig{
			Routing:              router.DefaultModel,
			RoutingTemperature:   router.DefaultTemperature,
			Synthesis:            sources.DefaultSynthesisModel,
			SynthesisTemperature: sources.DefaultSynthesisTemperature,
			Title:                pipeline.DefaultTitleModel,
			TitleTemperature:     pipeline.DefaultTitleTemperature,
		},
		Routing: RoutingConfig{
			DatabaseKeywords: append([]string(nil), router.DefaultDatabaseKeywords...),
			DocumentKeywords: append([]string(nil), router.DefaultDocumentKeywords...),
			HistoryTurns:     router.DefaultHistoryTurns,
		},
		Backends: BackendsConfig{
			TimeoutSecs: 90,
		},
		Templates: TemplatesConfig{
			DBPath: filepath.Join(dir, "templates.db"),
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8787,
			AllowedIPs:     []string{},
			CORSOrigins:    []string{"http://localhost", "http://localhost:3000"},
			RateLimitRPS:   5,
			RateLimitBurst: 20,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			Dir:     filepath.Join(dir, "costs"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
	}
}

// SetDefaults fills zero values with defaults. Zero temperatures are
// treated as unset.
func (c *Config) SetDefaults() {
	d := Default()

	setString := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	setInt := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}
	setFloat := func(dst *float64, def float64) {
		if *dst == 0 {
			*dst = def
		}
	}

	setString(&c.Assistant.Name, d.Assistant.Name)
	setString(&c.Assistant.CasualApology, d.Assistant.CasualApology)
	setString(&c.Assistant.Apology, d.Assistant.Apology)
	setString(&c.Assistant.SupportApology, d.Assistant.SupportApology)
	setString(&c.Assistant.SupportSuggestion, d.Assistant.SupportSuggestion)
	setFloat(&c.Assistant.SuccessConfidence, d.Assistant.SuccessConfidence)

	setString(&c.LLM.Provider, d.LLM.Provider)
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	setString(&c.LLM.OpenRouterURL, d.LLM.OpenRouterURL)
	setString(&c.LLM.OllamaURL, d.LLM.OllamaURL)
	setInt(&c.LLM.TimeoutSecs, d.LLM.TimeoutSecs)
	setInt(&c.LLM.MaxRetries, d.LLM.MaxRetries)

	setString(&c.Models.Routing, d.Models.Routing)
	setFloat(&c.Models.RoutingTemperature, d.Models.RoutingTemperature)
	setString(&c.Models.Synthesis, d.Models.Synthesis)
	setFloat(&c.Models.SynthesisTemperature, d.Models.SynthesisTemperature)
	setString(&c.Models.Title, d.Models.Title)
	setFloat(&c.Models.TitleTemperature, d.Models.TitleTemperature)

	if c.Routing.DatabaseKeywords == nil {
		c.Routing.DatabaseKeywords = d.Routing.DatabaseKeywords
	}
	if c.Routing.DocumentKeywords == nil {
		c.Routing.DocumentKeywords = d.Routing.DocumentKeywords
	}
	setInt(&c.Routing.HistoryTurns, d.Routing.HistoryTurns)

	setInt(&c.Backends.TimeoutSecs, d.Backends.TimeoutSecs)

	setString(&c.Server.Host, d.Server.Host)
	setInt(&c.Server.Port, d.Server.Port)
	setFloat(&c.Server.RateLimitRPS, d.Server.RateLimitRPS)
	setInt(&c.Server.RateLimitBurst, d.Server.RateLimitBurst)

	setString(&c.Telemetry.Dir, d.Telemetry.Dir)

	setString(&c.Log.Level, d.Log.Level)
	setString(&c.Log.Format, d.Log.Format)
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigrun-answer configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigrun-answer"), nil
}

func defaultDir() string {
	dir, err := ConfigDir()
	if err != nil {
		return ".rigrun-answer"
	}
	return dir
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens a config file to 0600; it holds API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default location. It tries TOML, then
// JSON, then falls back to defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	for _, locate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := locate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	if dir, err := ConfigDir(); err == nil {
		if err := LoadDotEnv(dir); err != nil {
			return nil, err
		}
	}
	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv reads dir/.env into the process environment when the file
// exists. Variables already set are left alone.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromPath loads configuration from path. Files ending in .json are
// decoded as JSON, everything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := LoadDotEnv(filepath.Dir(path)); err != nil {
		return nil, err
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadTOML decodes a TOML file over cfg. Undecoded keys are an error so
// that typos do not pass silently.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes cfg to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# rigrun-answer configuration file\n")
	b.WriteString("# Generated by rigrun-answer - edit with care\n\n")

	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.WriteFileAtomic(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg to path as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.WriteFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every field and returns ValidateErrors listing all
// problems, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Assistant
	if c.Assistant.SiteURL != "" && !isHTTPURL(c.Assistant.SiteURL) {
		add("assistant.site_url", "invalid URL %q", c.Assistant.SiteURL)
	}
	if c.Assistant.SuccessConfidence < 0 || c.Assistant.SuccessConfidence > 1 {
		add("assistant.success_confidence", "must be between 0 and 1, got %g", c.Assistant.SuccessConfidence)
	}

	// LLM
	switch strings.ToLower(c.LLM.Provider) {
	case ProviderOpenRouter:
		if c.LLM.OpenRouterKey != "" && !cloud.ValidateAPIKey(c.LLM.OpenRouterKey) {
			add("llm.openrouter_key", "key does not look like an OpenRouter key")
		}
	case ProviderOllama:
	default:
		add("llm.provider", "invalid provider %q, must be one of: openrouter, ollama", c.LLM.Provider)
	}
	if !isHTTPURL(c.LLM.OpenRouterURL) {
		add("llm.openrouter_url", "invalid URL %q", c.LLM.OpenRouterURL)
	}
	if !isHTTPURL(c.LLM.OllamaURL) {
		add("llm.ollama_url", "invalid URL %q", c.LLM.OllamaURL)
	}
	if ka := c.LLM.OllamaKeepAlive; ka != "" {
		if _, err := time.ParseDuration(ka); err != nil {
			if _, err := strconv.Atoi(ka); err != nil {
				add("llm.ollama_keep_alive", "invalid duration %q", ka)
			}
		}
	}
	if c.LLM.TimeoutSecs < 1 || c.LLM.TimeoutSecs > 600 {
		add("llm.timeout_secs", "must be between 1 and 600, got %d", c.LLM.TimeoutSecs)
	}
	if c.LLM.MaxRetries < 1 || c.LLM.MaxRetries > 10 {
		add("llm.max_retries", "must be between 1 and 10, got %d", c.LLM.MaxRetries)
	}
	if c.LLM.RequestsPerSecond < 0 {
		add("llm.requests_per_second", "must not be negative")
	}
	if c.LLM.Burst < 0 {
		add("llm.burst", "must not be negative")
	}

	// Models
	for field, temp := range map[string]float64{
		"models.routing_temperature":   c.Models.RoutingTemperature,
		"models.synthesis_temperature": c.Models.SynthesisTemperature,
		"models.title_temperature":     c.Models.TitleTemperature,
	} {
		if temp < 0 || temp > 2 {
			add(field, "must be between 0 and 2, got %g", temp)
		}
	}

	// Routing
	if c.Routing.HistoryTurns < 0 || c.Routing.HistoryTurns > 50 {
		add("routing.history_turns", "must be between 0 and 50, got %d", c.Routing.HistoryTurns)
	}

	// Backends
	if c.Backends.DatabaseURL != "" && !isHTTPURL(c.Backends.DatabaseURL) {
		add("backends.database_url", "invalid URL %q", c.Backends.DatabaseURL)
	}
	if c.Backends.DocumentURL != "" && !isHTTPURL(c.Backends.DocumentURL) {
		add("backends.document_url", "invalid URL %q", c.Backends.DocumentURL)
	}
	if c.Backends.TimeoutSecs < 1 || c.Backends.TimeoutSecs > 600 {
		add("backends.timeout_secs", "must be between 1 and 600, got %d", c.Backends.TimeoutSecs)
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS <= 0 {
		add("server.rate_limit_rps", "must be positive")
	}
	if c.Server.RateLimitBurst < 1 {
		add("server.rate_limit_burst", "must be at least 1")
	}
	if c.Server.BearerToken != "" && len(c.Server.BearerToken) < 16 {
		add("server.bearer_token", "must be at least 16 characters")
	}

	// Log
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "%v", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		add("log.format", "invalid format %q, must be one of: json, console", c.Log.Format)
	}

	// Pricing
	for model, price := range c.Pricing {
		if price.PromptPerMillion < 0 || price.CompletionPerMillion < 0 {
			add("pricing."+model, "prices must not be negative")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - OPENROUTER_API_KEY: overrides llm.openrouter_key
//   - RIGRUN_ANSWER_PROVIDER: overrides llm.provider
//   - RIGRUN_ANSWER_DATABASE_URL: overrides backends.database_url
//   - RIGRUN_ANSWER_DOCUMENT_URL: overrides backends.document_url
//   - RIGRUN_ANSWER_PORT: overrides server.port
//   - RIGRUN_ANSWER_LOG_LEVEL: overrides log.level
//   - RIGRUN_ANSWER_TOKEN: overrides server.bearer_token
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.LLM.OpenRouterKey = key
	}
	if provider := os.Getenv("RIGRUN_ANSWER_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if u := os.Getenv("RIGRUN_ANSWER_DATABASE_URL"); u != "" {
		c.Backends.DatabaseURL = u
	}
	if u := os.Getenv("RIGRUN_ANSWER_DOCUMENT_URL"); u != "" {
		c.Backends.DocumentURL = u
	}
	if port := os.Getenv("RIGRUN_ANSWER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if level := os.Getenv("RIGRUN_ANSWER_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if token := os.Getenv("RIGRUN_ANSWER_TOKEN"); token != "" {
		c.Server.BearerToken = token
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "server.port").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g. "server.port").
// String values are converted to the field type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets field from value, converting strings to the field type.
// Comma-separated strings fill string slices.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %w", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				items := []string{}
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Keys returns every scalar configuration key in dot notation.
func Keys() []string {
	return []string{
		"assistant.name",
		"assistant.site_url",
		"assistant.casual_apology",
		"assistant.apology",
		"assistant.support_apology",
		"assistant.support_suggestion",
		"assistant.success_confidence",
		"llm.provider",
		"llm.openrouter_key",
		"llm.openrouter_url",
		"llm.ollama_url",
		"llm.ollama_keep_alive",
		"llm.timeout_secs",
		"llm.max_retries",
		"llm.requests_per_second",
		"llm.burst",
		"models.routing",
		"models.routing_temperature",
		"models.synthesis",
		"models.synthesis_temperature",
		"models.title",
		"models.title_temperature",
		"routing.database_keywords",
		"routing.document_keywords",
		"routing.history_turns",
		"backends.database_url",
		"backends.document_url",
		"backends.timeout_secs",
		"backends.token",
		"templates.db_path",
		"templates.file",
		"templates.watch",
		"server.host",
		"server.port",
		"server.bearer_token",
		"server.allowed_ips",
		"server.cors_origins",
		"server.rate_limit_rps",
		"server.rate_limit_burst",
		"telemetry.enabled",
		"telemetry.dir",
		"log.level",
		"log.format",
	}
}

// secretKeys are redacted by String and the config CLI.
var secretKeys = map[string]bool{
	"llm.openrouter_key":  true,
	"backends.token":      true,
	"server.bearer_token": true,
}

// IsSecret reports whether key holds a credential.
func IsSecret(key string) bool {
	return secretKeys[strings.ToLower(key)]
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	clone := *c

	cloneStrings := func(s []string) []string {
		if s == nil {
			return nil
		}
		return append([]string{}, s...)
	}
	clone.Routing.DatabaseKeywords = cloneStrings(c.Routing.DatabaseKeywords)
	clone.Routing.DocumentKeywords = cloneStrings(c.Routing.DocumentKeywords)
	clone.Server.AllowedIPs = cloneStrings(c.Server.AllowedIPs)
	clone.Server.CORSOrigins = cloneStrings(c.Server.CORSOrigins)

	if c.Pricing != nil {
		clone.Pricing = make(telemetry.Pricing, len(c.Pricing))
		for k, v := range c.Pricing {
			clone.Pricing[k] = v
		}
	}
	return &clone
}

// String renders the config as JSON with credentials redacted.
func (c *Config) String() string {
	safe := c.Clone()
	for key := range secretKeys {
		if v, err := safe.Get(key); err == nil && v != "" {
			_ = safe.Set(key, "[REDACTED]")
		}
	}

	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// LLMTimeout returns the completion timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSecs) * time.Second
}

// BackendTimeout returns the backend call timeout as a duration.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backends.TimeoutSecs) * time.Second
}
