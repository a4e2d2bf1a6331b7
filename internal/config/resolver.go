// Package config resolves voicelog settings from defaults, the YAML config
// file, the environment and CLI flags, and sets up logging.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults. The components fall back to the same values when
// constructed without configuration; DefaultHTTPAddr is where `voicelog
// serve` listens.
const (
	DefaultDBPath           = "~/.voicelog/voicelog.db"
	DefaultLLM              = "openai/gpt-4o-mini"
	DefaultASRModel         = "whisper-1"
	DefaultASRBaseURL       = "https://api.openai.com/v1"
	DefaultTimezone         = "Asia/Kolkata"
	DefaultConfirmThreshold = 0.7
	DefaultCacheTTL         = 120 * time.Second
	DefaultHTTPAddr         = "127.0.0.1:8088"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath  string
	CLILLM      string
	CLIDBPath   string
	CLITimezone string
	CLIAddr     string
	CLIVerbose  bool
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath           ResolvedValue `json:"db_path"`
	LLM              ResolvedValue `json:"llm"`
	ASRModel         ResolvedValue `json:"asr_model"`
	ASRBaseURL       ResolvedValue `json:"asr_base_url"`
	Timezone         ResolvedValue `json:"timezone"`
	ConfirmThreshold ResolvedValue `json:"confirm_threshold"`
	CacheTTL         ResolvedValue `json:"cache_ttl"`
	LogLevel         ResolvedValue `json:"log_level"`
	LogFile          ResolvedValue `json:"log_file"`
	HTTPAddr         ResolvedValue `json:"http_addr"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	LLM    struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"llm"`
	ASR struct {
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"asr"`
	Timezone         string `yaml:"timezone"`
	ConfirmThreshold any    `yaml:"confirm_threshold"`
	CacheTTL         any    `yaml:"cache_ttl"`
	Log              struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".voicelog", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}
	def := func(dst *ResolvedValue, v string) {
		*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
	}
	def(&out.DBPath, DefaultDBPath)
	def(&out.LLM, DefaultLLM)
	def(&out.ASRModel, DefaultASRModel)
	def(&out.ASRBaseURL, DefaultASRBaseURL)
	def(&out.Timezone, DefaultTimezone)
	def(&out.ConfirmThreshold, cast.ToString(DefaultConfirmThreshold))
	def(&out.CacheTTL, DefaultCacheTTL.String())
	def(&out.LogLevel, "info")
	def(&out.HTTPAddr, DefaultHTTPAddr)

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LLM, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.ASRModel, cfg.ASR.Model, SourceConfig, path)
		apply(&out.ASRBaseURL, cfg.ASR.BaseURL, SourceConfig, path)
		apply(&out.Timezone, cfg.Timezone, SourceConfig, path)
		if cfg.ConfirmThreshold != nil {
			apply(&out.ConfirmThreshold, cast.ToString(cfg.ConfirmThreshold), SourceConfig, path)
		}
		if cfg.CacheTTL != nil {
			apply(&out.CacheTTL, cast.ToString(cfg.CacheTTL), SourceConfig, path)
		}
		apply(&out.LogLevel, cfg.Log.Level, SourceConfig, path)
		apply(&out.LogFile, cfg.Log.File, SourceConfig, path)
		apply(&out.HTTPAddr, cfg.HTTP.Addr, SourceConfig, path)

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			p := providerOf(cfg.LLM.Provider)
			if p == "" {
				p = "default"
			}
			out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.DBPath, "VOICELOG_DB")
	applyEnv(&out.LLM, "VOICELOG_LLM")
	applyEnv(&out.ASRModel, "VOICELOG_ASR_MODEL")
	applyEnv(&out.ASRBaseURL, "VOICELOG_ASR_URL")
	applyEnv(&out.Timezone, "VOICELOG_TZ")
	applyEnv(&out.ConfirmThreshold, "VOICELOG_CONFIRM_THRESHOLD")
	applyEnv(&out.CacheTTL, "VOICELOG_CACHE_TTL")
	applyEnv(&out.LogLevel, "VOICELOG_LOG_LEVEL")
	applyEnv(&out.LogFile, "VOICELOG_LOG_FILE")
	applyEnv(&out.HTTPAddr, "VOICELOG_HTTP_ADDR")

	// GOOGLE_API_KEY is listed first so GEMINI_API_KEY wins.
	for _, e := range []struct{ env, provider string }{
		{"OPENROUTER_API_KEY", "openrouter"},
		{"OPENAI_API_KEY", "openai"},
		{"GOOGLE_API_KEY", "google"},
		{"GEMINI_API_KEY", "google"},
		{"DEEPSEEK_API_KEY", "deepseek"},
	} {
		if v := strings.TrimSpace(os.Getenv(e.env)); v != "" {
			out.LLMKeys[e.provider] = ResolvedValue{Value: v, Source: SourceEnv, From: e.env}
		}
	}

	apply(&out.LLM, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.Timezone, opts.CLITimezone, SourceCLI, "--tz")
	apply(&out.HTTPAddr, opts.CLIAddr, SourceCLI, "--addr")
	if opts.CLIVerbose {
		apply(&out.LogLevel, "debug", SourceCLI, "--verbose")
	}

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.LogFile.Value != "" {
		out.LogFile.Value = expandUserPath(out.LogFile.Value)
	}

	return out, nil
}

// APIKeyForProvider returns the key for a provider name or provider/model
// flag, falling back to the provider-less config key.
func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

// Threshold returns the confirmation threshold. Values outside (0, 1] fall
// back to the default.
func (r ResolvedConfig) Threshold() float64 {
	v, err := cast.ToFloat64E(r.ConfirmThreshold.Value)
	if err != nil || v <= 0 || v > 1 {
		return DefaultConfirmThreshold
	}
	return v
}

// CacheTTLDuration returns the analyzer cache TTL. A bare number is seconds;
// zero disables the cache.
func (r ResolvedConfig) CacheTTLDuration() time.Duration {
	raw := strings.TrimSpace(r.CacheTTL.Value)
	if n, err := cast.ToIntE(raw); err == nil {
		if n < 0 {
			return DefaultCacheTTL
		}
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(raw)
	if err != nil || d < 0 {
		return DefaultCacheTTL
	}
	return d
}

// Location loads the reference timezone.
func (r ResolvedConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(r.Timezone.Value)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", r.Timezone.Value, err)
	}
	return loc, nil
}

// Level parses the log level, defaulting to info.
func (r ResolvedConfig) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(r.LogLevel.Value))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Redacted returns a copy safe to print: API keys keep only their last four
// characters.
func (r ResolvedConfig) Redacted() ResolvedConfig {
	out := r
	out.LLMKeys = make(map[string]ResolvedValue, len(r.LLMKeys))
	for k, v := range r.LLMKeys {
		v.Value = redact(v.Value)
		out.LLMKeys[k] = v
	}
	return out
}

func redact(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
