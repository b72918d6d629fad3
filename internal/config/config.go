package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBackendURL 默认的顾问后端地址。
	DefaultBackendURL = "http://168.231.87.2:8000"
	// DefaultVoiceURL 语音对话代理的端点。
	DefaultVoiceURL = "wss://api.elevenlabs.io/v1/convai/conversation"
	// DefaultAgentID 顾问语音代理的标识。
	DefaultAgentID = "agent_3901kgmswk5ve9etvy9c1h4g2e40"
	// DefaultAuditEntryLimit 决策日志的展示上限，配置值超出时截断为该值。
	DefaultAuditEntryLimit = 20
)

// Config 聚合控制台的全部配置项。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Voice   VoiceConfig   `yaml:"voice"`
	Audit   AuditConfig   `yaml:"audit"`
	Session SessionConfig `yaml:"session"`
}

// ServerConfig 描述控制台 API 的监听配置。
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// BackendConfig 描述顾问后端配置。
type BackendConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
	// AuditKey 用于访问后端的 profiles 与 logs 接口，默认不设置。
	AuditKey string `yaml:"auditKey"`
}

// VoiceConfig 描述语音代理连接配置。
type VoiceConfig struct {
	URL               string `yaml:"url"`
	AgentID           string `yaml:"agentId"`
	APIKey            string `yaml:"apiKey"`
	MicrophoneEnabled bool   `yaml:"microphoneEnabled"`
}

// AuditConfig 控制审计面板。
type AuditConfig struct {
	EntryLimit      int    `yaml:"entryLimit"`
	RefreshSchedule string `yaml:"refreshSchedule"`
}

// SessionConfig 将对话固定到已有的后端会话。
type SessionConfig struct {
	ID string `yaml:"id"`
}

// Enabled 表示是否可以连接语音代理。
func (c VoiceConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.AgentID) != ""
}

// Default 返回内置的默认配置。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8090",
			AllowedOrigins: []string{"*"},
		},
		Backend: BackendConfig{
			BaseURL: DefaultBackendURL,
		},
		Voice: VoiceConfig{
			URL:               DefaultVoiceURL,
			AgentID:           DefaultAgentID,
			MicrophoneEnabled: true,
		},
		Audit: AuditConfig{
			EntryLimit: DefaultAuditEntryLimit,
		},
	}
}

// Load 依次从默认值、ADVISOR_CONFIG 指定的 YAML 文件（可选）和环境变量加载配置。
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("ADVISOR_CONFIG")); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyServerEnv(&cfg.Server); err != nil {
		return nil, err
	}
	if err := applyBackendEnv(&cfg.Backend); err != nil {
		return nil, err
	}
	if err := applyVoiceEnv(&cfg.Voice); err != nil {
		return nil, err
	}
	if err := applyAuditEnv(&cfg.Audit); err != nil {
		return nil, err
	}
	cfg.Session.ID = getEnvOrDefault("ADVISOR_SESSION_ID", cfg.Session.ID)

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyServerEnv 解析监听地址，PORT 可以是端口号、":port" 或 "host:port"。
func applyServerEnv(c *ServerConfig) error {
	if origins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		return nil
	}
	if strings.Contains(port, ":") {
		c.Addr = port
		return nil
	}
	if strings.Contains(port, " ") {
		return fmt.Errorf("invalid PORT value: %q", port)
	}
	c.Addr = ":" + port
	return nil
}

func applyBackendEnv(c *BackendConfig) error {
	c.BaseURL = strings.TrimRight(getEnvOrDefault("BACKEND_URL", c.BaseURL), "/")
	c.AuditKey = getEnvOrDefault("AUDIT_KEY", c.AuditKey)

	timeout, err := parseOptionalDurationEnv("BACKEND_TIMEOUT")
	if err != nil {
		return err
	}
	if timeout != nil {
		if *timeout < 0 {
			return fmt.Errorf("invalid BACKEND_TIMEOUT value %q: must not be negative", os.Getenv("BACKEND_TIMEOUT"))
		}
		c.Timeout = *timeout
	}
	return nil
}

func applyVoiceEnv(c *VoiceConfig) error {
	c.URL = getEnvOrDefault("VOICE_URL", c.URL)
	c.AgentID = getEnvOrDefault("VOICE_AGENT_ID", c.AgentID)
	c.APIKey = getEnvOrDefault("VOICE_API_KEY", c.APIKey)

	mic, err := parseBoolEnv("VOICE_MICROPHONE_ENABLED", c.MicrophoneEnabled)
	if err != nil {
		return err
	}
	c.MicrophoneEnabled = mic
	return nil
}

func applyAuditEnv(c *AuditConfig) error {
	limit, err := parseOptionalIntEnv("AUDIT_ENTRY_LIMIT")
	if err != nil {
		return err
	}
	if limit != nil {
		c.EntryLimit = *limit
	}
	if c.EntryLimit < 1 || c.EntryLimit > DefaultAuditEntryLimit {
		c.EntryLimit = DefaultAuditEntryLimit
	}

	c.RefreshSchedule = getEnvOrDefault("AUDIT_REFRESH_SCHEDULE", c.RefreshSchedule)
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseOptionalDurationEnv 接受 Go 时长格式（"15s"）或整数秒（"15"）。
func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	if secs, err := strconv.Atoi(value); err == nil {
		d := time.Duration(secs) * time.Second
		return &d, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &d, nil
}
