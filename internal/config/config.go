package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个仪表盘进程的配置项。
type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	Capture  CaptureConfig
	Storage  StorageConfig
	Chat     ChatConfig
	LogLevel slog.Level
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	capture, err := loadCaptureConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	level, err := parseLogLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Backend:  backend,
		Capture:  capture,
		Storage:  storage,
		Chat:     chat,
		LogLevel: level,
	}, nil
}

// ServerConfig 描述本地仪表盘 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// Origin 是仪表盘自身的来源地址，cookie 以它为作用域保存。
	Origin *url.URL
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}

	origin, err := parseURLEnv("DASHBOARD_ORIGIN", "http://localhost:3000")
	if err != nil {
		return ServerConfig{}, err
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3000" 或 "127.0.0.1:3000"。
		return ServerConfig{Addr: port, Origin: origin}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, Origin: origin}, nil
}

// BackendConfig 描述外部推理/聊天后端。
type BackendConfig struct {
	BaseURL *url.URL
	Timeout time.Duration
}

func loadBackendConfig() (BackendConfig, error) {
	base, err := parseURLEnv("BACKEND_BASE_URL", "http://localhost:8000")
	if err != nil {
		return BackendConfig{}, err
	}

	timeout, err := parseDurationEnv("BACKEND_TIMEOUT", 30*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	return BackendConfig{BaseURL: base, Timeout: timeout}, nil
}

// CaptureConfig 描述摄像头取帧的节奏。
type CaptureConfig struct {
	// Source 形如 "dir:./frames" 或 "ffmpeg:/dev/video0"。
	Source         string
	InputFormat    string
	Frames         int
	Interval       time.Duration
	SettleDelay    time.Duration
	TypingCooldown time.Duration
}

func loadCaptureConfig() (CaptureConfig, error) {
	frames := 10
	if override, err := parseOptionalIntEnv("CAPTURE_FRAMES"); err != nil {
		return CaptureConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return CaptureConfig{}, fmt.Errorf("invalid CAPTURE_FRAMES value %d: must be positive", *override)
		}
		frames = *override
	}

	interval, err := parseDurationEnv("CAPTURE_INTERVAL", 100*time.Millisecond)
	if err != nil {
		return CaptureConfig{}, err
	}

	settle, err := parseDurationEnv("CAPTURE_SETTLE_DELAY", 2*time.Second)
	if err != nil {
		return CaptureConfig{}, err
	}

	cooldown, err := parseDurationEnv("TYPING_COOLDOWN", 2*time.Second)
	if err != nil {
		return CaptureConfig{}, err
	}

	return CaptureConfig{
		Source:         getEnvOrDefault("CAMERA_SOURCE", "dir:./frames"),
		InputFormat:    getEnvOrDefault("CAMERA_INPUT_FORMAT", "v4l2"),
		Frames:         frames,
		Interval:       interval,
		SettleDelay:    settle,
		TypingCooldown: cooldown,
	}, nil
}

// StorageConfig 描述客户端持久化状态（cookie 与本地设置）。
type StorageConfig struct {
	StateDir     string
	CookieFile   string
	SettingsFile string
	HistoryTTL   time.Duration
}

func loadStorageConfig() (StorageConfig, error) {
	stateDir := getEnvOrDefault("DASHBOARD_STATE_DIR", ".dashboard")

	ttl, err := parseDurationEnv("HISTORY_TTL", 7*24*time.Hour)
	if err != nil {
		return StorageConfig{}, err
	}

	return StorageConfig{
		StateDir:     stateDir,
		CookieFile:   getEnvOrDefault("COOKIE_FILE", filepath.Join(stateDir, "cookies.json")),
		SettingsFile: getEnvOrDefault("SETTINGS_FILE", filepath.Join(stateDir, "settings.toml")),
		HistoryTTL:   ttl,
	}, nil
}

// ChatConfig 描述发送流程的行为。
type ChatConfig struct {
	SeedToken       string
	TimestampLayout string
	TextFallback    bool
}

func loadChatConfig() (ChatConfig, error) {
	textFallback, err := parseBoolEnv("EMOTION_TEXT_FALLBACK", false)
	if err != nil {
		return ChatConfig{}, err
	}

	return ChatConfig{
		SeedToken:       strings.TrimSpace(os.Getenv("CHAT_TOKEN")),
		TimestampLayout: getEnvOrDefault("TIMESTAMP_LAYOUT", "03:04 PM"),
		TextFallback:    textFallback,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseURLEnv(key, defaultValue string) (*url.URL, error) {
	raw := getEnvOrDefault(key, defaultValue)

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid %s value %q: scheme must be http or https", key, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid %s value %q: missing host", key, raw)
	}
	return u, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: %w", raw, err)
	}
	return level, nil
}
