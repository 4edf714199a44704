package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the configuration for the HTTP API server.
type ServerConfig struct {
	ApiAddr        string   `json:"api_addr" yaml:"api_addr"`
	LogLevel       string   `json:"log_level" yaml:"log_level"`
	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies"`
	DataDir        string   `json:"data_dir" yaml:"data_dir"`
	DatabasePath   string   `json:"database_path" yaml:"database_path"`
	WatchConfig    bool     `json:"watch_config" yaml:"watch_config"`
	MaxBodyBytes   int64    `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// ModelConfig holds the defaults used when training and generating.
type ModelConfig struct {
	DefaultOrder  int     `json:"default_order" yaml:"default_order"`
	Workers       int     `json:"workers" yaml:"workers"`
	DefaultLength int     `json:"default_length" yaml:"default_length"`
	MaxLength     int     `json:"max_length" yaml:"max_length"`
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	TopK          int     `json:"top_k" yaml:"top_k"`
	Separator     string  `json:"separator" yaml:"separator"`
	EOC           string  `json:"eoc" yaml:"eoc"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig `json:"server_config" yaml:"server_config"`
	Model  *ModelConfig  `json:"model_config" yaml:"model_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:        ":7280",
		LogLevel:       "info",
		TrustedProxies: []string{},
		DataDir:        "./data",
		DatabasePath:   "./data/cadence.db",
		WatchConfig:    true,
		MaxBodyBytes:   32 << 20,
	}
}

// DefaultModelConfig creates a model configuration with default values.
func DefaultModelConfig() *ModelConfig {
	return &ModelConfig{
		DefaultOrder:  2,
		Workers:       0,
		DefaultLength: 50,
		MaxLength:     5000,
		Temperature:   1.0,
		TopK:          0,
		Separator:     " ",
		EOC:           ".",
	}
}

// DefaultConfig returns a complete configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfig(),
		Model:  DefaultModelConfig(),
	}
}

// isYAML reports whether path should be read and written as YAML.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func marshalConfig(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	return json.MarshalIndent(config, "", "  ")
}

func unmarshalConfig(path string, data []byte, config *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, config)
	}
	return json.Unmarshal(data, config)
}

// LoadConfig reads the configuration from the file at the given path. Files
// ending in .yaml or .yml are parsed as YAML, anything else as JSON. If the
// file doesn't exist, it creates one with default values. Sections missing
// from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	// Initialize with default configurations
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = marshalConfig(path, config)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = unmarshalConfig(path, file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Model == nil {
		config.Model = DefaultModelConfig()
	}

	return config, nil
}

// parseLogLevel maps a config log level onto slog, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConfigManager handles thread-safe access to configuration and derived state (trusted proxies).
type ConfigManager struct {
	config       *Config
	mu           sync.RWMutex
	trustedCIDRs []*net.IPNet
	trustedIPs   []net.IP
	configPath   string
	logger       *slog.Logger
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	cm := &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}
	cm.refreshCache()

	return cm, nil
}

// SetLogger sets the logger used to report config problems.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.logger = logger
}

// Path returns the file the configuration is persisted to.
func (cm *ConfigManager) Path() string {
	return cm.configPath
}

// Get returns a thread-safe copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	server := *cm.config.Server
	server.TrustedProxies = append([]string(nil), server.TrustedProxies...)
	model := *cm.config.Model
	return Config{Server: &server, Model: &model}
}

// Update validates the configuration, saves it to disk, and refreshes derived state.
func (cm *ConfigManager) Update(newConfig Config) error {
	if newConfig.Server == nil || newConfig.Model == nil {
		return fmt.Errorf("configuration must contain both server_config and model_config")
	}
	if newConfig.Model.DefaultOrder <= 0 {
		return fmt.Errorf("model_config.default_order must be positive, got %d", newConfig.Model.DefaultOrder)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := marshalConfig(cm.configPath, &newConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	*cm.config = newConfig
	cm.refreshCache()
	return nil
}

// IsTrusted checks if an IP is in the trusted proxies list using the cache.
func (cm *ConfigManager) IsTrusted(ipAddr string) bool {
	parsedIP := net.ParseIP(ipAddr)
	if parsedIP == nil {
		return false
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, ipNet := range cm.trustedCIDRs {
		if ipNet.Contains(parsedIP) {
			return true
		}
	}

	for _, trustedIP := range cm.trustedIPs {
		if trustedIP.Equal(parsedIP) {
			return true
		}
	}

	return false
}

// refreshCache rebuilds the binary IP lists from the config strings.
func (cm *ConfigManager) refreshCache() {
	var cidrs []*net.IPNet
	var ips []net.IP

	for _, t := range cm.config.Server.TrustedProxies {
		if strings.Contains(t, "/") {
			_, ipNet, err := net.ParseCIDR(t)
			if err == nil {
				cidrs = append(cidrs, ipNet)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy CIDR", "cidr", t, "error", err)
			}
		} else {
			ip := net.ParseIP(t)
			if ip != nil {
				ips = append(ips, ip)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy IP", "ip", t)
			}
		}
	}
	cm.trustedCIDRs = cidrs
	cm.trustedIPs = ips
}
