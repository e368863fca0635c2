package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/pagekeeper/internal/errors"
	"github.com/vango-dev/pagekeeper/pkg/identity"
	"github.com/vango-dev/pagekeeper/pkg/pages"
	"github.com/vango-dev/pagekeeper/pkg/resolve"
	"github.com/vango-dev/pagekeeper/pkg/session"
)

const (
	// ConfigFileName is the default configuration file name.
	ConfigFileName = "pagekeeper.json"

	// DefaultPort is the default API server port.
	DefaultPort = 8080

	// DefaultHost is the default API server host.
	DefaultHost = "localhost"

	// DefaultMetricsPath is where Prometheus metrics are served.
	DefaultMetricsPath = "/metrics"
)

// ConfigFileNames are the file names Load looks for, in order.
var ConfigFileNames = []string{
	"pagekeeper.json",
	"pagekeeper.toml",
	"pagekeeper.yaml",
	"pagekeeper.yml",
}

// Config represents the complete pagekeeper configuration.
type Config struct {
	// Server contains API server configuration.
	Server ServerConfig `json:"server" toml:"server" yaml:"server"`

	// Registry contains page registry configuration.
	Registry RegistryConfig `json:"registry" toml:"registry" yaml:"registry"`

	// Sessions contains per-client session configuration.
	Sessions SessionsConfig `json:"sessions" toml:"sessions" yaml:"sessions"`

	// Metrics contains Prometheus configuration.
	Metrics MetricsConfig `json:"metrics" toml:"metrics" yaml:"metrics"`

	// Tracing contains OpenTelemetry configuration.
	Tracing TracingConfig `json:"tracing" toml:"tracing" yaml:"tracing"`

	// Log contains logging configuration.
	Log LogConfig `json:"log" toml:"log" yaml:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string

	// unknown lists keys present in the file but not in Config.
	unknown []string
}

// ServerConfig contains API server settings.
type ServerConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty" toml:"host,omitempty" yaml:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty" toml:"port,omitempty" yaml:"port,omitempty"`

	// ReadTimeout bounds reading a request (e.g., "10s").
	ReadTimeout string `json:"readTimeout,omitempty" toml:"readTimeout,omitempty" yaml:"readTimeout,omitempty"`

	// WriteTimeout bounds writing a response (e.g., "10s").
	WriteTimeout string `json:"writeTimeout,omitempty" toml:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "15s").
	ShutdownTimeout string `json:"shutdownTimeout,omitempty" toml:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`

	// AllowedOrigins are the origins accepted for event streams.
	// Empty allows same-origin only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" toml:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`
}

// RegistryConfig contains page registry settings.
type RegistryConfig struct {
	// Home is the navigation target when the last page closes.
	Home string `json:"home,omitempty" toml:"home,omitempty" yaml:"home,omitempty"`

	// SpecialNames are route names that never become tabs.
	SpecialNames []string `json:"specialNames,omitempty" toml:"specialNames,omitempty" yaml:"specialNames,omitempty"`

	// KeyPolicy selects how cache keys are derived ("sanitized" or "exact").
	KeyPolicy string `json:"keyPolicy,omitempty" toml:"keyPolicy,omitempty" yaml:"keyPolicy,omitempty"`

	// WarnThreshold logs a warning when more pages than this are open.
	WarnThreshold int `json:"warnThreshold,omitempty" toml:"warnThreshold,omitempty" yaml:"warnThreshold,omitempty"`
}

// SessionsConfig contains session manager settings.
type SessionsConfig struct {
	// MaxSessions caps live sessions.
	MaxSessions int `json:"maxSessions,omitempty" toml:"maxSessions,omitempty" yaml:"maxSessions,omitempty"`

	// IdleTimeout expires unused sessions (e.g., "30m"). "0" disables it.
	IdleTimeout string `json:"idleTimeout,omitempty" toml:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`

	// CleanupInterval is how often idle sessions are swept (e.g., "1m").
	CleanupInterval string `json:"cleanupInterval,omitempty" toml:"cleanupInterval,omitempty" yaml:"cleanupInterval,omitempty"`

	// EvictionPolicy is "lru", "oldest" or "random".
	EvictionPolicy string `json:"evictionPolicy,omitempty" toml:"evictionPolicy,omitempty" yaml:"evictionPolicy,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes metrics and records them.
	Enabled bool `json:"enabled" toml:"enabled" yaml:"enabled"`

	// Path is the metrics endpoint path.
	Path string `json:"path,omitempty" toml:"path,omitempty" yaml:"path,omitempty"`

	// Namespace prefixes every metric name.
	Namespace string `json:"namespace,omitempty" toml:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	// Enabled wraps the API in tracing middleware.
	Enabled bool `json:"enabled" toml:"enabled" yaml:"enabled"`

	// TracerName names the tracer.
	TracerName string `json:"tracerName,omitempty" toml:"tracerName,omitempty" yaml:"tracerName,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `json:"level,omitempty" toml:"level,omitempty" yaml:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     "10s",
			WriteTimeout:    "10s",
			ShutdownTimeout: "15s",
		},
		Registry: RegistryConfig{
			Home:          resolve.DefaultHome,
			SpecialNames:  append([]string(nil), pages.DefaultSpecialNames...),
			KeyPolicy:     identity.PolicySanitized,
			WarnThreshold: pages.DefaultWarnThreshold,
		},
		Sessions: SessionsConfig{
			MaxSessions:     10000,
			IdleTimeout:     "30m",
			CleanupInterval: "1m",
			EvictionPolicy:  "lru",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      DefaultMetricsPath,
			Namespace: "pagekeeper",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			TracerName: "pagekeeper",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory.
// It uses the first of ConfigFileNames present in the directory.
func Load(dir string) (*Config, error) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("C121").
		WithDetail("No pagekeeper.json, .toml or .yaml found in " + dir).
		WithSuggestion("Run 'pagekeeper init' to write a default configuration")
}

// LoadFile reads configuration from the specified file path. The format
// follows the extension: .json, .toml, .yaml or .yml.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("C121").
				WithDetail("No configuration file at " + path).
				WithSuggestion("Run 'pagekeeper init' to write a default configuration")
		}
		return nil, errors.New("C120").Wrap(err)
	}

	cfg := New()
	if err := cfg.decode(path, data); err != nil {
		return nil, err
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	name := filepath.Base(path)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return errors.New("C120").
				WithDetail("Failed to parse " + name + ": " + err.Error()).
				WithSuggestion("Check that " + name + " is valid JSON")
		}
	case ".toml":
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return errors.New("C120").
				WithDetail("Failed to parse " + name + ": " + err.Error()).
				WithSuggestion("Check that " + name + " is valid TOML")
		}
		for _, key := range md.Undecoded() {
			c.unknown = append(c.unknown, key.String())
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return errors.New("C120").
				WithDetail("Failed to parse " + name + ": " + err.Error()).
				WithSuggestion("Check that " + name + " is valid YAML")
		}
	default:
		return errors.New("C120").
			WithDetail("Unsupported configuration format " + strconv.Quote(ext)).
			WithSuggestion("Use a .json, .toml, .yaml or .yml file")
	}
	return nil
}

// SaveTo writes the configuration to path in the format its extension
// names.
func (c *Config) SaveTo(path string) error {
	var data []byte
	var err error

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
		// Add newline at end of file
		data = append(data, '\n')
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		return errors.New("C120").
			WithDetail("Unsupported configuration format " + strconv.Quote(ext))
	}
	if err != nil {
		return errors.New("C120").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("C120").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// Unknown returns keys in the loaded file that no field consumed.
// Only TOML files report them.
func (c *Config) Unknown() []string {
	return c.unknown
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()

	// Server
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	// Registry
	if c.Registry.Home == "" {
		c.Registry.Home = d.Registry.Home
	}
	if c.Registry.SpecialNames == nil {
		c.Registry.SpecialNames = d.Registry.SpecialNames
	}
	if c.Registry.KeyPolicy == "" {
		c.Registry.KeyPolicy = d.Registry.KeyPolicy
	}
	if c.Registry.WarnThreshold == 0 {
		c.Registry.WarnThreshold = d.Registry.WarnThreshold
	}

	// Sessions
	if c.Sessions.MaxSessions == 0 {
		c.Sessions.MaxSessions = d.Sessions.MaxSessions
	}
	if c.Sessions.IdleTimeout == "" {
		c.Sessions.IdleTimeout = d.Sessions.IdleTimeout
	}
	if c.Sessions.CleanupInterval == "" {
		c.Sessions.CleanupInterval = d.Sessions.CleanupInterval
	}
	if c.Sessions.EvictionPolicy == "" {
		c.Sessions.EvictionPolicy = d.Sessions.EvictionPolicy
	}

	// Metrics and tracing
	if c.Metrics.Path == "" {
		c.Metrics.Path = d.Metrics.Path
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = d.Tracing.TracerName
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("server.port", "Port must be between 0 and 65535")
	}
	for field, value := range map[string]string{
		"server.readTimeout":       c.Server.ReadTimeout,
		"server.writeTimeout":      c.Server.WriteTimeout,
		"server.shutdownTimeout":   c.Server.ShutdownTimeout,
		"sessions.idleTimeout":     c.Sessions.IdleTimeout,
		"sessions.cleanupInterval": c.Sessions.CleanupInterval,
	} {
		if _, err := parseDuration(value); err != nil {
			return invalid(field, "Invalid duration "+strconv.Quote(value))
		}
	}
	if !strings.HasPrefix(c.Registry.Home, "/") {
		return invalid("registry.home", "Home must be an absolute path such as \"/\"")
	}
	if _, err := identity.PolicyByName(c.Registry.KeyPolicy); err != nil {
		return invalid("registry.keyPolicy", err.Error())
	}
	if c.Sessions.MaxSessions < 0 {
		return invalid("sessions.maxSessions", "MaxSessions must not be negative")
	}
	if _, err := session.ParseEvictionPolicy(c.Sessions.EvictionPolicy); err != nil {
		return invalid("sessions.evictionPolicy", err.Error())
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path", "Path must start with \"/\"")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log.format", "Format must be \"text\" or \"json\"")
	}
	return nil
}

func invalid(field, detail string) error {
	return errors.New("C122").
		WithDetail(field + ": " + detail)
}

// Address returns the host:port the API server listens on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ServerTimeouts returns the parsed read, write and shutdown timeouts.
// Call Validate first; unparseable values come back as zero.
func (c *Config) ServerTimeouts() (read, write, shutdown time.Duration) {
	read, _ = parseDuration(c.Server.ReadTimeout)
	write, _ = parseDuration(c.Server.WriteTimeout)
	shutdown, _ = parseDuration(c.Server.ShutdownTimeout)
	return read, write, shutdown
}

// PagesConfig builds the registry template for every session.
func (c *Config) PagesConfig(logger *slog.Logger) (pages.Config, error) {
	policy, err := identity.PolicyByName(c.Registry.KeyPolicy)
	if err != nil {
		return pages.Config{}, invalid("registry.keyPolicy", err.Error())
	}
	return pages.Config{
		Home:          c.Registry.Home,
		SpecialNames:  append([]string{}, c.Registry.SpecialNames...),
		Policy:        policy,
		WarnThreshold: c.Registry.WarnThreshold,
		Logger:        logger,
	}, nil
}

// ManagerConfig builds the session manager configuration around a
// registry template.
func (c *Config) ManagerConfig(template pages.Config) (session.ManagerConfig, error) {
	idle, err := parseDuration(c.Sessions.IdleTimeout)
	if err != nil {
		return session.ManagerConfig{}, invalid("sessions.idleTimeout", err.Error())
	}
	cleanup, err := parseDuration(c.Sessions.CleanupInterval)
	if err != nil {
		return session.ManagerConfig{}, invalid("sessions.cleanupInterval", err.Error())
	}
	policy, err := session.ParseEvictionPolicy(c.Sessions.EvictionPolicy)
	if err != nil {
		return session.ManagerConfig{}, invalid("sessions.evictionPolicy", err.Error())
	}
	return session.ManagerConfig{
		MaxSessions:     c.Sessions.MaxSessions,
		IdleTimeout:     idle,
		CleanupInterval: cleanup,
		EvictionPolicy:  policy,
		Pages:           template,
	}, nil
}

// parseDuration accepts Go durations plus a bare "0".
func parseDuration(s string) (time.Duration, error) {
	if s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(name))
	return level, err
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range ConfigFileNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing a configuration file, or an error if
// none is found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("C121").
				WithDetail("No pagekeeper configuration found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'pagekeeper init' to write a default configuration")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory
// or its nearest parent that has one.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
