package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	Session     SessionConfig     `toml:"session"`
	Database    DatabaseConfig    `toml:"database"`
	Player      PlayerConfig      `toml:"player"`
	Secrets     SecretsConfig     `toml:"secrets"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
//
// The endpoint URLs default to Spotify's own and only need to be set for testing against a stand-in server.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AuthURL      string `toml:"auth_url"`
	TokenURL     string `toml:"token_url"`
	APIURL       string `toml:"api_url"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host   string `toml:"host"`
	Port   int    `toml:"port"`
	Domain string `toml:"domain"` // landing page the callback redirects to
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig controls the session cookie and the backing store.
type SessionConfig struct {
	Secret          string `toml:"secret"`
	CookieName      string `toml:"cookie_name"`
	MaxAgeHours     int    `toml:"max_age_hours"`
	LoginTTLSeconds int    `toml:"login_ttl_seconds"`
	Store           string `toml:"store"` // memory, database or redis
	RedisURL        string `toml:"redis_url"`
}

// MaxAge returns the session lifetime.
func (s SessionConfig) MaxAge() time.Duration {
	return time.Duration(s.MaxAgeHours) * time.Hour
}

// LoginTTL returns how long a pending login (verifier + state) stays valid.
func (s SessionConfig) LoginTTL() time.Duration {
	return time.Duration(s.LoginTTLSeconds) * time.Second
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver       string `toml:"driver"` // sqlite3 or postgres
	Path         string `toml:"path"`   // file path for sqlite3, DSN for postgres
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// PlayerConfig contains settings for the playback client.
type PlayerConfig struct {
	ServerURL        string `toml:"server_url"`
	DebounceMS       int    `toml:"debounce_ms"`
	VolumeDebounceMS int    `toml:"volume_debounce_ms"`
	PollIntervalMS   int    `toml:"poll_interval_ms"`
	AutoAdvance      bool   `toml:"auto_advance"`
	DeviceName       string `toml:"device_name"`
	PlaylistName     string `toml:"playlist_name"`
}

func (p PlayerConfig) Debounce() time.Duration {
	return time.Duration(p.DebounceMS) * time.Millisecond
}

func (p PlayerConfig) VolumeDebounce() time.Duration {
	return time.Duration(p.VolumeDebounceMS) * time.Millisecond
}

func (p PlayerConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMS) * time.Millisecond
}

// SecretsConfig points at an optional AWS Secrets Manager secret holding environment overrides.
type SecretsConfig struct {
	AWSSecretID string `toml:"aws_secret_id"`
	AWSRegion   string `toml:"aws_region"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// SaveConfig writes config to path as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides config values with the environment variables the server reads.
//
// Unset variables leave the config untouched.
func (c *Config) ApplyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString("CLIENT_ID", &c.Credentials.Spotify.ClientID)
	setString("CLIENT_SECRET", &c.Credentials.Spotify.ClientSecret)
	setString("REDIRECT_URI", &c.Credentials.Spotify.RedirectURI)
	setString("DOMAIN", &c.Server.Domain)
	setString("SESSION_SECRET", &c.Session.Secret)
	setString("REDIS_URL", &c.Session.RedisURL)
	setString("DATABASE_URL", &c.Database.Path)

	if v, ok := os.LookupEnv("SERVER_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SERVER_PORT=%q", ErrInvalidConfig, v)
		}
		c.Server.Port = port
	}

	return nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret must be set", ErrMissingCredentials)
	}
	if c.Credentials.Spotify.RedirectURI == "" {
		return fmt.Errorf("%w: spotify redirect_uri must be set", ErrInvalidConfig)
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("%w: session secret must be set", ErrInvalidConfig)
	}
	switch c.Session.Store {
	case "memory", "database", "redis":
	default:
		return fmt.Errorf("%w: unknown session store %q", ErrInvalidConfig, c.Session.Store)
	}
	return nil
}
