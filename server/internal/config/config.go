package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the stub configuration.
const (
	DefaultHTTPPort     = 8080
	DefaultTokenPath    = "/oauth2/v1/token"
	DefaultResourcePath = "/fm/resources"
	DefaultAccessToken  = "fmstub-access-token"
	DefaultRetention    = 5 * time.Minute
)

// Config holds the stub configuration parsed from the `server:` section of
// the YAML file.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all stub settings.
type ServerConfig struct {
	// HTTPPort is the port every endpoint listens on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Retention is how long a received submission stays listed.
	Retention time.Duration `yaml:"retention"`

	Token    TokenConfig    `yaml:"token"`
	Basic    BasicConfig    `yaml:"basic"`
	Resource ResourceConfig `yaml:"resource"`
}

// TokenConfig describes the password-grant token endpoint.
type TokenConfig struct {
	Path string `yaml:"path"`

	// ClientID and the client secret are expected as HTTP basic credentials.
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	ClientSecretEnv string `yaml:"client_secret_env"`

	// Username and the password are expected in the form body.
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"`

	// AccessToken is the token handed out and later accepted as Bearer.
	AccessToken string `yaml:"access_token"`

	// FailFirst makes the first N requests return an empty access_token.
	FailFirst int `yaml:"fail_first"`
}

// BasicConfig holds the credentials accepted by basic auth on the resource.
// Basic auth is disabled when Username is empty.
type BasicConfig struct {
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"`
}

// ResourceConfig describes the submission endpoint.
type ResourceConfig struct {
	Path string `yaml:"path"`

	// FailFirst makes the first N authorised submissions return 503.
	FailFirst int `yaml:"fail_first"`
}

// Secret returns the client secret, preferring the environment variable.
func (t TokenConfig) Secret() string { return secret(t.ClientSecret, t.ClientSecretEnv) }

// UserPassword returns the grant password, preferring the environment variable.
func (t TokenConfig) UserPassword() string { return secret(t.Password, t.PasswordEnv) }

// PasswordValue returns the basic password, preferring the environment variable.
func (b BasicConfig) PasswordValue() string { return secret(b.Password, b.PasswordEnv) }

func secret(literal, env string) string {
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return literal
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stub config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("stub config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("stub config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:  DefaultHTTPPort,
			Retention: DefaultRetention,
			Token: TokenConfig{
				Path:        DefaultTokenPath,
				AccessToken: DefaultAccessToken,
			},
			Resource: ResourceConfig{
				Path: DefaultResourcePath,
			},
		},
	}
}

func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.Retention < 0 {
		return fmt.Errorf("server.retention must not be negative")
	}
	if !strings.HasPrefix(s.Token.Path, "/") {
		return fmt.Errorf("server.token.path %q must start with /", s.Token.Path)
	}
	if !strings.HasPrefix(s.Resource.Path, "/") {
		return fmt.Errorf("server.resource.path %q must start with /", s.Resource.Path)
	}
	if s.Token.Path == s.Resource.Path {
		return fmt.Errorf("server.token.path and server.resource.path must differ")
	}
	if s.Token.AccessToken == "" {
		return fmt.Errorf("server.token.access_token must not be empty")
	}
	if s.Token.FailFirst < 0 || s.Resource.FailFirst < 0 {
		return fmt.Errorf("fail_first must not be negative")
	}
	return nil
}
