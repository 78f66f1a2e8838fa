// Package config loads the Bitbucket connection settings from the environment
// and resolves per-call project keys against the configured default.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

var (
	ErrMissingBaseURL     = errors.New("BITBUCKET_URL is required")
	ErrMissingCredentials = errors.New("either BITBUCKET_TOKEN or BITBUCKET_USERNAME and BITBUCKET_PASSWORD are required")
	ErrProjectRequired    = errors.New("project must be provided either as a parameter or through BITBUCKET_DEFAULT_PROJECT")
)

// AuthMode is the single authentication scheme selected at startup.
type AuthMode int

const (
	AuthBearer AuthMode = iota + 1
	AuthBasic
)

func (m AuthMode) String() string {
	switch m {
	case AuthBearer:
		return "bearer"
	case AuthBasic:
		return "basic"
	default:
		return "unknown"
	}
}

// Env mirrors the raw environment variables.
type Env struct {
	BaseURL        string        `env:"BITBUCKET_URL"`
	Token          string        `env:"BITBUCKET_TOKEN"`
	Username       string        `env:"BITBUCKET_USERNAME"`
	Password       string        `env:"BITBUCKET_PASSWORD"`
	DefaultProject string        `env:"BITBUCKET_DEFAULT_PROJECT"`
	Timeout        time.Duration `env:"BITBUCKET_TIMEOUT" envDefault:"30s"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Config is the validated, immutable connection configuration.
// Construct it with Load or New; the zero value is not usable.
type Config struct {
	baseURL        string
	auth           AuthMode
	token          string
	username       string
	password       string
	defaultProject string
	timeout        time.Duration
	logLevel       string
}

// Load reads the environment and validates it.
func Load() (Config, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return New(e)
}

// New validates raw settings. A bearer token takes precedence over a
// username/password pair when both are present.
func New(e Env) (Config, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(e.BaseURL), "/")
	if baseURL == "" {
		return Config{}, ErrMissingBaseURL
	}

	cfg := Config{
		baseURL:        baseURL,
		defaultProject: strings.TrimSpace(e.DefaultProject),
		timeout:        e.Timeout,
		logLevel:       e.LogLevel,
	}
	switch {
	case e.Token != "":
		cfg.auth = AuthBearer
		cfg.token = e.Token
	case e.Username != "" && e.Password != "":
		cfg.auth = AuthBasic
		cfg.username = e.Username
		cfg.password = e.Password
	default:
		return Config{}, ErrMissingCredentials
	}
	if cfg.timeout <= 0 {
		cfg.timeout = 30 * time.Second
	}
	return cfg, nil
}

func (c Config) BaseURL() string { return c.baseURL }
func (c Config) Auth() AuthMode { return c.auth }
func (c Config) Token() string { return c.token }
func (c Config) Username() string { return c.username }
func (c Config) Password() string { return c.password }
func (c Config) DefaultProject() string { return c.defaultProject }
func (c Config) Timeout() time.Duration { return c.timeout }
func (c Config) LogLevel() string { return c.logLevel }

// ResolveProject returns provided when non-empty, otherwise the default
// project. It fails with ErrProjectRequired when neither is set.
func (c Config) ResolveProject(provided string) (string, error) {
	if p := strings.TrimSpace(provided); p != "" {
		return p, nil
	}
	if c.defaultProject != "" {
		return c.defaultProject, nil
	}
	return "", ErrProjectRequired
}
