// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment identifies the deployment type.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for the app.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Server configures the webhook HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Gateway configures the agent gateway connection.
	Gateway GatewayConfig `yaml:"gateway"`

	// GitHub configures webhook verification and the REST client.
	GitHub GitHubConfig `yaml:"github"`

	// Workspace configures the workspace cache.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Per-environment overrides, applied after the base values.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the fields an environment section may override.
type Overrides struct {
	Server    *ServerConfig    `yaml:"server,omitempty"`
	Gateway   *GatewayConfig   `yaml:"gateway,omitempty"`
	GitHub    *GitHubConfig    `yaml:"github,omitempty"`
	Workspace *WorkspaceConfig `yaml:"workspace,omitempty"`
}

// ServerConfig configures the webhook HTTP listener.
type ServerConfig struct {
	// Listen is the address the webhook server binds.
	// Default: 127.0.0.1:8971
	Listen string `yaml:"listen"`

	// WebhookPath is the path GitHub delivers to.
	// Default: /webhook
	WebhookPath string `yaml:"webhook_path"`
}

// GatewayConfig configures the agent gateway connection.
type GatewayConfig struct {
	// URL is the gateway WebSocket endpoint (ws:// or wss://).
	URL string `yaml:"url"`

	// TokenPath is the file holding the gateway bearer token, or "-"
	// for stdin. Mutually exclusive with TokenEnv.
	TokenPath string `yaml:"token_path"`

	// TokenEnv names an environment variable holding the token. The
	// variable is scrubbed from the environment after reading.
	TokenEnv string `yaml:"token_env"`

	// ClientID identifies this client to the gateway.
	// Default: github-app
	ClientID string `yaml:"client_id"`

	// Mode is the client mode reported in the connect call.
	// Default: backend
	Mode string `yaml:"mode"`

	// Role is the role requested during connect.
	// Default: operator
	Role string `yaml:"role"`

	// Scopes are the scopes requested during connect.
	// Default: [agent.run]
	Scopes []string `yaml:"scopes"`

	// HandshakeTimeout bounds the connect handshake.
	// Default: 30s
	HandshakeTimeout Duration `yaml:"handshake_timeout"`

	// AcceptTimeout bounds the wait for run acceptance.
	// Default: 30s
	AcceptTimeout Duration `yaml:"accept_timeout"`

	// RunTimeout is the ceiling on a full agent run.
	// Default: 5m
	RunTimeout Duration `yaml:"run_timeout"`
}

// GitHubConfig configures webhook verification and the REST client.
type GitHubConfig struct {
	// WebhookSecretPath is the file holding the webhook signing
	// secret. Mutually exclusive with WebhookSecretEnv.
	WebhookSecretPath string `yaml:"webhook_secret_path"`

	// WebhookSecretEnv names an environment variable holding the
	// webhook signing secret.
	WebhookSecretEnv string `yaml:"webhook_secret_env"`

	// TokenPath is the file holding the API token used to post
	// comments. Mutually exclusive with TokenEnv.
	TokenPath string `yaml:"token_path"`

	// TokenEnv names an environment variable holding the API token.
	TokenEnv string `yaml:"token_env"`

	// APIBaseURL is the REST endpoint. Must be HTTPS.
	// Default: https://api.github.com
	APIBaseURL string `yaml:"api_base_url"`

	// Repositories restricts processing to these "owner/name" repos.
	// Empty means all repositories the webhook delivers for.
	Repositories []string `yaml:"repositories"`
}

// WorkspaceConfig configures the workspace cache.
type WorkspaceConfig struct {
	// CacheDir is where workspace snapshots are stored.
	// Default: ${HOME}/.cache/openclaw-github-app/workspaces
	CacheDir string `yaml:"cache_dir"`

	// Compression selects the snapshot compression: zstd, lz4, none.
	// Default: zstd
	Compression string `yaml:"compression"`

	// MaxAge evicts snapshots older than this.
	// Default: 168h (one week)
	MaxAge Duration `yaml:"max_age"`
}

// Default returns the default configuration. The defaults give every
// field a sensible zero value before the file is merged in; the file
// itself is still required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Listen:      "127.0.0.1:8971",
			WebhookPath: "/webhook",
		},
		Gateway: GatewayConfig{
			ClientID:         "github-app",
			Mode:             "backend",
			Role:             "operator",
			Scopes:           []string{"agent.run"},
			HandshakeTimeout: Duration(30 * time.Second),
			AcceptTimeout:    Duration(30 * time.Second),
			RunTimeout:       Duration(5 * time.Minute),
		},
		GitHub: GitHubConfig{
			APIBaseURL: "https://api.github.com",
		},
		Workspace: WorkspaceConfig{
			CacheDir:    filepath.Join(homeDir, ".cache", "openclaw-github-app", "workspaces"),
			Compression: "zstd",
			MaxAge:      Duration(168 * time.Hour),
		},
	}
}

// Load loads configuration from the OPENCLAW_CONFIG environment
// variable. There is no fallback path; if the variable is unset, Load
// fails.
func Load() (*Config, error) {
	path := os.Getenv("OPENCLAW_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("config: OPENCLAW_CONFIG environment variable not set; " +
			"set it to the path of your config file, or use the --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, applies the
// environment section matching Environment, and expands ${VAR}
// patterns in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyOverrides merges the environment section matching Environment.
func (c *Config) applyOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		if overrides.Server.Listen != "" {
			c.Server.Listen = overrides.Server.Listen
		}
		if overrides.Server.WebhookPath != "" {
			c.Server.WebhookPath = overrides.Server.WebhookPath
		}
	}

	if overrides.Gateway != nil {
		o := overrides.Gateway
		if o.URL != "" {
			c.Gateway.URL = o.URL
		}
		if o.TokenPath != "" {
			c.Gateway.TokenPath = o.TokenPath
		}
		if o.TokenEnv != "" {
			c.Gateway.TokenEnv = o.TokenEnv
		}
		if o.ClientID != "" {
			c.Gateway.ClientID = o.ClientID
		}
		if o.Mode != "" {
			c.Gateway.Mode = o.Mode
		}
		if o.Role != "" {
			c.Gateway.Role = o.Role
		}
		if len(o.Scopes) > 0 {
			c.Gateway.Scopes = o.Scopes
		}
		if o.HandshakeTimeout != 0 {
			c.Gateway.HandshakeTimeout = o.HandshakeTimeout
		}
		if o.AcceptTimeout != 0 {
			c.Gateway.AcceptTimeout = o.AcceptTimeout
		}
		if o.RunTimeout != 0 {
			c.Gateway.RunTimeout = o.RunTimeout
		}
	}

	if overrides.GitHub != nil {
		o := overrides.GitHub
		if o.WebhookSecretPath != "" {
			c.GitHub.WebhookSecretPath = o.WebhookSecretPath
		}
		if o.WebhookSecretEnv != "" {
			c.GitHub.WebhookSecretEnv = o.WebhookSecretEnv
		}
		if o.TokenPath != "" {
			c.GitHub.TokenPath = o.TokenPath
		}
		if o.TokenEnv != "" {
			c.GitHub.TokenEnv = o.TokenEnv
		}
		if o.APIBaseURL != "" {
			c.GitHub.APIBaseURL = o.APIBaseURL
		}
		if len(o.Repositories) > 0 {
			c.GitHub.Repositories = o.Repositories
		}
	}

	if overrides.Workspace != nil {
		o := overrides.Workspace
		if o.CacheDir != "" {
			c.Workspace.CacheDir = o.CacheDir
		}
		if o.Compression != "" {
			c.Workspace.Compression = o.Compression
		}
		if o.MaxAge != 0 {
			c.Workspace.MaxAge = o.MaxAge
		}
	}
}

// expandVariables expands ${VAR} patterns in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Workspace.CacheDir = expandVars(c.Workspace.CacheDir, vars)
	c.Gateway.TokenPath = expandVars(c.Gateway.TokenPath, vars)
	c.GitHub.WebhookSecretPath = expandVars(c.GitHub.WebhookSecretPath, vars)
	c.GitHub.TokenPath = expandVars(c.GitHub.TokenPath, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Server.Listen == "" {
		errs = append(errs, fmt.Errorf("server.listen is required"))
	}

	if c.Gateway.URL == "" {
		errs = append(errs, fmt.Errorf("gateway.url is required"))
	}
	if c.Gateway.TokenPath != "" && c.Gateway.TokenEnv != "" {
		errs = append(errs, fmt.Errorf("gateway.token_path and gateway.token_env are mutually exclusive"))
	}

	if c.GitHub.WebhookSecretPath == "" && c.GitHub.WebhookSecretEnv == "" {
		errs = append(errs, fmt.Errorf("one of github.webhook_secret_path or github.webhook_secret_env is required"))
	}
	if c.GitHub.WebhookSecretPath != "" && c.GitHub.WebhookSecretEnv != "" {
		errs = append(errs, fmt.Errorf("github.webhook_secret_path and github.webhook_secret_env are mutually exclusive"))
	}
	if c.GitHub.TokenPath != "" && c.GitHub.TokenEnv != "" {
		errs = append(errs, fmt.Errorf("github.token_path and github.token_env are mutually exclusive"))
	}

	switch c.Workspace.Compression {
	case "zstd", "lz4", "none":
	default:
		errs = append(errs, fmt.Errorf("workspace.compression must be one of: zstd, lz4, none"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured directories if missing.
func (c *Config) EnsurePaths() error {
	if c.Workspace.CacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Workspace.CacheDir, 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", c.Workspace.CacheDir, err)
	}
	return nil
}
