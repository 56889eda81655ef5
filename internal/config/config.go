// ABOUTME: Configuration loading and parsing for hsauthd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete hsauthd configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Node         NodeConfig         `yaml:"node"`
	JWT          JWTConfig          `yaml:"jwt"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Session      SessionConfig      `yaml:"session"`
	Redis        RedisConfig        `yaml:"redis"`
	Mail         MailConfig         `yaml:"mail"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// BaseURL is the external URL of this service, used to build the
	// credential-issuance links embedded in registration mails.
	BaseURL string `yaml:"base_url"`
}

// NodeConfig holds SSI node connection configuration
type NodeConfig struct {
	// URL of the SSI node used for credential and presentation operations
	URL string `yaml:"url"`
	// SchemaID identifies the credential schema issued by this service
	SchemaID string `yaml:"schema_id"`
	// PublicKeyID and PrivateKeyBase58 identify the service's own signing
	// key on the node, used for credential issuance and self-presentation.
	PublicKeyID      string `yaml:"public_key_id"`
	PrivateKeyBase58 string `yaml:"private_key_base58"`
}

// JWTConfig holds token signing configuration. Access and refresh tokens are
// signed with distinct secrets so neither can stand in for the other.
type JWTConfig struct {
	AccessSecret  string        `yaml:"access_secret"`
	RefreshSecret string        `yaml:"refresh_secret"`
	AccessTTL     time.Duration `yaml:"-"`
	RefreshTTL    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	AccessTTLRaw  string `yaml:"access_ttl"`
	RefreshTTLRaw string `yaml:"refresh_ttl"`
}

// SubscriptionConfig holds the subscription gate configuration
type SubscriptionConfig struct {
	Enabled bool `yaml:"enabled"`
	// VerifyURL is the developer dashboard subscription verification endpoint
	VerifyURL string `yaml:"verify_url"`
	// CredentialPath points at the JSON file holding the service's own app
	// credential, presented to the dashboard during verification.
	CredentialPath string `yaml:"credential_path"`
}

// SessionConfig holds client session store configuration
type SessionConfig struct {
	PendingTTL time.Duration `yaml:"-"`

	PendingTTLRaw string `yaml:"pending_ttl"`
}

// RedisConfig holds optional Redis configuration for the refresh token store.
// When Addr is empty the in-memory store is used instead.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MailConfig holds SMTP configuration for registration mails
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// AppName is substituted into the issuance mail template
	AppName string `yaml:"app_name"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default TTLs applied when the config file leaves them unset.
const (
	DefaultAccessTTL  = 4 * time.Minute
	DefaultRefreshTTL = 120 * time.Hour
	DefaultPendingTTL = 5 * time.Minute
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.JWT.AccessSecret == "" {
		return fmt.Errorf("jwt.access_secret is required")
	}
	if c.JWT.RefreshSecret == "" {
		return fmt.Errorf("jwt.refresh_secret is required")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return fmt.Errorf("jwt.access_secret and jwt.refresh_secret must differ")
	}

	if c.Subscription.Enabled && c.Subscription.VerifyURL == "" {
		return fmt.Errorf("subscription.verify_url is required when subscription is enabled")
	}
	if c.Subscription.Enabled && c.Subscription.CredentialPath == "" {
		return fmt.Errorf("subscription.credential_path is required when subscription is enabled")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = DefaultAccessTTL
	}
	if c.JWT.RefreshTTL == 0 {
		c.JWT.RefreshTTL = DefaultRefreshTTL
	}
	if c.Session.PendingTTL == 0 {
		c.Session.PendingTTL = DefaultPendingTTL
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.JWT.AccessTTLRaw != "" {
		cfg.JWT.AccessTTL, err = time.ParseDuration(cfg.JWT.AccessTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing access_ttl %q: %w", cfg.JWT.AccessTTLRaw, err)
		}
	}

	if cfg.JWT.RefreshTTLRaw != "" {
		cfg.JWT.RefreshTTL, err = time.ParseDuration(cfg.JWT.RefreshTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing refresh_ttl %q: %w", cfg.JWT.RefreshTTLRaw, err)
		}
	}

	if cfg.Session.PendingTTLRaw != "" {
		cfg.Session.PendingTTL, err = time.ParseDuration(cfg.Session.PendingTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing pending_ttl %q: %w", cfg.Session.PendingTTLRaw, err)
		}
	}

	return nil
}
