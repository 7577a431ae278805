package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	btoml "github.com/BurntSushi/toml"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/busybox42/replyaddr/pkg/replyaddr"
)

// SecretEnv overrides the configured codec secret when set
const SecretEnv = "REPLYADDR_SECRET"

// ErrNoSecret is returned by Secret when neither the environment, the secret
// file nor the config file provide one.
var ErrNoSecret = errors.New("no codec secret configured")

// CodecSection configures the token codec
type CodecSection struct {
	Secret           string `toml:"secret"`
	SecretFile       string `toml:"secret_file"`
	Separators       string `toml:"separators"`
	BlobMinLength    int    `toml:"blob_min_length"`
	DigestLength     int    `toml:"digest_length"`
	BounceExpiryDays int    `toml:"bounce_expiry_days"`
}

// DomainsSection names the domains reply and bounce addresses live under
type DomainsSection struct {
	ReplyDomain  string `toml:"reply_domain"`
	BounceDomain string `toml:"bounce_domain"`
}

// LoggingSection configures the process logger
type LoggingSection struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "text"
	Output string `toml:"output"` // "stdout", "stderr" or a file path
}

// RateLimitSection configures the per-client API rate limiter
type RateLimitSection struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-For is believed
	TrustedProxies []string `toml:"trusted_proxies"`
}

// APISection configures the HTTP API
type APISection struct {
	Enabled      bool             `toml:"enabled"`
	ListenAddr   string           `toml:"listen_addr"`
	APIKeyHashes []string         `toml:"api_key_hashes"` // hex SHA-256 or bcrypt
	RateLimit    RateLimitSection `toml:"rate_limit"`
}

// MetricsSection configures the Prometheus endpoint
type MetricsSection struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config represents the application configuration
type Config struct {
	Codec   CodecSection   `toml:"codec"`
	Domains DomainsSection `toml:"domains"`
	Logging LoggingSection `toml:"logging"`
	API     APISection     `toml:"api"`
	Metrics MetricsSection `toml:"metrics"`

	// path the configuration was loaded from, empty for defaults
	path string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	codec := replyaddr.DefaultConfig()

	cfg := &Config{}
	cfg.Codec.Separators = codec.Separators
	cfg.Codec.BlobMinLength = codec.BlobMinLength
	cfg.Codec.DigestLength = codec.DigestLength
	cfg.Codec.BounceExpiryDays = codec.BounceExpiryDays

	cfg.Domains.ReplyDomain = "reply.example.com"
	cfg.Domains.BounceDomain = "bounce.example.com"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stdout"

	cfg.API.Enabled = true
	cfg.API.ListenAddr = "127.0.0.1:8025"
	cfg.API.RateLimit.Enabled = true
	cfg.API.RateLimit.RequestsPerSecond = 50
	cfg.API.RateLimit.Burst = 100

	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"

	return cfg
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// searchLocations lists the places FindConfigFile checks, in order
func searchLocations() []string {
	return []string{
		"./replyaddr.toml",
		"./config/replyaddr.toml",
		os.ExpandEnv("$HOME/.replyaddr.toml"),
		"/etc/replyaddr/replyaddr.toml",
	}
}

// FindConfigFile looks for a configuration file in common locations
func FindConfigFile(configPath string) (string, error) {
	// If a specific path is provided, check only that
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		return "", fmt.Errorf("config file not found at specified path: %s", configPath)
	}

	for _, loc := range searchLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc, nil
		}
	}

	return "", fmt.Errorf("no config file found")
}

// LoadConfig loads a configuration from a file. An empty configPath with no
// file in the search locations yields the defaults. The result is validated
// and its warnings are returned alongside a usable config.
func LoadConfig(configPath string) (*Config, *ValidationResult, error) {
	cfg := DefaultConfig()
	securityValidator := NewSecurityValidator()

	configFile, err := FindConfigFile(configPath)
	if err != nil {
		if configPath != "" {
			return nil, nil, err
		}
		result := cfg.Validate()
		return cfg, result, result.Err()
	}

	// Validate config file size before reading
	if err := securityValidator.ValidateConfigFileSize(configFile); err != nil {
		return nil, nil, fmt.Errorf("config file security validation failed: %w", err)
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := Decode(data, cfg); err != nil {
		return nil, nil, fmt.Errorf("error parsing %s: %w", configFile, err)
	}
	cfg.path = configFile

	// A relative secret file is relative to the config file
	if cfg.Codec.SecretFile != "" && !filepath.IsAbs(cfg.Codec.SecretFile) {
		cfg.Codec.SecretFile = filepath.Join(filepath.Dir(configFile), cfg.Codec.SecretFile)
	}

	result := cfg.Validate()
	if !result.Valid {
		return nil, result, result.Err()
	}

	return cfg, result, nil
}

// Decode parses TOML data over cfg. Unknown keys are an error so a
// misspelled setting does not silently fall back to its default.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("unknown configuration keys:\n%s", strict.String())
		}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return err
	}
	return nil
}

// SaveConfig writes the configuration to configPath in TOML format. Files
// carrying an inline secret are written 0600.
func (c *Config) SaveConfig(configPath string) error {
	var buf bytes.Buffer
	buf.WriteString("# replyaddr configuration\n\n")

	enc := btoml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	mode := os.FileMode(0644)
	if c.Codec.Secret != "" {
		mode = 0600
	}
	if err := os.WriteFile(configPath, buf.Bytes(), mode); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Secret resolves the codec secret: the REPLYADDR_SECRET environment
// variable, then secret_file, then the inline secret.
func (c *Config) Secret() (string, error) {
	if s := os.Getenv(SecretEnv); s != "" {
		return s, nil
	}
	if c.Codec.SecretFile != "" {
		return ReadSecretFile(c.Codec.SecretFile)
	}
	if c.Codec.Secret != "" {
		return c.Codec.Secret, nil
	}
	return "", ErrNoSecret
}

// CodecConfig returns the codec settings with the fixed format constants
// filled from the codec defaults.
func (c *Config) CodecConfig() replyaddr.Config {
	cc := replyaddr.DefaultConfig()
	if c.Codec.Separators != "" {
		cc.Separators = c.Codec.Separators
	}
	if c.Codec.BlobMinLength != 0 {
		cc.BlobMinLength = c.Codec.BlobMinLength
	}
	if c.Codec.DigestLength != 0 {
		cc.DigestLength = c.Codec.DigestLength
	}
	if c.Codec.BounceExpiryDays != 0 {
		cc.BounceExpiryDays = c.Codec.BounceExpiryDays
	}
	return cc
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error in field '%s': %s (current value: %v)", e.Field, e.Message, e.Value)
}

// ValidationResult holds the results of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
	Valid    bool
}

// AddError adds a validation error
func (vr *ValidationResult) AddError(field string, value interface{}, message string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message})
	vr.Valid = false
}

// AddWarning adds a validation warning
func (vr *ValidationResult) AddWarning(field string, value interface{}, message string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message})
}

// Err joins the validation errors, or returns nil when valid
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	messages := make([]string, 0, len(vr.Errors))
	for _, err := range vr.Errors {
		messages = append(messages, err.Error())
	}
	return fmt.Errorf("configuration validation failed: %s", strings.Join(messages, "; "))
}

// Validate performs validation of the configuration
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}
	securityValidator := NewSecurityValidator()

	c.validateCodec(result, securityValidator)
	c.validateDomains(result, securityValidator)
	c.validateLogging(result, securityValidator)
	c.validateAPI(result, securityValidator)
	c.validateMetrics(result)

	return result
}

func (c *Config) validateCodec(result *ValidationResult, sv *SecurityValidator) {
	if err := c.CodecConfig().Validate(); err != nil {
		result.AddError("codec", c.Codec, err.Error())
	}

	if err := sv.ValidateNumericBounds(int64(c.Codec.BounceExpiryDays), "codec.bounce_expiry_days", 0, 3650); err != nil {
		result.AddError("codec.bounce_expiry_days", c.Codec.BounceExpiryDays, err.Error())
	}

	if c.Codec.Secret != "" && c.Codec.SecretFile != "" {
		result.AddError("codec.secret_file", c.Codec.SecretFile, "secret and secret_file are mutually exclusive")
	}

	if c.Codec.SecretFile != "" {
		if err := sv.CheckPathTraversal(c.Codec.SecretFile); err != nil {
			result.AddError("codec.secret_file", c.Codec.SecretFile, err.Error())
		} else if err := CheckSecretFile(c.Codec.SecretFile); err != nil {
			result.AddError("codec.secret_file", c.Codec.SecretFile, err.Error())
		}
	}

	// A missing secret is reported by Secret at use time; the command line
	// may still supply one.
	if c.Codec.Secret != "" && len(c.Codec.Secret) < minSecretLength {
		result.AddWarning("codec.secret", "***", fmt.Sprintf("secret is shorter than %d bytes", minSecretLength))
	}
}

func (c *Config) validateDomains(result *ValidationResult, sv *SecurityValidator) {
	if c.Domains.ReplyDomain == "" {
		result.AddError("domains.reply_domain", "", "reply domain is required")
	} else if err := sv.ValidateMailDomain(c.Domains.ReplyDomain, "domains.reply_domain"); err != nil {
		result.AddError("domains.reply_domain", c.Domains.ReplyDomain, err.Error())
	}

	if c.Domains.BounceDomain == "" {
		result.AddError("domains.bounce_domain", "", "bounce domain is required")
	} else if err := sv.ValidateMailDomain(c.Domains.BounceDomain, "domains.bounce_domain"); err != nil {
		result.AddError("domains.bounce_domain", c.Domains.BounceDomain, err.Error())
	}

	if c.Domains.ReplyDomain != "" && strings.EqualFold(c.Domains.ReplyDomain, c.Domains.BounceDomain) {
		result.AddWarning("domains.bounce_domain", c.Domains.BounceDomain, "reply and bounce addresses share a domain")
	}
}

func (c *Config) validateLogging(result *ValidationResult, sv *SecurityValidator) {
	validLevels := []string{"", "debug", "info", "warn", "warning", "error"}
	if !contains(validLevels, strings.ToLower(c.Logging.Level)) {
		result.AddError("logging.level", c.Logging.Level, "must be one of debug, info, warn, error")
	}

	validFormats := []string{"", "json", "text"}
	if !contains(validFormats, strings.ToLower(c.Logging.Format)) {
		result.AddError("logging.format", c.Logging.Format, "must be json or text")
	}

	switch c.Logging.Output {
	case "", "stdout", "stderr":
	default:
		if err := sv.CheckPathTraversal(c.Logging.Output); err != nil {
			result.AddError("logging.output", c.Logging.Output, err.Error())
		}
	}
}

func (c *Config) validateAPI(result *ValidationResult, sv *SecurityValidator) {
	if !c.API.Enabled {
		return
	}

	if err := sv.ValidateNetworkAddress(c.API.ListenAddr, "api.listen_addr"); err != nil {
		result.AddError("api.listen_addr", c.API.ListenAddr, err.Error())
	}

	for i, h := range c.API.APIKeyHashes {
		if !IsAPIKeyHash(h) {
			result.AddError(fmt.Sprintf("api.api_key_hashes[%d]", i), "***", "must be a hex SHA-256 digest or a bcrypt hash")
		}
	}
	if len(c.API.APIKeyHashes) == 0 && !isLoopbackListen(c.API.ListenAddr) {
		result.AddWarning("api.api_key_hashes", nil, "API listens beyond loopback without authentication")
	}

	rl := c.API.RateLimit
	if rl.Enabled {
		if rl.RequestsPerSecond <= 0 {
			result.AddError("api.rate_limit.requests_per_second", rl.RequestsPerSecond, "must be positive")
		}
		if err := sv.ValidateNumericBounds(int64(rl.Burst), "api.rate_limit.burst", 1, 100000); err != nil {
			result.AddError("api.rate_limit.burst", rl.Burst, err.Error())
		}
	}
	for i, p := range rl.TrustedProxies {
		if !validProxy(p) {
			result.AddError(fmt.Sprintf("api.rate_limit.trusted_proxies[%d]", i), p, "must be an IP address or CIDR")
		}
	}
}

func validProxy(p string) bool {
	if strings.Contains(p, "/") {
		_, err := netip.ParsePrefix(p)
		return err == nil
	}
	_, err := netip.ParseAddr(p)
	return err == nil
}

func (c *Config) validateMetrics(result *ValidationResult) {
	if !c.Metrics.Enabled {
		return
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		result.AddError("metrics.path", c.Metrics.Path, "must start with /")
	}
	if strings.HasPrefix(c.Metrics.Path, "/api/") || c.Metrics.Path == "/health" {
		result.AddError("metrics.path", c.Metrics.Path, "collides with an API route")
	}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// CreateDefaultConfig writes the default configuration to configPath
func CreateDefaultConfig(configPath string) error {
	return DefaultConfig().SaveConfig(configPath)
}
