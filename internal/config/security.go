package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/busybox42/replyaddr/pkg/mailbox"
)

// minSecretLength is the shortest inline secret accepted without a warning
const minSecretLength = 16

// SecurityConfig holds security validation settings
type SecurityConfig struct {
	MaxConfigFileSize int64 // Maximum config file size
	MaxSecretFileSize int64 // Maximum secret file size
}

// DefaultSecurityConfig returns secure default security settings
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		MaxConfigFileSize: 1024 * 1024, // 1MB
		MaxSecretFileSize: 64 * 1024,
	}
}

// SecurityValidator checks configuration values that reach the filesystem
// or the network
type SecurityValidator struct {
	config *SecurityConfig
}

// NewSecurityValidator creates a new security validator
func NewSecurityValidator() *SecurityValidator {
	return &SecurityValidator{
		config: DefaultSecurityConfig(),
	}
}

// ValidateNumericBounds validates numeric values for resource exhaustion
func (sv *SecurityValidator) ValidateNumericBounds(value int64, fieldName string, min, max int64) error {
	if value < min {
		return fmt.Errorf("value too small for %s: %d (minimum: %d)", fieldName, value, min)
	}
	if value > max {
		return fmt.Errorf("value too large for %s: %d (maximum: %d)", fieldName, value, max)
	}
	return nil
}

// ValidatePort validates port numbers
func (sv *SecurityValidator) ValidatePort(port int, fieldName string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port for %s: %d (must be 1-65535)", fieldName, port)
	}
	return nil
}

// ValidateNetworkAddress validates a host:port or :port listen address
func (sv *SecurityValidator) ValidateNetworkAddress(addr, fieldName string) error {
	if addr == "" {
		return fmt.Errorf("network address cannot be empty for %s", fieldName)
	}

	if err := sv.checkInjectionPatterns(addr); err != nil {
		return fmt.Errorf("injection pattern detected in %s: %w", fieldName, err)
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format for %s: %w", fieldName, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port for %s: %s", fieldName, portStr)
	}
	if err := sv.ValidatePort(port, fieldName); err != nil {
		return err
	}

	if host != "" && host != "localhost" && net.ParseIP(host) == nil {
		if err := sv.ValidateMailDomain(host, fieldName); err != nil {
			return err
		}
	}

	return nil
}

// ValidateMailDomain checks that domain can appear after the @ of a
// generated address. Address literals are refused.
func (sv *SecurityValidator) ValidateMailDomain(domain, fieldName string) error {
	mb, err := mailbox.Parse("x@" + domain)
	if err != nil {
		return fmt.Errorf("invalid domain for %s: %w", fieldName, err)
	}
	if mb.Domain.Kind != mailbox.DomainName {
		return fmt.Errorf("address literal not allowed for %s", fieldName)
	}
	return nil
}

// CheckPathTraversal checks for directory traversal attacks
func (sv *SecurityValidator) CheckPathTraversal(path string) error {
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("null byte in path: %q", path)
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("parent directory reference detected: %s", path)
		}
	}

	return nil
}

// ValidateConfigFileSize validates the size of the configuration file
func (sv *SecurityValidator) ValidateConfigFileSize(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("cannot stat config file: %w", err)
	}

	if info.Size() > sv.config.MaxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max: %d)", info.Size(), sv.config.MaxConfigFileSize)
	}

	return nil
}

// checkInjectionPatterns checks for shell and template injection patterns
func (sv *SecurityValidator) checkInjectionPatterns(input string) error {
	injectionPatterns := []string{
		"../",
		"${",
		"$(",
		"`",
		";",
		"|",
		"&",
	}

	for _, pattern := range injectionPatterns {
		if strings.Contains(input, pattern) {
			return fmt.Errorf("injection pattern detected: %s", pattern)
		}
	}

	return nil
}

// isLoopbackListen reports whether addr only accepts local connections
func isLoopbackListen(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsAPIKeyHash reports whether h is a 64-digit hex SHA-256 digest or a
// bcrypt hash
func IsAPIKeyHash(h string) bool {
	if len(h) == 64 {
		_, err := hex.DecodeString(h)
		return err == nil
	}
	if strings.HasPrefix(h, "$2") {
		_, err := bcrypt.Cost([]byte(h))
		return err == nil
	}
	return false
}
