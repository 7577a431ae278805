package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/busybox42/replyaddr/pkg/crockford"
)

// CheckSecretFile validates that a secret file is a regular file owned by
// the current user and not readable by group or others
func CheckSecretFile(filePath string) error {
	info, err := os.Lstat(filePath)
	if err != nil {
		return fmt.Errorf("cannot stat secret file: %w", err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("secret file %s is a symlink", filePath)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("secret file %s is not a regular file", filePath)
	}

	if info.Mode().Perm()&0077 != 0 {
		return fmt.Errorf("secret file %s has group/world permissions (%s)", filePath, info.Mode().Perm())
	}

	if info.Size() > DefaultSecurityConfig().MaxSecretFileSize {
		return fmt.Errorf("secret file too large: %d bytes", info.Size())
	}

	return validateFileOwnership(filePath, info)
}

// validateFileOwnership validates that the file is owned by the current user
func validateFileOwnership(filePath string, info os.FileInfo) error {
	currentUID := os.Getuid()

	// Get file owner (Unix-specific)
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != currentUID {
			return fmt.Errorf("file %s is not owned by current user (owner: %d, current: %d)",
				filePath, stat.Uid, currentUID)
		}
	}

	return nil
}

// ReadSecretFile reads a codec secret, dropping one trailing newline
func ReadSecretFile(filePath string) (string, error) {
	if err := CheckSecretFile(filePath); err != nil {
		return "", err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}

	secret := strings.TrimSuffix(string(data), "\n")
	secret = strings.TrimSuffix(secret, "\r")
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// GenerateSecret returns a random secret suitable for a new configuration
func GenerateSecret() (string, error) {
	buf := make([]byte, 30)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return strings.ToLower(crockford.Encode(buf)), nil
}
