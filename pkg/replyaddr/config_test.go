package replyaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "_=", cfg.Separators)
	assert.Equal(t, 25, cfg.BlobMinLength)
	assert.Equal(t, 6, cfg.DigestLength)
	assert.Equal(t, 7, cfg.BounceExpiryDays)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no separators", func(c *Config) { c.Separators = "" }},
		{"alphanumeric separator", func(c *Config) { c.Separators = "_a" }},
		{"dot separator", func(c *Config) { c.Separators = "." }},
		{"hyphen separator", func(c *Config) { c.Separators = "-" }},
		{"at separator", func(c *Config) { c.Separators = "@" }},
		{"duplicate separator", func(c *Config) { c.Separators = "_=_" }},
		{"digest too short", func(c *Config) { c.DigestLength = 5 }},
		{"digest too long", func(c *Config) { c.DigestLength = 11 }},
		{"inverted digest range", func(c *Config) { c.LegacyDigestMin = 10; c.LegacyDigestMax = 6 }},
		{"digest range beyond hash", func(c *Config) { c.LegacyDigestMax = 60 }},
		{"negative blob threshold", func(c *Config) { c.BlobMinLength = -1 }},
		{"negative expiry", func(c *Config) { c.BounceExpiryDays = -1 }},
		{"bounce prefix without equals", func(c *Config) { c.BouncePrefix = "Bounce0" }},
		{"legacy prefix with dot", func(c *Config) { c.LegacyPrefix = "r.p=" }},
		{"empty legacy prefix", func(c *Config) { c.LegacyPrefix = "=" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)

			_, err = NewCodec(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestCodecConfigIsCopied(t *testing.T) {
	cfg := DefaultConfig()
	c, err := NewCodec(cfg)
	require.NoError(t, err)

	cfg.Separators = "="
	assert.Equal(t, "_=", c.Config().Separators)
}
