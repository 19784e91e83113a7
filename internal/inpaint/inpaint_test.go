package inpaint

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePrompt(t *testing.T) {
	tests := []struct {
		name    string
		prompt  string
		maxLen  int
		wantErr bool
	}{
		{"ok", "graffiti", 10, false},
		{"empty", "", 10, true},
		{"blank", " \t\n", 10, true},
		{"too long", strings.Repeat("a", 11), 10, true},
		{"multibyte within limit", strings.Repeat("\u00e4", 10), 10, false},
		{"unlimited", strings.Repeat("a", 1000), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePrompt(tt.prompt, tt.maxLen)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var pe *InvalidPromptError
			assert.True(t, errors.As(err, &pe))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no endpoint", func(c *Config) { c.Endpoint = "" }},
		{"relative endpoint", func(c *Config) { c.Endpoint = "localhost" }},
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"odd size", func(c *Config) { c.Height = 500 }},
		{"no steps", func(c *Config) { c.Steps = 0 }},
		{"no timeout", func(c *Config) { c.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
