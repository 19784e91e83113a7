package inpaint

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds settings for the diffusion backend.
type Config struct {
	Endpoint        string        // Base URL of the backend
	APIKey          string        // Optional bearer token
	Timeout         time.Duration // Per-request timeout
	Width           int           // Working resolution
	Height          int
	Steps           int // Default inference steps
	Seed            int64
	GuidanceScale   float64
	NegativePrompt  string
	MaxPromptLength int // In runes; 0 disables the check
}

// DefaultConfig returns settings for a local backend at 512x512.
func DefaultConfig() Config {
	return Config{
		Endpoint:        "http://localhost:7860",
		Timeout:         120 * time.Second,
		Width:           512,
		Height:          512,
		Steps:           20,
		GuidanceScale:   7.5,
		NegativePrompt:  "low quality, blurry, distorted text",
		MaxPromptLength: 500,
	}
}

// Validate checks the endpoint and sizes.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("inpaint endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid inpaint endpoint %q", c.Endpoint)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid working size %dx%d", c.Width, c.Height)
	}
	if c.Width%8 != 0 || c.Height%8 != 0 {
		return fmt.Errorf("working size %dx%d must be a multiple of 8", c.Width, c.Height)
	}
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", c.Steps)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}
