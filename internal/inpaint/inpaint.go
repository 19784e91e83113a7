// Package inpaint talks to a prompt-conditioned diffusion inpainting backend.
package inpaint

import (
	"context"
	"fmt"
	"image"
	"strings"
	"unicode/utf8"
)

// Request is one generation call. Mask is white where pixels are regenerated
// and must already be at the working size.
type Request struct {
	Image  image.Image // Optional conditioning image at the working size
	Mask   image.Image
	Prompt string
	Seed   int64
	Steps  int
	Width  int
	Height int
}

// Generator produces an image at the working size for a masked prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (image.Image, error)
}

// InvalidPromptError reports a prompt the backend would reject.
type InvalidPromptError struct {
	Reason string
}

func (e *InvalidPromptError) Error() string { return "invalid prompt: " + e.Reason }

// ValidatePrompt rejects blank prompts and, when maxLen > 0, prompts longer
// than maxLen runes.
func ValidatePrompt(prompt string, maxLen int) error {
	if strings.TrimSpace(prompt) == "" {
		return &InvalidPromptError{Reason: "prompt is empty"}
	}
	if n := utf8.RuneCountInString(prompt); maxLen > 0 && n > maxLen {
		return &InvalidPromptError{Reason: fmt.Sprintf("prompt has %d characters, limit is %d", n, maxLen)}
	}
	return nil
}
