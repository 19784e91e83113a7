package recognizer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Charset maps CTC class indices to tokens. Class 0 is the blank, so
// class i decodes to Tokens[i-1].
type Charset struct {
	Tokens []string
}

// LoadCharset reads a dictionary file.
func LoadCharset(path string) (*Charset, error) {
	if path == "" {
		return nil, errors.New("dictionary path cannot be empty")
	}
	f, err := os.Open(path) //nolint:gosec // G304: dictionary path comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer func() { _ = f.Close() }()
	cs, err := ReadCharset(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cs, nil
}

// ReadCharset parses one token per line, dropping a leading BOM and
// empty lines. A trailing space token is appended, as PP-OCR models
// reserve the last class for it.
func ReadCharset(r io.Reader) (*Charset, error) {
	scanner := bufio.NewScanner(r)
	tokens := make([]string, 0, 512)
	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading dictionary: %w", err)
	}
	if len(tokens) == 0 {
		return nil, errors.New("dictionary is empty")
	}
	tokens = append(tokens, " ")
	return &Charset{Tokens: tokens}, nil
}

// Size returns the number of tokens, excluding the blank.
func (c *Charset) Size() int { return len(c.Tokens) }

// Decode converts CTC class indices into text.
func (c *Charset) Decode(classes []int) string {
	var b strings.Builder
	for _, idx := range classes {
		if idx <= 0 || idx > len(c.Tokens) {
			continue
		}
		b.WriteString(c.Tokens[idx-1])
	}
	return b.String()
}
