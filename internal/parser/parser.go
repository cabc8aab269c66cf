// Package parser converts uploaded documents into normalized markdown text.
package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"document-intelligence/internal/models"
)

type Converter struct {
	maxFileSize int64
}

type Option func(*Converter)

// WithMaxFileSize rejects files larger than n bytes. Zero means no limit.
func WithMaxFileSize(n int64) Option {
	return func(c *Converter) {
		c.maxFileSize = n
	}
}

func NewConverter(opts ...Option) *Converter {
	c := &Converter{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SupportedExtensions lists the file extensions Convert accepts.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".pptx", ".xlsx", ".ods", ".md", ".markdown", ".txt"}
}

// Convert reads the document at path and returns its content as markdown.
// Empty content is returned as-is; callers decide whether that is a failure.
func (c *Converter) Convert(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stat, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", models.ErrFileNotFound, path)
		}
		return "", err
	}
	if stat.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if c.maxFileSize > 0 && stat.Size() > c.maxFileSize {
		return "", fmt.Errorf("file %s is %d bytes, limit is %d", path, stat.Size(), c.maxFileSize)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var text string
	switch ext {
	case ".pdf":
		text, err = parsePDF(path)
	case ".docx":
		text, err = parseDOCX(path)
	case ".pptx":
		text, err = parsePPTX(path)
	case ".xlsx":
		text, err = parseXLSX(path)
	case ".ods":
		text, err = parseODS(path)
	case ".md", ".markdown":
		text, err = parseMarkdown(path)
	case ".txt":
		text, err = parseText(path)
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", filepath.Base(path), err)
	}

	text = strings.TrimSpace(text)
	log.Debug().Str("file", filepath.Base(path)).Str("format", ext).Int("characters", len(text)).Msg("Document converted")
	return text, nil
}

func parseText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return normalizeNewlines(string(data)), nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}
