package models

import "errors"

var (
	ErrEmptyContent      = errors.New("document conversion resulted in empty content")
	ErrNoRowsWritten     = errors.New("store reported no rows written")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoEmbedding       = errors.New("no embedding returned")
)
