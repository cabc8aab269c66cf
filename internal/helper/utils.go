package helper

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"document-intelligence/internal/models"
)

// DocumentID parses id, or generates a random one when id is empty.
func DocumentID(id string) (uuid.UUID, error) {
	if id == "" {
		newID, err := uuid.NewRandom()
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to generate UUID: %w", err)
		}
		return newID, nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid document id %q: %w", id, err)
	}
	return parsed, nil
}

// FileMetadata describes the file at path for registration.
func FileMetadata(path string, id uuid.UUID, workspaceID, userID string) (models.DocumentMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.DocumentMetadata{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	ext := strings.ToLower(filepath.Ext(path))
	fileType := mime.TypeByExtension(ext)
	if fileType == "" {
		fileType = "application/octet-stream"
	}
	return models.DocumentMetadata{
		DocumentID:    id,
		WorkspaceID:   workspaceID,
		UserID:        userID,
		OriginalName:  info.Name(),
		FileName:      id.String() + ext,
		FilePath:      abs,
		FileSize:      info.Size(),
		FileType:      fileType,
		FileExtension: ext,
	}, nil
}

// CreateFolder creates path and its parents if missing.
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}

// pretty print
func PrettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Println(string(b))
}
