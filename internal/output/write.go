package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// WriteJSON writes v as 2-space indented JSON. Non-ASCII text and HTML
// characters are written as-is.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteText writes text content such as a CIF file.
func WriteText(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ManifestHeader identifies one request in its summary.json.
type ManifestHeader struct {
	RequestID string    `json:"request_id"`
	Database  string    `json:"database"`
	Tool      string    `json:"tool"`
	CreatedAt time.Time `json:"created_at"`
}

// NewManifestHeader stamps a manifest with a fresh request id.
func NewManifestHeader(database, tool string) ManifestHeader {
	return ManifestHeader{
		RequestID: uuid.NewString(),
		Database:  database,
		Tool:      tool,
		CreatedAt: time.Now().UTC(),
	}
}

// WriteManifest writes summary.json into dir.
func WriteManifest(dir string, manifest any) error {
	return WriteJSON(filepath.Join(dir, ManifestName), manifest)
}
