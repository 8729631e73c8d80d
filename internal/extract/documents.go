// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrDocumentNotFound is returned when no file exists for a document ID.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentSource resolves a document ID to its text.
type DocumentSource interface {
	Load(ctx context.Context, documentID string) (string, error)
}

// documentExts are tried in order after the bare ID.
var documentExts = []string{".txt", ".md"}

// DirSource reads documents staged as files under Dir.
type DirSource struct {
	Dir string
}

// Load returns the contents of Dir/<id>, Dir/<id>.txt or Dir/<id>.md.
func (d DirSource) Load(ctx context.Context, documentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if documentID == "" || documentID != filepath.Base(documentID) || strings.HasPrefix(documentID, ".") {
		return "", fmt.Errorf("invalid document id %q", documentID)
	}

	candidates := []string{documentID}
	for _, ext := range documentExts {
		candidates = append(candidates, documentID+ext)
	}

	for _, name := range candidates {
		data, err := os.ReadFile(filepath.Join(d.Dir, name))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("reading document %s: %w", documentID, err)
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrDocumentNotFound, documentID, d.Dir)
}
