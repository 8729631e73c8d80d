// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirSource_Load(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "path-1.txt"), []byte("pathology"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rad-1.md"), []byte("# MRI"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.html"), []byte("<p>note</p>"), 0o644))

	src := DirSource{Dir: dir}
	ctx := context.Background()

	tests := []struct {
		id   string
		want string
	}{
		{"path-1", "pathology"},
		{"rad-1", "# MRI"},
		{"note.html", "<p>note</p>"},
	}
	for _, tt := range tests {
		got, err := src.Load(ctx, tt.id)
		require.NoError(t, err, tt.id)
		assert.Equal(t, tt.want, got)
	}

	_, err := src.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	for _, bad := range []string{"", "../etc/passwd", "a/b", ".hidden"} {
		_, err := src.Load(ctx, bad)
		assert.ErrorContains(t, err, "invalid document id", bad)
	}
}
