package main

import (
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docrender/constants"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestResolveFormat(t *testing.T) {
	f, err := resolveFormat("", "/uploads/Lesson 1.PPTX")
	require.NoError(t, err)
	assert.Equal(t, constants.SlideDeck, f)

	f, err = resolveFormat("", "/uploads/notes.docx")
	require.NoError(t, err)
	assert.Equal(t, constants.Document, f)

	f, err = resolveFormat("document", "/uploads/deck.pptx")
	require.NoError(t, err)
	assert.Equal(t, constants.Document, f)

	_, err = resolveFormat("", "/uploads/photo.jpg")
	assert.Error(t, err)

	_, err = resolveFormat("spreadsheet", "/uploads/deck.pptx")
	assert.Error(t, err)
}

func TestSweepCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	root := t.TempDir()
	t.Setenv("ARTIFACT_ROOT", root)
	t.Setenv("DB_DRIVER", "")
	t.Setenv("REDIS_ADDR", "")

	stale := filepath.Join(root, "crashed_1")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	marker := filepath.Join(stale, ".rendering")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(marker, old, old))

	done := filepath.Join(root, "lesson1")
	require.NoError(t, os.MkdirAll(done, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(done, "slide-001.png"), []byte("png"), 0o644))

	rootCmd.SetArgs([]string{"sweep", "--older-than", "1m", "--json", "--log-level", "error"})
	require.NoError(t, rootCmd.Execute())

	assert.NoDirExists(t, stale)
	assert.DirExists(t, done)
}

func TestServeCommand_ListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	t.Chdir(t.TempDir())
	t.Setenv("ARTIFACT_ROOT", t.TempDir())
	t.Setenv("HTTP_ADDR", busy.Addr().String())
	t.Setenv("GRPC_ADDR", "127.0.0.1:0")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("WATCH_DIRS", "")

	rootCmd.SetArgs([]string{"serve", "--log-level", "error"})
	err = rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serve:")
}
