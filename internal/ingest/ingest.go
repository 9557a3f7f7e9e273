// Package ingest discovers source documents on disk and queues them for conversion
// under content-addressed cache keys.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/async"
)

// Result is the per-file outcome of a warm-up scan.
type Result struct {
	SourcePath string
	CacheKey   string
	Format     constants.Format
	HashHex    string
	Err        string
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

// Enqueuer accepts conversion jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}

// AllowedExt reports whether ext belongs to a renderable format.
func AllowedExt(ext string) bool {
	return constants.MapExtToFormat(ext) != ""
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

var reUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

const maxStem = 100

// KeyFor derives a cache key from the file name and the first 16 hex digits of
// the content hash, so edited files get fresh keys and renamed copies share none.
func KeyFor(path string) (key, hashHex string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", "", fmt.Errorf("hash: %w", err)
	}
	hashHex = hex.EncodeToString(h.Sum(nil))

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = reUnsafe.ReplaceAllString(stem, "-")
	stem = strings.TrimLeft(stem, "._-")
	stem = strings.ReplaceAll(stem, "..", ".")
	if len(stem) > maxStem {
		stem = stem[:maxStem]
	}
	if stem == "" {
		stem = "doc"
	}
	return stem + "_" + hashHex[:16], hashHex, nil
}
