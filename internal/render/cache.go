package render

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/docrender/constants"
)

const documentFile = "document.pdf"

// Page images carry the page index padded to at least three digits; page 1000
// and later simply grow a digit. Unpadded or over-padded names never match.
var reSlideFile = regexp.MustCompile(`^slide-(\d{3,})\.png$`)

// slidePattern is the rasterizer output template matching reSlideFile.
const slidePattern = "slide-%03d.png"

// slidePage returns the page index of a canonical page image name.
func slidePage(name string) (int, bool) {
	m := reSlideFile.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || fmt.Sprintf(slidePattern, n) != name {
		return 0, false
	}
	return n, true
}

// contiguous reports whether page-ordered names number the pages 1..n without gaps.
func contiguous(names []string) bool {
	for i, name := range names {
		if n, _ := slidePage(name); n != i+1 {
			return false
		}
	}
	return true
}

// Cache answers whether a key holds a complete artifact set, straight from the store.
type Cache struct {
	store     *Store
	assembler Assembler
}

func NewCache(store *Store) *Cache {
	return &Cache{store: store, assembler: NewAssembler(store)}
}

// IsConverted is true iff the key directory exists, is not in progress and
// satisfies the completeness predicate of format.
func (c *Cache) IsConverted(format constants.Format, key string) bool {
	if !constants.IsValidCacheKey(key) || !c.store.Exists(key) || c.store.InProgress(key) {
		return false
	}
	switch format {
	case constants.SlideDeck:
		files, err := listSlides(c.store.Dir(key))
		return err == nil && len(files) > 0 && contiguous(files)
	case constants.Document:
		st, err := os.Stat(filepath.Join(c.store.Dir(key), documentFile))
		return err == nil && st.Mode().IsRegular() && st.Size() > 0
	}
	return false
}

// Artifacts enumerates a converted key. Call it after IsConverted; a directory that
// vanished in between is reported as an error.
func (c *Cache) Artifacts(format constants.Format, key string) (ArtifactSet, error) {
	dir := c.store.Dir(key)
	switch format {
	case constants.SlideDeck:
		files, err := listSlides(dir)
		if err != nil {
			return ArtifactSet{}, fmt.Errorf("list artifacts of %q: %w", key, err)
		}
		if len(files) == 0 {
			return ArtifactSet{}, fmt.Errorf("list artifacts of %q: %w", key, os.ErrNotExist)
		}
		if !contiguous(files) {
			return ArtifactSet{}, fmt.Errorf("list artifacts of %q: page images are not numbered 1..%d", key, len(files))
		}
		return ArtifactSet{Format: format, Slides: c.assembler.Slides(key, files)}, nil
	case constants.Document:
		if _, err := os.Stat(filepath.Join(dir, documentFile)); err != nil {
			return ArtifactSet{}, fmt.Errorf("stat artifact of %q: %w", key, err)
		}
		pdf := c.assembler.Document(key)
		return ArtifactSet{Format: format, PDF: &pdf}, nil
	}
	return ArtifactSet{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// listSlides returns the canonical page image names in dir, in page order.
func listSlides(dir string) ([]string, error) {
	files, _, err := scanSlides(dir)
	return files, err
}

// scanSlides also reports stray entries: anything named slide-*.png that is not
// a canonical page image file.
func scanSlides(dir string) (files, stray []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	pages := make(map[string]int)
	for _, e := range entries {
		n, ok := slidePage(e.Name())
		switch {
		case ok && e.Type().IsRegular():
			files = append(files, e.Name())
			pages[e.Name()] = n
		case strings.HasPrefix(e.Name(), "slide-") && strings.HasSuffix(e.Name(), ".png"):
			stray = append(stray, e.Name())
		}
	}
	sort.Slice(files, func(i, j int) bool { return pages[files[i]] < pages[files[j]] })
	return files, stray, nil
}

// File resolves the path of one servable artifact. Only committed keys and
// artifact names are served; markers and intermediates never are.
func (c *Cache) File(key, name string) (string, bool) {
	if !constants.IsValidCacheKey(key) || !servable(name) {
		return "", false
	}
	if c.store.InProgress(key) {
		return "", false
	}
	p := filepath.Join(c.store.Dir(key), name)
	st, err := os.Stat(p)
	if err != nil || !st.Mode().IsRegular() {
		return "", false
	}
	return p, true
}

func servable(name string) bool {
	if name == documentFile {
		return true
	}
	_, ok := slidePage(name)
	return ok
}
