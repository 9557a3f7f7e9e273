package render

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docrender/constants"
)

func TestCache_SlidesInPageOrder(t *testing.T) {
	store := newTestStore(t)
	cache := NewCache(store)
	key := "deck_12"

	var names []string
	for i := 12; i >= 1; i-- {
		names = append(names, fmt.Sprintf("slide-%03d.png", i))
	}
	touch(t, store.Dir(key), names...)
	// never part of the set
	touch(t, store.Dir(key), "slide-1.png", "slide-0001.png", "notes.txt", "slide-013.jpg")
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir(key), "slide-099.png"), 0o755))

	require.True(t, cache.IsConverted(constants.SlideDeck, key))
	set, err := cache.Artifacts(constants.SlideDeck, key)
	require.NoError(t, err)
	require.Len(t, set.Slides, 12)
	for i, s := range set.Slides {
		want := fmt.Sprintf("/converted/%s/slide-%03d.png", key, i+1)
		assert.Equal(t, i+1, s.Page)
		assert.Equal(t, want, s.ImageURL)
		assert.Equal(t, s.ImageURL, s.ThumbnailURL)
	}
	assert.Equal(t, 12, set.Pages())
}

func TestCache_UnpaddedNamesAreNotConverted(t *testing.T) {
	store := newTestStore(t)
	touch(t, store.Dir("deck"), "slide-1.png", "slide-2.png")
	assert.False(t, NewCache(store).IsConverted(constants.SlideDeck, "deck"))
}

func TestCache_FourDigitPagesFollowPage999(t *testing.T) {
	store := newTestStore(t)
	var names []string
	for i := 1; i <= 1002; i++ {
		names = append(names, fmt.Sprintf("slide-%03d.png", i))
	}
	touch(t, store.Dir("atlas"), names...)

	set, err := NewCache(store).Artifacts(constants.SlideDeck, "atlas")
	require.NoError(t, err)
	require.Len(t, set.Slides, 1002)
	assert.Equal(t, "/converted/atlas/slide-999.png", set.Slides[998].ImageURL)
	assert.Equal(t, "/converted/atlas/slide-1000.png", set.Slides[999].ImageURL)
	assert.Equal(t, "/converted/atlas/slide-1002.png", set.Slides[1001].ImageURL)
}

func TestCache_IsConverted(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, s *Store)
		format constants.Format
		key    string
		want   bool
	}{
		{
			name:   "missing directory",
			setup:  func(*testing.T, *Store) {},
			format: constants.SlideDeck,
			key:    "absent",
		},
		{
			name:   "empty directory",
			setup:  func(t *testing.T, s *Store) { touch(t, s.Dir("k")) },
			format: constants.SlideDeck,
			key:    "k",
		},
		{
			name: "in progress",
			setup: func(t *testing.T, s *Store) {
				touch(t, s.Dir("k"), "slide-001.png", inProgressMarker)
			},
			format: constants.SlideDeck,
			key:    "k",
		},
		{
			name:   "complete deck",
			setup:  func(t *testing.T, s *Store) { touch(t, s.Dir("k"), "slide-001.png") },
			format: constants.SlideDeck,
			key:    "k",
			want:   true,
		},
		{
			name:   "missing page",
			setup:  func(t *testing.T, s *Store) { touch(t, s.Dir("k"), "slide-001.png", "slide-003.png") },
			format: constants.SlideDeck,
			key:    "k",
		},
		{
			name:   "complete document",
			setup:  func(t *testing.T, s *Store) { touch(t, s.Dir("k"), documentFile) },
			format: constants.Document,
			key:    "k",
			want:   true,
		},
		{
			name: "zero byte document",
			setup: func(t *testing.T, s *Store) {
				touch(t, s.Dir("k"))
				require.NoError(t, os.WriteFile(filepath.Join(s.Dir("k"), documentFile), nil, 0o644))
			},
			format: constants.Document,
			key:    "k",
		},
		{
			name:   "deck asked as document",
			setup:  func(t *testing.T, s *Store) { touch(t, s.Dir("k"), "slide-001.png") },
			format: constants.Document,
			key:    "k",
		},
		{
			name:   "traversal key",
			setup:  func(*testing.T, *Store) {},
			format: constants.SlideDeck,
			key:    "../etc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			tt.setup(t, s)
			assert.Equal(t, tt.want, NewCache(s).IsConverted(tt.format, tt.key))
		})
	}
}

func TestCache_DocumentArtifact(t *testing.T) {
	store := newTestStore(t)
	touch(t, store.Dir("report_1"), documentFile)

	set, err := NewCache(store).Artifacts(constants.Document, "report_1")
	require.NoError(t, err)
	require.NotNil(t, set.PDF)
	assert.Equal(t, "/converted/report_1/document.pdf", set.PDF.URL)
	assert.Empty(t, set.Slides)
}

func TestCache_File(t *testing.T) {
	store := newTestStore(t)
	cache := NewCache(store)
	touch(t, store.Dir("done"), "slide-001.png", "slide-1000.png", "slide-0002.png", "deck.pdf")
	touch(t, store.Dir("busy"), "slide-001.png", inProgressMarker)

	p, ok := cache.File("done", "slide-001.png")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(store.Dir("done"), "slide-001.png"), p)
	_, ok = cache.File("done", "slide-1000.png")
	assert.True(t, ok)

	for _, tc := range []struct{ key, name string }{
		{"done", "deck.pdf"},
		{"done", inProgressMarker},
		{"done", "slide-002.png"},
		{"done", "slide-0002.png"},
		{"busy", "slide-001.png"},
		{"..", "slide-001.png"},
	} {
		_, ok := cache.File(tc.key, tc.name)
		assert.False(t, ok, "%s/%s", tc.key, tc.name)
	}
}
