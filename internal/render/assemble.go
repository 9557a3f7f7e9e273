package render

// Assembler builds caller-facing descriptors rooted at the store's mount point.
type Assembler struct {
	store *Store
}

func NewAssembler(store *Store) Assembler {
	return Assembler{store: store}
}

// Slides numbers sorted page image names from 1. There is no separate thumbnail
// rendition, so the thumbnail URL is the image URL.
func (a Assembler) Slides(key string, sortedFiles []string) []Slide {
	slides := make([]Slide, 0, len(sortedFiles))
	for i, name := range sortedFiles {
		u := a.store.URL(key, name)
		slides = append(slides, Slide{Page: i + 1, ImageURL: u, ThumbnailURL: u})
	}
	return slides
}

func (a Assembler) Document(key string) PDFArtifact {
	return PDFArtifact{URL: a.store.URL(key, documentFile)}
}
