package constants

import (
	"regexp"
	"strings"
)

// Format tags a source document with the pipeline that renders it.
type Format string

const (
	SlideDeck Format = "slides"
	Document  Format = "document"
)

// Formats holds the allowed values for the format column in conversion_attempt.
var Formats = []string{string(SlideDeck), string(Document)}

// SlideExtensions are rendered page by page into images.
var SlideExtensions = map[string]struct{}{
	"ppt":  {},
	"pptx": {},
	"pps":  {},
	"ppsx": {},
	"odp":  {},
	"key":  {},
}

// DocumentExtensions are rendered into a single PDF.
var DocumentExtensions = map[string]struct{}{
	"doc":  {},
	"docx": {},
	"odt":  {},
	"rtf":  {},
	"txt":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the rendering format for an extension, or "" when unsupported.
func MapExtToFormat(ext string) Format {
	ext = NormalizeExt(ext)
	if _, ok := SlideExtensions[ext]; ok {
		return SlideDeck
	}
	if _, ok := DocumentExtensions[ext]; ok {
		return Document
	}
	return ""
}

// ParseFormat accepts the wire names plus a few aliases.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "slides", "slide", "slide-deck", "ppt":
		return SlideDeck, true
	case "document", "doc", "word":
		return Document, true
	}
	return "", false
}

var reCacheKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,199}$`)

// IsValidCacheKey reports whether key can be used as a single directory name under the artifact root.
func IsValidCacheKey(key string) bool {
	return reCacheKey.MatchString(key) && !strings.Contains(key, "..")
}
