package pipeline

import (
	"regexp"
	"strings"
)

// markerPrefixLen is the shortest fingerprint fragment still considered
// unambiguous when the full marker cannot be located.
const markerPrefixLen = 30

// fallbackWindow is the span taken after the start marker when the end
// marker never occurs in the content.
const fallbackWindow = 2000

var (
	wsRun        = regexp.MustCompile(`\s+`)
	mdImage      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	bareURL      = regexp.MustCompile(`https?://\S+`)
	multiSpace   = regexp.MustCompile(`  +`)
	ctaPhrases   = regexp.MustCompile(`(?i)\b(add to cart|buy now|free shipping|in stock|shop now|view details|add to wishlist|v ko[šs]arico|dodaj v ko[šs]arico|na zalogi|kupi zdaj)\b[.!]?`)
	chromeSignal = regexp.MustCompile(`(?i)(video player|play video|beginning of dialog|modal window|captions settings|caption settings|opens in a new window|escape will cancel|font size menu|transparency menu|keyboard shortcuts)`)
)

// normalizeWhitespace collapses all whitespace runs to single spaces so that
// fingerprints survive formatting differences between extraction output and
// cached raw content.
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(wsRun.ReplaceAllString(s, " "))
}

// findMarker locates a fingerprint inside normalized content: exact match
// first, then case-insensitive, then by the leading 30 characters (again
// exact then case-insensitive). Returns the index and matched length, or -1.
func findMarker(content, marker string) (idx, length int) {
	if marker == "" {
		return -1, 0
	}
	if i := strings.Index(content, marker); i >= 0 {
		return i, len(marker)
	}
	lower := strings.ToLower(content)
	lowerMarker := strings.ToLower(marker)
	if i := strings.Index(lower, lowerMarker); i >= 0 {
		return i, len(marker)
	}
	if len(marker) > markerPrefixLen {
		prefix := marker[:markerPrefixLen]
		if i := strings.Index(content, prefix); i >= 0 {
			return i, len(prefix)
		}
		if i := strings.Index(lower, strings.ToLower(prefix)); i >= 0 {
			return i, len(prefix)
		}
	}
	return -1, 0
}

// ResolveMarkers recovers the passage bounded by a start and end fingerprint
// from cached raw content. Returns "" when the start fingerprint does not
// occur in any of its fallback forms; a missing end fingerprint falls back
// to a fixed-length window. The resolved span is cleaned of markdown
// artifacts, bare URLs, and page-chrome text.
func ResolveMarkers(content, startMarker, endMarker string) string {
	normContent := normalizeWhitespace(content)
	start := normalizeWhitespace(startMarker)
	end := normalizeWhitespace(endMarker)

	startIdx, startLen := findMarker(normContent, start)
	if startIdx < 0 {
		return ""
	}

	spanEnd := -1
	if end != "" {
		rest := normContent[startIdx+startLen:]
		if endIdx, endLen := findMarker(rest, end); endIdx >= 0 {
			spanEnd = startIdx + startLen + endIdx + endLen
		}
	}
	if spanEnd < 0 {
		spanEnd = startIdx + fallbackWindow
		if spanEnd > len(normContent) {
			spanEnd = len(normContent)
		}
	}

	return CleanResolvedText(normContent[startIdx:spanEnd])
}

// CleanResolvedText strips scrape artifacts from a resolved passage:
// embedded markdown images and links, bare URLs, call-to-action phrases,
// and everything after the first page-chrome signal. Raw scraped content
// frequently runs on past the intended description into player or dialog
// UI text.
func CleanResolvedText(s string) string {
	if loc := chromeSignal.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = mdImage.ReplaceAllString(s, " ")
	s = mdLink.ReplaceAllString(s, "$1")
	s = bareURL.ReplaceAllString(s, " ")
	s = ctaPhrases.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
