package pipeline

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"

	"github.com/sells-group/enrich-cli/internal/model"
)

var (
	// Pass 1: markdown links whose target carries a document extension.
	mdDocLink = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+\.(?:pdf|docx?|xlsx?)(?:\?[^\s)]*)?)\)`)
	// Pass 2: bare document URLs in raw content.
	bareDocURL = regexp.MustCompile(`https?://[^\s<>"')\]]+\.(?:pdf|docx?|xlsx?)(?:\?[^\s<>"')\]]*)?`)
	// Pass 3: document-keyword link text pointing at a download-style URL.
	keywordDocLink = regexp.MustCompile(`(?i)\[([^\]]*(?:manual|datasheet|navodila|anleitung|instructions|user guide|certifikat|certificate)[^\]]*)\]\((https?://[^\s)]*(?:download|file|doc|media|asset)[^\s)]*)\)`)

	imageExtInURL = regexp.MustCompile(`(?i)\.(?:jpg|jpeg|png|webp|gif|svg)(?:\?|$)`)
	photoPhrase   = regexp.MustCompile(`(?i)\b(image of|photo of|picture of|close[- ]?up|pictured)\b`)

	// versionSuffix strips trailing version or hash markers from a filename
	// stem so that revisions of the same document collapse to one key.
	versionSuffix = regexp.MustCompile(`(?i)[-_.]?(?:v|ver|rev|version)?[-_.]?\d+(?:[-_.]\d+)*$|[-_][0-9a-f]{6,}$`)
)

// docTypeKeywords maps lowercased title+URL keywords to a document type.
// Order matters: the first matching type wins.
var docTypeKeywords = []struct {
	docType  model.DocType
	keywords []string
}{
	{model.DocTypeManual, []string{"manual", "navodila", "bedienungsanleitung", "anleitung", "user guide", "instructions", "uputstvo"}},
	{model.DocTypeDatasheet, []string{"datasheet", "data sheet", "spec sheet", "specifications", "technical data", "tehnicni podatki", "tehnični podatki"}},
	{model.DocTypeCertificate, []string{"certificate", "certifikat", "declaration", "conformity", "konformit"}},
	{model.DocTypeWarranty, []string{"warranty", "garancija", "garantie", "guarantee"}},
	{model.DocTypeSafety, []string{"safety", "msds", "sds", "varnost", "sicherheit"}},
	{model.DocTypeBrochure, []string{"brochure", "katalog", "catalog", "prospekt", "flyer", "leaflet"}},
}

// langHints are URL/title fragments resolving language without detection.
var langHints = []struct {
	code      string
	fragments []string
}{
	{"en", []string{"_en", "-en.", "/en/", "/en_", "english"}},
	{"de", []string{"_de", "-de.", "/de/", "german", "deutsch"}},
	{"sl", []string{"_sl", "-sl.", "/sl/", "_si", "slovensk", "slovenian"}},
	{"it", []string{"_it", "-it.", "/it/", "italian", "italiano"}},
	{"fr", []string{"_fr", "-fr.", "/fr/", "french", "francais", "français"}},
}

var (
	docDetectorOnce sync.Once
	docDetector     lingua.LanguageDetector
)

// titleDetector lazily builds the lingua detector over the languages the
// catalog actually sees. Model loading is expensive, so it happens once.
func titleDetector() lingua.LanguageDetector {
	docDetectorOnce.Do(func() {
		docDetector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(lingua.English, lingua.German, lingua.Slovene, lingua.Italian, lingua.French).
			Build()
	})
	return docDetector
}

// classifyDocType assigns a document type from title and URL keywords.
func classifyDocType(title, docURL string) model.DocType {
	haystack := strings.ToLower(title + " " + docURL)
	for _, entry := range docTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(haystack, kw) {
				return entry.docType
			}
		}
	}
	return model.DocTypeOther
}

// classifyDocLanguage resolves a language code from URL/title hints, falling
// back to statistical detection on titles long enough to carry signal.
func classifyDocLanguage(title, docURL string) string {
	haystack := strings.ToLower(title + " " + docURL)
	for _, hint := range langHints {
		for _, frag := range hint.fragments {
			if strings.Contains(haystack, frag) {
				return hint.code
			}
		}
	}
	if len(title) >= 12 {
		if lang, ok := titleDetector().DetectLanguageOf(title); ok {
			return strings.ToLower(lang.IsoCode639_1().String())
		}
	}
	return ""
}

// altTextShaped reports whether a captured link title looks like image
// alt-text rather than a document name: over-long, sentence-like, or
// photographic phrasing. Regex passes over markdown sometimes capture these
// from adjacent image syntax.
func altTextShaped(title string) bool {
	title = strings.TrimSpace(title)
	if len(title) > 120 {
		return true
	}
	if photoPhrase.MatchString(title) {
		return true
	}
	if strings.HasSuffix(title, ".") && len(strings.Fields(title)) > 12 {
		return true
	}
	return false
}

// filenameKey normalizes a document URL to its dedup key: the lowercased
// filename stem with version and hash suffixes stripped.
func filenameKey(docURL string) string {
	u, err := url.Parse(docURL)
	if err != nil {
		return strings.ToLower(docURL)
	}
	base := strings.ToLower(path.Base(u.Path))
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	for {
		stripped := versionSuffix.ReplaceAllString(base, "")
		if stripped == base || stripped == "" {
			break
		}
		base = stripped
	}
	return base
}

// titleFromURL derives a fallback title from the document filename.
func titleFromURL(docURL string) string {
	u, err := url.Parse(docURL)
	if err != nil {
		return docURL
	}
	base := path.Base(u.Path)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.TrimSpace(base)
}

// DiscoverDocuments harvests document links from every cached page's raw
// content, classifies type and language heuristically, deduplicates by
// normalized filename keeping the highest source tier, and returns the set
// ordered by document-type priority, capped.
func DiscoverDocuments(pages []model.ScrapedPage, maxDocs int) []model.ProductDocument {
	type candidate struct {
		doc   model.ProductDocument
		tier  model.SourceTier
		order int
	}
	byKey := make(map[string]candidate)
	order := 0

	consider := func(title, docURL string, page model.ScrapedPage) {
		title = strings.TrimSpace(title)
		docURL = strings.TrimSpace(docURL)
		if docURL == "" || imageExtInURL.MatchString(docURL) || altTextShaped(title) {
			return
		}
		if title == "" {
			title = titleFromURL(docURL)
		}
		doc := model.ProductDocument{
			Title:      title,
			URL:        docURL,
			Type:       classifyDocType(title, docURL),
			Language:   classifyDocLanguage(title, docURL),
			SourcePage: page.URL,
			Tier:       page.SourceTier.ConfidenceTier(),
		}
		key := filenameKey(docURL)
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = candidate{doc: doc, tier: page.SourceTier, order: order}
			order++
			return
		}
		if page.SourceTier.Rank() > existing.tier.Rank() {
			byKey[key] = candidate{doc: doc, tier: page.SourceTier, order: existing.order}
		}
	}

	for _, page := range pages {
		for _, m := range mdDocLink.FindAllStringSubmatch(page.Markdown, -1) {
			consider(m[1], m[2], page)
		}
		for _, raw := range bareDocURL.FindAllString(page.Markdown, -1) {
			consider("", raw, page)
		}
		for _, m := range keywordDocLink.FindAllStringSubmatch(page.Markdown, -1) {
			consider(m[1], m[2], page)
		}
	}

	candidates := make([]candidate, 0, len(byKey))
	for _, c := range byKey {
		candidates = append(candidates, c)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := candidates[i].doc.Type.Priority(), candidates[j].doc.Type.Priority()
		if pi != pj {
			return pi < pj
		}
		return candidates[i].order < candidates[j].order
	})
	if maxDocs > 0 && len(candidates) > maxDocs {
		candidates = candidates[:maxDocs]
	}

	out := make([]model.ProductDocument, len(candidates))
	for i, c := range candidates {
		out[i] = c.doc
	}
	return out
}
