package pipeline

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/enrich-cli/internal/config"
)

// imageExtensions are the file extensions the URL gate accepts. Vector
// formats pass the gate and are rejected by content type at probe time.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".svg"}

// chromeURLPattern matches URL fragments that mark site chrome rather than
// product photography.
var chromeURLPattern = regexp.MustCompile(`(?i)(icon|logo|sprite|favicon|flag|badge|avatar|placeholder|spacer|pixel|tracking|captcha|banner|rating|stars?[-_./]|/social/|facebook|twitter|instagram|youtube|paypal|visa|mastercard|maestro|klarna|payment)`)

// mdImageURL captures image targets from markdown image syntax.
var mdImageURL = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^\s)]+)\)`)

// bareImageURL captures direct image links in raw content.
var bareImageURL = regexp.MustCompile(`https?://[^\s<>"')\]]+\.(?:jpg|jpeg|png|webp|gif|svg)(?:\?[^\s<>"')\]]*)?`)

// ImageFilter separates product photography from site chrome with two
// deterministic gates: URL heuristics, then concurrent network probes
// checking content type and byte size.
type ImageFilter struct {
	http        *http.Client
	minBytes    int64
	maxBytes    int64
	keepCount   int
	concurrency int
}

// NewImageFilter builds a filter from config.
func NewImageFilter(cfg config.ImageConfig) *ImageFilter {
	timeout := time.Duration(cfg.ProbeTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	concurrency := cfg.ProbeConcurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return &ImageFilter{
		http:        &http.Client{Timeout: timeout},
		minBytes:    cfg.MinBytes,
		maxBytes:    cfg.MaxBytes,
		keepCount:   cfg.KeepCount,
		concurrency: concurrency,
	}
}

// withHTTPClient swaps the probe client, for tests.
func (f *ImageFilter) withHTTPClient(hc *http.Client) *ImageFilter {
	f.http = hc
	return f
}

// harvestImageURLs collects every image candidate from raw page content,
// deduplicated in first-seen order and capped.
func harvestImageURLs(markdown string, cap int) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] || len(out) >= cap {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	for _, m := range mdImageURL.FindAllStringSubmatch(markdown, -1) {
		add(m[1])
	}
	for _, m := range bareImageURL.FindAllString(markdown, -1) {
		add(m)
	}
	return out
}

// acceptURL is the heuristic gate: a recognized image extension and no
// chrome pattern anywhere in the URL.
func acceptURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if chromeURLPattern.MatchString(raw) {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

type probeResult struct {
	url  string
	size int64
	keep bool
}

// probe issues a HEAD request and applies the content gates. A network
// failure keeps the candidate provisionally with zero observed size, so a
// flaky host never costs a real product photo.
func (f *ImageFilter) probe(ctx context.Context, imageURL string) probeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		return probeResult{url: imageURL}
	}
	resp, err := f.http.Do(req)
	if err != nil {
		zap.L().Debug("image probe failed, keeping provisionally",
			zap.String("url", imageURL), zap.Error(err))
		return probeResult{url: imageURL, keep: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return probeResult{url: imageURL}
	}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		return probeResult{url: imageURL}
	}
	if strings.Contains(contentType, "svg") || strings.Contains(contentType, "icon") {
		return probeResult{url: imageURL}
	}
	size := resp.ContentLength
	if size > 0 {
		if size < f.minBytes || size > f.maxBytes {
			return probeResult{url: imageURL}
		}
	}
	if size < 0 {
		size = 0
	}
	return probeResult{url: imageURL, size: size, keep: true}
}

// Filter runs both gates over the candidates and returns the surviving
// list, sorted by observed size descending and capped, plus the primary
// image: the nominee when it survived filtering, otherwise the first
// survivor.
func (f *ImageFilter) Filter(ctx context.Context, candidates []string, nominee string) (primary string, kept []string) {
	var gated []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		if acceptURL(c) {
			gated = append(gated, c)
		}
	}
	if len(gated) == 0 {
		return "", nil
	}

	results := make([]probeResult, len(gated))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, u := range gated {
		g.Go(func() error {
			results[i] = f.probe(gctx, u)
			return nil
		})
	}
	_ = g.Wait()

	var survivors []probeResult
	for _, r := range results {
		if r.keep {
			survivors = append(survivors, r)
		}
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].size > survivors[j].size
	})
	if f.keepCount > 0 && len(survivors) > f.keepCount {
		survivors = survivors[:f.keepCount]
	}

	for _, r := range survivors {
		kept = append(kept, r.url)
	}
	if len(kept) == 0 {
		return "", nil
	}
	primary = kept[0]
	for _, u := range kept {
		if u == nominee {
			primary = nominee
			break
		}
	}
	return primary, kept
}
