package extract

import (
	"html"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"img-scraper/pkg/models"
)

// srcAttributes are checked in priority order on image tags; the first non-empty one wins
var srcAttributes = []string{"src", "data-src", "data-original", "data-lazy"}

var backgroundURLPattern = regexp.MustCompile(`(?i)background(?:-image)?\s*:[^;]*?url\(\s*["']?([^"')]+)["']?\s*\)`)

// rawPatterns scan the unparsed document. The last one matches any quoted string ending
// in an image extension, which also hits unrelated script data; the download stage filters those.
var rawPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://[^\s"'<>]+\.(?:jpg|jpeg|png|gif|bmp|webp|svg)`),
	regexp.MustCompile(`(?i)src\s*=\s*["']([^"']+\.(?:jpg|jpeg|png|gif|bmp|webp|svg))["']`),
	regexp.MustCompile(`(?i)data-src\s*=\s*["']([^"']+\.(?:jpg|jpeg|png|gif|bmp|webp|svg))["']`),
	regexp.MustCompile(`(?i)data-original\s*=\s*["']([^"']+\.(?:jpg|jpeg|png|gif|bmp|webp|svg))["']`),
	regexp.MustCompile(`(?i)["']([^"']*(?:https?://)?[^"']*\.(?:jpg|jpeg|png|gif|bmp|webp|svg))["']`),
}

// strategy is one independent discovery heuristic
type strategy func(e *Extractor, in input, set *CandidateSet)

type input struct {
	doc  *goquery.Document
	raw  string
	base *url.URL
}

// defaultStrategies run in this order; the resulting set does not depend on it
var defaultStrategies = []strategy{
	(*Extractor).fromTagAttributes,
	(*Extractor).fromAnchors,
	(*Extractor).fromInlineStyles,
	(*Extractor).fromRawContent,
}

// Extractor discovers image URLs in a fetched page using four independent strategies
type Extractor struct {
	extraPatterns []*regexp.Regexp
	strategies    []strategy
	log           *logrus.Entry
}

// New creates an Extractor. extraPatterns are additional raw-content patterns; capture group 1
// is used when present, otherwise the whole match.
func New(extraPatterns []*regexp.Regexp, log *logrus.Entry) *Extractor {
	return &Extractor{
		extraPatterns: extraPatterns,
		strategies:    defaultStrategies,
		log:           log,
	}
}

// Extract returns the union of all strategies' candidates for page
func (e *Extractor) Extract(page *models.PageDocument) *CandidateSet {
	raw := page.Text
	if raw == "" {
		raw = string(page.Raw)
	}
	return e.ExtractFrom(page.Doc, raw, page.FinalURL)
}

// ExtractFrom runs every strategy over doc and raw, resolving relative references against base.
// A <base href> in the document overrides base.
func (e *Extractor) ExtractFrom(doc *goquery.Document, raw string, base *url.URL) *CandidateSet {
	set := NewCandidateSet()
	if base == nil {
		return set
	}
	in := input{doc: doc, raw: raw, base: documentBase(doc, base)}

	for _, run := range e.strategies {
		run(e, in, set)
	}

	e.log.WithFields(logrus.Fields{"url": base.String(), "found": set.Len(), "by_strategy": set.CountBy()}).Debug("Extraction complete")
	return set
}

// fromTagAttributes resolves the first non-empty source attribute of every <img>.
// Sources such as counters and ad scripts must still pass the image predicate.
func (e *Extractor) fromTagAttributes(in input, set *CandidateSet) {
	if in.doc == nil {
		return
	}
	in.doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		for _, attr := range srcAttributes {
			val, ok := img.Attr(attr)
			if !ok || strings.TrimSpace(val) == "" {
				continue
			}
			e.addIfImage(in.base, val, models.StrategyTagAttribute, set)
			return
		}
	})
}

// fromAnchors keeps hyperlink targets that pass the image predicate
func (e *Extractor) fromAnchors(in input, set *CandidateSet) {
	if in.doc == nil {
		return
	}
	in.doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		e.addIfImage(in.base, href, models.StrategyAnchor, set)
	})
}

// fromInlineStyles extracts background-image URLs from style attributes
func (e *Extractor) fromInlineStyles(in input, set *CandidateSet) {
	if in.doc == nil {
		return
	}
	in.doc.Find("[style]").Each(func(_ int, el *goquery.Selection) {
		style, _ := el.Attr("style")
		for _, m := range backgroundURLPattern.FindAllStringSubmatch(style, -1) {
			e.addIfImage(in.base, m[1], models.StrategyInlineStyle, set)
		}
	})
}

// fromRawContent scans the unparsed text, recovering URLs from scripts and broken markup
func (e *Extractor) fromRawContent(in input, set *CandidateSet) {
	if in.raw == "" {
		return
	}
	patterns := rawPatterns
	if len(e.extraPatterns) > 0 {
		patterns = append(append([]*regexp.Regexp{}, rawPatterns...), e.extraPatterns...)
	}
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(in.raw, -1) {
			match := m[0]
			if len(m) > 1 && m[1] != "" {
				match = m[1]
			}
			e.addIfImage(in.base, html.UnescapeString(match), models.StrategyRawContent, set)
		}
	}
}

func (e *Extractor) addIfImage(base *url.URL, ref string, s models.Strategy, set *CandidateSet) {
	abs, ok := resolve(base, ref)
	if !ok || !LooksLikeImage(abs) {
		return
	}
	set.Add(models.ImageCandidate{URL: abs, Strategy: s})
}

// resolve turns ref into an absolute URL string against base
func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(u)
	if abs.Host == "" {
		return "", false
	}
	return canonicalURL(abs), true
}

// canonicalURL lowercases scheme and host, drops default ports and gives an empty path "/",
// so spellings of the same resource collapse to one set key. Path and query are kept.
func canonicalURL(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	if host, port, err := net.SplitHostPort(c.Host); err == nil {
		if (c.Scheme == "http" && port == "80") || (c.Scheme == "https" && port == "443") {
			c.Host = host
		}
	}
	if c.Path == "" && c.Opaque == "" {
		c.Path = "/"
	}
	return c.String()
}

// documentBase honors <base href> when present and parseable
func documentBase(doc *goquery.Document, base *url.URL) *url.URL {
	if doc == nil {
		return base
	}
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return base
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return base
	}
	return base.ResolveReference(u)
}
