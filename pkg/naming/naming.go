package naming

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"img-scraper/pkg/utils"
)

const (
	// MaxFolderNameRunes caps the title part of a folder name
	MaxFolderNameRunes = 100
	// minFolderNameRunes is the shortest sanitized title accepted before falling back to the host
	minFolderNameRunes = 3
	// DefaultExtension is used when the content type is unknown
	DefaultExtension = ".jpg"
)

var contentTypeExtensions = map[string]string{
	"image/jpeg":     ".jpg",
	"image/jpg":      ".jpg",
	"image/pjpeg":    ".jpg",
	"image/png":      ".png",
	"image/gif":      ".gif",
	"image/bmp":      ".bmp",
	"image/x-ms-bmp": ".bmp",
	"image/webp":     ".webp",
	"image/svg+xml":  ".svg",
	"image/avif":     ".avif",
	"image/x-icon":   ".ico",
	"image/tiff":     ".tif",
}

// Namer derives folder and file names. The clock is injectable for tests.
type Namer struct {
	now func() time.Time
}

// New returns a Namer using the wall clock
func New() *Namer {
	return &Namer{now: time.Now}
}

// NewWithClock returns a Namer using now for timestamps
func NewWithClock(now func() time.Time) *Namer {
	return &Namer{now: now}
}

// FolderName derives a destination folder name from the page: <title>, else the first <h1>,
// else the host. Short results fall back to images_<host>_<unix>; a _<unix> suffix is always appended.
func (n *Namer) FolderName(doc *goquery.Document, pageURL *url.URL) string {
	host := ""
	if pageURL != nil {
		host = pageURL.Host
	}
	ts := n.now().Unix()

	title := PageTitle(doc)
	if title == "" {
		title = "images_from_" + host
	}

	cleaned := utils.SanitizeFilename(title)
	if cleaned == utils.DefaultFilename || len([]rune(cleaned)) < minFolderNameRunes {
		cleaned = utils.SanitizeFilename(fmt.Sprintf("images_%s_%d", host, ts))
	}
	cleaned = utils.TruncateRunes(cleaned, MaxFolderNameRunes)

	return fmt.Sprintf("%s_%d", cleaned, ts)
}

// PageTitle returns the trimmed <title> text, else the first <h1>, else ""
func PageTitle(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// FileName returns the file name for an image: the URL's final path segment when it contains
// a dot, else image_<unix-millis><ext> with ext chosen from contentType.
func (n *Namer) FileName(rawURL, contentType string) string {
	if name, ok := FileNameFromURL(rawURL); ok {
		return name
	}
	return utils.SanitizeFilename(fmt.Sprintf("image_%d%s", n.now().UnixMilli(), ExtensionFor(contentType)))
}

// FileNameFromURL returns the sanitized final path segment of rawURL if it contains a dot.
// The query string is never part of the name.
func FileNameFromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "", false
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || !strings.Contains(base, ".") {
		return "", false
	}
	name := utils.SanitizeFilename(base)
	if name == utils.DefaultFilename {
		return "", false
	}
	return name, true
}

// ExtensionFor maps a Content-Type header value to a file extension, defaulting to .jpg
func ExtensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if ext, ok := contentTypeExtensions[mediaType]; ok {
		return ext
	}
	return DefaultExtension
}
