package extract

import (
	"net/url"
	"path"
	"strings"
)

// ImageExtensions are the path suffixes treated as images
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".svg"}

var (
	rejectMarkers = []string{"javascript:", "mailto:", "tel:", "#"}
	imageKeywords = []string{"image", "img", "photo", "pic", "avatar"}
	imageHosts    = []string{"imgur.com", "i.imgur.com", "66img.cc", "23img.com", "postimg.cc", "imgbb.com"}
)

// Rejected reports whether raw must be discarded before the image predicate runs:
// a non-HTTP scheme, or a script, mail, phone or fragment marker anywhere in the URL.
func Rejected(raw string) bool {
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return true
	}
	for _, marker := range rejectMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// LooksLikeImage is the image-URL predicate. A URL qualifies if its path ends in a known
// image extension, it contains an image-related keyword, or its host is a known image host.
func LooksLikeImage(raw string) bool {
	if Rejected(raw) {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if HasImageExtension(u.Path) {
		return true
	}

	lower := strings.ToLower(raw)
	for _, kw := range imageKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	host := strings.ToLower(u.Hostname())
	for _, h := range imageHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// HasImageExtension reports whether p ends in one of ImageExtensions (case-insensitive)
func HasImageExtension(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
