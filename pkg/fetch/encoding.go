package fetch

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// detectionCandidates are tried in order when nothing declares a charset and the bytes are not UTF-8.
// The list favors the CJK encodings common on the forums this tool is pointed at.
var detectionCandidates = []string{"gb18030", "big5", "shift_jis", "euc-kr"}

// DecodeText converts body to UTF-8. A charset declared by a BOM, the Content-Type header
// or a <meta> tag wins; otherwise the encoding is detected from the bytes.
// Returns the text and the canonical name of the encoding used.
func DecodeText(body []byte, contentType string) (string, string) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain && name == "windows-1252" && !declaresCharset(body) {
		if detected, detectedName, ok := detectEncoding(body); ok {
			enc, name = detected, detectedName
		}
	}
	if name == "utf-8" {
		return string(body), name
	}

	text, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body), "utf-8"
	}
	return string(text), name
}

// declaresCharset reports whether the document head mentions a charset, i.e. the
// windows-1252 result came from a <meta> tag rather than the fallback
func declaresCharset(body []byte) bool {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	return strings.Contains(strings.ToLower(string(head)), "charset")
}

// detectEncoding returns the first candidate that decodes body without replacement characters
func detectEncoding(body []byte) (encoding.Encoding, string, bool) {
	if utf8.Valid(body) {
		return encoding.Nop, "utf-8", true
	}
	for _, name := range detectionCandidates {
		enc, err := htmlindex.Get(name)
		if err != nil {
			continue
		}
		decoded, err := enc.NewDecoder().Bytes(body)
		if err != nil {
			continue
		}
		if !strings.ContainsRune(string(decoded), utf8.RuneError) {
			canonical, _ := htmlindex.Name(enc)
			return enc, canonical, true
		}
	}
	return nil, "", false
}
