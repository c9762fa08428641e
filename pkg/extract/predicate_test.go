package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikeImage(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/a.jpg", true},
		{"https://example.com/a.JPEG", true},
		{"http://example.com/dir/b.svg", true},
		{"https://example.com/a.jpg?size=large", true},
		{"https://example.com/gallery/view?id=1", false},
		{"https://example.com/avatar/42", true},
		{"https://example.com/get?type=photo", true},
		{"https://imgur.com/gallery/abc", true},
		{"https://sub.postimg.cc/abc", true},
		{"https://example.com/thread/1", false},
		{"ftp://example.com/a.jpg", false},
		{"data:image/png;base64,AAAA", false},
		{"https://example.com/a.jpg#frag", false},
		{"https://example.com/a.png?mailto:x", false},
		{"javascript:alert('a.jpg')", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeImage(tt.url), "LooksLikeImage(%q)", tt.url)
	}
}

func TestRejected(t *testing.T) {
	assert.False(t, Rejected("https://example.com/x"))
	assert.False(t, Rejected("HTTP://EXAMPLE.COM/X"))
	assert.True(t, Rejected("//example.com/x"))
	assert.True(t, Rejected("tel:+100"))
	assert.True(t, Rejected("https://example.com/#top"))
}

func TestHasImageExtension(t *testing.T) {
	assert.True(t, HasImageExtension("/x/y.webp"))
	assert.True(t, HasImageExtension("Y.GIF"))
	assert.False(t, HasImageExtension("/x/y.html"))
	assert.False(t, HasImageExtension("/x/jpg"))
}

func TestCandidateSet(t *testing.T) {
	set := NewCandidateSet()
	assert.True(t, set.Add(candidate("https://b.example/2.png", "raw_content")))
	assert.True(t, set.Add(candidate("https://a.example/1.png", "anchor")))
	assert.False(t, set.Add(candidate("https://b.example/2.png", "tag_attribute")))
	assert.False(t, set.Add(candidate("https://b.example/2.png", "inline_style")))

	assert.Equal(t, 2, set.Len())
	sorted := set.Sorted()
	assert.Equal(t, "https://a.example/1.png", sorted[0].URL)
	assert.Equal(t, "tag_attribute", string(sorted[1].Strategy))

	assert.Len(t, set.Limit(1), 1)
	assert.Len(t, set.Limit(0), 2)
	assert.Len(t, set.Limit(10), 2)
}
