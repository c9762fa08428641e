package fetch

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// AcceptEncoding is advertised on page requests; DecodedBody understands every listed coding
const AcceptEncoding = "gzip, deflate, br"

// DecodedBody wraps resp.Body so reads yield the identity-encoded payload.
// Closing the returned reader closes the underlying body.
func DecodedBody(resp *http.Response) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return resp.Body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip header: %w", err)
		}
		return &decodedBody{Reader: zr, closers: []io.Closer{zr, resp.Body}}, nil
	case "br":
		return &decodedBody{Reader: brotli.NewReader(resp.Body), closers: []io.Closer{resp.Body}}, nil
	case "deflate":
		// Servers disagree on whether "deflate" means zlib-wrapped or raw; try zlib first
		buffered := newPeekReader(resp.Body)
		if zr, err := zlib.NewReader(buffered); err == nil {
			return &decodedBody{Reader: zr, closers: []io.Closer{zr, resp.Body}}, nil
		}
		fr := flate.NewReader(buffered.rewound())
		return &decodedBody{Reader: fr, closers: []io.Closer{fr, resp.Body}}, nil
	default:
		return nil, fmt.Errorf("unsupported content-encoding '%s'", encoding)
	}
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (d *decodedBody) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// peekReader records what the zlib probe consumed so a raw-deflate reader can start over
type peekReader struct {
	src    io.Reader
	peeked []byte
}

func newPeekReader(src io.Reader) *peekReader {
	return &peekReader{src: src}
}

func (p *peekReader) Read(b []byte) (int, error) {
	n, err := p.src.Read(b)
	p.peeked = append(p.peeked, b[:n]...)
	return n, err
}

func (p *peekReader) rewound() io.Reader {
	return io.MultiReader(strings.NewReader(string(p.peeked)), p.src)
}
