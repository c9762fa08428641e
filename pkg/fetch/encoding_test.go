package fetch

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestDecodeText_DeclaredHeader(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().String("<html><title>图片合集</title></html>")
	require.NoError(t, err)

	text, name := DecodeText([]byte(gbk), "text/html; charset=gbk")
	assert.Equal(t, "gbk", name)
	assert.Contains(t, text, "图片合集")
}

func TestDecodeText_DeclaredMeta(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().String(`<html><head><meta charset="gbk"><title>风景</title></head></html>`)
	require.NoError(t, err)

	text, name := DecodeText([]byte(gbk), "text/html")
	assert.Equal(t, "gbk", name)
	assert.Contains(t, text, "风景")
}

func TestDecodeText_UTF8Undeclared(t *testing.T) {
	text, name := DecodeText([]byte("<p>héllo 世界</p>"), "")
	assert.Equal(t, "utf-8", name)
	assert.Equal(t, "<p>héllo 世界</p>", text)
}

func TestDecodeText_DetectsUndeclaredGB18030(t *testing.T) {
	encoded, err := simplifiedchinese.GB18030.NewEncoder().String("<p>论坛图片分享</p>")
	require.NoError(t, err)

	text, name := DecodeText([]byte(encoded), "text/html")
	assert.Equal(t, "gb18030", name)
	assert.Contains(t, text, "论坛图片分享")
}

func TestDecodedBody_Deflate(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write([]byte("deflated payload"))
	require.NoError(t, zw.Close())

	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"deflate"}},
		Body:   io.NopCloser(&buf),
	}
	body, err := ReadBody(resp, 0)
	require.NoError(t, err)
	assert.Equal(t, "deflated payload", string(body))
}

func TestDecodedBody_Unsupported(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"compress"}},
		Body:   io.NopCloser(bytes.NewReader(nil)),
	}
	_, err := ReadBody(resp, 0)
	assert.Error(t, err)
}

func TestReadBody_Limit(t *testing.T) {
	resp := &http.Response{Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(make([]byte, 100)))}
	body, err := ReadBody(resp, 10)
	require.NoError(t, err)
	assert.Len(t, body, 10)
}
