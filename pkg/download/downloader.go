package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"img-scraper/pkg/config"
	"img-scraper/pkg/fetch"
	"img-scraper/pkg/models"
	"img-scraper/pkg/naming"
	"img-scraper/pkg/utils"
)

const imageAccept = "image/webp,image/apng,image/*,*/*;q=0.8"

// urlImageHints let a download proceed when the server sends a non-image content type
var urlImageHints = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// Downloader streams image candidates to disk and validates the result
type Downloader struct {
	fetcher *fetch.Fetcher
	namer   *naming.Namer
	cfg     *config.AppConfig
	log     *logrus.Entry
}

// New creates a Downloader
func New(fetcher *fetch.Fetcher, namer *naming.Namer, cfg *config.AppConfig, log *logrus.Entry) *Downloader {
	return &Downloader{
		fetcher: fetcher,
		namer:   namer,
		cfg:     cfg,
		log:     log,
	}
}

// Download fetches imageURL into dir. It returns the asset when a usable file exists afterwards
// (written now or already present) together with the per-item result. Failures never panic and
// never leave a partial file behind.
func (d *Downloader) Download(ctx context.Context, imageURL, dir string) (*models.DownloadedAsset, models.ItemResult) {
	imgLog := d.log.WithField("img_url", imageURL)
	result := models.ItemResult{URL: imageURL}

	// --- Existing file: skip the network entirely when the name is derivable from the URL ---
	if name, ok := naming.FileNameFromURL(imageURL); ok {
		if asset := existingAsset(filepath.Join(dir, name), imageURL, ""); asset != nil {
			imgLog.WithField("path", asset.Path).Debug("Image already present, not re-fetching")
			result.Status = models.ItemStatusExisting
			return asset, result
		}
	}

	// --- Fetch ---
	header := http.Header{}
	header.Set("User-Agent", d.cfg.UserAgent)
	header.Set("Referer", imageURL)
	header.Set("Accept", imageAccept)

	resp, err := d.fetcher.Do(ctx, fetch.Request{
		URL:    imageURL,
		Header: header,
		Policy: d.cfg.ImageRetry,
		Kind:   fetch.KindImage,
	})
	if err != nil {
		return nil, failed(result, err)
	}
	defer resp.Body.Close()

	// --- Content-type plausibility ---
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !acceptableContent(imageURL, contentType) {
		err := utils.WrapErrorf(utils.ErrContentRejected, "content-type '%s' for %s", contentType, imageURL)
		imgLog.WithField("content_type", contentType).Info("Skipping non-image response")
		return nil, skipped(result, err)
	}

	name := d.namer.FileName(imageURL, contentType)
	path := filepath.Join(dir, name)
	if asset := existingAsset(path, imageURL, contentType); asset != nil {
		imgLog.WithField("path", path).Debug("Image already present, keeping existing file")
		result.Status = models.ItemStatusExisting
		return asset, result
	}

	// --- Stream to a temp file, validate, then move into place ---
	size, err := d.writeFile(resp.Body, dir, path)
	if err != nil {
		if errors.Is(err, utils.ErrContentRejected) {
			imgLog.Info("Skipping undersized image")
			return nil, skipped(result, err)
		}
		return nil, failed(result, err)
	}

	imgLog.WithFields(logrus.Fields{"path": path, "bytes": size}).Debug("Image saved")
	result.Status = models.ItemStatusDownloaded
	return &models.DownloadedAsset{
		Path:        path,
		SourceURL:   imageURL,
		Size:        size,
		ContentType: contentType,
	}, result
}

// writeFile copies body into path via a temporary file in dir.
// Files below the minimum size are removed and reported as ErrContentRejected.
func (d *Downloader) writeFile(body io.Reader, dir, path string) (int64, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("%w: ensuring directory '%s': %w", utils.ErrFilesystem, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*.part")
	if err != nil {
		return 0, fmt.Errorf("%w: creating temp file in '%s': %w", utils.ErrFilesystem, dir, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	buf := make([]byte, d.cfg.ChunkSize)
	size, copyErr := io.CopyBuffer(onlyWriter{tmp}, onlyReader{body}, buf)
	if copyErr != nil {
		cleanup()
		return 0, fmt.Errorf("%w: %w: streaming to '%s' (copied %d bytes): %w", utils.ErrTransient, utils.ErrResponseBodyRead, path, size, copyErr)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: closing '%s': %w", utils.ErrFilesystem, tmpPath, err)
	}

	if size < d.cfg.MinImageBytes {
		os.Remove(tmpPath)
		return 0, utils.WrapErrorf(utils.ErrContentRejected, "%d bytes is below the %d byte minimum", size, d.cfg.MinImageBytes)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: moving image into '%s': %w", utils.ErrFilesystem, path, err)
	}
	return size, nil
}

// onlyReader and onlyWriter hide WriterTo/ReaderFrom so CopyBuffer streams through the fixed-size buffer
type onlyReader struct{ io.Reader }

type onlyWriter struct{ io.Writer }

// acceptableContent accepts image-like content types, or any type when the URL names an image file
func acceptableContent(imageURL, contentType string) bool {
	if strings.HasPrefix(contentType, "image/") || strings.Contains(contentType, "image") {
		return true
	}
	lower := strings.ToLower(imageURL)
	for _, hint := range urlImageHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// existingAsset describes path if it is a regular file already on disk
func existingAsset(path, sourceURL, contentType string) *models.DownloadedAsset {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}
	return &models.DownloadedAsset{
		Path:        path,
		SourceURL:   sourceURL,
		Size:        info.Size(),
		ContentType: contentType,
	}
}

func failed(r models.ItemResult, err error) models.ItemResult {
	r.Status = models.ItemStatusFailed
	r.Reason = utils.CategorizeError(err)
	r.Err = err
	return r
}

func skipped(r models.ItemResult, err error) models.ItemResult {
	r.Status = models.ItemStatusSkipped
	r.Reason = utils.CategorizeError(err)
	r.Err = err
	return r
}
