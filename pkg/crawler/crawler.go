package crawler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"img-scraper/pkg/config"
	"img-scraper/pkg/download"
	"img-scraper/pkg/extract"
	"img-scraper/pkg/fetch"
	"img-scraper/pkg/models"
	"img-scraper/pkg/naming"
	"img-scraper/pkg/utils"
)

// Recorder receives crawl-level events
type Recorder interface {
	PageCrawled(success bool, errorType string, d time.Duration)
	ImageResult(status models.ItemStatus)
}

type nopRecorder struct{}

func (nopRecorder) PageCrawled(bool, string, time.Duration) {}
func (nopRecorder) ImageResult(models.ItemStatus)           {}

// Engine runs Fetch -> Extract -> Naming -> Download for one target at a time.
// It is shared by every entry point; nothing but the HTTP connection pool survives between crawls.
type Engine struct {
	cfg        *config.AppConfig
	fetcher    *fetch.Fetcher
	extractor  *extract.Extractor
	namer      *naming.Namer
	downloader *download.Downloader
	pacer      *download.Pacer
	recorder   Recorder
	log        *logrus.Entry
}

// Options contains optional collaborators for NewEngine
type Options struct {
	Recorder     Recorder       // Crawl metrics; also passed to the fetcher when it implements fetch.Recorder
	Namer        *naming.Namer  // Defaults to naming.New()
	FetchOptions []fetch.Option // Extra fetcher options
}

// NewEngine wires the crawl pipeline from a validated config
func NewEngine(cfg *config.AppConfig, log *logrus.Entry, opts *Options) (*Engine, error) {
	if opts == nil {
		opts = &Options{}
	}

	extraPatterns, err := utils.CompileRegexPatterns(cfg.ExtraImagePatterns)
	if err != nil {
		return nil, fmt.Errorf("%w: extra_image_patterns: %w", utils.ErrConfigValidation, err)
	}

	clients := fetch.NewClients(cfg.HTTPClientSettings, cfg.RequestTimeout, log.WithField("component", "http_client"))

	fetchOpts := opts.FetchOptions
	var recorder Recorder = nopRecorder{}
	if opts.Recorder != nil {
		recorder = opts.Recorder
		if fr, ok := opts.Recorder.(fetch.Recorder); ok {
			fetchOpts = append(fetchOpts, fetch.WithRecorder(fr))
		}
	}
	fetcher := fetch.NewFetcher(clients, cfg, log.WithField("component", "fetcher"), fetchOpts...)

	namer := opts.Namer
	if namer == nil {
		namer = naming.New()
	}

	return &Engine{
		cfg:        cfg,
		fetcher:    fetcher,
		extractor:  extract.New(extraPatterns, log.WithField("component", "extractor")),
		namer:      namer,
		downloader: download.New(fetcher, namer, cfg, log.WithField("component", "downloader")),
		pacer:      download.NewPacer(cfg.DownloadDelay),
		recorder:   recorder,
		log:        log,
	}, nil
}

// NewTarget builds a CrawlTarget with a fresh ID
func NewTarget(rawURL, source string, submitted time.Time) models.CrawlTarget {
	return models.CrawlTarget{
		ID:        uuid.NewString(),
		URL:       strings.TrimSpace(rawURL),
		Source:    source,
		Timestamp: submitted,
	}
}

// Crawl processes one target and always returns a terminal outcome.
// A page with no extractable images fails with an explanation; a page whose candidates all
// failed to download fails with the found/downloaded counts. Cancellation is checked before
// each image; an in-flight request is allowed to finish or time out.
func (e *Engine) Crawl(ctx context.Context, target models.CrawlTarget) (outcome models.CrawlOutcome) {
	start := time.Now()
	if target.ID == "" {
		target.ID = uuid.NewString()
	}
	crawlLog := e.log.WithFields(logrus.Fields{"url": target.URL, "crawl_id": target.ID})

	outcome = models.CrawlOutcome{Target: target, URL: target.URL}
	defer func() {
		outcome.CompletedAt = time.Now()
		e.recorder.PageCrawled(outcome.Success, outcome.ErrorType, time.Since(start))
	}()

	crawlLog.Info("Starting crawl")

	// --- 1. Fetch ---
	page, err := e.fetcher.Fetch(ctx, target.URL)
	if err != nil {
		crawlLog.WithError(err).Error("Failed to fetch page")
		return fail(outcome, err, fmt.Sprintf("Failed to fetch page: %v", err))
	}
	outcome.Title = naming.PageTitle(page.Doc)

	// --- 2. Extract ---
	set := e.extractor.Extract(page)
	outcome.Found = set.Len()
	if set.Len() == 0 {
		crawlLog.Warn("No image candidates found")
		return fail(outcome, utils.ErrNoImages, "No images found on page")
	}
	candidates := set.Limit(e.cfg.MaxImagesPerPage)
	if len(candidates) < set.Len() {
		crawlLog.Infof("Found %d candidates, limiting to %d", set.Len(), len(candidates))
	}

	// --- 3. Destination folder ---
	folder := filepath.Join(e.cfg.OutputDir, e.namer.FolderName(page.Doc, page.FinalURL))
	if err := os.MkdirAll(folder, 0755); err != nil {
		wrapped := fmt.Errorf("%w: creating %s: %w", utils.ErrFilesystem, folder, err)
		crawlLog.Error(wrapped)
		return fail(outcome, wrapped, fmt.Sprintf("Cannot create folder: %v", err))
	}
	outcome.Folder = folder

	// --- 4. Download, one at a time ---
	var stopErr error
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		// The first Wait takes the initial token, so every later download is spaced
		if err := e.pacer.Wait(ctx); err != nil {
			stopErr = err
			break
		}

		crawlLog.WithField("img_url", c.URL).Debugf("Downloading image %d/%d", i+1, len(candidates))
		asset, res := e.downloader.Download(ctx, c.URL, folder)
		e.recorder.ImageResult(res.Status)

		switch res.Status {
		case models.ItemStatusDownloaded:
			outcome.Downloaded++
		case models.ItemStatusExisting:
			outcome.Existing++
		case models.ItemStatusSkipped:
			outcome.Skipped++
		default:
			outcome.Failed++
		}
		if res.Status.HasAsset() && asset != nil {
			outcome.Assets = append(outcome.Assets, *asset)
		}
	}

	saved := outcome.Downloaded + outcome.Existing
	outcome.Success = saved > 0
	outcome.Message = fmt.Sprintf("Downloaded %d/%d images to: %s", saved, len(candidates), folder)

	switch {
	case stopErr != nil:
		outcome.Message += fmt.Sprintf(" (stopped: %v)", stopErr)
		if !outcome.Success {
			outcome.ErrorType = utils.CategorizeError(stopErr)
		}
	case !outcome.Success:
		outcome.ErrorType = utils.CategorizeError(utils.ErrContentRejected)
		if outcome.Failed > 0 {
			outcome.ErrorType = "Download_Failed"
		}
	}

	crawlLog.WithFields(logrus.Fields{
		"found":      outcome.Found,
		"downloaded": outcome.Downloaded,
		"existing":   outcome.Existing,
		"skipped":    outcome.Skipped,
		"failed":     outcome.Failed,
		"duration":   time.Since(start),
	}).Info("Crawl finished")
	return outcome
}

// fail fills a failed outcome, keeping context errors distinguishable in the category
func fail(o models.CrawlOutcome, err error, message string) models.CrawlOutcome {
	o.Success = false
	o.Message = message
	o.ErrorType = utils.CategorizeError(err)
	if errors.Is(err, context.Canceled) {
		o.ErrorType = "System_ContextCanceled"
	}
	return o
}
