package fetch

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"

	"img-scraper/pkg/retry"
)

// RobotsHandler manages fetching, parsing, caching, and checking robots.txt data
type RobotsHandler struct {
	fetcher       *Fetcher
	userAgent     string
	robotsCache   map[string]*robotstxt.RobotsData // host -> parsed data (or nil)
	robotsCacheMu sync.Mutex
	log           *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(fetcher *Fetcher, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// GetRobotsData retrieves robots.txt data for the target's host, using cache or fetching.
// Returns nil on any error, non-2xx or parse failure; the nil result is cached too.
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Host
	hostLog := rh.log.WithField("host", host)

	// 1. Check Cache
	rh.robotsCacheMu.Lock()
	robotsData, found := rh.robotsCache[host]
	rh.robotsCacheMu.Unlock()
	if found {
		return robotsData
	}

	// 2. Fetch with a single attempt; robots.txt is advisory
	robotsURL := &url.URL{Scheme: target.Scheme, Host: host, Path: "/robots.txt"}
	robotsLog := hostLog.WithField("robots_url", robotsURL.String())
	robotsLog.Info("Fetching robots.txt...")

	header := http.Header{}
	header.Set("User-Agent", rh.userAgent)
	_, body, err := rh.fetcher.GetBody(ctx, Request{
		URL:    robotsURL.String(),
		Header: header,
		Policy: retry.Policy{MaxAttempts: 1},
		Kind:   KindRobots,
	}, 512<<10)
	if err != nil {
		robotsLog.Warnf("Fetching robots.txt failed, assuming allowed: %v", err)
		rh.store(host, nil)
		return nil
	}

	// 3. Parse Body
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt: %v", err)
		rh.store(host, nil)
		return nil
	}

	robotsLog.Debug("Parsed robots.txt")
	rh.store(host, data)
	return data
}

func (rh *RobotsHandler) store(host string, data *robotstxt.RobotsData) {
	rh.robotsCacheMu.Lock()
	rh.robotsCache[host] = data
	rh.robotsCacheMu.Unlock()
}

// TestAgent checks if the user agent may fetch target.
// Returns true if allowed or if robots data could not be obtained.
func (rh *RobotsHandler) TestAgent(ctx context.Context, target *url.URL) bool {
	robotsData := rh.GetRobotsData(ctx, target)
	if robotsData == nil {
		return true
	}
	return robotsData.TestAgent(target.RequestURI(), rh.userAgent)
}
