package store

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/feedherald/feedherald/pkg/custom_cache"
	"github.com/feedherald/feedherald/pkg/helpers"
	"github.com/feedherald/feedherald/pkg/metrics"
	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var feedContentTypes = []string{
	"rss+xml",
	"atom+xml",
	"feed+json",
	"text/xml",
	"application/xml",
}

// Fetcher downloads and parses a feed. Configured urls pointing at an HTML
// page are resolved to the feed url the page advertises. Parsed feeds are
// cached between fetches.
type Fetcher struct {
	client *http.Client
	parser *gofeed.Parser
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
	}
}

func (f *Fetcher) Fetch(url string) (*gofeed.Feed, error) {
	feedString, err := custom_cache.Get(url)
	if err == nil {
		metrics.CacheHits.Inc()

		var feed gofeed.Feed
		err := json.Unmarshal([]byte(feedString), &feed)
		if err != nil {
			log.Printf("[ERROR] failure to parse cache stored feed: %v", err)
			metrics.AppErrors.With(prometheus.Labels{"type": "CACHE_PARSE"}).Inc()
		} else {
			return &feed, nil
		}
	} else {
		log.Printf("[DEBUG] feed %q not found in cache: %v", url, err)
	}

	metrics.CacheMiss.Inc()

	feed, err := f.fetch(url)
	if err != nil {
		return nil, err
	}

	marshal, err := json.Marshal(feed)
	if err == nil {
		err = custom_cache.Set(url, string(marshal))
	}

	if err != nil {
		log.Printf("[ERROR] failure to store feed into cache: %v", err)
		metrics.AppErrors.With(prometheus.Labels{"type": "CACHE_SET"}).Inc()
	}

	return feed, nil
}

func (f *Fetcher) fetch(url string) (*gofeed.Feed, error) {
	body, contentType, err := f.download(url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if isFeedContentType(contentType) {
		return f.parser.Parse(body)
	}

	if strings.Contains(contentType, "text/html") {
		feedUrl, err := discoverFeedUrl(url, body)
		if err != nil {
			return nil, errors.Wrapf(err, "no feed advertised at %q", url)
		}

		feedBody, _, err := f.download(feedUrl)
		if err != nil {
			return nil, err
		}
		defer feedBody.Close()

		return f.parser.Parse(feedBody)
	}

	// Some feeds are served with a generic content type; let the parser decide.
	return f.parser.Parse(body)
}

func (f *Fetcher) download(url string) (io.ReadCloser, string, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, "", errors.Wrapf(err, "error building request for %q", url)
	}
	req.Header.Set("User-Agent", "feedherald")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", errors.Wrapf(err, "error downloading %q", url)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, "", errors.Errorf("http error %d for %q", resp.StatusCode, url)
	}

	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func isFeedContentType(contentType string) bool {
	for _, typ := range feedContentTypes {
		if strings.Contains(contentType, typ) {
			return true
		}
	}
	return false
}

func discoverFeedUrl(pageUrl string, body io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", err
	}

	for _, typ := range feedContentTypes {
		href, _ := doc.Find(fmt.Sprintf("link[type*='%s']", typ)).Attr("href")
		if href == "" {
			continue
		}
		if !strings.HasPrefix(href, "http") && !strings.HasPrefix(href, "https") {
			href, err = helpers.UrlJoin(pageUrl, href)
			if err != nil {
				return "", err
			}
		}
		return href, nil
	}

	return "", errors.New("no feed link element found")
}
