// Package scrape finds species images on external profile pages.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/blackmichael/species-poster/internal/domain"
	"github.com/blackmichael/species-poster/internal/media"
)

// DefaultTimeout bounds each scrape request.
const DefaultTimeout = 30 * time.Second

// UserAgent is sent with every scrape request; some hosts refuse the Go default.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// NewHTTPClient returns the resty client used for scraping.
func NewHTTPClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New()
	client.SetHeader("User-Agent", UserAgent)
	client.SetTimeout(timeout)
	return client
}

type fetcher struct {
	http   *resty.Client
	logger *slog.Logger
}

func newFetcher(client *resty.Client, logger *slog.Logger) fetcher {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return fetcher{http: client, logger: logger}
}

// document fetches and parses an HTML page. Any non-200 response stops the
// lookup.
func (f fetcher) document(ctx context.Context, stage, pageURL string) (*goquery.Document, error) {
	f.logger.Debug("fetching page", "stage", stage, "url", pageURL)

	res, err := f.http.R().
		SetContext(ctx).
		Get(pageURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.LookupError{Stage: stage, URL: pageURL, Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		return nil, &domain.LookupError{Stage: stage, URL: pageURL, Status: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, &domain.LookupError{Stage: stage, URL: pageURL, Reason: "parse html", Err: err}
	}
	doc.Url = res.RawResponse.Request.URL
	return doc, nil
}

// download fetches an image, refusing anything over media.MaxSize without
// reading past the limit.
func (f fetcher) download(ctx context.Context, imageURL string) (domain.Media, error) {
	f.logger.Debug("downloading image", "url", imageURL)

	res, err := f.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Media{}, ctx.Err()
		}
		return domain.Media{}, &domain.LookupError{Stage: domain.StageImage, URL: imageURL, Err: err}
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() != http.StatusOK {
		return domain.Media{}, &domain.LookupError{Stage: domain.StageImage, URL: imageURL, Status: res.StatusCode()}
	}
	if n := res.RawResponse.ContentLength; n > 0 {
		if err := media.CheckSize(n); err != nil {
			return domain.Media{}, fmt.Errorf("download %s: %w", imageURL, err)
		}
	}

	data, err := io.ReadAll(io.LimitReader(body, media.MaxSize+1))
	if err != nil {
		return domain.Media{}, &domain.LookupError{Stage: domain.StageImage, URL: imageURL, Reason: "read body", Err: err}
	}
	if err := media.CheckSize(int64(len(data))); err != nil {
		return domain.Media{}, fmt.Errorf("download %s: %w", imageURL, err)
	}

	m, err := media.New(imageFilename(imageURL), data)
	if err != nil {
		return domain.Media{}, err
	}
	if m.MimeType == "application/octet-stream" {
		if ct, _, err := mime.ParseMediaType(res.Header().Get("Content-Type")); err == nil && strings.HasPrefix(ct, "image/") {
			m.MimeType = ct
		}
	}
	return m, nil
}

func imageFilename(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return "image"
	}
	return path.Base(u.Path)
}
