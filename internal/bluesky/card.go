package bluesky

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/blackmichael/species-poster/internal/domain"
	"github.com/blackmichael/species-poster/internal/media"
)

// card is the OpenGraph summary of a web page.
type card struct {
	URL         string
	Title       string
	Description string
	ImageURL    string
}

// fetchCard reads the page's OpenGraph tags, falling back to <title> and the
// description meta tag.
func fetchCard(ctx context.Context, client *resty.Client, pageURL string) (*card, error) {
	res, err := client.R().
		SetContext(ctx).
		Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	c := &card{
		URL:         pageURL,
		Title:       meta(doc, `meta[property="og:title"]`),
		Description: meta(doc, `meta[property="og:description"]`),
	}
	if c.Title == "" {
		c.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if c.Description == "" {
		c.Description = meta(doc, `meta[name="description"]`)
	}
	if img := meta(doc, `meta[property="og:image"]`); img != "" {
		base := res.RawResponse.Request.URL
		if ref, err := base.Parse(img); err == nil {
			c.ImageURL = ref.String()
		}
	}

	return c, nil
}

func meta(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
}

// fetchThumb downloads a card image, refusing anything over media.MaxSize.
func fetchThumb(ctx context.Context, client *resty.Client, imageURL string) (domain.Media, error) {
	res, err := client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		return domain.Media{}, fmt.Errorf("fetch thumb %s: %w", imageURL, err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() != http.StatusOK {
		return domain.Media{}, fmt.Errorf("fetch thumb %s: status %d", imageURL, res.StatusCode())
	}

	data, err := io.ReadAll(io.LimitReader(body, media.MaxSize+1))
	if err != nil {
		return domain.Media{}, fmt.Errorf("read thumb %s: %w", imageURL, err)
	}

	m, err := media.New(imageURL, data)
	if err != nil {
		return domain.Media{}, err
	}
	if ct := res.Header().Get("Content-Type"); strings.HasPrefix(ct, "image/") {
		m.MimeType = strings.TrimSpace(strings.Split(ct, ";")[0])
	}
	return m, nil
}
