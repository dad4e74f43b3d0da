package scrape

import (
	"context"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/blackmichael/species-poster/internal/domain"
)

// ProfileLookup downloads the image shown on the species profile page.
type ProfileLookup struct {
	fetcher
}

// NewProfileLookup builds a ProfileLookup. A nil client uses NewHTTPClient.
func NewProfileLookup(client *resty.Client, logger *slog.Logger) *ProfileLookup {
	return &ProfileLookup{fetcher: newFetcher(client, logger)}
}

// Find implements domain.ImageLookup.
func (l *ProfileLookup) Find(ctx context.Context, sp domain.Species) (*domain.Enrichment, error) {
	name := sp.ScientificName()

	doc, err := l.document(ctx, domain.StageProfile, sp.ProfileURL)
	if err != nil {
		return nil, err
	}

	src, err := imageSource(doc, domain.StageProfile, sp.ProfileURL, name)
	if err != nil {
		return nil, err
	}

	image, err := l.download(ctx, src)
	if err != nil {
		return nil, err
	}
	l.logger.Info("image found", "species", name, "url", src)

	return &domain.Enrichment{Image: image, SourceURL: src}, nil
}

// DeepLookup follows the profile image's link to a photo host, then that
// host's link to an archive page, and takes the full-size image and its
// copyright line from there.
type DeepLookup struct {
	fetcher
}

// NewDeepLookup builds a DeepLookup. A nil client uses NewHTTPClient.
func NewDeepLookup(client *resty.Client, logger *slog.Logger) *DeepLookup {
	return &DeepLookup{fetcher: newFetcher(client, logger)}
}

// Find implements domain.ImageLookup.
func (l *DeepLookup) Find(ctx context.Context, sp domain.Species) (*domain.Enrichment, error) {
	name := sp.ScientificName()

	pageURL := sp.ProfileURL
	for _, stage := range []string{domain.StageProfile, domain.StagePhotoHost} {
		doc, err := l.document(ctx, stage, pageURL)
		if err != nil {
			return nil, err
		}
		pageURL, err = imageLink(doc, stage, pageURL, name)
		if err != nil {
			return nil, err
		}
	}

	doc, err := l.document(ctx, domain.StageArchive, pageURL)
	if err != nil {
		return nil, err
	}
	src, err := imageSource(doc, domain.StageArchive, pageURL, name)
	if err != nil {
		return nil, err
	}
	credit, ok := attribution(doc)
	if !ok {
		return nil, &domain.LookupError{Stage: domain.StageArchive, URL: pageURL, Reason: "no copyright cell"}
	}

	image, err := l.download(ctx, src)
	if err != nil {
		return nil, err
	}
	l.logger.Info("image found", "species", name, "url", src, "attribution", credit)

	return &domain.Enrichment{Image: image, Attribution: credit, SourceURL: src}, nil
}

func imageSource(doc *goquery.Document, stage, pageURL, name string) (string, error) {
	img := findImage(doc, name)
	if img.Length() == 0 {
		return "", &domain.LookupError{Stage: stage, URL: pageURL, Reason: "no img with alt " + name}
	}
	src, ok := img.Attr("src")
	if !ok || src == "" {
		return "", &domain.LookupError{Stage: stage, URL: pageURL, Reason: "img has no src"}
	}
	abs, err := resolve(doc, src)
	if err != nil {
		return "", &domain.LookupError{Stage: stage, URL: pageURL, Reason: "bad img src", Err: err}
	}
	return abs, nil
}

func imageLink(doc *goquery.Document, stage, pageURL, name string) (string, error) {
	img := findImage(doc, name)
	if img.Length() == 0 {
		return "", &domain.LookupError{Stage: stage, URL: pageURL, Reason: "no img with alt " + name}
	}
	href, ok := enclosingLink(img)
	if !ok {
		return "", &domain.LookupError{Stage: stage, URL: pageURL, Reason: "img is not linked"}
	}
	abs, err := resolve(doc, href)
	if err != nil {
		return "", &domain.LookupError{Stage: stage, URL: pageURL, Reason: "bad link", Err: err}
	}
	return abs, nil
}
