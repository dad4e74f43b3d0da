package bluesky

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/blackmichael/species-poster/internal/domain"
	"github.com/blackmichael/species-poster/internal/media"
)

// DefaultLangs is used when a draft names no languages.
var DefaultLangs = []string{"en-US"}

// Credentials identify the posting account.
type Credentials struct {
	Handle   string
	Password string
}

// Publisher turns drafts into app.bsky.feed.post records. It implements
// domain.Publisher.
type Publisher struct {
	client *Client
	creds  Credentials
	web    *resty.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a Publisher that logs in with creds on every Publish.
// web fetches link card pages; nil uses a default resty client.
func NewPublisher(client *Client, creds Credentials, web *resty.Client, logger *slog.Logger) *Publisher {
	if web == nil {
		web = resty.New().SetTimeout(30 * time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		creds:  creds,
		web:    web,
		logger: logger,
		now:    time.Now,
	}
}

// Publish logs in, uploads any images, assembles the record and creates it.
// Nothing is visible remotely until the final createRecord succeeds.
func (p *Publisher) Publish(ctx context.Context, draft domain.PostDraft) (domain.PostRef, error) {
	if len(draft.Images) > MaxImages {
		return domain.PostRef{}, fmt.Errorf("%w: at most %d images per post, got %d", domain.ErrPublish, MaxImages, len(draft.Images))
	}

	if err := p.client.Login(ctx, p.creds.Handle, p.creds.Password); err != nil {
		return domain.PostRef{}, err
	}
	p.logger.Debug("session created", "did", p.client.DID())

	record, err := p.buildRecord(ctx, draft)
	if err != nil {
		return domain.PostRef{}, err
	}

	if p.logger.Enabled(ctx, slog.LevelDebug) {
		if payload, err := json.Marshal(record); err == nil {
			p.logger.Debug("creating post", "record", string(payload))
		}
	}

	ref, err := p.client.CreateRecord(ctx, CollectionPost, record)
	if err != nil {
		return domain.PostRef{}, err
	}

	return domain.PostRef{URI: ref.URI, CID: ref.CID, AuthorDID: p.client.DID()}, nil
}

func (p *Publisher) buildRecord(ctx context.Context, draft domain.PostDraft) (*PostRecord, error) {
	langs := draft.Langs
	if len(langs) == 0 {
		langs = DefaultLangs
	}

	record := &PostRecord{
		Type:      TypePost,
		Text:      draft.Text,
		CreatedAt: FormatCreatedAt(p.now()),
		Langs:     langs,
		Facets:    toFacets(draft.Facets),
	}

	images, err := p.uploadImages(ctx, draft)
	if err != nil {
		return nil, err
	}

	if draft.ReplyTo != "" {
		reply, err := p.replyRef(ctx, draft.ReplyTo)
		if err != nil {
			return nil, refError("reply-to", draft.ReplyTo, err)
		}
		record.Reply = reply
	}

	switch {
	case draft.EmbedRef != "":
		quoted, err := p.client.FetchRecord(ctx, draft.EmbedRef)
		if err != nil {
			return nil, refError("embed-ref", draft.EmbedRef, err)
		}
		embed := RecordEmbed{Type: TypeRecordEmbed, Record: StrongRef{URI: quoted.URI, CID: quoted.CID}}
		if images != nil {
			record.Embed = RecordWithMediaEmbed{Type: TypeRecordWithMedia, Record: embed, Media: *images}
		} else {
			record.Embed = embed
		}
	case images != nil:
		if draft.EmbedURL != "" {
			p.logger.Warn("link card ignored because images are attached", "url", draft.EmbedURL)
		}
		record.Embed = *images
	case draft.EmbedURL != "":
		external, err := p.externalEmbed(ctx, draft.EmbedURL)
		if err != nil {
			return nil, fmt.Errorf("%w: embed-url: %w", domain.ErrPublish, err)
		}
		record.Embed = external
	}

	return record, nil
}

// refError reports a failed reply-to or embed-ref lookup as ErrPublish.
func refError(flag, ref string, err error) error {
	if IsNotFound(err) {
		return fmt.Errorf("%w: %s: post %s does not exist: %w", domain.ErrPublish, flag, ref, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrPublish, flag, err)
}

func (p *Publisher) uploadImages(ctx context.Context, draft domain.PostDraft) (*ImagesEmbed, error) {
	if len(draft.Images) == 0 {
		return nil, nil
	}

	embed := &ImagesEmbed{Type: TypeImagesEmbed}
	for _, img := range draft.Images {
		blob, err := p.client.UploadBlob(ctx, img.Media.Data, img.Media.MimeType)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", img.Media.Filename, err)
		}
		p.logger.Debug("blob uploaded", "file", img.Media.Filename, "cid", blob.Ref.Link, "size", blob.Size)

		ei := EmbedImage{Alt: img.Alt, Image: blob}
		if draft.IncludeAspectRatio {
			if w, h, ok := media.AspectRatio(img.Media); ok {
				ei.AspectRatio = &AspectRatio{Width: w, Height: h}
			}
		}
		embed.Images = append(embed.Images, ei)
	}
	return embed, nil
}

// replyRef threads under the parent, keeping the parent's own root when the
// parent is itself a reply.
func (p *Publisher) replyRef(ctx context.Context, ref string) (*ReplyRef, error) {
	parent, err := p.client.FetchRecord(ctx, ref)
	if err != nil {
		return nil, err
	}
	parentRef := StrongRef{URI: parent.URI, CID: parent.CID}

	var value struct {
		Reply *ReplyRef `json:"reply"`
	}
	if err := json.Unmarshal(parent.Value, &value); err != nil {
		return nil, fmt.Errorf("decode parent record: %w", err)
	}

	root := parentRef
	if value.Reply != nil && value.Reply.Root.URI != "" {
		root = value.Reply.Root
	}
	return &ReplyRef{Root: root, Parent: parentRef}, nil
}

func (p *Publisher) externalEmbed(ctx context.Context, pageURL string) (ExternalEmbed, error) {
	c, err := fetchCard(ctx, p.web, pageURL)
	if err != nil {
		return ExternalEmbed{}, err
	}

	external := External{URI: c.URL, Title: c.Title, Description: c.Description}
	if c.ImageURL != "" {
		thumb, err := fetchThumb(ctx, p.web, c.ImageURL)
		if err != nil {
			p.logger.Warn("link card without thumbnail", "url", c.ImageURL, "error", err)
		} else {
			blob, err := p.client.UploadBlob(ctx, thumb.Data, thumb.MimeType)
			if err != nil {
				return ExternalEmbed{}, err
			}
			external.Thumb = blob
		}
	}

	return ExternalEmbed{Type: TypeExternalEmbed, External: external}, nil
}

func toFacets(links []domain.LinkFacet) []Facet {
	if len(links) == 0 {
		return nil
	}
	facets := make([]Facet, 0, len(links))
	for _, l := range links {
		facets = append(facets, Facet{
			Index:    FacetIndex{ByteStart: l.ByteStart, ByteEnd: l.ByteEnd},
			Features: []FacetFeature{{Type: TypeLinkFacet, URI: l.URI}},
		})
	}
	return facets
}
