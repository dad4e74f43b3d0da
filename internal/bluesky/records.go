package bluesky

import "time"

// Lexicon identifiers used in post records.
const (
	CollectionPost = "app.bsky.feed.post"

	TypePost            = "app.bsky.feed.post"
	TypeImagesEmbed     = "app.bsky.embed.images"
	TypeRecordEmbed     = "app.bsky.embed.record"
	TypeRecordWithMedia = "app.bsky.embed.recordWithMedia"
	TypeExternalEmbed   = "app.bsky.embed.external"
	TypeLinkFacet       = "app.bsky.richtext.facet#link"
	TypeBlob            = "blob"
)

// MaxImages is the most images app.bsky.embed.images accepts.
const MaxImages = 4

// BlobRef represents an AT Protocol blob reference for uploaded content.
type BlobRef struct {
	Type string `json:"$type"`
	Ref  struct {
		Link string `json:"$link"`
	} `json:"ref"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// StrongRef points at a specific version of a record.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// PostRecord is the record body for app.bsky.feed.post.
type PostRecord struct {
	Type      string    `json:"$type"`
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt"`
	Langs     []string  `json:"langs,omitempty"`
	Embed     any       `json:"embed,omitempty"`
	Facets    []Facet   `json:"facets,omitempty"`
	Reply     *ReplyRef `json:"reply,omitempty"`
}

// FormatCreatedAt renders t as UTC with second precision and a literal Z.
func FormatCreatedAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Facet annotates a byte range of the post text.
type Facet struct {
	Index    FacetIndex     `json:"index"`
	Features []FacetFeature `json:"features"`
}

// FacetIndex is a UTF-8 byte range, end exclusive.
type FacetIndex struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

// FacetFeature is a link facet feature.
type FacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri"`
}

// ReplyRef threads a post under a parent.
type ReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

// ImagesEmbed is app.bsky.embed.images.
type ImagesEmbed struct {
	Type   string       `json:"$type"`
	Images []EmbedImage `json:"images"`
}

// EmbedImage is one image of an ImagesEmbed.
type EmbedImage struct {
	Alt         string       `json:"alt"`
	Image       *BlobRef     `json:"image"`
	AspectRatio *AspectRatio `json:"aspectRatio,omitempty"`
}

// AspectRatio gives the image's pixel dimensions.
type AspectRatio struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RecordEmbed quotes another record.
type RecordEmbed struct {
	Type   string    `json:"$type"`
	Record StrongRef `json:"record"`
}

// RecordWithMediaEmbed quotes another record and attaches images.
type RecordWithMediaEmbed struct {
	Type   string      `json:"$type"`
	Record RecordEmbed `json:"record"`
	Media  ImagesEmbed `json:"media"`
}

// ExternalEmbed is a link card.
type ExternalEmbed struct {
	Type     string   `json:"$type"`
	External External `json:"external"`
}

// External describes the linked page of an ExternalEmbed.
type External struct {
	URI         string   `json:"uri"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Thumb       *BlobRef `json:"thumb,omitempty"`
}
