package domain

import "time"

// Species is a single row of the static species catalog.
type Species struct {
	// Index is the 0-based data row position in the catalog.
	Index int

	Genus string

	// Epithet is the specific epithet (the catalog's "species" column).
	Epithet string

	// ProfileURL is the external species profile page.
	ProfileURL string

	// IUCNStatus is the conservation status code. Empty means not evaluated.
	IUCNStatus string

	// CommonName is empty when the catalog has none.
	CommonName string
}

// ScientificName returns the binomial "Genus epithet".
func (s Species) ScientificName() string {
	return s.Genus + " " + s.Epithet
}

// MaxMediaSize is the largest image blob accepted by app.bsky.embed.images.
const MaxMediaSize = 1_000_000

// Media is an image blob that is about to be posted.
type Media struct {
	Data     []byte
	Filename string
	MimeType string

	// Width and Height are zero when the image format could not be decoded.
	Width  int
	Height int
}

// Enrichment is the result of a successful image lookup for a species.
type Enrichment struct {
	Image Media

	// Attribution is the copyright text found next to the image, if any.
	Attribution string

	// SourceURL is the URL the image bytes were downloaded from.
	SourceURL string
}

// ImageAttachment pairs an image with its alt text.
type ImageAttachment struct {
	Media Media
	Alt   string
}

// PostDraft is everything needed to create a post record.
type PostDraft struct {
	Text   string
	Langs  []string
	Images []ImageAttachment
	Facets []LinkFacet

	// IncludeAspectRatio adds pixel dimensions to each embedded image.
	IncludeAspectRatio bool

	// ReplyTo, EmbedRef and EmbedURL are optional post references given as
	// at:// URIs or bsky.app URLs (EmbedURL is any web page).
	ReplyTo  string
	EmbedRef string
	EmbedURL string
}

// PostRef identifies a created post record.
type PostRef struct {
	// URI is the AT-URI of the post (e.g. at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b).
	URI string

	// CID is the content identifier of the record.
	CID string

	// AuthorDID is the DID of the account the post was created under.
	AuthorDID string
}

// PublishedPost is a post created by the pipeline, kept for history.
type PublishedPost struct {
	URI      string
	CID      string
	Index    int
	Sequence int64
	Caption  string
	PostedAt time.Time
}
