package domain

import (
	"context"
	"time"
)

// Catalog gives read-only access to the species table.
type Catalog interface {
	// Row returns the species at the given 0-based row index.
	Row(index int) (Species, error)

	// Len returns the number of data rows.
	Len() int
}

// SelectionStore persists which catalog rows have been used and the post
// sequence counter.
type SelectionStore interface {
	// Claim atomically picks an unselected index with pick, marks it selected
	// and increments the sequence counter. Nothing is written when pick fails.
	Claim(ctx context.Context, pick PickFunc) (Selection, error)

	// Stats summarises the current state.
	Stats(ctx context.Context) (SelectionStats, error)
}

// PostRepository keeps a history of published posts.
type PostRepository interface {
	// SavePost records a published post.
	SavePost(ctx context.Context, post *PublishedPost) error

	// RecentPosts returns up to limit posts, newest first.
	RecentPosts(ctx context.Context, limit int) ([]PublishedPost, error)
}

// ImageLookup finds a representative image for a species. Implementations
// return an error matching ErrLookup or ErrSizeLimit when the species should
// be skipped.
type ImageLookup interface {
	Find(ctx context.Context, species Species) (*Enrichment, error)
}

// Publisher creates posts on the remote content service.
type Publisher interface {
	Publish(ctx context.Context, draft PostDraft) (PostRef, error)
}

// Confirmer waits until a created post is visible on the network.
type Confirmer interface {
	Await(ctx context.Context, ref PostRef, since time.Time) error
}

// ScratchWriter persists the run's caption and image to local files.
type ScratchWriter interface {
	WriteCaption(text string) error
	WriteImage(m Media) error
}
