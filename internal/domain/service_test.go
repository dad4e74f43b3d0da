package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	universe IndexSet
	selected IndexSet
	sequence int64
	claims   int
}

func newMemoryStore(indices ...int) *memoryStore {
	return &memoryStore{universe: NewIndexSet(indices...), selected: NewIndexSet()}
}

func (s *memoryStore) Claim(_ context.Context, pick PickFunc) (Selection, error) {
	idx, err := pick(s.selected.Clone(), s.universe.Clone())
	if err != nil {
		return Selection{}, err
	}
	s.claims++
	s.selected[idx] = struct{}{}
	s.sequence++
	return Selection{Index: idx, Sequence: s.sequence}, nil
}

func (s *memoryStore) Stats(context.Context) (SelectionStats, error) {
	return SelectionStats{
		Universe:  len(s.universe),
		Selected:  len(s.selected),
		Remaining: len(s.universe) - len(s.selected),
		Sequence:  s.sequence,
	}, nil
}

type memoryPosts struct {
	saved []PublishedPost
}

func (m *memoryPosts) SavePost(_ context.Context, post *PublishedPost) error {
	m.saved = append(m.saved, *post)
	return nil
}

func (m *memoryPosts) RecentPosts(context.Context, int) ([]PublishedPost, error) {
	return m.saved, nil
}

type sliceCatalog []Species

func (c sliceCatalog) Row(index int) (Species, error) {
	if index < 0 || index >= len(c) {
		return Species{}, fmt.Errorf("row %d out of range", index)
	}
	return c[index], nil
}

func (c sliceCatalog) Len() int { return len(c) }

type lookupFunc func(ctx context.Context, sp Species) (*Enrichment, error)

func (f lookupFunc) Find(ctx context.Context, sp Species) (*Enrichment, error) { return f(ctx, sp) }

type recordingPublisher struct {
	drafts []PostDraft
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, draft PostDraft) (PostRef, error) {
	p.drafts = append(p.drafts, draft)
	if p.err != nil {
		return PostRef{}, p.err
	}
	return PostRef{URI: "at://did:plc:me/app.bsky.feed.post/3kabc", CID: "bafy", AuthorDID: "did:plc:me"}, nil
}

type recordingScratch struct {
	caption string
	image   Media
}

func (s *recordingScratch) WriteCaption(text string) error { s.caption = text; return nil }
func (s *recordingScratch) WriteImage(m Media) error       { s.image = m; return nil }

type confirmFunc func(ctx context.Context, ref PostRef, since time.Time) error

func (f confirmFunc) Await(ctx context.Context, ref PostRef, since time.Time) error {
	return f(ctx, ref, since)
}

func testCatalog(n int) sliceCatalog {
	cat := make(sliceCatalog, n)
	for i := range cat {
		cat[i] = Species{
			Index:      i,
			Genus:      "Genus",
			Epithet:    fmt.Sprintf("species%d", i),
			ProfileURL: fmt.Sprintf("http://example.org/%d", i),
			IUCNStatus: "LC",
		}
	}
	return cat
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okLookup() lookupFunc {
	return func(_ context.Context, sp Species) (*Enrichment, error) {
		return &Enrichment{
			Image: Media{Data: []byte("jpeg"), Filename: "x.jpg", MimeType: "image/jpeg", Width: 4, Height: 3},
		}, nil
	}
}

func TestPipelineRunPublishes(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(0, 1, 2)
	posts := &memoryPosts{}
	pub := &recordingPublisher{}
	scratch := &recordingScratch{}

	p, err := NewPipeline(PipelineConfig{
		Langs:    []string{"en-US"},
		Features: Features{AspectRatio: true, RichTextFacets: true},
	}, PipelineDeps{
		Catalog:   testCatalog(3),
		Store:     store,
		Posts:     posts,
		Lookup:    okLookup(),
		Publisher: pub,
		Scratch:   scratch,
		Logger:    discardLogger(),
		Rand:      rand.New(rand.NewPCG(1, 1)),
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, int64(1), res.Selection.Sequence)
	require.NotNil(t, res.Post)

	require.Len(t, pub.drafts, 1)
	draft := pub.drafts[0]
	require.Equal(t, res.Caption, draft.Text)
	require.Equal(t, []string{"en-US"}, draft.Langs)
	require.True(t, draft.IncludeAspectRatio)
	require.Len(t, draft.Images, 1)
	require.Equal(t, res.Caption, draft.Images[0].Alt)
	require.Len(t, draft.Facets, 1)
	require.Equal(t, res.Species.ProfileURL, draft.Facets[0].URI)

	require.Equal(t, res.Caption, scratch.caption)
	require.Equal(t, []byte("jpeg"), scratch.image.Data)

	require.Len(t, posts.saved, 1)
	require.Equal(t, res.Post.URI, posts.saved[0].URI)
	require.Equal(t, res.Selection.Index, posts.saved[0].Index)
}

func TestPipelineFacetsDisabled(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	p, err := NewPipeline(PipelineConfig{}, PipelineDeps{
		Catalog:   testCatalog(1),
		Store:     newMemoryStore(0),
		Lookup:    okLookup(),
		Publisher: pub,
		Logger:    discardLogger(),
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, pub.drafts[0].Facets)
	require.False(t, pub.drafts[0].IncludeAspectRatio)
}

func TestPipelineBurnsAndRetries(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(0, 1, 2, 3, 4)
	var tried []int
	lookup := lookupFunc(func(_ context.Context, sp Species) (*Enrichment, error) {
		tried = append(tried, sp.Index)
		if len(tried) < 3 {
			return nil, &LookupError{Stage: StageProfile, URL: sp.ProfileURL, Status: 404}
		}
		return okLookup()(context.Background(), sp)
	})

	p, err := NewPipeline(PipelineConfig{}, PipelineDeps{
		Catalog:   testCatalog(5),
		Store:     store,
		Lookup:    lookup,
		Publisher: &recordingPublisher{},
		Logger:    discardLogger(),
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, res.Attempts)

	// failed species stay selected and consume sequence numbers
	require.Equal(t, int64(3), res.Selection.Sequence)
	require.Len(t, store.selected, 3)
	require.Len(t, NewIndexSet(tried...), 3, "a burned species must not be retried")
}

func TestPipelineSizeLimitIsRecoverable(t *testing.T) {
	t.Parallel()

	calls := 0
	lookup := lookupFunc(func(_ context.Context, sp Species) (*Enrichment, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("download: %w", ErrSizeLimit)
		}
		return okLookup()(context.Background(), sp)
	})

	p, err := NewPipeline(PipelineConfig{}, PipelineDeps{
		Catalog:   testCatalog(2),
		Store:     newMemoryStore(0, 1),
		Lookup:    lookup,
		Publisher: &recordingPublisher{},
		Logger:    discardLogger(),
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Attempts)
}

func TestPipelineGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14)
	pub := &recordingPublisher{}
	p, err := NewPipeline(PipelineConfig{}, PipelineDeps{
		Catalog: testCatalog(15),
		Store:   store,
		Lookup: lookupFunc(func(_ context.Context, sp Species) (*Enrichment, error) {
			return nil, &LookupError{Stage: StageProfile, URL: sp.ProfileURL, Status: 404}
		}),
		Publisher: pub,
		Logger:    discardLogger(),
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	require.Equal(t, DefaultMaxAttempts, store.claims)
	require.Equal(t, int64(DefaultMaxAttempts), store.sequence)
	require.Empty(t, pub.drafts)
}

func TestPipelineExhaustedCatalogIsFatal(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(0)
	store.selected = NewIndexSet(0)
	p, err := NewPipeline(PipelineConfig{}, PipelineDeps{
		Catalog:   testCatalog(1),
		Store:     store,
		Lookup:    okLookup(),
		Publisher: &recordingPublisher{},
		Logger:    discardLogger(),
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, ErrExhausted)
	require.Zero(t, store.sequence)
}

func TestPipelineUnexpectedLookupErrorIsFatal(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	store := newMemoryStore(0, 1)
	p, err := NewPipeline(PipelineConfig{}, PipelineDeps{
		Catalog: testCatalog(2),
		Store:   store,
		Lookup: lookupFunc(func(context.Context, Species) (*Enrichment, error) {
			return nil, boom
		}),
		Publisher: &recordingPublisher{},
		Logger:    discardLogger(),
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, store.claims)
}

func TestPipelinePublishErrorIsFatal(t *testing.T) {
	t.Parallel()

	posts := &memoryPosts{}
	pub := &recordingPublisher{err: fmt.Errorf("create record: %w", ErrPublish)}
	p, err := NewPipeline(PipelineConfig{}, PipelineDeps{
		Catalog:   testCatalog(3),
		Store:     newMemoryStore(0, 1, 2),
		Posts:     posts,
		Lookup:    okLookup(),
		Publisher: pub,
		Logger:    discardLogger(),
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, ErrPublish)
	require.Len(t, pub.drafts, 1)
	require.Empty(t, posts.saved)
}

func TestPipelineDryRun(t *testing.T) {
	t.Parallel()

	scratch := &recordingScratch{}
	p, err := NewPipeline(PipelineConfig{DryRun: true}, PipelineDeps{
		Catalog: testCatalog(1),
		Store:   newMemoryStore(0),
		Lookup:  okLookup(),
		Scratch: scratch,
		Logger:  discardLogger(),
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Nil(t, res.Post)
	require.Equal(t, res.Caption, scratch.caption)
}

func TestPipelineConfirm(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	var gotSince time.Time
	var gotRef PostRef
	confirmer := confirmFunc(func(_ context.Context, ref PostRef, since time.Time) error {
		gotRef = ref
		gotSince = since
		return errors.New("timeout")
	})

	p, err := NewPipeline(PipelineConfig{Features: Features{Confirm: true}}, PipelineDeps{
		Catalog:   testCatalog(1),
		Store:     newMemoryStore(0),
		Lookup:    okLookup(),
		Publisher: &recordingPublisher{},
		Confirmer: confirmer,
		Logger:    discardLogger(),
		Now:       func() time.Time { return fixed },
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err, "confirmation failures must not fail a committed post")
	require.Equal(t, *res.Post, gotRef)
	require.Equal(t, fixed, gotSince)
}

func TestNewPipelineValidates(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(PipelineConfig{}, PipelineDeps{})
	require.Error(t, err)

	_, err = NewPipeline(PipelineConfig{}, PipelineDeps{
		Catalog: testCatalog(1),
		Store:   newMemoryStore(0),
		Lookup:  okLookup(),
	})
	require.Error(t, err, "publisher required outside dry runs")
}
