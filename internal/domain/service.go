package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// DefaultMaxAttempts bounds how many species a single run may burn.
const DefaultMaxAttempts = 10

// Features toggles optional pipeline behaviour. Deep scraping is not listed
// here: it selects which ImageLookup is wired into PipelineDeps, so the
// pipeline never branches on it.
type Features struct {
	// AspectRatio adds image pixel dimensions to the embed.
	AspectRatio bool

	// RichTextFacets annotates links in the caption.
	RichTextFacets bool

	// Confirm waits for the post to show up on the firehose after publishing.
	Confirm bool
}

// PipelineConfig holds the tunables of a pipeline run.
type PipelineConfig struct {
	MaxAttempts int
	Langs       []string
	Features    Features

	// DryRun stops after the scratch files are written. The selection is
	// still consumed.
	DryRun bool
}

// PipelineDeps wires the driven adapters into the pipeline. Posts, Confirmer
// and Scratch are optional.
type PipelineDeps struct {
	Catalog   Catalog
	Store     SelectionStore
	Posts     PostRepository
	Lookup    ImageLookup
	Publisher Publisher
	Confirmer Confirmer
	Scratch   ScratchWriter
	Logger    *slog.Logger

	// Rand seeds species selection. Nil uses the global source.
	Rand *rand.Rand

	// Now defaults to time.Now.
	Now func() time.Time
}

// RunResult describes a successful run.
type RunResult struct {
	Selection  Selection
	Species    Species
	Caption    string
	Enrichment *Enrichment
	Attempts   int

	// Post is nil on a dry run.
	Post *PostRef
}

// Pipeline selects a species, enriches it with an image, composes the
// caption and publishes it. Enrichment failures burn the selected species
// and retry with a new one, up to MaxAttempts.
type Pipeline struct {
	cfg       PipelineConfig
	catalog   Catalog
	store     SelectionStore
	posts     PostRepository
	lookup    ImageLookup
	publisher Publisher
	confirmer Confirmer
	scratch   ScratchWriter
	logger    *slog.Logger
	pick      PickFunc
	now       func() time.Time
}

// NewPipeline validates the dependencies and builds a Pipeline.
func NewPipeline(cfg PipelineConfig, deps PipelineDeps) (*Pipeline, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("selection store is required")
	}
	if deps.Lookup == nil {
		return nil, fmt.Errorf("image lookup is required")
	}
	if deps.Publisher == nil && !cfg.DryRun {
		return nil, fmt.Errorf("publisher is required unless running dry")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		cfg:       cfg,
		catalog:   deps.Catalog,
		store:     deps.Store,
		posts:     deps.Posts,
		lookup:    deps.Lookup,
		publisher: deps.Publisher,
		confirmer: deps.Confirmer,
		scratch:   deps.Scratch,
		logger:    logger,
		pick:      RandomPick(deps.Rand),
		now:       now,
	}, nil
}

// Run executes the pipeline once.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		sel, err := p.store.Claim(ctx, p.pick)
		if err != nil {
			return nil, fmt.Errorf("claim species: %w", err)
		}

		species, err := p.catalog.Row(sel.Index)
		if err != nil {
			return nil, fmt.Errorf("catalog row %d: %w", sel.Index, err)
		}

		p.logger.Info("species selected",
			"attempt", attempt,
			"index", sel.Index,
			"sequence", sel.Sequence,
			"species", species.ScientificName(),
		)

		enrichment, err := p.lookup.Find(ctx, species)
		if err != nil {
			if !IsRecoverable(err) {
				return nil, fmt.Errorf("enrich %s (row %d): %w", species.ScientificName(), sel.Index, err)
			}
			p.logger.Warn("enrichment failed, trying a new species",
				"attempt", attempt,
				"index", sel.Index,
				"species", species.ScientificName(),
				"url", species.ProfileURL,
				"error", err,
			)
			continue
		}

		caption := ComposeCaption(species, sel.Sequence, enrichment.Attribution)
		if err := p.writeScratch(caption, enrichment.Image); err != nil {
			return nil, err
		}

		result := &RunResult{
			Selection:  sel,
			Species:    species,
			Caption:    caption,
			Enrichment: enrichment,
			Attempts:   attempt,
		}

		if p.cfg.DryRun {
			p.logger.Info("dry run, skipping publish", "caption", caption)
			return result, nil
		}

		ref, err := p.publish(ctx, sel, caption, enrichment)
		if err != nil {
			return nil, err
		}
		result.Post = &ref
		return result, nil
	}

	return nil, fmt.Errorf("%w: %d species tried", ErrAttemptsExhausted, p.cfg.MaxAttempts)
}

func (p *Pipeline) writeScratch(caption string, image Media) error {
	if p.scratch == nil {
		return nil
	}
	if err := p.scratch.WriteCaption(caption); err != nil {
		return fmt.Errorf("write caption: %w", err)
	}
	if err := p.scratch.WriteImage(image); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

func (p *Pipeline) publish(ctx context.Context, sel Selection, caption string, enrichment *Enrichment) (PostRef, error) {
	draft := PostDraft{
		Text:  caption,
		Langs: p.cfg.Langs,
		Images: []ImageAttachment{
			{Media: enrichment.Image, Alt: caption},
		},
		IncludeAspectRatio: p.cfg.Features.AspectRatio,
	}
	if p.cfg.Features.RichTextFacets {
		draft.Facets = ExtractLinkFacets(caption)
	}

	since := p.now()
	ref, err := p.publisher.Publish(ctx, draft)
	if err != nil {
		return PostRef{}, fmt.Errorf("publish sequence %d: %w", sel.Sequence, err)
	}
	p.logger.Info("post created", "uri", ref.URI, "cid", ref.CID, "sequence", sel.Sequence)

	// the post is committed remotely from here on; later failures are only logged
	if p.posts != nil {
		err := p.posts.SavePost(ctx, &PublishedPost{
			URI:      ref.URI,
			CID:      ref.CID,
			Index:    sel.Index,
			Sequence: sel.Sequence,
			Caption:  caption,
			PostedAt: p.now().UTC(),
		})
		if err != nil {
			p.logger.Error("failed to record post history", "uri", ref.URI, "error", err)
		}
	}

	if p.cfg.Features.Confirm && p.confirmer != nil {
		if err := p.confirmer.Await(ctx, ref, since); err != nil {
			if errors.Is(err, context.Canceled) {
				return ref, nil
			}
			p.logger.Warn("post not confirmed on firehose", "uri", ref.URI, "error", err)
		} else {
			p.logger.Info("post confirmed on firehose", "uri", ref.URI)
		}
	}

	return ref, nil
}
