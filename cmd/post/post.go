package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackmichael/species-poster/internal/bluesky"
	"github.com/blackmichael/species-poster/internal/config"
	"github.com/blackmichael/species-poster/internal/domain"
	"github.com/blackmichael/species-poster/internal/logging"
	"github.com/blackmichael/species-poster/internal/media"
)

type postOptions struct {
	configPath  string
	images      []string
	altText     string
	langs       []string
	replyTo     string
	embedURL    string
	embedRef    string
	pds         string
	handle      string
	password    string
	noFacets    bool
	aspectRatio bool
}

func newPostCmd() *cobra.Command {
	var opts postOptions

	cmd := &cobra.Command{
		Use:           "post TEXT",
		Short:         "Create a Bluesky post from literal text or a text file.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageError("expected exactly one TEXT argument, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(cmd, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to a YAML config file (or set SPECIESBOT_CONFIG)")
	f.StringArrayVar(&opts.images, "image", nil, "image to attach (repeatable, at most 4)")
	f.StringVar(&opts.altText, "alt-text", "", "alt text for the attached images")
	f.StringArrayVar(&opts.langs, "langs", nil, "language of the post (repeatable, default en-US)")
	f.StringVar(&opts.replyTo, "reply-to", "", "at:// URI or bsky.app URL of the post to reply to")
	f.StringVar(&opts.embedURL, "embed-url", "", "web page to attach as a link card")
	f.StringVar(&opts.embedRef, "embed-ref", "", "at:// URI or bsky.app URL of the post to quote")
	f.StringVar(&opts.pds, "pds-url", "", "PDS URL (or set ATP_PDS_HOST)")
	f.StringVar(&opts.handle, "handle", "", "account handle (or set ATP_AUTH_HANDLE)")
	f.StringVar(&opts.password, "password", "", "app password (or set ATP_AUTH_PASSWORD)")
	f.BoolVar(&opts.noFacets, "no-facets", false, "do not turn URLs in the text into links")
	f.BoolVar(&opts.aspectRatio, "aspect-ratio", true, "include image dimensions")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: usageExitCode, err: err}
	})
	return cmd
}

func runPost(cmd *cobra.Command, opts postOptions, textArg string) error {
	if len(opts.images) > bluesky.MaxImages {
		return usageError("at most %d --image flags are allowed, got %d", bluesky.MaxImages, len(opts.images))
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.pds != "" {
		cfg.Bluesky.PDSHost = opts.pds
	}
	if opts.handle != "" {
		cfg.Bluesky.Handle = opts.handle
	}
	if opts.password != "" {
		cfg.Bluesky.Password = opts.password
	}
	if err := cfg.RequireCredentials(); err != nil {
		return &exitError{code: usageExitCode, err: err}
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	text, err := readText(textArg)
	if err != nil {
		return err
	}

	draft := domain.PostDraft{
		Text:               text,
		Langs:              opts.langs,
		IncludeAspectRatio: opts.aspectRatio,
		ReplyTo:            opts.replyTo,
		EmbedRef:           opts.embedRef,
		EmbedURL:           opts.embedURL,
	}
	if len(draft.Langs) == 0 {
		draft.Langs = cfg.Pipeline.Langs
	}
	if !opts.noFacets {
		draft.Facets = domain.ExtractLinkFacets(text)
	}
	for _, path := range opts.images {
		m, err := media.Load(path)
		if err != nil {
			return err
		}
		draft.Images = append(draft.Images, domain.ImageAttachment{Media: m, Alt: opts.altText})
	}

	publisher := bluesky.NewPublisher(
		bluesky.NewClient(cfg.Bluesky.PDSHost),
		bluesky.Credentials{Handle: cfg.Bluesky.Handle, Password: cfg.Bluesky.Password},
		nil,
		logger,
	)

	ref, err := publisher.Publish(cmd.Context(), draft)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}{ref.URI, ref.CID})
}

// readText returns the contents of arg if it names a regular file, and arg
// itself otherwise.
func readText(arg string) (string, error) {
	info, err := os.Stat(arg)
	if err != nil || !info.Mode().IsRegular() {
		return arg, nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
