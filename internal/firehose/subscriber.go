// Package firehose watches the Jetstream firehose for the bot's own posts.
package firehose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/species-poster/internal/bluesky"
	"github.com/blackmichael/species-poster/internal/domain"
)

// DefaultURL is the public Jetstream endpoint.
const DefaultURL = "wss://jetstream1.us-east.bsky.network/subscribe"

const (
	postCollection = "app.bsky.feed.post"

	// cursorRewind replays a little history so a post committed just before
	// the subscription opened is not missed.
	cursorRewind     = 5 * time.Second
	reconnectBackoff = 2 * time.Second
)

// ErrNotConfirmed means the post did not show up before the deadline.
var ErrNotConfirmed = errors.New("post not seen on firehose")

// Confirmer waits for a created post to appear on Jetstream. It implements
// domain.Confirmer.
type Confirmer struct {
	url     string
	timeout time.Duration
	logger  *slog.Logger
	dialer  *websocket.Dialer
}

// NewConfirmer creates a Confirmer that gives up after timeout.
func NewConfirmer(jetstreamURL string, timeout time.Duration, logger *slog.Logger) *Confirmer {
	if jetstreamURL == "" {
		jetstreamURL = DefaultURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Confirmer{
		url:     jetstreamURL,
		timeout: timeout,
		logger:  logger,
		dialer:  websocket.DefaultDialer,
	}
}

// Await subscribes to the author's posts starting shortly before since and
// returns once a create commit for ref arrives. It reconnects on transient
// errors until the timeout.
func (c *Confirmer) Await(ctx context.Context, ref domain.PostRef, since time.Time) error {
	did, rkey, err := splitPostURI(ref.URI)
	if err != nil {
		return err
	}
	if ref.AuthorDID != "" {
		did = ref.AuthorDID
	}
	if !strings.HasPrefix(did, "did:") {
		return fmt.Errorf("post %s has no author DID", ref.URI)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cursor := since.Add(-cursorRewind).UnixMicro()
	for {
		found, err := c.subscribe(ctx, did, rkey, ref.CID, cursor)
		if found {
			return nil
		}
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %s", ErrNotConfirmed, ref.URI, c.timeout)
			}
			return ctx.Err()
		}

		c.logger.Warn("firehose connection error, reconnecting", "error", err)
		select {
		case <-ctx.Done():
			continue
		case <-time.After(reconnectBackoff):
			// backoff before reconnecting
		}
	}
}

func (c *Confirmer) buildURL(did string, cursor int64) string {
	u, _ := url.Parse(c.url)
	q := u.Query()
	q.Add("wantedCollections", postCollection)
	q.Add("wantedDids", did)
	if cursor > 0 {
		q.Set("cursor", fmt.Sprintf("%d", cursor))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Confirmer) subscribe(ctx context.Context, did, rkey, cid string, cursor int64) (bool, error) {
	wsURL := c.buildURL(did, cursor)
	c.logger.Debug("connecting to firehose", "url", wsURL)

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()

	// unblock ReadMessage when the context ends
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var eventsReceived int64
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return false, fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			c.logger.Error("failed to parse event", "error", err)
			continue
		}
		eventsReceived++

		if matches(event, did, rkey, cid) {
			c.logger.Debug("post seen on firehose",
				"did", did,
				"rkey", rkey,
				"events_received", eventsReceived,
				"text_preview", truncate(event.Commit.Record.text(), 100),
			)
			return true, nil
		}
	}
}

func matches(event *jetstreamEvent, did, rkey, cid string) bool {
	if event.Kind != "commit" || event.Commit == nil || event.DID != did {
		return false
	}
	commit := event.Commit
	if commit.Operation != "create" || commit.Collection != postCollection || commit.RKey != rkey {
		return false
	}
	return cid == "" || commit.CID == "" || commit.CID == cid
}

func splitPostURI(uri string) (did, rkey string, err error) {
	u, err := bluesky.ParseATURI(uri)
	if err != nil || u.Collection != bluesky.CollectionPost {
		return "", "", fmt.Errorf("not a post uri: %q", uri)
	}
	return u.Authority, u.RKey, nil
}

// truncate returns at most the first n bytes of s, cut back to a rune
// boundary, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func parseEvent(data []byte) (*jetstreamEvent, error) {
	var raw struct {
		DID    string          `json:"did"`
		TimeUS int64           `json:"time_us"`
		Kind   string          `json:"kind"`
		Commit json.RawMessage `json:"commit,omitempty"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	event := &jetstreamEvent{
		DID:    raw.DID,
		TimeUS: raw.TimeUS,
		Kind:   raw.Kind,
	}

	if raw.Kind == "commit" && len(raw.Commit) > 0 {
		var rc struct {
			Rev        string          `json:"rev"`
			Operation  string          `json:"operation"`
			Collection string          `json:"collection"`
			RKey       string          `json:"rkey"`
			Record     json.RawMessage `json:"record,omitempty"`
			CID        string          `json:"cid"`
		}
		if err := json.Unmarshal(raw.Commit, &rc); err != nil {
			return nil, fmt.Errorf("unmarshal commit: %w", err)
		}

		commit := &jetstreamCommit{
			Rev:        rc.Rev,
			Operation:  rc.Operation,
			Collection: rc.Collection,
			RKey:       rc.RKey,
			CID:        rc.CID,
		}

		if len(rc.Record) > 0 && rc.Collection == postCollection {
			var record postRecord
			if err := json.Unmarshal(rc.Record, &record); err != nil {
				return nil, fmt.Errorf("unmarshal post record: %w", err)
			}
			commit.Record = &record
		}

		event.Commit = commit
	}

	return event, nil
}
