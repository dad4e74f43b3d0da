package bluesky

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ATURI is a parsed at://authority/collection/rkey URI.
type ATURI struct {
	Authority  string
	Collection string
	RKey       string
}

func (u ATURI) String() string {
	return "at://" + u.Authority + "/" + u.Collection + "/" + u.RKey
}

// ParseATURI parses a record AT-URI. It also accepts bsky.app post URLs of
// the form https://bsky.app/profile/<handle-or-did>/post/<rkey>.
func ParseATURI(raw string) (ATURI, error) {
	raw = strings.TrimSpace(raw)

	if rest, ok := strings.CutPrefix(raw, "at://"); ok {
		parts := strings.Split(rest, "/")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return ATURI{}, fmt.Errorf("invalid at-uri %q: want at://authority/collection/rkey", raw)
		}
		return ATURI{Authority: parts[0], Collection: parts[1], RKey: parts[2]}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ATURI{}, fmt.Errorf("invalid post reference %q: %w", raw, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return ATURI{}, fmt.Errorf("invalid post reference %q: want at:// or bsky.app URL", raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 || parts[0] != "profile" || parts[2] != "post" || parts[1] == "" || parts[3] == "" {
		return ATURI{}, fmt.Errorf("invalid post URL %q: want /profile/<handle>/post/<rkey>", raw)
	}
	return ATURI{Authority: parts[1], Collection: CollectionPost, RKey: parts[3]}, nil
}

// IsDID reports whether the authority is a DID rather than a handle.
func (u ATURI) IsDID() bool {
	return strings.HasPrefix(u.Authority, "did:")
}

// FetchRecord resolves a post reference (AT-URI or bsky.app URL) to the
// record it points at, resolving handles to DIDs first.
func (c *Client) FetchRecord(ctx context.Context, ref string) (*Record, error) {
	u, err := ParseATURI(ref)
	if err != nil {
		return nil, err
	}
	if !u.IsDID() {
		did, err := c.ResolveHandle(ctx, u.Authority)
		if err != nil {
			return nil, err
		}
		u.Authority = did
	}
	return c.GetRecord(ctx, u.Authority, u.Collection, u.RKey)
}
