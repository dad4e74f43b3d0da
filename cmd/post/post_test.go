package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type pds struct {
	*httptest.Server
	requests atomic.Int32
	record   map[string]any
	uploads  atomic.Int32
}

func newPDS(t *testing.T) *pds {
	t.Helper()

	p := &pds{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"accessJwt":"jwt","did":"did:plc:bot","handle":"bot.example.com"}`)
	})
	mux.HandleFunc("POST /xrpc/com.atproto.repo.uploadBlob", func(w http.ResponseWriter, r *http.Request) {
		p.uploads.Add(1)
		fmt.Fprintf(w, `{"blob":{"$type":"blob","ref":{"$link":"bafkblob"},"mimeType":%q,"size":1}}`, r.Header.Get("Content-Type"))
	})
	mux.HandleFunc("POST /xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Record map[string]any `json:"record"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		p.record = body.Record
		fmt.Fprint(w, `{"uri":"at://did:plc:bot/app.bsky.feed.post/3kpost","cid":"bafypost"}`)
	})
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(p.Close)
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{"SPECIESBOT_CONFIG", "ATP_PDS_HOST", "ATP_AUTH_HANDLE", "ATP_AUTH_PASSWORD",
		"SPECIESBOT_LOG_LEVEL", "SPECIESBOT_LOG_FORMAT"} {
		t.Setenv(key, "")
	}
}

func execPost(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := newPostCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()

	var ee *exitError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, code, ee.code)
}

func TestPostTextFromFile(t *testing.T) {
	clearEnv(t)
	p := newPDS(t)

	path := filepath.Join(t.TempDir(), "today.txt")
	require.NoError(t, os.WriteFile(path, []byte("Frogs! https://example.org/rana\n"), 0o644))

	out, err := execPost(t, path, "--pds-url", p.URL, "--handle", "bot.example.com", "--password", "pw")
	require.NoError(t, err)
	require.JSONEq(t, `{"uri":"at://did:plc:bot/app.bsky.feed.post/3kpost","cid":"bafypost"}`, out)

	require.Equal(t, "Frogs! https://example.org/rana", p.record["text"])
	require.Equal(t, []any{"en-US"}, p.record["langs"])
	facets := p.record["facets"].([]any)
	require.Len(t, facets, 1)
	index := facets[0].(map[string]any)["index"].(map[string]any)
	require.EqualValues(t, 7, index["byteStart"])
	require.EqualValues(t, 31, index["byteEnd"])
}

func TestPostLiteralTextWithImage(t *testing.T) {
	clearEnv(t)
	p := newPDS(t)
	t.Setenv("ATP_PDS_HOST", p.URL)
	t.Setenv("ATP_AUTH_HANDLE", "bot.example.com")
	t.Setenv("ATP_AUTH_PASSWORD", "pw")

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 6))))
	img := filepath.Join(t.TempDir(), "frog.png")
	require.NoError(t, os.WriteFile(img, buf.Bytes(), 0o644))

	_, err := execPost(t, "hello frogs", "--image", img, "--alt-text", "A frog", "--langs", "fr", "--no-facets")
	require.NoError(t, err)
	require.EqualValues(t, 1, p.uploads.Load())

	require.Equal(t, "hello frogs", p.record["text"])
	require.Equal(t, []any{"fr"}, p.record["langs"])
	require.NotContains(t, p.record, "facets")
	embed := p.record["embed"].(map[string]any)
	first := embed["images"].([]any)[0].(map[string]any)
	require.Equal(t, "A frog", first["alt"])
	require.Equal(t, map[string]any{"width": float64(8), "height": float64(6)}, first["aspectRatio"])
}

func TestPostTooManyImages(t *testing.T) {
	clearEnv(t)
	p := newPDS(t)

	args := []string{"text", "--pds-url", p.URL, "--handle", "h", "--password", "pw"}
	for i := range 5 {
		args = append(args, "--image", fmt.Sprintf("img%d.png", i))
	}
	_, err := execPost(t, args...)
	requireExitCode(t, err, usageExitCode)
	require.ErrorContains(t, err, "at most 4")
	require.Zero(t, p.requests.Load())
}

func TestPostMissingCredentials(t *testing.T) {
	clearEnv(t)
	p := newPDS(t)

	_, err := execPost(t, "text", "--pds-url", p.URL, "--handle", "bot.example.com")
	requireExitCode(t, err, usageExitCode)
	require.Zero(t, p.requests.Load())
}

func TestPostUsageErrors(t *testing.T) {
	clearEnv(t)

	_, err := execPost(t)
	requireExitCode(t, err, usageExitCode)

	_, err = execPost(t, "text", "--bogus")
	requireExitCode(t, err, usageExitCode)
}
