package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blackmichael/species-poster/internal/domain"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCheckSizeBoundary(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckSize(1_000_000))
	require.NoError(t, CheckSize(0))

	err := CheckSize(1_000_001)
	require.ErrorIs(t, err, domain.ErrSizeLimit)
	require.ErrorContains(t, err, "1,000,001 bytes")
}

func TestMimeTypeFor(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"frog.png":  "image/png",
		"frog.JPG":  "image/jpeg",
		"frog.jpeg": "image/jpeg",
		"frog.webp": "image/webp",
		"frog.gif":  "image/gif",
		"frog":      "application/octet-stream",
		"frog.tiff": "application/octet-stream",
	}
	for name, want := range tests {
		require.Equal(t, want, MimeTypeFor(name), name)
	}
}

func TestNewDecodesDimensions(t *testing.T) {
	t.Parallel()

	m, err := New("dir/frog.png", pngBytes(t, 64, 48))
	require.NoError(t, err)
	require.Equal(t, "frog.png", m.Filename)
	require.Equal(t, "image/png", m.MimeType)
	require.Equal(t, 64, m.Width)
	require.Equal(t, 48, m.Height)

	w, h, ok := AspectRatio(m)
	require.True(t, ok)
	require.Equal(t, 64, w)
	require.Equal(t, 48, h)
}

func TestNewSniffsUnknownExtension(t *testing.T) {
	t.Parallel()

	m, err := New("download", pngBytes(t, 2, 2))
	require.NoError(t, err)
	require.Equal(t, "image/png", m.MimeType)
}

func TestNewUndecodable(t *testing.T) {
	t.Parallel()

	m, err := New("frog.jpg", []byte("not an image"))
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", m.MimeType)

	_, _, ok := AspectRatio(m)
	require.False(t, ok)
}

func TestNewRejectsOversize(t *testing.T) {
	t.Parallel()

	_, err := New("big.jpg", make([]byte, MaxSize+1))
	require.ErrorIs(t, err, domain.ErrSizeLimit)

	_, err = New("exact.jpg", make([]byte, MaxSize))
	require.NoError(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "frog.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t, 10, 20), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 10, m.Width)
	require.Equal(t, 20, m.Height)

	big := filepath.Join(dir, "big.jpg")
	require.NoError(t, os.WriteFile(big, make([]byte, MaxSize+1), 0o644))
	_, err = Load(big)
	require.ErrorIs(t, err, domain.ErrSizeLimit)

	_, err = Load(filepath.Join(dir, "missing.png"))
	require.Error(t, err)
}

func TestScratch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := Scratch{
		ImagePath:   filepath.Join(dir, "resources", "today_sp.jpg"),
		CaptionPath: filepath.Join(dir, "resources", "today_text.txt"),
	}

	require.NoError(t, s.WriteCaption("#1 Today species"))
	require.NoError(t, s.WriteImage(domain.Media{Data: []byte{1, 2, 3}}))
	require.NoError(t, s.WriteCaption("#2 overwritten"))

	caption, err := os.ReadFile(s.CaptionPath)
	require.NoError(t, err)
	require.Equal(t, "#2 overwritten\n", string(caption))

	img, err := os.ReadFile(s.ImagePath)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, img)

	require.NoError(t, Scratch{}.WriteCaption("ignored"))
}
