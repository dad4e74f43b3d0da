// Package media handles image blobs before they are posted: the size
// ceiling, MIME type and pixel dimensions, plus the scratch files a run
// leaves behind.
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/blackmichael/species-poster/internal/domain"
)

// MaxSize is the largest blob accepted for posting, in bytes.
const MaxSize = domain.MaxMediaSize

// CheckSize fails with domain.ErrSizeLimit when size is above MaxSize.
func CheckSize(size int64) error {
	if size > MaxSize {
		return fmt.Errorf("%w: %s bytes (%s) is over the %s limit",
			domain.ErrSizeLimit, humanize.Comma(size), humanize.Bytes(uint64(size)), humanize.Bytes(MaxSize))
	}
	return nil
}

// MimeTypeFor guesses the MIME type from the file extension.
func MimeTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// New builds a Media from raw bytes, checking the size and decoding the
// pixel dimensions when the format is known. Undecodable images keep zero
// dimensions.
func New(filename string, data []byte) (domain.Media, error) {
	if err := CheckSize(int64(len(data))); err != nil {
		return domain.Media{}, fmt.Errorf("%s: %w", filename, err)
	}

	m := domain.Media{
		Data:     data,
		Filename: filepath.Base(filename),
		MimeType: MimeTypeFor(filename),
	}

	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		m.Width = cfg.Width
		m.Height = cfg.Height
		if m.MimeType == "application/octet-stream" {
			m.MimeType = "image/" + format
		}
	}

	return m, nil
}

// Load reads an image file from disk.
func Load(path string) (domain.Media, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Media{}, fmt.Errorf("stat image: %w", err)
	}
	if err := CheckSize(info.Size()); err != nil {
		return domain.Media{}, fmt.Errorf("%s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Media{}, fmt.Errorf("read image: %w", err)
	}
	return New(path, data)
}

// AspectRatio returns the image dimensions, or ok=false if they are unknown.
func AspectRatio(m domain.Media) (width, height int, ok bool) {
	if m.Width <= 0 || m.Height <= 0 {
		return 0, 0, false
	}
	return m.Width, m.Height, true
}
