package media

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blackmichael/species-poster/internal/domain"
)

// Scratch writes the run's caption and image to fixed local paths,
// overwriting the previous run's files. An empty path disables that file.
type Scratch struct {
	ImagePath   string
	CaptionPath string
}

// WriteCaption writes text followed by a newline.
func (s Scratch) WriteCaption(text string) error {
	if s.CaptionPath == "" {
		return nil
	}
	return writeFile(s.CaptionPath, []byte(text+"\n"))
}

// WriteImage writes the raw image bytes.
func (s Scratch) WriteImage(m domain.Media) error {
	if s.ImagePath == "" {
		return nil
	}
	return writeFile(s.ImagePath, m.Data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
