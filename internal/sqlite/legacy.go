package sqlite

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// LegacyState is the selection state kept by the old text files: one index
// per line for the universe and the sampled species, and a single integer for
// the post counter.
type LegacyState struct {
	Possible []int
	Sampled  []int
	Number   int64
}

// ReadLegacyFiles reads the legacy state files. An empty path skips that file.
func ReadLegacyFiles(possiblePath, sampledPath, numberPath string) (LegacyState, error) {
	var (
		state LegacyState
		err   error
	)

	if possiblePath != "" {
		if state.Possible, err = readIndexFile(possiblePath); err != nil {
			return state, err
		}
	}
	if sampledPath != "" {
		if state.Sampled, err = readIndexFile(sampledPath); err != nil {
			return state, err
		}
	}
	if numberPath != "" {
		data, err := os.ReadFile(numberPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return state, fmt.Errorf("read %s: %w", numberPath, err)
		}
		if s := strings.TrimSpace(string(data)); s != "" {
			if state.Number, err = strconv.ParseInt(s, 10, 64); err != nil {
				return state, fmt.Errorf("parse %s: %w", numberPath, err)
			}
		}
	}

	return state, nil
}

func readIndexFile(path string) ([]int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out []int
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		idx, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, idx)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
