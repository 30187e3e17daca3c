package IO

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrNoCorpus = errors.New("no training text found")

// ReadCorpus reads every *.txt file in dir (os.ReadDir order) and joins
// their contents with single spaces.
func ReadCorpus(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read corpus dir: %w", err)
	}
	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return "", fmt.Errorf("read corpus file %s: %w", e.Name(), err)
		}
		texts = append(texts, string(raw))
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("%w: %s has no .txt files", ErrNoCorpus, dir)
	}
	return strings.Join(texts, " "), nil
}
