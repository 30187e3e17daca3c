package IO

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteOutput writes the generated text, creating parent directories.
func WriteOutput(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
