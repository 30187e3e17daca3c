package utils

import (
	"fmt"
	"os"
)

// Debugf prints a debug line to stderr; callers gate it on Config.Debug.
func Debugf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[debug] "+format+"\n", args...)
}
