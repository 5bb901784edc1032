package handler

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// WithScratchDir creates a per-job temp directory under base, runs fn with
// it, and removes it on every exit path, including a panicking fn. Handlers
// that shell out to inference runtimes use this so a crashed attempt never
// leaks partial output to disk.
func WithScratchDir(base string, fn func(dir string) error) error {
	dir, err := os.MkdirTemp(base, "job-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", dir).Msg("scratch dir cleanup failed")
		}
	}()
	return fn(dir)
}
