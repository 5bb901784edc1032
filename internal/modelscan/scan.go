// Package modelscan resolves which model weight files are actually present
// on this worker's disk. The result feeds the capability snapshot built
// before each claim cycle, so a weights file rsynced in (or deleted) between
// cycles changes what the worker claims without a restart.
package modelscan

import (
	"os"
	"path/filepath"

	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
)

// Result maps each job type to the resolved path of its weights file.
// Absent entries mean the file was not found under any search path.
type Result struct {
	PathByType map[jobs.JobType]string
}

// Ready reports whether the weights for t were found. Job types with no
// configured weights file are always ready.
func (r Result) Ready(t jobs.JobType, required bool) bool {
	if !required {
		return true
	}
	_, ok := r.PathByType[t]
	return ok
}

// Scan stats each required file under the search paths in order and keeps
// the first hit. requiredFiles maps job type to the weights filename that
// type needs; types absent from the map need no local file.
func Scan(searchPaths []string, requiredFiles map[jobs.JobType]string) Result {
	result := Result{PathByType: make(map[jobs.JobType]string, len(requiredFiles))}
	for t, name := range requiredFiles {
		if name == "" {
			continue
		}
		for _, dir := range searchPaths {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				result.PathByType[t] = candidate
				break
			}
		}
	}
	return result
}
