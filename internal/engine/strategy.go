package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
)

// Artifact is one named blob produced by a strategy, held in memory until
// the job runner persists it through the artifact store.
type Artifact struct {
	Category string // output subdirectory, e.g. "stems" or "midi"
	Filename string
	Data     []byte
}

// Result is the raw outcome of one strategy invocation, keyed by artifact
// name (vocals, drums, bass, other, midi, notes).
type Result struct {
	Artifacts map[string]Artifact
}

// Strategy is the polymorphic unit of work per job type. Implementations
// perform inference on the input file and return raw results; they know
// nothing about job records or artifact storage. A failed inference always
// returns a ProcessError — never partial output.
type Strategy interface {
	Run(ctx context.Context, inputPath string, params json.RawMessage) (*Result, error)
}

// trackName derives the stem-file prefix from the input filename
func trackName(inputPath string) string {
	base := filepath.Base(inputPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
