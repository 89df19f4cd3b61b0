package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/stemsplit/api/internal/errors"
	"github.com/stemsplit/api/internal/exec"
)

// StemNames are the four sources demucs produces for every track
var StemNames = []string{"vocals", "drums", "bass", "other"}

// StemSeparationParams is the type-specific configuration for
// stem_separation jobs
type StemSeparationParams struct {
	Model string `json:"model"` // demucs model name, default htdemucs
}

// StemSeparator separates an audio file into vocals, drums, bass and other
// using Demucs. The model is loaded by the script on each invocation;
// instances are stateless between runs.
type StemSeparator struct {
	runner exec.ScriptRunner
	format string
}

// NewStemSeparator creates a stem separation strategy writing stems in the
// given audio format (e.g. "mp3").
func NewStemSeparator(runner exec.ScriptRunner, format string) *StemSeparator {
	if format == "" {
		format = "mp3"
	}
	return &StemSeparator{runner: runner, format: format}
}

// Run separates inputPath into four stems and returns them in memory.
// All four stems must be produced; a missing stem is an inference failure.
func (s *StemSeparator) Run(ctx context.Context, inputPath string, params json.RawMessage) (*Result, error) {
	var p StemSeparationParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, apperrors.NewValidationError("invalid stem_separation params: %v", err)
		}
	}

	outDir, err := os.MkdirTemp("", "stems-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{inputPath, outDir, "--format", s.format}
	if p.Model != "" {
		args = append(args, "--model", p.Model)
	}

	result, err := s.runner.RunScript(ctx, "separate.py", args...)
	if err != nil {
		if result != nil && result.ExitCode != 0 {
			return nil, apperrors.NewProcessError("demucs", "stem_separation", result.ExitCode, result.Stderr, err)
		}
		return nil, fmt.Errorf("stem separation: %w", err)
	}

	track := trackName(inputPath)
	artifacts := make(map[string]Artifact, len(StemNames))
	for _, stem := range StemNames {
		filename := fmt.Sprintf("%s.%s.%s", track, stem, s.format)
		data, err := os.ReadFile(filepath.Join(outDir, filename))
		if err != nil {
			return nil, apperrors.NewProcessError("demucs", "stem_separation", 0,
				fmt.Sprintf("stem %q missing from separation output", stem), err)
		}
		artifacts[stem] = Artifact{Category: "stems", Filename: filename, Data: data}
	}

	return &Result{Artifacts: artifacts}, nil
}
