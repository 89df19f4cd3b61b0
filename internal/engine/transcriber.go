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

// MidiConversionParams is the type-specific configuration for
// midi_conversion jobs
type MidiConversionParams struct {
	MidiTempo float64 `json:"midi_tempo"` // default 120, left to the script
	SaveNotes bool    `json:"save_notes"` // also persist the note-event list
}

// NoteEvent is one transcribed note
type NoteEvent struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Pitch     int     `json:"pitch"`
	Velocity  float64 `json:"velocity"`
}

// MidiTranscriber converts audio to MIDI using Basic Pitch
type MidiTranscriber struct {
	runner exec.ScriptRunner
}

// NewMidiTranscriber creates a MIDI conversion strategy
func NewMidiTranscriber(runner exec.ScriptRunner) *MidiTranscriber {
	return &MidiTranscriber{runner: runner}
}

// Run transcribes inputPath, returning the MIDI file and, when
// save_notes is set, the note-event list as a second artifact.
func (t *MidiTranscriber) Run(ctx context.Context, inputPath string, params json.RawMessage) (*Result, error) {
	var p MidiConversionParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, apperrors.NewValidationError("invalid midi_conversion params: %v", err)
		}
	}

	outDir, err := os.MkdirTemp("", "midi-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{inputPath, outDir}
	if p.MidiTempo > 0 {
		args = append(args, "--tempo", fmt.Sprintf("%g", p.MidiTempo))
	}

	result, err := t.runner.RunScript(ctx, "transcribe.py", args...)
	if err != nil {
		if result != nil && result.ExitCode != 0 {
			return nil, apperrors.NewProcessError("basic-pitch", "midi_conversion", result.ExitCode, result.Stderr, err)
		}
		return nil, fmt.Errorf("midi transcription: %w", err)
	}

	track := trackName(inputPath)
	midiName := track + ".mid"
	midiData, err := os.ReadFile(filepath.Join(outDir, midiName))
	if err != nil {
		return nil, apperrors.NewProcessError("basic-pitch", "midi_conversion", 0,
			"midi file missing from transcription output", err)
	}

	artifacts := map[string]Artifact{
		"midi": {Category: "midi", Filename: midiName, Data: midiData},
	}

	// The script always emits the note-event list; validate it even when
	// the caller did not ask to keep it.
	notesName := track + ".notes.json"
	notesData, err := os.ReadFile(filepath.Join(outDir, notesName))
	if err != nil {
		return nil, apperrors.NewProcessError("basic-pitch", "midi_conversion", 0,
			"note events missing from transcription output", err)
	}
	var notes []NoteEvent
	if err := json.Unmarshal(notesData, &notes); err != nil {
		return nil, apperrors.NewProcessError("basic-pitch", "midi_conversion", 0,
			fmt.Sprintf("malformed note events: %v", err), err)
	}
	if p.SaveNotes {
		artifacts["notes"] = Artifact{Category: "midi", Filename: notesName, Data: notesData}
	}

	return &Result{Artifacts: artifacts}, nil
}
