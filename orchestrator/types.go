package orchestrator

import (
	"fmt"
)

// Stage names a pipeline state. Text, frames and voice run in worker
// processes; normalize runs in the orchestrator.
type Stage string

const (
	StageText      Stage = "text"
	StageFrames    Stage = "frames"
	StageVoice     Stage = "voice"
	StageNormalize Stage = "normalize"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// ParseStage accepts only the stages a worker can run.
func ParseStage(s string) (Stage, error) {
	switch st := Stage(s); st {
	case StageText, StageFrames, StageVoice:
		return st, nil
	}
	return "", fmt.Errorf("unknown worker stage %q", s)
}

// StageError is the single terminal error of a failed run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// VideoRef identifies the input video. Source is a local path, an http(s)
// URL or an s3://bucket/key reference.
type VideoRef struct {
	ID     string
	Source string
}

// StageInput is everything a worker receives: paths and primitives only.
type StageInput struct {
	VideoID       string `json:"video_id"`
	Video         string `json:"video"`
	RunDir        string `json:"run_dir"`
	AudioPath     string `json:"audio_path,omitempty"`
	FrameInterval int    `json:"frame_interval"`
	SampleRate    int    `json:"sample_rate"`
	// Previous is the handoff file written by the preceding stage.
	Previous string `json:"previous,omitempty"`
}

// Job is one isolated stage execution.
type Job struct {
	Stage  Stage
	Input  string
	Output string
}
