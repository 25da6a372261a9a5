package pipeline

import (
	"fmt"

	"github.com/pkg/errors"
)

type Stage string

const (
	StageParse    Stage = "parse"
	StageTimeline Stage = "timeline"
	StageManifest Stage = "manifest"
	StageEncode   Stage = "encode"
)

// StageError names the stage a run failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// FailedStage extracts the stage from err, or "" when err is not a stage failure.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
