package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuongbtq/pdf-gateway/internal/ai"
	"github.com/cuongbtq/pdf-gateway/internal/engine"
	"github.com/cuongbtq/pdf-gateway/shared/objectstore"
)

type Stage string

const (
	StageDownload Stage = "download"
	StageEngine   Stage = "engine"
	StageGenerate Stage = "generate"
	StageUpload   Stage = "upload"
	StageSign     Stage = "sign"
)

// StageError records which step of a run failed
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// IsRetryable reports whether running the job again may succeed
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var se *StageError
	if !errors.As(err, &se) {
		return false
	}

	switch se.Stage {
	case StageEngine:
		return engine.IsRetryable(se.Err)
	case StageDownload:
		return !errors.Is(se.Err, objectstore.ErrObjectNotFound)
	case StageGenerate:
		return !errors.Is(se.Err, ai.ErrDisabled) &&
			!errors.Is(se.Err, ai.ErrEmptyInput) &&
			!errors.Is(se.Err, ai.ErrEmptyResponse)
	case StageUpload, StageSign:
		return true
	}
	return false
}
