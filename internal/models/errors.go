package models

import (
	"errors"
	"fmt"
)

var (
	ErrNoExtractableText = errors.New("no extractable text found in document")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyInput        = errors.New("empty input")
	ErrEmptyQuestion     = errors.New("question is empty")
	ErrMalformedResponse = errors.New("model returned no answer text")
	ErrNoDocument        = errors.New("no document loaded")
)

// Stage names the pipeline step an error comes from.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageEmbed    Stage = "embed"
	StageIndex    Stage = "index"
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
	StagePersist  Stage = "persist"
)

// StageError tags an error with the failing stage and, for provider calls, a kind.
type StageError struct {
	Stage Stage
	Kind  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Fail wraps err into a StageError. A nil err stays nil and an error that
// already carries a stage is returned unchanged.
func Fail(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf reports the stage recorded in err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
