package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFailKeepsFirstStage(t *testing.T) {
	err := Fail(StageEmbed, ErrEmptyInput)
	wrapped := Fail(StageIndex, fmt.Errorf("build: %w", err))

	stage, ok := StageOf(wrapped)
	require.True(t, ok)
	require.Equal(t, StageEmbed, stage)
	require.ErrorIs(t, wrapped, ErrEmptyInput)
}

func TestFailNil(t *testing.T) {
	require.NoError(t, Fail(StageIngest, nil))
}

func TestStageErrorMessage(t *testing.T) {
	err := &StageError{Stage: StageGenerate, Kind: "quota", Err: errors.New("insufficient_quota")}
	require.Equal(t, "generate failed (quota): insufficient_quota", err.Error())

	_, ok := StageOf(errors.New("plain"))
	require.False(t, ok)
}
