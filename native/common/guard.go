package common

import (
	coreerrors "healthkey/core/errors"
)

var ErrProgramPaused = coreerrors.New(coreerrors.ClassResource, "ProgramPaused", "program paused")

// PauseView reports operator pauses keyed by program name.
type PauseView interface {
	IsPaused(program string) bool
}

func Guard(p PauseView, program string) error {
	if p == nil || program == "" {
		return nil
	}
	if p.IsPaused(program) {
		return ErrProgramPaused
	}
	return nil
}
