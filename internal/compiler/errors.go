package compiler

import (
	"errors"
	"fmt"

	"coil/internal/analyzer"
	"coil/internal/exec"
	"coil/internal/generator"
	"coil/internal/runtime"
)

// Phase identifies the compilation stage a failure belongs to. The core
// recovers from none of them; callers branch on the phase to present the
// failure.
type Phase string

const (
	PhaseAnalysis     Phase = "analysis"
	PhaseGeneration   Phase = "generation"
	PhaseOptimization Phase = "optimization"
	PhaseHostCompile  Phase = "host-compilation"
	PhaseExecution    Phase = "execution"
)

// Error tags a collaborator failure with its phase, the source identifier,
// and the source position when the underlying error carries one. The
// underlying error is preserved unmodified and reachable via Unwrap.
type Error struct {
	Phase Phase
	File  string
	Pos   runtime.Position
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapErr builds the phase-tagged error for err, lifting position and file
// details out of the collaborator error types that carry them.
func wrapErr(phase Phase, file string, err error) error {
	e := &Error{Phase: phase, File: file, Err: err}

	var aerr *analyzer.Error
	var gerr *generator.Error
	var cerr *exec.CompileError
	switch {
	case errors.As(err, &aerr):
		e.Pos = aerr.Pos
	case errors.As(err, &gerr):
		e.Pos = gerr.Pos
	case errors.As(err, &cerr):
		e.Pos = cerr.Pos
		if cerr.File != "" {
			e.File = cerr.File
		}
	}
	return e
}
