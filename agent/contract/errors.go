package contract

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrToolExecution     = errors.New("tool execution failed")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrRecursionExceeded = errors.New("recursion limit exceeded")
	ErrPipelineStage     = errors.New("report pipeline stage failed")
	ErrUpstreamTimeout   = errors.New("upstream call timed out")
	ErrPersistence       = errors.New("persistence write failed")
	ErrSessionBusy       = errors.New("session already has a turn in flight")
)

// PipelineStageError reports which report stage aborted the pipeline.
// It matches both ErrPipelineStage and the underlying cause with errors.Is.
type PipelineStageError struct {
	Stage string
	Err   error
}

func (e *PipelineStageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("report stage %s failed", e.Stage)
	}
	return fmt.Sprintf("report stage %s failed: %v", e.Stage, e.Err)
}

func (e *PipelineStageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPipelineStage}
	}
	return []error{ErrPipelineStage, e.Err}
}

// ClassifyUpstream tags deadline errors from external calls as ErrUpstreamTimeout.
func ClassifyUpstream(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstreamTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
	}
	return err
}
