// Package pipeline provides the stage abstraction and the data types passed
// between the stages of a chunked decode.
package pipeline

import "context"

// Stage is one step of a chunked decode: scale estimation, planning,
// invocation, normalization or stitching.
type Stage[In, Out any] interface {
	Execute(ctx context.Context, input In) (Out, error)
}

// StageFunc adapts a function to Stage.
type StageFunc[In, Out any] func(ctx context.Context, input In) (Out, error)

// Execute calls f.
func (f StageFunc[In, Out]) Execute(ctx context.Context, input In) (Out, error) {
	return f(ctx, input)
}

// StageError names the stage a decode failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + " stage: " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Run executes stage and wraps a failure in a *StageError named name.
func Run[In, Out any](ctx context.Context, name string, stage Stage[In, Out], input In) (Out, error) {
	out, err := stage.Execute(ctx, input)
	if err != nil {
		return out, &StageError{Stage: name, Err: err}
	}
	return out, nil
}
