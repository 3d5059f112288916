package etl

import "context"

// Events emitted while a run progresses. They are observational only.
const (
	EventSourceLoaded = "pipeline:source-loaded"
	EventStageDone    = "pipeline:stage-done"
	EventCompleted    = "pipeline:completed"
	EventFailed       = "pipeline:failed"
)

// EventEmitter receives progress notifications from the pipeline.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, any) {}

func emitterOrNop(e EventEmitter) EventEmitter {
	if e == nil {
		return nopEmitter{}
	}
	return e
}
