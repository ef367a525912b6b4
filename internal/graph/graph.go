// Package graph is a generic directed-stage execution engine. Pipelines
// register named stages and edges; the engine walks them strictly
// sequentially for one run, captures every stage failure into the run state,
// and degrades to a designated error stage instead of aborting.
package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// State is the minimal surface run state must expose to the engine. Both
// pipeline state types implement it.
type State interface {
	RecordStep(stage string)
	RecordError(stage, msg string)
}

// Stage transforms the run state in place. A returned error is captured into
// the state and routes the run to the error stage; it never propagates.
type Stage[S State] func(ctx context.Context, state S) error

// Guard reads the current state and names the next stage.
type Guard[S State] func(state S) string

type edge[S State] struct {
	to    string
	guard Guard[S]
}

// Engine executes one registered stage graph. It holds no per-run state, so
// a single Engine is shared across concurrent runs.
type Engine[S State] struct {
	stages     map[string]Stage[S]
	edges      map[string]edge[S]
	errorStage string
	logger     *zap.Logger
}

// New creates an engine whose failure path converges on errorStage.
func New[S State](errorStage string, logger *zap.Logger) *Engine[S] {
	return &Engine[S]{
		stages:     make(map[string]Stage[S]),
		edges:      make(map[string]edge[S]),
		errorStage: errorStage,
		logger:     logger,
	}
}

// AddStage registers a named stage.
func (e *Engine[S]) AddStage(name string, fn Stage[S]) {
	e.stages[name] = fn
}

// AddEdge registers an unconditional edge. Stages without an outgoing edge
// are terminal.
func (e *Engine[S]) AddEdge(from, to string) {
	e.edges[from] = edge[S]{to: to}
}

// AddConditionalEdge registers a guarded edge whose guard names the next stage.
func (e *Engine[S]) AddConditionalEdge(from string, guard Guard[S]) {
	e.edges[from] = edge[S]{guard: guard}
}

// Run executes the graph from entry until a terminal stage. The step budget
// (4x the stage count, at least 32) turns a miswired cycle into a captured
// error rather than an infinite loop.
func (e *Engine[S]) Run(ctx context.Context, entry string, state S) {
	maxSteps := len(e.stages) * 4
	if maxSteps < 32 {
		maxSteps = 32
	}

	current := entry
	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			state.RecordError(current, fmt.Sprintf("run cancelled: %v", err))
			e.runErrorStage(ctx, state)
			return
		}

		stage, ok := e.stages[current]
		if !ok {
			state.RecordError(current, "unknown stage")
			e.runErrorStage(ctx, state)
			return
		}

		state.RecordStep(current)
		e.logger.Debug("executing stage", zap.String("stage", current))

		if err := e.execute(ctx, current, stage, state); err != nil {
			state.RecordError(current, err.Error())
			if current != e.errorStage {
				e.runErrorStage(ctx, state)
			}
			return
		}

		next, ok := e.next(current, state)
		if !ok {
			return
		}
		current = next
	}

	state.RecordError(current, "stage budget exhausted")
	e.runErrorStage(ctx, state)
}

// execute runs one stage, converting panics into errors.
func (e *Engine[S]) execute(ctx context.Context, name string, stage Stage[S], state S) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
			e.logger.Error("stage panic recovered",
				zap.String("stage", name), zap.Any("panic", r))
		}
	}()
	return stage(ctx, state)
}

func (e *Engine[S]) next(current string, state S) (string, bool) {
	edge, ok := e.edges[current]
	if !ok {
		return "", false
	}
	if edge.guard != nil {
		return edge.guard(state), true
	}
	return edge.to, true
}

func (e *Engine[S]) runErrorStage(ctx context.Context, state S) {
	stage, ok := e.stages[e.errorStage]
	if !ok {
		return
	}
	state.RecordStep(e.errorStage)
	if err := e.execute(ctx, e.errorStage, stage, state); err != nil {
		state.RecordError(e.errorStage, err.Error())
	}
}
