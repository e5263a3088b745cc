package pipelines

import (
	"context"
	"fmt"
	"time"

	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"
)

type contextKey string

// SkipStepsKey holds a []string of task names to skip in a run. Dependents
// of a skipped task still execute.
const SkipStepsKey contextKey = "skip_steps"

// TaskFunc is one unit of pipeline work.
type TaskFunc func() error

type task struct {
	name string
	fn   TaskFunc
	deps []string
}

// Flow runs named tasks sequentially in insertion order. A task's deps
// must name tasks added before it; Run rejects the flow otherwise. A
// task failure stops the flow.
type Flow struct {
	name  string
	tasks []task
}

// NewFlow creates an empty flow.
func NewFlow(name string) *Flow {
	return &Flow{name: name}
}

// AddTask appends a task. deps name tasks that must have been added earlier.
func (f *Flow) AddTask(name string, fn TaskFunc, deps ...string) *Flow {
	f.tasks = append(f.tasks, task{name: name, fn: fn, deps: deps})
	return f
}

// Run executes the flow. The log lines emitted here ("flow started",
// "step completed", ...) are what the run history endpoint reconstructs
// pipeline runs from, so their shape must stay stable.
func (f *Flow) Run(ctx context.Context) error {
	added := make(map[string]bool, len(f.tasks))
	for _, t := range f.tasks {
		for _, dep := range t.deps {
			if !added[dep] {
				return fmt.Errorf("flow %s: task %s depends on %s, which was not added before it",
					f.name, t.name, dep)
			}
		}
		added[t.name] = true
	}

	skip := make(map[string]bool)
	if names, ok := ctx.Value(SkipStepsKey).([]string); ok {
		for _, name := range names {
			skip[name] = true
		}
	}

	start := time.Now()
	logger.Info("flow started", zap.String("pipeline", f.name))

	for _, t := range f.tasks {
		select {
		case <-ctx.Done():
			return fmt.Errorf("flow %s cancelled: %w", f.name, ctx.Err())
		default:
		}

		if skip[t.name] {
			logger.Info("step skipped",
				zap.String("pipeline", f.name),
				zap.String("step", t.name))
			continue
		}

		stepStart := time.Now()
		if err := t.fn(); err != nil {
			logger.Error("step failed",
				zap.String("pipeline", f.name),
				zap.String("step", t.name),
				zap.String("error", err.Error()))
			return fmt.Errorf("step %s: %w", t.name, err)
		}
		logger.Info("step completed",
			zap.String("pipeline", f.name),
			zap.String("step", t.name),
			zap.Float64("duration", time.Since(stepStart).Seconds()))
	}

	logger.Info("flow completed",
		zap.String("pipeline", f.name),
		zap.Float64("duration", time.Since(start).Seconds()))
	return nil
}
