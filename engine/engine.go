package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/stategraph/config"
	"github.com/tailored-agentic-units/stategraph/graph"
	"github.com/tailored-agentic-units/stategraph/observability"
	"github.com/tailored-agentic-units/stategraph/state"
)

// Engine executes compiled graphs. An Engine holds no per-run state and is
// safe for concurrent runs of the same or different graphs.
type Engine struct {
	name                string
	observer            observability.Observer
	checkpointStore     CheckpointStore
	checkpointInterval  int
	preserveCheckpoints bool
	stepLimit           int
	timeout             time.Duration
	maxConcurrency      int
}

// New creates an engine from configuration, resolving the observer and the
// checkpoint store through their registries.
//
// Example:
//
//	cfg := config.DefaultEngineConfig("report")
//	cfg.Observer = "noop"
//	eng, err := engine.New(cfg)
func New(cfg config.EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	var checkpointStore CheckpointStore
	if cfg.Checkpoint.Interval > 0 {
		checkpointStore, err = GetCheckpointStore(cfg.Checkpoint.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve checkpoint store: %w", err)
		}
	}

	return newEngine(cfg, observer, checkpointStore), nil
}

// NewWithDeps creates an engine with explicit collaborators. A nil observer
// discards events; a nil store disables checkpointing.
func NewWithDeps(cfg config.EngineConfig, observer observability.Observer, checkpointStore CheckpointStore) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	return newEngine(cfg, observer, checkpointStore), nil
}

func newEngine(cfg config.EngineConfig, observer observability.Observer, checkpointStore CheckpointStore) *Engine {
	e := &Engine{
		name:                cfg.Name,
		observer:            observer,
		checkpointStore:     checkpointStore,
		checkpointInterval:  cfg.Checkpoint.Interval,
		preserveCheckpoints: cfg.Checkpoint.Preserve,
		stepLimit:           cfg.StepLimit,
		timeout:             cfg.Timeout,
		maxConcurrency:      cfg.MaxConcurrency,
	}
	if checkpointStore == nil {
		e.checkpointInterval = 0
	}
	return e
}

func (e *Engine) Name() string {
	return e.name
}

// RunOption overrides engine defaults for a single run.
type RunOption func(*runOptions)

type runOptions struct {
	stepLimit int
	timeout   time.Duration
	runID     string
}

// WithStepLimit bounds the run to n rounds.
func WithStepLimit(n int) RunOption {
	return func(o *runOptions) {
		if n > 0 {
			o.stepLimit = n
		}
	}
}

// WithTimeout bounds the run's wall-clock duration.
func WithTimeout(d time.Duration) RunOption {
	return func(o *runOptions) {
		o.timeout = d
	}
}

// WithRunID sets the run identifier instead of a generated UUID.
func WithRunID(id string) RunOption {
	return func(o *runOptions) {
		o.runID = id
	}
}

func (e *Engine) options(opts []RunOption) runOptions {
	o := runOptions{
		stepLimit: e.stepLimit,
		timeout:   e.timeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.New().String()
	}
	return o
}

// Result describes a finished run. State always holds the store contents at
// the end of the run: the final state on completion, and the state as of the
// last merged round on abort or failure.
type Result struct {
	RunID  string
	Graph  string
	Status Status
	Reason Reason
	State  map[string]any

	// Rounds is the number of rounds whose updates were merged.
	Rounds int

	// Path lists the frontier of each merged round.
	Path [][]string

	// Degraded lists node failures replaced by their declared fallback.
	Degraded []*NodeFailure

	Err error

	schema *state.Schema
}

// View returns the final state as a read-only view.
func (r *Result) View() state.View {
	return state.NewView(r.schema, r.State)
}

type run struct {
	graph  *graph.Compiled
	store  *state.Store
	opts   runOptions
	result *Result

	// joined holds the joins that have already converged.
	joined map[string]bool
}

// interruptError marks a round abandoned because the run context ended.
type interruptError struct {
	err error
}

func (e *interruptError) Error() string {
	return e.err.Error()
}

// Run executes g from its entry points with the initial channel values.
//
// The returned Result is non-nil whenever the run started; on abort or
// failure it is returned together with the error. The error is one of
// *StepLimitExceeded, ErrTimeout, ErrCancelled, *NodeFailure,
// *RoutingContractViolation, *RoutingError, or a merge error wrapping
// *state.ConflictError.
func (e *Engine) Run(ctx context.Context, g *graph.Compiled, initial map[string]any, opts ...RunOption) (*Result, error) {
	if g == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}

	o := e.options(opts)

	store, err := state.NewStore(g.Schema(), initial)
	if err != nil {
		return nil, fmt.Errorf("invalid initial state: %w", err)
	}

	r := &run{
		graph:  g,
		store:  store,
		opts:   o,
		joined: make(map[string]bool),
		result: &Result{
			RunID:  o.runID,
			Graph:  g.Name(),
			Status: StatusInit,
			schema: g.Schema(),
		},
	}

	return e.execute(ctx, r, g.EntryPoints())
}

// Resume continues a run from its latest checkpoint with the checkpointed
// state and frontier. The round count and path carry over, so the step limit
// applies to the run as a whole.
//
// Returns an error if checkpointing is disabled, no checkpoint exists for
// runID, or the checkpoint belongs to another graph.
func (e *Engine) Resume(ctx context.Context, g *graph.Compiled, runID string, opts ...RunOption) (*Result, error) {
	if e.checkpointStore == nil {
		return nil, fmt.Errorf("checkpointing not enabled for this engine")
	}

	if g == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}

	cp, err := e.checkpointStore.Load(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if cp.Graph != g.Name() {
		return nil, fmt.Errorf("checkpoint %s belongs to graph %s, not %s", cp.ID, cp.Graph, g.Name())
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventCheckpointLoad,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    e.name,
		Data: map[string]any{
			"checkpoint_id": cp.ID,
			"run_id":        runID,
			"round":         cp.Round,
		},
	})

	store, err := state.NewStore(g.Schema(), cp.State)
	if err != nil {
		return nil, fmt.Errorf("checkpoint state does not match graph schema: %w", err)
	}

	o := e.options(append(opts, WithRunID(runID)))

	r := &run{
		graph:  g,
		store:  store,
		opts:   o,
		joined: make(map[string]bool, len(cp.Joined)),
		result: &Result{
			RunID:  runID,
			Graph:  g.Name(),
			Status: StatusInit,
			Rounds: cp.Round,
			Path:   clonePath(cp.Path),
			schema: g.Schema(),
		},
	}

	for _, join := range cp.Joined {
		r.joined[join] = true
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventCheckpointResume,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    e.name,
		Data: map[string]any{
			"run_id":   runID,
			"round":    cp.Round,
			"frontier": slices.Clone(cp.Frontier),
		},
	})

	return e.execute(ctx, r, slices.Clone(cp.Frontier))
}

// execute drives rounds until the frontier is empty or the run stops.
//
// Per round:
//  1. Stop if the context has ended or the step limit is reached
//  2. Snapshot state and execute the frontier concurrently
//  3. Fail on the first node failure without fallback (frontier order)
//  4. Merge all updates atomically
//  5. Evaluate edges against merged state to build the next frontier
//  6. Save a checkpoint when the interval is due
func (e *Engine) execute(parent context.Context, r *run, frontier []string) (*Result, error) {
	ctx := parent
	if r.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.opts.timeout)
		defer cancel()
	}

	r.result.transition(StatusRunning)

	e.observer.OnEvent(parent, observability.Event{
		Type:      EventRunStart,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    e.name,
		Data: map[string]any{
			"run_id":     r.result.RunID,
			"graph":      r.result.Graph,
			"frontier":   slices.Clone(frontier),
			"round":      r.result.Rounds,
			"step_limit": r.opts.stepLimit,
		},
	})

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return e.interrupted(parent, r, err)
		}

		if r.result.Rounds >= r.opts.stepLimit {
			return e.finish(parent, r, StatusAborted, ReasonStepLimit, &StepLimitExceeded{
				Limit:    r.opts.stepLimit,
				Frontier: frontier,
			})
		}

		next, err := e.round(ctx, r, frontier)
		if err != nil {
			var interrupt *interruptError
			if errors.As(err, &interrupt) {
				return e.interrupted(parent, r, interrupt.err)
			}
			return e.finish(parent, r, StatusFailed, ReasonNone, err)
		}

		frontier = next
	}

	return e.finish(parent, r, StatusCompleted, ReasonNone, nil)
}

func (e *Engine) round(ctx context.Context, r *run, frontier []string) ([]string, error) {
	number := r.result.Rounds + 1
	snapshot := r.store.Snapshot()

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventRoundStart,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    e.name,
		Data: map[string]any{
			"run_id":   r.result.RunID,
			"round":    number,
			"frontier": slices.Clone(frontier),
		},
	})

	outcomes, err := e.executeFrontier(ctx, r, frontier, snapshot, number)
	if err != nil {
		return nil, &interruptError{err: err}
	}

	for _, o := range outcomes {
		if o.failure != nil && !o.degraded {
			return nil, o.failure
		}
	}

	writes := make([]state.Write, 0, len(outcomes))
	for _, o := range outcomes {
		if o.degraded {
			r.result.Degraded = append(r.result.Degraded, o.failure)
		}
		if len(o.update) > 0 {
			writes = append(writes, state.Write{Node: o.node, Namespace: o.namespace, Update: o.update})
		}
	}

	written, err := r.store.Merge(writes)
	if err != nil {
		return nil, fmt.Errorf("round %d merge failed: %w", number, err)
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventStateMerge,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    e.name,
		Data: map[string]any{
			"run_id":   r.result.RunID,
			"round":    number,
			"writes":   len(writes),
			"channels": written,
		},
	})

	r.result.Rounds = number
	r.result.Path = append(r.result.Path, slices.Clone(frontier))

	next, err := e.advance(ctx, r, frontier)
	if err != nil {
		return nil, err
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventRoundComplete,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    e.name,
		Data: map[string]any{
			"run_id": r.result.RunID,
			"round":  number,
			"next":   slices.Clone(next),
		},
	})

	if e.checkpointInterval > 0 && number%e.checkpointInterval == 0 {
		if err := e.saveCheckpoint(ctx, r, next); err != nil {
			return nil, fmt.Errorf("checkpoint save failed: %w", err)
		}
	}

	return next, nil
}

func (e *Engine) saveCheckpoint(ctx context.Context, r *run, frontier []string) error {
	cp := Checkpoint{
		ID:        newCheckpointID(),
		RunID:     r.result.RunID,
		Graph:     r.result.Graph,
		Round:     r.result.Rounds,
		Frontier:  slices.Clone(frontier),
		State:     r.store.Values(),
		Path:      clonePath(r.result.Path),
		Joined:    slices.Sorted(maps.Keys(r.joined)),
		Timestamp: time.Now(),
	}

	if err := e.checkpointStore.Save(cp); err != nil {
		return err
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventCheckpointSave,
		Level:     observability.LevelInfo,
		Timestamp: cp.Timestamp,
		Source:    e.name,
		Data: map[string]any{
			"checkpoint_id": cp.ID,
			"run_id":        cp.RunID,
			"round":         cp.Round,
		},
	})
	return nil
}

func (e *Engine) interrupted(ctx context.Context, r *run, cause error) (*Result, error) {
	if errors.Is(cause, context.DeadlineExceeded) {
		return e.finish(ctx, r, StatusAborted, ReasonTimeout, fmt.Errorf("%w: %w", ErrTimeout, cause))
	}
	return e.finish(ctx, r, StatusAborted, ReasonCancelled, fmt.Errorf("%w: %w", ErrCancelled, cause))
}

func (e *Engine) finish(ctx context.Context, r *run, status Status, reason Reason, err error) (*Result, error) {
	r.result.transition(status)
	r.result.Reason = reason
	r.result.State = r.store.Values()
	r.result.Err = err

	if status == StatusCompleted && e.checkpointInterval > 0 && !e.preserveCheckpoints {
		e.checkpointStore.Delete(r.result.RunID)
	}

	level := observability.LevelInfo
	switch status {
	case StatusAborted:
		level = observability.LevelWarning
	case StatusFailed:
		level = observability.LevelError
	}

	data := map[string]any{
		"run_id":   r.result.RunID,
		"graph":    r.result.Graph,
		"status":   string(status),
		"reason":   string(reason),
		"rounds":   r.result.Rounds,
		"degraded": len(r.result.Degraded),
	}
	if err != nil {
		data["error"] = err.Error()
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventRunComplete,
		Level:     level,
		Timestamp: time.Now(),
		Source:    e.name,
		Data:      data,
	})

	return r.result, err
}

func clonePath(path [][]string) [][]string {
	if path == nil {
		return nil
	}
	out := make([][]string, len(path))
	for i, p := range path {
		out[i] = slices.Clone(p)
	}
	return out
}
