package runtime

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/convoflow/internal/variables"
	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/schema"
)

const (
	defaultMaxIterations = 100
	onEmptyError         = "ERROR"
)

type loopExecutor struct {
	cfg *domain.LoopConfig
}

// execute runs each time the flow reaches the LOOP node: first on entry,
// then every time the body routes back. The frame persisted on the session
// tells the two apart.
func (x loopExecutor) execute(rc *runContext) (outcome, error) {
	cfg := x.cfg
	s := rc.session
	key := rc.loopKey()

	frame := s.Loops[key]
	if frame == nil {
		var err error
		if frame, err = x.start(rc); err != nil {
			return x.failed(rc, err)
		}
		if s.Loops == nil {
			s.Loops = make(map[string]*domain.LoopFrame)
		}
		s.Loops[key] = frame
	} else {
		if cfg.CollectResults {
			frame.Results = append(frame.Results, x.result(rc, frame))
		}
		frame.Iteration++
	}

	if !x.more(rc, frame) {
		return x.exit(rc, frame), nil
	}
	x.bind(rc, frame)
	return advance(domain.HandleLoopBody), nil
}

// start creates the frame of a fresh loop.
func (x loopExecutor) start(rc *runContext) (*domain.LoopFrame, error) {
	cfg := x.cfg
	frame := &domain.LoopFrame{}
	switch cfg.Mode() {
	case domain.LoopForEach:
		items, err := x.items(rc)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 && strings.EqualFold(cfg.OnEmptyArray, onEmptyError) {
			return nil, ErrEmptyLoopSource
		}
		frame.Items = items
	case domain.LoopCountBased:
		frame.Count = cfg.IterationCount
		if cfg.CountFrom != "" {
			if n, ok := toInt(rc.scope, cfg.CountFrom); ok {
				frame.Count = n
			}
		}
	}
	return frame, nil
}

func (x loopExecutor) items(rc *runContext) ([]any, error) {
	src := x.cfg.ArrayVariable
	v, ok := rc.scope.Value(src)
	if !ok || v == nil {
		return nil, nil
	}
	if str, isStr := v.(string); isStr {
		if strings.TrimSpace(str) == "" {
			return nil, nil
		}
		parsed, ok := schema.ParseJSON(str)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrLoopSource, src)
		}
		v = parsed
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLoopSource, src)
	}
	return items, nil
}

// more reports whether another body pass should run.
func (x loopExecutor) more(rc *runContext, frame *domain.LoopFrame) bool {
	cfg := x.cfg
	limit := cfg.MaxIterations
	if limit <= 0 {
		limit = defaultMaxIterations
	}
	if frame.Iteration >= limit {
		return false
	}
	switch cfg.Mode() {
	case domain.LoopForEach:
		return frame.Iteration < len(frame.Items)
	case domain.LoopCountBased:
		if frame.Count <= 0 {
			// Bounded by maxIterations alone.
			return cfg.IterationCount == 0 && cfg.CountFrom == "" && cfg.MaxIterations > 0
		}
		return frame.Iteration < frame.Count
	case domain.LoopConditionBased:
		return evalExpression(rc.scope, cfg.ContinueCondition)
	}
	return false
}

// bind exposes the current iteration to the body.
func (x loopExecutor) bind(rc *runContext, frame *domain.LoopFrame) {
	cfg := x.cfg
	i := frame.Iteration
	rc.scope.Set(cfg.CurrentIterationVariable, i+1)
	switch cfg.Mode() {
	case domain.LoopForEach:
		item := frame.Items[i]
		rc.scope.Set(cfg.ItemVariable, item)
		rc.scope.Set(cfg.IndexVariable, i)
		if len(cfg.ItemMapping) > 0 {
			if doc, err := json.Marshal(item); err == nil {
				applyMappings(rc, doc, cfg.ItemMapping)
			}
		}
	case domain.LoopCountBased:
		step := cfg.Step
		if step == 0 {
			step = 1
		}
		rc.scope.Set(cfg.CounterVariable, cfg.StartValue+i*step)
	}
}

// result is the value collected for the pass that just finished.
func (x loopExecutor) result(rc *runContext, frame *domain.LoopFrame) any {
	path := x.cfg.ResultJSONPath
	if path == "" {
		if x.cfg.Mode() == domain.LoopForEach && frame.Iteration < len(frame.Items) {
			return frame.Items[frame.Iteration]
		}
		return frame.Iteration
	}
	if strings.Contains(path, "{{") {
		v, _ := rc.scope.Value(path)
		return v
	}
	v, _ := rc.scope.Lookup(gjsonPath(path))
	return v
}

func (x loopExecutor) exit(rc *runContext, frame *domain.LoopFrame) outcome {
	cfg := x.cfg
	rc.scope.Set(cfg.CountVariable, frame.Iteration)
	if cfg.CollectResults {
		results := frame.Results
		if results == nil {
			results = []any{}
		}
		rc.scope.Set(cfg.ResultVariable, results)
	}
	delete(rc.session.Loops, rc.loopKey())
	return advance(domain.HandleDone)
}

// failed routes a loop error to the error branch. Without one the error is
// unrecoverable.
func (x loopExecutor) failed(rc *runContext, err error) (outcome, error) {
	target := rc.flow.Resolve(rc.node, domain.HandleError)
	if target == "" {
		return outcome{}, err
	}
	rc.scope.Set(x.cfg.ErrorVariable, map[string]any{"message": err.Error()})
	return jump(target), nil
}

func toInt(scope *variables.Scope, tmpl string) (int, bool) {
	v, ok := scope.Value(tmpl)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(math.Round(n)), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
