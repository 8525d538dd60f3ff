// Package scenario drives a simulation from a tengo script.
//
// A scenario script defines an update function that the runner calls once
// per tick with an engine map, the tick number and a state map that persists
// between calls (top-level script variables do not):
//
//	update := func(engine, tick, state) {
//		if tick == 0 {
//			engine.spawn_grid(10, 10, 8, 8, 1.5)
//			engine.select_all()
//			engine.move(80, 60)
//		}
//		return tick > 600 && engine.moving() == 0
//	}
//
// A truthy return value ends the scenario.
package scenario

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/legion/components"
	"github.com/pthm-cable/legion/game"
	"github.com/pthm-cable/legion/systems"
)

const dispatchScript = `
__result = update(__engine, __tick, __state)
`

// Target is the command surface a scenario drives.
type Target interface {
	Grid() *systems.NavGrid
	Spawn(pos r3.Vec) components.Handle
	Despawn(h components.Handle) bool
	SelectInBounds(a, b r3.Vec) int
	ClearSelection()
	Selected() []components.Handle
	MoveSelected(target r3.Vec) game.MoveResult
	Moving() int
	Tick() int64
}

// Runner executes a compiled scenario against a target.
type Runner struct {
	name     string
	compiled *tengo.Compiled
	engine   *tengo.ImmutableMap
	state    *tengo.Map
	target   Target
	logger   *slog.Logger
	done     bool
}

// Load compiles the scenario script at path.
func Load(path string, target Target, logger *slog.Logger) (*Runner, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Compile(path, src, target, logger)
}

// Compile compiles a scenario from source. name is used in log lines and errors.
func Compile(name string, src []byte, target Target, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	script := tengo.NewScript(append(append([]byte{}, src...), dispatchScript...))
	_ = script.Add("__engine", map[string]any{})
	_ = script.Add("__tick", 0)
	_ = script.Add("__state", map[string]any{})
	_ = script.Add("__result", false)
	script.SetImports(stdlib.GetModuleMap("math", "fmt", "text"))

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("compiling scenario %s: %w", name, err)
	}

	r := &Runner{
		name:     name,
		compiled: compiled,
		state:    &tengo.Map{Value: map[string]tengo.Object{}},
		target:   target,
		logger:   logger.With("scenario", name),
	}
	r.engine = r.buildEngine()
	return r, nil
}

// Done reports whether update has returned a truthy value.
func (r *Runner) Done() bool { return r.done }

// Step runs update for the target's current tick. It is a no-op once done.
func (r *Runner) Step() error {
	if r.done {
		return nil
	}
	if err := r.compiled.Set("__engine", r.engine); err != nil {
		return err
	}
	if err := r.compiled.Set("__tick", r.target.Tick()); err != nil {
		return err
	}
	if err := r.compiled.Set("__state", r.state); err != nil {
		return err
	}
	if err := r.compiled.Run(); err != nil {
		return fmt.Errorf("scenario %s at tick %d: %w", r.name, r.target.Tick(), err)
	}
	if r.compiled.Get("__result").Bool() {
		r.done = true
		r.logger.Info("scenario finished", "tick", r.target.Tick())
	}
	return nil
}

func (r *Runner) buildEngine() *tengo.ImmutableMap {
	t := r.target
	values := map[string]tengo.Object{}

	values["spawn"] = &tengo.UserFunction{Name: "spawn", Value: func(args ...tengo.Object) (tengo.Object, error) {
		xs, err := floatArgs("spawn", args, 2)
		if err != nil {
			return nil, err
		}
		h := t.Spawn(r3.Vec{X: xs[0], Z: xs[1]})
		return &tengo.Int{Value: int64(h)}, nil
	}}

	values["spawn_grid"] = &tengo.UserFunction{Name: "spawn_grid", Value: func(args ...tengo.Object) (tengo.Object, error) {
		xs, err := floatArgs("spawn_grid", args, 5)
		if err != nil {
			return nil, err
		}
		cols, rows, spacing := int(xs[2]), int(xs[3]), xs[4]
		n := 0
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				p := r3.Vec{X: xs[0] + float64(col)*spacing, Z: xs[1] + float64(row)*spacing}
				if t.Spawn(p).Valid() {
					n++
				}
			}
		}
		return &tengo.Int{Value: int64(n)}, nil
	}}

	values["despawn"] = &tengo.UserFunction{Name: "despawn", Value: func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != 1 {
			return nil, tengo.ErrWrongNumArguments
		}
		h, ok := tengo.ToInt64(args[0])
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "handle", Expected: "int", Found: args[0].TypeName()}
		}
		return boolObject(t.Despawn(components.Handle(h))), nil
	}}

	values["select_all"] = &tengo.UserFunction{Name: "select_all", Value: func(args ...tengo.Object) (tengo.Object, error) {
		inf := math.Inf(1)
		n := t.SelectInBounds(r3.Vec{X: -inf, Z: -inf}, r3.Vec{X: inf, Z: inf})
		return &tengo.Int{Value: int64(n)}, nil
	}}

	values["select_rect"] = &tengo.UserFunction{Name: "select_rect", Value: func(args ...tengo.Object) (tengo.Object, error) {
		xs, err := floatArgs("select_rect", args, 4)
		if err != nil {
			return nil, err
		}
		n := t.SelectInBounds(r3.Vec{X: xs[0], Z: xs[1]}, r3.Vec{X: xs[2], Z: xs[3]})
		return &tengo.Int{Value: int64(n)}, nil
	}}

	values["clear_selection"] = &tengo.UserFunction{Name: "clear_selection", Value: func(args ...tengo.Object) (tengo.Object, error) {
		t.ClearSelection()
		return tengo.UndefinedValue, nil
	}}

	values["selected"] = &tengo.UserFunction{Name: "selected", Value: func(args ...tengo.Object) (tengo.Object, error) {
		sel := t.Selected()
		arr := &tengo.Array{Value: make([]tengo.Object, len(sel))}
		for i, h := range sel {
			arr.Value[i] = &tengo.Int{Value: int64(h)}
		}
		return arr, nil
	}}

	values["move"] = &tengo.UserFunction{Name: "move", Value: func(args ...tengo.Object) (tengo.Object, error) {
		xs, err := floatArgs("move", args, 2)
		if err != nil {
			return nil, err
		}
		res := t.MoveSelected(r3.Vec{X: xs[0], Z: xs[1]})
		r.logger.Debug("scripted move", "x", xs[0], "z", xs[1], "requested", res.Requested, "skipped", res.Skipped)
		return &tengo.Int{Value: int64(res.Requested)}, nil
	}}

	values["moving"] = &tengo.UserFunction{Name: "moving", Value: func(args ...tengo.Object) (tengo.Object, error) {
		return &tengo.Int{Value: int64(t.Moving())}, nil
	}}

	values["bounds"] = &tengo.UserFunction{Name: "bounds", Value: func(args ...tengo.Object) (tengo.Object, error) {
		lo, hi := t.Grid().Bounds()
		return &tengo.ImmutableMap{Value: map[string]tengo.Object{
			"min_x": &tengo.Float{Value: lo.X},
			"min_z": &tengo.Float{Value: lo.Z},
			"max_x": &tengo.Float{Value: hi.X},
			"max_z": &tengo.Float{Value: hi.Z},
		}}, nil
	}}

	values["log"] = &tengo.UserFunction{Name: "log", Value: func(args ...tengo.Object) (tengo.Object, error) {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			parts = append(parts, objectAsString(a))
		}
		r.logger.Info(strings.Join(parts, " "), "tick", t.Tick())
		return tengo.UndefinedValue, nil
	}}

	return &tengo.ImmutableMap{Value: values}
}

func floatArgs(name string, args []tengo.Object, n int) ([]float64, error) {
	if len(args) != n {
		return nil, tengo.ErrWrongNumArguments
	}
	out := make([]float64, n)
	for i, a := range args {
		v, ok := tengo.ToFloat64(a)
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{
				Name:     fmt.Sprintf("%s argument %d", name, i+1),
				Expected: "int or float",
				Found:    a.TypeName(),
			}
		}
		out[i] = v
	}
	return out, nil
}

func boolObject(b bool) tengo.Object {
	if b {
		return tengo.TrueValue
	}
	return tengo.FalseValue
}

func objectAsString(obj tengo.Object) string {
	if s, ok := obj.(*tengo.String); ok {
		return s.Value
	}
	return obj.String()
}
