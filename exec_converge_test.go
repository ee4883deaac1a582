package distill_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"

	distill "github.com/ferrant/distill"
	"github.com/ferrant/distill/modeltest"
)

func TestConvergent_CyclicFixedPoint(t *testing.T) {
	clamp := func(v float64) float64 {
		if v > 3 {
			return 3
		}
		return v
	}
	s := distill.MustCompile(distill.SchemaConfig{
		Name: "cyclic",
		Fields: []distill.FieldSpec{
			{Name: "a", Stages: []distill.Stage{
				derive("step", func(sc *distill.Scope) any {
					return clamp(asFloat(sc.Value("b")) + 1)
				}, distill.Field("b")),
			}},
			{Name: "b", Stages: []distill.Stage{
				derive("step", func(sc *distill.Scope) any {
					return clamp(asFloat(sc.Value("a")) + 1)
				}, distill.Field("a")),
			}},
		},
	})
	if !s.Cyclic() {
		t.Fatalf("expected a cyclic graph")
	}

	rep, err := distill.CreateWithReport(context.Background(), s, distill.JSON([]byte(`{}`)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := map[string]any{"a": float64(3), "b": float64(3)}
	if !reflect.DeepEqual(rep.Instance, want) {
		t.Fatalf("instance did not settle at the fixed point:\n%swant:\n%s",
			spew.Sdump(rep.Instance), spew.Sdump(want))
	}
	if !rep.Converged || rep.Iterations < 2 {
		t.Fatalf("report = %+v, want a converged multi-pass run", rep)
	}

	// the same schema must be refused when the caller forces single-pass
	_, err = distill.Create(context.Background(), s, distill.JSON([]byte(`{}`)),
		distill.CreateOpt{Strategy: distill.StrategySinglePass})
	if !errors.Is(err, distill.ErrCycle) {
		t.Fatalf("single-pass over a cycle = %v, want ErrCycle", err)
	}
	ce, ok := distill.AsConfigError(err)
	if !ok || len(ce.Cycle) < 3 {
		t.Fatalf("expected a cycle witness, got %+v", ce)
	}
	if ce.Cycle[0] != ce.Cycle[len(ce.Cycle)-1] {
		t.Fatalf("witness should close on itself, got %v", ce.Cycle)
	}
}

func TestConvergent_OscillationDetected(t *testing.T) {
	s := distill.MustCompile(distill.SchemaConfig{
		Name: "osc",
		Fields: []distill.FieldSpec{{Name: "flip", Stages: []distill.Stage{
			derive("negate", func(sc *distill.Scope) any {
				v, ok := sc.Value("flip")
				if !ok {
					return true
				}
				b, _ := v.(bool)
				return !b
			}),
		}}},
	})

	rep, err := distill.CreateWithReport(context.Background(), s, distill.JSON([]byte(`{}`)))
	if !errors.Is(err, distill.ErrOscillation) {
		t.Fatalf("error = %v, want ErrOscillation", err)
	}
	ce, ok := distill.AsConfigError(err)
	if !ok {
		t.Fatalf("expected ConfigError, got %T", err)
	}
	if !reflect.DeepEqual(ce.Fields, []string{"flip"}) {
		t.Fatalf("fields = %v, want [flip]", ce.Fields)
	}
	if !reflect.DeepEqual(ce.History["flip"], []any{true, false}) {
		t.Fatalf("history = %v, want the repeating value cycle [true false]", ce.History["flip"])
	}
	if rep.Phase != distill.InstanceOscillating {
		t.Fatalf("phase = %v, want %v", rep.Phase, distill.InstanceOscillating)
	}
}

func TestConvergent_IterationBudget(t *testing.T) {
	// settles at 4 after four changing passes plus one confirming pass
	s := distill.MustCompile(distill.SchemaConfig{
		Name:          "counter",
		MaxIterations: 3,
		Fields: []distill.FieldSpec{{Name: "n", Stages: []distill.Stage{
			derive("increment", func(sc *distill.Scope) any {
				next := asFloat(sc.Value("n")) + 1
				if next > 4 {
					return float64(4)
				}
				return next
			}),
		}}},
	})

	rep, err := distill.CreateWithReport(context.Background(), s, distill.JSON([]byte(`{}`)))
	if !errors.Is(err, distill.ErrNoConvergence) {
		t.Fatalf("error = %v, want ErrNoConvergence", err)
	}
	ce, _ := distill.AsConfigError(err)
	if !reflect.DeepEqual(ce.Fields, []string{"n"}) {
		t.Fatalf("fields = %v, want [n]", ce.Fields)
	}
	if rep.Iterations != 3 || rep.Phase != distill.InstanceTimedOut {
		t.Fatalf("report = %+v, want 3 iterations and timed-out phase", rep)
	}

	// the per-call budget overrides the schema's
	inst, err := distill.Create(context.Background(), s, distill.JSON([]byte(`{}`)),
		distill.CreateOpt{MaxIterations: 6})
	if err != nil {
		t.Fatalf("create with larger budget: %v", err)
	}
	if inst["n"] != float64(4) {
		t.Fatalf("instance = %#v, want n=4", inst)
	}
}

func TestConvergent_ErrorClearsOnceDependencySettles(t *testing.T) {
	// b is visited first and fails while a is unset; the error must not stick
	// once a commits
	s := distill.MustCompile(distill.SchemaConfig{
		Name: "lateclear",
		Fields: []distill.FieldSpec{
			{Name: "b", Stages: []distill.Stage{
				distill.Coercion("double-a", func(_ context.Context, sc *distill.Scope, _ any) (any, error) {
					v, ok := sc.Value("a")
					if !ok {
						return nil, errors.New("a not resolved yet")
					}
					return v.(float64) * 2, nil
				}),
			}},
			{Name: "a", Stages: []distill.Stage{
				derive("const", func(*distill.Scope) any { return float64(5) }),
			}},
		},
	})

	inst, err := distill.Create(context.Background(), s, distill.JSON([]byte(`{}`)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := map[string]any{"a": float64(5), "b": float64(10)}
	if !reflect.DeepEqual(inst, want) {
		t.Fatalf("instance = %#v, want %#v", inst, want)
	}
}

func TestConvergent_TerminalErrorCollection(t *testing.T) {
	reject := distill.Validation("never", func(_ context.Context, _ *distill.Scope, v any) error {
		return errors.New("rejected")
	})
	s := distill.MustCompile(distill.SchemaConfig{
		Name: "terminal",
		Fields: []distill.FieldSpec{
			{Name: "bad", Stages: []distill.Stage{derive("mk", func(*distill.Scope) any { return "x" }), reject}},
			{Name: "bad2", Stages: []distill.Stage{derive("mk", func(*distill.Scope) any { return "y" }), reject}},
			{Name: "good", Stages: []distill.Stage{derive("mk", func(*distill.Scope) any { return "ok" })}},
		},
	})
	ctx := context.Background()

	_, err := distill.Create(ctx, s, distill.JSON([]byte(`{}`)))
	iss, ok := distill.AsIssues(err)
	if !ok || len(iss) != 2 {
		t.Fatalf("collect mode should report both failing fields, got %v", err)
	}
	if iss[0].Path != "/bad" || iss[1].Path != "/bad2" {
		t.Fatalf("issues out of declaration order: %+v", iss)
	}
	if iss[0].Code != distill.CodeValidationFailed {
		t.Fatalf("code = %q, want %q", iss[0].Code, distill.CodeValidationFailed)
	}

	rep, err := distill.CreateWithReport(ctx, s, distill.JSON([]byte(`{}`)), distill.CreateOpt{FailFast: true})
	iss, ok = distill.AsIssues(err)
	if !ok || len(iss) != 1 || iss[0].Path != "/bad" {
		t.Fatalf("fail-fast should report the first failing field only, got %v", err)
	}
	if rep.Phase != distill.InstanceFailed {
		t.Fatalf("phase = %v, want %v", rep.Phase, distill.InstanceFailed)
	}
	if rep.FieldPhases["good"] != distill.FieldResolved || rep.FieldPhases["bad"] != distill.FieldFailed {
		t.Fatalf("field phases = %v", rep.FieldPhases)
	}
}

func TestConvergent_RepairOpensFreshOscillationWindow(t *testing.T) {
	handler := modeltest.Values("A", "A")
	calls := 0
	s := distill.MustCompile(distill.SchemaConfig{
		Name: "mend",
		Fields: []distill.FieldSpec{{Name: "volatile", Stages: []distill.Stage{
			distill.Coercion("flaky", func(_ context.Context, _ *distill.Scope, _ any) (any, error) {
				calls++
				switch calls {
				case 1:
					return "A", nil
				case 2:
					return "B", nil
				default:
					return nil, errors.New("source went away")
				}
			}),
			distill.CatchRepair("mend").WithHandler(handler),
		}}},
	})

	// pass three re-commits "A", which matches the value two changes back; a
	// repaired value must start a fresh window instead of tripping the
	// oscillation detector
	rep, err := distill.CreateWithReport(context.Background(), s, distill.JSON([]byte(`{}`)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rep.Instance["volatile"] != "A" {
		t.Fatalf("instance = %#v, want volatile=A", rep.Instance)
	}
	if !rep.Converged || rep.Iterations != 4 {
		t.Fatalf("report = %+v, want convergence in 4 iterations", rep)
	}
	if handler.Calls() != 2 {
		t.Fatalf("repair handler calls = %d, want 2", handler.Calls())
	}
	req := handler.Requests()[0]
	if !req.Attempt.Repair || req.Attempt.Err == nil {
		t.Fatalf("repair request should carry the failure: %+v", req.Attempt)
	}
}

func TestConvergent_ChecksRunOnConvergedInstance(t *testing.T) {
	cfg := distill.SchemaConfig{
		Name: "order",
		Fields: []distill.FieldSpec{
			{Name: "quantity", Stages: []distill.Stage{fromRaw("from:quantity", "quantity")}},
			{Name: "total", Stages: []distill.Stage{
				derive("triple", func(sc *distill.Scope) any {
					return asFloat(sc.Value("quantity")) * 3
				}, distill.Field("quantity")),
			}},
		},
		Checks: []distill.Check{{
			Name: "total-cap",
			Fn: func(_ context.Context, inst map[string]any) error {
				if asFloat(inst["total"], true) > 100 {
					return distill.Issues{{Path: "/total", Message: "total exceeds cap"}}
				}
				return nil
			},
		}},
	}
	s := distill.MustCompile(cfg)
	ctx := context.Background()

	inst, err := distill.Create(ctx, s, distill.JSON([]byte(`{"quantity":10}`)))
	if err != nil {
		t.Fatalf("passing check: %v", err)
	}
	if inst["total"] != float64(30) {
		t.Fatalf("instance = %#v", inst)
	}

	_, err = distill.Create(ctx, s, distill.JSON([]byte(`{"quantity":50}`)))
	iss, ok := distill.AsIssues(err)
	if !ok || len(iss) != 1 {
		t.Fatalf("failing check = %v, want one issue", err)
	}
	// the engine fills code and rule for issue-shaped check failures
	if iss[0].Code != distill.CodeCrossRule || iss[0].Rule != "total-cap" || iss[0].Path != "/total" {
		t.Fatalf("issue = %+v", iss[0])
	}
}
