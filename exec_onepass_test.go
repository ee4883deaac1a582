package distill_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"

	distill "github.com/ferrant/distill"
)

func TestSinglePass_VisitsInTopologicalOrder(t *testing.T) {
	var visited []string
	step := func(fn func(sc *distill.Scope) any, refs ...distill.Topic) distill.Stage {
		return distill.Coercion("step", func(_ context.Context, sc *distill.Scope, _ any) (any, error) {
			visited = append(visited, sc.FieldName())
			return fn(sc), nil
		}, refs...)
	}

	// declared back to front; the graph must reorder
	s := distill.MustCompile(distill.SchemaConfig{
		Name:     "chain",
		Strategy: distill.StrategySinglePass,
		Fields: []distill.FieldSpec{
			{Name: "c", Stages: []distill.Stage{
				step(func(sc *distill.Scope) any { return asFloat(sc.Value("b")) + 1 }, distill.Field("b")),
			}},
			{Name: "b", Stages: []distill.Stage{
				step(func(sc *distill.Scope) any { return asFloat(sc.Value("a")) + 1 }, distill.Field("a")),
			}},
			{Name: "a", Stages: []distill.Stage{
				step(func(sc *distill.Scope) any { return float64(1) }),
			}},
		},
	})

	if got := s.Order(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("order = %v, want [a b c]", got)
	}
	if got := s.DependsOn("c"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("deps of c = %v, want [b]", got)
	}

	inst, err := distill.Create(context.Background(), s, distill.JSON([]byte(`{}`)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !reflect.DeepEqual(visited, []string{"a", "b", "c"}) {
		t.Fatalf("visited = %v, want [a b c]", visited)
	}
	want := map[string]any{"a": float64(1), "b": float64(2), "c": float64(3)}
	if !reflect.DeepEqual(inst, want) {
		t.Fatalf("instance = %#v, want %#v", inst, want)
	}
}

func TestSinglePass_CompileRejectsCycle(t *testing.T) {
	_, err := distill.Compile(distill.SchemaConfig{
		Name:     "knot",
		Strategy: distill.StrategySinglePass,
		Fields: []distill.FieldSpec{
			{Name: "a", Stages: []distill.Stage{
				derive("copy", func(sc *distill.Scope) any { v, _ := sc.Value("b"); return v }, distill.Field("b")),
			}},
			{Name: "b", Stages: []distill.Stage{
				derive("copy", func(sc *distill.Scope) any { v, _ := sc.Value("a"); return v }, distill.Field("a")),
			}},
		},
	})
	if !errors.Is(err, distill.ErrCycle) {
		t.Fatalf("error = %v, want ErrCycle", err)
	}
	ce, ok := distill.AsConfigError(err)
	if !ok {
		t.Fatalf("expected ConfigError, got %T", err)
	}
	if !reflect.DeepEqual(ce.Cycle, []string{"a", "b", "a"}) {
		t.Fatalf("witness = %v, want [a b a]", ce.Cycle)
	}
}

func TestSinglePass_FailFastStopsMidPass(t *testing.T) {
	var ran []string
	mk := func(field string, fail bool) distill.FieldSpec {
		return distill.FieldSpec{Name: field, Stages: []distill.Stage{
			distill.Coercion("mk", func(_ context.Context, sc *distill.Scope, _ any) (any, error) {
				ran = append(ran, sc.FieldName())
				if fail {
					return nil, errors.New("boom")
				}
				return "ok", nil
			}),
		}}
	}
	s := distill.MustCompile(distill.SchemaConfig{
		Name:     "ff",
		Strategy: distill.StrategySinglePass,
		Fields:   []distill.FieldSpec{mk("one", true), mk("two", true), mk("three", false)},
	})
	ctx := context.Background()

	_, err := distill.Create(ctx, s, distill.JSON([]byte(`{}`)))
	iss, ok := distill.AsIssues(err)
	if !ok || len(iss) != 2 {
		t.Fatalf("collect mode = %v, want two issues", err)
	}
	if !reflect.DeepEqual(ran, []string{"one", "two", "three"}) {
		t.Fatalf("collect mode should still visit every field, ran %v", ran)
	}

	ran = nil
	_, err = distill.Create(ctx, s, distill.JSON([]byte(`{}`)), distill.CreateOpt{FailFast: true})
	iss, ok = distill.AsIssues(err)
	if !ok || len(iss) != 1 || iss[0].Path != "/one" {
		t.Fatalf("fail-fast = %v, want the first issue only", err)
	}
	if !reflect.DeepEqual(ran, []string{"one"}) {
		t.Fatalf("fail-fast should stop mid-pass, ran %v", ran)
	}
}

func TestSinglePass_ParallelLevelsMatchSequential(t *testing.T) {
	diamond := distill.MustCompile(distill.SchemaConfig{
		Name:     "diamond",
		Strategy: distill.StrategySinglePass,
		Fields: []distill.FieldSpec{
			{Name: "a", Stages: []distill.Stage{fromRaw("from:a", "a")}},
			{Name: "b", Stages: []distill.Stage{
				derive("scale", func(sc *distill.Scope) any { return asFloat(sc.Value("a")) * 3 }, distill.Field("a")),
			}},
			{Name: "c", Stages: []distill.Stage{
				derive("offset", func(sc *distill.Scope) any { return asFloat(sc.Value("a")) + 10 }, distill.Field("a")),
			}},
			{Name: "d", Stages: []distill.Stage{
				derive("sum", func(sc *distill.Scope) any {
					return asFloat(sc.Value("b")) + asFloat(sc.Value("c"))
				}, distill.Field("b"), distill.Field("c")),
			}},
		},
		Checks: []distill.Check{{
			Name: "sum-holds",
			Fn: func(_ context.Context, inst map[string]any) error {
				if asFloat(inst["d"], true) != asFloat(inst["b"], true)+asFloat(inst["c"], true) {
					return errors.New("sum drifted")
				}
				return nil
			},
		}},
	})
	ctx := context.Background()
	in := []byte(`{"a":2}`)

	sequential, err := distill.Create(ctx, diamond, distill.JSON(in))
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	for i := 0; i < 3; i++ {
		parallel, err := distill.Create(ctx, diamond, distill.JSON(in), distill.CreateOpt{Parallelism: 4})
		if err != nil {
			t.Fatalf("parallel run %d: %v", i, err)
		}
		if !reflect.DeepEqual(sequential, parallel) {
			t.Fatalf("parallel run %d disagrees:\nseq: %spar: %s", i, spew.Sdump(sequential), spew.Sdump(parallel))
		}
	}
}

func TestSinglePass_UnsourcedFieldStaysAbsent(t *testing.T) {
	s := distill.MustCompile(distill.SchemaConfig{
		Name:     "absent",
		Strategy: distill.StrategySinglePass,
		Fields: []distill.FieldSpec{
			{Name: "opt", Stages: []distill.Stage{
				fromRaw("from:opt", "opt"),
				distill.Validation("tolerate-nil", func(_ context.Context, _ *distill.Scope, v any) error {
					return nil
				}),
			}},
			{Name: "fallback", Stages: []distill.Stage{
				derive("default", func(sc *distill.Scope) any {
					if v, ok := sc.Value("opt"); ok {
						return v
					}
					return "default"
				}, distill.Field("opt")),
			}},
		},
	})

	inst, err := distill.Create(context.Background(), s, distill.JSON([]byte(`{}`)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := inst["opt"]; ok {
		t.Fatalf("absent input should leave the field unset: %#v", inst)
	}
	if inst["fallback"] != "default" {
		t.Fatalf("downstream should see the field as unset: %#v", inst)
	}
}
