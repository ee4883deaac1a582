// Package rules provides combinators for whole-instance checks: conditional
// execution, logical composition and a couple of collection rules. Everything
// here builds plain distill.CheckFunc values, so hand-written checks mix
// freely with combined ones.
package rules

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/ferrant/distill"
)

// Rule is an alias for distill.CheckFunc.
type Rule = distill.CheckFunc

// Op defines simple comparison operators for If(...).Then(...).
type Op int

const (
	Eq Op = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

// Conditional composes conditional execution of rules.
type Conditional struct {
	path string
	op   Op
	want any
	all  []Conditional // composite AND
	any  []Conditional // composite OR
}

// If builds a conditional that evaluates an instance path against a value.
// The path is a JSON Pointer like "/status"; a missing path makes the
// condition false.
func If(path string, op Op, want any) Conditional {
	return Conditional{path: normalizePath(path), op: op, want: want}
}

// IfAll builds a conditional that requires all conditions to hold.
func IfAll(conds ...Conditional) Conditional { return Conditional{all: conds} }

// IfAny builds a conditional that requires any condition to hold.
func IfAny(conds ...Conditional) Conditional { return Conditional{any: conds} }

// And combines the receiver with additional conditions using logical AND.
func (c Conditional) And(others ...Conditional) Conditional {
	conds := append([]Conditional{c}, others...)
	return IfAll(conds...)
}

// Or combines the receiver with additional conditions using logical OR.
func (c Conditional) Or(others ...Conditional) Conditional {
	conds := append([]Conditional{c}, others...)
	return IfAny(conds...)
}

// Then attaches rules to run when the condition is satisfied.
func (c Conditional) Then(rules ...Rule) Rule {
	combined := And(rules...)
	return func(ctx context.Context, instance map[string]any) error {
		if !evalConditional(instance, c) {
			return nil
		}
		return combined(ctx, instance)
	}
}

// And executes all rules and concatenates their issues. A non-issue error
// aborts immediately; it signals a broken rule rather than bad data.
func And(rules ...Rule) Rule {
	return func(ctx context.Context, instance map[string]any) error {
		var out distill.Issues
		for _, r := range rules {
			if r == nil {
				continue
			}
			err := r(ctx, instance)
			if err == nil {
				continue
			}
			iss, ok := distill.AsIssues(err)
			if !ok {
				return err
			}
			out = distill.AppendIssues(out, iss...)
		}
		if len(out) > 0 {
			return out
		}
		return nil
	}
}

// Or succeeds if any rule returns no issues. When every rule fails, the
// branch with the fewest issues is reported.
func Or(rules ...Rule) Rule {
	return func(ctx context.Context, instance map[string]any) error {
		var best distill.Issues
		bestSet := false
		for _, r := range rules {
			if r == nil {
				continue
			}
			err := r(ctx, instance)
			if err == nil {
				return nil
			}
			iss, ok := distill.AsIssues(err)
			if !ok {
				return err
			}
			if !bestSet || len(iss) < len(best) {
				best = iss
				bestSet = true
			}
		}
		if bestSet {
			return best
		}
		return nil
	}
}

// AtLeastOne ensures the collection at collectionPath has at least one
// element. A missing path or a non-collection value is not an error.
func AtLeastOne(collectionPath string) Rule {
	p := normalizePath(collectionPath)
	return func(_ context.Context, instance map[string]any) error {
		val, ok := valueAtPath(instance, p)
		if !ok {
			return nil
		}
		rv := reflect.ValueOf(val)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			if rv.Len() == 0 {
				return distill.Issues{{
					Path:    p,
					Code:    distill.CodeCrossRule,
					Message: "at least 1 item is required",
					Params:  map[string]any{"minItems": 1},
				}}
			}
		}
		return nil
	}
}

// UniqueBy ensures elements of the collection at collectionPath carry unique
// values at keyPath (a path relative to each element). Keys are compared by
// their string form, so keep the key a single stable type.
func UniqueBy(collectionPath, keyPath string) Rule {
	cp := normalizePath(collectionPath)
	kp := strings.TrimPrefix(keyPath, "/")
	return func(_ context.Context, instance map[string]any) error {
		val, ok := valueAtPath(instance, cp)
		if !ok {
			return nil
		}
		rv := reflect.ValueOf(val)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil
		}
		seen := map[string]int{}
		var out distill.Issues
		for i := 0; i < rv.Len(); i++ {
			kv, ok := valueAtPathWithin(rv.Index(i).Interface(), kp)
			if !ok {
				continue
			}
			key := fmt.Sprint(kv)
			if j, dup := seen[key]; dup {
				out = append(out, distill.Issue{
					Path:    cp + "/" + strconv.Itoa(i) + "/" + kp,
					Code:    distill.CodeCrossRule,
					Message: "duplicate value",
					Params:  map[string]any{"first": j, "dup": i, "key": key},
				})
			} else {
				seen[key] = i
			}
		}
		if len(out) > 0 {
			return out
		}
		return nil
	}
}

// ------- helpers -------

func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	if p[0] != '/' {
		return "/" + p
	}
	return p
}

func evalConditional(instance map[string]any, c Conditional) bool {
	if len(c.all) > 0 {
		for _, it := range c.all {
			if !evalConditional(instance, it) {
				return false
			}
		}
		return true
	}
	if len(c.any) > 0 {
		for _, it := range c.any {
			if evalConditional(instance, it) {
				return true
			}
		}
		return false
	}
	cur, ok := valueAtPath(instance, c.path)
	if !ok {
		return false
	}
	return compare(cur, c.op, c.want)
}

func valueAtPath(instance map[string]any, pointer string) (any, bool) {
	return valueAtPathWithin(instance, strings.TrimPrefix(pointer, "/"))
}

// valueAtPathWithin walks maps and slices by path segments. Instances are
// plain map[string]any trees, so no struct support is needed here.
func valueAtPathWithin(v any, rel string) (any, bool) {
	if rel == "" {
		return v, true
	}
	cur := v
	for _, seg := range strings.Split(rel, "/") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func compare(cur any, op Op, want any) bool {
	switch op {
	case Eq:
		if numericEqual(cur, want) {
			return true
		}
		return reflect.DeepEqual(cur, want)
	case Ne:
		if numericEqual(cur, want) {
			return false
		}
		return !reflect.DeepEqual(cur, want)
	case Lt, Le, Gt, Ge:
		return compareOrdered(cur, op, want)
	default:
		return false
	}
}

// numericEqual compares across int and float representations. Decoded input
// carries numbers as float64 while Go literals are usually ints; strict
// DeepEqual would make If("/n", Eq, 3) silently false against 3.0.
func numericEqual(cur, want any) bool {
	a, aok := toFloat64(cur)
	b, bok := toFloat64(want)
	return aok && bok && a == b
}

func compareOrdered(cur any, op Op, want any) bool {
	a, aok := toFloat64(cur)
	b, bok := toFloat64(want)
	if !aok || !bok {
		return false
	}
	switch op {
	case Lt:
		return a < b
	case Le:
		return a <= b
	case Gt:
		return a > b
	case Ge:
		return a >= b
	default:
		return false
	}
}

func toFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
