package distill

import (
	"fmt"
	"sort"
	"strings"
)

// Plan renders the compiled schema as a deterministic text description:
// every managed field in visit order with its effective pipeline, inferred
// dependencies, bundles, checks and variants. Meant for debugging and golden
// tests; the format is stable across runs but not machine-parseable.
func (s *Schema) Plan() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "schema %s\n", s.name)
	fmt.Fprintf(b, "strategy %s\n", s.Strategy())
	if s.Cyclic() {
		fmt.Fprintf(b, "cyclic %s\n", strings.Join(s.graph.Cycle(), " -> "))
	}
	for _, name := range s.order {
		f := s.byName[name]
		fmt.Fprintf(b, "field %s kind=%s", f.name, f.kind)
		if deps := s.graph.DependsOn(f.name); len(deps) > 0 {
			fmt.Fprintf(b, " deps=[%s]", strings.Join(deps, " "))
		}
		if len(f.bundles) > 0 {
			fmt.Fprintf(b, " bundles=[%s]", strings.Join(f.bundles, " "))
		}
		if f.synthetic {
			b.WriteString(" synthetic")
		}
		b.WriteByte('\n')
		for _, st := range f.stages {
			b.WriteString("  ")
			b.WriteString(st.kind.String())
			b.WriteByte(' ')
			b.WriteString(st.name)
			if len(st.refs) > 0 {
				strs := make([]string, len(st.refs))
				for i, ref := range st.refs {
					strs[i] = ref.String()
				}
				fmt.Fprintf(b, " refs=[%s]", strings.Join(strs, " "))
			}
			if st.kind == StageTransform && st.retries >= 0 {
				fmt.Fprintf(b, " retries=%d", st.retries)
			}
			if st.kind == StageCatch {
				if st.repair {
					b.WriteString(" repair")
				} else {
					fmt.Fprintf(b, " fallback=%v", st.fallback)
				}
			}
			if st.child != nil {
				mode := "nested"
				if st.each {
					mode = "each"
				}
				fmt.Fprintf(b, " %s=%s", mode, st.child.name)
			}
			b.WriteByte('\n')
		}
	}
	for _, chk := range s.checks {
		fmt.Fprintf(b, "check %s\n", chk.Name)
	}
	if len(s.variants) > 0 {
		tags := make([]string, 0, len(s.variants))
		for tag := range s.variants {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		fmt.Fprintf(b, "discriminator %s variants=[%s]\n", s.discriminator, strings.Join(tags, " "))
	}
	return b.String()
}
