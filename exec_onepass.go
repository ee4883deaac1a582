package distill

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// runSinglePass visits every managed field exactly once in topological
// order. The caller has already rejected cyclic graphs.
func (r *run) runSinglePass(ctx context.Context) (map[string]any, error) {
	r.phase = InstanceBuilding

	if r.opt.Parallelism > 1 {
		if err := r.runLevels(ctx); err != nil {
			return nil, err
		}
	} else {
		order, _ := r.schema.graph.TopologicalOrder()
		for _, name := range order {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			f := r.schema.byName[name]
			value, set, iss, err := r.runField(ctx, f)
			if err != nil {
				r.phase = InstanceFailed
				return nil, err
			}
			st := r.states[name]
			if len(iss) > 0 {
				st.errs = iss
				st.phase = FieldFailed
				if r.opt.FailFast {
					r.phase = InstanceFailed
					return nil, iss
				}
				continue
			}
			st.value, st.set = value, set
			st.phase = FieldResolved
		}
	}

	if all := r.collectIssues(); len(all) > 0 {
		r.phase = InstanceFailed
		return nil, all
	}
	if iss := r.runChecks(ctx); len(iss) > 0 {
		r.phase = InstanceFailed
		return nil, iss
	}
	r.phase = InstanceDone
	inst := r.instance()
	r.log.Debug("create done",
		slog.String("instance", r.id),
		slog.Int("fields", len(inst)))
	return inst, nil
}

// runLevels executes one dependency level at a time. Fields inside a level
// are mutually independent by construction, so they may run concurrently;
// results commit only after the whole level finishes, which keeps field
// state read-only while goroutines are in flight. Stages must declare every
// field they read for this to hold.
func (r *run) runLevels(ctx context.Context) error {
	type slot struct {
		value any
		set   bool
		iss   Issues
	}
	for _, level := range r.schema.levels {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opt.Parallelism)
		slots := make([]slot, len(level))
		for i, name := range level {
			i := i
			f := r.schema.byName[name]
			g.Go(func() error {
				value, set, iss, err := r.runField(gctx, f)
				if err != nil {
					return err
				}
				slots[i] = slot{value: value, set: set, iss: iss}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			r.phase = InstanceFailed
			return err
		}
		for i, name := range level {
			st := r.states[name]
			if len(slots[i].iss) > 0 {
				st.errs = slots[i].iss
				st.phase = FieldFailed
				if r.opt.FailFast {
					r.phase = InstanceFailed
					return slots[i].iss
				}
				continue
			}
			st.value, st.set = slots[i].value, slots[i].set
			st.phase = FieldResolved
		}
	}
	return nil
}
