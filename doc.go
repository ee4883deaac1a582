package distill

// Package distill provides:
//
// - Declarative field schemas with per-field pipelines (Sourcing/Coercion/Validation/Transform/Catch)
// - Dependency-ordered execution: single-pass over a DAG or convergent fixed-point iteration
// - A stable error model via Issues (JSON Pointer, code, message) and ConfigError for declaration defects
// - Model-handler transforms with bounded retries and downstream-error threading via Attempt
//
// Design policy:
// - Keep only public APIs in the root package; put graph internals under internal/.
// - Place the fluent builder under dsl/, candidate matching under match/, instance rules under rules/.
// - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//  s := buildSchema()
//  out, err := distill.Create(ctx, s, distill.JSON(data))
//  rep, err := distill.CreateWithReport(ctx, s, distill.JSON(data))
//
//  typed, err := distill.CreateInto[Order](ctx, s, distill.JSON(data))
//
