// Package pipeline composes one outer endpoint, one inner endpoint and an
// ordered middleware chain into a Pipeline, and records every fault raised on
// the way in a bounded ExceptionPool.
//
// A Pipeline is produced by a Builder:
//
//	p, err := pipeline.NewBuilder("orders").
//		Group("erp").
//		Outer(natsMeta).
//		Use(middleware.NewCounter("orders")).
//		Build(deps)
//
// Send is the only dispatch entry. Middleware runs in registration order for
// both directions. A message from the outer endpoint ends at the inner
// endpoint and vice versa. Send never returns an error; faults are collected
// in the pool and reported as component.Faulted.
package pipeline
