// Package testutil provides mocks and fixtures for pipeline tests.
//
// MockMetadata and MockCore implement the endpoint contract without any wire.
// Building a pipeline with a MockMetadata makes the constructed core available
// through MockMetadata.Core, so tests can emit into the pipeline and inspect
// what the endpoint received:
//
//	outer := testutil.NewMockMetadata("outer", component.DirectionInputAndOutput)
//	inner := testutil.NewMockMetadata("inner", component.DirectionInputAndOutput)
//	p, err := pipeline.NewBuilder("test").Outer(outer).Inner(inner).Build(deps)
//	outer.Core.Emit(ctx, "hello")
//	inner.Core.Received()
//
// TransformFunc, HandlerFunc and ObserverFunc adapt plain functions to the
// three middleware capabilities.
package testutil
