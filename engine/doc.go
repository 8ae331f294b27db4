// Package engine owns the set of data channels running in a process.
//
// Central replaces a process-wide channel registry with an explicit object
// created by the host:
//
//	central := engine.NewCentral(deps, engine.Config{InitWorkers: 10})
//	_ = central.RegisterBuilder(pipeline.NewBuilder("orders").Outer(natsMeta))
//
//	router := chi.NewRouter()
//	if err := central.StartBuild(router); err != nil {
//	    logger.Warn("some channels failed to build", "error", err)
//	}
//
//	ready := make(chan struct{})
//	done := central.InitializeWhenReady(ctx, ready)
//	go server.Serve(listener)
//	close(ready)
//
// StartBuild runs once. Channels that fail to build are left out and listed
// by BuildFailures; the rest are registered and their inbound routes mounted.
// Initialization waits for the ready channel instead of a fixed delay and runs
// on a bounded worker pool. A channel whose transport is unavailable keeps
// the fault in its own exception pool and stays not_available until
// ReInitialize is called.
//
// RegisterHTTPHandlers exposes status, exception and re-initialization
// operations for a monitoring front end.
package engine
