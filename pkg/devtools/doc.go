// Package devtools serves a live view of a reactive runtime over HTTP.
//
// Routes:
//
//	GET /healthz           runtime id, or 503 once the loop stopped
//	GET /graph             full graph snapshot
//	GET /graph/nodes/{id}  one node with its dependencies and observers
//	GET /stats             activity counters
//	GET /events?since=N    recent engine events (requires a Hub)
//	GET /events/ws         websocket stream of engine events
//	GET /metrics           Prometheus exposition (requires a Gatherer)
//
// Typical wiring:
//
//	hub := devtools.NewHub()
//	rt := reactor.New(reactor.WithObserver(hub))
//	loop := reactor.NewLoop(rt)
//	go loop.Run(ctx)
//	srv := devtools.NewServer(loop, devtools.WithHub(hub))
//	srv.ListenAndServe(ctx, "127.0.0.1:7070")
package devtools
