// Package persist saves reactive state whenever it changes.
//
// Bind wraps a snapshot function in a reaction: every observable the
// snapshot reads becomes a dependency, and each change starts a save on
// the runtime's executor. The engine never waits for the save. Its outcome
// comes back as a write to the binding's Status observable, so UI code can
// react to it like any other state:
//
//	binding := persist.Bind(loop, "todos", store.Snapshot, sink)
//	reactor.Watch(rt, func() persist.Status { return binding.Status().Get() },
//	    func(now, _ persist.Status) { log.Println("save", now) })
//
// Sinks:
//   - MemorySink: in-process map, for tests
//   - FileSink: one file per key, atomic rename
//   - S3Sink: objects in an S3 bucket (aws-sdk-go-v2)
//   - SQLiteSink: rows in a SQLite table (mattn/go-sqlite3)
package persist
