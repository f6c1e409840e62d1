// Package errors provides structured, actionable errors for the reactor
// CLI and its supporting packages.
//
// Each error carries a code (e.g., "R003") that maps to a short message,
// a longer explanation and a documentation URL. Codes are grouped by
// category:
//   - engine: failures inside the reactive graph (cycles, writes in derivations)
//   - loop: the runtime goroutine and its executor
//   - persist: snapshot sinks
//   - config: reactor.yaml and friends
//   - devtools: the inspection server
//   - cli: command-line usage
//
// FromEngine turns the errors returned by package reactor into coded
// errors, naming the innermost failing node:
//
//	err := errors.FromEngine(derivationErr)
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR R003: Cycle detected
//	//
//	//   node todos.report
//	//
//	//   A derivation reads itself, directly or through other derivations.
//	//   Break the cycle by splitting the state.
//	//
//	//   Cause: reactor: derivation todos.report: reactor: cycle detected in derivation graph
//	//
//	//   Learn more: https://reactor.vango.dev/docs/errors/R003
package errors
