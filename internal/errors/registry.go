package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://reactor.vango.dev/docs/errors/"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Engine Errors (R001-R019)
	// ============================================

	"R001": {
		Category: CategoryEngine,
		Message:  "Observable written during derivation",
		Detail:   "Derivations must be pure functions of the values they read. Move the write into a reaction or an action.",
		DocURL:   docBase + "R001",
	},
	"R002": {
		Category: CategoryEngine,
		Message:  "Observable written outside a batch",
		Detail:   "The runtime runs in strict mode, so every write must happen inside Batch or Tx.",
		DocURL:   docBase + "R002",
	},
	"R003": {
		Category: CategoryEngine,
		Message:  "Cycle detected",
		Detail:   "A derivation reads itself, directly or through other derivations. Break the cycle by splitting the state.",
		DocURL:   docBase + "R003",
	},
	"R004": {
		Category: CategoryEngine,
		Message:  "Node disposed",
		Detail:   "The node was disposed, usually because the scope that owned it was disposed.",
		DocURL:   docBase + "R004",
	},
	"R005": {
		Category: CategoryEngine,
		Message:  "Flush budget exceeded",
		Detail:   "Reactions kept re-triggering each other past the configured number of passes or runs. The remaining runs were dropped.",
		DocURL:   docBase + "R005",
	},
	"R006": {
		Category: CategoryEngine,
		Message:  "Evaluation failed",
		Detail:   "A derivation or reaction returned an error.",
		DocURL:   docBase + "R006",
	},
	"R007": {
		Category: CategoryEngine,
		Message:  "Evaluation panicked",
		Detail:   "A derivation or reaction panicked. The panic was recovered and the node kept its previous state.",
		DocURL:   docBase + "R007",
	},

	// ============================================
	// Loop Errors (R020-R039)
	// ============================================

	"R020": {
		Category: CategoryLoop,
		Message:  "Loop closed",
		Detail:   "The runtime loop has stopped and no longer accepts work.",
		DocURL:   docBase + "R020",
	},
	"R021": {
		Category: CategoryLoop,
		Message:  "Loop mailbox full",
		Detail:   "Too many tasks are queued for the runtime goroutine.",
		DocURL:   docBase + "R021",
	},
	"R022": {
		Category: CategoryLoop,
		Message:  "Executor pool closed",
		Detail:   "Background work was submitted after the worker pool was closed.",
		DocURL:   docBase + "R022",
	},

	// ============================================
	// Persistence Errors (R040-R059)
	// ============================================

	"R040": {
		Category: CategoryPersist,
		Message:  "Save failed",
		Detail:   "The snapshot could not be written to the sink.",
		DocURL:   docBase + "R040",
	},
	"R041": {
		Category: CategoryPersist,
		Message:  "Snapshot not found",
		Detail:   "The sink holds no snapshot under this key.",
		DocURL:   docBase + "R041",
	},
	"R042": {
		Category: CategoryPersist,
		Message:  "Sink unavailable",
		Detail:   "The configured sink could not be opened.",
		DocURL:   docBase + "R042",
	},

	// ============================================
	// Configuration Errors (R060-R079)
	// ============================================

	"R060": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "No reactor.yaml, reactor.yml or reactor.json was found.",
		DocURL:   docBase + "R060",
	},
	"R061": {
		Category: CategoryConfig,
		Message:  "Invalid configuration syntax",
		Detail:   "The configuration file could not be parsed.",
		DocURL:   docBase + "R061",
	},
	"R062": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range or not recognized.",
		DocURL:   docBase + "R062",
	},
	"R063": {
		Category: CategoryConfig,
		Message:  "Configuration write failed",
		Detail:   "The configuration file could not be written.",
		DocURL:   docBase + "R063",
	},

	// ============================================
	// Devtools Errors (R080-R089)
	// ============================================

	"R080": {
		Category: CategoryDevtools,
		Message:  "Devtools server failed",
		Detail:   "The devtools HTTP server could not start or stopped unexpectedly.",
		DocURL:   docBase + "R080",
	},

	// ============================================
	// CLI Errors (R090-R099)
	// ============================================

	"R090": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
		Detail:   "The command was called with invalid arguments.",
		DocURL:   docBase + "R090",
	},
	"R091": {
		Category: CategoryCLI,
		Message:  "File already exists",
		Detail:   "Refusing to overwrite an existing file.",
		DocURL:   docBase + "R091",
	},
	"R099": {
		Category: CategoryEngine,
		Message:  "Internal error",
		Detail:   "An unexpected error occurred.",
		DocURL:   docBase + "R099",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
