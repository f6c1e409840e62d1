// Package config loads reactor.yaml, the configuration shared by the
// reactor CLI and the devtools server.
//
// A config file looks like this:
//
//	runtime:
//	  batchPolicy: collapse
//	  maxFlushPasses: 100
//	  strict: true
//	executor:
//	  workers: 4
//	log:
//	  level: debug
//	  format: json
//	metrics:
//	  enabled: true
//	devtools:
//	  enabled: true
//	  addr: 127.0.0.1:7070
//	persist:
//	  sink: sqlite
//	  path: .reactor/state.db
//
// reactor.yml and reactor.json are accepted too. Missing fields take the
// values returned by New, and unknown fields are rejected.
//
// Usage:
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    errors.PrintError(os.Stderr, err)
//	    os.Exit(1)
//	}
//	rt := reactor.New(append(cfg.RuntimeOptions(), reactor.WithLogger(cfg.NewLogger(os.Stderr)))...)
package config
