// Package config provides configuration structures for the graph engine.
//
// Configuration only exists during initialization: an EngineConfig is resolved
// into an engine (observer and checkpoint store looked up by name) and does not
// persist into runtime components.
//
// # Sources
//
// Configuration is layered. Defaults come from DefaultEngineConfig; a YAML or
// JSON file and STATEGRAPH_* environment variables are merged over them:
//
//	cfg, err := config.Load("engine.yaml")
//
// Or by hand:
//
//	cfg := config.DefaultEngineConfig("report")
//	loaded, err := config.LoadFile("engine.yaml")
//	cfg.Merge(&loaded)
//
// # Merge Semantics
//
//   - Strings: Merge if source is non-empty
//   - Integers: Merge if source is greater than zero
//   - Durations: Merge if source is greater than zero
//   - Booleans (false default): Merge if source is true
//   - Nested configs: Recursive merge
package config
