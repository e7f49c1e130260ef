// Package manager owns the lifecycle of the single generation pipeline a
// shardgen server hosts. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, bootstrap and close.
//   - config.go: Config and package defaults.
//   - types.go: lifecycle State values.
//   - errors.go: error types and helpers (IsTooBusy, IsNotReady, ...).
//   - admission.go: FIFO queueing and single in-flight admission.
//   - generate.go: request entry point with defaults and the result cache.
//   - cache.go: greedy result cache keyed by prompt batch and token budget.
//   - status.go: Status/Manifest reporting helpers.
//
// External packages should treat this package as the orchestration layer and
// use public methods only (New, Bootstrap, Ready, Generate, Status, Close).
package manager
