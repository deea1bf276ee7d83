// Package errors provides the tagged error type shared by the collector stages.
//
// Every error carries the subsystem that produced it, a kind drawn from a fixed
// set and a severity. Fatal errors are returned from a stage entry point and
// stop that stage. Recoverable errors are recorded as data (configuration
// errors, per-backend failures) and inspected by the caller once the stage
// returns normally.
//
//	err := errors.Fatal(errors.SubsystemConfigManager, errors.KindNoSourcesFound,
//	    "no config files found").WithContext("config_file", file)
//
//	if stderrors.Is(err, errors.Sentinel(errors.KindNoSourcesFound)) { ... }
package errors
