// Package sqlite persists published calibration snapshots so a restarted
// engine can restore the last good calibration instead of recomputing it.
//
// The schema is versioned with golang-migrate; migrations are embedded in
// the binary and applied by Open.
package sqlite
