// Package barrier drives physical entry/exit barriers across three
// transport variants (simulated, HTTP actuator, relay board) behind a
// single Controller contract.
//
// Every open/close attempt is recorded in the persisted command ledger:
// a PENDING row is written before the protocol action starts and is
// marked EXECUTED or FAILED, keyed by the caller's correlation ID,
// before the command call returns. Commands never return a Go error;
// every failure mode is a structured Result.
//
// The Manager owns the runtime controller registry, dispatches commands
// by device or lane, and polls connectivity on a fixed interval, writing
// online/offline and last-seen back to the device records. Barrier state
// is transient per controller instance and is rebuilt from scratch on
// every initialization.
package barrier
