// Package sched provides the schedulable-task abstraction used by device
// controllers.
//
// Every timer in the device layer — barrier auto-close, command retry
// delays, simulated transit delays, socket reconnect waits — is created
// through a Scheduler rather than the time package. Production code uses
// Real; tests substitute Manual and advance virtual time explicitly, so
// timer behaviour is verified without real sleeps.
package sched
