// Package device defines the device model shared by the hardware and
// LPR layers, its SQLite persistence, and a cached registry.
//
// A Device row describes one physical unit (barrier, LPR camera, kiosk)
// with its protocol, optional lane assignment, connection configuration
// and last observed connectivity. The Registry keeps an in-memory copy
// of all devices so the managers can resolve devices and lanes without
// touching the database on every command; health observations write
// through to SQLite before the cache is mutated.
package device
