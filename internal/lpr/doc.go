// Package lpr drives license-plate-recognition units across three
// transport variants (simulated, HTTP vendor adapter, raw TCP socket)
// behind a single Controller contract.
//
// HTTP vendors are described by registered profiles (endpoint paths and
// a payload parser), so supporting a new vendor is a RegisterVendor
// call rather than a controller change. Confidence is normalized to the
// unit interval regardless of how the vendor reports it, and every
// capture passes the device's confidence gate before the outbound
// notification fires; rejected captures are never announced.
//
// The Manager funnels accepted captures from all controllers through a
// bounded queue into one consumption loop, which writes the plate event
// and the device's connectivity in a single transaction and broadcasts
// only after commit.
package lpr
