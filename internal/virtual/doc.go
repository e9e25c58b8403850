// Package virtual manages emulated ("virtual") devices that flow nodes
// publish on the bus.
//
// A virtual device is identified by a local id derived from its node id
// (virtual_<nodeID>). Its identity is stored as a settings entry
// "<type>:<instance>", from which the expected bus service name follows:
//
//	com.victronenergy.<mapped type>.<local id>
//
// Reconcile compares the persisted entries with the services actually
// announced on the bus and picks the orphans. It is deliberately
// conservative: anything it cannot parse is kept.
//
// Device is the readiness queue in front of a device's bus service.
// Updates that arrive while the service is still being created are queued
// and applied in order once it is ready.
package virtual
