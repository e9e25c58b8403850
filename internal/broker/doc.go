// Package broker multiplexes bus value subscriptions across flow nodes.
//
// Many nodes usually watch the same handful of values (battery state of
// charge, grid power). The Broker keeps exactly one bus subscription per
// distinct Address and fans each notification out to every registered
// callback in registration order. It also owns the last-known-value Cache
// and the per-node status listeners that report bus connectivity and
// service presence.
//
// # Lifecycle
//
//	brk := broker.New(busClient, broker.NewCache())
//	busClient.OnConnect(brk.HandleConnect)
//	busClient.OnDisconnect(brk.HandleDisconnect)
//	busClient.WatchServices(brk.HandleService)
//
//	h, _ := brk.Subscribe(addr, func(m broker.Message) { ... })
//	defer brk.Unsubscribe(h)
//
// Subscribe never fails because the bus is down: interest is recorded and
// the bus subscription is made on the next connect.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Callbacks run without any
// broker lock held, so they may call back into the Broker.
package broker
