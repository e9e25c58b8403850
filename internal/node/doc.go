// Package node implements the flow node runtime.
//
// There is one Node type. Its behaviour is selected by the Kind registered
// for the node's type name: input nodes subscribe to a bus value through
// the Broker and pass it on (optionally through a conditional Evaluator),
// output nodes write their input to the bus, virtual nodes publish an
// emulated device, and notification nodes inject notifications.
//
// A Node reports everything through its Host: output messages with
// Emit and status changes with Status.
//
//	n, err := node.New(cfg, deps)
//	if err := n.Start(ctx); err != nil { ... }
//	defer n.Close()
package node
