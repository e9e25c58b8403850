// Package flow hosts a deployed set of nodes.
//
// A Runtime owns the running nodes, routes each node's output along its
// wires into the inputs of other nodes, forwards outputs and status
// changes to an optional event hub, and after each deploy reconciles the
// persisted virtual device settings against the services on the bus.
//
// Deploys are incremental: nodes whose configuration is unchanged keep
// running, nodes that disappeared or changed are closed before their
// replacements start.
//
// Flows are loaded from a YAML file:
//
//	nodes:
//	  - id: soc
//	    type: victron-input-battery
//	    service: com.victronenergy.battery.ttyO1
//	    path: /Soc
//	    wires: [["relay"]]
//	  - id: relay
//	    type: victron-output-relay
package flow
