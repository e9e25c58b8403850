package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/flow"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/node"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/virtual"
)

type fakeBus struct {
	mu        sync.Mutex
	connected bool
	handlers  map[bus.Address]func(any)
}

func newFakeBus() *fakeBus {
	return &fakeBus{connected: true, handlers: make(map[bus.Address]func(any))}
}

func (f *fakeBus) Subscribe(addr bus.Address, h func(any)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[addr] = h
	return nil
}

func (f *fakeBus) Unsubscribe(addr bus.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, addr)
	return nil
}

func (f *fakeBus) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBus) push(addr bus.Address, v any) {
	f.mu.Lock()
	h := f.handlers[addr]
	f.mu.Unlock()
	if h != nil {
		h(v)
	}
}

// fakeFlows records what the API asks of the runtime.
type fakeFlows struct {
	mu        sync.Mutex
	deployed  []node.Config
	deployErr error
	inputs    []node.Message
	inputErr  error
	plan      virtual.Plan
	planErr   error
	nodes     []node.Info
}

func (f *fakeFlows) Deploy(_ context.Context, cfgs []node.Config) (flow.DeployResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deployErr != nil {
		return flow.DeployResult{}, f.deployErr
	}
	f.deployed = cfgs
	res := flow.DeployResult{}
	for _, c := range cfgs {
		res.Started = append(res.Started, c.ID)
	}
	return res, nil
}

func (f *fakeFlows) Configs() []node.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deployed
}

func (f *fakeFlows) Nodes() []node.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes
}

func (f *fakeFlows) Node(id string) (node.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodeLocked(id)
}

func (f *fakeFlows) Input(_ context.Context, nodeID string, msg node.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inputErr != nil {
		return f.inputErr
	}
	if _, err := f.nodeLocked(nodeID); err != nil {
		return err
	}
	f.inputs = append(f.inputs, msg)
	return nil
}

func (f *fakeFlows) nodeLocked(id string) (node.Info, error) {
	for _, n := range f.nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return node.Info{}, fmt.Errorf("%w: %s", flow.ErrNodeNotFound, id)
}

func (f *fakeFlows) Reconcile(context.Context) (virtual.Plan, error) {
	return f.plan, f.planErr
}

type fakeWriter struct {
	mu     sync.Mutex
	addrs  []bus.Address
	values []any
	err    error
}

func (w *fakeWriter) Write(_ context.Context, addr bus.Address, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.addrs = append(w.addrs, addr)
	w.values = append(w.values, value)
	return nil
}
