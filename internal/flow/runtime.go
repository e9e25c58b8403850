package flow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/metrics"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/node"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/virtual"
)

// Event channels used with Hub.Broadcast.
const (
	ChannelOutput = "output"
	ChannelStatus = "status"
)

// Hub receives node events. The API's WebSocket hub satisfies it.
type Hub interface {
	Broadcast(channel string, payload any)
}

// Services reports bus connectivity and the services currently present.
// *broker.Broker satisfies it.
type Services interface {
	IsConnected() bool
	ActiveServices() []string
}

// Reconciler removes the settings of virtual devices that are gone.
// *virtual.Manager satisfies it.
type Reconciler interface {
	RemoveOrphans(ctx context.Context, activeServices []string) (virtual.Plan, error)
}

// Logger is the logging surface used by the runtime.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// OutputEvent is broadcast for every message a node emits.
type OutputEvent struct {
	NodeID  string       `json:"node_id"`
	Port    int          `json:"port"`
	Message node.Message `json:"msg"`
}

// StatusEvent is broadcast for every node status change.
type StatusEvent struct {
	NodeID string      `json:"node_id"`
	Status node.Status `json:"status"`
}

// Options configure a Runtime.
type Options struct {
	// ReconcileOnDeploy runs reconciliation after every deploy while the
	// bus is connected.
	ReconcileOnDeploy bool
}

// DeployResult summarises one deploy.
type DeployResult struct {
	Started   []string          `json:"started"`
	Stopped   []string          `json:"stopped"`
	Unchanged []string          `json:"unchanged"`
	Failed    map[string]string `json:"failed,omitempty"`
	Reconcile *virtual.Plan     `json:"reconcile,omitempty"`
}

// Runtime runs the nodes of the current deploy.
//
// Thread Safety: all methods are safe for concurrent use. Deploys are
// serialised.
type Runtime struct {
	deps       node.Deps
	opts       Options
	services   Services
	reconciler Reconciler

	deployMu sync.Mutex

	mu       sync.RWMutex
	nodes    map[string]*node.Node
	hub      Hub
	logger   Logger
	metrics  *metrics.Metrics
	shutdown bool
}

// New creates an empty runtime. The runtime installs itself as the
// nodes' Host; deps.Host is ignored.
//
// Parameters:
//   - deps: collaborators handed to every node
//   - services: bus connectivity for reconciliation (may be nil)
//   - reconciler: virtual device manager (may be nil)
//   - opts: runtime options
func New(deps node.Deps, services Services, reconciler Reconciler, opts Options) *Runtime {
	r := &Runtime{
		opts:       opts,
		services:   services,
		reconciler: reconciler,
		nodes:      make(map[string]*node.Node),
		logger:     noopLogger{},
	}
	deps.Host = r
	r.deps = deps
	if deps.Logger != nil {
		r.logger = deps.Logger
	}
	r.metrics = deps.Metrics
	return r
}

// SetHub sets the event hub.
func (r *Runtime) SetHub(h Hub) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hub = h
}

// SetLogger sets the logger.
func (r *Runtime) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
}

// Deploy replaces the running flow with cfgs.
//
// Unchanged nodes keep running. Nodes that are gone, changed or failed
// are closed first, then new and changed nodes start. A node failing to start keeps
// its red status and is reported in DeployResult.Failed; the deploy as a
// whole only fails when cfgs is invalid.
func (r *Runtime) Deploy(ctx context.Context, cfgs []node.Config) (DeployResult, error) {
	if err := validateFlow(cfgs); err != nil {
		return DeployResult{}, err
	}

	r.deployMu.Lock()
	defer r.deployMu.Unlock()

	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return DeployResult{}, ErrClosed
	}
	wanted := make(map[string]node.Config, len(cfgs))
	for _, c := range cfgs {
		wanted[c.ID] = c
	}
	var result DeployResult
	var stop []*node.Node
	for id, n := range r.nodes {
		if c, ok := wanted[id]; ok && !n.Closed() && reflect.DeepEqual(c, n.Config()) {
			result.Unchanged = append(result.Unchanged, id)
			continue
		}
		stop = append(stop, n)
		delete(r.nodes, id)
		result.Stopped = append(result.Stopped, id)
	}
	r.mu.Unlock()

	for _, n := range stop {
		n.Close()
	}

	// Every new node is registered before any starts, and input nodes
	// start last: a joiner replays the cached value from Start, and its
	// wire targets must already be there to receive it.
	var created []*node.Node
	for _, c := range cfgs {
		if contains(result.Unchanged, c.ID) {
			continue
		}
		n, err := node.New(c, r.deps)
		if err != nil {
			result.addFailure(c.ID, err)
			continue
		}
		created = append(created, n)
	}
	r.mu.Lock()
	for _, n := range created {
		r.nodes[n.ID()] = n
	}
	r.mu.Unlock()

	sort.SliceStable(created, func(i, j int) bool {
		return startRank(created[i]) < startRank(created[j])
	})
	for _, n := range created {
		if err := n.Start(ctx); err != nil {
			r.logger.Warn("node failed to start", "node_id", n.ID(), "type", n.Config().Type, "error", err)
			result.addFailure(n.ID(), err)
			continue
		}
		result.Started = append(result.Started, n.ID())
	}

	sort.Strings(result.Started)
	sort.Strings(result.Stopped)
	sort.Strings(result.Unchanged)
	r.updateGauges()

	r.logger.Info("flow deployed",
		"started", len(result.Started),
		"stopped", len(result.Stopped),
		"unchanged", len(result.Unchanged),
		"failed", len(result.Failed),
	)

	if r.opts.ReconcileOnDeploy && r.reconciler != nil && r.services != nil && r.services.IsConnected() {
		plan, err := r.Reconcile(ctx)
		if err != nil {
			r.logger.Warn("reconciliation after deploy failed", "error", err)
		} else {
			result.Reconcile = &plan
		}
	}
	return result, nil
}

// startRank orders node starts: nodes that only emit values go last.
func startRank(n *node.Node) int {
	if n.Kind().Role == node.RoleInput {
		return 1
	}
	return 0
}

func (d *DeployResult) addFailure(id string, err error) {
	if d.Failed == nil {
		d.Failed = make(map[string]string)
	}
	d.Failed[id] = err.Error()
}

// Reconcile deletes the settings of virtual devices whose service is
// neither on the bus nor owned by a running virtual node.
func (r *Runtime) Reconcile(ctx context.Context) (virtual.Plan, error) {
	if r.reconciler == nil {
		return virtual.Plan{}, ErrNoReconciler
	}
	if r.services == nil || !r.services.IsConnected() {
		return virtual.Plan{}, ErrNotConnected
	}

	active := r.services.ActiveServices()
	r.mu.RLock()
	for _, n := range r.nodes {
		if svc := n.Service(); svc != "" && !n.Closed() {
			active = append(active, svc)
		}
	}
	r.mu.RUnlock()

	return r.reconciler.RemoveOrphans(ctx, active)
}

// Input delivers msg to a node.
func (r *Runtime) Input(ctx context.Context, nodeID string, msg node.Message) error {
	r.mu.RLock()
	n, ok := r.nodes[nodeID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if msg.ID == "" {
		msg = node.NewMessage(msg.Topic, msg.Payload)
	}
	return n.Input(ctx, msg)
}

// Nodes lists the running nodes sorted by id.
func (r *Runtime) Nodes() []node.Info {
	r.mu.RLock()
	list := make([]*node.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		list = append(list, n)
	}
	r.mu.RUnlock()

	out := make([]node.Info, 0, len(list))
	for _, n := range list {
		out = append(out, n.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Node returns one node's info.
func (r *Runtime) Node(id string) (node.Info, error) {
	r.mu.RLock()
	n, ok := r.nodes[id]
	r.mu.RUnlock()
	if !ok {
		return node.Info{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n.Info(), nil
}

// Configs returns the configuration of the current deploy sorted by id.
func (r *Runtime) Configs() []node.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]node.Config, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n.Config())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown closes every node and waits for their in-flight bus writes.
func (r *Runtime) Shutdown() {
	r.deployMu.Lock()
	defer r.deployMu.Unlock()

	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	r.shutdown = true
	nodes := r.nodes
	r.nodes = make(map[string]*node.Node)
	r.mu.Unlock()

	for _, n := range nodes {
		n.Close()
	}
	for _, n := range nodes {
		n.WaitWrites()
	}
	r.updateGauges()
	r.logger.Info("flow runtime stopped", "nodes", len(nodes))
}

// Emit implements node.Host. It broadcasts the output and delivers it to
// every node wired to port.
func (r *Runtime) Emit(nodeID string, port int, msg node.Message) {
	r.mu.RLock()
	src, ok := r.nodes[nodeID]
	hub, logger := r.hub, r.logger
	var targets []*node.Node
	if ok {
		wires := src.Config().Wires
		if port >= 0 && port < len(wires) {
			for _, id := range wires[port] {
				if t, found := r.nodes[id]; found {
					targets = append(targets, t)
				} else {
					logger.Debug("wire target not running", "from", nodeID, "to", id, "port", port)
				}
			}
		}
	}
	r.mu.RUnlock()

	if hub != nil {
		hub.Broadcast(ChannelOutput, OutputEvent{NodeID: nodeID, Port: port, Message: msg})
	}
	for i, t := range targets {
		m := msg
		if i > 0 {
			// Later targets get their own id like a cloned message.
			m = node.NewMessage(msg.Topic, msg.Payload)
		}
		if err := t.Input(context.Background(), m); err != nil {
			level := logger.Warn
			if errors.Is(err, node.ErrNoInput) || errors.Is(err, node.ErrClosed) {
				level = logger.Debug
			}
			level("delivering message failed", "from", nodeID, "to", t.ID(), "port", port, "error", err)
		}
	}
}

// Status implements node.Host.
func (r *Runtime) Status(nodeID string, st node.Status) {
	r.mu.RLock()
	hub := r.hub
	r.mu.RUnlock()
	if hub != nil {
		hub.Broadcast(ChannelStatus, StatusEvent{NodeID: nodeID, Status: st})
	}
}

func (r *Runtime) updateGauges() {
	if r.metrics == nil {
		return
	}
	r.mu.RLock()
	counts := make(map[string]int)
	for _, n := range r.nodes {
		counts[n.Config().Type]++
	}
	r.mu.RUnlock()

	r.metrics.NodesDeployed.Reset()
	for typ, c := range counts {
		r.metrics.NodesDeployed.WithLabelValues(typ).Set(float64(c))
	}
}

// validateFlow checks every config, id uniqueness and wire targets.
func validateFlow(cfgs []node.Config) error {
	var errs []error
	ids := make(map[string]bool, len(cfgs))
	for i := range cfgs {
		c := &cfgs[i]
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if ids[c.ID] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateID, c.ID))
		}
		ids[c.ID] = true
	}
	for i := range cfgs {
		c := &cfgs[i]
		if len(c.Wires) > c.Outputs() {
			errs = append(errs, fmt.Errorf("%w: %s has %d outputs, %d wired", ErrInvalidPort, c.ID, c.Outputs(), len(c.Wires)))
		}
		for _, port := range c.Wires {
			for _, target := range port {
				if !ids[target] {
					errs = append(errs, fmt.Errorf("%w: %s -> %s", ErrUnknownWire, c.ID, target))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
