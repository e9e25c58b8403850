package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/broker"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/conditional"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/metrics"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/virtual"
)

// Broker is the subscription surface nodes use. *broker.Broker satisfies it.
type Broker interface {
	Subscribe(addr bus.Address, cb broker.Callback) (broker.Handle, error)
	Unsubscribe(h broker.Handle)
	AddStatusListener(nodeID string, addr bus.Address, fn broker.StatusFunc) (broker.ListenerID, error)
	RemoveStatusListener(id broker.ListenerID)
}

// BusWriter writes values to the bus. *bus.Client satisfies it.
type BusWriter interface {
	Write(ctx context.Context, addr bus.Address, value any) error
}

// DeviceManager hands out virtual device identities. *virtual.Manager satisfies it.
type DeviceManager interface {
	Claim(ctx context.Context, nodeID, deviceType string) (virtual.Claim, error)
}

// ResultRecorder stores confirmed conditional results. *influxdb.Client satisfies it.
type ResultRecorder interface {
	WriteConditionalResult(nodeID string, result bool, ts time.Time)
}

// Logger is the logging surface used by nodes.
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

// Deps are the collaborators shared by all nodes of a runtime.
type Deps struct {
	Host      Host
	Broker    Broker
	Bus       BusWriter
	Publisher virtual.Publisher
	Devices   DeviceManager
	Values    virtual.ValueStore
	Results   ResultRecorder
	Scheduler conditional.Scheduler
	Logger    Logger
	Metrics   *metrics.Metrics

	// DefaultDebounceMS applies to conditional nodes without debounce_ms.
	DefaultDebounceMS int

	// WriteTimeout bounds a single bus write. Zero means 10s.
	WriteTimeout time.Duration

	// VirtualSetupDelay postpones publishing a virtual device.
	VirtualSetupDelay time.Duration
}

const defaultWriteTimeout = 10 * time.Second

// Info describes a running node.
type Info struct {
	ID           string                `json:"id"`
	Type         string                `json:"type"`
	Name         string                `json:"name,omitempty"`
	Role         Role                  `json:"role"`
	Outputs      int                   `json:"outputs"`
	OutputLabels []string              `json:"output_labels,omitempty"`
	Status       Status                `json:"status"`
	Address      *bus.Address          `json:"address,omitempty"`
	Service      string                `json:"service,omitempty"`
	Conditional  *conditional.Snapshot `json:"conditional,omitempty"`
	Pending      int                   `json:"pending,omitempty"`
}

// Node is a running flow node.
type Node struct {
	cfg  Config
	kind Kind
	deps Deps
	addr bus.Address

	mu        sync.Mutex
	started   bool
	closed    bool
	status    Status
	handles   []broker.Handle
	listeners []broker.ListenerID

	// busStatus is the last connectivity status from the Broker and
	// valueStatus the last status derived from values.
	busStatus   broker.Status
	valueStatus Status

	eval *conditional.Evaluator

	virt *virtualState

	// writes tracks in-flight bus writes.
	writes sync.WaitGroup
}

// New validates cfg and creates a stopped node.
func New(cfg Config, deps Deps) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k, _ := LookupKind(cfg.Type)

	if deps.Host == nil {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.WriteTimeout <= 0 {
		deps.WriteTimeout = defaultWriteTimeout
	}

	n := &Node{cfg: cfg, kind: k, deps: deps, addr: cfg.Address(k)}
	switch k.Role {
	case RoleInput, RoleOutput:
		if deps.Broker == nil {
			return nil, fmt.Errorf("%w: broker is required", ErrInvalidConfig)
		}
	}
	switch k.Role {
	case RoleOutput, RoleNotification:
		if deps.Bus == nil {
			return nil, fmt.Errorf("%w: bus writer is required", ErrInvalidConfig)
		}
	case RoleVirtual:
		if deps.Devices == nil || deps.Publisher == nil {
			return nil, fmt.Errorf("%w: device manager and publisher are required", ErrInvalidConfig)
		}
	}
	return n, nil
}

// ID returns the node id.
func (n *Node) ID() string { return n.cfg.ID }

// Config returns the node's configuration.
func (n *Node) Config() Config { return n.cfg }

// Kind returns the node's kind.
func (n *Node) Kind() Kind { return n.kind }

// Outputs returns the number of output ports.
func (n *Node) Outputs() int { return n.cfg.Outputs() }

// OutputLabels returns one label per output port.
func (n *Node) OutputLabels() []string { return n.cfg.OutputLabels() }

// Start acquires the node's subscriptions and resources.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if n.started {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	n.started = true
	n.mu.Unlock()

	var err error
	switch n.kind.Role {
	case RoleInput:
		err = n.startInput()
	case RoleOutput:
		err = n.startOutput()
	case RoleVirtual:
		err = n.startVirtual(ctx)
	case RoleNotification:
		n.setStatus(Status{Text: "ready"})
	}
	if err != nil {
		n.Close()
		n.setStatusForce(Status{Fill: FillRed, Shape: ShapeRing, Text: err.Error()})
		return fmt.Errorf("starting node %s: %w", n.cfg.ID, err)
	}
	n.deps.Logger.Debug("node started", "node_id", n.cfg.ID, "type", n.cfg.Type)
	return nil
}

// Input handles a message sent to the node.
func (n *Node) Input(ctx context.Context, msg Message) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return ErrClosed
	}

	switch n.kind.Role {
	case RoleOutput:
		return n.inputOutput(ctx, msg)
	case RoleVirtual:
		return n.inputVirtual(msg)
	case RoleNotification:
		return n.inputNotification(ctx, msg)
	default:
		return ErrNoInput
	}
}

// Close releases every subscription, status listener, timer and bus
// service the node holds. It is safe to call more than once.
func (n *Node) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	handles, listeners := n.handles, n.listeners
	n.handles, n.listeners = nil, nil
	eval := n.eval
	n.mu.Unlock()

	if eval != nil {
		eval.Close()
	}
	for _, h := range handles {
		n.deps.Broker.Unsubscribe(h)
	}
	for _, id := range listeners {
		n.deps.Broker.RemoveStatusListener(id)
	}
	if n.kind.Role == RoleVirtual {
		n.closeVirtual()
	}
	n.deps.Logger.Debug("node closed", "node_id", n.cfg.ID)
}

// Closed reports whether Close has been called.
func (n *Node) Closed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// Status returns the last status set.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// Service returns the bus service a virtual node publishes, or "".
func (n *Node) Service() string {
	if n.kind.Role != RoleVirtual {
		return ""
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.virt == nil {
		return ""
	}
	return n.virt.claim.Service
}

// Info returns a snapshot for listing.
func (n *Node) Info() Info {
	info := Info{
		ID:           n.cfg.ID,
		Type:         n.cfg.Type,
		Name:         n.cfg.Name,
		Role:         n.kind.Role,
		Outputs:      n.Outputs(),
		OutputLabels: n.OutputLabels(),
		Status:       n.Status(),
		Service:      n.Service(),
	}
	if n.kind.Role == RoleInput || n.kind.Role == RoleOutput {
		addr := n.addr
		info.Address = &addr
	}
	n.mu.Lock()
	eval, virt := n.eval, n.virt
	n.mu.Unlock()
	if eval != nil && n.cfg.Conditional.ConditionalMode {
		s := eval.Snapshot()
		info.Conditional = &s
	}
	if virt != nil {
		info.Pending = virt.device.Pending()
	}
	return info
}

// emit forwards a message to the host unless the node is closed.
func (n *Node) emit(port int, msg Message) {
	if n.Closed() {
		return
	}
	n.deps.Host.Emit(n.cfg.ID, port, msg)
}

// setStatus records and publishes st unless the node is closed.
func (n *Node) setStatus(st Status) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.status = st
	n.mu.Unlock()
	n.deps.Host.Status(n.cfg.ID, st)
}

// setStatusForce publishes st even after Close, for start failures.
func (n *Node) setStatusForce(st Status) {
	n.mu.Lock()
	n.status = st
	n.mu.Unlock()
	n.deps.Host.Status(n.cfg.ID, st)
}

// addStatusListener registers a broker status listener owned by the node.
func (n *Node) addStatusListener(addr bus.Address, fn broker.StatusFunc) error {
	id, err := n.deps.Broker.AddStatusListener(n.cfg.ID, addr, fn)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.listeners = append(n.listeners, id)
	n.mu.Unlock()
	return nil
}

// subscribe registers a broker value subscription owned by the node.
func (n *Node) subscribe(addr bus.Address, cb broker.Callback) error {
	h, err := n.deps.Broker.Subscribe(addr, cb)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.handles = append(n.handles, h)
	n.mu.Unlock()
	return nil
}

// connectivityStatus maps a broker status to a node status. ok is false
// when everything is fine and the node's own status should stand.
func connectivityStatus(st broker.Status) (Status, bool) {
	switch {
	case !st.Connected:
		return Status{Fill: FillRed, Shape: ShapeRing, Text: "disconnected"}, true
	case !st.ServicePresent:
		return Status{Fill: FillYellow, Shape: ShapeRing, Text: "service unavailable"}, true
	default:
		return Status{}, false
	}
}
