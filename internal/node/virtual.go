package node

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/virtual"
)

type virtualState struct {
	claim   virtual.Claim
	device  *virtual.Device
	service *virtual.Service
	cancel  context.CancelFunc

	// ready is set once the service is on the bus.
	ready bool
}

// startVirtual claims the device identity and publishes the service in
// the background. Input arriving before the service exists is queued.
func (n *Node) startVirtual(ctx context.Context) error {
	deviceType := n.cfg.deviceType(n.kind)
	claim, err := n.deps.Devices.Claim(ctx, n.cfg.ID, deviceType)
	if err != nil {
		return err
	}

	svc := virtual.NewService(claim.Service, claim.LocalID, n.deps.Publisher, n.deps.Values)
	svc.SetLogger(n.deps.Logger)
	svc.OnWrite(func(path string, value any) {
		n.emit(0, NewMessage(path, value))
	})

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	vs := &virtualState{claim: claim, device: virtual.NewDevice(), service: svc, cancel: cancel}

	n.mu.Lock()
	n.virt = vs
	n.mu.Unlock()

	n.setStatus(Status{Fill: FillYellow, Shape: ShapeRing, Text: "starting " + claim.Service})

	initial := virtual.DefaultValues(deviceType, claim.Instance, n.cfg.ProductName)
	if n.cfg.Name != "" {
		initial["/CustomName"] = n.cfg.Name
	}
	for p, v := range n.cfg.Values {
		initial[p] = v
	}

	go n.publishVirtual(bg, vs, initial)
	return nil
}

func (n *Node) publishVirtual(ctx context.Context, vs *virtualState, initial map[string]any) {
	if d := n.deps.VirtualSetupDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return
		}
	}

	if err := vs.service.Start(ctx, initial); err != nil {
		n.deps.Logger.Error("publishing virtual device failed", "node_id", n.cfg.ID, "service", vs.claim.Service, "error", err)
		n.setStatus(Status{Fill: FillRed, Shape: ShapeRing, Text: "publish failed"})
		return
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		_ = vs.service.Stop()
		return
	}
	vs.ready = true
	n.mu.Unlock()

	n.setStatus(Status{Fill: FillGreen, Shape: ShapeDot, Text: vs.claim.DeviceType + " #" + strconv.Itoa(vs.claim.Instance)})
	if err := vs.device.MarkReady(vs.service); err != nil {
		n.deps.Logger.Debug("virtual device not marked ready", "node_id", n.cfg.ID, "error", err)
	}
}

func (n *Node) closeVirtual() {
	n.mu.Lock()
	vs := n.virt
	ready := vs != nil && vs.ready
	n.mu.Unlock()
	if vs == nil {
		return
	}

	vs.cancel()
	vs.device.Close()
	if ready {
		if err := vs.service.Stop(); err != nil {
			n.deps.Logger.Warn("removing virtual device failed", "node_id", n.cfg.ID, "error", err)
		}
	}
}

// inputVirtual turns msg into an update. A map payload is a batch of
// path to value; otherwise msg.topic names the path.
func (n *Node) inputVirtual(msg Message) error {
	n.mu.Lock()
	vs := n.virt
	n.mu.Unlock()
	if vs == nil {
		return ErrClosed
	}

	var u virtual.Update
	switch p := msg.Payload.(type) {
	case map[string]any:
		if len(p) == 0 {
			return fmt.Errorf("%w: empty update", ErrInvalidPayload)
		}
		u = virtual.Update(p)
	default:
		if !strings.HasPrefix(msg.Topic, "/") {
			return fmt.Errorf("%w: topic must name a path when payload is not an object", ErrInvalidPayload)
		}
		u = virtual.Update{msg.Topic: p}
	}

	queued := vs.device.EnqueueOrApply(u, func(changed int, err error) {
		if err != nil {
			n.setStatus(Status{Fill: FillRed, Shape: ShapeDot, Text: err.Error()})
			return
		}
		n.setStatus(Status{Fill: FillGreen, Shape: ShapeDot, Text: strconv.Itoa(changed) + " changed"})
	})
	if queued {
		if n.deps.Metrics != nil {
			n.deps.Metrics.VirtualQueued.Inc()
		}
		n.setStatus(Status{Fill: FillYellow, Shape: ShapeRing, Text: "queued (" + strconv.Itoa(vs.device.Pending()) + ")"})
	}
	return nil
}
