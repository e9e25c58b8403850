package node

import (
	"context"
	"fmt"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/conditional"
)

// startOutput only watches status. Writes need no value subscription.
func (n *Node) startOutput() error {
	return n.addStatusListener(n.addr, n.onBusStatus)
}

// inputOutput writes msg.payload. The write completes in the background and
// its result is shown in the node status; a completion arriving after
// Close is dropped.
func (n *Node) inputOutput(ctx context.Context, msg Message) error {
	if n.cfg.Disabled {
		n.setStatus(Status{Fill: FillGrey, Shape: ShapeRing, Text: "disabled"})
		return ErrDisabled
	}
	if msg.Payload == nil {
		return fmt.Errorf("%w: payload is required", ErrInvalidPayload)
	}

	value := msg.Payload
	// Add under mu so a write is never started after Close, and WaitWrites
	// following Close sees every write.
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.writes.Add(1)
	n.mu.Unlock()
	go func() {
		defer n.writes.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.deps.WriteTimeout)
		defer cancel()
		n.writeDone(value, n.deps.Bus.Write(wctx, n.addr, value))
	}()
	return nil
}

func (n *Node) writeDone(value any, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	if n.deps.Metrics != nil {
		n.deps.Metrics.BusWrites.WithLabelValues(result).Inc()
	}

	if n.Closed() {
		return
	}
	if err != nil {
		n.deps.Logger.Warn("bus write failed", "node_id", n.cfg.ID, "address", n.addr.String(), "error", err)
		n.setStatus(Status{Fill: FillRed, Shape: ShapeDot, Text: "write failed: " + err.Error()})
		return
	}
	n.setStatus(Status{Fill: FillGreen, Shape: ShapeDot, Text: conditional.FormatValue(value)})
}

// WaitWrites blocks until in-flight bus writes complete.
func (n *Node) WaitWrites() {
	n.writes.Wait()
}
