package node

import (
	"context"
	"fmt"
	"math"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/notification"
)

// inputNotification injects msg as a notification. A string payload is
// the message text; an object may set type, title and message. Missing
// fields fall back to the node config, the title also to msg.topic.
func (n *Node) inputNotification(ctx context.Context, msg Message) error {
	nt := notification.Notification{Type: n.cfg.NotificationType, Title: n.cfg.Title}
	if nt.Title == "" {
		nt.Title = msg.Topic
	}

	switch p := msg.Payload.(type) {
	case string:
		nt.Message = p
	case map[string]any:
		if err := applyNotificationFields(&nt, p); err != nil {
			n.setStatus(Status{Fill: FillRed, Shape: ShapeRing, Text: err.Error()})
			return err
		}
	default:
		err := fmt.Errorf("%w: want string or object, got %T", ErrInvalidPayload, msg.Payload)
		n.setStatus(Status{Fill: FillRed, Shape: ShapeRing, Text: err.Error()})
		return err
	}

	if err := notification.Inject(ctx, n.deps.Bus, nt); err != nil {
		n.setStatus(Status{Fill: FillRed, Shape: ShapeRing, Text: err.Error()})
		return err
	}
	if n.deps.Metrics != nil {
		n.deps.Metrics.NotificationsSent.WithLabelValues(nt.Type.String()).Inc()
	}
	n.setStatus(Status{Fill: FillGreen, Shape: ShapeDot, Text: nt.Type.String() + ": " + nt.Title})
	return nil
}

func applyNotificationFields(nt *notification.Notification, p map[string]any) error {
	switch t := p["type"].(type) {
	case nil:
	case float64:
		if t != math.Trunc(t) {
			return fmt.Errorf("%w: type %v is not an integer", ErrInvalidPayload, t)
		}
		nt.Type = notification.Type(int(t))
	case int:
		nt.Type = notification.Type(t)
	case string:
		parsed, err := notification.ParseType(t)
		if err != nil {
			return err
		}
		nt.Type = parsed
	default:
		return fmt.Errorf("%w: type must be a number or name", ErrInvalidPayload)
	}
	if s, ok := p["title"].(string); ok {
		nt.Title = s
	}
	if s, ok := p["message"].(string); ok {
		nt.Message = s
	}
	return nil
}
