package node

import (
	"github.com/google/uuid"
)

// Message is what flows between nodes.
type Message struct {
	ID      string `json:"_msgid"`
	Topic   string `json:"topic,omitempty"`
	Payload any    `json:"payload"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(topic string, payload any) Message {
	return Message{ID: uuid.NewString(), Topic: topic, Payload: payload}
}

// Fill is the status indicator colour.
type Fill string

const (
	FillGreen  Fill = "green"
	FillYellow Fill = "yellow"
	FillRed    Fill = "red"
	FillGrey   Fill = "grey"
	FillBlue   Fill = "blue"
)

// Shape is the status indicator shape.
type Shape string

const (
	ShapeDot  Shape = "dot"
	ShapeRing Shape = "ring"
)

// Status is the node's visible status.
type Status struct {
	Fill  Fill   `json:"fill,omitempty"`
	Shape Shape  `json:"shape,omitempty"`
	Text  string `json:"text"`
}

// Host receives node outputs and status changes.
type Host interface {
	Emit(nodeID string, port int, msg Message)
	Status(nodeID string, st Status)
}
