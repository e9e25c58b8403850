package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/mqtt"
)

// Transport is the MQTT connection the Client publishes and subscribes
// through. *mqtt.Client satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	Topics() mqtt.Topics
}

// Logger is the logging surface the Client needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Client speaks the Venus OS MQTT topic layout on top of a Transport.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	transport Transport
	topics    Topics
	qos       byte
	logger    Logger

	mu           sync.RWMutex
	onService    func(service string, present bool)
	watching     bool
	onConnect    []func()
	onDisconnect []func()
}

// Topics is re-exported so callers of this package need not import mqtt.
type Topics = mqtt.Topics

// NewClient wraps transport. Connection events from the transport are
// forwarded to callbacks registered with OnConnect and OnDisconnect.
func NewClient(transport Transport, qos byte, logger Logger) *Client {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Client{
		transport: transport,
		topics:    transport.Topics(),
		qos:       qos,
		logger:    logger,
	}
	transport.SetOnConnect(c.handleConnect)
	transport.SetOnDisconnect(func(err error) {
		c.logger.Warn("bus connection lost", "error", err)
		c.mu.RLock()
		callbacks := append([]func(){}, c.onDisconnect...)
		c.mu.RUnlock()
		for _, cb := range callbacks {
			cb()
		}
	})
	return c
}

// Topics returns the topic builder in use.
func (c *Client) Topics() Topics {
	return c.topics
}

// IsConnected reports whether the transport is connected.
func (c *Client) IsConnected() bool {
	return c.transport.IsConnected()
}

// OnConnect registers fn for every (re)connect.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

// OnDisconnect registers fn for every lost connection.
func (c *Client) OnDisconnect(fn func()) {
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, fn)
	c.mu.Unlock()
}

func (c *Client) handleConnect() {
	c.mu.RLock()
	watching := c.watching
	callbacks := append([]func(){}, c.onConnect...)
	c.mu.RUnlock()

	if watching {
		if err := c.subscribePresence(); err != nil {
			c.logger.Warn("subscribing to service presence failed", "error", err)
		}
	}
	for _, cb := range callbacks {
		cb()
	}
}

// Subscribe delivers every value published for addr to handler.
// A second Subscribe for the same address replaces the handler.
func (c *Client) Subscribe(addr Address, handler func(value any)) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	topic := c.topics.Notify(addr.Service, addr.Path)
	return c.transport.Subscribe(topic, c.qos, func(_ string, payload []byte) error {
		value, err := DecodeValue(payload)
		if err != nil {
			return fmt.Errorf("%s: %w", addr, err)
		}
		handler(value)
		return nil
	})
}

// Unsubscribe stops delivery for addr.
func (c *Client) Unsubscribe(addr Address) error {
	return c.transport.Unsubscribe(c.topics.Notify(addr.Service, addr.Path))
}

// WatchServices reports service presence changes to fn. The retained
// presence topics replay the current set on every connect.
func (c *Client) WatchServices(fn func(service string, present bool)) error {
	c.mu.Lock()
	c.onService = fn
	c.watching = true
	c.mu.Unlock()

	if !c.transport.IsConnected() {
		return nil // subscribed from handleConnect
	}
	return c.subscribePresence()
}

func (c *Client) subscribePresence() error {
	return c.transport.Subscribe(c.topics.AllServices(), c.qos, func(topic string, payload []byte) error {
		service, ok := c.topics.ServiceFromTopic(topic)
		if !ok {
			return nil
		}
		c.mu.RLock()
		fn := c.onService
		c.mu.RUnlock()
		if fn != nil {
			fn(service, DecodePresence(payload))
		}
		return nil
	})
}

// Write asks the owner of addr to change its value.
func (c *Client) Write(ctx context.Context, addr Address, value any) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.transport.IsConnected() {
		return ErrNotConnected
	}

	payload, err := EncodeValue(value)
	if err != nil {
		return err
	}
	if err := c.transport.Publish(c.topics.Write(addr.Service, addr.Path), payload, 1, false); err != nil {
		return fmt.Errorf("writing %s: %w", addr, err)
	}
	return nil
}

// SetValue publishes the current value of a path on a service this
// process owns. The message is retained so late subscribers see it.
func (c *Client) SetValue(service, path string, value any) error {
	payload, err := EncodeValue(value)
	if err != nil {
		return err
	}
	if err := c.transport.Publish(c.topics.Notify(service, NormalizePath(path)), payload, c.qos, true); err != nil {
		return fmt.Errorf("publishing %s%s: %w", service, path, err)
	}
	return nil
}

// PublishService announces a service this process owns, publishing its
// initial values before the presence marker.
func (c *Client) PublishService(service string, values map[string]any) error {
	for _, path := range sortedPaths(values) {
		if err := c.SetValue(service, path, values[path]); err != nil {
			return err
		}
	}
	if err := c.transport.Publish(c.topics.Service(service), []byte(`{"connected":true}`), c.qos, true); err != nil {
		return fmt.Errorf("announcing %s: %w", service, err)
	}
	c.logger.Debug("service published", "service", service, "paths", len(values))
	return nil
}

// RemoveService clears the presence marker and the retained values of paths.
func (c *Client) RemoveService(service string, paths []string) error {
	if err := c.transport.Publish(c.topics.Service(service), nil, c.qos, true); err != nil {
		return fmt.Errorf("removing %s: %w", service, err)
	}
	for _, p := range paths {
		if err := c.transport.Publish(c.topics.Notify(service, NormalizePath(p)), nil, c.qos, true); err != nil {
			return fmt.Errorf("clearing %s%s: %w", service, p, err)
		}
	}
	return nil
}

// SubscribeWrites delivers write requests aimed at service to fn.
func (c *Client) SubscribeWrites(service string, fn func(path string, value any)) error {
	return c.transport.Subscribe(c.topics.AllWrites(service), c.qos, func(topic string, payload []byte) error {
		path, ok := c.topics.PathFromWriteTopic(service, topic)
		if !ok {
			return nil
		}
		value, err := DecodeValue(payload)
		if err != nil {
			return err
		}
		fn(path, value)
		return nil
	})
}

// UnsubscribeWrites stops write delivery for service.
func (c *Client) UnsubscribeWrites(service string) error {
	return c.transport.Unsubscribe(c.topics.AllWrites(service))
}

func sortedPaths(values map[string]any) []string {
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
